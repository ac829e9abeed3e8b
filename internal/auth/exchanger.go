package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/npcchatter/campaign-chat/internal/realtime"
)

// ExchangeError reports a token exchange rejected by the endpoint or a
// transport-level failure reaching it.
type ExchangeError struct {
	Status int // 0 when the endpoint was unreachable
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return "auth: token exchange: " + e.Err.Error()
	}
	return fmt.Sprintf("auth: token exchange: status %d: %s", e.Status, e.Body)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// tokenResponse is the exchange endpoint's success payload. The token itself
// is opaque to callers; only the transport interprets it.
type tokenResponse struct {
	Token string `json:"token"`
}

// Exchanger trades a bearer credential for a channel-scoped realtime
// credential by calling the token exchange endpoint. It holds no connection
// state; it is safe to call repeatedly and concurrently, and the transport
// does exactly that whenever it needs to re-authenticate.
type Exchanger struct {
	endpoint string
	client   *http.Client
}

// NewExchanger creates an Exchanger for the given endpoint URL. A nil client
// gets a 10s-timeout default.
func NewExchanger(endpoint string, client *http.Client) *Exchanger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Exchanger{endpoint: endpoint, client: client}
}

// Exchange performs one GET {endpoint}?channel=<name> with the bearer
// credential and returns the realtime credential from the response.
func (e *Exchanger) Exchange(ctx context.Context, channel, bearer string) (realtime.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.endpoint+"?channel="+url.QueryEscape(channel), nil)
	if err != nil {
		return "", &ExchangeError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", &ExchangeError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", &ExchangeError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &ExchangeError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if tr.Token == "" {
		return "", &ExchangeError{Err: fmt.Errorf("response carried no token")}
	}
	return realtime.Credential(tr.Token), nil
}
