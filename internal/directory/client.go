package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/npcchatter/campaign-chat/internal/identity"
)

// Client talks to the campaign directory API with the user's bearer
// credential. List falls back to the local cache when the server is
// unreachable; everything else fails loudly.
type Client struct {
	baseURL     string
	credentials identity.CredentialFunc
	cache       *Cache
	http        *http.Client
}

// NewClient creates a directory client. cache may be nil to disable the
// degrade path.
func NewClient(baseURL string, credentials identity.CredentialFunc, cache *Cache) *Client {
	return &Client{
		baseURL:     baseURL,
		credentials: credentials,
		cache:       cache,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

// List fetches the campaign list. On success the cache is refreshed; if the
// server is unreachable the cached list is served instead.
func (c *Client) List(ctx context.Context) ([]Campaign, error) {
	var campaigns []Campaign
	err := c.do(ctx, http.MethodGet, "/api/campaigns", nil, &campaigns)
	if err != nil {
		if c.cache != nil {
			cached, cacheErr := c.cache.Load()
			if cacheErr == nil {
				log.Warn().Err(err).Msg("directory unreachable, serving cached campaigns")
				return cached, nil
			}
		}
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Save(campaigns); err != nil {
			log.Debug().Err(err).Msg("campaign cache save failed")
		}
	}
	return campaigns, nil
}

// Create registers a new campaign.
func (c *Client) Create(ctx context.Context, name, description, avatar string) (*Campaign, error) {
	body := map[string]string{"name": name, "description": description, "avatar": avatar}
	var out Campaign
	if err := c.do(ctx, http.MethodPost, "/api/campaigns", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Join records the user's membership in a campaign.
func (c *Client) Join(ctx context.Context, campaignID string) error {
	return c.do(ctx, http.MethodPost, "/api/campaigns/"+campaignID+"/join", nil, nil)
}

// Members lists a campaign's membership.
func (c *Client) Members(ctx context.Context, campaignID string) ([]Member, error) {
	var out []Member
	if err := c.do(ctx, http.MethodGet, "/api/campaigns/"+campaignID+"/members", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("directory: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("directory: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	bearer, err := c.credentials(ctx)
	if err != nil {
		return fmt.Errorf("directory: credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("directory: %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("directory: decode response: %w", err)
	}
	return nil
}
