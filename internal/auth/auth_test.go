package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npcchatter/campaign-chat/internal/realtime"
)

func TestBearerRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", 0)
	verifier := NewVerifier("test-secret")

	token, err := issuer.IssueBearer("u1", "Ayla", "https://cdn.example/ayla.png")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := verifier.VerifyBearer(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("expected subject u1, got %q", claims.Subject)
	}
	if claims.Name != "Ayla" {
		t.Errorf("expected name Ayla, got %q", claims.Name)
	}
	if claims.Avatar != "https://cdn.example/ayla.png" {
		t.Errorf("unexpected avatar %q", claims.Avatar)
	}
}

func TestBearerWrongSecretRejected(t *testing.T) {
	issuer := NewIssuer("secret-a", 0)
	verifier := NewVerifier("secret-b")

	token, err := issuer.IssueBearer("u1", "Ayla", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := verifier.VerifyBearer(token); err == nil {
		t.Fatal("expected verification to fail with the wrong secret")
	}
}

func TestBearerGarbageRejected(t *testing.T) {
	verifier := NewVerifier("test-secret")
	if _, err := verifier.VerifyBearer("not-a-jwt"); err == nil {
		t.Fatal("expected garbage token to be rejected")
	}
}

func TestRealtimeRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute)
	verifier := NewVerifier("test-secret")

	token, err := issuer.IssueRealtime("u1.ab12cd34", "campaign:42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clientID, capability, err := verifier.VerifyRealtime(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if clientID != "u1.ab12cd34" {
		t.Errorf("expected client id u1.ab12cd34, got %q", clientID)
	}
	for _, op := range AllChannelOps {
		if !capability.Allows("campaign:42", op) {
			t.Errorf("expected %s on campaign:42", op)
		}
	}
	if capability.Allows("campaign:7", realtime.OpSubscribe) {
		t.Error("capability must be scoped to the granted channel only")
	}
}

func TestRealtimeRejectsNonCampaignChannel(t *testing.T) {
	issuer := NewIssuer("test-secret", 0)
	if _, err := issuer.IssueRealtime("u1", "admin:backdoor"); err == nil {
		t.Fatal("expected non-campaign channel grant to be refused")
	}
}

func TestRealtimeTokenIsNotABearer(t *testing.T) {
	issuer := NewIssuer("test-secret", 0)
	verifier := NewVerifier("test-secret")

	token, err := issuer.IssueRealtime("u1.ab", "campaign:42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// A realtime token parses as a bearer (same signing scheme) but carries
	// the client id, not the user id, so callers must not mix them up.
	claims, err := verifier.VerifyBearer(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "u1.ab" {
		t.Errorf("expected subject u1.ab, got %q", claims.Subject)
	}
}

// ---------------------------------------------------------------------------
// Exchanger
// ---------------------------------------------------------------------------

func TestExchangerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("channel"); got != "campaign:42" {
			t.Errorf("expected channel query campaign:42, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer my-bearer" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"rt-token"}`))
	}))
	defer srv.Close()

	ex := NewExchanger(srv.URL, nil)
	cred, err := ex.Exchange(context.Background(), "campaign:42", "my-bearer")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if cred != realtime.Credential("rt-token") {
		t.Errorf("expected rt-token, got %q", cred)
	}
}

func TestExchangerNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	ex := NewExchanger(srv.URL, nil)
	_, err := ex.Exchange(context.Background(), "campaign:42", "my-bearer")
	if err == nil {
		t.Fatal("expected error on 403")
	}

	var exErr *ExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExchangeError, got %T", err)
	}
	if exErr.Status != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", exErr.Status)
	}
}

func TestExchangerEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ex := NewExchanger(srv.URL, nil)
	if _, err := ex.Exchange(context.Background(), "campaign:42", "my-bearer"); err == nil {
		t.Fatal("expected error when response carries no token")
	}
}

func TestExchangerUnreachableEndpoint(t *testing.T) {
	ex := NewExchanger("http://127.0.0.1:1", &http.Client{Timeout: time.Second})
	_, err := ex.Exchange(context.Background(), "campaign:42", "my-bearer")
	if err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}

	var exErr *ExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExchangeError, got %T", err)
	}
	if exErr.Status != 0 {
		t.Errorf("expected status 0 for transport failure, got %d", exErr.Status)
	}
}
