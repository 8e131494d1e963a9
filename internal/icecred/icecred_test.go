package icecred

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRESTSignerDeterministic(t *testing.T) {
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	g, err := newRESTSigner("secret", "watchparty", time.Hour, now)
	if err != nil {
		t.Fatalf("newRESTSigner: %v", err)
	}

	creds, err := g.sign("abc123")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	wantUser := "1700003600:watchparty:abc123"
	if creds.Username != wantUser {
		t.Fatalf("username: got %q, want %q", creds.Username, wantUser)
	}
	mac := hmac.New(sha1.New, []byte("secret"))
	mac.Write([]byte(wantUser))
	if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); creds.Credential != want {
		t.Fatalf("credential: got %q, want %q", creds.Credential, want)
	}
	if creds.ExpiresAt != 1700003600 {
		t.Fatalf("expiry: got %d", creds.ExpiresAt)
	}
}

func TestRESTSignerValidation(t *testing.T) {
	if _, err := newRESTSigner("", "p", time.Hour, nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := newRESTSigner("s", "a:b", time.Hour, nil); err == nil {
		t.Fatalf("expected error for colon in prefix")
	}
	if _, err := newRESTSigner("s", "p", 0, nil); err == nil {
		t.Fatalf("expected error for zero ttl")
	}

	g, err := newRESTSigner("s", "p", time.Hour, nil)
	if err != nil {
		t.Fatalf("newRESTSigner: %v", err)
	}
	if _, err := g.sign("with:colon"); err == nil {
		t.Fatalf("expected error for colon in session id")
	}
}

func TestRESTSignerMintUsesRandomSessions(t *testing.T) {
	g, err := newRESTSigner("s", "p", time.Hour, nil)
	if err != nil {
		t.Fatalf("newRESTSigner: %v", err)
	}
	a, err := g.mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	b, err := g.mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if a.Username == b.Username {
		t.Fatalf("expected distinct usernames, got %q twice", a.Username)
	}
}

func TestServersDefaultsToPublicSTUN(t *testing.T) {
	src := New(Config{})
	servers := src.Servers(context.Background())
	if len(servers) != 1 {
		t.Fatalf("servers: got %d entries", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("first url: got %q", servers[0].URLs[0])
	}
}

func TestServersStaticTURN(t *testing.T) {
	src := New(Config{
		TURNURLs:       []string{"turn:turn.example.com:3478"},
		TURNUsername:   "alice",
		TURNCredential: "hunter2",
	})
	servers := src.Servers(context.Background())
	if len(servers) != 2 {
		t.Fatalf("servers: got %d entries", len(servers))
	}
	turn := servers[1]
	if turn.Username != "alice" || turn.Credential != "hunter2" {
		t.Fatalf("turn entry: %+v", turn)
	}
}

func TestServersMintedTURNCredentials(t *testing.T) {
	src := New(Config{
		TURNURLs:       []string{"turn:turn.example.com:3478"},
		TURNRESTSecret: "shared",
	})
	servers := src.Servers(context.Background())
	if len(servers) != 2 {
		t.Fatalf("servers: got %d entries", len(servers))
	}
	turn := servers[1]
	parts := strings.SplitN(turn.Username, ":", 3)
	if len(parts) != 3 || parts[1] != "watchparty" {
		t.Fatalf("minted username: got %q", turn.Username)
	}
	if turn.Credential == "" {
		t.Fatalf("minted credential is empty")
	}
}

func TestServersProviderFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("apiKey"); got != "key123" {
			t.Errorf("apiKey query: got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"urls": "stun:stun.provider.example:3478"},
			{"urls": ["turn:turn.provider.example:443?transport=tcp"], "username": "u", "credential": "c"}
		]`))
	}))
	defer ts.Close()

	src := New(Config{Provider: NewProvider(ts.URL, "key123", time.Second)})
	servers := src.Servers(context.Background())
	if len(servers) != 3 {
		t.Fatalf("servers: got %d entries", len(servers))
	}
	if servers[2].Username != "u" || servers[2].Credential != "c" {
		t.Fatalf("provider turn entry: %+v", servers[2])
	}
}

func TestServersProviderFailureDegradesToSTUN(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	src := New(Config{Provider: NewProvider(ts.URL, "key", time.Second)})
	servers := src.Servers(context.Background())
	if len(servers) != 1 {
		t.Fatalf("servers: got %d entries, want STUN only", len(servers))
	}
}

func TestProviderMalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer ts.Close()

	p := NewProvider(ts.URL, "", time.Second)
	if _, err := p.Fetch(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}
