package icecred

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pion/webrtc/v4"
)

const defaultProviderTimeout = 5 * time.Second

// Provider fetches managed TURN credentials from a hosted service that
// speaks the Metered-style API: a GET with an apiKey query parameter
// returning a JSON array of ICE server entries.
type Provider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewProvider(endpoint, apiKey string, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Provider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type providerEntry struct {
	URLs       stringOrStrings `json:"urls"`
	Username   string          `json:"username"`
	Credential string          `json:"credential"`
}

// Fetch returns the provider's current ICE server list.
func (p *Provider) Fetch(ctx context.Context) ([]webrtc.ICEServer, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse provider endpoint: %w", err)
	}
	if p.apiKey != "" {
		q := u.Query()
		q.Set("apiKey", p.apiKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch turn credentials: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("turn provider returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var entries []providerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode turn provider response: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for _, e := range entries {
		if len(e.URLs) == 0 {
			continue
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       e.URLs,
			Username:   e.Username,
			Credential: e.Credential,
		})
	}
	return servers, nil
}

// stringOrStrings accepts both "urls": "stun:..." and "urls": ["turn:..."].
type stringOrStrings []string

func (s *stringOrStrings) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}
