// Package icecred assembles the ICE server list handed to browser clients
// so their peer connections can traverse NATs. STUN servers are always
// present; TURN entries are added from static configuration, from a hosted
// provider, or minted on the fly with TURN REST credentials.
package icecred

import (
	"context"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"
)

// Public STUN used when nothing else is configured. Always listed first so
// clients try reflexive candidates before relays.
var defaultSTUNURLs = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type Config struct {
	// STUNURLs overrides the default public STUN servers.
	STUNURLs []string

	// Static extra servers, typically parsed from ICE_SERVERS_JSON.
	Static []webrtc.ICEServer

	// Static TURN configuration. Username/Credential are ignored when a
	// TURN REST shared secret is set.
	TURNURLs       []string
	TURNUsername   string
	TURNCredential string

	// TURN REST ephemeral credentials for the urls in TURNURLs.
	TURNRESTSecret         string
	TURNRESTTTL            time.Duration
	TURNRESTUsernamePrefix string

	// Optional hosted credential provider.
	Provider *Provider

	Logger *slog.Logger
}

// Source produces ICE server lists for clients. All failure modes degrade
// to a shorter list; callers always get at least the STUN entries.
type Source struct {
	stunURLs []string
	static   []webrtc.ICEServer

	turnURLs       []string
	turnUsername   string
	turnCredential string

	signer   *restSigner
	provider *Provider
	log      *slog.Logger
}

func New(cfg Config) *Source {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	stun := cfg.STUNURLs
	if len(stun) == 0 {
		stun = defaultSTUNURLs
	}

	s := &Source{
		stunURLs:       stun,
		static:         cfg.Static,
		turnURLs:       cfg.TURNURLs,
		turnUsername:   cfg.TURNUsername,
		turnCredential: cfg.TURNCredential,
		provider:       cfg.Provider,
		log:            cfg.Logger,
	}

	if cfg.TURNRESTSecret != "" && len(cfg.TURNURLs) > 0 {
		ttl := cfg.TURNRESTTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		prefix := cfg.TURNRESTUsernamePrefix
		if prefix == "" {
			prefix = "watchparty"
		}
		signer, err := newRESTSigner(cfg.TURNRESTSecret, prefix, ttl, nil)
		if err != nil {
			cfg.Logger.Error("invalid turn rest configuration", "err", err)
		} else {
			s.signer = signer
		}
	}
	return s
}

// Servers returns the ICE server list for one client request.
func (s *Source) Servers(ctx context.Context) []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: append([]string(nil), s.stunURLs...)}}
	servers = append(servers, s.static...)

	if len(s.turnURLs) > 0 {
		if turn, ok := s.turnServer(); ok {
			servers = append(servers, turn)
		}
	}

	if s.provider != nil {
		fetched, err := s.provider.Fetch(ctx)
		if err != nil {
			// Clients still get STUN; peers on the same network can
			// connect without a relay.
			s.log.Warn("turn provider unavailable", "err", err)
		} else {
			servers = append(servers, fetched...)
		}
	}
	return servers
}

func (s *Source) turnServer() (webrtc.ICEServer, bool) {
	if s.signer != nil {
		creds, err := s.signer.mint()
		if err != nil {
			s.log.Error("failed to mint turn credentials", "err", err)
			return webrtc.ICEServer{}, false
		}
		return webrtc.ICEServer{
			URLs:       append([]string(nil), s.turnURLs...),
			Username:   creds.Username,
			Credential: creds.Credential,
		}, true
	}
	if s.turnUsername == "" && s.turnCredential == "" {
		return webrtc.ICEServer{}, false
	}
	return webrtc.ICEServer{
		URLs:       append([]string(nil), s.turnURLs...),
		Username:   s.turnUsername,
		Credential: s.turnCredential,
	}, true
}
