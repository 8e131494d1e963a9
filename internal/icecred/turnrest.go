package icecred

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ephemeral TURN credentials in the coturn TURN REST scheme:
//
//	username   = <unix_expiry>:<prefix>:<session>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// Expiry is now_utc_unix + ttl. See
// https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest.
type restCredentials struct {
	Username   string
	Credential string
	ExpiresAt  int64
}

type restSigner struct {
	secret []byte
	ttl    time.Duration
	prefix string

	now       func() time.Time
	sessionID func() (string, error)
}

func newRESTSigner(secret, prefix string, ttl time.Duration, now func() time.Time) (*restSigner, error) {
	if secret == "" {
		return nil, errors.New("shared secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if prefix == "" {
		return nil, errors.New("username prefix is required")
	}
	if strings.ContainsRune(prefix, ':') {
		return nil, errors.New("username prefix must not contain ':'")
	}
	if now == nil {
		now = time.Now
	}
	return &restSigner{
		secret:    []byte(secret),
		ttl:       ttl,
		prefix:    prefix,
		now:       now,
		sessionID: randomSessionID,
	}, nil
}

// mint issues credentials for a fresh random session.
func (g *restSigner) mint() (restCredentials, error) {
	session, err := g.sessionID()
	if err != nil {
		return restCredentials{}, err
	}
	return g.sign(session)
}

func (g *restSigner) sign(session string) (restCredentials, error) {
	if session == "" || strings.ContainsRune(session, ':') {
		return restCredentials{}, errors.New("invalid session id")
	}
	expiry := g.now().UTC().Unix() + int64(g.ttl/time.Second)
	username := fmt.Sprintf("%d:%s:%s", expiry, g.prefix, session)

	mac := hmac.New(sha1.New, g.secret)
	_, _ = mac.Write([]byte(username))
	return restCredentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiresAt:  expiry,
	}, nil
}

func randomSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
