// Package oauthflow tracks the CSRF state of in-flight OAuth consent
// redirects, binding each state to the user and provider that started it.
package oauthflow

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pysugar/cloud-nexus/internal/provider"
)

// DefaultTTL bounds how long a user may take on the consent page.
const DefaultTTL = 10 * time.Minute

type pending struct {
	userID   string
	provider provider.Type
	expires  time.Time
}

// States is an in-memory store of issued state tokens. Each token can be
// consumed once.
type States struct {
	mu      sync.Mutex
	pending map[string]pending
	ttl     time.Duration
	now     func() time.Time
}

// NewStates creates a store; ttl <= 0 selects DefaultTTL.
func NewStates(ttl time.Duration) *States {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &States{pending: make(map[string]pending), ttl: ttl, now: time.Now}
}

// SetClock overrides the time source (tests).
func (s *States) SetClock(now func() time.Time) {
	s.now = now
}

// Issue returns a fresh state token for userID's consent flow with p.
func (s *States) Issue(userID string, p provider.Type) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.pending {
		if now.After(v.expires) {
			delete(s.pending, k)
		}
	}
	s.pending[state] = pending{userID: userID, provider: p, expires: now.Add(s.ttl)}
	return state
}

// Consume validates state for provider p and returns the user that issued
// it. The token is removed whether or not it matches.
func (s *States) Consume(state string, p provider.Type) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[state]
	delete(s.pending, state)
	if !ok || s.now().After(entry.expires) || entry.provider != p {
		return "", &provider.Error{Op: "oauth callback", Provider: p, Message: "invalid or expired state token", Err: provider.ErrValidation}
	}
	return entry.userID, nil
}
