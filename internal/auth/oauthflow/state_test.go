package oauthflow

import (
	"testing"
	"time"

	"github.com/pysugar/cloud-nexus/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatesConsumeOnce(t *testing.T) {
	s := NewStates(0)
	state := s.Issue("u1", provider.Dropbox)
	assert.Len(t, state, 32)

	userID, err := s.Consume(state, provider.Dropbox)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = s.Consume(state, provider.Dropbox)
	assert.ErrorIs(t, err, provider.ErrValidation)
}

func TestStatesRejects(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		advance time.Duration
		p       provider.Type
	}{
		{name: "expired", advance: DefaultTTL + time.Second, p: provider.Drive},
		{name: "provider mismatch", p: provider.Graph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := now
			s := NewStates(0)
			s.SetClock(func() time.Time { return clock })
			state := s.Issue("u1", provider.Drive)
			clock = clock.Add(tt.advance)
			_, err := s.Consume(state, tt.p)
			assert.ErrorIs(t, err, provider.ErrValidation)
		})
	}

	_, err := NewStates(0).Consume("unknown", provider.Drive)
	assert.ErrorIs(t, err, provider.ErrValidation)
}

func TestStatesPrunesExpired(t *testing.T) {
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	s := NewStates(time.Minute)
	s.SetClock(func() time.Time { return clock })
	s.Issue("u1", provider.Drive)
	clock = clock.Add(2 * time.Minute)
	s.Issue("u2", provider.Drive)
	assert.Len(t, s.pending, 1)
}
