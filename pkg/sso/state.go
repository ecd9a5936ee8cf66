package sso

import (
	"context"
	"sync"
	"time"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/cryptoutil"
)

// StateStore issues and consumes single-use auth state records.
//
// Consume must be atomic: two concurrent callbacks presenting the same
// state token must not both succeed. Implementations return StateErrors
// that distinguish not-found, already-used, and expired.
type StateStore interface {
	// Create persists a fresh state record.
	Create(ctx context.Context, state *AuthState) error

	// Consume looks up a state token and, in the same atomic operation,
	// stamps it used. The stored record is returned on the one successful
	// call; every later call fails with CodeStateUsed.
	Consume(ctx context.Context, token string) (*AuthState, error)

	// DeleteExpired removes records past their expiry and returns how many
	// were dropped.
	DeleteExpired(ctx context.Context) (int, error)

	Close() error
}

// NewAuthState builds a state record with fresh random tokens. A PKCE
// verifier is generated only when withPKCE is set (OIDC configurations).
func NewAuthState(workspaceID, configID, redirectURI string, withPKCE bool) (*AuthState, string, error) {
	token, err := cryptoutil.SecureRandomString(32)
	if err != nil {
		return nil, "", err
	}
	nonce, err := cryptoutil.SecureRandomString(32)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	state := &AuthState{
		State:       token,
		Nonce:       nonce,
		WorkspaceID: workspaceID,
		ConfigID:    configID,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(StateTTL),
	}

	var challenge string
	if withPKCE {
		verifier, ch, err := cryptoutil.GeneratePKCE()
		if err != nil {
			return nil, "", err
		}
		state.CodeVerifier = verifier
		challenge = ch
	}
	return state, challenge, nil
}

// MemoryStateStore is an in-process StateStore for tests and single-node
// deployments.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*AuthState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*AuthState)}
}

func (s *MemoryStateStore) Create(ctx context.Context, state *AuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *state
	s.states[state.State] = &stored
	return nil
}

func (s *MemoryStateStore) Consume(ctx context.Context, token string) (*AuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[token]
	if !ok {
		return nil, NewStateError(CodeStateNotFound, "state %q not found", token)
	}
	if state.UsedAt != nil {
		return nil, NewStateError(CodeStateUsed, "state %q was already consumed", token)
	}
	now := time.Now().UTC()
	if now.After(state.ExpiresAt) {
		return nil, NewStateError(CodeStateExpired, "state %q expired at %s", token, state.ExpiresAt.Format(time.RFC3339))
	}

	state.UsedAt = &now
	out := *state
	return &out, nil
}

func (s *MemoryStateStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	deleted := 0
	for token, state := range s.states {
		if now.After(state.ExpiresAt) {
			delete(s.states, token)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStateStore) Close() error { return nil }
