package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	stateKeyPrefix = "docusynth:sso:state:"

	// usedMarkerPrefix replaces a record's payload once consumed. Keeping
	// the key alive (at the original TTL) is what lets a replayed token be
	// reported as already-used rather than not-found.
	usedMarkerPrefix = "used:"
)

// RedisStateStore is a Redis-backed StateStore. Consumption is a single
// SET XX GET, so two concurrent callbacks racing on the same token cannot
// both observe an unused record.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) key(token string) string {
	return stateKeyPrefix + token
}

func (s *RedisStateStore) Create(ctx context.Context, state *AuthState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal auth state: %w", err)
	}

	// Keys live for twice the state TTL so a consume attempt between
	// expiry and 2x reports "expired" instead of "not found".
	ttl := state.ExpiresAt.Sub(time.Now().UTC()) + StateTTL
	ok, err := s.client.SetNX(ctx, s.key(state.State), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store auth state: %w", err)
	}
	if !ok {
		return fmt.Errorf("auth state %q already exists", state.State)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, token string) (*AuthState, error) {
	marker := usedMarkerPrefix + time.Now().UTC().Format(time.RFC3339Nano)
	prev, err := s.client.SetArgs(ctx, s.key(token), marker, redis.SetArgs{
		Mode:    "XX",
		Get:     true,
		KeepTTL: true,
	}).Result()
	if err == redis.Nil {
		return nil, NewStateError(CodeStateNotFound, "state %q not found", token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume auth state: %w", err)
	}

	if strings.HasPrefix(prev, usedMarkerPrefix) {
		return nil, NewStateError(CodeStateUsed, "state %q was already consumed", token)
	}

	var state AuthState
	if err := json.Unmarshal([]byte(prev), &state); err != nil {
		return nil, fmt.Errorf("corrupt auth state record: %w", err)
	}
	now := time.Now().UTC()
	if now.After(state.ExpiresAt) {
		return nil, NewStateError(CodeStateExpired, "state %q expired at %s", token, state.ExpiresAt.Format(time.RFC3339))
	}

	state.UsedAt = &now
	return &state, nil
}

// DeleteExpired is a no-op for Redis; key TTLs handle cleanup.
func (s *RedisStateStore) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
