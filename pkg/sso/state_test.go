package sso

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthState(t *testing.T) {
	state, challenge, err := NewAuthState("ws-1", "cfg-1", "https://app.docusynth.io/docs", false)
	require.NoError(t, err)

	assert.NotEmpty(t, state.State)
	assert.NotEmpty(t, state.Nonce)
	assert.NotEqual(t, state.State, state.Nonce)
	assert.Empty(t, state.CodeVerifier)
	assert.Empty(t, challenge)
	assert.Equal(t, "ws-1", state.WorkspaceID)
	assert.Equal(t, "cfg-1", state.ConfigID)
	assert.WithinDuration(t, state.CreatedAt.Add(StateTTL), state.ExpiresAt, time.Second)
}

func TestNewAuthStateWithPKCE(t *testing.T) {
	state, challenge, err := NewAuthState("ws-1", "cfg-1", "", true)
	require.NoError(t, err)
	assert.NotEmpty(t, state.CodeVerifier)
	assert.NotEmpty(t, challenge)
	assert.NotEqual(t, state.CodeVerifier, challenge)
}

func TestNewAuthStateUniqueTokens(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		state, _, err := NewAuthState("ws-1", "cfg-1", "", false)
		require.NoError(t, err)
		assert.False(t, seen[state.State], "state token repeated")
		seen[state.State] = true
	}
}

func TestMemoryStateStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	state, _, err := NewAuthState("ws-1", "cfg-1", "", false)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, state))

	got, err := store.Consume(ctx, state.State)
	require.NoError(t, err)
	assert.Equal(t, state.State, got.State)
	assert.Equal(t, state.Nonce, got.Nonce)
	require.NotNil(t, got.UsedAt)

	// The second consume of the same token is a replay.
	_, err = store.Consume(ctx, state.State)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))
	assert.Equal(t, CodeStateUsed, CodeOf(err))
}

func TestMemoryStateStoreNotFound(t *testing.T) {
	store := NewMemoryStateStore()
	_, err := store.Consume(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, CodeStateNotFound, CodeOf(err))
}

func TestMemoryStateStoreExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	state, _, err := NewAuthState("ws-1", "cfg-1", "", false)
	require.NoError(t, err)
	state.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Create(ctx, state))

	_, err = store.Consume(ctx, state.State)
	require.Error(t, err)
	assert.Equal(t, CodeStateExpired, CodeOf(err))
}

func TestMemoryStateStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	live, _, err := NewAuthState("ws-1", "cfg-1", "", false)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, live))

	dead, _, err := NewAuthState("ws-1", "cfg-1", "", false)
	require.NoError(t, err)
	dead.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Create(ctx, dead))

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Consume(ctx, live.State)
	assert.NoError(t, err)
}

func newTestRedisStore(t *testing.T) *RedisStateStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStateStore(client)
}

func TestRedisStateStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	state, _, err := NewAuthState("ws-1", "cfg-1", "https://app.docusynth.io", true)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, state))

	got, err := store.Consume(ctx, state.State)
	require.NoError(t, err)
	assert.Equal(t, state.Nonce, got.Nonce)
	assert.Equal(t, state.CodeVerifier, got.CodeVerifier)
	assert.Equal(t, "https://app.docusynth.io", got.RedirectURI)

	_, err = store.Consume(ctx, state.State)
	require.Error(t, err)
	assert.Equal(t, CodeStateUsed, CodeOf(err))
}

func TestRedisStateStoreNotFound(t *testing.T) {
	store := newTestRedisStore(t)
	_, err := store.Consume(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, CodeStateNotFound, CodeOf(err))
}

func TestRedisStateStoreExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	// The key outlives the logical expiry so the failure reads as expired,
	// not not-found.
	state, _, err := NewAuthState("ws-1", "cfg-1", "", false)
	require.NoError(t, err)
	state.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Create(ctx, state))

	_, err = store.Consume(ctx, state.State)
	require.Error(t, err)
	assert.Equal(t, CodeStateExpired, CodeOf(err))
}

func TestRedisStateStoreDuplicateCreate(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	state, _, err := NewAuthState("ws-1", "cfg-1", "", false)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, state))
	assert.Error(t, store.Create(ctx, state))
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestSQLStateStore(t *testing.T) (*SQLStateStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sso_auth_states").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewSQLStateStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestSQLStateStoreCreate(t *testing.T) {
	store, mock := newTestSQLStateStore(t)

	state, _, err := NewAuthState("ws-1", "cfg-1", "", true)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO sso_auth_states").
		WithArgs(state.State, state.Nonce, sqlmock.AnyArg(), "ws-1", "cfg-1",
			sqlmock.AnyArg(), state.CreatedAt, state.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), state))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStateStoreConsume(t *testing.T) {
	store, mock := newTestSQLStateStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"nonce", "code_verifier", "workspace_id", "config_id",
		"redirect_uri", "created_at", "expires_at", "used_at",
	}).AddRow("nonce-1", "verifier-1", "ws-1", "cfg-1", "https://app.docusynth.io", now, now.Add(StateTTL), now)

	mock.ExpectQuery("UPDATE sso_auth_states").
		WithArgs("token-1").
		WillReturnRows(rows)

	state, err := store.Consume(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", state.Nonce)
	assert.Equal(t, "verifier-1", state.CodeVerifier)
	assert.Equal(t, "ws-1", state.WorkspaceID)
	require.NotNil(t, state.UsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStateStoreConsumeClassifiesFailure(t *testing.T) {
	tests := []struct {
		name     string
		rows     func() *sqlmock.Rows
		noRow    bool
		wantCode string
	}{
		{
			name:     "not found",
			noRow:    true,
			wantCode: CodeStateNotFound,
		},
		{
			name: "already used",
			rows: func() *sqlmock.Rows {
				return sqlmock.NewRows([]string{"used_at", "expires_at"}).
					AddRow(time.Now().UTC(), time.Now().UTC().Add(time.Minute))
			},
			wantCode: CodeStateUsed,
		},
		{
			name: "expired",
			rows: func() *sqlmock.Rows {
				return sqlmock.NewRows([]string{"used_at", "expires_at"}).
					AddRow(nil, time.Now().UTC().Add(-time.Minute))
			},
			wantCode: CodeStateExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newTestSQLStateStore(t)

			mock.ExpectQuery("UPDATE sso_auth_states").
				WithArgs("token-1").
				WillReturnError(sql.ErrNoRows)
			if tt.noRow {
				mock.ExpectQuery("SELECT used_at, expires_at FROM sso_auth_states").
					WithArgs("token-1").
					WillReturnError(sql.ErrNoRows)
			} else {
				mock.ExpectQuery("SELECT used_at, expires_at FROM sso_auth_states").
					WithArgs("token-1").
					WillReturnRows(tt.rows())
			}

			_, err := store.Consume(context.Background(), "token-1")
			require.Error(t, err)
			assert.Equal(t, KindState, KindOf(err))
			assert.Equal(t, tt.wantCode, CodeOf(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStateStoreDeleteExpired(t *testing.T) {
	store, mock := newTestSQLStateStore(t)

	mock.ExpectExec("DELETE FROM sso_auth_states WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStateStoreDeleteExpiredCountError(t *testing.T) {
	store, mock := newTestSQLStateStore(t)

	mock.ExpectExec("DELETE FROM sso_auth_states WHERE expires_at").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected unsupported")))

	_, err := store.DeleteExpired(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows affected unsupported")
}
