package sso

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStateStore is a PostgreSQL-backed StateStore. Consumption is a single
// conditional UPDATE, so the not-used-and-not-expired check and the used_at
// stamp happen in one statement.
type SQLStateStore struct {
	db *sql.DB
}

func NewSQLStateStore(db *sql.DB) (*SQLStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	store := &SQLStateStore{db: db}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure sso_auth_states table: %w", err)
	}
	return store, nil
}

func (s *SQLStateStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS sso_auth_states (
		state VARCHAR(64) PRIMARY KEY,
		nonce VARCHAR(64) NOT NULL,
		code_verifier VARCHAR(128),
		workspace_id VARCHAR(64) NOT NULL,
		config_id VARCHAR(64) NOT NULL,
		redirect_uri TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		used_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_sso_auth_states_expires ON sso_auth_states(expires_at);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLStateStore) Create(ctx context.Context, state *AuthState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sso_auth_states (
			state, nonce, code_verifier, workspace_id, config_id,
			redirect_uri, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		state.State, state.Nonce, nullString(state.CodeVerifier),
		state.WorkspaceID, state.ConfigID, nullString(state.RedirectURI),
		state.CreatedAt, state.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store auth state: %w", err)
	}
	return nil
}

func (s *SQLStateStore) Consume(ctx context.Context, token string) (*AuthState, error) {
	state := &AuthState{State: token}
	var codeVerifier, redirectURI sql.NullString
	var usedAt time.Time

	err := s.db.QueryRowContext(ctx, `
		UPDATE sso_auth_states
		SET used_at = NOW()
		WHERE state = $1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING nonce, code_verifier, workspace_id, config_id,
		          redirect_uri, created_at, expires_at, used_at`,
		token,
	).Scan(
		&state.Nonce, &codeVerifier, &state.WorkspaceID, &state.ConfigID,
		&redirectURI, &state.CreatedAt, &state.ExpiresAt, &usedAt,
	)
	if err == sql.ErrNoRows {
		return nil, s.classifyConsumeFailure(ctx, token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume auth state: %w", err)
	}

	state.CodeVerifier = codeVerifier.String
	state.RedirectURI = redirectURI.String
	state.UsedAt = &usedAt
	return state, nil
}

// classifyConsumeFailure runs after the atomic consume already failed; it
// only determines which StateError to report.
func (s *SQLStateStore) classifyConsumeFailure(ctx context.Context, token string) error {
	var usedAt sql.NullTime
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT used_at, expires_at FROM sso_auth_states WHERE state = $1`,
		token,
	).Scan(&usedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return NewStateError(CodeStateNotFound, "state %q not found", token)
	}
	if err != nil {
		return fmt.Errorf("failed to look up auth state: %w", err)
	}
	if usedAt.Valid {
		return NewStateError(CodeStateUsed, "state %q was already consumed", token)
	}
	return NewStateError(CodeStateExpired, "state %q expired at %s", token, expiresAt.Format(time.RFC3339))
}

func (s *SQLStateStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sso_auth_states WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired auth states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted auth states: %w", err)
	}
	return int(n), nil
}

func (s *SQLStateStore) Close() error { return nil }

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
