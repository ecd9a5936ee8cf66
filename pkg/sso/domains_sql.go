package sso

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// breach, used to turn the domain uniqueness race into CodeDomainTaken.
const uniqueViolation = "23505"

// SQLRoutingStore is a PostgreSQL-backed RoutingStore. Domain uniqueness
// rides on a unique index, so concurrent claims resolve in the database.
type SQLRoutingStore struct {
	db *sql.DB
}

func NewSQLRoutingStore(db *sql.DB) (*SQLRoutingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	store := &SQLRoutingStore{db: db}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure sso_domain_routings table: %w", err)
	}
	return store, nil
}

func (s *SQLRoutingStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS sso_domain_routings (
		id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		config_id VARCHAR(64) NOT NULL,
		domain VARCHAR(255) NOT NULL,
		verification_token VARCHAR(64) NOT NULL,
		verification_method VARCHAR(20),
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sso_domain_routings_domain ON sso_domain_routings(domain);
	CREATE INDEX IF NOT EXISTS idx_sso_domain_routings_workspace ON sso_domain_routings(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_sso_domain_routings_config ON sso_domain_routings(config_id);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLRoutingStore) Create(ctx context.Context, routing *DomainRouting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sso_domain_routings (
			id, workspace_id, config_id, domain, verification_token, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		routing.ID, routing.WorkspaceID, routing.ConfigID,
		strings.ToLower(routing.Domain), routing.VerificationToken, routing.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return NewConfigurationError(CodeDomainTaken, "domain %q is already routed", routing.Domain)
		}
		return fmt.Errorf("failed to create domain routing: %w", err)
	}
	return nil
}

func (s *SQLRoutingStore) GetByID(ctx context.Context, id string) (*DomainRouting, error) {
	return s.get(ctx, "id = $1", id)
}

func (s *SQLRoutingStore) GetByDomain(ctx context.Context, domain string) (*DomainRouting, error) {
	return s.get(ctx, "domain = $1", strings.ToLower(domain))
}

func (s *SQLRoutingStore) get(ctx context.Context, where string, arg interface{}) (*DomainRouting, error) {
	routing := &DomainRouting{}
	var method sql.NullString
	var verifiedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, config_id, domain, verification_token,
		       verification_method, verified, verified_at, created_at
		FROM sso_domain_routings WHERE `+where,
		arg,
	).Scan(
		&routing.ID, &routing.WorkspaceID, &routing.ConfigID, &routing.Domain,
		&routing.VerificationToken, &method, &routing.Verified, &verifiedAt,
		&routing.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, NewConfigurationError(CodeDomainNotFound, "routing not found for %v", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load domain routing: %w", err)
	}

	routing.VerificationMethod = method.String
	if verifiedAt.Valid {
		routing.VerifiedAt = &verifiedAt.Time
	}
	return routing, nil
}

func (s *SQLRoutingStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*DomainRouting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, config_id, domain, verification_token,
		       verification_method, verified, verified_at, created_at
		FROM sso_domain_routings
		WHERE workspace_id = $1
		ORDER BY created_at`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list domain routings: %w", err)
	}
	defer rows.Close()

	var routings []*DomainRouting
	for rows.Next() {
		routing := &DomainRouting{}
		var method sql.NullString
		var verifiedAt sql.NullTime
		err := rows.Scan(
			&routing.ID, &routing.WorkspaceID, &routing.ConfigID, &routing.Domain,
			&routing.VerificationToken, &method, &routing.Verified, &verifiedAt,
			&routing.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan domain routing: %w", err)
		}
		routing.VerificationMethod = method.String
		if verifiedAt.Valid {
			routing.VerifiedAt = &verifiedAt.Time
		}
		routings = append(routings, routing)
	}
	return routings, rows.Err()
}

func (s *SQLRoutingStore) MarkVerified(ctx context.Context, id, method string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sso_domain_routings
		SET verified = TRUE, verified_at = NOW(), verification_method = $2
		WHERE id = $1`,
		id, method,
	)
	if err != nil {
		return fmt.Errorf("failed to mark routing verified: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewConfigurationError(CodeDomainNotFound, "routing %q not found", id)
	}
	return nil
}

func (s *SQLRoutingStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sso_domain_routings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete domain routing: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewConfigurationError(CodeDomainNotFound, "routing %q not found", id)
	}
	return nil
}

func (s *SQLRoutingStore) DeleteByConfig(ctx context.Context, configID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sso_domain_routings WHERE config_id = $1`, configID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete domain routings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted domain routings: %w", err)
	}
	return int(n), nil
}

func (s *SQLRoutingStore) DeleteStaleUnverified(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sso_domain_routings WHERE verified = FALSE AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale domain routings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted domain routings: %w", err)
	}
	return int(n), nil
}
