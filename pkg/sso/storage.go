package sso

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ConfigStore persists SSO configurations.
type ConfigStore interface {
	Create(ctx context.Context, cfg *Configuration) error
	Get(ctx context.Context, id string) (*Configuration, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Configuration, error)
	Update(ctx context.Context, cfg *Configuration) error
	Delete(ctx context.Context, id string) error
}

// SQLConfigStore is a PostgreSQL-backed ConfigStore. Provider settings,
// mapping, and rules are stored as JSONB blobs; the flags the routing and
// login paths filter on are real columns.
type SQLConfigStore struct {
	db *sql.DB
}

func NewSQLConfigStore(db *sql.DB) (*SQLConfigStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	store := &SQLConfigStore{db: db}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure sso_configurations table: %w", err)
	}
	return store, nil
}

func (s *SQLConfigStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS sso_configurations (
		id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		provider VARCHAR(10) NOT NULL,
		saml_settings JSONB,
		oidc_settings JSONB,
		mapping JSONB NOT NULL,
		group_roles JSONB,
		allowed_domains JSONB,
		blocked_domains JSONB,
		enforce_sso BOOLEAN NOT NULL DEFAULT FALSE,
		allow_bypass_for_owner BOOLEAN NOT NULL DEFAULT FALSE,
		jit_provisioning BOOLEAN NOT NULL DEFAULT FALSE,
		jit_default_role VARCHAR(20),
		enabled BOOLEAN NOT NULL DEFAULT FALSE,
		test_mode BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sso_configurations_workspace ON sso_configurations(workspace_id);
	`
	_, err := s.db.Exec(query)
	return err
}

type configBlobs struct {
	saml, oidc, mapping, groupRoles, allowed, blocked []byte
}

func marshalBlobs(cfg *Configuration) (*configBlobs, error) {
	blobs := &configBlobs{}
	var err error

	if cfg.SAML != nil {
		if blobs.saml, err = json.Marshal(cfg.SAML); err != nil {
			return nil, fmt.Errorf("failed to marshal saml settings: %w", err)
		}
	}
	if cfg.OIDC != nil {
		if blobs.oidc, err = json.Marshal(cfg.OIDC); err != nil {
			return nil, fmt.Errorf("failed to marshal oidc settings: %w", err)
		}
	}
	if blobs.mapping, err = json.Marshal(cfg.Mapping); err != nil {
		return nil, fmt.Errorf("failed to marshal attribute mapping: %w", err)
	}
	if len(cfg.GroupRoles) > 0 {
		if blobs.groupRoles, err = json.Marshal(cfg.GroupRoles); err != nil {
			return nil, fmt.Errorf("failed to marshal group roles: %w", err)
		}
	}
	if len(cfg.AllowedDomains) > 0 {
		if blobs.allowed, err = json.Marshal(cfg.AllowedDomains); err != nil {
			return nil, fmt.Errorf("failed to marshal allowed domains: %w", err)
		}
	}
	if len(cfg.BlockedDomains) > 0 {
		if blobs.blocked, err = json.Marshal(cfg.BlockedDomains); err != nil {
			return nil, fmt.Errorf("failed to marshal blocked domains: %w", err)
		}
	}
	return blobs, nil
}

func (s *SQLConfigStore) Create(ctx context.Context, cfg *Configuration) error {
	blobs, err := marshalBlobs(cfg)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sso_configurations (
			id, workspace_id, name, provider, saml_settings, oidc_settings,
			mapping, group_roles, allowed_domains, blocked_domains,
			enforce_sso, allow_bypass_for_owner, jit_provisioning,
			jit_default_role, enabled, test_mode, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		cfg.ID, cfg.WorkspaceID, cfg.Name, cfg.Provider,
		blobs.saml, blobs.oidc, blobs.mapping, blobs.groupRoles,
		blobs.allowed, blobs.blocked,
		cfg.EnforceSSO, cfg.AllowBypassForOwner, cfg.JITProvisioning,
		nullString(cfg.JITDefaultRole), cfg.Enabled, cfg.TestMode,
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sso configuration: %w", err)
	}
	return nil
}

const configColumns = `id, workspace_id, name, provider, saml_settings, oidc_settings,
	mapping, group_roles, allowed_domains, blocked_domains,
	enforce_sso, allow_bypass_for_owner, jit_provisioning,
	jit_default_role, enabled, test_mode, created_at, updated_at`

func (s *SQLConfigStore) Get(ctx context.Context, id string) (*Configuration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM sso_configurations WHERE id = $1`, id)
	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, NewConfigurationError(CodeConfigNotFound, "configuration %q not found", id)
	}
	return cfg, err
}

func (s *SQLConfigStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*Configuration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM sso_configurations WHERE workspace_id = $1 ORDER BY created_at`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sso configurations: %w", err)
	}
	defer rows.Close()

	var configs []*Configuration
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *SQLConfigStore) Update(ctx context.Context, cfg *Configuration) error {
	blobs, err := marshalBlobs(cfg)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sso_configurations SET
			name = $2, provider = $3, saml_settings = $4, oidc_settings = $5,
			mapping = $6, group_roles = $7, allowed_domains = $8,
			blocked_domains = $9, enforce_sso = $10,
			allow_bypass_for_owner = $11, jit_provisioning = $12,
			jit_default_role = $13, enabled = $14, test_mode = $15,
			updated_at = NOW()
		WHERE id = $1`,
		cfg.ID, cfg.Name, cfg.Provider, blobs.saml, blobs.oidc,
		blobs.mapping, blobs.groupRoles, blobs.allowed, blobs.blocked,
		cfg.EnforceSSO, cfg.AllowBypassForOwner, cfg.JITProvisioning,
		nullString(cfg.JITDefaultRole), cfg.Enabled, cfg.TestMode,
	)
	if err != nil {
		return fmt.Errorf("failed to update sso configuration: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewConfigurationError(CodeConfigNotFound, "configuration %q not found", cfg.ID)
	}
	return nil
}

func (s *SQLConfigStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sso_configurations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sso configuration: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewConfigurationError(CodeConfigNotFound, "configuration %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (*Configuration, error) {
	cfg := &Configuration{}
	var (
		samlJSON, oidcJSON, mappingJSON     []byte
		groupRolesJSON, allowedJSON         []byte
		blockedJSON                         []byte
		jitDefaultRole                      sql.NullString
	)

	err := row.Scan(
		&cfg.ID, &cfg.WorkspaceID, &cfg.Name, &cfg.Provider,
		&samlJSON, &oidcJSON, &mappingJSON, &groupRolesJSON,
		&allowedJSON, &blockedJSON,
		&cfg.EnforceSSO, &cfg.AllowBypassForOwner, &cfg.JITProvisioning,
		&jitDefaultRole, &cfg.Enabled, &cfg.TestMode,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.JITDefaultRole = jitDefaultRole.String

	if len(samlJSON) > 0 {
		cfg.SAML = &SAMLSettings{}
		if err := json.Unmarshal(samlJSON, cfg.SAML); err != nil {
			return nil, fmt.Errorf("failed to unmarshal saml settings: %w", err)
		}
	}
	if len(oidcJSON) > 0 {
		cfg.OIDC = &OIDCSettings{}
		if err := json.Unmarshal(oidcJSON, cfg.OIDC); err != nil {
			return nil, fmt.Errorf("failed to unmarshal oidc settings: %w", err)
		}
	}
	if err := json.Unmarshal(mappingJSON, &cfg.Mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attribute mapping: %w", err)
	}
	if len(groupRolesJSON) > 0 {
		if err := json.Unmarshal(groupRolesJSON, &cfg.GroupRoles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal group roles: %w", err)
		}
	}
	if len(allowedJSON) > 0 {
		if err := json.Unmarshal(allowedJSON, &cfg.AllowedDomains); err != nil {
			return nil, fmt.Errorf("failed to unmarshal allowed domains: %w", err)
		}
	}
	if len(blockedJSON) > 0 {
		if err := json.Unmarshal(blockedJSON, &cfg.BlockedDomains); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blocked domains: %w", err)
		}
	}
	return cfg, nil
}

// MemoryConfigStore is an in-process ConfigStore for tests.
type MemoryConfigStore struct {
	mu      sync.Mutex
	configs map[string]*Configuration
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]*Configuration)}
}

func (s *MemoryConfigStore) Create(ctx context.Context, cfg *Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *cfg
	s.configs[cfg.ID] = &stored
	return nil
}

func (s *MemoryConfigStore) Get(ctx context.Context, id string) (*Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, NewConfigurationError(CodeConfigNotFound, "configuration %q not found", id)
	}
	out := *cfg
	return &out, nil
}

func (s *MemoryConfigStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Configuration
	for _, cfg := range s.configs {
		if cfg.WorkspaceID == workspaceID {
			copied := *cfg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryConfigStore) Update(ctx context.Context, cfg *Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[cfg.ID]; !ok {
		return NewConfigurationError(CodeConfigNotFound, "configuration %q not found", cfg.ID)
	}
	stored := *cfg
	stored.UpdatedAt = time.Now().UTC()
	s.configs[cfg.ID] = &stored
	return nil
}

func (s *MemoryConfigStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[id]; !ok {
		return NewConfigurationError(CodeConfigNotFound, "configuration %q not found", id)
	}
	delete(s.configs, id)
	return nil
}
