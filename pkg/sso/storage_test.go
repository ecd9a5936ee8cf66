package sso

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfigStore(t *testing.T) (*SQLConfigStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sso_configurations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewSQLConfigStore(db)
	require.NoError(t, err)
	return store, mock
}

func configColumnNames() []string {
	return []string{
		"id", "workspace_id", "name", "provider", "saml_settings", "oidc_settings",
		"mapping", "group_roles", "allowed_domains", "blocked_domains",
		"enforce_sso", "allow_bypass_for_owner", "jit_provisioning",
		"jit_default_role", "enabled", "test_mode", "created_at", "updated_at",
	}
}

func samlConfigRow(t *testing.T, cfg *Configuration) []driverValue {
	t.Helper()
	samlJSON, err := json.Marshal(cfg.SAML)
	require.NoError(t, err)
	mappingJSON, err := json.Marshal(cfg.Mapping)
	require.NoError(t, err)
	return []driverValue{
		cfg.ID, cfg.WorkspaceID, cfg.Name, string(cfg.Provider), samlJSON, nil,
		mappingJSON, nil, nil, nil,
		cfg.EnforceSSO, cfg.AllowBypassForOwner, cfg.JITProvisioning,
		cfg.JITDefaultRole, cfg.Enabled, cfg.TestMode, cfg.CreatedAt, cfg.UpdatedAt,
	}
}

type driverValue = driver.Value

func TestSQLConfigStoreCreate(t *testing.T) {
	store, mock := newTestConfigStore(t)

	cfg := validSAMLConfig()
	cfg.CreatedAt = time.Now().UTC()
	cfg.UpdatedAt = cfg.CreatedAt

	// Blobs absent from a SAML configuration arrive at the driver as nil
	// byte slices, not untyped nils.
	mock.ExpectExec("INSERT INTO sso_configurations").
		WithArgs(cfg.ID, cfg.WorkspaceID, cfg.Name, cfg.Provider,
			sqlmock.AnyArg(), []byte(nil), sqlmock.AnyArg(), []byte(nil), []byte(nil), []byte(nil),
			cfg.EnforceSSO, cfg.AllowBypassForOwner, cfg.JITProvisioning,
			sqlmock.AnyArg(), cfg.Enabled, cfg.TestMode,
			cfg.CreatedAt, cfg.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), cfg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConfigStoreGet(t *testing.T) {
	store, mock := newTestConfigStore(t)

	cfg := validSAMLConfig()
	cfg.CreatedAt = time.Now().UTC()
	cfg.UpdatedAt = cfg.CreatedAt

	mock.ExpectQuery("SELECT (.+) FROM sso_configurations WHERE id").
		WithArgs(cfg.ID).
		WillReturnRows(sqlmock.NewRows(configColumnNames()).AddRow(samlConfigRow(t, cfg)...))

	got, err := store.Get(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, ProviderSAML, got.Provider)
	require.NotNil(t, got.SAML)
	assert.Equal(t, cfg.SAML.SSOURL, got.SAML.SSOURL)
	assert.Equal(t, cfg.Mapping.EmailPath, got.Mapping.EmailPath)
	assert.Nil(t, got.OIDC)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConfigStoreGetNotFound(t *testing.T) {
	store, mock := newTestConfigStore(t)

	mock.ExpectQuery("SELECT (.+) FROM sso_configurations WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, CodeConfigNotFound, CodeOf(err))
}

func TestSQLConfigStoreOIDCSecretRoundTrip(t *testing.T) {
	store, mock := newTestConfigStore(t)

	cfg := validOIDCConfig()
	cfg.CreatedAt = time.Now().UTC()
	cfg.UpdatedAt = cfg.CreatedAt

	// The persisted OIDC blob carries the client secret; only API responses
	// strip it.
	var persisted []byte
	mock.ExpectExec("INSERT INTO sso_configurations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Create(context.Background(), cfg))

	blobs, err := marshalBlobs(cfg)
	require.NoError(t, err)
	persisted = blobs.oidc
	assert.Contains(t, string(persisted), "client-secret")

	row := []driverValue{
		cfg.ID, cfg.WorkspaceID, cfg.Name, string(cfg.Provider), nil, persisted,
		mustJSON(t, cfg.Mapping), nil, nil, nil,
		false, false, false, "", false, true, cfg.CreatedAt, cfg.UpdatedAt,
	}
	mock.ExpectQuery("SELECT (.+) FROM sso_configurations WHERE id").
		WithArgs(cfg.ID).
		WillReturnRows(sqlmock.NewRows(configColumnNames()).AddRow(row...))

	got, err := store.Get(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OIDC)
	assert.Equal(t, "client-secret", got.OIDC.ClientSecret)
	assert.Equal(t, cfg.OIDC.ClientID, got.OIDC.ClientID)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestSQLConfigStoreListByWorkspace(t *testing.T) {
	store, mock := newTestConfigStore(t)

	cfg := validSAMLConfig()
	cfg.CreatedAt = time.Now().UTC()
	cfg.UpdatedAt = cfg.CreatedAt

	mock.ExpectQuery("SELECT (.+) FROM sso_configurations WHERE workspace_id").
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(configColumnNames()).AddRow(samlConfigRow(t, cfg)...))

	configs, err := store.ListByWorkspace(context.Background(), "ws-1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, cfg.ID, configs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConfigStoreUpdateNotFound(t *testing.T) {
	store, mock := newTestConfigStore(t)

	cfg := validSAMLConfig()
	mock.ExpectExec("UPDATE sso_configurations SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, CodeConfigNotFound, CodeOf(err))
}

func TestSQLConfigStoreDelete(t *testing.T) {
	store, mock := newTestConfigStore(t)

	mock.ExpectExec("DELETE FROM sso_configurations WHERE id").
		WithArgs("cfg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), "cfg-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryConfigStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConfigStore()

	cfg := validSAMLConfig()
	require.NoError(t, store.Create(ctx, cfg))

	got, err := store.Get(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, got.Name)

	got.Name = "renamed"
	require.NoError(t, store.Update(ctx, got))
	again, err := store.Get(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Name)

	list, err := store.ListByWorkspace(ctx, cfg.WorkspaceID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, cfg.ID))
	_, err = store.Get(ctx, cfg.ID)
	require.Error(t, err)
	assert.Equal(t, CodeConfigNotFound, CodeOf(err))
}
