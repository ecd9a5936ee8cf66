package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBLogger implements append-only audit logging to PostgreSQL.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// sso_audit_events table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure sso_audit_events table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS sso_audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		workspace_id VARCHAR(64) NOT NULL,
		config_id VARCHAR(64),
		protocol VARCHAR(10),
		actor_id VARCHAR(64),
		email VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		error_code VARCHAR(100),
		message TEXT,
		metadata JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_sso_audit_workspace_time ON sso_audit_events(workspace_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_sso_audit_event_type ON sso_audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_sso_audit_email ON sso_audit_events(email);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log inserts one event. There is no update or delete path.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO sso_audit_events (
			timestamp, event_type, status, workspace_id, config_id, protocol,
			actor_id, email, ip_address, user_agent, request_id, error_code,
			message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	err := l.db.QueryRowContext(ctx, query,
		timestamp,
		event.EventType,
		event.Status,
		event.WorkspaceID,
		nullString(event.ConfigID),
		nullString(event.Protocol),
		nullString(event.ActorID),
		nullString(event.Email),
		nullString(event.IPAddress),
		nullString(event.UserAgent),
		nullString(event.RequestID),
		nullString(event.ErrorCode),
		nullString(event.Message),
		metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	event.Timestamp = timestamp
	return nil
}

// Query returns events matching the filter, newest first.
func (l *DBLogger) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	if filter.WorkspaceID == "" {
		return nil, fmt.Errorf("workspace_id is required for audit queries")
	}

	conditions := []string{"workspace_id = $1"}
	args := []interface{}{filter.WorkspaceID}
	argIndex := 2

	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("event_type = ANY($%d)", argIndex))
		args = append(args, pq.Array(types))
		argIndex++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argIndex))
		args = append(args, filter.Since)
		argIndex++
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argIndex))
		args = append(args, filter.Until)
		argIndex++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := fmt.Sprintf(`
		SELECT id, timestamp, event_type, status, workspace_id, config_id,
		       protocol, actor_id, email, ip_address, user_agent, request_id,
		       error_code, message, metadata
		FROM sso_audit_events
		WHERE %s
		ORDER BY timestamp DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), argIndex, argIndex+1)
	args = append(args, limit, filter.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (l *DBLogger) Close() error { return nil }

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		event        Event
		configID     sql.NullString
		protocol     sql.NullString
		actorID      sql.NullString
		email        sql.NullString
		ipAddress    sql.NullString
		userAgent    sql.NullString
		requestID    sql.NullString
		errorCode    sql.NullString
		message      sql.NullString
		metadataJSON []byte
	)
	err := rows.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.WorkspaceID, &configID, &protocol, &actorID, &email,
		&ipAddress, &userAgent, &requestID, &errorCode, &message,
		&metadataJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	event.ConfigID = configID.String
	event.Protocol = protocol.String
	event.ActorID = actorID.String
	event.Email = email.String
	event.IPAddress = ipAddress.String
	event.UserAgent = userAgent.String
	event.RequestID = requestID.String
	event.ErrorCode = errorCode.String
	event.Message = message.String

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
		}
	}
	return &event, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
