package audit

import "time"

// EventType categorizes an audit event.
type EventType string

const (
	// Configuration lifecycle events
	EventTypeConfigCreated  EventType = "sso.config_created"
	EventTypeConfigUpdated  EventType = "sso.config_updated"
	EventTypeConfigEnabled  EventType = "sso.config_enabled"
	EventTypeConfigDisabled EventType = "sso.config_disabled"
	EventTypeConfigDeleted  EventType = "sso.config_deleted"

	// Authentication events
	EventTypeLoginInitiated EventType = "sso.login_initiated"
	EventTypeLoginSucceeded EventType = "sso.login_succeeded"
	EventTypeLoginFailed    EventType = "sso.login_failed"

	// Logout events
	EventTypeLogoutInitiated EventType = "sso.logout_initiated"
	EventTypeLogoutCompleted EventType = "sso.logout_completed"

	// Domain lifecycle events
	EventTypeDomainAdded    EventType = "sso.domain_added"
	EventTypeDomainVerified EventType = "sso.domain_verified"
	EventTypeDomainRemoved  EventType = "sso.domain_removed"
)

// EventStatus is the outcome recorded with an event.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is a single audit log entry. Events are immutable once logged.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// WorkspaceID scopes every event; queries are always per workspace.
	WorkspaceID string `json:"workspace_id"`
	ConfigID    string `json:"config_id,omitempty"`
	Protocol    string `json:"protocol,omitempty"`

	// ActorID is the admin who performed a configuration action, or empty
	// for IdP-driven events.
	ActorID string `json:"actor_id,omitempty"`
	// Email is the subject of a login or logout event.
	Email string `json:"email,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// ErrorCode carries the stable failure code on failure events, e.g.
	// "invalid_signature" or "state_expired".
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filter selects events for a query. WorkspaceID is required; the remaining
// fields narrow the result set.
type Filter struct {
	WorkspaceID string
	EventTypes  []EventType
	Status      EventStatus
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// DefaultQueryLimit caps unbounded queries.
const DefaultQueryLimit = 100
