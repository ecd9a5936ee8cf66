package audit

import (
	"context"
	"sync"
	"time"
)

// Logger records audit events. Implementations must tolerate concurrent
// callers.
type Logger interface {
	// Log appends one event. The event's Timestamp is set to the current
	// time when zero.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases any underlying resources.
	Close() error
}

// Store extends Logger with read access for the audit query API.
type Store interface {
	Logger

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]*Event, error)
}

// NopLogger discards all events. Used when auditing is disabled in tests.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }

// MemoryLogger keeps events in memory. Test use only.
type MemoryLogger struct {
	mu     sync.Mutex
	events []*Event
	nextID int64
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{nextID: 1}
}

func (m *MemoryLogger) Log(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *event
	stored.ID = m.nextID
	m.nextID++
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, &stored)
	return nil
}

func (m *MemoryLogger) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var out []*Event
	skipped := 0
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if !matches(e, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryLogger) Close() error { return nil }

// Events returns a snapshot of everything logged so far, oldest first.
func (m *MemoryLogger) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

func matches(e *Event, f Filter) bool {
	if f.WorkspaceID != "" && e.WorkspaceID != f.WorkspaceID {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
