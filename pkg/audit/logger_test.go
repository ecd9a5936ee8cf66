package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLoggerQuery(t *testing.T) {
	logger := NewMemoryLogger()
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	events := []*Event{
		{Timestamp: base, EventType: EventTypeLoginInitiated, Status: EventStatusSuccess, WorkspaceID: "ws-1"},
		{Timestamp: base.Add(time.Minute), EventType: EventTypeLoginFailed, Status: EventStatusFailure, WorkspaceID: "ws-1", ErrorCode: "state_expired"},
		{Timestamp: base.Add(2 * time.Minute), EventType: EventTypeLoginSucceeded, Status: EventStatusSuccess, WorkspaceID: "ws-1"},
		{Timestamp: base.Add(3 * time.Minute), EventType: EventTypeLoginSucceeded, Status: EventStatusSuccess, WorkspaceID: "ws-2"},
	}
	for _, e := range events {
		require.NoError(t, logger.Log(ctx, e))
	}

	t.Run("workspace scoping", func(t *testing.T) {
		got, err := logger.Query(ctx, Filter{WorkspaceID: "ws-1"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		// Newest first.
		assert.Equal(t, EventTypeLoginSucceeded, got[0].EventType)
		assert.Equal(t, EventTypeLoginInitiated, got[2].EventType)
	})

	t.Run("event type filter", func(t *testing.T) {
		got, err := logger.Query(ctx, Filter{
			WorkspaceID: "ws-1",
			EventTypes:  []EventType{EventTypeLoginFailed},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "state_expired", got[0].ErrorCode)
	})

	t.Run("time window", func(t *testing.T) {
		got, err := logger.Query(ctx, Filter{
			WorkspaceID: "ws-1",
			Since:       base.Add(30 * time.Second),
			Until:       base.Add(90 * time.Second),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, EventTypeLoginFailed, got[0].EventType)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := logger.Query(ctx, Filter{WorkspaceID: "ws-1", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestMemoryLoggerAssignsIDAndTimestamp(t *testing.T) {
	logger := NewMemoryLogger()
	require.NoError(t, logger.Log(context.Background(), &Event{
		EventType:   EventTypeConfigCreated,
		Status:      EventStatusSuccess,
		WorkspaceID: "ws-1",
	}))

	stored := logger.Events()
	require.Len(t, stored, 1)
	assert.Equal(t, int64(1), stored[0].ID)
	assert.False(t, stored[0].Timestamp.IsZero())
}

type failingLogger struct{ err error }

func (f *failingLogger) Log(ctx context.Context, event *Event) error { return f.err }
func (f *failingLogger) Close() error                                { return f.err }

func TestMultiLogger(t *testing.T) {
	first := NewMemoryLogger()
	second := NewMemoryLogger()
	failing := &failingLogger{err: errors.New("disk full")}

	multi := NewMultiLogger(first, failing, second)
	err := multi.Log(context.Background(), &Event{
		EventType:   EventTypeDomainVerified,
		Status:      EventStatusSuccess,
		WorkspaceID: "ws-1",
	})

	// The failure is reported but does not stop the other destinations.
	assert.EqualError(t, err, "disk full")
	assert.Len(t, first.Events(), 1)
	assert.Len(t, second.Events(), 1)

	assert.EqualError(t, multi.Close(), "disk full")
}

func TestNopLogger(t *testing.T) {
	var logger Logger = NopLogger{}
	assert.NoError(t, logger.Log(context.Background(), &Event{}))
	assert.NoError(t, logger.Close())
}
