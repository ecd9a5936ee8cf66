package audit

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MultiLogger fans each event out to every configured logger. Logging is
// synchronous so a terminal login outcome is durably recorded before the
// HTTP response is sent; a failure from any destination is reported but
// does not stop the others.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to all the given destinations.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	// Plain errgroup, not WithContext: one failing destination must not
	// cancel the writes to the others.
	var g errgroup.Group
	for _, logger := range m.loggers {
		logger := logger
		g.Go(func() error {
			return logger.Log(ctx, event)
		})
	}
	return g.Wait()
}

func (m *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
