package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc releases one resource during shutdown. It must respect ctx
// and return promptly once the deadline passes.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the HTTP server and then runs every registered
// ShutdownFunc concurrently, all under a single deadline.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []namedShutdownFunc
}

type namedShutdownFunc struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager returns a manager that allows timeout for the whole
// shutdown sequence (30s when zero).
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger.WithField("component", "shutdown"),
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc adds fn to the shutdown sequence. name labels the
// log lines.
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdownFunc{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM arrives, then runs the
// shutdown sequence.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.WithField("signal", sig.String()).Info("shutdown signal received")
	return sm.Shutdown()
}

// Shutdown drains the server, then runs the registered funcs concurrently.
// It returns the first error, or a timeout error when the sequence blows
// the deadline.
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		sm.logger.Info("draining http server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("http server drain failed")
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	sm.mu.Lock()
	funcs := make([]namedShutdownFunc, len(sm.funcs))
	copy(funcs, sm.funcs)
	sm.mu.Unlock()

	var g errgroup.Group
	for _, nf := range funcs {
		nf := nf
		g.Go(func() error {
			if err := nf.fn(ctx); err != nil {
				sm.logger.WithError(err).WithField("name", nf.name).Error("shutdown step failed")
				return fmt.Errorf("%s: %w", nf.name, err)
			}
			sm.logger.WithField("name", nf.name).Debug("shutdown step complete")
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		sm.logger.Warn("shutdown deadline reached")
		return fmt.Errorf("shutdown timed out after %s", sm.timeout)
	}

	sm.logger.Info("graceful shutdown complete")
	return nil
}
