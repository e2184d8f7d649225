// Package shutdown coordinates interrupt handling and releases the session
// and cache in reverse order of acquisition.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"iroha/internal/utils"
)

// CleanupFunc is a function that performs cleanup on shutdown.
// It receives a context that will be cancelled when the shutdown times out.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager handles graceful shutdown coordination.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanupEntry
	shutdown bool
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	waitOnce sync.Once
	waitErr  error
	stop     func()
}

// NewManager creates a new shutdown manager whose context derives from parent.
func NewManager(parent context.Context) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		stop:   func() {},
	}
}

// ListenForSignals starts shutdown on the first SIGINT or SIGTERM (or the
// given signals). Default handling is restored after that first signal, so a
// second one terminates the process. StopListening restores it earlier.
func (m *Manager) ListenForSignals(sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			signal.Stop(ch)
			utils.Debugf("Received %s, shutting down", sig)
			m.Shutdown()
		case <-done:
		}
	}()

	m.mu.Lock()
	m.stop = func() {
		signal.Stop(ch)
		close(done)
	}
	m.mu.Unlock()
}

// StopListening undoes ListenForSignals. Safe to call more than once.
func (m *Manager) StopListening() {
	m.mu.Lock()
	stop := m.stop
	m.stop = func() {}
	m.mu.Unlock()
	stop()
}

// RegisterCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first called).
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// RegisterCloser registers c.Close as a cleanup.
func (m *Manager) RegisterCloser(name string, c interface{ Close() error }) {
	m.RegisterCleanup(name, func(context.Context) error { return c.Close() })
}

// Shutdown cancels Context. Safe to call multiple times.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		m.shutdown = true
		m.mu.Unlock()
		m.cancel()
	})
}

// runCleanups executes all cleanup functions in LIFO order, continuing past failures.
func (m *Manager) runCleanups(ctx context.Context) error {
	m.mu.Lock()
	cleanups := make([]cleanupEntry, len(m.cleanups))
	copy(cleanups, m.cleanups)
	m.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].fn(ctx); err != nil {
			utils.Warnf("Cleanup %s failed: %v", cleanups[i].name, err)
			errs = append(errs, fmt.Errorf("%s: %w", cleanups[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait stops signal handling, runs the cleanups once and returns their
// combined error, or ctx's error if they do not finish in time. Later calls
// return the first result.
func (m *Manager) Wait(ctx context.Context) error {
	m.waitOnce.Do(func() {
		m.StopListening()
		m.Shutdown()

		done := make(chan error, 1)
		go func() {
			done <- m.runCleanups(ctx)
		}()

		select {
		case m.waitErr = <-done:
		case <-ctx.Done():
			m.waitErr = ctx.Err()
		}
	})
	return m.waitErr
}

// IsShutdown returns true if shutdown has been initiated.
func (m *Manager) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Context returns a context that is cancelled when shutdown is initiated.
func (m *Manager) Context() context.Context {
	return m.ctx
}
