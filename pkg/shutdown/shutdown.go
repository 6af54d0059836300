package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Manager runs registered cleanups in reverse order and turns SIGINT/SIGTERM
// into context cancellation.
type Manager struct {
	cleanups []cleanup
	mu       sync.Mutex
	timeout  time.Duration
	once     sync.Once
	errs     []error
}

type cleanup struct {
	name string
	fn   func(context.Context) error
}

// New creates a new shutdown manager
func New(timeout time.Duration) *Manager {
	return &Manager{timeout: timeout}
}

// Register adds a cleanup. Cleanups run LIFO.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanup{name: name, fn: fn})
}

// Context returns a child of parent that is cancelled on the first SIGINT or
// SIGTERM. onSignal, if set, is called with the received signal before the
// cancel. The returned stop func releases the signal handler.
func (m *Manager) Context(parent context.Context, onSignal func(os.Signal)) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-done:
		}
	}()

	var stopOnce sync.Once
	return ctx, func() {
		stopOnce.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
		})
	}
}

// Shutdown executes all registered cleanups once and returns their errors.
func (m *Manager) Shutdown() []error {
	m.once.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for i := len(m.cleanups) - 1; i >= 0; i-- {
			c := m.cleanups[i]
			if err := c.fn(ctx); err != nil {
				m.errs = append(m.errs, fmt.Errorf("cleanup %s: %w", c.name, err))
			}
		}
	})
	return m.errs
}

// CloseResource creates a cleanup for an io.Closer.
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
