package store

import (
	"context"
	"log/slog"
	"sync"
)

// Gate is a one-shot readiness barrier. It opens exactly once, after the
// backend finished initialising, whether or not that succeeded.
type Gate struct {
	once  sync.Once
	ready chan struct{}
	err   error
}

func NewGate() *Gate {
	return &Gate{ready: make(chan struct{})}
}

// Open initialises backend and opens the gate. A failed initialisation still
// opens it; operations then fail against the backend instead of blocking.
func (g *Gate) Open(ctx context.Context, backend Backend, logger *slog.Logger) error {
	err := backend.Open(ctx)
	if err != nil {
		logger.Error("backend initialisation failed", "backend", backend.Kind(), "error", err)
	} else {
		logger.Info("backend ready", "backend", backend.Kind())
	}
	g.MarkReady(err)
	return err
}

// MarkReady opens the gate. Only the first call has an effect.
func (g *Gate) MarkReady(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.ready)
	})
}

// Wait suspends the caller until the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ready:
		return nil
	default:
	}

	select {
	case <-g.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) Ready() bool {
	select {
	case <-g.ready:
		return true
	default:
		return false
	}
}

// Err returns the initialisation error once the gate is open.
func (g *Gate) Err() error {
	if !g.Ready() {
		return nil
	}
	return g.err
}
