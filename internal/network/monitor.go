package network

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errDisagree = errors.New("connectivity signals disagree")

type Config struct {
	RecheckAttempts int
	RecheckInterval time.Duration
}

// Monitor combines a device signal and a runtime signal with AND. When they
// disagree it re-checks both a bounded number of times; a disagreement that
// persists is reported as offline.
type Monitor struct {
	device     Signal
	runtime    Signal
	attempts   int
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option mutates monitor configuration.
type Option func(*Monitor)

// WithBackOff replaces the re-check schedule.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(m *Monitor) {
		if fn != nil {
			m.newBackOff = fn
		}
	}
}

func NewMonitor(device, runtime Signal, cfg Config, logger *slog.Logger, opts ...Option) *Monitor {
	interval := cfg.RecheckInterval
	m := &Monitor{
		device:   device,
		runtime:  runtime,
		attempts: max(cfg.RecheckAttempts, 0),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = interval
			b.MaxElapsedTime = 0
			return b
		},
		logger: logger.With("component", "network_monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Online(ctx context.Context) bool {
	var online bool
	attempt := 0

	check := func() error {
		attempt++
		device := m.device.Online(ctx)
		runtime := m.runtime.Online(ctx)
		if device == runtime {
			online = device
			return nil
		}
		m.logger.Debug("connectivity signals disagree",
			m.device.Name(), device,
			m.runtime.Name(), runtime,
			"attempt", attempt,
		)
		return errDisagree
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), uint64(m.attempts)), ctx)
	if err := backoff.Retry(check, b); err != nil {
		m.logger.Warn("connectivity undecided, assuming offline", "attempts", attempt, "error", err)
		return false
	}
	return online
}

// Watch reports the first observation and every later transition to
// onChange, polling every interval until ctx is done.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration, onChange func(ctx context.Context, online bool)) error {
	last := m.Online(ctx)
	m.logger.Info("network watch started", "online", last, "interval", interval)
	onChange(ctx, last)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("network watch stopped")
			return ctx.Err()
		case <-ticker.C:
			online := m.Online(ctx)
			if online == last {
				continue
			}
			m.logger.Info("network state changed", "online", online)
			last = online
			onChange(ctx, online)
		}
	}
}
