package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/amartya2002/liveness-monitor/uptime"
)

// ===== Options Pattern =====
type Option func(*Machine)

// WithProcesses enables process statistics and, when configured, killing
// the service's process.
func WithProcesses(p ProcessTable) Option {
	return func(m *Machine) {
		m.procs = p
	}
}

func WithHistory(h *uptime.History) Option {
	return func(m *Machine) {
		m.history = h
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSleep replaces the wait after a stop command.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(m *Machine) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

func WithRunID(id string) Option {
	return func(m *Machine) {
		m.runID = id
	}
}
