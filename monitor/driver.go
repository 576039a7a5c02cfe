package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FastRetryDelay is the pause before the next step after a transition.
const FastRetryDelay = 100 * time.Millisecond

// Stepper is evaluated once per tick.
type Stepper interface {
	Step(ctx context.Context) bool
}

// Driver owns the single timer that schedules steps. The next tick is armed
// only after the previous step returned, so steps never overlap.
type Driver struct {
	stepper  Stepper
	interval time.Duration
	fast     time.Duration
	logger   *zap.Logger
}

type DriverOption func(*Driver)

func WithFastRetry(d time.Duration) DriverOption {
	return func(dr *Driver) {
		if d > 0 {
			dr.fast = d
		}
	}
}

func WithDriverLogger(l *zap.Logger) DriverOption {
	return func(dr *Driver) {
		if l != nil {
			dr.logger = l
		}
	}
}

func NewDriver(stepper Stepper, interval time.Duration, opts ...DriverOption) *Driver {
	d := &Driver{
		stepper:  stepper,
		interval: interval,
		fast:     FastRetryDelay,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.interval <= 0 {
		d.interval = time.Second
	}
	return d
}

// Run steps immediately and then on every tick until ctx is cancelled. A
// step already running when ctx is cancelled runs to completion on a
// context that is not cancelled, so a stop or start it issued is finished.
func (d *Driver) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	stepCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Scheduler stopped")
			return nil
		case <-timer.C:
		}

		moved := d.stepper.Step(stepCtx)
		if ctx.Err() != nil {
			d.logger.Info("Scheduler stopped after draining step")
			return nil
		}

		next := d.interval
		if moved {
			next = d.fast
		}
		d.logger.Debug("Next step scheduled", zap.Duration("in", next), zap.Bool("transition", moved))
		timer.Reset(next)
	}
}
