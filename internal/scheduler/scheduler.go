package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every housekeeping interval.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives the periodic housekeeping ticks. The clock is injected
// so tests can advance time deterministically.
type Scheduler struct {
	opts   Options
	clock  clockwork.Clock
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, clock clockwork.Clock, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		opts:   opts,
		clock:  clock,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks, invoking the tick function at each interval until ctx is
// cancelled. Tick errors are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.opts.StartupDelay):
		}
	}

	next := s.nextTick(s.clock.Now())
	for {
		delay := next.Sub(s.clock.Now())
		if delay < 0 {
			next = s.nextTick(s.clock.Now())
			delay = next.Sub(s.clock.Now())
		}

		s.logger.Debug().Time("next_tick", next).Msg("waiting for next housekeeping tick")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}

		now := s.clock.Now()
		if err := tick(ctx, now); err != nil {
			s.logger.Error().Err(err).Time("tick", now).Msg("housekeeping tick failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	aligned := now.Truncate(s.opts.Interval)
	if !aligned.After(now) {
		aligned = aligned.Add(s.opts.Interval)
	}
	return aligned
}
