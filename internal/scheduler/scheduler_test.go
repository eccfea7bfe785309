package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunTicksAtInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	s := New(Options{Interval: time.Minute}, clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan time.Time, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, now time.Time) error {
			ticks <- now
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
		select {
		case at := <-ticks:
			require.Equal(t, clock.Now(), at)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for tick")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}
}

func TestRunTickErrorsAreNotFatal(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	s := New(Options{Interval: time.Minute}, clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			ticks <- struct{}{}
			return errors.New("boom")
		})
	}()

	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
		select {
		case <-ticks:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler stopped after a tick error")
		}
	}

	cancel()
	<-done
}

func TestRunHonoursStartupDelay(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	s := New(Options{Interval: time.Minute, StartupDelay: 10 * time.Second}, clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan time.Time, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, now time.Time) error {
			ticks <- now
			return nil
		})
	}()

	// First waiter is the startup delay, the next one the interval itself.
	clock.BlockUntil(1)
	clock.Advance(10 * time.Second)
	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	select {
	case at := <-ticks:
		require.Equal(t, clock.Now(), at)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first tick")
	}

	cancel()
	<-done
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	require.Panics(t, func() {
		New(Options{Interval: 0}, clockwork.NewRealClock(), zerolog.Nop())
	})
}
