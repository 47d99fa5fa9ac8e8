package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunKeepsGoingAfterFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	s := New(Options{Name: "test", Interval: 10 * time.Millisecond}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			n := calls.Add(1)
			switch n {
			case 1:
				return errors.New("provider down")
			case 2:
				panic("boom")
			case 4:
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	if got := calls.Load(); got < 4 {
		t.Fatalf("expected at least 4 ticks after error and panic, got %d", got)
	}
}

func TestRunImmediateFiresBeforeFirstInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	s := New(Options{Interval: time.Hour, Immediate: true}, zerolog.Nop())
	go func() {
		_ = s.Run(ctx, func(context.Context, time.Time) error {
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("immediate tick did not fire")
	}
}

func TestRunWithoutImmediateWaitsOneInterval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	err := s.Run(ctx, func(context.Context, time.Time) error {
		calls.Add(1)
		return nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v, want deadline exceeded", err)
	}
	if calls.Load() != 0 {
		t.Fatal("tick must not run before the first interval elapses")
	}
}

func TestStartupDelayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Options{Interval: time.Minute, StartupDelay: time.Hour, Immediate: true}, zerolog.Nop())
	err := s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick must not run")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunWaitsFullIntervalAfterSlowTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const (
		interval = 100 * time.Millisecond
		work     = 80 * time.Millisecond
	)
	var (
		ends   []time.Time
		starts []time.Time
	)
	done := make(chan error, 1)
	s := New(Options{Interval: interval, Immediate: true}, zerolog.Nop())
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			starts = append(starts, time.Now())
			time.Sleep(work)
			ends = append(ends, time.Now())
			if len(starts) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	for i := 1; i < len(starts); i++ {
		if pause := starts[i].Sub(ends[i-1]); pause < interval-5*time.Millisecond {
			t.Errorf("pause before tick %d = %s, want at least %s", i+1, pause, interval)
		}
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2026, 10, 18, 12, 3, 10, 0, time.UTC)

	if got, want := s.nextTick(now), time.Date(2026, 10, 18, 12, 5, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("nextTick = %s, want %s", got, want)
	}
	if got, want := s.bucketStart(now), time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("bucketStart = %s, want %s", got, want)
	}
}
