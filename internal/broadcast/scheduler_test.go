package broadcast

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"relaybot/pkg/logx"
)

func newScheduler(r *rig, opts ...Option) *Scheduler {
	return NewScheduler(r.settings, r.engine, r.stats, logx.Nop(), opts...)
}

func TestRunCycleSkipsWhenDisabled(t *testing.T) {
	gw := &fakeGateway{}
	r := newRig(t, gw)
	r.seed(t, func(s *Settings) {
		s.SourceID = ptr(source)
		s.TargetIDs = []int64{targetA}
	})

	rep, err := newScheduler(r).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("skip must not be an error: %v", err)
	}
	if rep.Skipped == "" || len(gw.calls) != 0 {
		t.Fatalf("expected a skip without gateway calls: %+v", rep)
	}
	st, _ := r.stats.Snapshot(context.Background())
	if st.TotalLoops != 1 {
		t.Fatalf("skipped iteration must count as a loop, got totalLoops=%d", st.TotalLoops)
	}
}

func TestRunCycleCountsLoopWhenSettingsUnreadable(t *testing.T) {
	r := newRig(t, &fakeGateway{})
	if err := r.store.PutDoc(context.Background(), settingsKey, []byte("{")); err != nil {
		t.Fatal(err)
	}
	if _, err := newScheduler(r).RunCycle(context.Background()); err == nil {
		t.Fatalf("expected a decode error")
	}
	st, _ := r.stats.Snapshot(context.Background())
	if st.TotalLoops != 1 {
		t.Fatalf("failed iteration must count as a loop, got totalLoops=%d", st.TotalLoops)
	}
}

func TestRunCycleSkipsLoopWhenCancelled(t *testing.T) {
	gw := &fakeGateway{}
	r := newRig(t, gw)
	r.seed(t, func(s *Settings) {
		s.Enabled = true
		s.SourceID = ptr(source)
		s.TargetIDs = []int64{targetA}
		s.SendMode = SendFixed
		s.FixedMessage = "ping"
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newScheduler(r).RunCycle(ctx); err == nil {
		t.Fatalf("expected an error on a cancelled context")
	}
	st, _ := r.stats.Snapshot(context.Background())
	if st.TotalLoops != 0 {
		t.Fatalf("cancelled attempt must not count as a loop, got totalLoops=%d", st.TotalLoops)
	}
	if gw.targetCalls() != 0 {
		t.Fatalf("no target may be attempted after cancellation")
	}
}

func TestRunCycleRecordsDuration(t *testing.T) {
	gw := &fakeGateway{}
	r := newRig(t, gw)
	r.seed(t, func(s *Settings) {
		s.Enabled = true
		s.SourceID = ptr(source)
		s.TargetIDs = []int64{targetA}
		s.SendMode = SendFixed
		s.FixedMessage = "ping"
	})

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(250 * time.Millisecond)
		return clock
	}
	if _, err := newScheduler(r, WithClock(now)).RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, _ := r.stats.Snapshot(context.Background())
	if st.TotalLoops != 1 || st.AvgLoopMs != 250 {
		t.Fatalf("unexpected loop stats: loops=%d avg=%d", st.TotalLoops, st.AvgLoopMs)
	}
}

func TestRunCycleGuardsReentry(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{before: func(op string, target int64) {
		close(started)
		<-release
	}}
	r := newRig(t, gw)
	r.seed(t, func(s *Settings) {
		s.Enabled = true
		s.SourceID = ptr(source)
		s.TargetIDs = []int64{targetA}
		s.SendMode = SendFixed
		s.FixedMessage = "ping"
	})
	s := newScheduler(r)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunCycle(context.Background())
		done <- err
	}()
	<-started
	if _, err := s.RunCycle(context.Background()); !errors.Is(err, ErrCycleInFlight) {
		t.Fatalf("expected ErrCycleInFlight, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	gw := &fakeGateway{}
	r := newRig(t, gw)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			cancel()
		}
		return ctx.Err()
	}
	s := newScheduler(r, WithSleep(sleep))
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if len(waits) != 3 {
		t.Fatalf("expected 3 sleeps, got %d", len(waits))
	}
	for _, w := range waits {
		if w != 10*time.Minute {
			t.Fatalf("wait = %v, want 10m", w)
		}
	}
	if s.Running() {
		t.Fatalf("Run returned but still marked running")
	}
}

func TestSecondRunIsNoop(t *testing.T) {
	r := newRig(t, &fakeGateway{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeping := make(chan struct{}, 1)
	s := newScheduler(r, WithSleep(func(ctx context.Context, d time.Duration) error {
		select {
		case sleeping <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-sleeping

	if err := s.Run(ctx); err != nil {
		t.Fatalf("second Run = %v, want nil", err)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("first Run = %v", err)
	}
}

func TestRunSurvivesPanickingCycle(t *testing.T) {
	var panics atomic.Int32
	gw := &fakeGateway{before: func(op string, target int64) {
		panics.Add(1)
		panic("gateway exploded")
	}}
	r := newRig(t, gw)
	r.seed(t, func(s *Settings) {
		s.Enabled = true
		s.SourceID = ptr(source)
		s.TargetIDs = []int64{targetA}
		s.SendMode = SendFixed
		s.FixedMessage = "ping"
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeps := 0
	s := newScheduler(r, WithSleep(func(ctx context.Context, d time.Duration) error {
		sleeps++
		if sleeps == 2 {
			cancel()
		}
		return ctx.Err()
	}))
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if panics.Load() != 2 {
		t.Fatalf("expected a cycle per iteration despite panics, got %d", panics.Load())
	}
}

func TestPanickingCycleCountsAsLoop(t *testing.T) {
	gw := &fakeGateway{before: func(op string, target int64) { panic("gateway exploded") }}
	r := newRig(t, gw)
	r.seed(t, func(s *Settings) {
		s.Enabled = true
		s.SourceID = ptr(source)
		s.TargetIDs = []int64{targetA}
		s.SendMode = SendFixed
		s.FixedMessage = "ping"
	})
	s := newScheduler(r)
	s.tick(context.Background())

	st, _ := r.stats.Snapshot(context.Background())
	if st.TotalLoops != 1 {
		t.Fatalf("panicking cycle: totalLoops=%d, want 1", st.TotalLoops)
	}
	if _, err := s.RunCycle(context.Background()); errors.Is(err, ErrCycleInFlight) {
		t.Fatalf("in-flight guard not released after a panic")
	}
}

func TestNextWaitUsesJitter(t *testing.T) {
	r := newRig(t, &fakeGateway{})
	r.seed(t, func(s *Settings) {
		s.IntervalMinutes = 1
		s.JitterSeconds = 30
	})
	s := newScheduler(r, WithRand(func() float64 { return 0 }))
	if got := s.NextWait(context.Background()); got != 30*time.Second {
		t.Fatalf("NextWait = %v, want 30s", got)
	}
	if s.LastWait() != 30*time.Second {
		t.Fatalf("LastWait not recorded")
	}
}
