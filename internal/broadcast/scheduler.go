package broadcast

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"

	"relaybot/internal/observability/metrics"
	"relaybot/pkg/logx"
)

// Scheduler runs the engine forever at the configured, jittered interval.
// At most one cycle is in flight at any time.
type Scheduler struct {
	settings *SettingsStore
	engine   *Engine
	stats    *Aggregator
	log      logx.Logger

	rand  func() float64
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	running  atomic.Bool
	inFlight atomic.Bool
	lastWait atomic.Int64
}

type Option func(*Scheduler)

// WithRand overrides the jitter source; f returns values in [0, 1).
func WithRand(f func() float64) Option { return func(s *Scheduler) { s.rand = f } }

// WithSleep overrides the pause between cycles.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = f }
}

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func NewScheduler(settings *SettingsStore, engine *Engine, stats *Aggregator, log logx.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		settings: settings,
		engine:   engine,
		stats:    stats,
		log:      log.With(logx.String("comp", "scheduler")),
		sleep:    sleepCtx,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run loops until ctx is done and returns ctx.Err(). A second concurrent
// call returns nil immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("scheduler already running")
		return nil
	}
	defer s.running.Store(false)

	s.log.Info("scheduler started")
	defer s.log.Info("scheduler stopped")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.tick(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.NextWait(ctx)); err != nil {
			return err
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cycle panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	_, err := s.RunCycle(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCycleInFlight):
		s.log.Debug("cycle still running; tick dropped")
	case ctx.Err() != nil:
	default:
		s.log.Error("cycle failed", logx.Err(err))
	}
}

// RunCycle loads the settings and runs one cycle now. An unconfigured relay
// yields a report with Skipped set and a nil error. Every attempt that was not
// cut short by ctx counts as a loop in the stats, including skips, failures
// and panics.
func (s *Scheduler) RunCycle(ctx context.Context) (rep CycleReport, err error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleInFlight
	}
	defer s.inFlight.Store(false)

	start := s.now()
	status := "error"
	defer func() {
		if err != nil && ctx.Err() != nil {
			return
		}
		s.recordLoop(ctx, status, s.now().Sub(start))
	}()

	snap, err := s.settings.Load(ctx)
	if err != nil {
		return CycleReport{}, err
	}
	if rerr := snap.Ready(); rerr != nil {
		status = "skipped"
		s.log.Info("cycle skipped", logx.String("reason", rerr.Error()))
		return CycleReport{Mode: snap.SendMode, Skipped: rerr.Error()}, nil
	}

	rep, err = s.engine.RunCycle(ctx, snap)
	switch {
	case err != nil:
	case rep.Skipped != "":
		status = "skipped"
	default:
		status = "ok"
	}
	return rep, err
}

func (s *Scheduler) recordLoop(ctx context.Context, status string, took time.Duration) {
	metrics.ObserveCycle(status, took)
	if err := s.stats.RecordCycleDuration(context.WithoutCancel(ctx), took); err != nil {
		s.log.Warn("failed to record cycle duration", logx.Err(err))
	}
}

// NextWait re-reads the settings and samples the pause before the next cycle.
func (s *Scheduler) NextWait(ctx context.Context) time.Duration {
	snap, err := s.settings.Load(ctx)
	if err != nil {
		s.log.Warn("failed to reload settings; using defaults for the interval", logx.Err(err))
	}
	sched := ScheduleFor(snap)
	sched.Rand = s.rand
	wait := sched.Wait()
	s.lastWait.Store(int64(wait))
	metrics.NextCycleSeconds.Set(wait.Seconds())
	s.log.Debug("next cycle scheduled", logx.Duration("in", wait))
	return wait
}

// LastWait is the most recently computed pause, zero before the first one.
func (s *Scheduler) LastWait() time.Duration { return time.Duration(s.lastWait.Load()) }

// Running reports whether Run is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
