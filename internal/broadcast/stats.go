package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	"relaybot/internal/gateway"
	"relaybot/internal/storage"
	"relaybot/pkg/logx"
)

const statsKey = "stats"

// TargetStats are the per-target counters.
type TargetStats struct {
	OK        int64      `json:"ok"`
	Fail      int64      `json:"fail"`
	LastError string     `json:"lastError,omitempty"`
	LastOkAt  *time.Time `json:"lastOkAt,omitempty"`
}

// Stats is the persisted counters document.
type Stats struct {
	StartedAt    time.Time             `json:"startedAt"`
	LastResetAt  *time.Time            `json:"lastResetAt"`
	TotalLoops   int64                 `json:"totalLoops"`
	TotalSuccess int64                 `json:"totalSuccess"`
	TotalFail    int64                 `json:"totalFail"`
	AvgLoopMs    int64                 `json:"avgLoopMs"`
	PerTarget    map[int64]TargetStats `json:"perTarget"`
}

// SuccessRate is the share of successful deliveries in percent, 0 when nothing was attempted.
func (s Stats) SuccessRate() float64 {
	total := s.TotalSuccess + s.TotalFail
	if total == 0 {
		return 0
	}
	return float64(s.TotalSuccess) * 100 / float64(total)
}

// Restricted reports whether the last error of id looks permanent.
func (s Stats) Restricted(id int64) bool {
	t, ok := s.PerTarget[id]
	return ok && gateway.IsPermanentText(t.LastError)
}

// Aggregator updates the stats document. Calls are serialized.
type Aggregator struct {
	store storage.Store
	log   logx.Logger
	now   func() time.Time

	mu sync.Mutex
}

func NewAggregator(store storage.Store, log logx.Logger) *Aggregator {
	return &Aggregator{store: store, log: log.With(logx.String("comp", "stats")), now: time.Now}
}

func (a *Aggregator) fresh() Stats {
	now := a.now()
	return Stats{StartedAt: now, LastResetAt: &now, PerTarget: map[int64]TargetStats{}}
}

func (a *Aggregator) load(ctx context.Context) (Stats, error) {
	raw, err := a.store.GetDoc(ctx, statsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return a.fresh(), nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("load stats: %w", err)
	}
	out := a.fresh()
	if err := json.Unmarshal(raw, &out); err != nil {
		a.log.Warn("stats document is corrupt; starting over", logx.Err(err))
		return a.fresh(), nil
	}
	if out.PerTarget == nil {
		out.PerTarget = map[int64]TargetStats{}
	}
	return out, nil
}

func (a *Aggregator) save(ctx context.Context, s Stats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := a.store.PutDoc(ctx, statsKey, raw); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

func (a *Aggregator) update(ctx context.Context, fn func(*Stats)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.load(ctx)
	if err != nil {
		return err
	}
	fn(&s)
	return a.save(ctx, s)
}

// IncrementOutcome records one delivery result for target.
func (a *Aggregator) IncrementOutcome(ctx context.Context, target int64, ok bool, errMsg string) error {
	return a.update(ctx, func(s *Stats) {
		t := s.PerTarget[target]
		if ok {
			now := a.now()
			t.OK++
			t.LastOkAt = &now
			s.TotalSuccess++
		} else {
			t.Fail++
			t.LastError = errMsg
			s.TotalFail++
		}
		s.PerTarget[target] = t
	})
}

// RecordCycleDuration bumps totalLoops and folds d into the rounded running mean.
func (a *Aggregator) RecordCycleDuration(ctx context.Context, d time.Duration) error {
	return a.update(ctx, func(s *Stats) {
		s.TotalLoops++
		s.AvgLoopMs = nextAverage(s.AvgLoopMs, s.TotalLoops, float64(d)/float64(time.Millisecond))
	})
}

func nextAverage(avg, n int64, ms float64) int64 {
	if n <= 1 {
		return int64(math.Round(ms))
	}
	return int64(math.Round((float64(avg)*float64(n-1) + ms) / float64(n)))
}

// Reset discards all counters and per-target history.
func (a *Aggregator) Reset(ctx context.Context) error {
	return a.update(ctx, func(s *Stats) {
		*s = a.fresh()
	})
}

// Snapshot returns a copy of the current document.
func (a *Aggregator) Snapshot(ctx context.Context) (Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.load(ctx)
	if err != nil {
		return s, err
	}
	s.PerTarget = maps.Clone(s.PerTarget)
	return s, nil
}
