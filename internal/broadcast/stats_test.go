package broadcast

import (
	"context"
	"math"
	"testing"
	"time"

	"relaybot/internal/storage"
	"relaybot/pkg/logx"
)

func TestAverageFollowsRoundedRecurrence(t *testing.T) {
	seqs := [][]float64{
		{100},
		{100, 201},
		{1.4, 1.6, 2.5, 10},
		{999.5, 0.2, 0.2, 0.2, 5000},
	}
	for _, seq := range seqs {
		a := NewAggregator(storage.NewMemory(), logx.Nop())
		var want int64
		for i, ms := range seq {
			n := int64(i + 1)
			if n == 1 {
				want = int64(math.Round(ms))
			} else {
				want = int64(math.Round((float64(want)*float64(n-1) + ms) / float64(n)))
			}
			d := time.Duration(ms * float64(time.Millisecond))
			if err := a.RecordCycleDuration(context.Background(), d); err != nil {
				t.Fatalf("RecordCycleDuration: %v", err)
			}
		}
		st, _ := a.Snapshot(context.Background())
		if st.AvgLoopMs != want || st.TotalLoops != int64(len(seq)) {
			t.Fatalf("seq %v: avg=%d loops=%d, want avg=%d loops=%d", seq, st.AvgLoopMs, st.TotalLoops, want, len(seq))
		}
	}
}

func TestOutcomeCountersAreMonotonic(t *testing.T) {
	a := NewAggregator(storage.NewMemory(), logx.Nop())
	ctx := context.Background()
	pattern := []bool{true, false, false, true, true, false}
	var prev TargetStats
	for _, ok := range pattern {
		if err := a.IncrementOutcome(ctx, 42, ok, "FLOOD_WAIT"); err != nil {
			t.Fatal(err)
		}
		st, _ := a.Snapshot(ctx)
		cur := st.PerTarget[42]
		if cur.OK < prev.OK || cur.Fail < prev.Fail {
			t.Fatalf("counters decreased: %+v -> %+v", prev, cur)
		}
		prev = cur
	}
	if prev.OK != 3 || prev.Fail != 3 || prev.LastOkAt == nil || prev.LastError != "FLOOD_WAIT" {
		t.Fatalf("unexpected final record: %+v", prev)
	}
}

func TestResetThenOneSuccess(t *testing.T) {
	a := NewAggregator(storage.NewMemory(), logx.Nop())
	ctx := context.Background()
	_ = a.IncrementOutcome(ctx, 1, true, "")
	_ = a.IncrementOutcome(ctx, 2, false, "boom")
	_ = a.RecordCycleDuration(ctx, time.Second)

	if err := a.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	st, _ := a.Snapshot(ctx)
	if st.TotalSuccess != 0 || st.TotalFail != 0 || st.TotalLoops != 0 || len(st.PerTarget) != 0 {
		t.Fatalf("reset left counters: %+v", st)
	}
	if st.LastResetAt == nil {
		t.Fatalf("reset must stamp lastResetAt")
	}

	_ = a.IncrementOutcome(ctx, 7, true, "")
	st, _ = a.Snapshot(ctx)
	if st.TotalSuccess != 1 || st.PerTarget[7].OK != 1 {
		t.Fatalf("unexpected stats after reset: %+v", st)
	}
}

func TestFreshStatsStampBothTimes(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := NewAggregator(storage.NewMemory(), logx.Nop())
	a.now = func() time.Time { return at }

	st, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !st.StartedAt.Equal(at) || st.LastResetAt == nil || !st.LastResetAt.Equal(at) {
		t.Fatalf("fresh stats: startedAt=%v lastResetAt=%v, want both %v", st.StartedAt, st.LastResetAt, at)
	}
}

func TestStatsSurviveReload(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	_ = NewAggregator(store, logx.Nop()).IncrementOutcome(ctx, -100123, false, "PEER_ID_INVALID")

	st, err := NewAggregator(store, logx.Nop()).Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.PerTarget[-100123].Fail != 1 || !st.Restricted(-100123) {
		t.Fatalf("unexpected reloaded stats: %+v", st)
	}
}

func TestSuccessRate(t *testing.T) {
	if r := (Stats{}).SuccessRate(); r != 0 {
		t.Fatalf("empty rate = %v", r)
	}
	if r := (Stats{TotalSuccess: 3, TotalFail: 1}).SuccessRate(); r != 75 {
		t.Fatalf("rate = %v, want 75", r)
	}
}
