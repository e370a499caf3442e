package broadcast

import (
	"context"
	"sync"
	"testing"

	"relaybot/internal/gateway"
	"relaybot/internal/storage"
	"relaybot/pkg/logx"
)

type call struct {
	op     string
	target int64
}

type fakeGateway struct {
	mu         sync.Mutex
	latest     *gateway.Message
	latestErr  error
	forwardErr map[int64]error
	sendErr    map[int64]error
	mediaErr   map[int64]error
	calls      []call
	// before runs ahead of every per-target call.
	before func(op string, target int64)
}

func (f *fakeGateway) LatestMessage(ctx context.Context, source int64) (*gateway.Message, error) {
	f.note("latest", source)
	return f.latest, f.latestErr
}

func (f *fakeGateway) Forward(ctx context.Context, target, source int64, msgID int) error {
	f.note("forward", target)
	return f.forwardErr[target]
}

func (f *fakeGateway) SendText(ctx context.Context, target int64, text string) error {
	f.note("text", target)
	return f.sendErr[target]
}

func (f *fakeGateway) SendMedia(ctx context.Context, target int64, media gateway.MediaRef, caption string) error {
	f.note("media", target)
	return f.mediaErr[target]
}

func (f *fakeGateway) note(op string, target int64) {
	if f.before != nil && op != "latest" {
		f.before(op, target)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{op, target})
	f.mu.Unlock()
}

func (f *fakeGateway) callsTo(target int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.target == target && c.op != "latest" {
			out = append(out, c.op)
		}
	}
	return out
}

func (f *fakeGateway) targetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op != "latest" {
			n++
		}
	}
	return n
}

type rig struct {
	store    *storage.Memory
	settings *SettingsStore
	stats    *Aggregator
	engine   *Engine
}

func newRig(t *testing.T, gw Deliverer) *rig {
	t.Helper()
	store := storage.NewMemory()
	settings := NewSettingsStore(store, 10)
	stats := NewAggregator(store, logx.Nop())
	return &rig{
		store:    store,
		settings: settings,
		stats:    stats,
		engine:   NewEngine(gw, settings, stats, logx.Nop()),
	}
}

func (r *rig) seed(t *testing.T, fn func(*Settings)) Settings {
	t.Helper()
	s, err := r.settings.Update(context.Background(), fn)
	if err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	return s
}

func ptr[T any](v T) *T { return &v }
