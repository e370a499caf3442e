package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"relaybot/internal/storage"
)

const settingsKey = "settings"

// DefaultIntervalMinutes is used when the process config does not set one.
const DefaultIntervalMinutes = 10

type SendMode string

const (
	SendLast  SendMode = "last"
	SendFixed SendMode = "fixed"
)

// Settings is the persisted broadcast configuration.
type Settings struct {
	SourceID        *int64     `json:"sourceId"`
	TargetIDs       []int64    `json:"targetIds"`
	IntervalMinutes int        `json:"intervalMinutes"`
	Enabled         bool       `json:"enabled"`
	SendMode        SendMode   `json:"sendMode"`
	FixedMessage    string     `json:"fixedMessage"`
	JitterSeconds   int        `json:"jitterSeconds"`
	LastRunAt       *time.Time `json:"lastRunAt"`
}

// Normalize enforces the document invariants in place.
func (s *Settings) Normalize() {
	if s.IntervalMinutes < 1 {
		s.IntervalMinutes = 1
	}
	if s.JitterSeconds < 0 {
		s.JitterSeconds = 0
	}
	if s.SendMode != SendFixed {
		s.SendMode = SendLast
	}
	seen := make(map[int64]struct{}, len(s.TargetIDs))
	out := make([]int64, 0, len(s.TargetIDs))
	for _, id := range s.TargetIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	s.TargetIDs = out
}

// Ready returns nil when a cycle can run with these settings.
func (s Settings) Ready() error {
	switch {
	case !s.Enabled:
		return fmt.Errorf("%w: broadcast disabled", ErrNotConfigured)
	case s.SourceID == nil:
		return fmt.Errorf("%w: no source selected", ErrNotConfigured)
	case len(s.TargetIDs) == 0:
		return fmt.Errorf("%w: no targets selected", ErrNotConfigured)
	case s.SendMode == SendFixed && s.FixedMessage == "":
		return fmt.Errorf("%w: fixed message is empty", ErrNotConfigured)
	}
	return nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s Settings) Clone() Settings {
	out := s
	out.TargetIDs = slices.Clone(s.TargetIDs)
	if s.SourceID != nil {
		v := *s.SourceID
		out.SourceID = &v
	}
	if s.LastRunAt != nil {
		v := *s.LastRunAt
		out.LastRunAt = &v
	}
	return out
}

// SettingsStore loads and saves the settings document.
// Writes are read-modify-write; the last writer wins.
type SettingsStore struct {
	store           storage.Store
	mu              sync.Mutex
	defaultInterval atomic.Int64
}

func NewSettingsStore(store storage.Store, defaultInterval int) *SettingsStore {
	s := &SettingsStore{store: store}
	s.SetDefaultInterval(defaultInterval)
	return s
}

// SetDefaultInterval changes the interval used for documents that lack one.
func (s *SettingsStore) SetDefaultInterval(minutes int) {
	if minutes < 1 {
		minutes = DefaultIntervalMinutes
	}
	s.defaultInterval.Store(int64(minutes))
}

func (s *SettingsStore) Defaults() Settings {
	return Settings{
		TargetIDs:       []int64{},
		IntervalMinutes: int(s.defaultInterval.Load()),
		SendMode:        SendLast,
	}
}

// Load returns the stored settings merged over defaults. A missing document
// is created from defaults. A corrupt one yields defaults and the decode error.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *SettingsStore) loadLocked(ctx context.Context) (Settings, error) {
	out := s.Defaults()
	raw, err := s.store.GetDoc(ctx, settingsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return s.saveLocked(ctx, out)
	}
	if err != nil {
		return out, fmt.Errorf("load settings: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return s.Defaults(), fmt.Errorf("decode settings: %w", err)
	}
	out.Normalize()
	return out, nil
}

// Save normalizes v, persists it and returns the stored value.
func (s *SettingsStore) Save(ctx context.Context, v Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, v)
}

func (s *SettingsStore) saveLocked(ctx context.Context, v Settings) (Settings, error) {
	v = v.Clone()
	v.Normalize()
	raw, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.PutDoc(ctx, settingsKey, raw); err != nil {
		return v, fmt.Errorf("save settings: %w", err)
	}
	return v, nil
}

// Update applies fn to the current settings and saves the result.
func (s *SettingsStore) Update(ctx context.Context, fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.loadLocked(ctx)
	if err != nil {
		return cur, err
	}
	fn(&cur)
	return s.saveLocked(ctx, cur)
}
