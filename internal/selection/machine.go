// Package selection holds the in-memory picker the panel uses to choose one
// source conversation and any number of targets.
package selection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"relaybot/internal/gateway"
	"relaybot/pkg/tgui"
)

// PageSize is the number of candidates shown per page.
const PageSize = 5

type Mode string

const (
	ModeIdle    Mode = "none"
	ModeSource  Mode = "source"
	ModeTargets Mode = "target"
)

var ErrWrongMode = errors.New("selection: operation not allowed in current mode")

// ChatLister is the part of the gateway the picker needs.
type ChatLister interface {
	ListChats(ctx context.Context) ([]gateway.Chat, error)
}

// Machine is safe for concurrent use; the panel still funnels one operator through it.
type Machine struct {
	mu         sync.Mutex
	mode       Mode
	candidates []gateway.Chat
	page       int
	selected   map[int64]struct{}
}

func New() *Machine {
	return &Machine{mode: ModeIdle, selected: map[int64]struct{}{}}
}

// OpenSource loads candidates and enters source mode on page 0.
func (m *Machine) OpenSource(ctx context.Context, lister ChatLister) error {
	chats, err := lister.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeSource
	m.candidates = chats
	m.page = 0
	m.selected = map[int64]struct{}{}
	return nil
}

// OpenTargets loads candidates, enters target mode on page 0 and seeds the
// selection with the currently saved targets.
func (m *Machine) OpenTargets(ctx context.Context, lister ChatLister, current []int64) error {
	chats, err := lister.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeTargets
	m.candidates = chats
	m.page = 0
	m.selected = make(map[int64]struct{}, len(current))
	for _, id := range current {
		m.selected[id] = struct{}{}
	}
	return nil
}

// SetPage clamps n into the valid page range and returns the page actually set.
func (m *Machine) SetPage(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.page = tgui.ClampPage(n, len(m.candidates), PageSize)
	return m.page
}

// Toggle flips membership of id. Applying it twice restores the original set.
func (m *Machine) Toggle(id int64) (selected bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeTargets {
		return false, ErrWrongMode
	}
	if _, ok := m.selected[id]; ok {
		delete(m.selected, id)
		return false, nil
	}
	m.selected[id] = struct{}{}
	return true, nil
}

// SelectAll adds every candidate to the selection.
func (m *Machine) SelectAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeTargets {
		return ErrWrongMode
	}
	for _, c := range m.candidates {
		m.selected[c.ID] = struct{}{}
	}
	return nil
}

func (m *Machine) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeTargets {
		return ErrWrongMode
	}
	m.selected = map[int64]struct{}{}
	return nil
}

// SaveTargets returns the selection in candidate order, followed by selected
// ids that are no longer candidates (ascending), and goes back to idle.
func (m *Machine) SaveTargets() ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeTargets {
		return nil, ErrWrongMode
	}
	out := make([]int64, 0, len(m.selected))
	seen := make(map[int64]struct{}, len(m.selected))
	for _, c := range m.candidates {
		if _, ok := m.selected[c.ID]; !ok {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c.ID)
	}
	var extra []int64
	for id := range m.selected {
		if _, ok := seen[id]; !ok {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	out = append(out, extra...)
	m.resetLocked()
	return out, nil
}

// PickSource confirms id as the source and goes back to idle.
func (m *Machine) PickSource(id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeSource {
		return 0, ErrWrongMode
	}
	m.resetLocked()
	return id, nil
}

// Reset abandons any picking in progress.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

func (m *Machine) resetLocked() {
	m.mode = ModeIdle
	m.candidates = nil
	m.page = 0
	m.selected = map[int64]struct{}{}
}

func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Machine) Page() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.page
}

// Pages is max(1, ceil(candidates/PageSize)).
func (m *Machine) Pages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tgui.PageCount(len(m.candidates), PageSize)
}

// PageItems returns the candidates of the current page.
func (m *Machine) PageItems() []gateway.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, _ := tgui.PaginateSlice(m.candidates, m.page, PageSize)
	return slices.Clone(items)
}

func (m *Machine) Candidates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.candidates)
}

// Selected returns the selected ids in ascending order.
func (m *Machine) Selected() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.selected))
	for id := range m.selected {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (m *Machine) IsSelected(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.selected[id]
	return ok
}

// Lookup finds a candidate by id.
func (m *Machine) Lookup(id int64) (gateway.Chat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.candidates {
		if c.ID == id {
			return c, true
		}
	}
	return gateway.Chat{}, false
}
