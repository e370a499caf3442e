package storage

import (
	"context"
	"slices"
	"sync"
)

// Memory is a process-local Store, used by tests and the "memory" driver.
type Memory struct {
	mu    sync.Mutex
	docs  map[string][]byte
	audit []AuditEntry
}

func NewMemory() *Memory {
	return &Memory{docs: map[string][]byte{}}
}

func (m *Memory) GetDoc(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(b), nil
}

func (m *Memory) PutDoc(ctx context.Context, key string, doc []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[key] = slices.Clone(doc)
	m.mu.Unlock()
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	m.mu.Lock()
	m.audit = append(m.audit, stamp(e))
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.audit, n), nil
}

func (m *Memory) Close() error { return nil }

func newestFirst(entries []AuditEntry, n int) []AuditEntry {
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]AuditEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}
