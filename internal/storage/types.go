package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrNotFound is returned by GetDoc when the key was never written.
	ErrNotFound = errors.New("storage: document not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON documents + audit.jsonl under Path (a directory)
//   - "sqlite": SQLite database file at Path
//   - "postgres": DSN
//   - "redis": Addr/Password/DB, keys prefixed with KeyPrefix
//   - "memory": process-local, lost on exit
//
// An empty Driver means "file".
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	ID            string    `json:"id"`
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// Store is the persistence API used by the broadcast and panel packages.
type Store interface {
	// GetDoc returns the raw JSON stored under key or ErrNotFound.
	GetDoc(ctx context.Context, key string) ([]byte, error)
	// PutDoc replaces the document stored under key.
	PutDoc(ctx context.Context, key string, doc []byte) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to n newest entries, newest first.
	RecentAudit(ctx context.Context, n int) ([]AuditEntry, error)
	Close() error
}
