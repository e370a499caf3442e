// Package storage provides the small persistence layer used by the relay.
//
// It stores:
//   - Singleton JSON documents (broadcast settings, delivery stats) by key
//   - An append-only audit trail of operator actions
//
// Drivers: file (default), sqlite, postgres, redis, memory.
package storage
