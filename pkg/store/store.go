// Package store persists the core's durable state: authorization
// sessions and the consent event queue. Both live in a shared SQL
// store (SQLite file for the extension's local profile, Postgres for
// hosted deployments) so that pending state survives process
// restarts.
//
// The dispatcher is the only writer of sessions; the UI observes
// copies and revokes by id. Every invariant the core relies on is
// expressed as a single-key upsert or a dedup-checked insert, so no
// multi-statement transactions are required.
package store

import (
	"context"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
)

// SessionStore is the durable (host, network) -> authorized accounts
// mapping.
type SessionStore interface {
	// Upsert inserts or replaces the session for its (host, network)
	// pair. On replace the stored id and CreatedAt are preserved and
	// the returned session reflects them; addresses and UsedAt are
	// taken from s.
	Upsert(ctx context.Context, s *contracts.Session) (*contracts.Session, error)

	// FindByHostAndNetwork returns the active session for the pair,
	// or nil when none exists.
	FindByHostAndNetwork(ctx context.Context, host string, network contracts.Network) (*contracts.Session, error)

	// FindAllByHost returns every session for host.
	FindAllByHost(ctx context.Context, host string) ([]*contracts.Session, error)

	// RemoveByIDs deletes the named sessions and returns the ids that
	// were actually removed. Unknown ids are skipped, not errors.
	RemoveByIDs(ctx context.Context, ids []string) ([]string, error)

	// RemoveAll deletes every session.
	RemoveAll(ctx context.Context) error
}

// EventQueue is the durable FIFO-per-kind store of requests awaiting
// human consent.
type EventQueue interface {
	// Enqueue appends ev unless an event for the same underlying
	// request id already exists. It reports whether a write occurred;
	// false means the arrival was a duplicate and was discarded.
	Enqueue(ctx context.Context, ev *contracts.QueuedEvent) (bool, error)

	// GetByID returns the event, or nil when it no longer exists.
	GetByID(ctx context.Context, id string) (*contracts.QueuedEvent, error)

	// ListByKind returns pending events of one kind in arrival order.
	ListByKind(ctx context.Context, kind contracts.Kind) ([]*contracts.QueuedEvent, error)

	// RemoveByID deletes the event. Removing an absent id is a no-op.
	RemoveByID(ctx context.Context, id string) error
}
