// Package signals implements the signal lifecycle: creation, listing with
// expiry and proximity filtering, cancellation and deletion.
package signals

import (
	"context"
	"time"

	"github.com/signalfield/signalfield/internal/domain"
)

// Store defines the interface for signal persistence. Two implementations
// exist: a durable PostgreSQL store and an in-process fallback store. The
// service is written against this interface only.
type Store interface {
	// Insert adds a new signal. The durable store returns ErrSignalExists
	// on a duplicate id; the fallback store cannot collide by construction.
	Insert(ctx context.Context, signal *domain.Signal) error

	// SetActive updates the is_active flag. Returns ErrSignalNotFound if
	// no row matched.
	SetActive(ctx context.Context, id string, active bool) error

	// Delete removes a signal. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// ListActive returns all signals satisfying the visibility invariant
	// at the given instant. Ordering is insertion order for the fallback
	// store and server-determined for the durable store.
	ListActive(ctx context.Context, now time.Time) ([]*domain.Signal, error)

	// PurgeExpired physically removes signals whose expiry has passed,
	// regardless of the active flag. The durable store treats this as a
	// no-op and relies on query-time filtering, since the database may be
	// shared by multiple processes.
	PurgeExpired(ctx context.Context, now time.Time) error
}
