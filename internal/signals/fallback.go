package signals

import (
	"context"
	"errors"
	"time"

	"github.com/signalfield/signalfield/internal/domain"
	"github.com/signalfield/signalfield/internal/pkg/ctxlog"
	"github.com/signalfield/signalfield/internal/pkg/metrics"
)

// FallbackStore routes every operation to the durable store first and, on
// failure, transparently redoes it against the in-memory fallback. The
// service prioritizes availability over durability: backend errors are
// logged and swallowed, never surfaced to the caller.
//
// Records that land in the fallback store stay there; there is no
// reconciliation back into the durable store.
type FallbackStore struct {
	primary  Store
	fallback Store
}

// NewFallbackStore wraps a durable store with an in-memory fallback.
func NewFallbackStore(primary, fallback Store) *FallbackStore {
	return &FallbackStore{primary: primary, fallback: fallback}
}

// Insert writes to the durable store, degrading to the fallback on failure.
// A duplicate-id conflict is a real outcome and is not retried in memory.
func (f *FallbackStore) Insert(ctx context.Context, signal *domain.Signal) error {
	err := f.primary.Insert(ctx, signal)
	if err == nil || errors.Is(err, ErrSignalExists) {
		return err
	}

	ctxlog.FromContext(ctx).Warn("durable insert failed, using fallback store", "error", err)
	metrics.FallbackWrites.WithLabelValues("insert").Inc()
	return f.fallback.Insert(ctx, signal)
}

// SetActive updates the flag wherever the signal lives. A not-found from
// the durable store is retried against the fallback, since a degraded
// create may have landed the record there.
func (f *FallbackStore) SetActive(ctx context.Context, id string, active bool) error {
	err := f.primary.SetActive(ctx, id, active)
	if err == nil {
		return nil
	}

	if !errors.Is(err, ErrSignalNotFound) {
		ctxlog.FromContext(ctx).Warn("durable update failed, using fallback store", "error", err)
		metrics.FallbackWrites.WithLabelValues("set_active").Inc()
	}
	return f.fallback.SetActive(ctx, id, active)
}

// Delete removes the signal from both stores. Each delete is idempotent, so
// issuing both keeps the two views consistent even when only one holds the
// record.
func (f *FallbackStore) Delete(ctx context.Context, id string) error {
	if err := f.primary.Delete(ctx, id); err != nil {
		ctxlog.FromContext(ctx).Warn("durable delete failed, using fallback store", "error", err)
		metrics.FallbackWrites.WithLabelValues("delete").Inc()
	}
	return f.fallback.Delete(ctx, id)
}

// ListActive merges nothing: the durable listing wins when it succeeds and
// returns rows; otherwise the fallback listing serves the request.
func (f *FallbackStore) ListActive(ctx context.Context, now time.Time) ([]*domain.Signal, error) {
	listed, err := f.primary.ListActive(ctx, now)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("durable list failed, using fallback store", "error", err)
		return f.fallback.ListActive(ctx, now)
	}
	if len(listed) == 0 {
		// Degraded-mode writes are only visible in memory.
		return f.fallback.ListActive(ctx, now)
	}
	return listed, nil
}

// PurgeExpired sweeps the fallback store. The durable store's purge is a
// query-time concern and a no-op here.
func (f *FallbackStore) PurgeExpired(ctx context.Context, now time.Time) error {
	if err := f.primary.PurgeExpired(ctx, now); err != nil {
		ctxlog.FromContext(ctx).Warn("durable purge failed", "error", err)
	}
	return f.fallback.PurgeExpired(ctx, now)
}
