package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalfield/signalfield/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("connection refused")

func downStore() *fakeStore {
	return &fakeStore{
		insertErr: errBackendDown,
		listErr:   errBackendDown,
		setErr:    errBackendDown,
	}
}

func activeSignal(id string) *domain.Signal {
	return &domain.Signal{
		ID:        id,
		UserID:    "user-1",
		Intent:    "coffee",
		ExpiresAt: time.Now().Add(time.Hour),
		IsActive:  true,
	}
}

func TestFallback_InsertDegradesOnBackendError(t *testing.T) {
	ctx := context.Background()
	fallback := &fakeStore{}
	router := NewFallbackStore(downStore(), fallback)

	require.NoError(t, router.Insert(ctx, activeSignal("a")))
	require.Len(t, fallback.signals, 1)

	// The degraded write must be served by subsequent listings.
	listed, err := router.ListActive(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "a", listed[0].ID)
}

func TestFallback_InsertConflictIsNotRetried(t *testing.T) {
	primary := &fakeStore{insertErr: ErrSignalExists}
	fallback := &fakeStore{}
	router := NewFallbackStore(primary, fallback)

	err := router.Insert(context.Background(), activeSignal("a"))
	assert.ErrorIs(t, err, ErrSignalExists)
	assert.Empty(t, fallback.signals)
}

func TestFallback_PrimaryWinsWhenHealthy(t *testing.T) {
	ctx := context.Background()
	primary := &fakeStore{}
	fallback := &fakeStore{}
	router := NewFallbackStore(primary, fallback)

	require.NoError(t, router.Insert(ctx, activeSignal("a")))
	require.Len(t, primary.signals, 1)
	assert.Empty(t, fallback.signals)
}

func TestFallback_ListFallsBackWhenPrimaryEmpty(t *testing.T) {
	ctx := context.Background()
	primary := &fakeStore{}
	fallback := &fakeStore{}
	require.NoError(t, fallback.Insert(ctx, activeSignal("mem-only")))

	router := NewFallbackStore(primary, fallback)

	listed, err := router.ListActive(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "mem-only", listed[0].ID)
}

func TestFallback_SetActiveFindsFallbackRecord(t *testing.T) {
	ctx := context.Background()
	primary := &fakeStore{} // healthy but does not hold the record
	fallback := &fakeStore{}
	require.NoError(t, fallback.Insert(ctx, activeSignal("mem-only")))

	router := NewFallbackStore(primary, fallback)

	require.NoError(t, router.SetActive(ctx, "mem-only", false))
	assert.False(t, fallback.signals[0].IsActive)
}

func TestFallback_SetActiveNotFoundAnywhere(t *testing.T) {
	router := NewFallbackStore(&fakeStore{}, &fakeStore{})
	err := router.SetActive(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrSignalNotFound)
}

func TestFallback_DeleteRemovesFromBothStores(t *testing.T) {
	ctx := context.Background()
	primary := &fakeStore{}
	fallback := &fakeStore{}
	require.NoError(t, primary.Insert(ctx, activeSignal("a")))
	require.NoError(t, fallback.Insert(ctx, activeSignal("a")))

	router := NewFallbackStore(primary, fallback)

	require.NoError(t, router.Delete(ctx, "a"))
	assert.Empty(t, primary.signals)
	assert.Empty(t, fallback.signals)
}
