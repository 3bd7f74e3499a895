// Package memory provides the in-process fallback signal store. It is used
// when no database is configured or when the durable store is unreachable,
// trading durability for availability.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/signalfield/signalfield/internal/domain"
	"github.com/signalfield/signalfield/internal/signals"
)

// DefaultCap bounds retained signals; the oldest are evicted first.
const DefaultCap = 100

// Store is a mutex-guarded, insertion-ordered signal list.
type Store struct {
	mu      sync.Mutex
	signals []*domain.Signal
	cap     int
}

// NewStore creates an empty fallback store with the default capacity.
func NewStore() *Store {
	return NewStoreWithCap(DefaultCap)
}

// NewStoreWithCap creates an empty fallback store with the given capacity.
func NewStoreWithCap(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Store{cap: capacity}
}

// Insert appends a signal, evicting the oldest entries beyond capacity.
// Ids are derived from timestamp plus a random suffix, so no duplicate
// check is performed here.
func (s *Store) Insert(_ context.Context, signal *domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *signal
	s.signals = append(s.signals, &copied)
	if len(s.signals) > s.cap {
		s.signals = s.signals[len(s.signals)-s.cap:]
	}
	return nil
}

// SetActive updates the active flag of the signal with the given id.
func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sig := range s.signals {
		if sig.ID == id {
			sig.IsActive = active
			return nil
		}
	}
	return signals.ErrSignalNotFound
}

// Delete removes the signal with the given id if present.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sig := range s.signals {
		if sig.ID == id {
			s.signals = append(s.signals[:i], s.signals[i+1:]...)
			return nil
		}
	}
	return nil
}

// ListActive returns visible signals in insertion order.
func (s *Store) ListActive(_ context.Context, now time.Time) ([]*domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		if sig.VisibleAt(now) {
			copied := *sig
			out = append(out, &copied)
		}
	}
	return out, nil
}

// PurgeExpired drops every signal whose expiry has passed, regardless of
// the active flag.
func (s *Store) PurgeExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.signals[:0]
	for _, sig := range s.signals {
		if !sig.ExpiredAt(now) {
			kept = append(kept, sig)
		}
	}
	// Release references to purged entries.
	for i := len(kept); i < len(s.signals); i++ {
		s.signals[i] = nil
	}
	s.signals = kept
	return nil
}

// Len returns the number of retained signals, visible or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals)
}
