// Package billing processes payment provider webhooks and maintains
// subscription records. It is entirely webhook-driven; checkout itself
// happens on the provider's side.
package billing

import (
	"context"
	"errors"

	"github.com/signalfield/signalfield/internal/domain"
)

// Repository errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Repository defines the interface for subscription storage. Unlike
// signals, subscriptions have no in-memory fallback: billing state must
// not silently evaporate, so the webhook rejects events when the durable
// store is unavailable and the provider retries them.
type Repository interface {
	Upsert(ctx context.Context, sub *domain.Subscription) error
	SetStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error
	GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error)
}
