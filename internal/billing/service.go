package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/signalfield/signalfield/internal/domain"
	"github.com/signalfield/signalfield/internal/pkg/ctxlog"
)

// Webhook event types, following the payment provider's naming.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventTransactionCompleted = "transaction.completed"
	EventTransactionBilled    = "transaction.billed"
)

// Service applies webhook events to subscription records.
type Service struct {
	repo Repository
}

// NewService creates a billing service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// subscriptionData mirrors the provider's subscription payload.
type subscriptionData struct {
	ID                   string `json:"id"`
	CustomerID           string `json:"customer_id"`
	Status               string `json:"status"`
	Passthrough          string `json:"passthrough"`
	CurrentBillingPeriod *struct {
		StartsAt *time.Time `json:"starts_at"`
		EndsAt   *time.Time `json:"ends_at"`
	} `json:"current_billing_period"`
}

// transactionData mirrors the provider's transaction payload.
type transactionData struct {
	ID string `json:"id"`
}

// HandleEvent dispatches a verified webhook event. Unknown event types are
// logged and acknowledged so the provider does not retry them forever.
func (s *Service) HandleEvent(ctx context.Context, eventType string, data json.RawMessage) error {
	logger := ctxlog.FromContext(ctx)

	switch eventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.upsertSubscription(ctx, data)

	case EventSubscriptionCanceled:
		var sub subscriptionData
		if err := json.Unmarshal(data, &sub); err != nil {
			return fmt.Errorf("decode subscription payload: %w", err)
		}
		err := s.repo.SetStatus(ctx, sub.ID, domain.SubscriptionCanceled)
		if errors.Is(err, ErrSubscriptionNotFound) {
			// out-of-order delivery; acknowledge so the provider stops retrying
			logger.Warn("cancel for unknown subscription", "subscription_id", sub.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
		}
		logger.Info("subscription canceled", "subscription_id", sub.ID)
		return nil

	case EventTransactionCompleted, EventTransactionBilled:
		var tx transactionData
		if err := json.Unmarshal(data, &tx); err != nil {
			return fmt.Errorf("decode transaction payload: %w", err)
		}
		logger.Info("payment event acknowledged", "event_type", eventType, "transaction_id", tx.ID)
		return nil

	default:
		logger.Info("unhandled webhook event type", "event_type", eventType)
		return nil
	}
}

// GetSubscription returns the subscription for a user.
func (s *Service) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *Service) upsertSubscription(ctx context.Context, data json.RawMessage) error {
	var payload subscriptionData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode subscription payload: %w", err)
	}

	// The user id travels out-of-band through the checkout passthrough.
	var passthrough struct {
		UserID string `json:"userId"`
	}
	if payload.Passthrough != "" {
		if err := json.Unmarshal([]byte(payload.Passthrough), &passthrough); err != nil {
			ctxlog.FromContext(ctx).Warn("malformed passthrough, storing without user id",
				"subscription_id", payload.ID, "error", err)
		}
	}

	status := domain.SubscriptionInactive
	if payload.Status == "active" {
		status = domain.SubscriptionActive
	}

	sub := &domain.Subscription{
		ID:         payload.ID,
		UserID:     passthrough.UserID,
		CustomerID: payload.CustomerID,
		Tier:       domain.TierPremium,
		Status:     status,
	}
	if payload.CurrentBillingPeriod != nil {
		sub.CurrentPeriodStart = payload.CurrentBillingPeriod.StartsAt
		sub.CurrentPeriodEnd = payload.CurrentBillingPeriod.EndsAt
	}

	if err := s.repo.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}

	ctxlog.FromContext(ctx).Info("subscription updated",
		"subscription_id", sub.ID,
		"status", sub.Status,
	)
	return nil
}
