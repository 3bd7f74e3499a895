// Package postgres provides the PostgreSQL implementation of the
// subscription repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/signalfield/signalfield/internal/billing"
	"github.com/signalfield/signalfield/internal/domain"
)

// Repository implements billing.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL subscription repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert inserts or updates a subscription keyed by the provider id.
func (r *Repository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, customer_id, tier, status,
			current_period_start, current_period_end, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			customer_id = EXCLUDED.customer_id,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = now()
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.UserID,
		sub.CustomerID,
		sub.Tier,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// SetStatus updates the billing status of a subscription.
func (r *Repository) SetStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

// GetByUserID returns the most recently updated subscription for a user.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT
			id, user_id, customer_id, tier, status,
			current_period_start, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var sub domain.Subscription
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.CustomerID,
		&sub.Tier,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}
