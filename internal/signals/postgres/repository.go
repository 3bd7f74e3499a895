// Package postgres provides the PostgreSQL implementation of the signal store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/signalfield/signalfield/internal/domain"
	"github.com/signalfield/signalfield/internal/signals"
)

const uniqueViolationCode = "23505"

// Repository implements signals.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL signal repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert creates a new signal row. A duplicate id maps to ErrSignalExists.
func (r *Repository) Insert(ctx context.Context, signal *domain.Signal) error {
	query := `
		INSERT INTO signals (
			id, user_id, name, lat, lng, intent, photo_url,
			messenger, contact_info, gender, has_place,
			created_at, expires_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		signal.ID,
		signal.UserID,
		signal.Name,
		signal.Lat,
		signal.Lng,
		signal.Intent,
		signal.PhotoURL,
		signal.Messenger,
		signal.ContactInfo,
		signal.Gender,
		signal.HasPlace,
		signal.CreatedAt,
		signal.ExpiresAt,
		signal.IsActive,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return signals.ErrSignalExists
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// SetActive updates the is_active flag. Zero rows matched maps to
// ErrSignalNotFound.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE signals SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("update signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return signals.ErrSignalNotFound
	}
	return nil
}

// Delete removes a signal row. Deleting an absent id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM signals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete signal: %w", err)
	}
	return nil
}

// ListActive returns all visible signals. Visibility is enforced in the
// query so that rows past expiry never leave the database.
func (r *Repository) ListActive(ctx context.Context, now time.Time) ([]*domain.Signal, error) {
	query := `
		SELECT
			id, user_id, name, lat, lng, intent, photo_url,
			messenger, contact_info, gender, has_place,
			created_at, expires_at, is_active
		FROM signals
		WHERE is_active = true AND expires_at > $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []*domain.Signal
	for rows.Next() {
		var s domain.Signal
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Name,
			&s.Lat,
			&s.Lng,
			&s.Intent,
			&s.PhotoURL,
			&s.Messenger,
			&s.ContactInfo,
			&s.Gender,
			&s.HasPlace,
			&s.CreatedAt,
			&s.ExpiresAt,
			&s.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return out, nil
}

// PurgeExpired is a no-op for the durable store: the database may be shared
// by other processes, so expired rows are filtered at query time instead of
// physically deleted on the read path.
func (r *Repository) PurgeExpired(_ context.Context, _ time.Time) error {
	return nil
}

// DeleteExpiredBefore removes rows whose expiry passed before the cutoff.
// Intended for a periodic janitor, not the request path.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM signals WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired signals: %w", err)
	}
	return tag.RowsAffected(), nil
}
