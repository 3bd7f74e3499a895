package signals

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/signalfield/signalfield/internal/domain"
	"github.com/signalfield/signalfield/internal/geo"
	"github.com/signalfield/signalfield/internal/pkg/ctxlog"
	"github.com/signalfield/signalfield/internal/pkg/metrics"
	"golang.org/x/text/unicode/norm"
)

// DefaultDurationMinutes is applied when a creation request omits the
// duration. Chosen as the single defaulting policy for every caller.
const DefaultDurationMinutes = 30

const sideEffectTimeout = 5 * time.Second

// BlobUploader migrates inline photo payloads to durable blob storage.
type BlobUploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Geocoder resolves a free-text address to coordinates. A nil point with a
// nil error means the address could not be resolved.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geo.Point, error)
}

// ChangeBroadcaster pushes signal change events to connected watchers.
type ChangeBroadcaster interface {
	Broadcast(eventType, signalID string)
}

// Change event types sent to watchers.
const (
	ChangeCreated  = "created"
	ChangeCanceled = "canceled"
	ChangeDeleted  = "deleted"
)

// Service implements signal lifecycle business logic. It never caches
// signals beyond a single request; the store exclusively owns the records.
type Service struct {
	store    Store
	blobs    BlobUploader
	geocoder Geocoder
	notifier ChangeBroadcaster
	now      func() time.Time
}

// NewService creates a signal lifecycle service. The blob uploader, geocoder
// and notifier are optional collaborators and may be nil.
func NewService(store Store, blobs BlobUploader, geocoder Geocoder, notifier ChangeBroadcaster) *Service {
	return &Service{
		store:    store,
		blobs:    blobs,
		geocoder: geocoder,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateInput holds data for creating a signal.
type CreateInput struct {
	UserID          string
	Name            string
	Lat             *float64
	Lng             *float64
	Address         string
	Intent          string
	PhotoBase64     string
	Messenger       domain.Messenger
	ContactInfo     string
	Gender          string
	HasPlace        bool
	DurationMinutes int
}

// Create validates the input, resolves coordinates and the photo reference,
// and persists a new signal. Photo migration and geocoding are best-effort
// side operations and never fail the creation.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Signal, error) {
	if input.UserID == "" || input.Intent == "" || input.ContactInfo == "" {
		return nil, ErrMissingFields
	}
	if !input.Messenger.IsValid() {
		return nil, fmt.Errorf("%w: unknown messenger %q", ErrMissingFields, input.Messenger)
	}
	if input.DurationMinutes < 0 {
		return nil, ErrInvalidDuration
	}

	duration := input.DurationMinutes
	if duration == 0 {
		duration = DefaultDurationMinutes
	}

	point, err := s.resolveLocation(ctx, input)
	if err != nil {
		return nil, err
	}

	now := s.now()
	intent := norm.NFC.String(strings.TrimSpace(input.Intent))

	signal := &domain.Signal{
		ID:          newSignalID(now),
		UserID:      input.UserID,
		Name:        norm.NFC.String(strings.TrimSpace(input.Name)),
		Lat:         point.Lat,
		Lng:         point.Lng,
		Intent:      intent,
		PhotoURL:    s.resolvePhotoURL(ctx, input.UserID, intent, input.PhotoBase64, now),
		Messenger:   input.Messenger,
		ContactInfo: strings.TrimSpace(input.ContactInfo),
		Gender:      input.Gender,
		HasPlace:    input.HasPlace,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(duration) * time.Minute),
		IsActive:    true,
	}

	if err := s.store.Insert(ctx, signal); err != nil {
		return nil, fmt.Errorf("insert signal: %w", err)
	}

	metrics.SignalsCreated.Inc()
	s.broadcast(ChangeCreated, signal.ID)
	return signal, nil
}

// List returns visible signals, proximity-filtered when a center point is
// supplied. Expired entries are purged from the fallback path first.
func (s *Service) List(ctx context.Context, center *geo.Point, radiusMeters float64) ([]*domain.Signal, error) {
	now := s.now()

	if err := s.store.PurgeExpired(ctx, now); err != nil {
		ctxlog.FromContext(ctx).Warn("purge expired signals failed", "error", err)
	}

	listed, err := s.store.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}

	if center == nil {
		return listed, nil
	}

	// Radius zero is meaningful (exact-coincident points only); the
	// default applies when the caller did not specify one.
	if radiusMeters < 0 {
		radiusMeters = geo.DefaultRadiusMeters
	}

	filtered := make([]*domain.Signal, 0, len(listed))
	for _, sig := range listed {
		if geo.WithinRadius(*center, geo.Point{Lat: sig.Lat, Lng: sig.Lng}, radiusMeters) {
			filtered = append(filtered, sig)
		}
	}
	return filtered, nil
}

// Cancel marks a signal inactive. The transition is one-way; canceling an
// already-canceled signal is a no-op success.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingFields
	}
	if err := s.store.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.broadcast(ChangeCanceled, id)
	return nil
}

// Delete hard-removes a signal. Deleting an absent id succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingFields
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete signal: %w", err)
	}
	s.broadcast(ChangeDeleted, id)
	return nil
}

// resolveLocation returns explicit coordinates when present, otherwise
// geocodes the free-text address. Geocoding is best-effort; without a
// result the creation is rejected since coordinates are required.
func (s *Service) resolveLocation(ctx context.Context, input CreateInput) (*geo.Point, error) {
	if input.Lat != nil && input.Lng != nil {
		return &geo.Point{Lat: *input.Lat, Lng: *input.Lng}, nil
	}

	if s.geocoder != nil && input.Address != "" {
		point := bestEffort(ctx, sideEffectTimeout, (*geo.Point)(nil), func(ctx context.Context) (*geo.Point, error) {
			return s.geocoder.Geocode(ctx, input.Address)
		})
		if point != nil {
			return point, nil
		}
	}

	return nil, ErrNoCoordinates
}

// resolvePhotoURL migrates an inline-encoded photo to blob storage and
// returns its public URL. On any failure the inline payload is kept; with
// no payload at all a placeholder embedding the intent text is used.
func (s *Service) resolvePhotoURL(ctx context.Context, userID, intent, photo string, now time.Time) string {
	if photo == "" {
		return "https://via.placeholder.com/200?text=" + url.QueryEscape(intent)
	}

	if s.blobs == nil || !strings.Contains(photo, "data:image") {
		return photo
	}

	data, contentType, err := decodeInlineImage(photo)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("invalid inline photo payload, keeping as-is", "error", err)
		return photo
	}

	key := fmt.Sprintf("%s-%d.jpg", userID, now.UnixMilli())
	return bestEffort(ctx, sideEffectTimeout, photo, func(ctx context.Context) (string, error) {
		return s.blobs.Upload(ctx, key, data, contentType)
	})
}

func (s *Service) broadcast(eventType, id string) {
	if s.notifier != nil {
		s.notifier.Broadcast(eventType, id)
	}
}

// bestEffort runs a side operation under a bounded timeout and returns the
// fallback value on any failure. Centralizes the degrade-gracefully
// contract shared by photo migration and geocoding.
func bestEffort[T any](ctx context.Context, timeout time.Duration, fallback T, op func(context.Context) (T, error)) T {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := op(opCtx)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("best-effort side operation failed", "error", err)
		return fallback
	}
	return result
}

// newSignalID builds an id from the creation timestamp plus a random
// suffix, making fallback-store collisions impossible by construction.
func newSignalID(now time.Time) string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("signal_%d_%s", now.UnixMilli(), suffix)
}

// decodeInlineImage splits a data URL into raw bytes and a content type.
// Bare base64 without the data: prefix is tolerated, matching lenient
// client behavior.
func decodeInlineImage(photo string) ([]byte, string, error) {
	payload := photo
	contentType := "image/jpeg"

	if idx := strings.Index(photo, ","); idx >= 0 {
		header := photo[:idx]
		payload = photo[idx+1:]
		if mt, ok := strings.CutPrefix(header, "data:"); ok {
			if semi := strings.Index(mt, ";"); semi >= 0 {
				mt = mt[:semi]
			}
			if mt != "" {
				contentType = mt
			}
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, contentType, nil
}
