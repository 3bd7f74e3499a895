package signals

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/signalfield/signalfield/internal/domain"
	"github.com/signalfield/signalfield/internal/geo"
	"github.com/signalfield/signalfield/internal/pkg/ctxlog"
	"github.com/signalfield/signalfield/internal/pkg/httputil"
)

// Handler handles HTTP requests for the signals module.
type Handler struct {
	service   *Service
	watcher   http.Handler
	validator *validator.Validate
}

// NewHandler creates a new signals handler. The watcher serves the
// websocket change feed and may be nil when notifications are disabled.
func NewHandler(service *Service, watcher http.Handler) *Handler {
	return &Handler{
		service:   service,
		watcher:   watcher,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the public signal routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/signals", func(r chi.Router) {
		r.Post("/", h.CreateSignal)
		r.Get("/", h.ListSignals)
		if h.watcher != nil {
			r.Get("/watch", h.watcher.ServeHTTP)
		}
		r.Post("/{id}/cancel", h.CancelSignal)
		r.Delete("/{id}", h.DeleteSignal)
	})
}

// RegisterAdminRoutes registers moderation routes; callers must wrap them
// in admin authentication middleware.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Delete("/signals/{id}", h.DeleteSignal)
}

// CreateSignalRequest represents the request body for creating a signal.
type CreateSignalRequest struct {
	UserID          string   `json:"user_id" validate:"required,max=255"`
	Name            string   `json:"name" validate:"max=255"`
	Lat             *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng             *float64 `json:"lng" validate:"omitempty,longitude"`
	Address         string   `json:"address" validate:"max=512"`
	Intent          string   `json:"intent" validate:"required,max=255"`
	PhotoBase64     string   `json:"photo_base64"`
	Messenger       string   `json:"messenger" validate:"required,oneof=telegram whatsapp viber"`
	ContactInfo     string   `json:"contact_info" validate:"required,max=255"`
	Gender          string   `json:"gender" validate:"max=32"`
	HasPlace        bool     `json:"has_place"`
	DurationMinutes int      `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
}

// ToInput converts the request to a service input.
func (r *CreateSignalRequest) ToInput() CreateInput {
	return CreateInput{
		UserID:          r.UserID,
		Name:            r.Name,
		Lat:             r.Lat,
		Lng:             r.Lng,
		Address:         r.Address,
		Intent:          r.Intent,
		PhotoBase64:     r.PhotoBase64,
		Messenger:       domain.Messenger(r.Messenger),
		ContactInfo:     r.ContactInfo,
		Gender:          r.Gender,
		HasPlace:        r.HasPlace,
		DurationMinutes: r.DurationMinutes,
	}
}

// CreateSignal handles POST /signals.
func (h *Handler) CreateSignal(w http.ResponseWriter, r *http.Request) {
	var req CreateSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	signal, err := h.service.Create(r.Context(), req.ToInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrMissingFields, Status: http.StatusBadRequest},
			{Error: ErrInvalidDuration, Status: http.StatusBadRequest},
			{Error: ErrNoCoordinates, Status: http.StatusBadRequest},
			{Error: ErrSignalExists, Status: http.StatusConflict},
		})
		return
	}

	httputil.Success(w, http.StatusCreated, signal)
}

// ListSignals handles GET /signals. It never fails outward: internal errors
// yield an empty listing.
func (h *Handler) ListSignals(w http.ResponseWriter, r *http.Request) {
	center, radius, err := parseProximityQuery(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	listed, err := h.service.List(r.Context(), center, radius)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("list signals failed", "error", err)
		listed = nil
	}

	if listed == nil {
		listed = []*domain.Signal{}
	}
	httputil.Success(w, http.StatusOK, listed)
}

// CancelSignal handles POST /signals/{id}/cancel.
func (h *Handler) CancelSignal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Cancel(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrMissingFields, Status: http.StatusBadRequest, Message: "signal id required"},
			{Error: ErrSignalNotFound, Status: http.StatusNotFound},
		})
		return
	}

	httputil.Success(w, http.StatusOK, map[string]bool{"canceled": true})
}

// DeleteSignal handles DELETE /signals/{id}. Deletion is idempotent and
// reports success even when the id was already absent.
func (h *Handler) DeleteSignal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrMissingFields, Status: http.StatusBadRequest, Message: "signal id required"},
		})
		return
	}

	httputil.Success(w, http.StatusOK, map[string]bool{"deleted": true})
}

// parseProximityQuery extracts the optional center point and radius.
// lat and lng must be supplied together; radius without a center is ignored.
func parseProximityQuery(r *http.Request) (*geo.Point, float64, error) {
	q := r.URL.Query()
	latStr, lngStr := q.Get("lat"), q.Get("lng")

	if latStr == "" && lngStr == "" {
		return nil, 0, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, 0, errors.New("lat and lng must be supplied together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, 0, errors.New("invalid lat")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, 0, errors.New("invalid lng")
	}

	radius := float64(geo.DefaultRadiusMeters)
	if radiusStr := q.Get("radius"); radiusStr != "" {
		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil || radius < 0 {
			return nil, 0, errors.New("invalid radius")
		}
	}

	return &geo.Point{Lat: lat, Lng: lng}, radius, nil
}
