package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/signalfield/signalfield/internal/pkg/httputil"
)

// Handler handles HTTP requests for anonymous identity.
type Handler struct {
	auth *Authenticator
}

// NewHandler creates a new identity handler.
func NewHandler(auth *Authenticator) *Handler {
	return &Handler{auth: auth}
}

// RegisterRoutes registers identity routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/anonymous", h.IssueAnonymous)
		r.Get("/me", h.Me)
	})
}

// TokenResponse is the issued-identity payload.
type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueAnonymous handles POST /auth/anonymous.
func (h *Handler) IssueAnonymous(w http.ResponseWriter, r *http.Request) {
	token, userID, expiresAt, err := h.auth.IssueAnonymous()
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusCreated, TokenResponse{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	})
}

// Me handles GET /auth/me: token introspection for clients restoring a
// stored identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		httputil.Error(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	userID, err := h.auth.Validate(parts[1])
	if err != nil {
		httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"user_id": userID})
}
