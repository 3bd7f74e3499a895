package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/signalfield/signalfield/internal/pkg/ctxlog"
	"github.com/signalfield/signalfield/internal/pkg/httputil"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw request body.
const SignatureHeader = "Paddle-Signature"

// maxWebhookBody limits how much of a webhook request we are willing to read.
const maxWebhookBody = 1 << 20

// Handler receives payment provider webhooks.
type Handler struct {
	service *Service
	secret  []byte
}

// NewHandler creates a billing webhook handler. An empty secret disables
// signature verification, which is only acceptable in local development.
func NewHandler(service *Service, secret string) *Handler {
	return &Handler{service: service, secret: []byte(secret)}
}

// RegisterRoutes registers billing routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/webhook", h.Webhook)
}

// webhookEvent is the outer shape of every provider event.
type webhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Webhook handles POST /billing/webhook.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	if h.service == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if len(h.secret) > 0 && !h.verifySignature(body, r.Header.Get(SignatureHeader)) {
		logger.Warn("webhook signature verification failed")
		httputil.Error(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if event.Type == "" {
		httputil.Error(w, http.StatusBadRequest, "missing event type")
		return
	}

	if err := h.service.HandleEvent(r.Context(), event.Type, event.Data); err != nil {
		logger.Error("failed to process webhook event", "event_type", event.Type, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	httputil.Success(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
