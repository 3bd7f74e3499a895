package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalfield/signalfield/internal/domain"
)

type fakeRepo struct {
	upserted []*domain.Subscription
	statuses map[string]domain.SubscriptionStatus
	byUser   map[string]*domain.Subscription

	upsertErr error
	statusErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		statuses: make(map[string]domain.SubscriptionStatus),
		byUser:   make(map[string]*domain.Subscription),
	}
}

func (f *fakeRepo) Upsert(_ context.Context, sub *domain.Subscription) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, sub)
	if sub.UserID != "" {
		f.byUser[sub.UserID] = sub
	}
	return nil
}

func (f *fakeRepo) SetStatus(_ context.Context, id string, status domain.SubscriptionStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeRepo) GetByUserID(_ context.Context, userID string) (*domain.Subscription, error) {
	sub, ok := f.byUser[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

const testSecret = "whsec_test"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, handler *Handler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_SubscriptionCreated(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(NewService(repo), testSecret)

	body := []byte(`{
		"type": "subscription.created",
		"data": {
			"id": "sub_123",
			"customer_id": "ctm_456",
			"status": "active",
			"passthrough": "{\"userId\":\"anon_abc\"}",
			"current_billing_period": {
				"starts_at": "2026-08-01T00:00:00Z",
				"ends_at": "2026-09-01T00:00:00Z"
			}
		}
	}`)

	rec := postWebhook(t, handler, body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"received":true}}`, rec.Body.String())

	require.Len(t, repo.upserted, 1)
	sub := repo.upserted[0]
	assert.Equal(t, "sub_123", sub.ID)
	assert.Equal(t, "anon_abc", sub.UserID)
	assert.Equal(t, "ctm_456", sub.CustomerID)
	assert.Equal(t, domain.TierPremium, sub.Tier)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodStart)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodStart.UTC())
}

func TestWebhook_SubscriptionUpdatedInactive(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(NewService(repo), testSecret)

	body := []byte(`{"type":"subscription.updated","data":{"id":"sub_123","status":"past_due"}}`)
	rec := postWebhook(t, handler, body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, domain.SubscriptionInactive, repo.upserted[0].Status)
}

func TestWebhook_SubscriptionCanceled(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(NewService(repo), testSecret)

	body := []byte(`{"type":"subscription.canceled","data":{"id":"sub_123"}}`)
	rec := postWebhook(t, handler, body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SubscriptionCanceled, repo.statuses["sub_123"])
}

func TestWebhook_TransactionEventsAcknowledged(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(NewService(repo), testSecret)

	for _, eventType := range []string{"transaction.completed", "transaction.billed"} {
		body := []byte(`{"type":"` + eventType + `","data":{"id":"txn_1"}}`)
		rec := postWebhook(t, handler, body, sign(body))
		assert.Equal(t, http.StatusOK, rec.Code, eventType)
	}
	assert.Empty(t, repo.upserted)
}

func TestWebhook_UnknownEventAcknowledged(t *testing.T) {
	handler := NewHandler(NewService(newFakeRepo()), testSecret)

	body := []byte(`{"type":"address.created","data":{}}`)
	rec := postWebhook(t, handler, body, sign(body))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(NewService(repo), testSecret)

	body := []byte(`{"type":"subscription.created","data":{"id":"sub_123"}}`)

	rec := postWebhook(t, handler, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postWebhook(t, handler, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, repo.upserted)
}

func TestWebhook_MalformedPassthrough(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(NewService(repo), testSecret)

	body := []byte(`{"type":"subscription.created","data":{"id":"sub_123","status":"active","passthrough":"not json"}}`)
	rec := postWebhook(t, handler, body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.upserted, 1)
	assert.Empty(t, repo.upserted[0].UserID)
}

func TestWebhook_InvalidBody(t *testing.T) {
	handler := NewHandler(NewService(newFakeRepo()), testSecret)

	body := []byte(`not json`)
	rec := postWebhook(t, handler, body, sign(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = []byte(`{"data":{}}`)
	rec = postWebhook(t, handler, body, sign(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_NoServiceConfigured(t *testing.T) {
	handler := NewHandler(nil, testSecret)

	body := []byte(`{"type":"subscription.created","data":{}}`)
	rec := postWebhook(t, handler, body, sign(body))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhook_RepositoryFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.upsertErr = assert.AnError
	handler := NewHandler(NewService(repo), testSecret)

	body := []byte(`{"type":"subscription.created","data":{"id":"sub_123"}}`)
	rec := postWebhook(t, handler, body, sign(body))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
