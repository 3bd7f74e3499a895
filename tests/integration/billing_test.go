//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalfield/signalfield/internal/billing"
)

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, body []byte, signature string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, testServer.URL+"/api/v1/billing/webhook",
		bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(billing.SignatureHeader, signature)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestBillingWebhookLifecycle(t *testing.T) {
	_, err := testDB.Exec(context.Background(), "TRUNCATE subscriptions")
	require.NoError(t, err)

	created := []byte(`{
		"type": "subscription.created",
		"data": {
			"id": "sub_it_1",
			"customer_id": "ctm_it_1",
			"status": "active",
			"passthrough": "{\"userId\":\"anon_billing\"}",
			"current_billing_period": {
				"starts_at": "2026-08-01T00:00:00Z",
				"ends_at": "2026-09-01T00:00:00Z"
			}
		}
	}`)

	resp := postWebhook(t, created, signWebhook(created))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	var userID, tier, status string
	err = testDB.QueryRow(context.Background(),
		"SELECT user_id, tier, status FROM subscriptions WHERE id = 'sub_it_1'").
		Scan(&userID, &tier, &status)
	require.NoError(t, err)
	assert.Equal(t, "anon_billing", userID)
	assert.Equal(t, "premium", tier)
	assert.Equal(t, "active", status)

	canceled := []byte(`{"type":"subscription.canceled","data":{"id":"sub_it_1"}}`)
	resp = postWebhook(t, canceled, signWebhook(canceled))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	err = testDB.QueryRow(context.Background(),
		"SELECT status FROM subscriptions WHERE id = 'sub_it_1'").Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, "canceled", status)
}

func TestBillingWebhookRejectsBadSignature(t *testing.T) {
	body := []byte(`{"type":"subscription.created","data":{"id":"sub_it_2"}}`)

	resp := postWebhook(t, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postWebhook(t, body, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	var count int
	err := testDB.QueryRow(context.Background(),
		"SELECT count(*) FROM subscriptions WHERE id = 'sub_it_2'").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}
