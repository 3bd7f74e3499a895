//go:build integration

package integration

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalLifecycle(t *testing.T) {
	cleanSignals(t)
	client := newTestClient(t)

	created := createSignal(t, client, signalRequest("user-lifecycle"))

	assert.True(t, strings.HasPrefix(created.ID, "signal_"))
	assert.Equal(t, "user-lifecycle", created.UserID)
	assert.Equal(t, "coffee", created.Intent)
	assert.True(t, created.IsActive)
	// default lifetime is 30 minutes
	assert.WithinDuration(t, created.CreatedAt.Add(30*time.Minute), created.ExpiresAt, 2*time.Second)
	// no photo supplied, placeholder derived from intent
	assert.Contains(t, created.PhotoURL, "via.placeholder.com")
	assert.Contains(t, created.PhotoURL, "coffee")

	listed := listSignals(t, client, "")
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	// cancel hides the signal from listings
	resp, err := client.POST("/api/v1/signals/"+created.ID+"/cancel", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	cleanCache(t)
	assert.Empty(t, listSignals(t, client, ""))

	// the row itself survives cancellation
	var isActive bool
	err = testDB.QueryRow(context.Background(),
		"SELECT is_active FROM signals WHERE id = $1", created.ID).Scan(&isActive)
	require.NoError(t, err)
	assert.False(t, isActive)

	// delete removes the row; repeating it still succeeds
	for i := 0; i < 2; i++ {
		resp, err = client.DELETE("/api/v1/signals/" + created.ID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	var count int
	err = testDB.QueryRow(context.Background(),
		"SELECT count(*) FROM signals WHERE id = $1", created.ID).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSignalCustomDuration(t *testing.T) {
	cleanSignals(t)
	client := newTestClient(t)

	body := signalRequest("user-duration")
	body["duration_minutes"] = 90
	created := createSignal(t, client, body)

	assert.WithinDuration(t, created.CreatedAt.Add(90*time.Minute), created.ExpiresAt, 2*time.Second)
}

func TestSignalValidation(t *testing.T) {
	cleanSignals(t)
	client := newTestClientWithoutValidation()

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"missing user_id", func(b map[string]interface{}) { delete(b, "user_id") }},
		{"missing intent", func(b map[string]interface{}) { delete(b, "intent") }},
		{"missing contact_info", func(b map[string]interface{}) { delete(b, "contact_info") }},
		{"unknown messenger", func(b map[string]interface{}) { b["messenger"] = "signal" }},
		{"negative duration", func(b map[string]interface{}) { b["duration_minutes"] = -10 }},
		{"no location at all", func(b map[string]interface{}) { delete(b, "lat"); delete(b, "lng") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := signalRequest("user-validation")
			tt.mutate(body)

			resp, err := client.POST("/api/v1/signals", body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestExpiredSignalsAreHidden(t *testing.T) {
	cleanSignals(t)
	client := newTestClient(t)

	created := createSignal(t, client, signalRequest("user-expiry"))

	// age the row past its expiry directly in the database
	_, err := testDB.Exec(context.Background(),
		"UPDATE signals SET created_at = now() - interval '1 hour', expires_at = now() - interval '30 minutes' WHERE id = $1",
		created.ID)
	require.NoError(t, err)

	cleanCache(t)
	assert.Empty(t, listSignals(t, client, ""))
}

func TestCancelUnknownSignal(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/signals/signal_missing/cancel", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListNeverFailsWithoutData(t *testing.T) {
	cleanSignals(t)
	client := newTestClient(t)

	assert.Empty(t, listSignals(t, client, ""))
}
