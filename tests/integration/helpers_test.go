//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signalfield/signalfield/internal/testutil"
)

// signalJSON mirrors the signal wire shape.
type signalJSON struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Intent      string    `json:"intent"`
	PhotoURL    string    `json:"photo_url"`
	Messenger   string    `json:"messenger"`
	ContactInfo string    `json:"contact_info"`
	Gender      string    `json:"gender"`
	HasPlace    bool      `json:"has_place"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsActive    bool      `json:"is_active"`
}

type signalEnvelope struct {
	Data signalJSON `json:"data"`
}

type signalListEnvelope struct {
	Data []signalJSON `json:"data"`
}

// signalRequest returns a valid create request body; tests mutate it.
func signalRequest(userID string) map[string]interface{} {
	return map[string]interface{}{
		"user_id":      userID,
		"name":         "Alex",
		"lat":          50.4501,
		"lng":          30.5234,
		"intent":       "coffee",
		"messenger":    "telegram",
		"contact_info": "alex_tg",
	}
}

// createSignal creates a signal through the API and returns it.
func createSignal(t *testing.T, client *testutil.Client, body map[string]interface{}) signalJSON {
	t.Helper()

	resp, err := client.POST("/api/v1/signals", body)
	require.NoError(t, err)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create signal: status=%d body=%s", resp.StatusCode, testutil.ReadBody(t, resp))
	}

	var out signalEnvelope
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}

// listSignals lists signals through the API, optionally with a query string.
func listSignals(t *testing.T, client *testutil.Client, query string) []signalJSON {
	t.Helper()

	resp, err := client.GET("/api/v1/signals" + query)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out signalListEnvelope
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}

// cleanSignals truncates the signals table and waits out the listing cache
// so the next test starts from an empty, uncached state.
func cleanSignals(t *testing.T) {
	t.Helper()

	_, err := testDB.Exec(context.Background(), "TRUNCATE signals")
	require.NoError(t, err)

	cleanCache(t)
}

// cleanCache waits out the redis listing cache TTL so the next listing
// reflects direct database changes.
func cleanCache(t *testing.T) {
	t.Helper()
	time.Sleep(150 * time.Millisecond)
}
