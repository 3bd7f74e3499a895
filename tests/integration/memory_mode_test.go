//go:build integration

package integration

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalfield/signalfield/internal/app"
	"github.com/signalfield/signalfield/internal/testutil"
)

// TestMemoryOnlyMode runs a second app instance without a database and
// verifies the full signal lifecycle against the in-memory store.
func TestMemoryOnlyMode(t *testing.T) {
	cfg := testConfig("", "")
	cfg.Billing.Enabled = false

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
	})

	server := httptest.NewServer(application.Router())
	t.Cleanup(server.Close)

	client := testutil.NewClientWithValidator(server.URL, testValidator)
	client.SetT(t)

	created := createSignal(t, client, signalRequest("user-memory"))
	assert.True(t, created.IsActive)

	listed := listSignals(t, client, "")
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	resp, err := client.POST("/api/v1/signals/"+created.ID+"/cancel", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Empty(t, listSignals(t, client, ""))

	// readiness does not depend on a database
	resp, err = client.GET("/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

// TestBillingUnavailableWithoutDatabase verifies the webhook signals
// unavailability instead of dropping provider events.
func TestBillingUnavailableWithoutDatabase(t *testing.T) {
	cfg := testConfig("", "")

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
	})

	server := httptest.NewServer(application.Router())
	t.Cleanup(server.Close)

	body := []byte(`{"type":"subscription.created","data":{"id":"sub_mem"}}`)
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/billing/webhook",
		bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
