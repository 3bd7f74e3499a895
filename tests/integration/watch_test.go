//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchStreamsChanges(t *testing.T) {
	cleanSignals(t)
	client := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := strings.Replace(testServer.URL, "http://", "ws://", 1) + "/api/v1/signals/watch"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	created := createSignal(t, client, signalRequest("user-watch"))

	_, payload, err := conn.Read(ctx)
	require.NoError(t, err)

	var event struct {
		Type     string `json:"type"`
		SignalID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "created", event.Type)
	assert.Equal(t, created.ID, event.SignalID)

	// cancellation is broadcast too
	resp, err := client.POST("/api/v1/signals/"+created.ID+"/cancel", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	_, payload, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "canceled", event.Type)
	assert.Equal(t, created.ID, event.SignalID)
}
