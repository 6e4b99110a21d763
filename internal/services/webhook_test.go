package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitEnvelopeShape(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL)
	d.Emit("number-tr-01", "tenant-7", "message", map[string]any{
		"messageId": "3EB0ABC",
		"kind":      "text",
	})

	require.NotNil(t, received)
	assert.Equal(t, "number-tr-01", received["sessionId"])
	assert.Equal(t, "tenant-7", received["tenantId"])
	assert.Equal(t, "message", received["event"])
	assert.Equal(t, "3EB0ABC", received["messageId"])
	assert.Equal(t, "text", received["kind"])

	ts, ok := received["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
}

func TestEmitPayloadFlattened(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL)
	d.Emit("s1", "t1", "session_status", map[string]any{"status": "connected"})

	require.NotNil(t, received)
	// Flat envelope: payload fields sit next to the routing fields, not
	// nested under a payload key.
	assert.Equal(t, "connected", received["status"])
	assert.NotContains(t, received, "payload")
}

func TestEmitConsumerFailureIsDropped(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL)
	d.Emit("s1", "t1", "message", map[string]any{"messageId": "X"})

	assert.Equal(t, 1, calls, "no retry after a failed delivery")
}

func TestEmitUnreachableConsumer(t *testing.T) {
	d := NewWebhookDispatcher("http://127.0.0.1:1/webhook")
	// Must not panic or block; the event is logged and dropped.
	d.Emit("s1", "t1", "message", map[string]any{"messageId": "X"})
}

func TestEmitNoURLConfigured(t *testing.T) {
	d := NewWebhookDispatcher("")
	d.Emit("s1", "t1", "message", map[string]any{"messageId": "X"})
}

func TestStructToMap(t *testing.T) {
	type sample struct {
		MessageID string  `json:"messageId"`
		Text      *string `json:"text,omitempty"`
	}
	out := structToMap(sample{MessageID: "A1"})
	require.NotNil(t, out)
	assert.Equal(t, "A1", out["messageId"])
	assert.NotContains(t, out, "text")
}
