package services

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// Webhook delivery is at-most-once: a failed POST is logged and dropped,
// never queued or replayed. The consumer owns durability.
const webhookTimeout = 10 * time.Second

// WebhookDispatcher delivers gateway events to the configured consumer
// endpoint as a single flat JSON envelope.
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

// NewWebhookDispatcher creates a dispatcher for the given consumer URL.
// An empty URL disables delivery (events are logged and dropped).
func NewWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Emit builds the envelope {sessionId, tenantId, event, ...payload,
// timestamp} and performs one timed POST to the consumer.
func (w *WebhookDispatcher) Emit(sessionID, tenantID, event string, payload map[string]any) {
	if w.url == "" {
		log.Printf("📭 Webhook disabled (no URL configured) - dropping %s event for %s", event, sessionID)
		return
	}

	envelope := map[string]any{
		"sessionId": sessionID,
		"tenantId":  tenantID,
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range payload {
		envelope[key] = value
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("❌ Failed to marshal %s event for %s: %v", event, sessionID, err)
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("❌ Webhook delivery failed for %s (%s): %v", sessionID, event, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("❌ Webhook returned %d for %s (%s) - event dropped", resp.StatusCode, sessionID, event)
	}
}

// structToMap flattens a struct into the event envelope via its JSON form.
func structToMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
