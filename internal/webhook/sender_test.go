package webhook

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellir/release-monitor/internal/config"
)

func TestSender_Deliver_SetsSignedHeaders(t *testing.T) {
	var gotSignature, gotTimestamp, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Release-Signature")
		gotTimestamp = r.Header.Get("X-Release-Timestamp")
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(config.WebhookConfig{
		URL:            server.URL,
		SharedSecret:   "s3cr3t",
		TimeoutSeconds: 5,
		VerifyTLS:      true,
	})

	payload := map[string]any{"a": 1, "b": "x"}
	now := time.Unix(1700000000, 0).UTC()

	err := sender.Deliver(t.Context(), payload, now)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "1700000000", gotTimestamp)
	assert.Equal(t, "sha256=9072467d5ceb5bc0d98398aa6d471a054a25d75b0f65cf3583ed9f06038ec509", gotSignature)
	assert.Equal(t, `{"a":1,"b":"x"}`, string(gotBody))
}

func TestSender_Deliver_NonSuccessStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := NewSender(config.WebhookConfig{URL: server.URL, SharedSecret: "s", TimeoutSeconds: 5, VerifyTLS: true})
	err := sender.Deliver(t.Context(), map[string]any{"a": 1}, time.Now())
	assert.Error(t, err)
}
