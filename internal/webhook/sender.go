package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/config"
)

// Sender delivers one signed request per call and never retries
// internally: the pipeline's at-most-once contract requires that a failed
// delivery leave the object unprocessed for the next poll cycle to retry,
// not be masked by an in-call retry loop.
type Sender struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewSender builds a Sender from the webhook configuration.
func NewSender(cfg config.WebhookConfig) *Sender {
	transport := &http.Transport{}
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	return &Sender{
		cfg: cfg,
		client: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutSeconds * float64(time.Second)),
			Transport: transport,
		},
	}
}

// Deliver signs payload and POSTs it, returning an error unless the
// downstream responds with a 2xx status.
func (s *Sender) Deliver(ctx context.Context, payload any, now time.Time) error {
	body, err := CanonicalJSON(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", apperrors.ErrWebhookDelivery, err)
	}

	timestamp := now.Unix()
	signature := Sign(s.cfg.SharedSecret, timestamp, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", apperrors.ErrWebhookDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Release-Timestamp", fmt.Sprintf("%d", timestamp))
	req.Header.Set("X-Release-Signature", signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrWebhookDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: status=%d body=%s", apperrors.ErrWebhookDelivery, resp.StatusCode, respBody)
	}
	return nil
}
