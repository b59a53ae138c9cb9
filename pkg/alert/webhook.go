package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Headers set on every delivery. SignatureHeader carries the HMAC-SHA256 of
// the request body and is only set when a secret is configured.
const (
	SignatureHeader = "X-Signature-256"
	EventHeader     = "X-Notepulse-Event"
	DateHeader      = "X-Notepulse-Date"
)

// EventDigest names the daily digest delivery.
const EventDigest = "digest"

// Payload is the JSON body a webhook receives.
type Payload struct {
	Event    string    `json:"event"`
	SentAt   time.Time `json:"sent_at"`
	Headline string    `json:"headline"`
	Digest   *Digest   `json:"digest"`
}

// Webhook posts digests as JSON to a generic HTTP endpoint.
type Webhook struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhook creates a new generic webhook notifier.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, d *Digest) error {
	body, err := json.Marshal(Payload{
		Event:    EventDigest,
		SentAt:   time.Now().UTC(),
		Headline: d.Headline(),
		Digest:   d,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "notepulse/1.0")
	req.Header.Set(EventHeader, EventDigest)
	req.Header.Set(DateHeader, d.Date)

	if w.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret, as receivers should
// recompute it.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
