package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-sekolah/internal/obs"
	"github.com/noah-isme/backend-sekolah/internal/resilience"
)

// WebhookSink posts notifications as signed JSON to a single endpoint.
type WebhookSink struct {
	Client *resilience.HTTPClient
	URL    string
	Secret string
	Source string
	Now    func() time.Time
}

type webhookPayload struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// Notify implements Sink. A single attempt is made; retries belong to the
// task queue that invoked the sink.
func (s WebhookSink) Notify(ctx context.Context, kind Kind, message string) error {
	if s.Client == nil {
		return errors.New("notify: webhook client not configured")
	}
	if err := validateURL(s.URL); err != nil {
		return err
	}
	ctx, span := otel.Tracer("notify.WebhookSink").Start(ctx, "WebhookSink.Notify")
	defer span.End()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	sentAt := now().UTC()
	payload := webhookPayload{ID: uuid.NewString(), Kind: kind, Message: message, Source: s.Source, SentAt: sentAt}
	// PostJSON marshals the same struct, so the signed bytes match the body.
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode webhook: %w", err)
	}
	ts := sentAt.Unix()
	headers := map[string]string{
		"User-Agent":     "sekolah-fee-counter/1.0",
		"X-Notification": payload.ID,
		"X-Timestamp":    strconv.FormatInt(ts, 10),
	}
	if s.Secret != "" {
		headers["X-Signature"] = ComputeSignature(s.Secret, ts, payload.ID, body)
	}
	span.SetAttributes(attribute.String("notify.kind", string(kind)))

	resp, err := s.Client.PostJSON(ctx, s.URL, payload, headers)
	if err != nil {
		span.RecordError(err)
		obs.RecordNotification("webhook", string(kind), "failed")
		return fmt.Errorf("notify: webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		obs.RecordNotification("webhook", string(kind), "rejected")
		return fmt.Errorf("notify: webhook answered %d", resp.StatusCode)
	}
	obs.RecordNotification("webhook", string(kind), "ok")
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("notify: invalid webhook url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("notify: webhook url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("notify: webhook url must include host")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("notify: http webhook only allowed for localhost")
		}
	}
	return nil
}

// ComputeSignature calculates the webhook signature: HMAC-SHA256 over
// "<ts>.<id>.<body>" keyed with the shared secret.
func ComputeSignature(secret string, ts int64, id string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(id))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by ComputeSignature.
func VerifySignature(secret string, ts int64, id string, body []byte, signature string) bool {
	expected := ComputeSignature(secret, ts, id, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
