package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/config"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// Job lifecycle events sent to callback URLs
const (
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// Request headers set on every delivery
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderSignature = "X-Webhook-Signature"
)

// ErrInvalidCallbackURL is returned for callback URLs that are not absolute http(s) URLs
var ErrInvalidCallbackURL = errors.New("callback_url must be an absolute http or https URL")

// Event is the JSON body posted to a callback URL
type Event struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// permanentError marks a delivery the receiver rejected outright
type permanentError struct {
	status int
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("callback rejected with status %d", e.status)
}

// Service posts job events to the callback URL stored on each job
type Service struct {
	client      *http.Client
	secret      string
	maxAttempts int
	retryDelays []time.Duration
	log         *logging.Logger
	wg          sync.WaitGroup
}

// NewService creates a new webhook service
func NewService(cfg config.WebhookConfig, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Service{
		client: &http.Client{
			Timeout: timeout,
		},
		secret:      cfg.Secret,
		maxAttempts: attempts,
		// Retry delays: 1s, 5s, 15s, 1min
		retryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			15 * time.Second,
			1 * time.Minute,
		},
		log: log,
	}
}

// ValidateCallbackURL accepts empty strings and absolute http(s) URLs
func ValidateCallbackURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidCallbackURL
	}
	return nil
}

// Notify posts event to target, retrying failed attempts. It blocks until the
// delivery succeeded, was rejected, or ran out of attempts.
func (s *Service) Notify(ctx context.Context, target, event string, data interface{}) error {
	payload := Event{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	log := s.log.WithFields(map[string]interface{}{
		"event":    event,
		"delivery": payload.ID,
	})

	for attempt := 1; ; attempt++ {
		err = s.deliver(ctx, target, payload.ID, event, body)
		if err == nil {
			metrics.RecordExport("webhook", "delivered")
			log.Debug("Webhook delivered")
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) || attempt >= s.maxAttempts {
			break
		}

		delay := s.retryDelays[len(s.retryDelays)-1]
		if attempt-1 < len(s.retryDelays) {
			delay = s.retryDelays[attempt-1]
		}
		log.WithError(err).Warnf("Webhook attempt %d failed, retrying in %s", attempt, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	metrics.RecordExport("webhook", "failed")
	metrics.RecordError("webhook", "delivery")
	return fmt.Errorf("webhook delivery failed: %w", err)
}

// deliver makes one delivery attempt
func (s *Service) deliver(ctx context.Context, target, deliveryID, event string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return &permanentError{status: 0}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lensconv-webhook/1.0")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderDelivery, deliveryID)

	if s.secret != "" {
		req.Header.Set(HeaderSignature, generateSignature(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	default:
		return &permanentError{status: resp.StatusCode}
	}
}

// generateSignature generates HMAC-SHA256 signature for webhook payload
func generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature reports whether signature matches payload under secret
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(generateSignature(payload, secret)), []byte(signature))
}

// notifyJob delivers in the background so the worker is never held up by a slow receiver
func (s *Service) notifyJob(event string, job *models.Job) {
	if job.Config.CallbackURL == "" {
		return
	}

	snapshot := *job
	snapshot.Warnings = append([]string(nil), job.Warnings...)
	snapshot.Config.Exporters = append([]string(nil), job.Config.Exporters...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.Notify(ctx, snapshot.Config.CallbackURL, event, &snapshot); err != nil {
			s.log.WithJobID(snapshot.ID).WithError(err).Warn("Failed to notify callback")
		}
	}()
}

// NotifyJobStarted sends notification when a job starts
func (s *Service) NotifyJobStarted(ctx context.Context, job *models.Job) {
	s.notifyJob(EventJobStarted, job)
}

// NotifyJobCompleted sends notification when a job completes
func (s *Service) NotifyJobCompleted(ctx context.Context, job *models.Job) {
	s.notifyJob(EventJobCompleted, job)
}

// NotifyJobFailed sends notification when a job fails
func (s *Service) NotifyJobFailed(ctx context.Context, job *models.Job) {
	s.notifyJob(EventJobFailed, job)
}

// Wait blocks until background deliveries have finished
func (s *Service) Wait() {
	s.wg.Wait()
}
