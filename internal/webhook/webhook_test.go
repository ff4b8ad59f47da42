package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/config"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

func newTestService(secret string, attempts int) *Service {
	s := NewService(config.WebhookConfig{Secret: secret, Timeout: time.Second, MaxAttempts: attempts}, nil)
	s.retryDelays = []time.Duration{time.Millisecond}
	return s
}

func TestWebhookNotify(t *testing.T) {
	var (
		mu       sync.Mutex
		received Event
		headers  http.Header
		body     []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := newTestService("test-secret", 3)
	job := &models.Job{
		ID:      "job-1",
		SceneID: "scene-1",
		Status:  models.JobStatusCompleted,
		Config:  models.ConvertConfig{CallbackURL: server.URL},
	}

	service.NotifyJobCompleted(context.Background(), job)
	service.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventJobCompleted, received.Event)
	assert.NotEmpty(t, received.ID)
	assert.Equal(t, EventJobCompleted, headers.Get(HeaderEvent))
	assert.Equal(t, received.ID, headers.Get(HeaderDelivery))
	assert.True(t, VerifySignature(body, "test-secret", headers.Get(HeaderSignature)))

	data, ok := received.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "job-1", data["id"])
}

func TestWebhookNotifySkipsJobsWithoutCallback(t *testing.T) {
	service := newTestService("", 1)
	service.NotifyJobStarted(context.Background(), &models.Job{ID: "job-1"})
	service.Wait()
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	service := newTestService("", 3)
	err := service.Notify(context.Background(), server.URL, EventJobFailed, map[string]string{"job_id": "job-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	service := newTestService("", 2)
	err := service.Notify(context.Background(), server.URL, EventJobFailed, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	service := newTestService("", 5)
	err := service.Notify(context.Background(), server.URL, EventJobStarted, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWebhookSignature(t *testing.T) {
	payload := []byte(`{"event":"test"}`)
	secret := "test-secret"

	signature := generateSignature(payload, secret)
	assert.Contains(t, signature, "sha256=")
	assert.True(t, VerifySignature(payload, secret, signature))
	assert.False(t, VerifySignature(payload, "other", signature))
	assert.False(t, VerifySignature([]byte(`{}`), secret, signature))
}

func TestValidateCallbackURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"", false},
		{"https://hooks.example.com/lensconv", false},
		{"http://10.0.0.1:8080/cb", false},
		{"ftp://example.com", true},
		{"/relative/path", true},
		{"http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateCallbackURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCallbackURL)
				return
			}
			assert.NoError(t, err)
		})
	}
}
