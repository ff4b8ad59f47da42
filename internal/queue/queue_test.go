package queue

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/config"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

func TestURL(t *testing.T) {
	got := URL(config.QueueConfig{Host: "mq", Port: 5672, User: "guest", Password: "pw", Vhost: "/"})
	assert.Equal(t, "amqp://guest:pw@mq:5672/", got)
}

func TestCalculateBackoffDelay(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{-1, 10 * time.Second},
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{5, 320 * time.Second},
		{6, 10 * time.Minute},
		{50, 10 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateBackoffDelay(tt.retry), "retry %d", tt.retry)
	}
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 0, retryCount(amqp.Table{retryHeader: "two"}))
	assert.Equal(t, 2, retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, retryCount(amqp.Table{retryHeader: int64(3)}))
	assert.Equal(t, 1, retryCount(amqp.Table{retryHeader: uint8(1)}))
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "", failureReason(amqp.Table{}))
	assert.Equal(t, "boom", failureReason(amqp.Table{reasonHeader: "boom"}))
}

func TestPriority(t *testing.T) {
	assert.Equal(t, uint8(0), priority(-3))
	assert.Equal(t, uint8(5), priority(models.JobPriorityNormal))
	assert.Equal(t, uint8(10), priority(42))
}

func TestNewPublishing(t *testing.T) {
	job := &models.Job{
		ID:       "job-1",
		SceneID:  "scene-1",
		Priority: models.JobPriorityHigh,
		Config: models.ConvertConfig{
			Destination: models.ApplicationEqualizer,
			Exporters:   []string{"lens"},
		},
	}

	msg, err := newPublishing(job, amqp.Table{retryHeader: int32(1)})
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, uint8(10), msg.Priority)
	assert.Equal(t, 1, retryCount(msg.Headers))
	assert.Contains(t, string(msg.Body), `"scene_id":"scene-1"`)
	assert.Contains(t, string(msg.Body), `"destination":"tde"`)
}
