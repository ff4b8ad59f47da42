package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Job is a request to convert every camera of a scene file.
type Job struct {
	ID          string        `json:"id" db:"id"`
	SceneID     string        `json:"scene_id" db:"scene_id"`
	Status      string        `json:"status" db:"status"`
	Priority    int           `json:"priority" db:"priority"`
	Progress    float64       `json:"progress" db:"progress"`
	ErrorMsg    string        `json:"error_msg,omitempty" db:"error_msg"`
	Warnings    []string      `json:"warnings,omitempty" db:"warnings"`
	RetryCount  int           `json:"retry_count" db:"retry_count"`
	WorkerID    string        `json:"worker_id,omitempty" db:"worker_id"`
	StartedAt   *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
	Config      ConvertConfig `json:"config" db:"config"`
}

// ConvertConfig holds the conversion options of a job
type ConvertConfig struct {
	Destination Application `json:"destination"`
	Exporters   []string    `json:"exporters"`
	TimeList    string      `json:"time_list,omitempty"`
	NodeName    string      `json:"node_name,omitempty"`
	CallbackURL string      `json:"callback_url,omitempty"`
}

// Value implements driver.Valuer for database storage
func (cc ConvertConfig) Value() (driver.Value, error) {
	return json.Marshal(cc)
}

// Scan implements sql.Scanner for database retrieval
func (cc *ConvertConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, cc)
}

// JobStatus constants
const (
	JobStatusPending    = "pending"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// JobPriority constants
const (
	JobPriorityLow    = 0
	JobPriorityNormal = 5
	JobPriorityHigh   = 10
)
