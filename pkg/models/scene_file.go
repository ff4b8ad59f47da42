package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// SceneFile is an uploaded tracking project awaiting or finished conversion.
type SceneFile struct {
	ID          string      `json:"id" db:"id"`
	Filename    string      `json:"filename" db:"filename"`
	StorageKey  string      `json:"storage_key" db:"storage_key"`
	Checksum    string      `json:"checksum" db:"checksum"`
	Size        int64       `json:"size" db:"size"`
	Application Application `json:"application" db:"application"`
	CameraCount int         `json:"camera_count" db:"camera_count"`
	FrameRange  FrameRange  `json:"frame_range" db:"frame_range"`
	Metadata    Metadata    `json:"metadata" db:"metadata"`
	Status      string      `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// Metadata holds additional scene metadata
type Metadata map[string]interface{}

// Value implements driver.Valuer for database storage
func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// Value implements driver.Valuer for database storage
func (r FrameRange) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for database retrieval
func (r *FrameRange) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, r)
}

// SceneFile status constants
const (
	SceneStatusUploaded   = "uploaded"
	SceneStatusConverting = "converting"
	SceneStatusConverted  = "converted"
	SceneStatusFailed     = "failed"
)
