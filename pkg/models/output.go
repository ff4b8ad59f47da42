package models

import (
	"time"
)

// Output is one exported file for one converted camera.
type Output struct {
	ID          string      `json:"id" db:"id"`
	JobID       string      `json:"job_id" db:"job_id"`
	SceneID     string      `json:"scene_id" db:"scene_id"`
	CameraName  string      `json:"camera_name" db:"camera_name"`
	CameraIndex int         `json:"camera_index" db:"camera_index"`
	Exporter    string      `json:"exporter" db:"exporter"`
	Application Application `json:"application" db:"application"`
	Filename    string      `json:"filename" db:"filename"`
	Size        int64       `json:"size" db:"size"`
	Static      bool        `json:"static" db:"static"`
	URL         string      `json:"url" db:"url"`
	Path        string      `json:"path" db:"path"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}
