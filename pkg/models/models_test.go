package models

import (
	"encoding/json"
	"testing"
)

func TestMetadataValue(t *testing.T) {
	meta := Metadata{
		"key1": "value1",
		"key2": 123,
	}

	value, err := meta.Value()
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}

	// Value should be JSON
	var result map[string]interface{}
	if err := json.Unmarshal(value.([]byte), &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if result["key1"] != "value1" {
		t.Errorf("Expected key1=value1, got %v", result["key1"])
	}
}

func TestMetadataScan(t *testing.T) {
	jsonData := []byte(`{"key1":"value1","key2":123}`)

	var meta Metadata
	if err := meta.Scan(jsonData); err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}

	if meta["key1"] != "value1" {
		t.Errorf("Expected key1=value1, got %v", meta["key1"])
	}

	if val, ok := meta["key2"].(float64); !ok || val != 123 {
		t.Errorf("Expected key2=123, got %v", meta["key2"])
	}
}

func TestMetadataScanNil(t *testing.T) {
	var meta Metadata
	if err := meta.Scan(nil); err != nil {
		t.Fatalf("Failed to scan nil: %v", err)
	}

	if len(meta) != 0 {
		t.Error("Expected empty metadata after scanning nil")
	}
}

func TestConvertConfigValue(t *testing.T) {
	config := ConvertConfig{
		Destination: ApplicationEqualizer,
		Exporters:   []string{"lens", "nuke"},
		TimeList:    "1-10",
	}

	value, err := config.Value()
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}

	var scanned ConvertConfig
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}

	if scanned.Destination != ApplicationEqualizer {
		t.Errorf("Expected destination tde, got %s", scanned.Destination)
	}
	if len(scanned.Exporters) != 2 || scanned.Exporters[1] != "nuke" {
		t.Errorf("Unexpected exporters %v", scanned.Exporters)
	}
	if scanned.TimeList != "1-10" {
		t.Errorf("Expected time list 1-10, got %s", scanned.TimeList)
	}
}

func TestFrameRangeScan(t *testing.T) {
	var r FrameRange
	if err := r.Scan([]byte(`{"start":1,"end":48,"fps":25}`)); err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}

	if r.Start != 1 || r.End != 48 || r.FPS != 25 {
		t.Errorf("Unexpected frame range %+v", r)
	}
	if r.Frames() != 48 {
		t.Errorf("Expected 48 frames, got %d", r.Frames())
	}
}

func TestJobStatusConstants(t *testing.T) {
	statuses := []string{
		JobStatusPending,
		JobStatusQueued,
		JobStatusProcessing,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
	}

	seen := make(map[string]bool)
	for _, status := range statuses {
		if status == "" {
			t.Error("Job status should not be empty")
		}
		if seen[status] {
			t.Errorf("Duplicate job status %q", status)
		}
		seen[status] = true
	}
}

func TestSceneStatusConstants(t *testing.T) {
	statuses := []string{
		SceneStatusUploaded,
		SceneStatusConverting,
		SceneStatusConverted,
		SceneStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Error("Scene status should not be empty")
		}
	}
}
