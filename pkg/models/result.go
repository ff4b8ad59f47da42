package models

// ConversionResult is the outcome of converting every camera of a scene.
type ConversionResult struct {
	Scene       string          `json:"scene"`
	Checksum    string          `json:"checksum,omitempty"`
	Source      Application     `json:"source"`
	Destination Application     `json:"destination"`
	FrameRange  FrameRange      `json:"frame_range"`
	Cameras     []*Camera       `json:"cameras"`
	Failures    []CameraFailure `json:"failures,omitempty"`
}

// CameraFailure names a camera that could not be converted.
type CameraFailure struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Error string `json:"error"`
}
