package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUnit is returned for unit tokens outside mm, cm and m.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrUnknownApplication is returned for unrecognised application tokens.
	ErrUnknownApplication = errors.New("unknown application")
)

// Application identifies the tracking application a record originates from.
type Application string

const (
	ApplicationMatchMover   = Application("mm")
	ApplicationEqualizer    = Application("tde")
	applicationMatchMoverLn = "Matchmover"
	applicationEqualizerLn  = "3DEqualizer4"
)

// ParseApplication validates an application token. Both the short and the long
// names are accepted.
func ParseApplication(s string) (Application, error) {
	switch s {
	case string(ApplicationMatchMover), applicationMatchMoverLn:
		return ApplicationMatchMover, nil
	case string(ApplicationEqualizer), applicationEqualizerLn:
		return ApplicationEqualizer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownApplication, s)
}

// DisplayName is the application's product name.
func (a Application) DisplayName() string {
	switch a {
	case ApplicationMatchMover:
		return applicationMatchMoverLn
	case ApplicationEqualizer:
		return applicationEqualizerLn
	}
	return string(a)
}

// NativeUnit is the unit system records of this application are stored in.
func (a Application) NativeUnit() Unit {
	if a == ApplicationEqualizer {
		return UnitCentimetre
	}
	return UnitMillimetre
}

// Unit is a length unit token.
type Unit string

const (
	UnitMillimetre = Unit("mm")
	UnitCentimetre = Unit("cm")
	UnitMetre      = Unit("m")
)

// ParseUnit validates a unit token.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitMillimetre, UnitCentimetre, UnitMetre:
		return Unit(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// Valid reports whether u is one of the supported tokens.
func (u Unit) Valid() bool {
	_, err := ParseUnit(string(u))
	return err == nil
}

// FrameRange is a start frame, an inclusive end frame and a frame rate.
type FrameRange struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	FPS   float64 `json:"fps"`
}

// DefaultFrameRange stands in for cameras without a bound sequence.
var DefaultFrameRange = FrameRange{Start: 0, End: 0, FPS: 24}

// Frames is the number of frames covered, counting both ends.
func (r FrameRange) Frames() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether frame lies within the inclusive range.
func (r FrameRange) Contains(frame int) bool {
	return frame >= r.Start && frame <= r.End
}

// Camera is one tracked camera. Lengths are in Units. LensCentreX/Y are
// normalised [0,1] for MatchMover cameras and physical offsets from the image
// centre for 3DEqualizer cameras.
type Camera struct {
	Name        string      `json:"name"`
	Index       int         `json:"index"`
	Application Application `json:"application"`
	Units       Unit        `json:"units"`

	Width            int     `json:"width"`
	Height           int     `json:"height"`
	ImageAspectRatio float64 `json:"image_aspect_ratio"`

	FilmbackWidth    float64 `json:"filmback_width"`
	FilmbackHeight   float64 `json:"filmback_height"`
	FilmAspectRatio  float64 `json:"film_aspect_ratio"`
	PixelAspectRatio float64 `json:"pixel_aspect_ratio"`

	LensCentreX float64 `json:"lens_centre_x"`
	LensCentreY float64 `json:"lens_centre_y"`

	// FocalLength is in Units.
	FocalLength *Keyframes `json:"focal_length"`
	// FocalPixels is the focal length expressed in image-plane pixels.
	FocalPixels *Keyframes `json:"focal_pixels"`
	// Distortion is the single radial coefficient of the Application's lens model.
	Distortion *Keyframes `json:"distortion"`

	Sequences []*Sequence `json:"sequences"`
}

// NewCamera returns a camera tagged with app and its native unit system.
func NewCamera(app Application) *Camera {
	return &Camera{
		Application:      app,
		Units:            app.NativeUnit(),
		PixelAspectRatio: 1.0,
		LensCentreX:      0.5,
		LensCentreY:      0.5,
	}
}

// FrameRange is the range of the first bound sequence, or DefaultFrameRange.
func (c *Camera) FrameRange() FrameRange {
	if len(c.Sequences) > 0 && c.Sequences[0] != nil {
		return c.Sequences[0].FrameRange
	}
	return DefaultFrameRange
}

// Sequence describes one tracked image sequence bound to a camera.
type Sequence struct {
	Name        string      `json:"name"`
	Index       string      `json:"index"`
	Application Application `json:"application"`

	CameraName  string `json:"camera_name"`
	CameraIndex int    `json:"camera_index"`

	Width            int     `json:"width"`
	Height           int     `json:"height"`
	ImageAspectRatio float64 `json:"image_aspect_ratio"`

	// ImagePath is a template containing a frame-number placeholder.
	ImagePath  string     `json:"image_path"`
	FrameRange FrameRange `json:"frame_range"`
}

// Scene is one project file's worth of cameras and sequences.
type Scene struct {
	Name        string      `json:"name"`
	Index       int         `json:"index"`
	Path        string      `json:"path"`
	Application Application `json:"application"`
	Units       Unit        `json:"units"`
	FrameRange  FrameRange  `json:"frame_range"`

	Cameras   []*Camera   `json:"cameras"`
	Sequences []*Sequence `json:"sequences"`
}

// NewScene returns an empty scene tagged with app.
func NewScene(app Application) *Scene {
	return &Scene{Application: app, Units: app.NativeUnit()}
}

// Camera returns the camera with the given index.
func (s *Scene) Camera(index int) (*Camera, bool) {
	for _, c := range s.Cameras {
		if c.Index == index {
			return c, true
		}
	}
	return nil, false
}
