package converter

import (
	"fmt"
	"math"
	"sort"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// LensGeometry is the per-frame input of the distortion model conversion.
type LensGeometry struct {
	// FocalPixels is the focal length in image-plane pixels. When zero it is
	// derived from FocalLength, FilmbackWidth and Width.
	FocalPixels      float64
	FocalLength      float64
	PixelAspectRatio float64
	FilmbackWidth    float64
	FilmbackHeight   float64
	Width            int
	Height           int
}

func (g LensGeometry) focal() (float64, error) {
	f := g.FocalPixels
	if f == 0 && g.FilmbackWidth > 0 {
		f = g.FocalLength * float64(g.Width) / g.FilmbackWidth
	}
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: focal length in pixels %v", ErrInvalidGeometry, f)
	}
	return f, nil
}

func (g LensGeometry) validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidGeometry, g.Width, g.Height)
	}
	if g.PixelAspectRatio <= 0 {
		return fmt.Errorf("%w: pixel aspect ratio %v", ErrInvalidGeometry, g.PixelAspectRatio)
	}
	return nil
}

// MatchMoverToEqualizer re-expresses a MatchMover radial distortion value k as
// a 3DE Classic "Distortion" coefficient.
//
// The MatchMover model scales an image point by 1 + k·r²/f². The image corner
// is pushed through that scale and the 3DE coefficient is the ratio of the
// displaced corner's distance from centre to the undistorted one, minus one.
func MatchMoverToEqualizer(k float64, g LensGeometry) (float64, error) {
	if err := g.validate(); err != nil {
		return 0, err
	}
	f, err := g.focal()
	if err != nil {
		return 0, err
	}

	halfWidth := float64(g.Width) / 2.0
	halfHeight := float64(g.Height) / 2.0
	alpha := g.PixelAspectRatio
	rr := halfWidth*halfWidth + (halfHeight*halfHeight)/(alpha*alpha)

	scale := 1.0 + k*rr/(f*f)
	displacedX := halfWidth * scale
	displacedY := halfHeight * scale

	undistorted := math.Hypot(halfWidth, halfHeight)
	displaced := math.Hypot(displacedX, displacedY)

	return displaced/undistorted - 1.0, nil
}

// DistortionFrames returns the frames the distortion is evaluated on for cam:
// every keyframe of its animated distortion or pixel focal series inside the
// bound sequence's inclusive range, or the range start when none fall inside.
func DistortionFrames(cam *models.Camera) []int {
	r := cam.FrameRange()
	seen := make(map[int]struct{})
	var frames []int
	for _, k := range []*models.Keyframes{cam.Distortion, cam.FocalPixels} {
		if k == nil || k.IsStatic() {
			continue
		}
		for _, f := range k.Frames() {
			if !r.Contains(f) {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			frames = append(frames, f)
		}
	}
	if len(frames) == 0 {
		return []int{r.Start}
	}
	sort.Ints(frames)
	return frames
}

// ConvertDistortion converts cam's distortion series into the destination
// application's lens model. The result is always simplified.
func ConvertDistortion(cam *models.Camera, dest models.Application) (*models.Keyframes, error) {
	if err := checkDirection(cam.Application, dest); err != nil {
		return nil, err
	}
	if cam.Distortion == nil || cam.Distortion.Len() == 0 {
		return nil, fmt.Errorf("%w: camera %q has no distortion", ErrMissingData, cam.Name)
	}
	if cam.FocalPixels == nil || cam.FocalPixels.Len() == 0 {
		return nil, fmt.Errorf("%w: camera %q has no focal length in pixels", ErrMissingData, cam.Name)
	}

	geometry := func(frame int) (LensGeometry, float64) {
		k, _ := cam.Distortion.Value(frame)
		f, _ := cam.FocalPixels.Value(frame)
		return LensGeometry{
			FocalPixels:      f,
			PixelAspectRatio: cam.PixelAspectRatio,
			FilmbackWidth:    cam.FilmbackWidth,
			FilmbackHeight:   cam.FilmbackHeight,
			Width:            cam.Width,
			Height:           cam.Height,
		}, k
	}

	if cam.Distortion.IsStatic() && cam.FocalPixels.IsStatic() {
		g, k := geometry(0)
		value, err := MatchMoverToEqualizer(k, g)
		if err != nil {
			return nil, fmt.Errorf("camera %q: %w", cam.Name, err)
		}
		out := models.NewStaticKeyframes(value)
		out.Simplify()
		return out, nil
	}

	out := models.NewKeyframes(models.KindAnimated)
	for _, frame := range DistortionFrames(cam) {
		g, k := geometry(frame)
		value, err := MatchMoverToEqualizer(k, g)
		if err != nil {
			return nil, fmt.Errorf("camera %q frame %d: %w", cam.Name, frame, err)
		}
		out.Set(frame, value)
	}
	out.Simplify()
	return out, nil
}
