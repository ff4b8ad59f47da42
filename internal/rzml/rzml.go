// Package rzml reads MatchMover RZML project files into scene records.
package rzml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// ErrInvalidDocument is returned for RZML input the reader cannot interpret.
var ErrInvalidDocument = errors.New("invalid rzml document")

// Camera defaults applied when a CINF element omits an attribute.
const (
	DefaultImageWidth     = 512
	DefaultImageHeight    = 512
	DefaultFilmbackHeight = 24.0
	DefaultPixelAspect    = 1.0
	DefaultCameraIndex    = 1

	defaultFocalLength = 30.0
	defaultFocalPixels = 1550.0
)

type timeRange struct {
	Trim   *int     `xml:"t,attr"`
	Length *int     `xml:"d,attr"`
	FPS    *float64 `xml:"f,attr"`
}

type cameraInfo struct {
	Name           string   `xml:"n,attr"`
	Index          *int     `xml:"i,attr"`
	Width          *int     `xml:"sw,attr"`
	Height         *int     `xml:"sh,attr"`
	FilmbackHeight *float64 `xml:"fbh,attr"`
	PixelAspect    *float64 `xml:"a,attr"`
}

type imagePlane struct {
	Image string `xml:"img,attr"`
}

type cameraFrame struct {
	Frame      *int     `xml:"t,attr"`
	FOVX       *float64 `xml:"fovx,attr"`
	Distortion *float64 `xml:"rd,attr"`
}

type shot struct {
	Name        string        `xml:"n,attr"`
	Index       string        `xml:"i,attr"`
	CameraIndex *int          `xml:"ci,attr"`
	Width       int           `xml:"w,attr"`
	Height      int           `xml:"h,attr"`
	ImagePlane  *imagePlane   `xml:"IPLN"`
	TimeRange   *timeRange    `xml:"TRNG"`
	Frames      []cameraFrame `xml:"CFRM"`
}

type document struct {
	frameRange *models.FrameRange
	cameras    []cameraInfo
	shots      []shot
}

// Reader parses RZML documents.
type Reader struct {
	log *logging.Logger
}

// NewReader creates a Reader. A nil logger discards output.
func NewReader(log *logging.Logger) *Reader {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Reader{log: log}
}

// ReadFile parses the RZML file at path.
func (r *Reader) ReadFile(path string) (*models.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rzml file: %w", err)
	}
	defer f.Close()

	return r.Read(f, path)
}

// Read parses an RZML document. path names the scene and is not opened.
func (r *Reader) Read(src io.Reader, path string) (*models.Scene, error) {
	doc, err := decode(src)
	if err != nil {
		return nil, err
	}
	if doc.frameRange == nil {
		return nil, fmt.Errorf("%w: missing global TRNG", ErrInvalidDocument)
	}

	scene := models.NewScene(models.ApplicationMatchMover)
	scene.Name = filepath.Base(path)
	scene.Path = path
	scene.FrameRange = *doc.frameRange

	for _, info := range doc.cameras {
		scene.Cameras = append(scene.Cameras, newCamera(info))
	}

	touched := make(map[*models.Camera]bool)
	for _, s := range doc.shots {
		seq, cam, err := r.readShot(scene, s, doc.frameRange, touched)
		if err != nil {
			return nil, err
		}
		if seq == nil {
			continue
		}
		cam.Sequences = append(cam.Sequences, seq)
		scene.Sequences = append(scene.Sequences, seq)
	}

	for cam := range touched {
		cam.FocalLength.Simplify()
		cam.FocalPixels.Simplify()
		cam.Distortion.Simplify()
	}

	r.log.WithFields(map[string]interface{}{
		"path":      path,
		"cameras":   len(scene.Cameras),
		"sequences": len(scene.Sequences),
	}).Debug("RZML scene read")

	return scene, nil
}

func decode(src io.Reader) (*document, error) {
	dec := xml.NewDecoder(src)
	doc := &document{}
	var stack []string
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}

			switch t.Name.Local {
			case "RZML":
				sawRoot = true
				stack = append(stack, t.Name.Local)
			case "TRNG":
				var tr timeRange
				if err := dec.DecodeElement(&tr, &t); err != nil {
					return nil, fmt.Errorf("%w: TRNG: %v", ErrInvalidDocument, err)
				}
				if parent == "RZML" {
					fr, err := tr.frameRange()
					if err != nil {
						return nil, fmt.Errorf("global TRNG: %w", err)
					}
					doc.frameRange = &fr
				}
			case "CINF":
				var info cameraInfo
				if err := dec.DecodeElement(&info, &t); err != nil {
					return nil, fmt.Errorf("%w: CINF: %v", ErrInvalidDocument, err)
				}
				doc.cameras = append(doc.cameras, info)
			case "SHOT":
				var s shot
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, fmt.Errorf("%w: SHOT: %v", ErrInvalidDocument, err)
				}
				doc.shots = append(doc.shots, s)
			default:
				stack = append(stack, t.Name.Local)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: no RZML root element", ErrInvalidDocument)
	}
	return doc, nil
}

func (tr timeRange) frameRange() (models.FrameRange, error) {
	if tr.Trim == nil || tr.Length == nil {
		return models.FrameRange{}, fmt.Errorf("%w: time range needs t and d", ErrInvalidDocument)
	}
	if *tr.Length < 1 {
		return models.FrameRange{}, fmt.Errorf("%w: time range length %d", ErrInvalidDocument, *tr.Length)
	}
	fr := models.FrameRange{
		Start: *tr.Trim,
		End:   *tr.Trim + *tr.Length - 1,
		FPS:   models.DefaultFrameRange.FPS,
	}
	if tr.FPS != nil {
		if *tr.FPS < 0 {
			return models.FrameRange{}, fmt.Errorf("%w: negative fps %v", ErrInvalidDocument, *tr.FPS)
		}
		fr.FPS = *tr.FPS
	}
	return fr, nil
}

func newCamera(info cameraInfo) *models.Camera {
	cam := models.NewCamera(models.ApplicationMatchMover)
	cam.Name = info.Name
	if info.Index != nil {
		cam.Index = *info.Index
	}

	cam.Width = intOr(info.Width, DefaultImageWidth)
	cam.Height = intOr(info.Height, DefaultImageHeight)
	cam.ImageAspectRatio = float64(cam.Width) / float64(cam.Height)

	cam.FilmbackHeight = floatOr(info.FilmbackHeight, DefaultFilmbackHeight)
	cam.PixelAspectRatio = floatOr(info.PixelAspect, DefaultPixelAspect)
	cam.FilmbackWidth = cam.FilmbackHeight * cam.ImageAspectRatio
	cam.FilmAspectRatio = cam.FilmbackWidth / cam.FilmbackHeight

	cam.FocalLength = models.NewStaticKeyframes(defaultFocalLength)
	cam.FocalPixels = models.NewStaticKeyframes(defaultFocalPixels)
	cam.Distortion = models.NewStaticKeyframes(0.0)
	return cam
}

func (r *Reader) readShot(scene *models.Scene, s shot, global *models.FrameRange, touched map[*models.Camera]bool) (*models.Sequence, *models.Camera, error) {
	camIndex := intOr(s.CameraIndex, DefaultCameraIndex)
	cam, ok := scene.Camera(camIndex)
	if !ok {
		r.log.WithFields(map[string]interface{}{
			"shot":         s.Name,
			"camera_index": camIndex,
		}).Warn("Shot references unknown camera, skipping")
		return nil, nil, nil
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil, nil, fmt.Errorf("%w: shot %q has image size %dx%d", ErrInvalidDocument, s.Name, s.Width, s.Height)
	}

	seq := &models.Sequence{
		Name:             s.Name,
		Index:            s.Index,
		Application:      models.ApplicationMatchMover,
		CameraName:       cam.Name,
		CameraIndex:      cam.Index,
		Width:            s.Width,
		Height:           s.Height,
		ImageAspectRatio: float64(s.Width) / float64(s.Height),
		FrameRange:       *global,
	}
	if s.ImagePlane != nil {
		seq.ImagePath = s.ImagePlane.Image
	}
	if s.TimeRange != nil {
		fr, err := s.TimeRange.frameRange()
		if err != nil {
			return nil, nil, fmt.Errorf("shot %q: %w", s.Name, err)
		}
		seq.FrameRange = fr
	}

	if !touched[cam] {
		cam.FocalLength = models.NewKeyframes(models.KindAnimated)
		cam.FocalPixels = models.NewKeyframes(models.KindAnimated)
		cam.Distortion = models.NewKeyframes(models.KindAnimated)
		touched[cam] = true
	}

	halfFilmbackWidth := 0.5 * cam.FilmbackWidth
	for _, f := range s.Frames {
		frame := intOr(f.Frame, 0)
		if frame < 0 {
			return nil, nil, fmt.Errorf("%w: shot %q has negative frame %d", ErrInvalidDocument, s.Name, frame)
		}
		if f.FOVX == nil || *f.FOVX <= 0 || *f.FOVX >= 180 {
			return nil, nil, fmt.Errorf("%w: shot %q frame %d has invalid fovx", ErrInvalidDocument, s.Name, frame)
		}

		focalLength := FocalLengthFromFOV(*f.FOVX, halfFilmbackWidth)
		focalPixels := focalLength * float64(s.Width) / cam.FilmbackWidth

		cam.FocalLength.Set(frame, focalLength)
		cam.FocalPixels.Set(frame, focalPixels)
		cam.Distortion.Set(frame, floatOr(f.Distortion, 0.0))
	}

	return seq, cam, nil
}

// FocalLengthFromFOV derives a focal length from a horizontal field of view in
// degrees and half the filmback width.
func FocalLengthFromFOV(fovx, halfFilmbackWidth float64) float64 {
	return halfFilmbackWidth / math.Tan(math.Pi/360.0*fovx)
}

// FOVFromFocalLength is the inverse of FocalLengthFromFOV.
func FOVFromFocalLength(focalLength, halfFilmbackWidth float64) float64 {
	return 2.0 * math.Atan(halfFilmbackWidth/focalLength) * 180.0 / math.Pi
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
