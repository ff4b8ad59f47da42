package converter

import (
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// Converter converts camera records between tracking applications.
type Converter struct {
	log    *logging.Logger
	strict bool
}

// Option configures a Converter.
type Option func(*Converter)

// WithStrictInvariants makes failed consistency checks abort the conversion
// instead of only being logged.
func WithStrictInvariants(strict bool) Option {
	return func(c *Converter) {
		c.strict = strict
	}
}

// New creates a Converter. A nil logger discards output.
func New(log *logging.Logger, opts ...Option) *Converter {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &Converter{log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertCamera returns a new camera equivalent to cam but expressed in dest's
// units, lens centre convention and distortion model. cam is never modified.
func (c *Converter) ConvertCamera(cam *models.Camera, dest models.Application) (*models.Camera, error) {
	start := time.Now()
	log := c.log.WithCamera(cam.Name, cam.Index)

	if err := checkDirection(cam.Application, dest); err != nil {
		reason := "unsupported"
		if errors.Is(err, ErrSameApplication) {
			reason = "same_application"
		}
		log.WithError(err).Warn("Camera conversion rejected")
		metrics.RecordCameraRejected(reason)
		return nil, err
	}

	out := models.NewCamera(dest)
	out.Name = cam.Name
	out.Index = cam.Index
	out.Width = cam.Width
	out.Height = cam.Height
	out.ImageAspectRatio = cam.ImageAspectRatio
	out.PixelAspectRatio = cam.PixelAspectRatio

	var err error
	if out.FilmbackWidth, err = ConvertLength(cam.FilmbackWidth, cam.Units, out.Units); err != nil {
		return nil, fmt.Errorf("filmback width: %w", err)
	}
	if out.FilmbackHeight, err = ConvertLength(cam.FilmbackHeight, cam.Units, out.Units); err != nil {
		return nil, fmt.Errorf("filmback height: %w", err)
	}
	out.FilmAspectRatio = cam.FilmAspectRatio

	if err := c.checkFilmAspect(log, out); err != nil {
		return nil, err
	}

	out.LensCentreX = ConvertLensCentre(cam.LensCentreX, out.FilmbackWidth)
	out.LensCentreY = ConvertLensCentre(cam.LensCentreY, out.FilmbackHeight)

	if out.FocalLength, err = ConvertKeyframes(cam.FocalLength, cam.Units, out.Units); err != nil {
		return nil, fmt.Errorf("focal length: %w", err)
	}
	if cam.FocalPixels != nil {
		out.FocalPixels = cam.FocalPixels.Clone()
	}

	stageStart := time.Now()
	if out.Distortion, err = ConvertDistortion(cam, dest); err != nil {
		log.WithError(err).Error("Distortion conversion failed")
		return nil, err
	}
	metrics.RecordStage("distortion", time.Since(stageStart).Seconds())

	out.Sequences = cam.Sequences

	metrics.RecordCameraConverted(string(cam.Application), string(dest), out.Distortion.Len())
	log.LogConversion(cam.Name, string(cam.Application), string(dest),
		out.Distortion.Len(), out.Distortion.IsStatic(), time.Since(start))

	return out, nil
}

func (c *Converter) checkFilmAspect(log *logging.Logger, cam *models.Camera) error {
	computed := cam.FilmbackWidth / cam.FilmbackHeight
	if models.FloatEqual(computed, cam.FilmAspectRatio) {
		return nil
	}

	metrics.RecordInvariantViolation("film_aspect_ratio")
	err := fmt.Errorf("%w: film aspect ratio %.15f does not match filmback %.15f/%.15f",
		ErrInvariant, cam.FilmAspectRatio, cam.FilmbackWidth, cam.FilmbackHeight)
	log.WithError(err).Error("Film aspect ratio check failed")
	if c.strict {
		return err
	}
	return nil
}
