package converter

import (
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

var (
	// ErrSameApplication is returned when source and destination match.
	ErrSameApplication = errors.New("source and destination application are the same")
	// ErrUnsupportedConversion is returned for directions without a distortion model mapping.
	ErrUnsupportedConversion = errors.New("unsupported conversion direction")
	// ErrInvariant is returned in strict mode when a converted camera fails a consistency check.
	ErrInvariant = errors.New("camera invariant violated")
	// ErrMissingData is returned when a camera lacks a series the conversion needs.
	ErrMissingData = errors.New("missing camera data")
	// ErrInvalidGeometry is returned when image or lens dimensions cannot be used.
	ErrInvalidGeometry = errors.New("invalid lens geometry")
)

func checkDirection(from, to models.Application) error {
	if _, err := models.ParseApplication(string(to)); err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("%w: %s", ErrSameApplication, from.DisplayName())
	}
	if from != models.ApplicationMatchMover || to != models.ApplicationEqualizer {
		return fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, from.DisplayName(), to.DisplayName())
	}
	return nil
}
