package converter

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// lengthFactors maps a (from, to) unit pair to its multiplier.
var lengthFactors = map[[2]models.Unit]float64{
	{models.UnitMillimetre, models.UnitCentimetre}: 0.1,
	{models.UnitCentimetre, models.UnitMillimetre}: 10.0,
	{models.UnitMillimetre, models.UnitMetre}:      0.001,
	{models.UnitMetre, models.UnitMillimetre}:      1000.0,
	{models.UnitCentimetre, models.UnitMetre}:      0.01,
	{models.UnitMetre, models.UnitCentimetre}:      100.0,
}

// LengthFactor returns the multiplier converting lengths in from into to.
func LengthFactor(from, to models.Unit) (float64, error) {
	if !from.Valid() {
		return 0, fmt.Errorf("%w: %q", models.ErrUnknownUnit, from)
	}
	if !to.Valid() {
		return 0, fmt.Errorf("%w: %q", models.ErrUnknownUnit, to)
	}
	if from == to {
		return 1.0, nil
	}
	return lengthFactors[[2]models.Unit{from, to}], nil
}

// ConvertLength converts v from one unit system to another. Converting to the
// same unit returns v unchanged.
func ConvertLength(v float64, from, to models.Unit) (float64, error) {
	factor, err := LengthFactor(from, to)
	if err != nil {
		return 0, err
	}
	if from == to {
		return v, nil
	}
	return v * factor, nil
}

// ConvertKeyframes applies ConvertLength to every sample of k and returns a new
// series of the same kind.
func ConvertKeyframes(k *models.Keyframes, from, to models.Unit) (*models.Keyframes, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: nil keyframes", ErrMissingData)
	}
	factor, err := LengthFactor(from, to)
	if err != nil {
		return nil, err
	}
	if from == to {
		return k.Clone(), nil
	}
	return k.Map(func(v float64) float64 { return v * factor }), nil
}

// ConvertLensCentre turns a normalised lens centre coordinate (0.5 is the image
// centre) into a physical offset from the centre along a filmback dimension.
func ConvertLensCentre(normalized, filmbackDimension float64) float64 {
	return (normalized - 0.5) * filmbackDimension
}
