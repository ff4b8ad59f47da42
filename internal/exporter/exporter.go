// Package exporter writes converted cameras into destination file formats.
package exporter

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

var (
	// ErrUnknownExporter is returned by New for unregistered names.
	ErrUnknownExporter = errors.New("unknown exporter")
	// ErrWrongApplication is returned when a camera is not in the exporter's application.
	ErrWrongApplication = errors.New("camera application not supported by exporter")
)

// Lens distortion parameter names of the 3DE Classic LD model.
const (
	LensModelName  = "3DE Classic LD Model"
	DistortionName = "Distortion"
)

// defaultParameters are the remaining 3DE Classic LD parameters, which are
// never animated by a MatchMover conversion.
var defaultParameters = []struct {
	Name  string
	Value float64
}{
	{"Anamorphic Squeeze", 1.0},
	{"Curvature X", 0.0},
	{"Curvature Y", 0.0},
	{"Quartic Distortion", 0.0},
}

// Options control what an exporter writes.
type Options struct {
	// Frames restricts the keys written for animated values.
	Frames FrameList
	// NodeName overrides the generated Nuke node name.
	NodeName string
}

// Exporter writes one camera to one file format.
type Exporter interface {
	// Name is the configuration token of the exporter.
	Name() string
	// Suffix is appended to output file names.
	Suffix() string
	// Extension is the output file extension without a dot.
	Extension() string
	// ContentType is the MIME type of the output.
	ContentType() string
	Write(w io.Writer, cam *models.Camera, opts Options) error
}

var registry = map[string]Exporter{
	LensExporterName:    lensExporter{},
	RawTextExporterName: rawTextExporter{},
	NukeExporterName:    nukeExporter{},
}

// New returns the exporter registered under name.
func New(name string) (Exporter, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
	return e, nil
}

// NewAll resolves a list of exporter names, keeping their order.
func NewAll(names []string) ([]Exporter, error) {
	out := make([]Exporter, 0, len(names))
	for _, name := range names {
		e, err := New(name)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Names lists the registered exporters.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputName builds "<base>_<camera>_<suffix>.<ext>" where base is the source
// file name without its extension and spaces in the camera name become
// underscores.
func OutputName(sourcePath, cameraName string, e Exporter) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	camera := strings.ReplaceAll(cameraName, " ", "_")
	return fmt.Sprintf("%s_%s_%s.%s", base, camera, e.Suffix(), strings.TrimPrefix(e.Extension(), "."))
}

// OutputPath is OutputName placed in outDir, or next to the source file when
// outDir is empty.
func OutputPath(sourcePath, outDir, cameraName string, e Exporter) string {
	if outDir == "" {
		outDir = filepath.Dir(sourcePath)
	}
	return filepath.Join(outDir, OutputName(sourcePath, cameraName, e))
}

func requireEqualizer(cam *models.Camera) error {
	if cam.Application != models.ApplicationEqualizer {
		return fmt.Errorf("%w: %s", ErrWrongApplication, cam.Application.DisplayName())
	}
	return nil
}

// firstValue is the value at the first stored frame of k.
func firstValue(k *models.Keyframes, fallback float64) float64 {
	if k == nil {
		return fallback
	}
	v, ok := k.Value(k.StartFrame())
	if !ok {
		return fallback
	}
	return v
}
