package exporter

import (
	"bufio"
	"fmt"
	"io"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// LensExporterName selects the 3DE lens file writer.
const LensExporterName = "lens"

// lensExporter writes a 3DEqualizer lens file.
type lensExporter struct{}

func (lensExporter) Name() string        { return LensExporterName }
func (lensExporter) Suffix() string      { return "3deLens" }
func (lensExporter) Extension() string   { return "txt" }
func (lensExporter) ContentType() string { return "text/plain" }

func (lensExporter) Write(w io.Writer, cam *models.Camera, opts Options) error {
	if err := requireEqualizer(cam); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s_lens\n", cam.Name)

	focalLength := firstValue(cam.FocalLength, 3.0)
	fmt.Fprintf(bw, "%.15f %.15f %.15f %.15f %.15f %.15f %.15f\n",
		cam.FilmbackWidth, cam.FilmbackHeight, focalLength, cam.FilmAspectRatio,
		cam.LensCentreX, cam.LensCentreY, cam.PixelAspectRatio)

	if cam.Distortion == nil || cam.Distortion.IsStatic() {
		fmt.Fprintln(bw, "DISTORTION_STATIC")
	} else {
		fmt.Fprintln(bw, "DISTORTION_DYNAMIC_FOCUS_DISTANCE")
	}
	fmt.Fprintln(bw, LensModelName)

	fmt.Fprintln(bw, DistortionName)
	fmt.Fprintf(bw, "%.15f\n", firstValue(cam.Distortion, 0.0))
	writeLensCurve(bw, cam.Distortion, opts.Frames)

	for _, p := range defaultParameters {
		fmt.Fprintln(bw, p.Name)
		fmt.Fprintf(bw, "%.15f\n", p.Value)
		writeLensCurve(bw, nil, opts.Frames)
	}

	fmt.Fprintln(bw, "<end_of_file>")
	return bw.Flush()
}

// writeLensCurve writes the key count followed by one line per selected key.
// Static or missing series write an empty curve.
func writeLensCurve(w io.Writer, k *models.Keyframes, frames FrameList) {
	if k == nil || k.IsStatic() {
		fmt.Fprintln(w, "0")
		return
	}

	var keys []models.Keyframe
	for _, kf := range k.Keys() {
		if frames.Contains(kf.Frame) {
			keys = append(keys, kf)
		}
	}

	fmt.Fprintf(w, "%d\n", len(keys))
	for _, kf := range keys {
		fmt.Fprintf(w, "%.15f %.15f 0.0 0.0 0.0 0.0 SMOOTH\n", float64(kf.Frame), kf.Value)
	}
}
