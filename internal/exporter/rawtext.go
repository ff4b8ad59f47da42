package exporter

import (
	"bufio"
	"fmt"
	"io"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// RawTextExporterName selects the human readable dump.
const RawTextExporterName = "rawtext"

type rawTextExporter struct{}

func (rawTextExporter) Name() string        { return RawTextExporterName }
func (rawTextExporter) Suffix() string      { return "3deRawText" }
func (rawTextExporter) Extension() string   { return "txt" }
func (rawTextExporter) ContentType() string { return "text/plain" }

func (rawTextExporter) Write(w io.Writer, cam *models.Camera, opts Options) error {
	if err := requireEqualizer(cam); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	u := cam.Units

	fmt.Fprintf(bw, "Camera Name: %s\n", cam.Name)
	fmt.Fprintf(bw, "Focal Length (%s): %.4f\n", u, firstValue(cam.FocalLength, 3.0))
	fmt.Fprintf(bw, "Filmback Width (%s): %.4f\n", u, cam.FilmbackWidth)
	fmt.Fprintf(bw, "Filmback Height (%s): %.4f\n", u, cam.FilmbackHeight)
	fmt.Fprintf(bw, "Film Aspect Ratio: %.4f\n", cam.FilmAspectRatio)
	fmt.Fprintf(bw, "Lens Centre X (%s): %.4f\n", u, cam.LensCentreX)
	fmt.Fprintf(bw, "Lens Centre Y (%s): %.4f\n", u, cam.LensCentreY)
	fmt.Fprintf(bw, "Pixel Aspect Ratio: %.4f\n\n", cam.PixelAspectRatio)

	if cam.Distortion == nil || cam.Distortion.IsStatic() {
		fmt.Fprint(bw, "Static Distortion\n\n")
	} else {
		fmt.Fprint(bw, "Animated Distortion\n\n")
	}

	fmt.Fprintln(bw, DistortionName)
	fmt.Fprintf(bw, "%.15f\n", firstValue(cam.Distortion, 0.0))
	writeRawCurve(bw, cam.Distortion, opts.Frames)
	fmt.Fprintln(bw)

	for _, p := range defaultParameters {
		fmt.Fprintln(bw, p.Name)
		fmt.Fprintf(bw, "%.15f\n", p.Value)
		fmt.Fprintln(bw)
	}

	return bw.Flush()
}

func writeRawCurve(w io.Writer, k *models.Keyframes, frames FrameList) {
	if k == nil || k.IsStatic() {
		return
	}

	var keys []models.Keyframe
	for _, kf := range k.Keys() {
		if frames.Contains(kf.Frame) {
			keys = append(keys, kf)
		}
	}

	fmt.Fprintf(w, "Number of Keys: %d\n", len(keys))
	fmt.Fprintln(w, "Time/Values:")
	for _, kf := range keys {
		fmt.Fprintf(w, "%.15f %.15f\n", float64(kf.Frame), kf.Value)
	}
}
