package exporter

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// NukeExporterName selects the Nuke distortion node writer.
const NukeExporterName = "nuke"

// NukeNodeClass is the Weta 3DE Classic lens distortion node.
const NukeNodeClass = "tde4_ldp_classic_3de_mixed"

// Generator is written into the header of generated Nuke scripts.
var Generator = "lensconv"

var nodeNameReplacer = strings.NewReplacer(" ", "_", "-", "_", ".", "_", ",", "_")

type nukeExporter struct{}

func (nukeExporter) Name() string        { return NukeExporterName }
func (nukeExporter) Suffix() string      { return "nukeWetaNode" }
func (nukeExporter) Extension() string   { return "nk" }
func (nukeExporter) ContentType() string { return "application/x-nuke" }

// NukeNodeName is the node name written for cam, or override when set. Spaces,
// dashes, dots and commas are replaced with underscores.
func NukeNodeName(cam *models.Camera, override string) string {
	name := override
	if name == "" {
		name = "tde4_ldp_" + cam.Name + "_" + strconv.Itoa(cam.Index)
	}
	return nodeNameReplacer.Replace(name)
}

// nukeParameterName turns a lens parameter name into a knob name.
func nukeParameterName(name string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

func (nukeExporter) Write(w io.Writer, cam *models.Camera, opts Options) error {
	if err := requireEqualizer(cam); err != nil {
		return err
	}

	r := cam.FrameRange()
	var frames []int
	for f := r.Start; f <= r.End; f++ {
		if opts.Frames.Contains(f) {
			frames = append(frames, f)
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Exported by %s\n", Generator)
	fmt.Fprintf(bw, "%s {\n", NukeNodeClass)
	fmt.Fprintln(bw, " direction undistort")

	focal := cam.FocalLength
	if focal != nil {
		focal = focal.Clone()
		focal.Simplify()
	}
	writeKnob(bw, "tde4_focal_length_cm", focal, frames, 3.0)

	fmt.Fprintf(bw, " tde4_filmback_width_cm %.7f \n", cam.FilmbackWidth)
	fmt.Fprintf(bw, " tde4_filmback_height_cm %.7f \n", cam.FilmbackHeight)
	fmt.Fprintf(bw, " tde4_lens_center_offset_x_cm %.7f \n", cam.LensCentreX)
	fmt.Fprintf(bw, " tde4_lens_center_offset_y_cm %.7f \n", cam.LensCentreY)
	fmt.Fprintf(bw, " tde4_pixel_aspect %.7f \n", cam.PixelAspectRatio)

	animated := cam.Distortion != nil && !cam.Distortion.IsStatic()
	writeKnob(bw, nukeParameterName(DistortionName), cam.Distortion, frames, 0.0)
	for _, p := range defaultParameters {
		k := models.NewStaticKeyframes(p.Value)
		if animated {
			writeCurve(bw, nukeParameterName(p.Name), k, frames)
			continue
		}
		writeKnob(bw, nukeParameterName(p.Name), k, frames, p.Value)
	}

	fmt.Fprintf(bw, " name %s\n", NukeNodeName(cam, opts.NodeName))
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// writeKnob writes a static knob value, or a curve over frames when k is animated.
func writeKnob(w io.Writer, knob string, k *models.Keyframes, frames []int, fallback float64) {
	if k == nil || k.IsStatic() {
		fmt.Fprintf(w, " %s %.7f \n", knob, firstValue(k, fallback))
		return
	}
	writeCurve(w, knob, k, frames)
}

func writeCurve(w io.Writer, knob string, k *models.Keyframes, frames []int) {
	fmt.Fprintf(w, " %s {{curve ", knob)
	for _, f := range frames {
		v, _ := k.Value(f)
		fmt.Fprintf(w, "x%d %.7f ", f, v)
	}
	fmt.Fprintln(w, "}}")
}
