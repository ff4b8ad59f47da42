package rzml

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

const sampleRZML = `<?xml version="1.0" encoding="UTF-8"?>
<RZML v="1.4.3">
  <TRNG t="1" d="10" f="24"/>
  <CINF i="1" n="camera01" sw="1920" sh="1080" fbh="24" a="1"/>
  <CINF i="2" n="witness"/>
  <SHOT i="1" n="plate" ci="1" w="1920" h="1080">
    <IPLN img="/plates/plate.#.jpg"/>
    <TRNG t="1" d="3" f="25"/>
    <CFRM t="1" fovx="60" rd="-0.05"/>
    <CFRM t="2" fovx="60" rd="-0.05"/>
    <CFRM t="3" fovx="50" rd="-0.05"/>
  </SHOT>
  <SHOT i="2" n="orphan" ci="7" w="100" h="100"/>
</RZML>
`

func TestReadScene(t *testing.T) {
	scene, err := NewReader(nil).Read(strings.NewReader(sampleRZML), "/projects/shot010.rzml")
	require.NoError(t, err)

	assert.Equal(t, "shot010.rzml", scene.Name)
	assert.Equal(t, "/projects/shot010.rzml", scene.Path)
	assert.Equal(t, models.ApplicationMatchMover, scene.Application)
	assert.Equal(t, models.UnitMillimetre, scene.Units)
	assert.Equal(t, models.FrameRange{Start: 1, End: 10, FPS: 24}, scene.FrameRange)
	require.Len(t, scene.Cameras, 2)
	require.Len(t, scene.Sequences, 1)
}

func TestReadCameraGeometry(t *testing.T) {
	scene, err := NewReader(nil).Read(strings.NewReader(sampleRZML), "shot.rzml")
	require.NoError(t, err)

	cam, ok := scene.Camera(1)
	require.True(t, ok)
	assert.Equal(t, "camera01", cam.Name)
	assert.Equal(t, 1920, cam.Width)
	assert.Equal(t, 1080, cam.Height)
	assert.InDelta(t, 1920.0/1080.0, cam.ImageAspectRatio, models.Tolerance)
	assert.Equal(t, 24.0, cam.FilmbackHeight)
	assert.InDelta(t, 24.0*1920.0/1080.0, cam.FilmbackWidth, models.Tolerance)
	assert.True(t, models.FloatEqual(cam.FilmbackWidth/cam.FilmbackHeight, cam.FilmAspectRatio))
	assert.Equal(t, 0.5, cam.LensCentreX)
	assert.Equal(t, 0.5, cam.LensCentreY)

	witness, ok := scene.Camera(2)
	require.True(t, ok)
	assert.Equal(t, DefaultImageWidth, witness.Width)
	assert.Equal(t, DefaultImageHeight, witness.Height)
	assert.Equal(t, DefaultFilmbackHeight, witness.FilmbackWidth)
	assert.Equal(t, DefaultPixelAspect, witness.PixelAspectRatio)
	assert.True(t, witness.Distortion.IsStatic())
	assert.Empty(t, witness.Sequences)
}

func TestReadShotSeries(t *testing.T) {
	scene, err := NewReader(nil).Read(strings.NewReader(sampleRZML), "shot.rzml")
	require.NoError(t, err)

	cam, _ := scene.Camera(1)

	assert.False(t, cam.FocalLength.IsStatic())
	assert.Equal(t, []int{1, 2, 3}, cam.FocalLength.Frames())
	assert.Equal(t, 3, cam.FocalPixels.Len())

	halfFbw := 0.5 * cam.FilmbackWidth
	fl, _ := cam.FocalLength.Value(1)
	assert.InDelta(t, halfFbw/math.Tan(math.Pi/6), fl, 1e-9)

	px, _ := cam.FocalPixels.Value(1)
	assert.InDelta(t, fl*1920/cam.FilmbackWidth, px, 1e-9)

	assert.True(t, cam.Distortion.IsStatic())
	d, _ := cam.Distortion.Value(2)
	assert.InDelta(t, -0.05, d, models.Tolerance)

	require.Len(t, cam.Sequences, 1)
	seq := cam.Sequences[0]
	assert.Equal(t, "plate", seq.Name)
	assert.Equal(t, "1", seq.Index)
	assert.Equal(t, "camera01", seq.CameraName)
	assert.Equal(t, 1, seq.CameraIndex)
	assert.Equal(t, "/plates/plate.#.jpg", seq.ImagePath)
	assert.Equal(t, models.FrameRange{Start: 1, End: 3, FPS: 25}, seq.FrameRange)
	assert.Same(t, seq, scene.Sequences[0])
}

func TestReadShotsShareCameraSeries(t *testing.T) {
	doc := `<RZML>
  <TRNG t="1" d="4" f="24"/>
  <CINF i="1" n="cam"/>
  <CINF i="2" n="steady"/>
  <SHOT n="a" i="1" ci="1" w="512" h="512">
    <CFRM t="1" fovx="40" rd="-0.05"/>
    <CFRM t="2" fovx="40" rd="-0.05"/>
  </SHOT>
  <SHOT n="b" i="2" ci="1" w="512" h="512">
    <CFRM t="3" fovx="40" rd="-0.08"/>
    <CFRM t="4" fovx="40" rd="-0.08"/>
  </SHOT>
  <SHOT n="c" i="3" ci="2" w="512" h="512">
    <CFRM t="1" fovx="30" rd="0.02"/>
  </SHOT>
  <SHOT n="d" i="4" ci="2" w="512" h="512">
    <CFRM t="4" fovx="30" rd="0.02"/>
  </SHOT>
</RZML>`

	scene, err := NewReader(nil).Read(strings.NewReader(doc), "multi.rzml")
	require.NoError(t, err)

	// Each shot alone is constant, together they are not
	cam, _ := scene.Camera(1)
	require.Len(t, cam.Sequences, 2)
	assert.False(t, cam.Distortion.IsStatic())
	assert.Equal(t, []int{1, 2, 3, 4}, cam.Distortion.Frames())
	assert.InDeltaSlice(t, []float64{-0.05, -0.05, -0.08, -0.08}, cam.Distortion.Values(), models.Tolerance)
	assert.True(t, cam.FocalLength.IsStatic())

	steady, _ := scene.Camera(2)
	require.Len(t, steady.Sequences, 2)
	assert.True(t, steady.Distortion.IsStatic())
	d, _ := steady.Distortion.Value(3)
	assert.InDelta(t, 0.02, d, models.Tolerance)
}

func TestReadShotWithoutTimeRangeUsesGlobal(t *testing.T) {
	doc := `<RZML>
  <TRNG t="0" d="5" f="24"/>
  <CINF i="1" n="cam"/>
  <SHOT n="s" i="1" w="512" h="512">
    <CFRM fovx="40"/>
  </SHOT>
</RZML>`

	scene, err := NewReader(nil).Read(strings.NewReader(doc), "s.rzml")
	require.NoError(t, err)

	cam, _ := scene.Camera(1)
	require.Len(t, cam.Sequences, 1)
	assert.Equal(t, models.FrameRange{Start: 0, End: 4, FPS: 24}, cam.Sequences[0].FrameRange)

	assert.True(t, cam.FocalLength.IsStatic())
	d, _ := cam.Distortion.Value(0)
	assert.Equal(t, 0.0, d)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "this is not xml <"},
		{"no root", `<OTHER/>`},
		{"missing global range", `<RZML><CINF i="1" n="c"/></RZML>`},
		{"zero length range", `<RZML><TRNG t="1" d="0" f="24"/></RZML>`},
		{"negative frame", `<RZML><TRNG t="0" d="2" f="24"/><CINF i="1" n="c"/>
			<SHOT ci="1" w="10" h="10"><CFRM t="-1" fovx="40"/></SHOT></RZML>`},
		{"missing fovx", `<RZML><TRNG t="0" d="2" f="24"/><CINF i="1" n="c"/>
			<SHOT ci="1" w="10" h="10"><CFRM t="1"/></SHOT></RZML>`},
		{"bad attribute", `<RZML><TRNG t="zero" d="2" f="24"/></RZML>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(nil).Read(strings.NewReader(tt.doc), "bad.rzml")
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.rzml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRZML), 0o644))

	scene, err := NewReader(nil).ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "scene.rzml", scene.Name)

	_, err = NewReader(nil).ReadFile(filepath.Join(t.TempDir(), "missing.rzml"))
	assert.Error(t, err)
}

func TestFocalLengthFOVRoundTrip(t *testing.T) {
	halfFbw := 0.5 * 36.0
	fov := FOVFromFocalLength(35, halfFbw)
	assert.InDelta(t, 54.4322, fov, 1e-3)
	assert.InDelta(t, 35.0, FocalLengthFromFOV(fov, halfFbw), 1e-9)
}
