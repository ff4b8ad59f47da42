package converter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// matchMoverCamera builds a 1920x1080 MatchMover camera on a 24mm high filmback
// with a static focal length of 1550 pixels.
func matchMoverCamera(distortion *models.Keyframes) *models.Camera {
	aspect := 1920.0 / 1080.0
	cam := models.NewCamera(models.ApplicationMatchMover)
	cam.Name = "camera01"
	cam.Index = 1
	cam.Width = 1920
	cam.Height = 1080
	cam.ImageAspectRatio = aspect
	cam.FilmbackHeight = 24.0
	cam.FilmbackWidth = 24.0 * aspect
	cam.FilmAspectRatio = cam.FilmbackWidth / cam.FilmbackHeight
	cam.FocalPixels = models.NewStaticKeyframes(1550)
	cam.FocalLength = models.NewStaticKeyframes(1550 * cam.FilmbackWidth / 1920)
	cam.Distortion = distortion
	cam.Sequences = []*models.Sequence{{
		Name:        "plate",
		Index:       "1",
		Application: models.ApplicationMatchMover,
		CameraName:  "camera01",
		CameraIndex: 1,
		Width:       1920,
		Height:      1080,
		FrameRange:  models.FrameRange{Start: 0, End: 10, FPS: 24},
	}}
	return cam
}

func animatedDistortion() *models.Keyframes {
	return models.NewAnimatedKeyframes(
		models.Keyframe{Frame: 0, Value: -0.05},
		models.Keyframe{Frame: 5, Value: -0.08},
		models.Keyframe{Frame: 10, Value: -0.05},
	)
}

// expectedDistortion is the 3DE coefficient for a positive corner scale.
func expectedDistortion(k float64) float64 {
	rr := 960.0*960.0 + 540.0*540.0
	return k * rr / (1550.0 * 1550.0)
}

func TestConvertLength(t *testing.T) {
	tests := []struct {
		from, to models.Unit
		in, want float64
	}{
		{models.UnitMillimetre, models.UnitCentimetre, 35, 3.5},
		{models.UnitCentimetre, models.UnitMillimetre, 3.5, 35},
		{models.UnitMillimetre, models.UnitMetre, 35, 0.035},
		{models.UnitMetre, models.UnitCentimetre, 0.5, 50},
		{models.UnitCentimetre, models.UnitCentimetre, 1.25, 1.25},
	}

	for _, tt := range tests {
		got, err := ConvertLength(tt.in, tt.from, tt.to)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, models.Tolerance)
	}
}

func TestConvertLengthRoundTrip(t *testing.T) {
	units := []models.Unit{models.UnitMillimetre, models.UnitCentimetre, models.UnitMetre}
	for _, a := range units {
		for _, b := range units {
			there, err := ConvertLength(36.0, a, b)
			require.NoError(t, err)
			back, err := ConvertLength(there, b, a)
			require.NoError(t, err)
			assert.True(t, models.FloatEqual(36.0, back), "%s -> %s -> %s", a, b, a)
		}
	}
}

func TestConvertLengthUnknownUnit(t *testing.T) {
	_, err := ConvertLength(1, "in", models.UnitMillimetre)
	assert.ErrorIs(t, err, models.ErrUnknownUnit)

	_, err = ConvertLength(1, models.UnitMillimetre, "ft")
	assert.ErrorIs(t, err, models.ErrUnknownUnit)

	_, err = ConvertKeyframes(models.NewStaticKeyframes(1), "yd", models.UnitMetre)
	assert.ErrorIs(t, err, models.ErrUnknownUnit)
}

func TestConvertKeyframesPreservesShape(t *testing.T) {
	static, err := ConvertKeyframes(models.NewStaticKeyframes(35), models.UnitMillimetre, models.UnitCentimetre)
	require.NoError(t, err)
	assert.True(t, static.IsStatic())
	v, _ := static.Value(0)
	assert.InDelta(t, 3.5, v, models.Tolerance)

	src := models.NewAnimatedKeyframes(models.Keyframe{Frame: 2, Value: 20}, models.Keyframe{Frame: 9, Value: 40})
	animated, err := ConvertKeyframes(src, models.UnitMillimetre, models.UnitCentimetre)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 9}, animated.Frames())
	assert.InDeltaSlice(t, []float64{2, 4}, animated.Values(), models.Tolerance)

	_, err = ConvertKeyframes(nil, models.UnitMillimetre, models.UnitCentimetre)
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestConvertLensCentre(t *testing.T) {
	assert.Equal(t, 0.0, ConvertLensCentre(0.5, 2.4))
	assert.InDelta(t, 0.24, ConvertLensCentre(0.6, 2.4), models.Tolerance)
	assert.InDelta(t, -1.2, ConvertLensCentre(0, 2.4), models.Tolerance)
}

func TestMatchMoverToEqualizerZeroDistortion(t *testing.T) {
	got, err := MatchMoverToEqualizer(0, LensGeometry{
		FocalPixels:      1550,
		PixelAspectRatio: 1,
		Width:            1920,
		Height:           1080,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestMatchMoverToEqualizerDerivesFocalPixels(t *testing.T) {
	g := LensGeometry{
		FocalLength:      35,
		FilmbackWidth:    36,
		PixelAspectRatio: 1,
		Width:            2048,
		Height:           1152,
	}
	got, err := MatchMoverToEqualizer(-0.1, g)
	require.NoError(t, err)

	f := 35.0 * 2048 / 36
	rr := 1024.0*1024.0 + 576.0*576.0
	assert.InDelta(t, -0.1*rr/(f*f), got, models.Tolerance)
}

func TestMatchMoverToEqualizerRejectsBadGeometry(t *testing.T) {
	tests := []struct {
		name string
		g    LensGeometry
	}{
		{"zero width", LensGeometry{FocalPixels: 1000, PixelAspectRatio: 1, Height: 1080}},
		{"zero pixel aspect", LensGeometry{FocalPixels: 1000, Width: 1920, Height: 1080}},
		{"no focal", LensGeometry{PixelAspectRatio: 1, Width: 1920, Height: 1080}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MatchMoverToEqualizer(-0.1, tt.g)
			assert.ErrorIs(t, err, ErrInvalidGeometry)
		})
	}
}

func TestConvertCameraAnimatedDistortion(t *testing.T) {
	src := matchMoverCamera(animatedDistortion())
	c := New(nil)

	out, err := c.ConvertCamera(src, models.ApplicationEqualizer)
	require.NoError(t, err)

	assert.Equal(t, models.ApplicationEqualizer, out.Application)
	assert.Equal(t, models.UnitCentimetre, out.Units)
	assert.Equal(t, "camera01", out.Name)
	assert.Equal(t, 1920, out.Width)
	assert.Equal(t, 1080, out.Height)

	aspect := 1920.0 / 1080.0
	assert.InDelta(t, 2.4, out.FilmbackHeight, models.Tolerance)
	assert.InDelta(t, 2.4*aspect, out.FilmbackWidth, models.Tolerance)
	assert.True(t, models.FloatEqual(out.FilmbackWidth/out.FilmbackHeight, out.FilmAspectRatio))
	assert.Equal(t, 0.0, out.LensCentreX)
	assert.Equal(t, 0.0, out.LensCentreY)

	require.NotNil(t, out.Distortion)
	assert.False(t, out.Distortion.IsStatic())
	assert.Equal(t, 3, out.Distortion.Len())
	assert.Equal(t, []int{0, 5, 10}, out.Distortion.Frames())
	assert.InDeltaSlice(t, []float64{
		expectedDistortion(-0.05),
		expectedDistortion(-0.08),
		expectedDistortion(-0.05),
	}, out.Distortion.Values(), models.Tolerance)

	focal, _ := out.FocalLength.Value(0)
	srcFocal, _ := src.FocalLength.Value(0)
	assert.InDelta(t, srcFocal/10, focal, models.Tolerance)

	require.Len(t, out.Sequences, 1)
	assert.Same(t, src.Sequences[0], out.Sequences[0])
}

func TestConvertCameraStaticDistortion(t *testing.T) {
	src := matchMoverCamera(models.NewStaticKeyframes(-0.05))

	out, err := New(nil).ConvertCamera(src, models.ApplicationEqualizer)
	require.NoError(t, err)

	assert.True(t, out.Distortion.IsStatic())
	v, _ := out.Distortion.Value(123)
	assert.InDelta(t, expectedDistortion(-0.05), v, models.Tolerance)
}

func TestConvertCameraConstantAnimatedDistortionSimplifies(t *testing.T) {
	src := matchMoverCamera(models.NewAnimatedKeyframes(
		models.Keyframe{Frame: 2, Value: -0.05},
		models.Keyframe{Frame: 8, Value: -0.05},
	))

	out, err := New(nil).ConvertCamera(src, models.ApplicationEqualizer)
	require.NoError(t, err)
	assert.True(t, out.Distortion.IsStatic())
}

func TestConvertCameraWithoutSequence(t *testing.T) {
	src := matchMoverCamera(models.NewAnimatedKeyframes(
		models.Keyframe{Frame: 3, Value: -0.1},
		models.Keyframe{Frame: 7, Value: -0.2},
	))
	src.Sequences = nil

	out, err := New(nil).ConvertCamera(src, models.ApplicationEqualizer)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Distortion.Len())
	v, ok := out.Distortion.Value(0)
	require.True(t, ok)
	assert.InDelta(t, expectedDistortion(-0.1), v, models.Tolerance)
}

func TestConvertCameraSameApplication(t *testing.T) {
	src := matchMoverCamera(animatedDistortion())
	snapshot := matchMoverCamera(animatedDistortion())

	out, err := New(nil).ConvertCamera(src, models.ApplicationMatchMover)
	assert.ErrorIs(t, err, ErrSameApplication)
	assert.Nil(t, out)
	assert.Equal(t, snapshot, src)
}

func TestConvertCameraReverseDirection(t *testing.T) {
	src := matchMoverCamera(animatedDistortion())
	src.Application = models.ApplicationEqualizer
	src.Units = models.UnitCentimetre

	_, err := New(nil).ConvertCamera(src, models.ApplicationMatchMover)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestConvertCameraUnknownDestination(t *testing.T) {
	_, err := New(nil).ConvertCamera(matchMoverCamera(animatedDistortion()), "maya")
	assert.ErrorIs(t, err, models.ErrUnknownApplication)
}

func TestConvertCameraDoesNotMutateInput(t *testing.T) {
	src := matchMoverCamera(animatedDistortion())
	snapshot := matchMoverCamera(animatedDistortion())

	_, err := New(nil).ConvertCamera(src, models.ApplicationEqualizer)
	require.NoError(t, err)
	assert.Equal(t, snapshot, src)
}

func TestConvertCameraFilmAspectInvariant(t *testing.T) {
	src := matchMoverCamera(animatedDistortion())
	src.FilmAspectRatio = 1.5

	_, err := New(nil, WithStrictInvariants(true)).ConvertCamera(src, models.ApplicationEqualizer)
	assert.ErrorIs(t, err, ErrInvariant)

	out, err := New(nil).ConvertCamera(src, models.ApplicationEqualizer)
	require.NoError(t, err)
	assert.Equal(t, 1.5, out.FilmAspectRatio)
}

func TestConvertCameraMissingDistortion(t *testing.T) {
	src := matchMoverCamera(nil)

	_, err := New(nil).ConvertCamera(src, models.ApplicationEqualizer)
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestDistortionFrames(t *testing.T) {
	cam := matchMoverCamera(models.NewAnimatedKeyframes(
		models.Keyframe{Frame: -5, Value: -0.1},
		models.Keyframe{Frame: 4, Value: -0.1},
		models.Keyframe{Frame: 12, Value: -0.1},
	))
	cam.FocalPixels = models.NewAnimatedKeyframes(
		models.Keyframe{Frame: 4, Value: 1500},
		models.Keyframe{Frame: 10, Value: 1600},
	)

	assert.Equal(t, []int{4, 10}, DistortionFrames(cam))

	cam.Distortion = models.NewAnimatedKeyframes(models.Keyframe{Frame: 50, Value: -0.1})
	cam.FocalPixels = models.NewStaticKeyframes(1500)
	assert.Equal(t, []int{0}, DistortionFrames(cam))
}

func TestConvertScene(t *testing.T) {
	good := matchMoverCamera(animatedDistortion())
	bad := matchMoverCamera(animatedDistortion())
	bad.Name = "broken"
	bad.Index = 2
	bad.Units = "in"
	other := matchMoverCamera(models.NewStaticKeyframes(0))
	other.Name = "camera03"
	other.Index = 3

	scene := models.NewScene(models.ApplicationMatchMover)
	scene.Name = "shot"
	scene.Cameras = []*models.Camera{good, bad, other}

	result, err := New(nil).ConvertScene(context.Background(), scene, models.ApplicationEqualizer, 2)
	require.NoError(t, err)

	assert.Equal(t, models.ApplicationEqualizer, result.Scene.Application)
	assert.Equal(t, "shot", result.Scene.Name)
	require.Len(t, result.Scene.Cameras, 2)
	assert.Equal(t, "camera01", result.Scene.Cameras[0].Name)
	assert.Equal(t, "camera03", result.Scene.Cameras[1].Name)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "broken", result.Failures[0].Name)
	assert.ErrorIs(t, result.Failures[0].Err, models.ErrUnknownUnit)
}

func TestConvertSceneCancelled(t *testing.T) {
	scene := models.NewScene(models.ApplicationMatchMover)
	scene.Cameras = []*models.Camera{matchMoverCamera(animatedDistortion())}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).ConvertScene(ctx, scene, models.ApplicationEqualizer, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
