package converter

import (
	"context"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// CameraFailure records a camera that could not be converted.
type CameraFailure struct {
	Name  string
	Index int
	Err   error
}

// SceneResult is the outcome of converting every camera of a scene.
type SceneResult struct {
	Scene    *models.Scene
	Failures []CameraFailure
}

// ConvertScene converts every camera of scene concurrently, running at most
// parallelism conversions at a time. Cameras keep their source order; the ones
// that fail are reported in Failures and left out of the resulting scene.
func (c *Converter) ConvertScene(ctx context.Context, scene *models.Scene, dest models.Application, parallelism int) (*SceneResult, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	start := time.Now()
	defer func() {
		metrics.RecordStage("scene", time.Since(start).Seconds())
	}()

	out := models.NewScene(dest)
	out.Name = scene.Name
	out.Index = scene.Index
	out.Path = scene.Path
	out.FrameRange = scene.FrameRange
	out.Sequences = scene.Sequences

	converted := make([]*models.Camera, len(scene.Cameras))
	errs := make([]error, len(scene.Cameras))

	swg := sizedwaitgroup.New(parallelism)
	for i, cam := range scene.Cameras {
		if err := ctx.Err(); err != nil {
			swg.Wait()
			return nil, err
		}
		if err := swg.AddWithContext(ctx); err != nil {
			swg.Wait()
			return nil, err
		}
		go func(i int, cam *models.Camera) {
			defer swg.Done()
			converted[i], errs[i] = c.ConvertCamera(cam, dest)
		}(i, cam)
	}
	swg.Wait()

	result := &SceneResult{Scene: out}
	for i, cam := range scene.Cameras {
		if errs[i] != nil {
			result.Failures = append(result.Failures, CameraFailure{
				Name:  cam.Name,
				Index: cam.Index,
				Err:   errs[i],
			})
			continue
		}
		out.Cameras = append(out.Cameras, converted[i])
	}

	return result, nil
}
