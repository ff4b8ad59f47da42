// Package conversion runs complete scene conversions: read an RZML scene,
// convert its cameras and render every requested export format.
package conversion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/converter"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/exporter"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/rzml"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/tracing"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// Request describes one conversion run.
type Request struct {
	Source      io.Reader
	SourcePath  string
	Destination models.Application
	// Exporters names the formats to render. Empty converts without exporting.
	Exporters   []string
	TimeList    string
	NodeName    string
	Parallelism int
}

// Artifact is one rendered export file.
type Artifact struct {
	CameraName  string
	CameraIndex int
	Exporter    string
	Filename    string
	ContentType string
	Static      bool
	Data        []byte
}

// Result holds the converted scene and its rendered exports.
type Result struct {
	Conversion *models.ConversionResult
	Artifacts  []Artifact
}

// Pipeline reads, converts and exports scenes.
type Pipeline struct {
	reader    *rzml.Reader
	converter *converter.Converter
	log       *logging.Logger
}

// NewPipeline creates a pipeline. A nil logger discards output.
func NewPipeline(log *logging.Logger, opts ...converter.Option) *Pipeline {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Pipeline{
		reader:    rzml.NewReader(log),
		converter: converter.New(log, opts...),
		log:       log,
	}
}

// Checksum is the hex SHA-256 of a scene document.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Run converts the scene in req.Source. Cameras that cannot be converted are
// reported in the result instead of failing the run.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	span, ctx := tracing.StartSpan(ctx, "conversion.run")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "source", req.SourcePath)
	tracing.SetTag(span, "destination", string(req.Destination))

	if _, err := models.ParseApplication(string(req.Destination)); err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	frames, err := exporter.ParseFrameList(req.TimeList)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}
	exporters, err := exporter.NewAll(req.Exporters)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	data, err := io.ReadAll(req.Source)
	if err != nil {
		tracing.LogError(span, err)
		return nil, fmt.Errorf("failed to read scene: %w", err)
	}

	scene, err := p.read(ctx, data, req.SourcePath)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	converted, err := p.convert(ctx, scene, req.Destination, req.Parallelism)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	conv := &models.ConversionResult{
		Scene:       scene.Name,
		Checksum:    Checksum(data),
		Source:      scene.Application,
		Destination: req.Destination,
		FrameRange:  scene.FrameRange,
		Cameras:     converted.Scene.Cameras,
	}
	for _, f := range converted.Failures {
		conv.Failures = append(conv.Failures, models.CameraFailure{
			Name:  f.Name,
			Index: f.Index,
			Error: f.Err.Error(),
		})
	}

	artifacts, err := p.export(ctx, converted.Scene.Cameras, req.SourcePath, exporters, exporter.Options{
		Frames:   frames,
		NodeName: req.NodeName,
	})
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	tracing.SetTag(span, "cameras", len(conv.Cameras))
	tracing.SetTag(span, "failures", len(conv.Failures))

	return &Result{Conversion: conv, Artifacts: artifacts}, nil
}

func (p *Pipeline) read(ctx context.Context, data []byte, path string) (*models.Scene, error) {
	span, _ := tracing.StartSpan(ctx, "conversion.read")
	defer tracing.FinishSpan(span)

	start := time.Now()
	scene, err := p.reader.Read(bytes.NewReader(data), path)
	metrics.RecordStage("read", time.Since(start).Seconds())
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	tracing.SetTag(span, "cameras", len(scene.Cameras))
	return scene, nil
}

func (p *Pipeline) convert(ctx context.Context, scene *models.Scene, dest models.Application, parallelism int) (*converter.SceneResult, error) {
	span, ctx := tracing.StartSpan(ctx, "conversion.convert")
	defer tracing.FinishSpan(span)

	result, err := p.converter.ConvertScene(ctx, scene, dest, parallelism)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	for _, f := range result.Failures {
		p.log.WithCamera(f.Name, f.Index).WithError(f.Err).Warn("Camera skipped")
	}
	return result, nil
}

func (p *Pipeline) export(ctx context.Context, cameras []*models.Camera, sourcePath string, exporters []exporter.Exporter, opts exporter.Options) ([]Artifact, error) {
	if len(exporters) == 0 {
		return nil, nil
	}

	span, _ := tracing.StartSpan(ctx, "conversion.export")
	defer tracing.FinishSpan(span)

	start := time.Now()
	defer func() {
		metrics.RecordStage("export", time.Since(start).Seconds())
	}()

	var artifacts []Artifact
	for _, cam := range cameras {
		for _, e := range exporters {
			var buf bytes.Buffer
			if err := e.Write(&buf, cam, opts); err != nil {
				metrics.RecordExport(e.Name(), "error")
				tracing.LogError(span, err)
				return nil, fmt.Errorf("failed to export camera %q as %s: %w", cam.Name, e.Name(), err)
			}
			metrics.RecordExport(e.Name(), "success")

			artifacts = append(artifacts, Artifact{
				CameraName:  cam.Name,
				CameraIndex: cam.Index,
				Exporter:    e.Name(),
				Filename:    exporter.OutputName(sourcePath, cam.Name, e),
				ContentType: e.ContentType(),
				Static:      cam.Distortion == nil || cam.Distortion.IsStatic(),
				Data:        buf.Bytes(),
			})
		}
	}

	tracing.SetTag(span, "artifacts", len(artifacts))
	return artifacts, nil
}

// WriteArtifacts writes every artifact into dir and returns the written paths.
func WriteArtifacts(dir string, artifacts []Artifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		path := filepath.Join(dir, a.Filename)
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
