package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/config"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/conversion"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/converter"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/exporter"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitPartial = 3
)

type options struct {
	configPath  string
	destination string
	exporters   []string
	timeList    string
	outDir      string
	nodeName    string
	parallelism int
	strict      bool
	logLevel    string
	jsonOut     bool
	help        bool
}

func newFlagSet(opts *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("lensconv", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.configPath, "config", "c", "", "config file supplying converter defaults")
	fs.StringVarP(&opts.destination, "dest", "d", "tde", "destination application (tde)")
	fs.StringSliceVarP(&opts.exporters, "exporters", "e", []string{exporter.LensExporterName, exporter.NukeExporterName},
		fmt.Sprintf("exporters to run, any of %v", exporter.Names()))
	fs.StringVarP(&opts.timeList, "time", "t", "", `frames to export for animated values, e.g. "1-10,15"`)
	fs.StringVarP(&opts.outDir, "out-dir", "o", "", "output directory (default: next to each input)")
	fs.StringVar(&opts.nodeName, "node-name", "", "Nuke node name override")
	fs.IntVarP(&opts.parallelism, "parallelism", "j", 4, "cameras converted concurrently")
	fs.BoolVar(&opts.strict, "strict", false, "fail cameras whose converted values are inconsistent")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.jsonOut, "json", false, "print the converted cameras as JSON")
	fs.BoolVarP(&opts.help, "help", "h", false, "show this help text and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lensconv [flags] scene.rzml [scene.rzml ...]\n\n")
		fs.PrintDefaults()
	}
	return fs
}

// applyConfig fills flags the user did not set from the config file
func applyConfig(fs *pflag.FlagSet, opts *options) error {
	if opts.configPath == "" {
		return nil
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	c := cfg.Converter
	if !fs.Changed("dest") {
		opts.destination = c.Destination
	}
	if !fs.Changed("exporters") {
		opts.exporters = c.Exporters
	}
	if !fs.Changed("time") {
		opts.timeList = c.TimeList
	}
	if !fs.Changed("out-dir") {
		opts.outDir = c.OutputDir
	}
	if !fs.Changed("node-name") {
		opts.nodeName = c.NukeNodeName
	}
	if !fs.Changed("parallelism") {
		opts.parallelism = c.Parallelism
	}
	if !fs.Changed("strict") {
		opts.strict = c.StrictInvariants
	}
	if !fs.Changed("log-level") {
		opts.logLevel = cfg.Logging.Level
	}
	return nil
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.help {
		fs.Usage()
		return exitOK
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}
	if err := applyConfig(fs, &opts); err != nil {
		fmt.Fprintf(stderr, "lensconv: %v\n", err)
		return exitUsage
	}

	dest, err := models.ParseApplication(opts.destination)
	if err != nil {
		fmt.Fprintf(stderr, "lensconv: %v\n", err)
		return exitUsage
	}
	if _, err := exporter.NewAll(opts.exporters); err != nil {
		fmt.Fprintf(stderr, "lensconv: %v\n", err)
		return exitUsage
	}
	if _, err := exporter.ParseFrameList(opts.timeList); err != nil {
		fmt.Fprintf(stderr, "lensconv: %v\n", err)
		return exitUsage
	}

	log := logging.New(stderr, opts.logLevel)
	pipeline := conversion.NewPipeline(log, converter.WithStrictInvariants(opts.strict))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := exitOK
	for _, path := range fs.Args() {
		c := convertFile(ctx, pipeline, path, dest, opts, stdout, stderr)
		if c > code {
			code = c
		}
	}
	return code
}

func convertFile(ctx context.Context, pipeline *conversion.Pipeline, path string, dest models.Application, opts options, stdout, stderr io.Writer) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "lensconv: %v\n", err)
		return exitFailure
	}
	defer f.Close()

	result, err := pipeline.Run(ctx, conversion.Request{
		Source:      f,
		SourcePath:  path,
		Destination: dest,
		Exporters:   opts.exporters,
		TimeList:    opts.timeList,
		NodeName:    opts.nodeName,
		Parallelism: opts.parallelism,
	})
	if err != nil {
		fmt.Fprintf(stderr, "lensconv: %s: %v\n", path, err)
		return exitFailure
	}

	outDir := opts.outDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	written, err := conversion.WriteArtifacts(outDir, result.Artifacts)
	for _, p := range written {
		fmt.Fprintln(stdout, p)
	}
	if err != nil {
		fmt.Fprintf(stderr, "lensconv: %v\n", err)
		return exitFailure
	}

	if opts.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.Conversion); err != nil {
			fmt.Fprintf(stderr, "lensconv: %v\n", err)
			return exitFailure
		}
	}

	for _, failure := range result.Conversion.Failures {
		fmt.Fprintf(stderr, "lensconv: %s: camera %q (%d) skipped: %s\n", path, failure.Name, failure.Index, failure.Error)
	}
	if len(result.Conversion.Failures) > 0 {
		if len(result.Conversion.Cameras) == 0 {
			return exitFailure
		}
		return exitPartial
	}
	return exitOK
}
