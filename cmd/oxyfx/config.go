package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Carmen-Shannon/oxy-fx/engine/postprocess"
)

// Config is the oxyfx configuration file. Every field is optional; missing fields keep
// the values from DefaultConfig.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Render   RenderConfig   `yaml:"render"`
	View     ViewConfig     `yaml:"view"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// PipelineConfig mirrors the post-process pipeline builder options.
type PipelineConfig struct {
	Exposure        float32 `yaml:"exposure"`
	BlurIterations  int     `yaml:"blurIterations"`
	BloomThreshold  float32 `yaml:"bloomThreshold"`
	BloomStrength   float32 `yaml:"bloomStrength"`
	AutoExposure    bool    `yaml:"autoExposure"`
	AutoExposureKey float32 `yaml:"autoExposureKey"`
}

// RenderConfig configures offline rendering.
type RenderConfig struct {
	OutDir  string `yaml:"outDir"`
	Workers int    `yaml:"workers"`
}

// ViewConfig configures the interactive viewer.
type ViewConfig struct {
	Width                int     `yaml:"width"`
	Height               int     `yaml:"height"`
	VSync                bool    `yaml:"vsync"`
	FrameLimit           float64 `yaml:"frameLimit"`
	Profile              bool    `yaml:"profile"`
	ExposureStep         float32 `yaml:"exposureStep"`
	ForceFallbackAdapter bool    `yaml:"forceFallbackAdapter"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Pipeline: PipelineConfig{
			BlurIterations:  8,
			BloomThreshold:  1,
			BloomStrength:   0.04,
			AutoExposureKey: 0.18,
		},
		Render: RenderConfig{
			OutDir:  ".",
			Workers: max(runtime.NumCPU()-1, 1),
		},
		View: ViewConfig{
			Width:        1280,
			Height:       720,
			VSync:        true,
			ExposureStep: 0.25,
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults. An empty path returns
// the defaults. Unknown keys are rejected.
//
// Parameters:
//   - path: the file to read, or ""
//
// Returns:
//   - Config: the merged configuration
//   - error: error if the file cannot be read, parsed or fails validation
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges that the pipeline options would otherwise reject with a panic.
func (c Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Pipeline.BlurIterations <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.blurIterations must be positive, got %d", c.Pipeline.BlurIterations))
	}
	if c.Pipeline.AutoExposureKey <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.autoExposureKey must be positive, got %g", c.Pipeline.AutoExposureKey))
	}
	if c.Render.Workers <= 0 {
		errs = append(errs, fmt.Errorf("render.workers must be positive, got %d", c.Render.Workers))
	}
	if c.View.Width <= 0 || c.View.Height <= 0 {
		errs = append(errs, fmt.Errorf("view size must be positive, got %dx%d", c.View.Width, c.View.Height))
	}
	return errors.Join(errs...)
}

// Options converts the pipeline settings to builder options.
func (c PipelineConfig) Options() []postprocess.PipelineBuilderOption {
	return []postprocess.PipelineBuilderOption{
		postprocess.WithExposure(c.Exposure),
		postprocess.WithBlurIterations(c.BlurIterations),
		postprocess.WithBloomThreshold(c.BloomThreshold),
		postprocess.WithBloomStrength(c.BloomStrength),
		postprocess.WithAutoExposure(c.AutoExposure),
		postprocess.WithAutoExposureKey(c.AutoExposureKey),
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// newLogger builds the slog logger described by c, writing to w.
func newLogger(c LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", c.Format)
}
