package main

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/spf13/cobra"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/postprocess"
)

func newRenderCommand(a *app) *cobra.Command {
	var (
		exposure     float32
		iterations   int
		autoExposure bool
		outDir       string
		workers      int
		trace        bool
	)
	cmd := &cobra.Command{
		Use:   "render [flags] <inputs...>",
		Short: "Post-process images on the software backend and write PNGs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags := cmd.Flags()
			if flags.Changed("exposure") {
				cfg.Pipeline.Exposure = exposure
			}
			if flags.Changed("iterations") {
				cfg.Pipeline.BlurIterations = iterations
			}
			if flags.Changed("auto-exposure") {
				cfg.Pipeline.AutoExposure = autoExposure
			}
			if flags.Changed("out-dir") {
				cfg.Render.OutDir = outDir
			}
			if flags.Changed("workers") {
				cfg.Render.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			var traceOut io.Writer
			if trace {
				traceOut = cmd.OutOrStdout()
			}
			return renderAll(cfg, args, traceOut)
		},
	}
	f := cmd.Flags()
	f.Float32Var(&exposure, "exposure", 0, "exposure in EV")
	f.IntVar(&iterations, "iterations", 0, "blur ping-pong iterations")
	f.BoolVar(&autoExposure, "auto-exposure", false, "meter exposure from the luminance pyramid")
	f.StringVar(&outDir, "out-dir", "", "directory for output PNGs")
	f.IntVar(&workers, "workers", 0, "parallel decode workers")
	f.BoolVar(&trace, "trace", false, "print the device command log of every render")
	return cmd
}

// decodedInput is the result of reading and decoding one input file.
type decodedInput struct {
	path string
	img  *graphics.Image
	err  error
}

// decodeInputs reads and decodes every path on a worker pool. Results keep input order.
func decodeInputs(paths []string, workers int) []decodedInput {
	pool := worker.NewDynamicWorkerPool(workers, len(paths), time.Second)
	results := make([]decodedInput, len(paths))

	// Per-batch barrier; the pool's own Wait only returns once idle workers exit.
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				results[i] = decodeFile(path)
				return nil, results[i].err
			},
		})
	}
	wg.Wait()
	return results
}

func decodeFile(path string) decodedInput {
	data, err := os.ReadFile(path)
	if err != nil {
		return decodedInput{path: path, err: err}
	}
	img, err := graphics.DecodeImage(data)
	if err != nil {
		return decodedInput{path: path, err: fmt.Errorf("%s: %w", path, err)}
	}
	common.Logger().Debug("decoded input", "path", path, "format", img.Format, "size", fmt.Sprintf("%dx%d", img.Width, img.Height), "levels", len(img.Levels))
	return decodedInput{path: path, img: img}
}

// renderAll decodes the inputs in parallel, then renders them one at a time. Every input
// is attempted; the returned error joins all failures.
func renderAll(cfg Config, paths []string, trace io.Writer) error {
	if err := os.MkdirAll(cfg.Render.OutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var errs []error
	for _, in := range decodeInputs(paths, cfg.Render.Workers) {
		if in.err != nil {
			common.Logger().Error("decode failed", "path", in.path, "error", in.err)
			errs = append(errs, in.err)
			continue
		}
		out := outputPath(cfg.Render.OutDir, in.path)
		exposure, err := renderImage(cfg.Pipeline, in.img, filepath.Base(in.path), out, trace)
		if err != nil {
			common.Logger().Error("render failed", "path", in.path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", in.path, err))
			continue
		}
		common.Logger().Info("rendered", "input", in.path, "output", out, "exposure", exposure)
	}
	return errors.Join(errs...)
}

// outputPath maps an input file to <outDir>/<name>.png.
func outputPath(outDir, input string) string {
	base := filepath.Base(input)
	return filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".png")
}

// renderImage runs the pipeline over img on a fresh software device sized to the image
// and writes the default target to out.
//
// Returns:
//   - float32: the exposure applied by the composite
//   - error: error if the image is too small for the pipeline or any step fails
func renderImage(pc PipelineConfig, img *graphics.Image, label, out string, trace io.Writer) (float32, error) {
	if len(postprocess.PyramidSizes(img.Width, img.Height)) < 2 {
		return 0, fmt.Errorf("image %dx%d is too small for the luminance pyramid", img.Width, img.Height)
	}

	options := []graphics.DeviceBuilderOption{graphics.WithSize(img.Width, img.Height)}
	if trace != nil {
		options = append(options, graphics.WithCommandLog())
	}
	d, err := graphics.NewDevice(graphics.DeviceDescriptor{Backend: graphics.BackendTypeSoftware, Label: label}, options...)
	if err != nil {
		return 0, err
	}
	defer d.Destroy()

	src, err := d.CreateTextureFromDecoded(label, img)
	if err != nil {
		return 0, err
	}
	defer src.Release()

	p := postprocess.NewPipeline(pc.Options()...)
	if err := p.Initialize(d); err != nil {
		return 0, err
	}
	defer p.Shutdown()
	if err := p.FramesizeChange(img.Width, img.Height); err != nil {
		return 0, err
	}

	p.Render(src)
	d.Flush()

	if trace != nil {
		fmt.Fprintf(trace, "# %s\n", label)
		for _, c := range d.Commands() {
			fmt.Fprintln(trace, c)
		}
	}

	if err := writeTarget(d.DefaultTarget(), out); err != nil {
		return 0, err
	}
	return p.AppliedExposure(), nil
}

// writeTarget encodes an RGBA8 sRGB target as an opaque PNG.
func writeTarget(target graphics.Texture, out string) error {
	desc := target.Descriptor()
	data, err := target.Map(0)
	if err != nil {
		return err
	}
	img := image.NewNRGBA(image.Rect(0, 0, desc.Width, desc.Height))
	copy(img.Pix, data)
	target.Unmap()
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", out, err)
	}
	return f.Close()
}
