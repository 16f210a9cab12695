package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/postprocess"
	"github.com/Carmen-Shannon/oxy-fx/engine/window"
)

func newViewCommand(a *app) *cobra.Command {
	var (
		exposure     float32
		autoExposure bool
		profile      bool
		fallback     bool
	)
	cmd := &cobra.Command{
		Use:   "view [flags] <input>",
		Short: "Show an image through the pipeline in a window",
		Long: "Opens a window and renders the input through the pipeline on the WGPU backend.\n" +
			"Up/Down or the scroll wheel change exposure, R resets it, A toggles auto exposure,\n" +
			"P toggles frame statistics and Escape quits.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags := cmd.Flags()
			if flags.Changed("exposure") {
				cfg.Pipeline.Exposure = exposure
			}
			if flags.Changed("auto-exposure") {
				cfg.Pipeline.AutoExposure = autoExposure
			}
			if flags.Changed("profile") {
				cfg.View.Profile = profile
			}
			if flags.Changed("fallback-adapter") {
				cfg.View.ForceFallbackAdapter = fallback
			}
			return view(cfg, args[0])
		},
	}
	f := cmd.Flags()
	f.Float32Var(&exposure, "exposure", 0, "initial exposure in EV")
	f.BoolVar(&autoExposure, "auto-exposure", false, "meter exposure from the luminance pyramid")
	f.BoolVar(&profile, "profile", false, "log frame statistics")
	f.BoolVar(&fallback, "fallback-adapter", false, "force the CPU fallback adapter")
	return cmd
}

func view(cfg Config, input string) error {
	win, err := window.NewWindow(
		window.WithTitle("oxyfx"),
		window.WithSize(cfg.View.Width, cfg.View.Height),
	)
	if err != nil {
		return err
	}
	defer win.Close()

	options := []graphics.DeviceBuilderOption{
		graphics.WithSurface(win.SurfaceDescriptor()),
		graphics.WithSize(win.Width(), win.Height()),
		graphics.WithForceFallbackAdapter(cfg.View.ForceFallbackAdapter),
	}
	if !cfg.View.VSync {
		options = append(options, graphics.WithPresentMode(graphics.PresentModeUncapped))
	}
	d, err := graphics.NewDevice(graphics.DeviceDescriptor{Backend: graphics.BackendTypeWGPU, Label: "oxyfx view"}, options...)
	if err != nil {
		return err
	}
	defer d.Destroy()

	src, err := d.CreateTextureFromFile(input)
	if err != nil {
		return err
	}
	defer src.Release()

	p := postprocess.NewPipeline(cfg.Pipeline.Options()...)
	e, err := engine.NewEngine(
		engine.WithDevice(d),
		engine.WithPipeline(p),
		engine.WithWindow(win),
		engine.WithSource(src),
		engine.WithProfiling(cfg.View.Profile),
		engine.WithRenderFrameLimit(cfg.View.FrameLimit),
	)
	if err != nil {
		return err
	}
	defer p.Shutdown()

	ctl := &exposureControl{
		pipeline:  p,
		base:      cfg.Pipeline.Exposure,
		step:      cfg.View.ExposureStep,
		profiling: cfg.View.Profile,
		setTitle:  win.SetTitle,
		setProfiling: func(on bool) {
			if on {
				e.EnableProfiler()
			} else {
				e.DisableProfiler()
			}
		},
	}
	ctl.refreshTitle()
	win.SetKeyDownCallback(ctl.key)
	win.SetScrollCallback(ctl.scroll)

	common.Logger().Info("viewing", "input", input, "size", fmt.Sprintf("%dx%d", win.Width(), win.Height()))
	e.Run()
	return nil
}

// maxViewExposure bounds interactive exposure changes in EV.
const maxViewExposure = 16

// exposureControl maps viewer input to pipeline exposure changes.
type exposureControl struct {
	pipeline  postprocess.Pipeline
	base      float32
	step      float32
	profiling bool

	setTitle     func(string)
	setProfiling func(bool)
}

func (c *exposureControl) key(code uint32) {
	switch code {
	case common.KeyUp:
		c.adjust(c.step)
	case common.KeyDown:
		c.adjust(-c.step)
	case common.KeyR:
		c.pipeline.Update(c.base)
	case common.KeyA:
		on := !c.pipeline.AutoExposure()
		c.pipeline.SetAutoExposure(on)
		common.Logger().Info("auto exposure", "enabled", on)
	case common.KeyP:
		c.profiling = !c.profiling
		c.setProfiling(c.profiling)
	default:
		return
	}
	c.refreshTitle()
}

func (c *exposureControl) scroll(delta float32) {
	c.adjust(delta * c.step)
	c.refreshTitle()
}

func (c *exposureControl) adjust(delta float32) {
	c.pipeline.Update(common.Clamp(c.pipeline.Exposure()+delta, -maxViewExposure, maxViewExposure))
}

func (c *exposureControl) refreshTitle() {
	c.setTitle(fmt.Sprintf("oxyfx - exposure %+.2f EV", c.pipeline.Exposure()))
}
