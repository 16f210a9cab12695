package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/postprocess"
	"github.com/Carmen-Shannon/oxy-fx/engine/profiler"
	"github.com/Carmen-Shannon/oxy-fx/engine/window"
)

// engine implements the Engine interface.
// The tick loop and render loop each run on their own goroutine; the window message
// loop stays on the caller's goroutine.
type engine struct {
	tickRateChannel chan time.Duration

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	// frameMu serializes frame submission against resizes coming from the window.
	frameMu sync.Mutex

	window   window.Window
	device   graphics.Device
	pipeline postprocess.Pipeline
	source   graphics.Texture

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine drives a post-process pipeline every frame: it renders the source texture
// through the pipeline into the device's default target and presents it.
type Engine interface {
	// Window returns the window the engine presents to, or nil when running headless.
	Window() window.Window

	// Device returns the device frames are issued on.
	Device() graphics.Device

	// Pipeline returns the post-process pipeline applied every frame.
	Pipeline() postprocess.Pipeline

	// SetSource replaces the texture fed to the pipeline. Safe to call while running.
	//
	// Parameters:
	//   - source: the HDR scene texture, or nil to skip rendering
	SetSource(source graphics.Texture)

	// Source returns the texture currently fed to the pipeline.
	Source() graphics.Texture

	// RenderFrame renders and presents a single frame synchronously.
	// Does nothing when no source is set.
	RenderFrame()

	// Resize resizes the default target and rebuilds the pipeline's targets.
	// Zero sizes (a minimized window) are ignored.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: error if either the device or the pipeline rejects the size
	Resize(width, height int) error

	// EnableProfiler turns on periodic frame statistics logging.
	EnableProfiler()

	// DisableProfiler turns off frame statistics logging.
	DisableProfiler()

	// SetTickRate sets the tick callback rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called every tick, e.g. for exposure animation.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after every rendered frame.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit caps the render loop in frames per second. 0 uncaps it.
	//
	// Parameters:
	//   - fps: maximum render frames per second
	SetRenderFrameLimit(fps float64)

	// Run starts the tick and render loops and blocks until the window closes or Quit is called.
	// Without a window it blocks until Quit.
	Run()

	// Quit stops all engine goroutines. Safe to call more than once and from any goroutine.
	Quit()
}

// NewEngine creates an Engine. A device is required. When no pipeline option is given a
// pipeline with default settings is created; an uninitialized pipeline is initialized
// against the device at the device's current size.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if no device was given or the pipeline could not be set up
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}

	if e.device == nil {
		return nil, errors.New("engine requires a device")
	}
	if e.pipeline == nil {
		e.pipeline = postprocess.NewPipeline()
	}
	if !e.pipeline.Initialized() {
		if err := e.pipeline.Initialize(e.device); err != nil {
			return nil, fmt.Errorf("failed to initialize post-process pipeline: %w", err)
		}
		w, h := e.device.Size()
		if err := e.pipeline.FramesizeChange(w, h); err != nil {
			e.pipeline.Shutdown()
			return nil, fmt.Errorf("failed to size post-process pipeline: %w", err)
		}
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			if err := e.Resize(width, height); err != nil {
				common.Logger().Warn("resize failed", "width", width, "height", height, "error", err)
			}
		})
	}

	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Device() graphics.Device {
	return e.device
}

func (e *engine) Pipeline() postprocess.Pipeline {
	return e.pipeline
}

func (e *engine) SetSource(source graphics.Texture) {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	e.source = source
}

func (e *engine) Source() graphics.Texture {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	return e.source
}

func (e *engine) RenderFrame() {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	// Frames one texel thin have no luminance pyramid to meter.
	if e.source == nil || len(e.pipeline.Pyramid()) < 2 {
		return
	}
	e.pipeline.Render(e.source)
	e.device.Present()
}

func (e *engine) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	if err := e.device.Resize(width, height); err != nil {
		return err
	}
	return e.pipeline.FramesizeChange(width, height)
}

func (e *engine) Run() {
	e.running.Store(true)
	e.handle()
	if e.window != nil {
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
}

func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// handle launches the tick and render goroutines, tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine fires the tick callback at the configured rate and picks up rate changes
// from tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender renders frames until quit, honoring the frame limit.
// A panic in a frame is logged and stops the engine instead of crashing the process.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("render loop recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		frameStart := time.Now()
		dt := float32(frameStart.Sub(lastRender).Seconds())
		lastRender = frameStart

		e.RenderFrame()

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}
		if e.profilingEnabled.Load() {
			e.profiler.Tick()
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(frameStart); remaining > 0 {
				select {
				case <-e.quitChannel:
					return
				case <-time.After(remaining):
				}
			}
		}
	}
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate takes effect immediately when the engine is running.
func (e *engine) SetTickRate(fps float64) {
	newRate := tickInterval(fps)
	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending update rather than blocking.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameLimit(fps)
}

// tickInterval converts a tick rate to a ticker period, defaulting to 60Hz.
func tickInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}

// frameLimit converts a frame cap to a minimum frame duration; 0 means uncapped.
func frameLimit(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
