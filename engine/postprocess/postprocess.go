// Package postprocess turns an HDR color texture into the final frame: it extracts
// luminance into a tile-rounded pyramid, blurs a half-resolution bloom buffer and
// composites source and bloom into the device's default target with exposure and
// filmic tone mapping.
package postprocess

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"github.com/x448/float16"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
)

const (
	defaultBlurIterations  = 8
	defaultBloomThreshold  = 1
	defaultBloomStrength   = 0.04
	defaultAutoExposureKey = 0.18
)

// Pipeline is the per-frame post-process chain. It owns its programs and intermediate
// textures but never the device or the source texture handed to Render.
type Pipeline interface {
	// Initialize compiles every pass on device. It must be called exactly once before
	// FramesizeChange; calling it again without Shutdown panics.
	//
	// Parameters:
	//   - device: the device every resource is created on
	//
	// Returns:
	//   - error: an error if a program fails to compile
	Initialize(device graphics.Device) error

	// FramesizeChange rebuilds the luminance pyramid and the half-resolution bloom and
	// scratch buffers for a new frame size.
	//
	// Parameters:
	//   - width: the frame width in pixels
	//   - height: the frame height in pixels
	//
	// Returns:
	//   - error: ErrDescriptorInvalid for a non-positive size, or the allocation error
	FramesizeChange(width, height int) error

	// Update stores the exposure in stops used by the next Render. It issues no GPU work.
	//
	// Parameters:
	//   - exposure: the exposure
	Update(exposure float32)

	// Exposure returns the stored exposure.
	Exposure() float32

	// SetAutoExposure switches between metered and stored exposure for subsequent renders.
	//
	// Parameters:
	//   - enabled: true to meter exposure from the luminance pyramid
	SetAutoExposure(enabled bool)

	// AutoExposure reports whether exposure is metered.
	AutoExposure() bool

	// AppliedExposure returns the exposure the last Render composited with. It differs
	// from Exposure only when auto exposure is enabled.
	AppliedExposure() float32

	// Render runs extract, the optional auto exposure chain, bloom and the composite into
	// the default framebuffer. It panics unless the pipeline is initialized and sized.
	//
	// Parameters:
	//   - source: the HDR color texture of the frame
	Render(source graphics.Texture)

	// Shutdown releases every program and texture and returns the pipeline to its
	// unconfigured state.
	Shutdown()

	// Initialized reports whether Initialize has run since the last Shutdown.
	Initialized() bool

	// Size returns the frame size of the last FramesizeChange.
	Size() (int, int)

	// Pyramid returns the luminance pyramid, level 0 first.
	Pyramid() []graphics.Texture

	// BloomTexture returns the half-resolution bloom buffer.
	BloomTexture() graphics.Texture

	// ScratchTexture returns the half-resolution blur scratch buffer.
	ScratchTexture() graphics.Texture
}

type pipeline struct {
	mu *sync.Mutex

	device graphics.Device

	extract    graphics.Program
	downsample graphics.Program
	blurH      graphics.Program
	blurV      graphics.Program
	bloomPass  graphics.Program
	blit       graphics.Program

	pyramid []graphics.Texture
	bloom   graphics.Texture
	scratch graphics.Texture
	width   int
	height  int

	exposure        float32
	appliedExposure float32
	blurIterations  int
	bloomThreshold  float32
	bloomStrength   float32
	autoExposure    bool
	autoExposureKey float32
}

var _ Pipeline = &pipeline{}

// NewPipeline creates an unconfigured pipeline. Call Initialize and FramesizeChange
// before the first Render.
//
// Parameters:
//   - options: functional options overriding the defaults
//
// Returns:
//   - Pipeline: the pipeline
func NewPipeline(options ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		mu:              &sync.Mutex{},
		blurIterations:  defaultBlurIterations,
		bloomThreshold:  defaultBloomThreshold,
		bloomStrength:   defaultBloomStrength,
		autoExposureKey: defaultAutoExposureKey,
	}
	for _, opt := range options {
		opt(p)
	}
	p.appliedExposure = p.exposure
	return p
}

// precondition panics with a postprocess-prefixed message when cond is false.
func precondition(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("postprocess: "+format, args...))
	}
}

func (p *pipeline) Initialize(device graphics.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	precondition(device != nil, "Initialize with a nil device")
	precondition(p.device == nil, "Initialize called twice without Shutdown")

	programs := make([]graphics.Program, 0, 6)
	for _, desc := range programDescriptors() {
		prog, err := device.CreateProgram(desc)
		if err != nil {
			for _, created := range programs {
				created.Release()
			}
			return fmt.Errorf("failed to create program %q: %w", desc.Label, err)
		}
		programs = append(programs, prog)
	}
	p.extract, p.downsample, p.blurH, p.blurV, p.bloomPass, p.blit =
		programs[0], programs[1], programs[2], programs[3], programs[4], programs[5]
	p.device = device

	common.Logger().Debug("postprocess pipeline initialized", "programs", len(programs), "blurIterations", p.blurIterations)
	return nil
}

func (p *pipeline) FramesizeChange(width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	precondition(p.device != nil, "FramesizeChange before Initialize")
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: postprocess frame size %dx%d", graphics.ErrDescriptorInvalid, width, height)
	}

	p.releaseTargets()

	pyramid, err := buildPyramid(p.device, width, height)
	if err != nil {
		return err
	}
	half := halfSize(width, height)
	bloom, err := p.device.CreateTexture(intermediateDescriptor("postprocess bloom", half))
	if err != nil {
		releaseAll(pyramid)
		return fmt.Errorf("failed to create bloom buffer: %w", err)
	}
	scratch, err := p.device.CreateTexture(intermediateDescriptor("postprocess scratch", half))
	if err != nil {
		releaseAll(pyramid)
		bloom.Release()
		return fmt.Errorf("failed to create scratch buffer: %w", err)
	}

	p.pyramid, p.bloom, p.scratch = pyramid, bloom, scratch
	p.width, p.height = width, height

	common.Logger().Debug("postprocess frame size changed", "width", width, "height", height, "levels", len(pyramid), "bloom", half.String())
	return nil
}

func (p *pipeline) Update(exposure float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exposure = exposure
}

func (p *pipeline) Exposure() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exposure
}

func (p *pipeline) SetAutoExposure(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoExposure = enabled
}

func (p *pipeline) AutoExposure() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoExposure
}

func (p *pipeline) AppliedExposure() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appliedExposure
}

func (p *pipeline) Render(source graphics.Texture) {
	p.mu.Lock()
	defer p.mu.Unlock()

	precondition(p.device != nil, "Render before Initialize")
	precondition(len(p.pyramid) >= 2, "Render needs a pyramid of at least 2 levels, have %d", len(p.pyramid))
	precondition(source != nil, "Render with a nil source")

	d := p.device
	src := source.Descriptor()

	p.extract.Bind()
	p.extract.SetUniform(uniformThreshold, p.bloomThreshold)
	p.extract.BindImage(imageSource, source, 0, 0, false, 0, graphics.AccessReadOnly)
	p.extract.BindImage(imageTarget, p.pyramid[0], 1, 0, false, 0, graphics.AccessWriteOnly)
	p.extract.Dispatch2DTiled(src.Width, src.Height, TileSize, TileSize)

	exposure := p.exposure
	if p.autoExposure {
		exposure = p.meterExposure()
	}
	p.appliedExposure = exposure

	p.renderBloom(source)

	d.SetFramebuffer(graphics.DefaultFramebuffer)
	d.SetViewport(graphics.Viewport{Width: p.width, Height: p.height})

	d.SetDepthTest(false)
	p.blit.Bind()
	p.blit.SetUniform(uniformExposure, exposure)
	p.blit.SetUniform(uniformBloomStrength, p.bloomStrength)
	p.blit.BindTexture(textureSource, source, 0)
	p.blit.BindTexture(textureBloom, p.bloom, 1)
	p.blit.Draw(3)
	d.SetDepthTest(true)
}

// renderBloom draws the bright pass of source into the bloom buffer and blurs it by
// ping-ponging through the scratch buffer.
func (p *pipeline) renderBloom(source graphics.Texture) {
	bloomTarget := p.mustRenderTarget(p.bloom)
	scratchTarget := p.mustRenderTarget(p.scratch)
	half := p.bloom.Descriptor()

	bloomTarget.Bind()
	p.device.SetViewport(graphics.Viewport{Width: half.Width, Height: half.Height})
	p.bloomPass.Bind()
	p.bloomPass.SetUniform(uniformThreshold, p.bloomThreshold)
	p.bloomPass.BindTexture(textureSource, source, 0)
	p.bloomPass.Draw(3)

	for range p.blurIterations {
		scratchTarget.Bind()
		p.blurV.Bind()
		p.blurV.BindTexture(textureSource, p.bloom, 0)
		p.blurV.Draw(3)

		bloomTarget.Bind()
		p.blurH.Bind()
		p.blurH.BindTexture(textureSource, p.scratch, 0)
		p.blurH.Draw(3)
	}
}

// meterExposure reduces level 0's log luminance down the pyramid and reads the last
// level back. It returns the exposure that maps the log-average luminance to the key.
func (p *pipeline) meterExposure() float32 {
	for i := 0; i+1 < len(p.pyramid); i++ {
		dst := p.pyramid[i+1].Descriptor()
		var base float32
		if i == 0 {
			base = 1
		}
		p.downsample.Bind()
		p.downsample.SetUniform(uniformBaseLevel, base)
		p.downsample.BindImage(imageSource, p.pyramid[i], 0, 0, false, 0, graphics.AccessReadOnly)
		p.downsample.BindImage(imageTarget, p.pyramid[i+1], 1, 0, false, 0, graphics.AccessWriteOnly)
		p.downsample.Dispatch2DTiled(dst.Width, dst.Height, TileSize, TileSize)
	}

	last := p.pyramid[len(p.pyramid)-1]
	data, err := last.Map(0)
	if err != nil {
		common.Logger().Warn("auto exposure readback failed, keeping stored exposure", "error", err)
		return p.exposure
	}
	defer last.Unmap()

	avg := averageLogLuminance(data)
	return math32.Log2(p.autoExposureKey) - avg
}

// averageLogLuminance averages the alpha channel of tightly packed RGBA16Float texels,
// weighted by the coverage in red so partial edge tiles count for what they cover.
func averageLogLuminance(data []byte) float32 {
	const texelSize = 8
	n := len(data) / texelSize
	var sum, weight float32
	for i := range n {
		texel := data[i*texelSize:]
		w := float16.Frombits(binary.LittleEndian.Uint16(texel[0:])).Float32()
		sum += w * float16.Frombits(binary.LittleEndian.Uint16(texel[6:])).Float32()
		weight += w
	}
	if weight <= 0 {
		return 0
	}
	return sum / weight
}

func (p *pipeline) mustRenderTarget(t graphics.Texture) graphics.Framebuffer {
	fb, err := t.RenderTarget()
	if err != nil {
		panic(fmt.Sprintf("postprocess: render target of %q: %v", t.Descriptor().Label, err))
	}
	return fb
}

func (p *pipeline) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return
	}
	p.releaseTargets()
	for _, prog := range []graphics.Program{p.extract, p.downsample, p.blurH, p.blurV, p.bloomPass, p.blit} {
		prog.Release()
	}
	p.extract, p.downsample, p.blurH, p.blurV, p.bloomPass, p.blit = nil, nil, nil, nil, nil, nil
	p.device = nil
	common.Logger().Debug("postprocess pipeline shut down")
}

// releaseTargets frees the size-dependent textures.
func (p *pipeline) releaseTargets() {
	releaseAll(p.pyramid)
	if p.bloom != nil {
		p.bloom.Release()
	}
	if p.scratch != nil {
		p.scratch.Release()
	}
	p.pyramid, p.bloom, p.scratch = nil, nil, nil
	p.width, p.height = 0, 0
}

func (p *pipeline) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device != nil
}

func (p *pipeline) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

func (p *pipeline) Pyramid() []graphics.Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]graphics.Texture(nil), p.pyramid...)
}

func (p *pipeline) BloomTexture() graphics.Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bloom
}

func (p *pipeline) ScratchTexture() graphics.Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scratch
}
