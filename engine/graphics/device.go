package graphics

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	defaultDeviceWidth  = 1280
	defaultDeviceHeight = 720
)

// imageBinding is one entry of the device's image unit table.
type imageBinding struct {
	texture  Texture
	mipLevel int
	layered  bool
	layer    int
	access   AccessMode
}

// device is the implementation of the Device interface.
type device struct {
	mu *sync.Mutex

	desc    DeviceDescriptor
	handle  DeviceHandle
	backend deviceBackend

	width, height int
	active        Framebuffer
	viewport      Viewport
	depthTest     bool
	program       Program
	textureUnits  map[int]Texture
	imageUnits    map[int]imageBinding
	destroyed     bool

	logCommands bool
	commands    []Command

	// Pre-creation config collected from builder options
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	presentMode          PresentMode
}

// Device is the only component that constructs concrete resources. Every factory switches
// once on the descriptor's backend tag and returns the matching variant. The device also
// holds the state draws and dispatches read: the active render target, the viewport, the
// depth test flag, the current program and the sampler and image unit tables.
type Device interface {
	// Descriptor returns the descriptor the device was created with.
	//
	// Returns:
	//   - DeviceDescriptor: the immutable device descriptor
	Descriptor() DeviceDescriptor

	// Handle returns the weak handle resources use to reach this device.
	//
	// Returns:
	//   - DeviceHandle: the registry handle
	Handle() DeviceHandle

	// CreateTexture allocates a texture matching desc.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - Texture: the new texture, or nil on failure
	//   - error: ErrDescriptorInvalid for a malformed descriptor, ErrAllocation when the backend refuses it
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateTextureFromImage decodes a raw image blob and uploads it, mip chain included.
	//
	// Parameters:
	//   - data: the encoded image bytes
	//
	// Returns:
	//   - Texture: the new texture, or nil on failure
	//   - error: ErrDecode when the content matches no supported encoding
	CreateTextureFromImage(data []byte) (Texture, error)

	// CreateTextureFromDecoded uploads an image already decoded with DecodeImage, so decoding
	// can happen off the goroutine that issues GPU work.
	//
	// Parameters:
	//   - label: the texture label
	//   - img: the decoded image
	//
	// Returns:
	//   - Texture: the new texture, or nil on failure
	//   - error: ErrDescriptorInvalid when img is nil or empty, ErrAllocation when a level has the wrong size
	CreateTextureFromDecoded(label string, img *Image) (Texture, error)

	// CreateTextureFromFile reads and decodes an image file.
	//
	// Parameters:
	//   - filename: the image path
	//
	// Returns:
	//   - Texture: the new texture, or nil on failure
	//   - error: a read, decode or allocation error
	CreateTextureFromFile(filename string) (Texture, error)

	// CreateFramebuffer validates the attachment set and builds a framebuffer over it.
	//
	// Parameters:
	//   - desc: the framebuffer descriptor
	//
	// Returns:
	//   - Framebuffer: the new framebuffer, or nil on failure
	//   - error: ErrDescriptorInvalid for an inconsistent attachment set
	CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, error)

	// CreateGraphicsData allocates an opaque GPU buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - GraphicsData: the new buffer, or nil on failure
	//   - error: ErrDescriptorInvalid or ErrAllocation
	CreateGraphicsData(desc GraphicsDataDescriptor) (GraphicsData, error)

	// CreateProgram compiles a shader program for this device's backend.
	//
	// Parameters:
	//   - desc: the program descriptor
	//
	// Returns:
	//   - Program: the new program, or nil on failure
	//   - error: ErrDescriptorInvalid when the source or kernel is missing or malformed
	CreateProgram(desc ProgramDescriptor) (Program, error)

	// SetFramebuffer makes fb the active render target. DefaultFramebuffer selects the
	// window surface, or the headless default target.
	//
	// Parameters:
	//   - fb: the framebuffer, never nil
	SetFramebuffer(fb Framebuffer)

	// Framebuffer returns the active render target.
	Framebuffer() Framebuffer

	// SetViewport sets the pixel rectangle draws are mapped into.
	SetViewport(vp Viewport)

	// Viewport returns the current viewport.
	Viewport() Viewport

	// SetDepthTest enables or disables depth testing and depth writes for draws.
	SetDepthTest(enabled bool)

	// DepthTest reports whether depth testing is enabled. It starts enabled.
	DepthTest() bool

	// Resize reallocates the default target and resets the viewport to cover it.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: ErrDescriptorInvalid for a non-positive size, or an allocation error
	Resize(width, height int) error

	// Size returns the default target size.
	Size() (int, int)

	// DefaultTarget returns the readable default color target, or nil when the device
	// presents to a window surface.
	DefaultTarget() Texture

	// DefaultDepthTarget returns the depth attachment of the default target.
	DefaultDepthTarget() Texture

	// Flush submits all recorded GPU work.
	Flush()

	// Present flushes and presents the window surface.
	Present()

	// Commands returns a copy of the command log. The log is empty unless the device was
	// created WithCommandLog.
	Commands() []Command

	// ClearCommands empties the command log.
	ClearCommands()

	// Destroy releases device-owned objects and unregisters the handle. Resources created
	// by the device must not be used afterwards, except for Release.
	Destroy()
}

var _ Device = &device{}

// NewDevice creates a device for the backend named in descriptor.
//
// Parameters:
//   - descriptor: selects the backend variant
//   - options: DeviceBuilderOption values applied before the backend is acquired
//
// Returns:
//   - Device: the new device
//   - error: ErrDescriptorInvalid for an unknown backend, ErrAllocation when the backend cannot be acquired
func NewDevice(descriptor DeviceDescriptor, options ...DeviceBuilderOption) (Device, error) {
	switch descriptor.Backend {
	case BackendTypeWGPU, BackendTypeSoftware:
	default:
		return nil, invalidf("unknown backend %v", descriptor.Backend)
	}

	d := &device{
		mu:           &sync.Mutex{},
		desc:         descriptor,
		width:        defaultDeviceWidth,
		height:       defaultDeviceHeight,
		active:       DefaultFramebuffer,
		depthTest:    true,
		textureUnits: make(map[int]Texture),
		imageUnits:   make(map[int]imageBinding),
	}
	for _, opt := range options {
		opt(d)
	}
	if d.width <= 0 || d.height <= 0 {
		return nil, invalidf("device %q has non-positive size %dx%d", descriptor.Label, d.width, d.height)
	}

	d.handle = registerDevice(d)
	switch descriptor.Backend {
	case BackendTypeWGPU:
		b, err := newWGPUDeviceBackend(d)
		if err != nil {
			unregisterDevice(d.handle)
			return nil, err
		}
		d.backend = b
	case BackendTypeSoftware:
		d.backend = newSoftwareDeviceBackend(d)
	}

	if err := d.backend.resize(d.width, d.height); err != nil {
		d.backend.release()
		unregisterDevice(d.handle)
		return nil, fmt.Errorf("failed to allocate default target: %w", err)
	}
	d.viewport = Viewport{Width: d.width, Height: d.height}

	common.Logger().Info("device created",
		"backend", descriptor.Backend.String(),
		"label", descriptor.Label,
		"width", d.width,
		"height", d.height,
	)
	return d, nil
}

func (d *device) Descriptor() DeviceDescriptor {
	return d.desc
}

func (d *device) Handle() DeviceHandle {
	return d.handle
}

func (d *device) checkLive() {
	d.mu.Lock()
	defer d.mu.Unlock()

	precondition(!d.destroyed, "use of destroyed device %q", d.desc.Label)
}

// newTexture constructs the texture variant for the device backend.
func (d *device) newTexture() textureResource {
	var t textureResource
	switch d.desc.Backend {
	case BackendTypeWGPU:
		t = &wgpuTexture{}
	case BackendTypeSoftware:
		t = &softwareTexture{}
	default:
		panic(fmt.Sprintf("graphics: unknown backend %v", d.desc.Backend))
	}
	t.setDevice(d.handle)
	return t
}

func (d *device) CreateTexture(desc TextureDescriptor) (Texture, error) {
	d.checkLive()
	t := d.newTexture()
	if err := createTextureFromDescriptor(t, desc); err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", desc.Label, err)
	}
	return t, nil
}

func (d *device) CreateTextureFromImage(data []byte) (Texture, error) {
	d.checkLive()
	t := d.newTexture()
	if err := createTextureFromImage(t, "image", data); err != nil {
		return nil, fmt.Errorf("failed to create texture from image: %w", err)
	}
	return t, nil
}

func (d *device) CreateTextureFromDecoded(label string, img *Image) (Texture, error) {
	d.checkLive()
	t := d.newTexture()
	if err := createTextureFromDecoded(t, label, img); err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", label, err)
	}
	return t, nil
}

func (d *device) CreateTextureFromFile(filename string) (Texture, error) {
	d.checkLive()
	t := d.newTexture()
	if err := createTextureFromFile(t, filename); err != nil {
		return nil, fmt.Errorf("failed to create texture from %q: %w", filename, err)
	}
	return t, nil
}

func (d *device) CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, error) {
	d.checkLive()
	var fb framebufferResource
	switch d.desc.Backend {
	case BackendTypeWGPU:
		fb = &wgpuFramebuffer{}
	case BackendTypeSoftware:
		fb = &softwareFramebuffer{}
	default:
		panic(fmt.Sprintf("graphics: unknown backend %v", d.desc.Backend))
	}
	fb.setDevice(d.handle)
	if err := fb.create(desc); err != nil {
		return nil, fmt.Errorf("failed to create framebuffer %q: %w", desc.Label, err)
	}
	return fb, nil
}

func (d *device) CreateGraphicsData(desc GraphicsDataDescriptor) (GraphicsData, error) {
	d.checkLive()
	var g graphicsDataResource
	switch d.desc.Backend {
	case BackendTypeWGPU:
		g = &wgpuGraphicsData{}
	case BackendTypeSoftware:
		g = &softwareGraphicsData{}
	default:
		panic(fmt.Sprintf("graphics: unknown backend %v", d.desc.Backend))
	}
	g.setDevice(d.handle)
	if err := g.create(desc); err != nil {
		return nil, fmt.Errorf("failed to create graphics data %q: %w", desc.Label, err)
	}
	return g, nil
}

func (d *device) CreateProgram(desc ProgramDescriptor) (Program, error) {
	d.checkLive()
	var p programResource
	switch d.desc.Backend {
	case BackendTypeWGPU:
		p = &wgpuProgram{}
	case BackendTypeSoftware:
		p = &softwareProgram{}
	default:
		panic(fmt.Sprintf("graphics: unknown backend %v", d.desc.Backend))
	}
	p.setDevice(d.handle)
	if err := p.create(desc); err != nil {
		return nil, fmt.Errorf("failed to create program %q: %w", desc.Label, err)
	}
	return p, nil
}

func (d *device) SetFramebuffer(fb Framebuffer) {
	precondition(fb != nil, "SetFramebuffer(nil); use DefaultFramebuffer for the window target")
	if fb != DefaultFramebuffer {
		r, ok := fb.(framebufferResource)
		precondition(ok, "framebuffer %q was not created by a device", fb.Label())
		precondition(r.deviceHandle() == d.handle, "framebuffer %q belongs to another device", fb.Label())
		precondition(!r.isReleased(), "framebuffer %q is released", fb.Label())
	}

	d.checkLive()
	d.mu.Lock()
	d.active = fb
	d.mu.Unlock()

	d.record(Command{Kind: CommandSetFramebuffer, Target: fb.Label()})
}

func (d *device) Framebuffer() Framebuffer {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.active
}

func (d *device) SetViewport(vp Viewport) {
	precondition(vp.Width >= 0 && vp.Height >= 0, "negative viewport size %dx%d", vp.Width, vp.Height)

	d.mu.Lock()
	d.viewport = vp
	d.mu.Unlock()

	d.record(Command{Kind: CommandSetViewport, Viewport: vp})
}

func (d *device) Viewport() Viewport {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.viewport
}

func (d *device) SetDepthTest(enabled bool) {
	d.mu.Lock()
	d.depthTest = enabled
	d.mu.Unlock()

	d.record(Command{Kind: CommandSetDepthTest, Enabled: enabled})
}

func (d *device) DepthTest() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.depthTest
}

func (d *device) Resize(width, height int) error {
	d.checkLive()
	if width <= 0 || height <= 0 {
		return invalidf("device %q cannot resize to %dx%d", d.desc.Label, width, height)
	}
	if err := d.backend.resize(width, height); err != nil {
		return fmt.Errorf("failed to resize device %q: %w", d.desc.Label, err)
	}

	d.mu.Lock()
	d.width, d.height = width, height
	d.viewport = Viewport{Width: width, Height: height}
	d.mu.Unlock()

	common.Logger().Debug("device resized", "label", d.desc.Label, "width", width, "height", height)
	return nil
}

func (d *device) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.width, d.height
}

func (d *device) DefaultTarget() Texture {
	return d.backend.defaultTarget()
}

func (d *device) DefaultDepthTarget() Texture {
	return d.backend.defaultDepth()
}

func (d *device) Flush() {
	d.checkLive()
	d.backend.flush()
}

func (d *device) Present() {
	d.checkLive()
	d.backend.present()
}

func (d *device) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Command, len(d.commands))
	copy(out, d.commands)
	return out
}

func (d *device) ClearCommands() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commands = d.commands[:0]
}

func (d *device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	d.program = nil
	d.active = DefaultFramebuffer
	clear(d.textureUnits)
	clear(d.imageUnits)
	d.mu.Unlock()

	d.backend.release()
	unregisterDevice(d.handle)
	common.Logger().Info("device destroyed", "label", d.desc.Label)
}

// record appends cmd to the command log when logging is enabled.
func (d *device) record(cmd Command) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.logCommands {
		d.commands = append(d.commands, cmd)
	}
}

func (d *device) bindProgram(p Program) {
	d.checkLive()
	d.mu.Lock()
	d.program = p
	d.mu.Unlock()

	d.record(Command{Kind: CommandBindProgram, Program: p.Label()})
}

func (d *device) currentProgram() Program {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.program
}

func (d *device) bindTextureUnit(unit int, t Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.textureUnits[unit] = t
}

// unbindTextureUnit clears unit only when t is the texture bound to it.
func (d *device) unbindTextureUnit(unit int, t Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.textureUnits[unit] == t {
		delete(d.textureUnits, unit)
	}
}

func (d *device) textureAt(unit int) Texture {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.textureUnits[unit]
}

func (d *device) bindImageUnit(unit int, b imageBinding) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.imageUnits[unit] = b
}

func (d *device) imageAt(unit int) (imageBinding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.imageUnits[unit]
	return b, ok
}

// forgetTexture drops every unit binding that refers to t.
func (d *device) forgetTexture(t Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for unit, bound := range d.textureUnits {
		if bound == t {
			delete(d.textureUnits, unit)
		}
	}
	for unit, bound := range d.imageUnits {
		if bound.texture == t {
			delete(d.imageUnits, unit)
		}
	}
}

// forgetFramebuffer falls back to the default target when fb was active.
func (d *device) forgetFramebuffer(fb Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == fb {
		d.active = DefaultFramebuffer
	}
}

func (d *device) forgetProgram(p Program) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.program == p {
		d.program = nil
	}
}

// activeTarget resolves the active framebuffer to its color slot 0 and depth textures.
// Both are nil for a surface-backed default target.
func (d *device) activeTarget() (Framebuffer, Texture, Texture) {
	fb := d.Framebuffer()
	if fb == DefaultFramebuffer {
		return fb, d.backend.defaultTarget(), d.backend.defaultDepth()
	}
	desc := fb.Descriptor()
	var color, depth Texture
	if a, ok := desc.colorAttachment(0); ok {
		color = a.Texture
	}
	if a, ok := desc.depthAttachment(); ok {
		depth = a.Texture
	}
	return fb, color, depth
}

func (d *device) softwareBackend() *softwareDeviceBackend {
	b, ok := d.backend.(*softwareDeviceBackend)
	precondition(ok, "device %q is not a software device", d.desc.Label)
	return b
}

func (d *device) wgpuBackend() *wgpuDeviceBackend {
	b, ok := d.backend.(*wgpuDeviceBackend)
	precondition(ok, "device %q is not a wgpu device", d.desc.Label)
	return b
}
