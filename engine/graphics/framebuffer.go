package graphics

import "sync"

// Framebuffer is a render target made of texture attachments. It references its
// attachments and never releases them.
type Framebuffer interface {
	// Descriptor returns the descriptor the framebuffer was built from.
	//
	// Returns:
	//   - FramebufferDescriptor: the creation descriptor
	Descriptor() FramebufferDescriptor

	// Label returns the framebuffer's debug label.
	Label() string

	// Size returns the shared attachment size.
	//
	// Returns:
	//   - int: width in pixels
	//   - int: height in pixels
	Size() (int, int)

	// Bind makes this framebuffer the active render target of its device.
	Bind()

	// Release frees the framebuffer object. Attached textures stay alive.
	Release()
}

// framebufferResource is the construction surface every framebuffer variant implements.
type framebufferResource interface {
	Framebuffer
	setDevice(h DeviceHandle)
	deviceHandle() DeviceHandle
	isReleased() bool
	create(desc FramebufferDescriptor) error
}

// defaultFramebuffer is the sentinel type behind DefaultFramebuffer.
type defaultFramebuffer struct{}

// DefaultFramebuffer stands for the device's window surface (or its headless stand-in).
// Passing it to SetFramebuffer resolves to the default target.
var DefaultFramebuffer Framebuffer = defaultFramebuffer{}

func (defaultFramebuffer) Descriptor() FramebufferDescriptor {
	return FramebufferDescriptor{Label: "default"}
}

func (defaultFramebuffer) Label() string {
	return "default"
}

// Size of the sentinel is unknown without a device; use Device.Size.
func (defaultFramebuffer) Size() (int, int) {
	return 0, 0
}

func (defaultFramebuffer) Bind() {
	panic("graphics: DefaultFramebuffer has no device; use Device.SetFramebuffer(DefaultFramebuffer)")
}

func (defaultFramebuffer) Release() {}

// framebufferBase holds state shared by the framebuffer variants.
type framebufferBase struct {
	mu       sync.Mutex
	desc     FramebufferDescriptor
	handle   DeviceHandle
	width    int
	height   int
	released bool
}

func (f *framebufferBase) Descriptor() FramebufferDescriptor {
	return f.desc
}

func (f *framebufferBase) Label() string {
	return f.desc.Label
}

func (f *framebufferBase) Size() (int, int) {
	return f.width, f.height
}

func (f *framebufferBase) setDevice(h DeviceHandle) {
	f.handle = h
}

func (f *framebufferBase) deviceHandle() DeviceHandle {
	return f.handle
}

func (f *framebufferBase) isReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.released
}

// initBase validates desc and records the shared size.
func (f *framebufferBase) initBase(desc FramebufferDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	for _, a := range desc.Attachments {
		if a.Texture.Device() != f.handle {
			return invalidf("framebuffer %q attachment %v belongs to another device", desc.Label, a.Slot)
		}
	}
	f.desc = desc
	f.width = desc.Attachments[0].Texture.Descriptor().Width
	f.height = desc.Attachments[0].Texture.Descriptor().Height
	return nil
}

func (f *framebufferBase) bindSelf(self Framebuffer) {
	precondition(!f.released, "bind on released framebuffer %q", f.desc.Label)
	mustDevice(f.handle).SetFramebuffer(self)
}

// releaseBase marks the framebuffer released. It reports false on a repeated call.
func (f *framebufferBase) releaseBase(self Framebuffer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.released {
		return false
	}
	f.released = true
	if d, ok := lookupDevice(f.handle); ok {
		d.forgetFramebuffer(self)
	}
	return true
}
