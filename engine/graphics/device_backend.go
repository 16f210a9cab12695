package graphics

import "fmt"

// BackendType identifies the resource variant family a Device produces.
type BackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU BackendType = iota

	// BackendTypeSoftware selects the CPU reference backend. Textures live in host memory,
	// compute and fragment programs run as Go kernels.
	BackendTypeSoftware
)

func (b BackendType) String() string {
	switch b {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeSoftware:
		return "software"
	default:
		return fmt.Sprintf("BackendType(%d)", int(b))
	}
}

// ParseBackendType maps a backend name ("wgpu" or "software") to its BackendType.
func ParseBackendType(name string) (BackendType, error) {
	switch name {
	case "wgpu", "gpu":
		return BackendTypeWGPU, nil
	case "software", "cpu":
		return BackendTypeSoftware, nil
	default:
		return 0, invalidf("unknown backend %q", name)
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	PresentModeUncapped
)

// deviceBackend is the backend-specific half of a device: the default target,
// command submission and teardown. Resource construction does not go through it;
// the device switches on its BackendType for that.
type deviceBackend interface {
	// resize reallocates the default target.
	resize(width, height int) error

	// defaultTarget returns the readable default color target, or nil when the
	// default target is a presentation surface.
	defaultTarget() Texture

	// defaultDepth returns the depth attachment of the default target, or nil.
	defaultDepth() Texture

	// flush submits recorded work.
	flush()

	// present flushes and shows the default target.
	present()

	// release frees backend objects owned by the device.
	release()
}
