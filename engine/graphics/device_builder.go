package graphics

import "github.com/cogentcore/webgpu/wgpu"

// DeviceBuilderOption is a functional option applied to a device during construction via NewDevice.
type DeviceBuilderOption func(*device)

// WithSurface makes the WGPU device present to a window surface instead of an offscreen
// default target. The software backend ignores it.
//
// Parameters:
//   - sd: the surface descriptor obtained from the window
//
// Returns:
//   - DeviceBuilderOption: a function that applies the surface option to a device
func WithSurface(sd *wgpu.SurfaceDescriptor) DeviceBuilderOption {
	return func(d *device) {
		d.surfaceDescriptor = sd
	}
}

// WithSize sets the initial default target size. It defaults to 1280x720.
//
// Parameters:
//   - width: the width in pixels
//   - height: the height in pixels
//
// Returns:
//   - DeviceBuilderOption: a function that applies the size option to a device
func WithSize(width, height int) DeviceBuilderOption {
	return func(d *device) {
		d.width = width
		d.height = height
	}
}

// WithForceFallbackAdapter forces WGPU to pick a CPU fallback adapter (lavapipe, SwiftShader).
//
// Parameters:
//   - force: true to request the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: a function that applies the fallback option to a device
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(d *device) {
		d.forceFallbackAdapter = force
	}
}

// WithPresentMode sets the surface present mode.
//
// Parameters:
//   - mode: PresentModeVSync or PresentModeUncapped
//
// Returns:
//   - DeviceBuilderOption: a function that applies the present mode option to a device
func WithPresentMode(mode PresentMode) DeviceBuilderOption {
	return func(d *device) {
		d.presentMode = mode
	}
}

// WithCommandLog records every state change and GPU operation issued through the device.
// The log is read with Device.Commands.
//
// Returns:
//   - DeviceBuilderOption: a function that enables the command log on a device
func WithCommandLog() DeviceBuilderOption {
	return func(d *device) {
		d.logCommands = true
	}
}
