package graphics

import "sync"

// DeviceHandle is a non-owning reference to a Device. Resources keep a handle instead
// of a pointer so a destroyed device is observable and never kept alive by them.
type DeviceHandle uint64

// InvalidDeviceHandle never resolves.
const InvalidDeviceHandle DeviceHandle = 0

var registry = struct {
	mu      sync.RWMutex
	next    DeviceHandle
	devices map[DeviceHandle]*device
}{
	devices: make(map[DeviceHandle]*device),
}

// registerDevice assigns d a fresh handle.
func registerDevice(d *device) DeviceHandle {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.next++
	registry.devices[registry.next] = d
	return registry.next
}

// unregisterDevice drops h; later lookups fail.
func unregisterDevice(h DeviceHandle) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	delete(registry.devices, h)
}

// lookupDevice resolves h to its live device.
func lookupDevice(h DeviceHandle) (*device, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	d, ok := registry.devices[h]
	return d, ok
}

// mustDevice resolves h or panics. Used by operations that cannot run without the
// creating device.
func mustDevice(h DeviceHandle) *device {
	d, ok := lookupDevice(h)
	precondition(ok, "device %d is destroyed or was never created", h)
	return d
}

// Resolve reports whether h still refers to a live Device and returns it.
func (h DeviceHandle) Resolve() (Device, bool) {
	d, ok := lookupDevice(h)
	if !ok {
		return nil, false
	}
	return d, true
}
