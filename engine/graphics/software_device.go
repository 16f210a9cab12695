package graphics

import (
	"sync"
)

// softwareDeviceBackend keeps the default target in host memory. It has nothing to submit.
type softwareDeviceBackend struct {
	mu     sync.Mutex
	device *device
	color  Texture
	depth  Texture
}

var _ deviceBackend = &softwareDeviceBackend{}

func newSoftwareDeviceBackend(d *device) *softwareDeviceBackend {
	return &softwareDeviceBackend{device: d}
}

func (b *softwareDeviceBackend) resize(width, height int) error {
	color, err := b.device.CreateTexture(TextureDescriptor{
		Label:  "default",
		Width:  width,
		Height: height,
		Format: TextureFormatRGBA8UnormSrgb,
		WrapS:  WrapModeClampToEdge,
		WrapT:  WrapModeClampToEdge,
	})
	if err != nil {
		return err
	}
	depth, err := b.device.CreateTexture(TextureDescriptor{
		Label:  "default depth",
		Width:  width,
		Height: height,
		Format: TextureFormatDepth24PlusStencil8,
		WrapS:  WrapModeClampToEdge,
		WrapT:  WrapModeClampToEdge,
		Filter: FilterModeNearest,
	})
	if err != nil {
		color.Release()
		return err
	}
	depth.(*softwareTexture).fill(0, [4]float32{1, 0, 0, 1})

	b.mu.Lock()
	oldColor, oldDepth := b.color, b.depth
	b.color, b.depth = color, depth
	b.mu.Unlock()

	if oldColor != nil {
		oldColor.Release()
	}
	if oldDepth != nil {
		oldDepth.Release()
	}
	return nil
}

func (b *softwareDeviceBackend) defaultTarget() Texture {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.color
}

func (b *softwareDeviceBackend) defaultDepth() Texture {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.depth
}

func (b *softwareDeviceBackend) flush() {}

func (b *softwareDeviceBackend) present() {}

func (b *softwareDeviceBackend) release() {
	b.mu.Lock()
	color, depth := b.color, b.depth
	b.color, b.depth = nil, nil
	b.mu.Unlock()

	if color != nil {
		color.Release()
	}
	if depth != nil {
		depth.Release()
	}
}
