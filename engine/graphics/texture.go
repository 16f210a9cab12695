package graphics

import (
	"fmt"
	"os"
	"sync"
)

// Texture is a GPU image with an optional mip chain.
//
// A texture's format and size are fixed at creation; resizing means releasing it and
// creating a new one. Textures hold a weak handle to their device and may own one
// lazily created Framebuffer that renders into level 0.
type Texture interface {
	// Descriptor returns a copy of the descriptor the texture was created with.
	//
	// Returns:
	//   - TextureDescriptor: the creation descriptor
	Descriptor() TextureDescriptor

	// Device returns the weak handle of the creating device.
	//
	// Returns:
	//   - DeviceHandle: the device handle
	Device() DeviceHandle

	// Map copies one full mip level into a CPU-visible staging slice. Writes to the
	// slice reach the texture on Unmap. Map blocks until prior GPU work on the texture
	// has completed. Every Map must be paired with exactly one Unmap.
	//
	// Parameters:
	//   - mipLevel: the level to map
	//
	// Returns:
	//   - []byte: tightly packed rows of the level in the texture's format
	//   - error: an error if the readback fails
	Map(mipLevel int) ([]byte, error)

	// MapRegion is Map restricted to a rectangle of one mip level.
	//
	// Parameters:
	//   - region: the texel rectangle, which must lie inside the level
	//   - mipLevel: the level to map
	//
	// Returns:
	//   - []byte: tightly packed rows of the region
	//   - error: an error if the readback fails
	MapRegion(region Region, mipLevel int) ([]byte, error)

	// Unmap ends the current mapping and uploads the staging bytes.
	Unmap()

	// Bind associates the texture with a sampler unit on its device.
	//
	// Parameters:
	//   - unit: the sampler unit index
	Bind(unit int)

	// Unbind clears the sampler unit if this texture is bound to it.
	//
	// Parameters:
	//   - unit: the sampler unit index
	Unbind(unit int)

	// GenerateMipmap rebuilds every mip level from level 0. An active mapping is
	// ended without upload and its slice becomes stale.
	GenerateMipmap()

	// RenderTarget returns a framebuffer with this texture as color slot 0. The
	// framebuffer is created on first use and the same instance is returned until
	// the texture is released.
	//
	// Returns:
	//   - Framebuffer: the cached render target
	//   - error: an error if the texture cannot be rendered to
	RenderTarget() (Framebuffer, error)

	// Release frees the GPU image and the cached render target.
	Release()
}

// textureResource is the construction surface every texture variant implements.
type textureResource interface {
	Texture

	// setDevice stores the creating device's handle before create runs.
	setDevice(h DeviceHandle)

	// allocate creates the backend image for desc and uploads img when present.
	allocate(desc TextureDescriptor, img *Image) error
}

// textureBase holds the state shared by every texture variant.
type textureBase struct {
	mu     sync.Mutex
	desc   TextureDescriptor
	handle DeviceHandle

	renderTarget Framebuffer
	released     bool

	mapped     bool
	mapLevel   int
	mapRegion  Region
	mapStaging []byte
}

func (t *textureBase) Descriptor() TextureDescriptor {
	return t.desc
}

func (t *textureBase) Device() DeviceHandle {
	return t.handle
}

func (t *textureBase) setDevice(h DeviceHandle) {
	t.handle = h
}

// beginMap validates a map request and records it. It returns the region to copy.
func (t *textureBase) beginMap(region *Region, mipLevel int) Region {
	precondition(!t.released, "map on released texture %q", t.desc.Label)
	precondition(!t.mapped, "texture %q is already mapped", t.desc.Label)
	precondition(mipLevel >= 0 && mipLevel < t.desc.LevelCount(), "texture %q has no mip level %d", t.desc.Label, mipLevel)
	w, h := t.desc.LevelSize(mipLevel)
	r := Region{Width: w, Height: h}
	if region != nil {
		precondition(region.within(w, h), "region %+v is outside %dx%d level %d of texture %q", *region, w, h, mipLevel, t.desc.Label)
		r = *region
	}
	t.mapped = true
	t.mapLevel = mipLevel
	t.mapRegion = r
	return r
}

// endMap returns the active mapping and clears it.
func (t *textureBase) endMap() (Region, int, []byte) {
	precondition(t.mapped, "unmap on texture %q that is not mapped", t.desc.Label)
	r, level, staging := t.mapRegion, t.mapLevel, t.mapStaging
	t.mapped = false
	t.mapStaging = nil
	return r, level, staging
}

// dropMapping discards an active mapping without upload.
func (t *textureBase) dropMapping() {
	t.mapped = false
	t.mapStaging = nil
}

// cachedRenderTarget returns the render target, creating it on first use.
func (t *textureBase) cachedRenderTarget(self Texture) (Framebuffer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	precondition(!t.released, "render target of released texture %q", t.desc.Label)
	if t.renderTarget != nil {
		return t.renderTarget, nil
	}
	d := mustDevice(t.handle)
	fb, err := d.CreateFramebuffer(FramebufferDescriptor{
		Label:       t.desc.Label + " Render Target",
		Attachments: []Attachment{{Texture: self, Slot: ColorSlot(0)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render target for texture %q: %w", t.desc.Label, err)
	}
	t.renderTarget = fb
	return fb, nil
}

// releaseBase marks the texture released and frees the render target.
// It reports false when the texture was already released.
func (t *textureBase) releaseBase(self Texture) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return false
	}
	t.released = true
	t.dropMapping()
	if t.renderTarget != nil {
		t.renderTarget.Release()
		t.renderTarget = nil
	}
	if d, ok := lookupDevice(t.handle); ok {
		d.forgetTexture(self)
	}
	return true
}

func (t *textureBase) bindUnit(self Texture, unit int) {
	precondition(!t.released, "bind on released texture %q", t.desc.Label)
	mustDevice(t.handle).bindTextureUnit(unit, self)
}

func (t *textureBase) unbindUnit(self Texture, unit int) {
	mustDevice(t.handle).unbindTextureUnit(unit, self)
}

// createTextureFromFile reads filename and decodes it with createTextureFromImage.
func createTextureFromFile(t textureResource, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read texture file %q: %w", filename, err)
	}
	return createTextureFromImage(t, filename, data)
}

// createTextureFromImage decodes a raw image blob and allocates t from it.
func createTextureFromImage(t textureResource, label string, data []byte) error {
	img, err := DecodeImage(data)
	if err != nil {
		return err
	}
	return createTextureFromDecoded(t, label, img)
}

// createTextureFromDecoded allocates t from a decoded image, keeping its mip chain.
func createTextureFromDecoded(t textureResource, label string, img *Image) error {
	if img == nil || len(img.Levels) == 0 {
		return invalidf("decoded image has no levels")
	}
	if _, ok := t.(*wgpuTexture); ok && img.Format == TextureFormatRGBA32Float {
		// WGPU cannot filter 32-bit float textures without an optional feature.
		img = narrowToRGBA16Float(img)
	}
	desc := TextureDescriptor{
		Label:     label,
		Width:     img.Width,
		Height:    img.Height,
		Format:    img.Format,
		MipLevels: len(img.Levels),
	}
	if desc.MipLevels == 1 {
		desc.MipLevels = 0
	}
	return t.allocate(desc, img)
}

// narrowToRGBA16Float converts an RGBA32Float image, every level, to RGBA16Float.
func narrowToRGBA16Float(img *Image) *Image {
	out := &Image{Width: img.Width, Height: img.Height, Format: TextureFormatRGBA16Float}
	src, dst := TextureFormatRGBA32Float.BytesPerTexel(), TextureFormatRGBA16Float.BytesPerTexel()
	for _, level := range img.Levels {
		n := len(level) / src
		narrow := make([]byte, n*dst)
		for i := range n {
			encodeTexel(TextureFormatRGBA16Float, decodeTexel(TextureFormatRGBA32Float, level[i*src:]), narrow[i*dst:])
		}
		out.Levels = append(out.Levels, narrow)
	}
	return out
}

// createTextureFromDescriptor validates desc and allocates t.
func createTextureFromDescriptor(t textureResource, desc TextureDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	return t.allocate(desc, nil)
}

// boxDownsample averages 2x2 blocks of src (sw x sh, format f) into a dw x dh level.
func boxDownsample(f TextureFormat, src []byte, sw, sh int, dw, dh int) []byte {
	bpt := f.BytesPerTexel()
	dst := make([]byte, dw*dh*bpt)
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			var acc [4]float32
			n := float32(0)
			for oy := 0; oy < 2; oy++ {
				for ox := 0; ox < 2; ox++ {
					sx, sy := min(x*2+ox, sw-1), min(y*2+oy, sh-1)
					c := decodeTexel(f, src[(sy*sw+sx)*bpt:])
					for i := range acc {
						acc[i] += c[i]
					}
					n++
				}
			}
			for i := range acc {
				acc[i] /= n
			}
			encodeTexel(f, acc, dst[(y*dw+x)*bpt:])
		}
	}
	return dst
}

// copyRegion copies a region out of a tightly packed level of width levelW.
func copyRegion(level []byte, levelW int, r Region, bpt int) []byte {
	out := make([]byte, r.Width*r.Height*bpt)
	row := r.Width * bpt
	for y := 0; y < r.Height; y++ {
		src := ((r.Y+y)*levelW + r.X) * bpt
		copy(out[y*row:(y+1)*row], level[src:src+row])
	}
	return out
}

// pasteRegion writes a tightly packed region back into a level of width levelW.
func pasteRegion(level []byte, levelW int, r Region, bpt int, data []byte) {
	row := r.Width * bpt
	for y := 0; y < r.Height; y++ {
		dst := ((r.Y+y)*levelW + r.X) * bpt
		copy(level[dst:dst+row], data[y*row:(y+1)*row])
	}
}
