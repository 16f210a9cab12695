package graphics

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

// DeviceDescriptor describes a Device. It is immutable once the device exists.
type DeviceDescriptor struct {
	// Backend selects which concrete resource variant every factory call produces.
	Backend BackendType

	// Label is attached to backend objects for debugging.
	Label string
}

// WrapMode controls texture addressing outside the [0, 1] range.
type WrapMode int

const (
	// WrapModeRepeat tiles the texture.
	WrapModeRepeat WrapMode = iota

	// WrapModeClampToEdge repeats the border texel.
	WrapModeClampToEdge

	// WrapModeMirroredRepeat tiles the texture, flipping every other copy.
	WrapModeMirroredRepeat
)

// FilterMode controls texel interpolation when sampling.
type FilterMode int

const (
	// FilterModeLinear interpolates between the nearest texels and mip levels.
	FilterModeLinear FilterMode = iota

	// FilterModeNearest picks the closest texel.
	FilterModeNearest
)

// MaxTextureDimension bounds texture width and height on every backend. The WGPU
// backend may still refuse sizes above its adapter limit with ErrAllocation.
const MaxTextureDimension = 16384

// TextureDescriptor describes the shape of a Texture. It is copied into the created
// resource and returned unchanged by Texture.Descriptor.
type TextureDescriptor struct {
	Label  string
	Width  int
	Height int
	Format TextureFormat
	WrapS  WrapMode
	WrapT  WrapMode
	Filter FilterMode

	// MipLevels is the number of mip levels, 0 meaning a single level.
	MipLevels int
}

// Validate reports whether the descriptor can be allocated.
//
// Returns:
//   - error: an ErrDescriptorInvalid wrapped error describing the first problem found, or nil
func (d TextureDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return invalidf("texture %q has non-positive size %dx%d", d.Label, d.Width, d.Height)
	}
	if d.Width > MaxTextureDimension || d.Height > MaxTextureDimension {
		return invalidf("texture %q size %dx%d exceeds %d", d.Label, d.Width, d.Height, MaxTextureDimension)
	}
	if !d.Format.Valid() {
		return invalidf("texture %q has invalid format %v", d.Label, d.Format)
	}
	if d.WrapS < WrapModeRepeat || d.WrapS > WrapModeMirroredRepeat || d.WrapT < WrapModeRepeat || d.WrapT > WrapModeMirroredRepeat {
		return invalidf("texture %q has invalid wrap mode", d.Label)
	}
	if d.Filter != FilterModeLinear && d.Filter != FilterModeNearest {
		return invalidf("texture %q has invalid filter mode", d.Label)
	}
	if d.MipLevels < 0 || d.MipLevels > common.MaxMipLevels(d.Width, d.Height) {
		return invalidf("texture %q requests %d mip levels, at most %d allowed", d.Label, d.MipLevels, common.MaxMipLevels(d.Width, d.Height))
	}
	if d.Format.IsDepth() && d.MipLevels > 1 {
		return invalidf("depth texture %q cannot have mip levels", d.Label)
	}
	return nil
}

// LevelCount returns the effective number of mip levels.
func (d TextureDescriptor) LevelCount() int {
	return max(1, d.MipLevels)
}

// LevelSize returns the width and height of a mip level.
func (d TextureDescriptor) LevelSize(level int) (int, int) {
	return common.MipExtent(d.Width, level), common.MipExtent(d.Height, level)
}

// Region is a rectangle of texels inside one mip level.
type Region struct {
	X, Y          int
	Width, Height int
}

// within reports whether r lies inside a w x h level and is non-empty.
func (r Region) within(w, h int) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width > 0 && r.Height > 0 && r.X+r.Width <= w && r.Y+r.Height <= h
}

// Viewport is the pixel rectangle draws are mapped into.
type Viewport struct {
	X, Y          int
	Width, Height int
}

// AttachmentSlot identifies where a texture is attached on a framebuffer.
// Values >= 0 are color slots; DepthSlot is the single depth/stencil slot.
type AttachmentSlot int

// DepthSlot is the depth/stencil attachment slot.
const DepthSlot AttachmentSlot = -1

// ColorSlot returns the color attachment slot n.
func ColorSlot(n int) AttachmentSlot {
	return AttachmentSlot(n)
}

// IsDepth reports whether s is the depth slot.
func (s AttachmentSlot) IsDepth() bool {
	return s == DepthSlot
}

func (s AttachmentSlot) String() string {
	if s.IsDepth() {
		return "depth"
	}
	return fmt.Sprintf("color%d", int(s))
}

// Attachment binds a texture to a framebuffer slot. The framebuffer references the
// texture; it never owns it.
type Attachment struct {
	Texture Texture
	Slot    AttachmentSlot
}

// FramebufferDescriptor lists the attachments of a Framebuffer in order.
type FramebufferDescriptor struct {
	Label       string
	Attachments []Attachment
}

// AddAttachment appends an attachment and returns the descriptor for chaining.
func (d FramebufferDescriptor) AddAttachment(t Texture, slot AttachmentSlot) FramebufferDescriptor {
	d.Attachments = append(append([]Attachment(nil), d.Attachments...), Attachment{Texture: t, Slot: slot})
	return d
}

// Validate checks the attachment invariants: at least one color attachment, no nil
// textures, no duplicate color slots, at most one depth attachment, matching formats
// per slot kind and a single shared size.
//
// Returns:
//   - error: an ErrDescriptorInvalid wrapped error, or nil
func (d FramebufferDescriptor) Validate() error {
	if len(d.Attachments) == 0 {
		return invalidf("framebuffer %q has no attachments", d.Label)
	}
	var (
		width, height int
		sized         bool
		depthCount    int
		colorCount    int
		seen          = make(map[AttachmentSlot]bool, len(d.Attachments))
	)
	for i, a := range d.Attachments {
		if a.Texture == nil {
			return invalidf("framebuffer %q attachment %d has no texture", d.Label, i)
		}
		td := a.Texture.Descriptor()
		switch {
		case a.Slot.IsDepth():
			depthCount++
			if depthCount > 1 {
				return invalidf("framebuffer %q has more than one depth attachment", d.Label)
			}
			if !td.Format.IsDepth() {
				return invalidf("framebuffer %q depth slot holds color format %v", d.Label, td.Format)
			}
		case a.Slot >= 0:
			colorCount++
			if seen[a.Slot] {
				return invalidf("framebuffer %q binds %v twice", d.Label, a.Slot)
			}
			if td.Format.IsDepth() {
				return invalidf("framebuffer %q %v holds depth format %v", d.Label, a.Slot, td.Format)
			}
		default:
			return invalidf("framebuffer %q attachment %d has invalid slot %d", d.Label, i, int(a.Slot))
		}
		seen[a.Slot] = true
		if !sized {
			width, height, sized = td.Width, td.Height, true
			continue
		}
		if td.Width != width || td.Height != height {
			return invalidf("framebuffer %q %v is %dx%d, expected %dx%d", d.Label, a.Slot, td.Width, td.Height, width, height)
		}
	}
	if colorCount == 0 {
		return invalidf("framebuffer %q has no color attachment", d.Label)
	}
	return nil
}

// colorAttachment returns the attachment at color slot n, if any.
func (d FramebufferDescriptor) colorAttachment(n int) (Attachment, bool) {
	for _, a := range d.Attachments {
		if a.Slot == ColorSlot(n) {
			return a, true
		}
	}
	return Attachment{}, false
}

// depthAttachment returns the depth attachment, if any.
func (d FramebufferDescriptor) depthAttachment() (Attachment, bool) {
	for _, a := range d.Attachments {
		if a.Slot.IsDepth() {
			return a, true
		}
	}
	return Attachment{}, false
}

// GraphicsDataType is the binding role of a GraphicsData buffer.
type GraphicsDataType int

const (
	// GraphicsDataTypeUniform is a uniform block.
	GraphicsDataTypeUniform GraphicsDataType = iota

	// GraphicsDataTypeStorage is a shader storage buffer.
	GraphicsDataTypeStorage

	// GraphicsDataTypeVertex is a vertex buffer.
	GraphicsDataTypeVertex

	// GraphicsDataTypeIndex is an index buffer.
	GraphicsDataTypeIndex
)

// GraphicsUsage is a bit set of CPU access hints for a GraphicsData buffer.
type GraphicsUsage uint32

const (
	// GraphicsUsageRead allows Map to read back the current contents.
	GraphicsUsageRead GraphicsUsage = 1 << iota

	// GraphicsUsageWrite allows Map/Unmap and Update to change the contents.
	GraphicsUsageWrite

	// GraphicsUsagePersistent keeps the mapping valid across GPU use.
	GraphicsUsagePersistent

	// GraphicsUsageCoherent makes persistent writes visible without explicit flushes.
	GraphicsUsageCoherent

	// GraphicsUsageDynamicStorage allows Update after creation.
	GraphicsUsageDynamicStorage
)

// GraphicsDataDescriptor describes an opaque GPU buffer.
type GraphicsDataDescriptor struct {
	Label string
	Type  GraphicsDataType
	Usage GraphicsUsage
	Size  int

	// Data optionally seeds the buffer; it must not be longer than Size.
	Data []byte
}

// Validate reports whether the descriptor can be allocated.
func (d GraphicsDataDescriptor) Validate() error {
	if d.Size <= 0 {
		return invalidf("graphics data %q has non-positive size %d", d.Label, d.Size)
	}
	if len(d.Data) > d.Size {
		return invalidf("graphics data %q initial data is %d bytes, size is %d", d.Label, len(d.Data), d.Size)
	}
	if d.Type < GraphicsDataTypeUniform || d.Type > GraphicsDataTypeIndex {
		return invalidf("graphics data %q has invalid type %d", d.Label, d.Type)
	}
	if d.Usage&GraphicsUsageCoherent != 0 && d.Usage&GraphicsUsagePersistent == 0 {
		return invalidf("graphics data %q is coherent but not persistent", d.Label)
	}
	return nil
}
