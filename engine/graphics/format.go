package graphics

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/x448/float16"
)

// TextureFormat identifies the texel layout of a Texture.
type TextureFormat int

const (
	// TextureFormatUndefined is the zero value and never valid in a descriptor.
	TextureFormatUndefined TextureFormat = iota

	// TextureFormatRGBA8Unorm stores four 8-bit normalized channels.
	TextureFormatRGBA8Unorm

	// TextureFormatRGBA8UnormSrgb stores four 8-bit channels with sRGB-encoded color.
	// Reads decode to linear values and writes encode back.
	TextureFormatRGBA8UnormSrgb

	// TextureFormatBGRA8Unorm stores four 8-bit normalized channels in blue-first order.
	TextureFormatBGRA8Unorm

	// TextureFormatR16Float stores a single half-precision channel.
	TextureFormatR16Float

	// TextureFormatRGBA16Float stores four half-precision channels.
	TextureFormatRGBA16Float

	// TextureFormatR32Float stores a single full-precision channel.
	TextureFormatR32Float

	// TextureFormatRGBA32Float stores four full-precision channels.
	TextureFormatRGBA32Float

	// TextureFormatDepth24PlusStencil8 is a combined depth/stencil format.
	// The software backend keeps depth as float32 and ignores stencil.
	TextureFormatDepth24PlusStencil8

	// TextureFormatDepth32Float is a depth-only format.
	TextureFormatDepth32Float

	textureFormatCount
)

var textureFormatNames = [...]string{
	"Undefined",
	"RGBA8Unorm",
	"RGBA8UnormSrgb",
	"BGRA8Unorm",
	"R16Float",
	"RGBA16Float",
	"R32Float",
	"RGBA32Float",
	"Depth24PlusStencil8",
	"Depth32Float",
}

func (f TextureFormat) String() string {
	if f < 0 || f >= textureFormatCount {
		return "Invalid"
	}
	return textureFormatNames[f]
}

// Valid reports whether f names a concrete format.
func (f TextureFormat) Valid() bool {
	return f > TextureFormatUndefined && f < textureFormatCount
}

// BytesPerTexel returns the size of one texel in CPU-visible memory.
func (f TextureFormat) BytesPerTexel() int {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatRGBA8UnormSrgb, TextureFormatBGRA8Unorm:
		return 4
	case TextureFormatR16Float:
		return 2
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatR32Float:
		return 4
	case TextureFormatRGBA32Float:
		return 16
	case TextureFormatDepth24PlusStencil8, TextureFormatDepth32Float:
		return 4
	default:
		return 0
	}
}

// IsDepth reports whether f can only be attached to the depth slot.
func (f TextureFormat) IsDepth() bool {
	return f == TextureFormatDepth24PlusStencil8 || f == TextureFormatDepth32Float
}

// Storable reports whether f can be bound as a write-only storage image on every backend.
func (f TextureFormat) Storable() bool {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatRGBA16Float, TextureFormatR32Float, TextureFormatRGBA32Float:
		return true
	default:
		return false
	}
}

// wgpuFormatMap maps engine formats to their WebGPU equivalents.
var wgpuFormatMap = map[TextureFormat]wgpu.TextureFormat{
	TextureFormatRGBA8Unorm:          wgpu.TextureFormatRGBA8Unorm,
	TextureFormatRGBA8UnormSrgb:      wgpu.TextureFormatRGBA8UnormSrgb,
	TextureFormatBGRA8Unorm:          wgpu.TextureFormatBGRA8Unorm,
	TextureFormatR16Float:            wgpu.TextureFormatR16Float,
	TextureFormatRGBA16Float:         wgpu.TextureFormatRGBA16Float,
	TextureFormatR32Float:            wgpu.TextureFormatR32Float,
	TextureFormatRGBA32Float:         wgpu.TextureFormatRGBA32Float,
	TextureFormatDepth24PlusStencil8: wgpu.TextureFormatDepth24PlusStencil8,
	TextureFormatDepth32Float:        wgpu.TextureFormatDepth32Float,
}

// WGPU returns the WebGPU texture format for f.
func (f TextureFormat) WGPU() wgpu.TextureFormat {
	return wgpuFormatMap[f]
}

// formatFromWGPU maps a surface format reported by WebGPU back to an engine format.
func formatFromWGPU(f wgpu.TextureFormat) TextureFormat {
	for k, v := range wgpuFormatMap {
		if v == f {
			return k
		}
	}
	return TextureFormatUndefined
}

// decodeTexel reads one texel of format f from b and returns it as linear RGBA.
// Single-channel formats return (r, 0, 0, 1); depth formats return (d, 0, 0, 1).
func decodeTexel(f TextureFormat, b []byte) [4]float32 {
	switch f {
	case TextureFormatRGBA8Unorm:
		return [4]float32{unorm8(b[0]), unorm8(b[1]), unorm8(b[2]), unorm8(b[3])}
	case TextureFormatRGBA8UnormSrgb:
		return [4]float32{srgbToLinear(unorm8(b[0])), srgbToLinear(unorm8(b[1])), srgbToLinear(unorm8(b[2])), unorm8(b[3])}
	case TextureFormatBGRA8Unorm:
		return [4]float32{unorm8(b[2]), unorm8(b[1]), unorm8(b[0]), unorm8(b[3])}
	case TextureFormatR16Float:
		return [4]float32{half(b[0:2]), 0, 0, 1}
	case TextureFormatRGBA16Float:
		return [4]float32{half(b[0:2]), half(b[2:4]), half(b[4:6]), half(b[6:8])}
	case TextureFormatR32Float, TextureFormatDepth24PlusStencil8, TextureFormatDepth32Float:
		return [4]float32{f32(b[0:4]), 0, 0, 1}
	case TextureFormatRGBA32Float:
		return [4]float32{f32(b[0:4]), f32(b[4:8]), f32(b[8:12]), f32(b[12:16])}
	}
	return [4]float32{}
}

// encodeTexel writes the linear RGBA value c into b using format f.
func encodeTexel(f TextureFormat, c [4]float32, b []byte) {
	switch f {
	case TextureFormatRGBA8Unorm:
		b[0], b[1], b[2], b[3] = toUnorm8(c[0]), toUnorm8(c[1]), toUnorm8(c[2]), toUnorm8(c[3])
	case TextureFormatRGBA8UnormSrgb:
		b[0], b[1], b[2] = toUnorm8(linearToSrgb(c[0])), toUnorm8(linearToSrgb(c[1])), toUnorm8(linearToSrgb(c[2]))
		b[3] = toUnorm8(c[3])
	case TextureFormatBGRA8Unorm:
		b[0], b[1], b[2], b[3] = toUnorm8(c[2]), toUnorm8(c[1]), toUnorm8(c[0]), toUnorm8(c[3])
	case TextureFormatR16Float:
		putHalf(b[0:2], c[0])
	case TextureFormatRGBA16Float:
		putHalf(b[0:2], c[0])
		putHalf(b[2:4], c[1])
		putHalf(b[4:6], c[2])
		putHalf(b[6:8], c[3])
	case TextureFormatR32Float, TextureFormatDepth24PlusStencil8, TextureFormatDepth32Float:
		putF32(b[0:4], c[0])
	case TextureFormatRGBA32Float:
		putF32(b[0:4], c[0])
		putF32(b[4:8], c[1])
		putF32(b[8:12], c[2])
		putF32(b[12:16], c[3])
	}
}

func unorm8(v byte) float32 {
	return float32(v) / 255
}

func toUnorm8(v float32) byte {
	if v != v {
		return 0
	}
	v = math32.Max(0, math32.Min(1, v))
	return byte(v*255 + 0.5)
}

func half(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}

func putHalf(b []byte, v float32) {
	binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits())
}

func f32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func srgbToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math32.Pow((c+0.055)/1.055, 2.4)
}

func linearToSrgb(c float32) float32 {
	if c <= 0.0031308 {
		return c * 12.92
	}
	return 1.055*math32.Pow(c, 1/2.4) - 0.055
}
