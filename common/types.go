// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "github.com/cogentcore/webgpu/wgpu"

// TextureStagingData holds tightly packed texel rows pending upload to one mip level of a GPU texture.
type TextureStagingData struct {
	// Pixels holds Height rows of BytesPerRow bytes each.
	Pixels []byte
	// Width is the width of the uploaded region in texels.
	Width uint32
	// Height is the height of the uploaded region in texels.
	Height uint32
	// BytesPerRow is the stride between rows in Pixels.
	BytesPerRow uint32
	// OriginX and OriginY locate the region inside the destination level.
	OriginX, OriginY uint32
	// MipLevel is the destination mip level.
	MipLevel uint32
}

// SamplerStagingData holds the configuration for a sampler pending GPU creation.
// Zero fields fall back to linear filtering with repeat addressing.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}
