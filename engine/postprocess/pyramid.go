package postprocess

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
)

// TileSize is the edge of the compute tile the extract and downsample passes run in.
// Each pyramid level is the previous level divided by TileSize, rounded up.
const TileSize = 16

// LevelSize is the extent of one pyramid level.
type LevelSize struct {
	Width, Height int
}

func (s LevelSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// PyramidSizes returns the level sizes of the luminance pyramid for a frame. Level 0 is
// the frame itself; a further level is added while both axes of the last one exceed 1.
//
// Parameters:
//   - width: the frame width, must be > 0
//   - height: the frame height, must be > 0
//
// Returns:
//   - []LevelSize: the level sizes, level 0 first
func PyramidSizes(width, height int) []LevelSize {
	if width <= 0 || height <= 0 {
		return nil
	}
	sizes := []LevelSize{{width, height}}
	for width > 1 && height > 1 {
		width = common.DivideByMultiple(width, TileSize)
		height = common.DivideByMultiple(height, TileSize)
		sizes = append(sizes, LevelSize{width, height})
	}
	return sizes
}

// halfSize is the extent of the bloom and scratch buffers.
func halfSize(width, height int) LevelSize {
	return LevelSize{common.DivideByMultiple(width, 2), common.DivideByMultiple(height, 2)}
}

// buildPyramid allocates one RGBA16Float texture per level. On failure the textures
// created so far are released.
func buildPyramid(d graphics.Device, width, height int) ([]graphics.Texture, error) {
	sizes := PyramidSizes(width, height)
	levels := make([]graphics.Texture, 0, len(sizes))
	for i, s := range sizes {
		t, err := d.CreateTexture(intermediateDescriptor(fmt.Sprintf("postprocess pyramid %d", i), s))
		if err != nil {
			releaseAll(levels)
			return nil, fmt.Errorf("failed to create pyramid level %d (%v): %w", i, s, err)
		}
		levels = append(levels, t)
	}
	return levels, nil
}

// intermediateDescriptor describes the half-float, clamp-to-edge textures the pipeline owns.
func intermediateDescriptor(label string, s LevelSize) graphics.TextureDescriptor {
	return graphics.TextureDescriptor{
		Label:  label,
		Width:  s.Width,
		Height: s.Height,
		Format: graphics.TextureFormatRGBA16Float,
		WrapS:  graphics.WrapModeClampToEdge,
		WrapT:  graphics.WrapModeClampToEdge,
		Filter: graphics.FilterModeLinear,
	}
}

func releaseAll(textures []graphics.Texture) {
	for _, t := range textures {
		t.Release()
	}
}
