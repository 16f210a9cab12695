package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDivideByMultiple(t *testing.T) {
	assert.Equal(t, 0, DivideByMultiple(0, 16))
	assert.Equal(t, 1, DivideByMultiple(1, 16))
	assert.Equal(t, 1, DivideByMultiple(16, 16))
	assert.Equal(t, 2, DivideByMultiple(17, 16))
	assert.Equal(t, 68, DivideByMultiple(1080, 16))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, 256, AlignUp(1, 256))
	assert.Equal(t, 256, AlignUp(256, 256))
	assert.Equal(t, 512, AlignUp(257, 256))
}

func TestMipChain(t *testing.T) {
	assert.Equal(t, 0, MaxMipLevels(0, 0))
	assert.Equal(t, 1, MaxMipLevels(1, 1))
	assert.Equal(t, 11, MaxMipLevels(1024, 768))
	assert.Equal(t, 3, MaxMipLevels(4, 1))

	assert.Equal(t, 256, MipExtent(1024, 2))
	assert.Equal(t, 1, MipExtent(3, 5))
}

func TestCoalesceAndClamp(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 0, Coalesce(0, 0))
	assert.Equal(t, float32(1), Clamp(float32(3), 0, 1))
	assert.Equal(t, -2, Clamp(-5, -2, 2))
	assert.Equal(t, 1, Clamp(1, -2, 2))
}
