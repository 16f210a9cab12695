package graphics

// softwareTexture keeps every mip level as a tightly packed byte slice in host memory.
type softwareTexture struct {
	textureBase
	levels [][]byte
}

var _ textureResource = &softwareTexture{}

func (t *softwareTexture) allocate(desc TextureDescriptor, img *Image) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	t.desc = desc
	bpt := desc.Format.BytesPerTexel()
	t.levels = make([][]byte, desc.LevelCount())
	for i := range t.levels {
		w, h := desc.LevelSize(i)
		t.levels[i] = make([]byte, w*h*bpt)
		if img != nil && i < len(img.Levels) {
			if len(img.Levels[i]) != len(t.levels[i]) {
				return allocationf(nil, "texture %q level %d has %d bytes, expected %d", desc.Label, i, len(img.Levels[i]), len(t.levels[i]))
			}
			copy(t.levels[i], img.Levels[i])
		}
	}
	return nil
}

func (t *softwareTexture) Map(mipLevel int) ([]byte, error) {
	return t.mapLevel(nil, mipLevel)
}

func (t *softwareTexture) MapRegion(region Region, mipLevel int) ([]byte, error) {
	return t.mapLevel(&region, mipLevel)
}

func (t *softwareTexture) mapLevel(region *Region, mipLevel int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.beginMap(region, mipLevel)
	w, _ := t.desc.LevelSize(mipLevel)
	t.mapStaging = copyRegion(t.levels[mipLevel], w, r, t.desc.Format.BytesPerTexel())
	return t.mapStaging, nil
}

func (t *softwareTexture) Unmap() {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, level, staging := t.endMap()
	w, _ := t.desc.LevelSize(level)
	pasteRegion(t.levels[level], w, r, t.desc.Format.BytesPerTexel(), staging)
}

func (t *softwareTexture) Bind(unit int) {
	t.bindUnit(t, unit)
	mustDevice(t.handle).record(Command{Kind: CommandBindTexture, Unit: unit, Texture: t.desc.Label})
}

func (t *softwareTexture) Unbind(unit int) {
	t.unbindUnit(t, unit)
}

func (t *softwareTexture) GenerateMipmap() {
	t.mu.Lock()
	defer t.mu.Unlock()

	precondition(!t.released, "mipmap on released texture %q", t.desc.Label)
	t.dropMapping()
	for i := 1; i < len(t.levels); i++ {
		sw, sh := t.desc.LevelSize(i - 1)
		dw, dh := t.desc.LevelSize(i)
		t.levels[i] = boxDownsample(t.desc.Format, t.levels[i-1], sw, sh, dw, dh)
	}
}

func (t *softwareTexture) RenderTarget() (Framebuffer, error) {
	return t.cachedRenderTarget(t)
}

func (t *softwareTexture) Release() {
	if t.releaseBase(t) {
		t.mu.Lock()
		t.levels = nil
		t.mu.Unlock()
	}
}

// fill sets every texel of a level to c.
func (t *softwareTexture) fill(level int, c [4]float32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bpt := t.desc.Format.BytesPerTexel()
	texel := make([]byte, bpt)
	encodeTexel(t.desc.Format, c, texel)
	dst := t.levels[level]
	for i := 0; i < len(dst); i += bpt {
		copy(dst[i:i+bpt], texel)
	}
}

// level returns the backing slice of a mip level. Kernels read and write it directly.
func (t *softwareTexture) level(mipLevel int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	precondition(!t.released, "use of released texture %q", t.desc.Label)
	return t.levels[mipLevel]
}
