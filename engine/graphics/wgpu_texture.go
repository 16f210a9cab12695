package graphics

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
)

var wgpuAddressModes = map[WrapMode]wgpu.AddressMode{
	WrapModeRepeat:         wgpu.AddressModeRepeat,
	WrapModeClampToEdge:    wgpu.AddressModeClampToEdge,
	WrapModeMirroredRepeat: wgpu.AddressModeMirrorRepeat,
}

// wgpuTexture is a GPU texture with one view per mip level, a view over the whole chain
// and a sampler built from the descriptor's wrap and filter modes.
type wgpuTexture struct {
	textureBase
	texture     *wgpu.Texture
	levelViews  []*wgpu.TextureView
	sampledView *wgpu.TextureView
	sampler     *wgpu.Sampler
}

var _ textureResource = &wgpuTexture{}

func (t *wgpuTexture) backend() *wgpuDeviceBackend {
	return mustDevice(t.handle).wgpuBackend()
}

func (t *wgpuTexture) allocate(desc TextureDescriptor, img *Image) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	t.desc = desc
	b := t.backend()

	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageRenderAttachment
	if !desc.Format.IsDepth() {
		usage |= wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc
		if desc.Format.Storable() {
			usage |= wgpu.TextureUsageStorageBinding
		}
	}
	tex, err := b.gpu.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     usage,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		Format:        desc.Format.WGPU(),
		MipLevelCount: uint32(desc.LevelCount()),
		SampleCount:   1,
	})
	if err != nil {
		return allocationf(err, "texture %q", desc.Label)
	}
	t.texture = tex

	for i := 0; i < desc.LevelCount(); i++ {
		view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
			Label:           desc.Label + " Level View",
			Format:          desc.Format.WGPU(),
			Dimension:       wgpu.TextureViewDimension2D,
			BaseMipLevel:    uint32(i),
			MipLevelCount:   1,
			BaseArrayLayer:  0,
			ArrayLayerCount: 1,
			Aspect:          wgpu.TextureAspectAll,
		})
		if err != nil {
			t.releaseObjects()
			return allocationf(err, "view of texture %q level %d", desc.Label, i)
		}
		t.levelViews = append(t.levelViews, view)
	}
	t.sampledView, err = tex.CreateView(nil)
	if err != nil {
		t.releaseObjects()
		return allocationf(err, "view of texture %q", desc.Label)
	}

	staging := common.SamplerStagingData{
		AddressModeU: wgpuAddressModes[desc.WrapS],
		AddressModeV: wgpuAddressModes[desc.WrapT],
		AddressModeW: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeLinear,
		LodMaxClamp:  float32(desc.LevelCount()),
	}
	if desc.Filter == FilterModeNearest {
		staging.MagFilter = wgpu.FilterModeNearest
		staging.MinFilter = wgpu.FilterModeNearest
		staging.MipmapFilter = wgpu.MipmapFilterModeNearest
	}
	t.sampler, err = b.gpu.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label + " Sampler",
		AddressModeU:  staging.AddressModeU,
		AddressModeV:  staging.AddressModeV,
		AddressModeW:  staging.AddressModeW,
		MagFilter:     staging.MagFilter,
		MinFilter:     staging.MinFilter,
		MipmapFilter:  staging.MipmapFilter,
		LodMinClamp:   staging.LodMinClamp,
		LodMaxClamp:   common.Coalesce(staging.LodMaxClamp, 32.0),
		MaxAnisotropy: common.Coalesce(staging.MaxAnisotropy, 1),
	})
	if err != nil {
		t.releaseObjects()
		return allocationf(err, "sampler of texture %q", desc.Label)
	}

	if desc.Format.IsDepth() {
		return t.clearDepth(b)
	}
	if img != nil {
		for i, level := range img.Levels {
			if i >= desc.LevelCount() {
				break
			}
			w, h := desc.LevelSize(i)
			b.writeTexture(tex, t.staging(Region{Width: w, Height: h}, i, level))
		}
	}
	return nil
}

// clearDepth fills a new depth texture with 1.0 so a LESS test passes on first use.
func (t *wgpuTexture) clearDepth(b *wgpuDeviceBackend) error {
	encoder, err := b.commandEncoder()
	if err != nil {
		return allocationf(err, "clear of depth texture %q", t.desc.Label)
	}
	attachment := &wgpu.RenderPassDepthStencilAttachment{
		View:            t.levelViews[0],
		DepthLoadOp:     wgpu.LoadOpClear,
		DepthStoreOp:    wgpu.StoreOpStore,
		DepthClearValue: 1.0,
	}
	if t.desc.Format == TextureFormatDepth24PlusStencil8 {
		attachment.StencilLoadOp = wgpu.LoadOpClear
		attachment.StencilStoreOp = wgpu.StoreOpStore
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:                  t.desc.Label + " Clear",
		DepthStencilAttachment: attachment,
	})
	pass.End()
	pass.Release()
	return nil
}

// staging wraps tightly packed region bytes for upload.
func (t *wgpuTexture) staging(r Region, level int, pixels []byte) common.TextureStagingData {
	return common.TextureStagingData{
		Pixels:      pixels,
		Width:       uint32(r.Width),
		Height:      uint32(r.Height),
		BytesPerRow: uint32(r.Width * t.desc.Format.BytesPerTexel()),
		OriginX:     uint32(r.X),
		OriginY:     uint32(r.Y),
		MipLevel:    uint32(level),
	}
}

func (t *wgpuTexture) Map(mipLevel int) ([]byte, error) {
	return t.mapLevel(nil, mipLevel)
}

func (t *wgpuTexture) MapRegion(region Region, mipLevel int) ([]byte, error) {
	return t.mapLevel(&region, mipLevel)
}

func (t *wgpuTexture) mapLevel(region *Region, mipLevel int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.desc.Format.IsDepth() {
		return nil, allocationf(nil, "depth texture %q cannot be read back", t.desc.Label)
	}
	r := t.beginMap(region, mipLevel)
	data, err := t.backend().readTexture(t.texture, mipLevel, r, t.desc.Format.BytesPerTexel())
	if err != nil {
		t.dropMapping()
		return nil, err
	}
	t.mapStaging = data
	return data, nil
}

func (t *wgpuTexture) Unmap() {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, level, staging := t.endMap()
	t.backend().writeTexture(t.texture, t.staging(r, level, staging))
}

func (t *wgpuTexture) Bind(unit int) {
	t.bindUnit(t, unit)
	mustDevice(t.handle).record(Command{Kind: CommandBindTexture, Unit: unit, Texture: t.desc.Label})
}

func (t *wgpuTexture) Unbind(unit int) {
	t.unbindUnit(t, unit)
}

// GenerateMipmap reads each level back, box filters it on the CPU and uploads the next.
func (t *wgpuTexture) GenerateMipmap() {
	t.mu.Lock()
	defer t.mu.Unlock()

	precondition(!t.released, "mipmap on released texture %q", t.desc.Label)
	t.dropMapping()
	if t.desc.LevelCount() == 1 {
		return
	}
	b := t.backend()
	bpt := t.desc.Format.BytesPerTexel()
	sw, sh := t.desc.LevelSize(0)
	src, err := b.readTexture(t.texture, 0, Region{Width: sw, Height: sh}, bpt)
	if err != nil {
		common.Logger().Error("mipmap readback failed", "texture", t.desc.Label, "error", err)
		return
	}
	for i := 1; i < t.desc.LevelCount(); i++ {
		dw, dh := t.desc.LevelSize(i)
		dst := boxDownsample(t.desc.Format, src, sw, sh, dw, dh)
		b.writeTexture(t.texture, t.staging(Region{Width: dw, Height: dh}, i, dst))
		src, sw, sh = dst, dw, dh
	}
}

func (t *wgpuTexture) RenderTarget() (Framebuffer, error) {
	return t.cachedRenderTarget(t)
}

// levelView returns the single-level view of mipLevel.
func (t *wgpuTexture) levelView(mipLevel int) *wgpu.TextureView {
	t.mu.Lock()
	defer t.mu.Unlock()

	precondition(!t.released, "use of released texture %q", t.desc.Label)
	return t.levelViews[mipLevel]
}

// sampling returns the full-chain view and the sampler.
func (t *wgpuTexture) sampling() (*wgpu.TextureView, *wgpu.Sampler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	precondition(!t.released, "use of released texture %q", t.desc.Label)
	return t.sampledView, t.sampler
}

func (t *wgpuTexture) Release() {
	if t.releaseBase(t) {
		t.mu.Lock()
		t.releaseObjects()
		t.mu.Unlock()
	}
}

// releaseObjects hands every wgpu object to the device for release after the next
// submit, or releases them now when the device is gone.
func (t *wgpuTexture) releaseObjects() {
	var objects []releaser
	if t.sampler != nil {
		objects = append(objects, t.sampler)
	}
	if t.sampledView != nil {
		objects = append(objects, t.sampledView)
	}
	for _, v := range t.levelViews {
		objects = append(objects, v)
	}
	if t.texture != nil {
		objects = append(objects, t.texture)
	}
	t.sampler, t.sampledView, t.levelViews, t.texture = nil, nil, nil, nil

	d, ok := lookupDevice(t.handle)
	for _, o := range objects {
		if ok {
			d.wgpuBackend().deferRelease(o)
			continue
		}
		o.Release()
	}
}
