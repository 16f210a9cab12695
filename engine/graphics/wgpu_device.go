package graphics

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// releaser is any wgpu object with a Release method.
type releaser interface {
	Release()
}

// wgpuDeviceBackend owns the wgpu instance, adapter, device and queue. All passes are
// recorded into one lazily created command encoder and submitted on flush, so the
// submission order is the order the passes were issued in.
type wgpuDeviceBackend struct {
	mu      *sync.Mutex
	owner   *device
	gpu     *wgpu.Device
	queue   *wgpu.Queue
	encoder *wgpu.CommandEncoder

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	frameSurface  *wgpu.Texture
	frameView     *wgpu.TextureView

	color Texture
	depth Texture

	// pending holds transient objects referenced by recorded commands.
	pending []releaser
}

var _ deviceBackend = &wgpuDeviceBackend{}

func newWGPUDeviceBackend(d *device) (*wgpuDeviceBackend, error) {
	runtime.LockOSThread()
	b := &wgpuDeviceBackend{
		mu:          &sync.Mutex{},
		owner:       d,
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
	}
	if d.presentMode == PresentModeVSync {
		b.presentMode = wgpu.PresentModeFifo
	}
	if d.surfaceDescriptor != nil {
		b.surface = b.instance.CreateSurface(d.surfaceDescriptor)
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		b.releaseInstance()
		return nil, allocationf(err, "no wgpu adapter")
	}
	b.adapter = a

	gpu, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: common.Coalesce(d.desc.Label, "oxy-fx device"),
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		b.releaseInstance()
		return nil, allocationf(err, "wgpu device request failed")
	}
	b.gpu = gpu
	b.queue = gpu.GetQueue()

	common.Logger().Info("wgpu device acquired", "fallback", d.forceFallbackAdapter, "surface", b.surface != nil)
	return b, nil
}

func (b *wgpuDeviceBackend) resize(width, height int) error {
	var color Texture
	if b.surface != nil {
		b.mu.Lock()
		b.releaseFrame()
		capabilities := b.surface.GetCapabilities(b.adapter)
		b.surfaceFormat = capabilities.Formats[0]
		b.surface.Configure(b.adapter, b.gpu, &wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      b.surfaceFormat,
			Width:       uint32(width),
			Height:      uint32(height),
			PresentMode: b.presentMode,
			AlphaMode:   capabilities.AlphaModes[0],
		})
		b.mu.Unlock()
	} else {
		var err error
		color, err = b.owner.CreateTexture(TextureDescriptor{
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
	}

	depth, err := b.owner.CreateTexture(TextureDescriptor{
		Label:  "default depth",
		Width:  width,
		Height: height,
		Format: TextureFormatDepth24PlusStencil8,
		WrapS:  WrapModeClampToEdge,
		WrapT:  WrapModeClampToEdge,
		Filter: FilterModeNearest,
	})
	if err != nil {
		if color != nil {
			color.Release()
		}
		return err
	}

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

func (b *wgpuDeviceBackend) defaultTarget() Texture {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.color
}

func (b *wgpuDeviceBackend) defaultDepth() Texture {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.depth
}

// commandEncoder returns the open encoder, creating it when needed.
func (b *wgpuDeviceBackend) commandEncoder() (*wgpu.CommandEncoder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.encoder != nil {
		return b.encoder, nil
	}
	encoder, err := b.gpu.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	b.encoder = encoder
	return encoder, nil
}

// deferRelease releases r after the next submit.
func (b *wgpuDeviceBackend) deferRelease(r releaser) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, r)
}

func (b *wgpuDeviceBackend) flush() {
	b.mu.Lock()
	encoder := b.encoder
	b.encoder = nil
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if encoder != nil {
		commandBuffer, err := encoder.Finish(nil)
		if err != nil {
			common.Logger().Error("failed to finish command encoder", "error", err)
		} else {
			b.queue.Submit(commandBuffer)
			commandBuffer.Release()
		}
		encoder.Release()
	}
	for _, r := range pending {
		r.Release()
	}
}

// surfaceView acquires the current surface image for this frame.
func (b *wgpuDeviceBackend) surfaceView() (*wgpu.TextureView, wgpu.TextureFormat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil {
		return nil, 0, fmt.Errorf("device has no surface")
	}
	if b.frameView != nil {
		return b.frameView, b.surfaceFormat, nil
	}
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, 0, err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, 0, err
	}
	b.frameSurface = surfaceTexture
	b.frameView = view
	return view, b.surfaceFormat, nil
}

// releaseFrame drops the acquired surface image. Callers hold b.mu.
func (b *wgpuDeviceBackend) releaseFrame() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuDeviceBackend) present() {
	b.flush()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil || b.frameSurface == nil {
		return
	}
	b.surface.Present()
	b.releaseFrame()
}

// readTexture copies a region of one level back to the CPU as tightly packed rows.
func (b *wgpuDeviceBackend) readTexture(tex *wgpu.Texture, level int, r Region, bpt int) ([]byte, error) {
	b.flush()

	rowBytes := r.Width * bpt
	alignedRow := common.AlignUp(rowBytes, 256)
	size := uint64(alignedRow * r.Height)
	staging, err := b.gpu.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Texture Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, allocationf(err, "readback buffer of %d bytes", size)
	}
	defer staging.Release()

	encoder, err := b.gpu.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: uint32(level),
			Origin:   wgpu.Origin3D{X: uint32(r.X), Y: uint32(r.Y)},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: staging,
			Layout: wgpu.TextureDataLayout{
				BytesPerRow:  uint32(alignedRow),
				RowsPerImage: uint32(r.Height),
			},
		},
		&wgpu.Extent3D{Width: uint32(r.Width), Height: uint32(r.Height), DepthOrArrayLayers: 1},
	)

	mapped, err := b.submitAndMap(encoder, staging, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, rowBytes*r.Height)
	for y := 0; y < r.Height; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], mapped[y*alignedRow:y*alignedRow+rowBytes])
	}
	staging.Unmap()
	return out, nil
}

// readBuffer copies size bytes at offset of buf back to the CPU. Both must be multiples of 4.
func (b *wgpuDeviceBackend) readBuffer(buf *wgpu.Buffer, offset, size uint64) ([]byte, error) {
	b.flush()

	staging, err := b.gpu.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Buffer Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, allocationf(err, "readback buffer of %d bytes", size)
	}
	defer staging.Release()

	encoder, err := b.gpu.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()
	encoder.CopyBufferToBuffer(buf, offset, staging, 0, size)

	mapped, err := b.submitAndMap(encoder, staging, size)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), mapped...)
	staging.Unmap()
	return out, nil
}

// submitAndMap submits encoder, then blocks until staging is mapped for reading.
func (b *wgpuDeviceBackend) submitAndMap(encoder *wgpu.CommandEncoder, staging *wgpu.Buffer, size uint64) ([]byte, error) {
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	mapped := false
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		mapped = s == wgpu.BufferMapAsyncStatusSuccess
	})
	b.gpu.Poll(true, nil)
	if !mapped {
		return nil, fmt.Errorf("readback buffer could not be mapped")
	}
	return staging.GetMappedRange(0, uint(size)), nil
}

// writeTexture uploads tightly packed rows into one level.
func (b *wgpuDeviceBackend) writeTexture(tex *wgpu.Texture, staging common.TextureStagingData) {
	b.flush()
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: staging.MipLevel,
			Origin:   wgpu.Origin3D{X: staging.OriginX, Y: staging.OriginY},
			Aspect:   wgpu.TextureAspectAll,
		},
		staging.Pixels,
		&wgpu.TextureDataLayout{
			BytesPerRow:  staging.BytesPerRow,
			RowsPerImage: staging.Height,
		},
		&wgpu.Extent3D{Width: staging.Width, Height: staging.Height, DepthOrArrayLayers: 1},
	)
}

// writeBuffer uploads data at offset. Both must be multiples of 4.
func (b *wgpuDeviceBackend) writeBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	b.flush()
	b.queue.WriteBuffer(buf, offset, data)
}

func (b *wgpuDeviceBackend) release() {
	b.flush()

	b.mu.Lock()
	color, depth := b.color, b.depth
	b.color, b.depth = nil, nil
	b.releaseFrame()
	b.mu.Unlock()

	if color != nil {
		color.Release()
	}
	if depth != nil {
		depth.Release()
	}
	b.flush()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.gpu != nil {
		b.gpu.Release()
		b.gpu = nil
	}
	b.releaseInstance()
}

// releaseInstance drops the adapter, surface and instance.
func (b *wgpuDeviceBackend) releaseInstance() {
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
