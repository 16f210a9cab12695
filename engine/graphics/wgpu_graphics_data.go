package graphics

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
)

var wgpuBufferUsages = map[GraphicsDataType]wgpu.BufferUsage{
	GraphicsDataTypeUniform: wgpu.BufferUsageUniform,
	GraphicsDataTypeStorage: wgpu.BufferUsageStorage,
	GraphicsDataTypeVertex:  wgpu.BufferUsageVertex,
	GraphicsDataTypeIndex:   wgpu.BufferUsageIndex,
}

// wgpuGraphicsData is a GPU buffer. Its size is rounded up to 4 bytes for queue writes.
type wgpuGraphicsData struct {
	graphicsDataBase
	buffer *wgpu.Buffer
	size   int
}

var _ graphicsDataResource = &wgpuGraphicsData{}

func (g *wgpuGraphicsData) backend() *wgpuDeviceBackend {
	return mustDevice(g.handle).wgpuBackend()
}

func (g *wgpuGraphicsData) create(desc GraphicsDataDescriptor) error {
	if err := g.initBase(desc); err != nil {
		return err
	}
	b := g.backend()
	g.size = common.AlignUp(desc.Size, 4)
	usage := wgpuBufferUsages[desc.Type] | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

	var err error
	if len(desc.Data) > 0 {
		contents := make([]byte, g.size)
		copy(contents, desc.Data)
		g.buffer, err = b.gpu.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: contents,
			Usage:    usage,
		})
	} else {
		g.buffer, err = b.gpu.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  uint64(g.size),
			Usage: usage,
		})
	}
	if err != nil {
		return allocationf(err, "graphics data %q of %d bytes", desc.Label, g.size)
	}
	return nil
}

// alignedRange widens [offset, offset+size) to 4-byte boundaries.
func alignedRange(offset, size int) (int, int) {
	start := offset &^ 3
	end := common.AlignUp(offset+size, 4)
	return start, end - start
}

func (g *wgpuGraphicsData) Map(offset, size int) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.beginMap(offset, size)
	start, length := alignedRange(offset, size)
	data, err := g.backend().readBuffer(g.buffer, uint64(start), uint64(length))
	if err != nil {
		g.mapped = false
		return nil, err
	}
	g.mapStaging = data[offset-start : offset-start+size]
	return g.mapStaging, nil
}

func (g *wgpuGraphicsData) Unmap() {
	g.mu.Lock()
	defer g.mu.Unlock()

	offset, staging := g.endMap()
	if g.desc.Usage&GraphicsUsageWrite == 0 {
		return
	}
	if err := g.write(offset, staging); err != nil {
		common.Logger().Error("graphics data write-back failed", "label", g.desc.Label, "error", err)
	}
}

func (g *wgpuGraphicsData) Update(offset int, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkUpdate(offset, data); err != nil {
		return err
	}
	return g.write(offset, data)
}

// write uploads data, merging it into the surrounding bytes when the range is not 4-byte aligned.
func (g *wgpuGraphicsData) write(offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	b := g.backend()
	start, length := alignedRange(offset, len(data))
	if start == offset && length == len(data) {
		b.writeBuffer(g.buffer, uint64(offset), data)
		return nil
	}
	merged, err := b.readBuffer(g.buffer, uint64(start), uint64(length))
	if err != nil {
		return err
	}
	copy(merged[offset-start:], data)
	b.writeBuffer(g.buffer, uint64(start), merged)
	return nil
}

// gpuBuffer returns the underlying buffer for bind groups.
func (g *wgpuGraphicsData) gpuBuffer() *wgpu.Buffer {
	g.mu.Lock()
	defer g.mu.Unlock()

	precondition(!g.released, "use of released graphics data %q", g.desc.Label)
	return g.buffer
}

func (g *wgpuGraphicsData) Release() {
	if !g.releaseBase() {
		return
	}
	g.mu.Lock()
	buf := g.buffer
	g.buffer = nil
	g.mu.Unlock()

	if d, ok := lookupDevice(g.handle); ok {
		d.wgpuBackend().deferRelease(buf)
		return
	}
	buf.Release()
}
