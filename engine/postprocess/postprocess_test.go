package postprocess

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
)

const (
	frameW = 64
	frameH = 48
)

func newSoftwareDevice(t *testing.T) graphics.Device {
	t.Helper()
	d, err := graphics.NewDevice(graphics.DeviceDescriptor{Backend: graphics.BackendTypeSoftware, Label: t.Name()},
		graphics.WithSize(frameW, frameH), graphics.WithCommandLog())
	require.NoError(t, err)
	t.Cleanup(d.Destroy)
	return d
}

// newSource creates an RGBA16Float texture filled with c.
func newSource(t *testing.T, d graphics.Device, w, h int, c [4]float32) graphics.Texture {
	t.Helper()
	tex, err := d.CreateTexture(graphics.TextureDescriptor{
		Label:  "source",
		Width:  w,
		Height: h,
		Format: graphics.TextureFormatRGBA16Float,
		WrapS:  graphics.WrapModeClampToEdge,
		WrapT:  graphics.WrapModeClampToEdge,
	})
	require.NoError(t, err)
	data, err := tex.Map(0)
	require.NoError(t, err)
	for i := 0; i < len(data); i += 8 {
		for ch := range 4 {
			binary.LittleEndian.PutUint16(data[i+ch*2:], float16.Fromfloat32(c[ch]).Bits())
		}
	}
	tex.Unmap()
	return tex
}

func newReadyPipeline(t *testing.T, d graphics.Device, options ...PipelineBuilderOption) Pipeline {
	t.Helper()
	p := NewPipeline(options...)
	require.NoError(t, p.Initialize(d))
	require.NoError(t, p.FramesizeChange(frameW, frameH))
	t.Cleanup(p.Shutdown)
	return p
}

func TestPyramidSizes(t *testing.T) {
	cases := []struct {
		w, h int
		want []LevelSize
	}{
		{1024, 768, []LevelSize{{1024, 768}, {64, 48}, {4, 3}, {1, 1}}},
		{1920, 1080, []LevelSize{{1920, 1080}, {120, 68}, {8, 5}, {1, 1}}},
		{300, 20, []LevelSize{{300, 20}, {19, 2}, {2, 1}}},
		{17, 1, []LevelSize{{17, 1}}},
		{1, 1, []LevelSize{{1, 1}}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PyramidSizes(tc.w, tc.h), "%dx%d", tc.w, tc.h)
	}
	assert.Nil(t, PyramidSizes(0, 10))
}

func TestPyramidSizes_Sweep(t *testing.T) {
	var dims []int
	for v := 1; v <= 300; v += 7 {
		dims = append(dims, v)
	}
	dims = append(dims, 2, 15, 16, 17, 255, 256, 257, 4096, 16384)

	for _, w := range dims {
		for _, h := range dims {
			sizes := PyramidSizes(w, h)
			require.NotEmpty(t, sizes, "%dx%d", w, h)
			assert.Equal(t, LevelSize{w, h}, sizes[0], "%dx%d", w, h)

			// Same recurrence, counted independently.
			count := 1
			for cw, ch := w, h; cw > 1 && ch > 1; count++ {
				cw, ch = (cw+TileSize-1)/TileSize, (ch+TileSize-1)/TileSize
			}
			assert.Len(t, sizes, count, "%dx%d", w, h)

			for i := 1; i < len(sizes); i++ {
				prev, cur := sizes[i-1], sizes[i]
				assert.Less(t, cur.Width, prev.Width, "%dx%d level %d", w, h, i)
				assert.Less(t, cur.Height, prev.Height, "%dx%d level %d", w, h, i)
				assert.Greater(t, prev.Width, 1, "%dx%d level %d", w, h, i)
				assert.Greater(t, prev.Height, 1, "%dx%d level %d", w, h, i)
			}
			last := sizes[len(sizes)-1]
			assert.True(t, last.Width == 1 || last.Height == 1, "%dx%d ends at %v", w, h, last)
		}
	}
}

func TestFramesizeChange_BuildsTargets(t *testing.T) {
	d := newSoftwareDevice(t)
	p := NewPipeline()
	require.NoError(t, p.Initialize(d))
	defer p.Shutdown()

	require.NoError(t, p.FramesizeChange(1024, 768))
	pyramid := p.Pyramid()
	require.Len(t, pyramid, 4)
	for i, want := range PyramidSizes(1024, 768) {
		desc := pyramid[i].Descriptor()
		assert.Equal(t, want, LevelSize{desc.Width, desc.Height})
		assert.Equal(t, graphics.TextureFormatRGBA16Float, desc.Format)
	}

	require.NoError(t, p.FramesizeChange(33, 17))
	bloom, scratch := p.BloomTexture().Descriptor(), p.ScratchTexture().Descriptor()
	assert.Equal(t, 17, bloom.Width)
	assert.Equal(t, 9, bloom.Height)
	assert.Equal(t, bloom.Width, scratch.Width)
	assert.Equal(t, bloom.Height, scratch.Height)
	assert.Equal(t, graphics.WrapModeClampToEdge, bloom.WrapS)
	assert.Equal(t, graphics.WrapModeClampToEdge, scratch.WrapT)

	w, h := p.Size()
	assert.Equal(t, 33, w)
	assert.Equal(t, 17, h)
}

func TestFramesizeChange_InvalidSize(t *testing.T) {
	d := newSoftwareDevice(t)
	p := NewPipeline()
	require.NoError(t, p.Initialize(d))
	defer p.Shutdown()

	assert.ErrorIs(t, p.FramesizeChange(0, 10), graphics.ErrDescriptorInvalid)
	assert.ErrorIs(t, p.FramesizeChange(10, -1), graphics.ErrDescriptorInvalid)
}

func TestLifecyclePreconditions(t *testing.T) {
	d := newSoftwareDevice(t)
	source := newSource(t, d, frameW, frameH, [4]float32{1, 1, 1, 1})

	p := NewPipeline()
	assert.Panics(t, func() { p.Render(source) })
	assert.Panics(t, func() { _ = p.FramesizeChange(frameW, frameH) })

	require.NoError(t, p.Initialize(d))
	assert.True(t, p.Initialized())
	assert.Panics(t, func() { _ = p.Initialize(d) })

	// Initialized but never sized.
	assert.Panics(t, func() { p.Render(source) })

	// A 1x1 frame has a single level.
	require.NoError(t, p.FramesizeChange(1, 1))
	assert.Panics(t, func() { p.Render(source) })

	p.Shutdown()
	assert.False(t, p.Initialized())
	assert.Empty(t, p.Pyramid())
	assert.Nil(t, p.BloomTexture())
	require.NoError(t, p.Initialize(d))
	p.Shutdown()
}

func TestUpdate_ExposureReachesComposite(t *testing.T) {
	d := newSoftwareDevice(t)
	source := newSource(t, d, frameW, frameH, [4]float32{0.5, 0.5, 0.5, 1})
	p := newReadyPipeline(t, d)

	p.Update(-16)
	assert.Equal(t, float32(-16), p.Exposure())
	d.ClearCommands()
	p.Render(source)

	var exposure []float32
	for _, c := range d.Commands() {
		if c.Kind == graphics.CommandSetUniform && c.Name == uniformExposure {
			assert.Equal(t, "postprocess blit", c.Program)
			exposure = append(exposure, c.Value)
		}
	}
	assert.Equal(t, []float32{-16}, exposure)
	assert.Equal(t, float32(-16), p.AppliedExposure())
}

func TestRender_CommandOrder(t *testing.T) {
	d := newSoftwareDevice(t)
	source := newSource(t, d, frameW, frameH, [4]float32{2, 2, 2, 1})
	p := newReadyPipeline(t, d, WithBlurIterations(3))

	d.ClearCommands()
	p.Render(source)
	cmds := d.Commands()
	require.NotEmpty(t, cmds)

	index := func(from int, match func(graphics.Command) bool) int {
		for i := from; i < len(cmds); i++ {
			if match(cmds[i]) {
				return i
			}
		}
		return -1
	}

	extract := index(0, func(c graphics.Command) bool {
		return c.Kind == graphics.CommandDispatch && c.Program == "postprocess extract"
	})
	require.GreaterOrEqual(t, extract, 0)
	assert.Equal(t, 4, cmds[extract].GroupsX)
	assert.Equal(t, 3, cmds[extract].GroupsY)

	bloom := index(extract, func(c graphics.Command) bool {
		return c.Kind == graphics.CommandDraw && c.Program == "postprocess bloom"
	})
	require.Greater(t, bloom, extract)
	assert.Equal(t, "postprocess bloom Render Target", cmds[bloom].Target)

	var blurTargets []string
	for _, c := range cmds[bloom+1:] {
		if c.Kind == graphics.CommandDraw && c.Program != "postprocess blit" {
			blurTargets = append(blurTargets, c.Program+" -> "+c.Target)
		}
	}
	pair := []string{
		"postprocess blur vertical -> postprocess scratch Render Target",
		"postprocess blur horizontal -> postprocess bloom Render Target",
	}
	assert.Equal(t, append(append(append([]string{}, pair...), pair...), pair...), blurTargets)

	restore := index(bloom, func(c graphics.Command) bool {
		return c.Kind == graphics.CommandSetFramebuffer && c.Target == "default"
	})
	require.Greater(t, restore, bloom)
	assert.Equal(t, graphics.CommandSetViewport, cmds[restore+1].Kind)
	assert.Equal(t, graphics.Viewport{Width: frameW, Height: frameH}, cmds[restore+1].Viewport)
	assert.Equal(t, graphics.CommandSetDepthTest, cmds[restore+2].Kind)
	assert.False(t, cmds[restore+2].Enabled)

	blit := index(restore, func(c graphics.Command) bool {
		return c.Kind == graphics.CommandDraw && c.Program == "postprocess blit"
	})
	require.Greater(t, blit, restore)
	assert.Equal(t, "default", cmds[blit].Target)

	last := cmds[len(cmds)-1]
	assert.Equal(t, graphics.CommandSetDepthTest, last.Kind)
	assert.True(t, last.Enabled)
	assert.True(t, d.DepthTest())
}

func TestRender_LeavesDefaultDepthUntouched(t *testing.T) {
	d := newSoftwareDevice(t)
	source := newSource(t, d, frameW, frameH, [4]float32{4, 3, 2, 1})
	p := newReadyPipeline(t, d)

	p.Render(source)

	depth := d.DefaultDepthTarget()
	data, err := depth.Map(0)
	require.NoError(t, err)
	defer depth.Unmap()
	for i := 0; i < len(data); i += 4 {
		require.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(data[i:])), "texel %d", i/4)
	}
}

func TestRender_ExposureDarkensOutput(t *testing.T) {
	d := newSoftwareDevice(t)
	source := newSource(t, d, frameW, frameH, [4]float32{0.5, 0.5, 0.5, 1})
	p := newReadyPipeline(t, d)

	centre := func() byte {
		target := d.DefaultTarget()
		data, err := target.MapRegion(graphics.Region{X: frameW / 2, Y: frameH / 2, Width: 1, Height: 1}, 0)
		require.NoError(t, err)
		defer target.Unmap()
		return data[0]
	}

	p.Render(source)
	lit := centre()
	assert.Greater(t, lit, byte(150))
	assert.Less(t, lit, byte(255))

	p.Update(-16)
	p.Render(source)
	assert.LessOrEqual(t, centre(), byte(2))
}

func TestRender_BloomFollowsThreshold(t *testing.T) {
	d := newSoftwareDevice(t)

	energy := func(p Pipeline) float32 {
		bloom := p.BloomTexture()
		data, err := bloom.Map(0)
		require.NoError(t, err)
		defer bloom.Unmap()
		return averageChannel(data, 0)
	}

	dim := newSource(t, d, frameW, frameH, [4]float32{0.5, 0.5, 0.5, 1})
	p := newReadyPipeline(t, d, WithBloomThreshold(1))
	p.Render(dim)
	assert.InDelta(t, 0, energy(p), 1e-4)

	bright := newSource(t, d, frameW, frameH, [4]float32{3, 3, 3, 1})
	p.Render(bright)
	assert.InDelta(t, 2, energy(p), 0.05)
}

func TestRender_AutoExposure(t *testing.T) {
	d := newSoftwareDevice(t)
	source := newSource(t, d, frameW, frameH, [4]float32{0.72, 0.72, 0.72, 1})
	p := newReadyPipeline(t, d, WithAutoExposure(true), WithExposure(5))

	d.ClearCommands()
	p.Render(source)

	assert.Equal(t, float32(5), p.Exposure())
	assert.InDelta(t, -2, p.AppliedExposure(), 0.01)

	downsamples := 0
	for _, c := range d.Commands() {
		if c.Kind == graphics.CommandDispatch && c.Program == "postprocess downsample" {
			downsamples++
		}
		if c.Kind == graphics.CommandSetUniform && c.Name == uniformExposure {
			assert.InDelta(t, -2, c.Value, 0.01)
		}
	}
	assert.Equal(t, len(PyramidSizes(frameW, frameH))-1, downsamples)
}

func TestSetAutoExposure(t *testing.T) {
	d := newSoftwareDevice(t)
	source := newSource(t, d, frameW, frameH, [4]float32{0.72, 0.72, 0.72, 1})
	p := newReadyPipeline(t, d, WithExposure(1))
	assert.False(t, p.AutoExposure())

	p.SetAutoExposure(true)
	p.Render(source)
	assert.InDelta(t, -2, p.AppliedExposure(), 0.01)

	p.SetAutoExposure(false)
	p.Render(source)
	assert.Equal(t, float32(1), p.AppliedExposure())
}

func TestAverageLogLuminance(t *testing.T) {
	texels := func(pairs ...[2]float32) []byte {
		data := make([]byte, 8*len(pairs))
		for i, wl := range pairs {
			binary.LittleEndian.PutUint16(data[i*8:], float16.Fromfloat32(wl[0]).Bits())
			binary.LittleEndian.PutUint16(data[i*8+6:], float16.Fromfloat32(wl[1]).Bits())
		}
		return data
	}
	assert.Equal(t, float32(-2), averageLogLuminance(texels([2]float32{1, -1}, [2]float32{1, -3})))
	assert.Equal(t, float32(-1.5), averageLogLuminance(texels([2]float32{1, -1}, [2]float32{0.25, -3})))
	assert.Equal(t, float32(0), averageLogLuminance(texels([2]float32{0, -3})))
	assert.Equal(t, float32(0), averageLogLuminance(nil))
}

func TestRender_AutoExposureWeightsPartialTiles(t *testing.T) {
	const w, h = 20, 16
	d, err := graphics.NewDevice(graphics.DeviceDescriptor{Backend: graphics.BackendTypeSoftware, Label: t.Name()},
		graphics.WithSize(w, h))
	require.NoError(t, err)
	t.Cleanup(d.Destroy)

	// Left 16 columns fill one full tile at luminance 1, the right 4 columns a
	// quarter tile at luminance 0.25.
	source := newSource(t, d, w, h, [4]float32{1, 1, 1, 1})
	data, err := source.Map(0)
	require.NoError(t, err)
	for y := range h {
		for x := 16; x < w; x++ {
			for ch := range 3 {
				binary.LittleEndian.PutUint16(data[(y*w+x)*8+ch*2:], float16.Fromfloat32(0.25).Bits())
			}
		}
	}
	source.Unmap()

	p := NewPipeline(WithAutoExposure(true))
	require.NoError(t, p.Initialize(d))
	require.NoError(t, p.FramesizeChange(w, h))
	t.Cleanup(p.Shutdown)
	require.Equal(t, []LevelSize{{w, h}, {2, 1}}, PyramidSizes(w, h))

	p.Render(source)

	// (16*16*0 + 4*16*-2) / (16*16 + 4*16) = -0.4
	assert.InDelta(t, math.Log2(0.18)+0.4, p.AppliedExposure(), 0.02)
}

// averageChannel averages one channel of tightly packed RGBA16Float texels.
func averageChannel(data []byte, ch int) float32 {
	var sum float32
	n := len(data) / 8
	for i := range n {
		sum += float16.Frombits(binary.LittleEndian.Uint16(data[i*8+ch*2:])).Float32()
	}
	return sum / float32(n)
}
