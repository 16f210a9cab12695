package graphics

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storeSource = `
struct Params {
    uScale: f32,
}

@group(0) @binding(0) var<uniform> params: Params;
//@oxy:image 0 1 uSource read
//@oxy:image 0 2 uTarget write rgba16float

@compute @workgroup_size(4, 2)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    let c = textureLoad(uSource, vec2<i32>(id.xy), 0);
    textureStore(uTarget, vec2<i32>(id.xy), c * params.uScale);
}
`

func mapTexels(t *testing.T, tex Texture) [][4]float32 {
	t.Helper()
	data, err := tex.Map(0)
	require.NoError(t, err)
	defer tex.Unmap()
	out := make([][4]float32, len(data)/16)
	for i := range out {
		out[i] = readRGBA32F(data[i*16:])
	}
	return out
}

func TestProgramDescriptor_Validate(t *testing.T) {
	d := newTestDevice(t)

	_, err := d.CreateProgram(ProgramDescriptor{Label: "empty"})
	assert.ErrorIs(t, err, ErrDescriptorInvalid)

	_, err = d.CreateProgram(ProgramDescriptor{
		Label:    "both",
		Compute:  func(*Invocation) {},
		Fragment: func(*Invocation) [4]float32 { return [4]float32{} },
	})
	assert.ErrorIs(t, err, ErrDescriptorInvalid)

	_, err = d.CreateProgram(ProgramDescriptor{Label: "source only", Source: storeSource})
	assert.ErrorIs(t, err, ErrDescriptorInvalid)

	_, err = d.CreateProgram(ProgramDescriptor{
		Label:    "stage mismatch",
		Source:   storeSource,
		Fragment: func(*Invocation) [4]float32 { return [4]float32{} },
	})
	assert.ErrorIs(t, err, ErrDescriptorInvalid)

	_, err = d.CreateProgram(ProgramDescriptor{Label: "broken", Source: "//@oxy:include nothing", Compute: func(*Invocation) {}})
	assert.ErrorIs(t, err, ErrDescriptorInvalid)
}

func TestProgram_DispatchTiled(t *testing.T) {
	d := newTestDevice(t)
	target, err := d.CreateTexture(colorDescriptor("grid", 5, 3))
	require.NoError(t, err)

	p, err := d.CreateProgram(ProgramDescriptor{
		Label: "coords",
		Compute: func(inv *Invocation) {
			inv.Store("out", inv.GlobalX, inv.GlobalY, [4]float32{float32(inv.GlobalX), float32(inv.GlobalY), float32(inv.LocalX), float32(inv.GroupX)})
		},
	})
	require.NoError(t, err)
	assert.True(t, p.IsCompute())

	d.ClearCommands()
	p.Bind()
	p.BindImage("out", target, 0, 0, false, 0, AccessWriteOnly)
	p.Dispatch2DTiled(5, 3, 2, 2)

	texels := mapTexels(t, target)
	assert.Equal(t, [4]float32{4, 2, 0, 2}, texels[2*5+4])
	assert.Equal(t, [4]float32{3, 1, 1, 1}, texels[1*5+3])

	cmds := d.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, CommandBindProgram, cmds[0].Kind)
	assert.Equal(t, CommandBindImage, cmds[1].Kind)
	assert.Equal(t, AccessWriteOnly, cmds[1].Access)
	assert.Equal(t, CommandDispatch, cmds[2].Kind)
	assert.Equal(t, 3, cmds[2].GroupsX)
	assert.Equal(t, 2, cmds[2].GroupsY)
}

func TestProgram_ReflectedCompute(t *testing.T) {
	d := newTestDevice(t)
	src, err := d.CreateTexture(colorDescriptor("src", 6, 3))
	require.NoError(t, err)
	data, err := src.Map(0)
	require.NoError(t, err)
	for i := 0; i < 18; i++ {
		putRGBA32F(data[i*16:], [4]float32{float32(i), 1, 0, 1})
	}
	src.Unmap()
	dstDesc := colorDescriptor("dst", 6, 3)
	dstDesc.Format = TextureFormatRGBA16Float
	dst, err := d.CreateTexture(dstDesc)
	require.NoError(t, err)

	p, err := d.CreateProgram(ProgramDescriptor{
		Label:  "scale",
		Source: storeSource,
		Compute: func(inv *Invocation) {
			c := inv.Load("uSource", inv.GlobalX, inv.GlobalY)
			s := inv.Uniform("uScale")
			inv.Store("uTarget", inv.GlobalX, inv.GlobalY, [4]float32{c[0] * s, c[1] * s, c[2] * s, c[3]})
		},
	})
	require.NoError(t, err)
	wx, wy := p.WorkgroupSize()
	assert.Equal(t, 4, wx)
	assert.Equal(t, 2, wy)

	p.Bind()
	assert.Panics(t, func() { p.SetUniform("uMissing", 1) })
	assert.Panics(t, func() { p.BindImage("uSource", src, 0, 0, false, 0, AccessWriteOnly) })
	assert.Panics(t, func() { p.BindImage("uTarget", dst, 1, 0, false, 0, AccessReadOnly) })
	assert.Panics(t, func() { p.BindTexture("uTarget", dst, 0) })

	p.SetUniform("uScale", 2)
	p.BindImage("uSource", src, 0, 0, false, 0, AccessReadOnly)
	p.BindImage("uTarget", dst, 1, 0, false, 0, AccessWriteOnly)
	p.Dispatch2D(6, 3)

	out, err := dst.Map(0)
	require.NoError(t, err)
	defer dst.Unmap()
	for i := 0; i < 18; i++ {
		r := decodeTexel(TextureFormatRGBA16Float, out[i*8:])
		assert.Equal(t, float32(2*i), r[0], "texel %d", i)
		assert.Equal(t, float32(2), r[1], "texel %d", i)
	}
}

func TestProgram_BindImagePreconditions(t *testing.T) {
	d := newTestDevice(t)
	p, err := d.CreateProgram(ProgramDescriptor{Label: "k", Compute: func(*Invocation) {}})
	require.NoError(t, err)
	srgb, err := d.CreateTexture(TextureDescriptor{Label: "srgb", Width: 2, Height: 2, Format: TextureFormatRGBA8UnormSrgb})
	require.NoError(t, err)
	depthDesc := colorDescriptor("depth", 2, 2)
	depthDesc.Format = TextureFormatDepth32Float
	depth, err := d.CreateTexture(depthDesc)
	require.NoError(t, err)

	assert.Panics(t, func() { p.BindImage("img", nil, 0, 0, false, 0, AccessReadOnly) })
	assert.Panics(t, func() { p.BindImage("img", srgb, 0, 1, false, 0, AccessReadOnly) })
	assert.Panics(t, func() { p.BindImage("img", srgb, 0, 0, false, 1, AccessReadOnly) })
	assert.Panics(t, func() { p.BindImage("img", srgb, 0, 0, false, 0, AccessWriteOnly) })
	assert.Panics(t, func() { p.BindImage("img", depth, 0, 0, false, 0, AccessReadOnly) })
	assert.Panics(t, func() { p.BindImage("img", srgb, -1, 0, false, 0, AccessReadOnly) })
	assert.NotPanics(t, func() { p.BindImage("img", srgb, 0, 0, false, 0, AccessReadOnly) })
	assert.Panics(t, func() { p.BindTexture("tex", nil, 0) })
}

func TestProgram_DrawViewport(t *testing.T) {
	d := newTestDevice(t)
	target, err := d.CreateTexture(colorDescriptor("canvas", 4, 4))
	require.NoError(t, err)
	fb, err := target.RenderTarget()
	require.NoError(t, err)

	p, err := d.CreateProgram(ProgramDescriptor{
		Label: "uv",
		Fragment: func(inv *Invocation) [4]float32 {
			return [4]float32{inv.U, inv.V, float32(inv.FragX), 1}
		},
	})
	require.NoError(t, err)
	assert.False(t, p.IsCompute())

	fb.Bind()
	d.SetViewport(Viewport{X: 1, Y: 1, Width: 2, Height: 2})
	p.Bind()
	p.Draw(3)

	texels := mapTexels(t, target)
	assert.Equal(t, [4]float32{}, texels[0])
	assert.Equal(t, [4]float32{}, texels[3*4+3])
	assert.Equal(t, [4]float32{0.25, 0.25, 1, 1}, texels[1*4+1])
	assert.Equal(t, [4]float32{0.75, 0.75, 2, 1}, texels[2*4+2])

	// A viewport reaching past the target is clipped.
	d.SetViewport(Viewport{X: 2, Y: 0, Width: 8, Height: 1})
	p.Draw(3)
	texels = mapTexels(t, target)
	assert.InDelta(t, 0.0625, texels[2][0], 1e-6)
	assert.InDelta(t, 0.1875, texels[3][0], 1e-6)
}

func TestProgram_DrawDepthTest(t *testing.T) {
	d := newTestDevice(t)
	color, err := d.CreateTexture(colorDescriptor("color", 2, 2))
	require.NoError(t, err)
	depthDesc := colorDescriptor("depth", 2, 2)
	depthDesc.Format = TextureFormatDepth32Float
	depth, err := d.CreateTexture(depthDesc)
	require.NoError(t, err)
	fb, err := d.CreateFramebuffer(FramebufferDescriptor{Label: "fb"}.AddAttachment(color, ColorSlot(0)).AddAttachment(depth, DepthSlot))
	require.NoError(t, err)

	value := float32(1)
	p, err := d.CreateProgram(ProgramDescriptor{
		Label:    "flat",
		Fragment: func(*Invocation) [4]float32 { return [4]float32{value, 0, 0, 1} },
	})
	require.NoError(t, err)

	data, err := depth.Map(0)
	require.NoError(t, err)
	for i := 0; i < len(data); i += 4 {
		binary.LittleEndian.PutUint32(data[i:], math.Float32bits(1))
	}
	depth.Unmap()

	fb.Bind()
	d.SetViewport(Viewport{Width: 2, Height: 2})
	p.Bind()
	p.Draw(3)
	assert.Equal(t, float32(1), mapTexels(t, color)[0][0])

	depthAt := func() float32 {
		data, err := depth.Map(0)
		require.NoError(t, err)
		defer depth.Unmap()
		return math.Float32frombits(binary.LittleEndian.Uint32(data))
	}
	assert.Equal(t, float32(0.5), depthAt())

	// Equal depth fails LESS.
	value = 2
	p.Draw(3)
	assert.Equal(t, float32(1), mapTexels(t, color)[0][0])

	d.SetDepthTest(false)
	p.Draw(3)
	assert.Equal(t, float32(2), mapTexels(t, color)[0][0])
	assert.Equal(t, float32(0.5), depthAt())
}

func TestProgram_DrawPreconditions(t *testing.T) {
	d := newTestDevice(t)
	frag, err := d.CreateProgram(ProgramDescriptor{
		Label:    "frag",
		Fragment: func(*Invocation) [4]float32 { return [4]float32{} },
	})
	require.NoError(t, err)
	comp, err := d.CreateProgram(ProgramDescriptor{Label: "comp", Compute: func(*Invocation) {}})
	require.NoError(t, err)

	assert.Panics(t, func() { frag.Draw(3) })
	frag.Bind()
	assert.Panics(t, func() { frag.Draw(4) })
	assert.Panics(t, func() { frag.Dispatch2D(4, 4) })
	assert.NotPanics(t, func() { frag.Draw(3) })

	comp.Bind()
	assert.Panics(t, func() { comp.Draw(3) })
	assert.Panics(t, func() { comp.Dispatch2DTiled(0, 4, 1, 1) })
	assert.Panics(t, func() { comp.Dispatch2DTiled(4, 4, 0, 1) })

	comp.Release()
	comp.Release()
	assert.Panics(t, comp.Bind)
}

func TestProgram_UniformsReachKernel(t *testing.T) {
	d := newTestDevice(t)
	target, err := d.CreateTexture(colorDescriptor("u", 1, 1))
	require.NoError(t, err)

	p, err := d.CreateProgram(ProgramDescriptor{
		Label: "uniforms",
		Compute: func(inv *Invocation) {
			inv.Store("out", 0, 0, [4]float32{inv.Uniform("f"), float32(inv.UniformInt("i")), inv.Uniform("unset"), 1})
		},
	})
	require.NoError(t, err)

	d.ClearCommands()
	p.Bind()
	p.SetUniform("f", 0.5)
	p.SetUniformInt("i", 7)
	p.BindImage("out", target, 0, 0, false, 0, AccessWriteOnly)
	p.Dispatch2D(1, 1)

	assert.Equal(t, [4]float32{0.5, 7, 0, 1}, mapTexels(t, target)[0])

	var uniforms []Command
	for _, c := range d.Commands() {
		if c.Kind == CommandSetUniform {
			uniforms = append(uniforms, c)
		}
	}
	require.Len(t, uniforms, 2)
	assert.Equal(t, float32(0.5), uniforms[0].Value)
	assert.True(t, uniforms[1].IsInt)
	assert.Equal(t, int32(7), uniforms[1].IntValue)
}
