package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const extractSource = `
struct Params {
    uThreshold: f32,
    uTexel: vec2<f32>,
    uTint: vec4<f32>,
    uCount: i32,
}

@group(0) @binding(0) var<uniform> params: Params;
//@oxy:image 0 1 uSource read
//@oxy:image 0 2 uTarget write rgba16float
//@oxy:include luminance

@compute @workgroup_size(16, 16)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    let c = textureLoad(uSource, vec2<i32>(id.xy), 0);
    textureStore(uTarget, vec2<i32>(id.xy), vec4<f32>(luminance(c.rgb)));
}
`

const blitSource = `
//@oxy:include fullscreen
//@oxy:include tonemap
struct Blit { uExposure: f32, uBloomStrength: f32 }
@group(0) @binding(0) var<uniform> blit: Blit;
//@oxy:texture 0 1 uTexSource
//@oxy:texture 0 3 uTexBloom

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let c = textureSample(uTexSource, uTexSourceSampler, in.uv).rgb;
    return vec4<f32>(aces_film(c * exp2(blit.uExposure)), 1.0);
}
`

func TestNewShader_Compute(t *testing.T) {
	s, err := NewShader("extract", extractSource)
	require.NoError(t, err)

	assert.True(t, s.HasStage(ShaderTypeCompute))
	assert.False(t, s.HasStage(ShaderTypeFragment))
	assert.Equal(t, "cs_main", s.EntryPoint(ShaderTypeCompute))
	assert.Equal(t, [3]uint32{16, 16, 1}, s.WorkgroupSize())

	bindings := s.Bindings()
	require.Len(t, bindings, 3)
	assert.Equal(t, "params", bindings[0].Name)
	assert.Equal(t, BindingKindUniform, bindings[0].Kind)
	assert.Equal(t, BindingKindTexture, bindings[1].Kind)
	assert.Equal(t, BindingKindStorageTexture, bindings[2].Kind)
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, bindings[2].Entry.StorageTexture.Format)
	assert.Equal(t, wgpu.StorageTextureAccessWriteOnly, bindings[2].Entry.StorageTexture.Access)
	assert.Equal(t, wgpu.ShaderStageCompute, bindings[2].Entry.Visibility)
	assert.Equal(t, uint64(48), bindings[0].Entry.Buffer.MinBindingSize)

	require.Len(t, s.Declarations(), 2)
	assert.Equal(t, AnnotationTypeImage, s.Declarations()[0].Type)
}

func TestNewShader_UniformOffsets(t *testing.T) {
	s, err := NewShader("extract", extractSource)
	require.NoError(t, err)

	cases := []struct {
		name   string
		offset uint64
		size   uint64
	}{
		{"uThreshold", 0, 4},
		{"uTexel", 8, 8},
		{"uTint", 16, 16},
		{"uCount", 32, 4},
	}
	for _, c := range cases {
		m, ok := s.UniformMember(c.name)
		require.True(t, ok, c.name)
		assert.Equal(t, c.offset, m.Offset, c.name)
		assert.Equal(t, c.size, m.Size, c.name)
		assert.Equal(t, "params", m.Block)
	}
	_, ok := s.UniformMember("missing")
	assert.False(t, ok)
}

func TestNewShader_TexturePairsSampler(t *testing.T) {
	s, err := NewShader("blit", blitSource)
	require.NoError(t, err)

	assert.Equal(t, "vs_main", s.EntryPoint(ShaderTypeVertex))
	assert.Equal(t, "fs_main", s.EntryPoint(ShaderTypeFragment))
	assert.Equal(t, [3]uint32{0, 0, 0}, s.WorkgroupSize())

	tex, ok := s.Binding("uTexBloom")
	require.True(t, ok)
	assert.Equal(t, 3, tex.Binding)

	smp, ok := s.Binding(SamplerName("uTexBloom"))
	require.True(t, ok)
	assert.Equal(t, 4, smp.Binding)
	assert.Equal(t, BindingKindSampler, smp.Kind)

	m, ok := s.UniformMember("uBloomStrength")
	require.True(t, ok)
	assert.Equal(t, uint64(4), m.Offset)

	layouts := s.BindGroupLayoutDescriptors()
	require.Contains(t, layouts, 0)
	assert.Len(t, layouts[0].Entries, 5)
}

func TestNewShader_Errors(t *testing.T) {
	_, err := NewShader("empty", "fn helper() {}")
	assert.Error(t, err)

	_, err = NewShader("bad", "//@oxy:include skybox\n@compute @workgroup_size(1) fn main() {}")
	assert.Error(t, err)

	_, err = NewShader("bad", "//@oxy:image 0 0 uTarget write rgb9e5\n@compute @workgroup_size(1) fn main() {}")
	assert.Error(t, err)

	_, err = NewShader("bad", "//@oxy:image 0 x uTarget read\n@compute @workgroup_size(1) fn main() {}")
	assert.Error(t, err)
}

func TestNewShaderFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extract.wgsl")
	require.NoError(t, os.WriteFile(path, []byte(extractSource), 0o644))

	s, err := NewShaderFromPath("extract", path)
	require.NoError(t, err)
	assert.Equal(t, "extract", s.Key())
	assert.Equal(t, "extract", s.Module().Label)

	_, err = NewShaderFromPath("missing", filepath.Join(t.TempDir(), "nope.wgsl"))
	assert.Error(t, err)
}

func TestStripComments(t *testing.T) {
	src := "a /* outer /* inner */ still */ b // trailing\nc"
	assert.Equal(t, "a  b \nc\n", stripComments(src))
}

func TestParseWorkgroupSize_Defaults(t *testing.T) {
	assert.Equal(t, [3]uint32{1, 1, 1}, parseWorkgroupSize("fn main() {}"))
	assert.Equal(t, [3]uint32{64, 1, 1}, parseWorkgroupSize("@compute @workgroup_size(64) fn main() {}"))
	assert.Equal(t, [3]uint32{8, 4, 2}, parseWorkgroupSize("@workgroup_size(8, 4, 2)"))
}
