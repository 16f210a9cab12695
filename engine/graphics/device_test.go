package graphics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T, options ...DeviceBuilderOption) Device {
	t.Helper()
	options = append([]DeviceBuilderOption{WithSize(8, 6), WithCommandLog()}, options...)
	d, err := NewDevice(DeviceDescriptor{Backend: BackendTypeSoftware, Label: t.Name()}, options...)
	require.NoError(t, err)
	t.Cleanup(d.Destroy)
	return d
}

func colorDescriptor(label string, w, h int) TextureDescriptor {
	return TextureDescriptor{
		Label:  label,
		Width:  w,
		Height: h,
		Format: TextureFormatRGBA32Float,
		WrapS:  WrapModeClampToEdge,
		WrapT:  WrapModeClampToEdge,
		Filter: FilterModeNearest,
	}
}

func TestNewDevice_UnknownBackend(t *testing.T) {
	d, err := NewDevice(DeviceDescriptor{Backend: BackendType(42)})
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrDescriptorInvalid)
}

func TestNewDevice_InvalidSize(t *testing.T) {
	d, err := NewDevice(DeviceDescriptor{Backend: BackendTypeSoftware}, WithSize(0, 10))
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrDescriptorInvalid)
}

func TestNewDevice_Software(t *testing.T) {
	d := newTestDevice(t)

	assert.Equal(t, BackendTypeSoftware, d.Descriptor().Backend)
	w, h := d.Size()
	assert.Equal(t, 8, w)
	assert.Equal(t, 6, h)
	assert.Equal(t, Viewport{Width: 8, Height: 6}, d.Viewport())
	assert.True(t, d.DepthTest())
	assert.Equal(t, DefaultFramebuffer, d.Framebuffer())

	color := d.DefaultTarget()
	require.NotNil(t, color)
	assert.Equal(t, TextureFormatRGBA8UnormSrgb, color.Descriptor().Format)
	depth := d.DefaultDepthTarget()
	require.NotNil(t, depth)
	assert.True(t, depth.Descriptor().Format.IsDepth())

	resolved, ok := d.Handle().Resolve()
	require.True(t, ok)
	assert.Equal(t, d, resolved)
}

func TestParseBackendType(t *testing.T) {
	b, err := ParseBackendType("software")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeSoftware, b)

	b, err = ParseBackendType("wgpu")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeWGPU, b)

	_, err = ParseBackendType("vulkan")
	assert.ErrorIs(t, err, ErrDescriptorInvalid)
}

func TestDevice_CreateTextureErrors(t *testing.T) {
	d := newTestDevice(t)

	tex, err := d.CreateTexture(colorDescriptor("empty", 0, 4))
	assert.Nil(t, tex)
	assert.ErrorIs(t, err, ErrDescriptorInvalid)

	tex, err = d.CreateTextureFromImage([]byte("definitely not an image"))
	assert.Nil(t, tex)
	assert.ErrorIs(t, err, ErrDecode)

	tex, err = d.CreateTextureFromFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Nil(t, tex)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDevice_CreateTextureFromFile(t *testing.T) {
	d := newTestDevice(t)
	path := filepath.Join(t.TempDir(), "checker.png")
	require.NoError(t, os.WriteFile(path, encodeTestPNG(t), 0o644))

	tex, err := d.CreateTextureFromFile(path)
	require.NoError(t, err)
	defer tex.Release()

	desc := tex.Descriptor()
	assert.Equal(t, path, desc.Label)
	assert.Equal(t, 2, desc.Width)
	assert.Equal(t, 1, desc.Height)
	assert.Equal(t, TextureFormatRGBA8UnormSrgb, desc.Format)
}

func TestDevice_SetFramebufferPreconditions(t *testing.T) {
	d := newTestDevice(t)
	other := newTestDevice(t)

	assert.Panics(t, func() { d.SetFramebuffer(nil) })

	tex, err := other.CreateTexture(colorDescriptor("foreign", 4, 4))
	require.NoError(t, err)
	fb, err := tex.RenderTarget()
	require.NoError(t, err)
	assert.Panics(t, func() { d.SetFramebuffer(fb) })

	own, err := d.CreateTexture(colorDescriptor("own", 4, 4))
	require.NoError(t, err)
	ownFB, err := own.RenderTarget()
	require.NoError(t, err)
	d.SetFramebuffer(ownFB)
	assert.Equal(t, ownFB, d.Framebuffer())

	// Releasing the active target falls back to the default one.
	own.Release()
	assert.Equal(t, DefaultFramebuffer, d.Framebuffer())
	assert.Panics(t, func() { d.SetFramebuffer(ownFB) })
}

func TestDevice_ViewportAndResize(t *testing.T) {
	d := newTestDevice(t)

	d.SetViewport(Viewport{X: 1, Y: 2, Width: 3, Height: 4})
	assert.Equal(t, Viewport{X: 1, Y: 2, Width: 3, Height: 4}, d.Viewport())
	assert.Panics(t, func() { d.SetViewport(Viewport{Width: -1}) })

	old := d.DefaultTarget()
	require.NoError(t, d.Resize(16, 12))
	w, h := d.Size()
	assert.Equal(t, 16, w)
	assert.Equal(t, 12, h)
	assert.Equal(t, Viewport{Width: 16, Height: 12}, d.Viewport())
	assert.NotEqual(t, old, d.DefaultTarget())
	assert.Equal(t, 16, d.DefaultTarget().Descriptor().Width)

	assert.ErrorIs(t, d.Resize(0, 12), ErrDescriptorInvalid)
}

func TestDevice_CommandLog(t *testing.T) {
	d := newTestDevice(t)
	d.ClearCommands()

	d.SetDepthTest(false)
	d.SetViewport(Viewport{Width: 2, Height: 2})
	d.SetFramebuffer(DefaultFramebuffer)

	cmds := d.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, CommandSetDepthTest, cmds[0].Kind)
	assert.False(t, cmds[0].Enabled)
	assert.Equal(t, CommandSetViewport, cmds[1].Kind)
	assert.Equal(t, CommandSetFramebuffer, cmds[2].Kind)
	assert.Equal(t, "default", cmds[2].Target)
	assert.Equal(t, `SetFramebuffer "default"`, cmds[2].String())

	d.ClearCommands()
	assert.Empty(t, d.Commands())
}

func TestDevice_CommandLogDisabled(t *testing.T) {
	d, err := NewDevice(DeviceDescriptor{Backend: BackendTypeSoftware}, WithSize(2, 2))
	require.NoError(t, err)
	defer d.Destroy()

	d.SetDepthTest(false)
	assert.Empty(t, d.Commands())
}

func TestDevice_Destroy(t *testing.T) {
	d, err := NewDevice(DeviceDescriptor{Backend: BackendTypeSoftware}, WithSize(4, 4))
	require.NoError(t, err)
	tex, err := d.CreateTexture(colorDescriptor("orphan", 2, 2))
	require.NoError(t, err)
	h := d.Handle()

	d.Destroy()
	d.Destroy()

	_, ok := h.Resolve()
	assert.False(t, ok)
	assert.Panics(t, func() { _, _ = d.CreateTexture(colorDescriptor("late", 2, 2)) })
	assert.Panics(t, func() { tex.Bind(0) })
	assert.Panics(t, func() { _, _ = tex.RenderTarget() })
	assert.NotPanics(t, tex.Release)
}
