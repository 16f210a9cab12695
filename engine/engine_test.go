package engine

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
	"github.com/Carmen-Shannon/oxy-fx/engine/postprocess"
)

func newTestDevice(t *testing.T) graphics.Device {
	t.Helper()
	d, err := graphics.NewDevice(graphics.DeviceDescriptor{Backend: graphics.BackendTypeSoftware},
		graphics.WithSize(32, 24), graphics.WithCommandLog())
	require.NoError(t, err)
	t.Cleanup(d.Destroy)
	return d
}

func newGreySource(t *testing.T, d graphics.Device) graphics.Texture {
	t.Helper()
	tex, err := d.CreateTexture(graphics.TextureDescriptor{
		Label:  "scene",
		Width:  32,
		Height: 24,
		Format: graphics.TextureFormatRGBA16Float,
		WrapS:  graphics.WrapModeClampToEdge,
		WrapT:  graphics.WrapModeClampToEdge,
	})
	require.NoError(t, err)
	data, err := tex.Map(0)
	require.NoError(t, err)
	half := float16.Fromfloat32(0.5).Bits()
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], half)
	}
	tex.Unmap()
	return tex
}

func TestNewEngine_RequiresDevice(t *testing.T) {
	_, err := NewEngine()
	assert.Error(t, err)
}

func TestNewEngine_InitializesPipeline(t *testing.T) {
	d := newTestDevice(t)
	e, err := NewEngine(WithDevice(d))
	require.NoError(t, err)
	t.Cleanup(e.Pipeline().Shutdown)

	assert.True(t, e.Pipeline().Initialized())
	w, h := e.Pipeline().Size()
	assert.Equal(t, 32, w)
	assert.Equal(t, 24, h)
	assert.Nil(t, e.Window())
	assert.Same(t, d, e.Device())
}

func TestNewEngine_KeepsReadyPipeline(t *testing.T) {
	d := newTestDevice(t)
	p := postprocess.NewPipeline()
	require.NoError(t, p.Initialize(d))
	require.NoError(t, p.FramesizeChange(16, 16))
	t.Cleanup(p.Shutdown)

	e, err := NewEngine(WithDevice(d), WithPipeline(p))
	require.NoError(t, err)

	w, h := e.Pipeline().Size()
	assert.Equal(t, 16, w)
	assert.Equal(t, 16, h)
}

func TestRenderFrame(t *testing.T) {
	d := newTestDevice(t)
	e, err := NewEngine(WithDevice(d))
	require.NoError(t, err)
	t.Cleanup(e.Pipeline().Shutdown)

	d.ClearCommands()
	e.RenderFrame()
	assert.Empty(t, d.Commands(), "no source means no frame")

	e.SetSource(newGreySource(t, d))
	e.RenderFrame()

	var last graphics.Command
	for _, c := range d.Commands() {
		if c.Kind == graphics.CommandDraw {
			last = c
		}
	}
	assert.Equal(t, "postprocess blit", last.Program)
	assert.Equal(t, "default", last.Target)
}

func TestResize(t *testing.T) {
	d := newTestDevice(t)
	e, err := NewEngine(WithDevice(d))
	require.NoError(t, err)
	t.Cleanup(e.Pipeline().Shutdown)

	require.NoError(t, e.Resize(48, 40))
	w, h := d.Size()
	assert.Equal(t, 48, w)
	assert.Equal(t, 40, h)
	w, h = e.Pipeline().Size()
	assert.Equal(t, 48, w)
	assert.Equal(t, 40, h)

	require.NoError(t, e.Resize(0, 0))
	w, h = d.Size()
	assert.Equal(t, 48, w, "minimized sizes are ignored")
	assert.Equal(t, 40, h)
}

func TestRenderFrame_SkipsThinFrames(t *testing.T) {
	d := newTestDevice(t)
	e, err := NewEngine(WithDevice(d), WithSource(newGreySource(t, d)))
	require.NoError(t, err)
	t.Cleanup(e.Pipeline().Shutdown)

	for _, size := range [][2]int{{40, 1}, {1, 30}, {1, 1}} {
		require.NoError(t, e.Resize(size[0], size[1]))
		require.Len(t, e.Pipeline().Pyramid(), 1)
		d.ClearCommands()
		assert.NotPanics(t, e.RenderFrame, "%dx%d", size[0], size[1])
		assert.Empty(t, d.Commands(), "%dx%d", size[0], size[1])
	}

	require.NoError(t, e.Resize(32, 24))
	d.ClearCommands()
	e.RenderFrame()
	assert.NotEmpty(t, d.Commands())
}

func TestRun_HeadlessUntilQuit(t *testing.T) {
	d := newTestDevice(t)
	e, err := NewEngine(WithDevice(d), WithSource(newGreySource(t, d)), WithTickRate(1000))
	require.NoError(t, err)
	t.Cleanup(e.Pipeline().Shutdown)

	frames := 0
	e.SetRenderCallback(func(float32) {
		frames++
		if frames == 3 {
			e.Quit()
		}
	})

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop after Quit")
	}
	assert.Equal(t, 3, frames)
	e.Quit()
}

func TestRateConversions(t *testing.T) {
	assert.Equal(t, time.Second/60, tickInterval(0))
	assert.Equal(t, time.Second/60, tickInterval(-5))
	assert.Equal(t, 10*time.Millisecond, tickInterval(100))
	assert.Equal(t, time.Duration(0), frameLimit(0))
	assert.Equal(t, 20*time.Millisecond, frameLimit(50))
}
