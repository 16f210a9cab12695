package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/postprocess"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { common.SetLogger(nil) })
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, dir, name string, w, h int, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestPyramidCommand(t *testing.T) {
	out, err := execute(t, "pyramid", "1920", "1080")
	require.NoError(t, err)
	assert.Equal(t, "0\t1920x1080\n1\t120x68\n2\t8x5\n3\t1x1\n", out)

	_, err = execute(t, "pyramid", "0", "10")
	assert.Error(t, err)
	_, err = execute(t, "pyramid", "wide", "10")
	assert.Error(t, err)
	_, err = execute(t, "pyramid", "10")
	assert.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	in := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	grey := writePNG(t, in, "grey.png", 40, 24, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	red := writePNG(t, in, "red.png", 20, 20, color.NRGBA{R: 255, A: 255})

	_, err := execute(t, "render", "--out-dir", outDir, "--workers", "2", "--iterations", "2", grey, red)
	require.NoError(t, err)

	img := readPNG(t, filepath.Join(outDir, "grey.png"))
	assert.Equal(t, image.Rect(0, 0, 40, 24), img.Bounds())
	_, _, _, a := img.At(20, 12).RGBA()
	assert.Equal(t, uint32(0xffff), a)

	img = readPNG(t, filepath.Join(outDir, "red.png"))
	r, g, _, _ := img.At(10, 10).RGBA()
	assert.Greater(t, r, g)
}

func TestRenderCommand_ExposureFlag(t *testing.T) {
	in := t.TempDir()
	grey := writePNG(t, in, "grey.png", 32, 32, color.NRGBA{R: 200, G: 200, B: 200, A: 255})

	bright := t.TempDir()
	_, err := execute(t, "render", "--out-dir", bright, "--exposure", "2", grey)
	require.NoError(t, err)
	dark := t.TempDir()
	_, err = execute(t, "render", "--out-dir", dark, "--exposure=-4", grey)
	require.NoError(t, err)

	rb, _, _, _ := readPNG(t, filepath.Join(bright, "grey.png")).At(16, 16).RGBA()
	rd, _, _, _ := readPNG(t, filepath.Join(dark, "grey.png")).At(16, 16).RGBA()
	assert.Greater(t, rb, rd)
}

func TestRenderCommand_Trace(t *testing.T) {
	grey := writePNG(t, t.TempDir(), "grey.png", 32, 32, color.NRGBA{R: 50, G: 50, B: 50, A: 255})
	out, err := execute(t, "render", "--out-dir", t.TempDir(), "--trace", grey)
	require.NoError(t, err)
	assert.Contains(t, out, "# grey.png")
	assert.Contains(t, out, `SetFramebuffer "default"`)
}

func TestRenderCommand_ReportsEveryFailure(t *testing.T) {
	in := t.TempDir()
	outDir := t.TempDir()
	good := writePNG(t, in, "good.png", 32, 32, color.NRGBA{B: 255, A: 255})
	tiny := writePNG(t, in, "tiny.png", 8, 1, color.NRGBA{B: 255, A: 255})
	missing := filepath.Join(in, "missing.png")

	_, err := execute(t, "render", "--out-dir", outDir, tiny, missing, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiny.png")
	assert.Contains(t, err.Error(), "missing.png")
	assert.FileExists(t, filepath.Join(outDir, "good.png"))
}

func TestRenderCommand_InvalidFlags(t *testing.T) {
	grey := writePNG(t, t.TempDir(), "grey.png", 32, 32, color.NRGBA{A: 255})
	_, err := execute(t, "render", "--iterations", "0", grey)
	assert.Error(t, err)
	_, err = execute(t, "render")
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "scene.png"), outputPath("out", filepath.Join("a", "b", "scene.hdr")))
	assert.Equal(t, filepath.Join("out", "noext.png"), outputPath("out", "noext"))
}

func TestExposureControl(t *testing.T) {
	p := postprocess.NewPipeline(postprocess.WithExposure(1))
	var title string
	profiling := false
	ctl := &exposureControl{
		pipeline:     p,
		base:         1,
		step:         0.5,
		setTitle:     func(s string) { title = s },
		setProfiling: func(on bool) { profiling = on },
	}

	ctl.key(common.KeyUp)
	assert.Equal(t, float32(1.5), p.Exposure())
	assert.Equal(t, "oxyfx - exposure +1.50 EV", title)

	ctl.scroll(-4)
	assert.Equal(t, float32(-0.5), p.Exposure())

	ctl.key(common.KeyR)
	assert.Equal(t, float32(1), p.Exposure())

	ctl.key(common.KeyA)
	assert.True(t, p.AutoExposure())

	ctl.key(common.KeyP)
	assert.True(t, profiling)

	title = ""
	ctl.key(common.KeySpace)
	assert.Empty(t, title, "unbound keys leave the title alone")
}

func TestExposureControl_Clamps(t *testing.T) {
	p := postprocess.NewPipeline()
	ctl := &exposureControl{pipeline: p, step: 1, setTitle: func(string) {}}
	for range 40 {
		ctl.key(common.KeyDown)
	}
	assert.Equal(t, float32(-maxViewExposure), p.Exposure())
}
