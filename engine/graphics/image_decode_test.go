package graphics

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTestPNG returns a 2x1 PNG: opaque red, then half-transparent green.
func encodeTestPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// ddsHeader builds a 128-byte DDS header.
func ddsHeader(w, h, mips int, pfFlags, fourCC, bitCount, rMask uint32) []byte {
	le := binary.LittleEndian
	b := make([]byte, ddsHeaderSize)
	copy(b, ddsMagic)
	le.PutUint32(b[4:], 124)
	flags := uint32(0x1007)
	if mips > 1 {
		flags |= ddsFlagMipMapCount
	}
	le.PutUint32(b[8:], flags)
	le.PutUint32(b[12:], uint32(h))
	le.PutUint32(b[16:], uint32(w))
	le.PutUint32(b[28:], uint32(mips))
	le.PutUint32(b[76:], 32)
	le.PutUint32(b[80:], pfFlags)
	le.PutUint32(b[84:], fourCC)
	le.PutUint32(b[88:], bitCount)
	le.PutUint32(b[92:], rMask)
	return b
}

func ktxFile(w, h int, internal uint32, level []byte) []byte {
	le := binary.LittleEndian
	b := make([]byte, ktxHeaderSize)
	copy(b, ktxIdentifier)
	le.PutUint32(b[12:], ktxEndianness)
	le.PutUint32(b[28:], internal)
	le.PutUint32(b[36:], uint32(w))
	le.PutUint32(b[40:], uint32(h))
	le.PutUint32(b[52:], 1)
	le.PutUint32(b[56:], 1)
	size := make([]byte, 4)
	le.PutUint32(size, uint32(len(level)))
	return append(append(b, size...), level...)
}

func zlibWrap(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zipWrap(t *testing.T, entries map[string][]byte, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func rgba32FAt(img *Image, level, i int) [4]float32 {
	var c [4]float32
	for ch := range c {
		c[ch] = math.Float32frombits(binary.LittleEndian.Uint32(img.Levels[level][i*16+ch*4:]))
	}
	return c
}

func TestDetectImageKind(t *testing.T) {
	pngData := encodeTestPNG(t)
	cases := []struct {
		name string
		data []byte
		want ImageKind
	}{
		{"png", pngData, ImageKindPNG},
		{"dds", ddsHeader(4, 4, 1, ddsPixelFourCC, fourCC("DXT1"), 0, 0), ImageKindDDS},
		{"ktx", ktxFile(1, 1, glRGBA8, make([]byte, 4)), ImageKindKTX},
		{"hdr", []byte("#?RADIANCE\n\n-Y 1 +X 1\n\x80\x80\x80\x81"), ImageKindHDR},
		{"rgbe", []byte("#?RGBE\n"), ImageKindHDR},
		{"zlib", zlibWrap(t, pngData), ImageKindZlib},
		{"zip", zipWrap(t, map[string][]byte{"a.png": pngData}, "a.png"), ImageKindZIP},
		{"gif", []byte("GIF89a\x01\x00\x01\x00"), ImageKindGIF},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10}, ImageKindJPEG},
		{"text", []byte("hello world"), ImageKindUnknown},
		{"empty", nil, ImageKindUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectImageKind(tc.data), tc.name)
	}
	assert.Equal(t, "zlib", ImageKindZlib.String())
	assert.Equal(t, "unknown", ImageKind(99).String())
}

func TestDecodeImage_PNG(t *testing.T) {
	img, err := DecodeImage(encodeTestPNG(t))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, 1, img.Height)
	assert.Equal(t, TextureFormatRGBA8UnormSrgb, img.Format)
	require.Len(t, img.Levels, 1)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 255, 0, 128}, img.Levels[0])
}

func TestDecodeImage_DDSUncompressedMips(t *testing.T) {
	data := ddsHeader(2, 2, 2, ddsPixelRGB, 0, 32, 0x000000ff)
	level0 := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		9, 10, 11, 12, 13, 14, 15, 16,
	}
	level1 := []byte{21, 22, 23, 24}
	data = append(append(data, level0...), level1...)

	img, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, TextureFormatRGBA8Unorm, img.Format)
	require.Len(t, img.Levels, 2)
	assert.Equal(t, level0, img.Levels[0])
	assert.Equal(t, level1, img.Levels[1])

	_, err = DecodeImage(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeImage_DDSBC1(t *testing.T) {
	block := make([]byte, 8)
	binary.LittleEndian.PutUint16(block[0:], 0xF800) // red
	binary.LittleEndian.PutUint16(block[2:], 0x001F) // blue
	// Texel 0 uses color 0, every other texel color 1.
	binary.LittleEndian.PutUint32(block[4:], 0x55555554)
	data := append(ddsHeader(4, 4, 1, ddsPixelFourCC, fourCC("DXT1"), 0, 0), block...)

	img, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, TextureFormatRGBA8Unorm, img.Format)
	require.Len(t, img.Levels[0], 4*4*4)
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Levels[0][0:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Levels[0][4:8])
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Levels[0][60:64])
}

func TestDecodeBC1_PunchThrough(t *testing.T) {
	block := make([]byte, 8)
	binary.LittleEndian.PutUint16(block[0:], 0x001F)
	binary.LittleEndian.PutUint16(block[2:], 0xF800)
	binary.LittleEndian.PutUint32(block[4:], 0xFFFFFFFF)
	var out [16][4]uint8
	decodeBC1Block(block, &out)
	assert.Equal(t, [4]uint8{0, 0, 0, 0}, out[0])

	// BC3 treats the same color block as four-color.
	bc3 := append([]byte{255, 0, 0, 0, 0, 0, 0, 0}, block...)
	decodeBC3Block(bc3, &out)
	assert.Equal(t, uint8(255), out[0][3])
	assert.NotEqual(t, [3]uint8{0, 0, 0}, [3]uint8{out[0][0], out[0][1], out[0][2]})
}

func TestDecodeImage_DDSUnsupported(t *testing.T) {
	data := append(ddsHeader(4, 4, 1, ddsPixelFourCC, fourCC("ATI2"), 0, 0), make([]byte, 16)...)
	_, err := DecodeImage(data)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeImage_KTX(t *testing.T) {
	level := make([]byte, 2*1*16)
	binary.LittleEndian.PutUint32(level[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(level[28:], math.Float32bits(-2))

	img, err := DecodeImage(ktxFile(2, 1, glRGBA32F, level))
	require.NoError(t, err)
	assert.Equal(t, TextureFormatRGBA32Float, img.Format)
	assert.Equal(t, float32(1.5), rgba32FAt(img, 0, 0)[0])
	assert.Equal(t, float32(-2), rgba32FAt(img, 0, 1)[3])

	_, err = DecodeImage(ktxFile(2, 1, 0x1234, level))
	assert.ErrorIs(t, err, ErrDecode)
	_, err = DecodeImage(ktxFile(2, 1, glRGBA32F, level[:8]))
	assert.ErrorIs(t, err, ErrDecode)
}

func rgba16FAt(img *Image, level, i int) [4]float32 {
	var c [4]float32
	for ch := range c {
		c[ch] = half(img.Levels[level][i*8+ch*2:])
	}
	return c
}

func TestDecodeImage_HDRFlat(t *testing.T) {
	data := []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\nEXPOSURE=1.0\n\n-Y 1 +X 2\n")
	data = append(data, 128, 64, 0, 129, 0, 0, 0, 0)

	img, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, TextureFormatRGBA16Float, img.Format)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, [4]float32{1, 0.5, 0, 1}, rgba16FAt(img, 0, 0))
	assert.Equal(t, [4]float32{0, 0, 0, 1}, rgba16FAt(img, 0, 1))
}

func TestDecodeImage_HDRRunLength(t *testing.T) {
	data := []byte("#?RGBE\nFORMAT=32-bit_rle_rgbe\n\n-Y 1 +X 8\n")
	data = append(data, 2, 2, 0, 8)
	data = append(data, 128+8, 128)                        // red: one run
	data = append(data, 8, 64, 64, 64, 64, 64, 64, 64, 32) // green: one literal
	data = append(data, 128+8, 0)
	data = append(data, 128+8, 129)

	img, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{1, 0.5, 0, 1}, rgba16FAt(img, 0, 0))
	assert.Equal(t, [4]float32{1, 0.25, 0, 1}, rgba16FAt(img, 0, 7))
}

func TestDecodeImage_HDRErrors(t *testing.T) {
	cases := map[string]string{
		"format":      "#?RADIANCE\nFORMAT=32-bit_rle_xyze\n\n-Y 1 +X 1\n\x00\x00\x00\x00",
		"orientation": "#?RADIANCE\n\n+Y 1 +X 1\n\x00\x00\x00\x00",
		"truncated":   "#?RADIANCE\n\n-Y 2 +X 2\n\x00\x00\x00\x00",
		"no header":   "#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n",
	}
	for name, data := range cases {
		_, err := DecodeImage([]byte(data))
		assert.ErrorIs(t, err, ErrDecode, name)
	}
}

func TestDecodeImage_OversizedHeaders(t *testing.T) {
	cases := map[string][]byte{
		"dds 2^31 wide":   append(ddsHeader(1<<31, 3<<29, 1, ddsPixelRGB, 0, 32, 0x000000ff), make([]byte, 64)...),
		"dds 2^31 square": append(ddsHeader(1<<31, 1<<31, 1, ddsPixelFourCC, fourCC("DXT1"), 0, 0), make([]byte, 64)...),
		"dds over cap":    append(ddsHeader(MaxTextureDimension+1, 1, 1, ddsPixelRGB, 0, 32, 0x000000ff), make([]byte, 64)...),
		"dds zero":        ddsHeader(0, 4, 1, ddsPixelRGB, 0, 32, 0x000000ff),
		"ktx huge":        ktxFile(1<<30, 1<<30, glRGBA32F, make([]byte, 16)),
		"ktx over cap":    ktxFile(MaxTextureDimension+1, 1, glRGBA8, make([]byte, 4)),
		"hdr huge":        []byte("#?RADIANCE\n\n-Y 2000000000 +X 2000000000\n\x02\x02\x00\x08"),
		"hdr no pixels":   []byte("#?RADIANCE\n\n-Y 10000 +X 10000\n"),
	}
	for name, data := range cases {
		assert.NotPanics(t, func() {
			_, err := DecodeImage(data)
			assert.ErrorIs(t, err, ErrDecode, name)
		}, name)
	}
}

func TestDecodeImage_KTXBadLevelSize(t *testing.T) {
	data := ktxFile(2, 1, glRGBA8, make([]byte, 8))
	binary.LittleEndian.PutUint32(data[ktxHeaderSize:], 0xFFFFFFFF)
	_, err := DecodeImage(data)
	assert.ErrorIs(t, err, ErrDecode)

	data = ktxFile(2, 1, glRGBA8, make([]byte, 8))
	binary.LittleEndian.PutUint32(data[60:], 0xFFFFFFF0)
	_, err = DecodeImage(data)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeImage_Archives(t *testing.T) {
	pngData := encodeTestPNG(t)

	img, err := DecodeImage(zlibWrap(t, pngData))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width)

	archive := zipWrap(t, map[string][]byte{
		"readme.txt": []byte("not an image"),
		"image.png":  pngData,
	}, "readme.txt", "image.png")
	img, err = DecodeImage(archive)
	require.NoError(t, err)
	assert.Equal(t, TextureFormatRGBA8UnormSrgb, img.Format)

	// A zlib stream inside a zip entry still decodes.
	nested := zipWrap(t, map[string][]byte{"image.z": zlibWrap(t, pngData)}, "image.z")
	img, err = DecodeImage(nested)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Height)

	_, err = DecodeImage(zipWrap(t, map[string][]byte{"a.txt": []byte("text")}, "a.txt"))
	assert.ErrorIs(t, err, ErrDecode)

	deep := pngData
	for range maxNestedDecode + 2 {
		deep = zlibWrap(t, deep)
	}
	_, err = DecodeImage(deep)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestCreateTextureFromImage_KeepsMips(t *testing.T) {
	d := newTestDevice(t)
	data := ddsHeader(2, 2, 2, ddsPixelRGB, 0, 32, 0x00ff0000)
	data = append(data, make([]byte, 2*2*4+4)...)

	tex, err := d.CreateTextureFromImage(data)
	require.NoError(t, err)
	defer tex.Release()
	desc := tex.Descriptor()
	assert.Equal(t, TextureFormatBGRA8Unorm, desc.Format)
	assert.Equal(t, 2, desc.MipLevels)
	assert.Equal(t, "image", desc.Label)
}

func TestCreateTextureFromDecoded(t *testing.T) {
	d := newTestDevice(t)
	img, err := DecodeImage(encodeTestPNG(t))
	require.NoError(t, err)

	tex, err := d.CreateTextureFromDecoded("photo", img)
	require.NoError(t, err)
	defer tex.Release()
	assert.Equal(t, "photo", tex.Descriptor().Label)
	data, err := tex.Map(0)
	require.NoError(t, err)
	assert.Equal(t, img.Levels[0], data)
	tex.Unmap()

	_, err = d.CreateTextureFromDecoded("empty", nil)
	assert.ErrorIs(t, err, ErrDescriptorInvalid)

	img.Levels[0] = img.Levels[0][:3]
	_, err = d.CreateTextureFromDecoded("short", img)
	assert.ErrorIs(t, err, ErrAllocation)

	wide := &Image{Width: MaxTextureDimension + 1, Height: 1, Format: TextureFormatR32Float, Levels: [][]byte{nil}}
	_, err = d.CreateTextureFromDecoded("wide", wide)
	assert.ErrorIs(t, err, ErrDescriptorInvalid)
}

func TestNarrowToRGBA16Float(t *testing.T) {
	level0 := make([]byte, 2*1*16)
	for i, v := range []float32{1, 0.5, 0.25, 1, -2, 0, 3, 0.125} {
		binary.LittleEndian.PutUint32(level0[i*4:], math.Float32bits(v))
	}
	level1 := make([]byte, 16)
	binary.LittleEndian.PutUint32(level1, math.Float32bits(4))
	img := &Image{Width: 2, Height: 1, Format: TextureFormatRGBA32Float, Levels: [][]byte{level0, level1}}

	narrow := narrowToRGBA16Float(img)
	assert.Equal(t, TextureFormatRGBA16Float, narrow.Format)
	assert.Equal(t, 2, narrow.Width)
	require.Len(t, narrow.Levels, 2)
	assert.Len(t, narrow.Levels[0], 2*8)
	assert.Equal(t, [4]float32{1, 0.5, 0.25, 1}, rgba16FAt(narrow, 0, 0))
	assert.Equal(t, [4]float32{-2, 0, 3, 0.125}, rgba16FAt(narrow, 0, 1))
	assert.Equal(t, [4]float32{4, 0, 0, 0}, rgba16FAt(narrow, 1, 0))
	assert.Equal(t, TextureFormatRGBA32Float, img.Format)
}
