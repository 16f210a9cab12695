package graphics

import (
	"bytes"
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

const (
	ddsHeaderSize     = 128
	ddsDX10HeaderSize = 20

	ddsFlagMipMapCount = 0x20000
	ddsPixelFourCC     = 0x4
	ddsPixelRGB        = 0x40

	// Legacy D3DFORMAT codes stored in the FourCC field.
	d3dfmtA16B16G16R16F = 113
	d3dfmtA32B32G32R32F = 116

	dxgiFormatR32G32B32A32Float = 2
	dxgiFormatR16G16B16A16Float = 10
	dxgiFormatR8G8B8A8Unorm     = 28
	dxgiFormatR8G8B8A8UnormSrgb = 29
	dxgiFormatBC1Unorm          = 71
	dxgiFormatBC1UnormSrgb      = 72
	dxgiFormatBC2Unorm          = 74
	dxgiFormatBC2UnormSrgb      = 75
	dxgiFormatBC3Unorm          = 77
	dxgiFormatBC3UnormSrgb      = 78
	dxgiFormatB8G8R8A8Unorm     = 87
)

var ddsMagic = []byte("DDS ")

func isDDS(buf []byte) bool {
	return len(buf) >= ddsHeaderSize && bytes.HasPrefix(buf, ddsMagic) && binary.LittleEndian.Uint32(buf[4:8]) == 124
}

// ddsLayout says how one DDS pixel format is stored and what it decodes to.
type ddsLayout struct {
	format    TextureFormat
	blockSize int
	decode    func([]byte, *[16][4]uint8)
}

func fourCC(s string) uint32 {
	return binary.LittleEndian.Uint32([]byte(s))
}

// ddsLayoutFor resolves the header pixel format. dataStart is where level 0 begins.
func ddsLayoutFor(data []byte) (ddsLayout, int, error) {
	le := binary.LittleEndian
	pfFlags := le.Uint32(data[80:84])
	code := le.Uint32(data[84:88])

	if pfFlags&ddsPixelFourCC != 0 {
		switch code {
		case fourCC("DXT1"):
			return ddsLayout{format: TextureFormatRGBA8Unorm, blockSize: 8, decode: decodeBC1Block}, ddsHeaderSize, nil
		case fourCC("DXT2"), fourCC("DXT3"):
			return ddsLayout{format: TextureFormatRGBA8Unorm, blockSize: 16, decode: decodeBC2Block}, ddsHeaderSize, nil
		case fourCC("DXT4"), fourCC("DXT5"):
			return ddsLayout{format: TextureFormatRGBA8Unorm, blockSize: 16, decode: decodeBC3Block}, ddsHeaderSize, nil
		case d3dfmtA16B16G16R16F:
			return ddsLayout{format: TextureFormatRGBA16Float}, ddsHeaderSize, nil
		case d3dfmtA32B32G32R32F:
			return ddsLayout{format: TextureFormatRGBA32Float}, ddsHeaderSize, nil
		case fourCC("DX10"):
			if len(data) < ddsHeaderSize+ddsDX10HeaderSize {
				return ddsLayout{}, 0, decodef("dds: truncated DX10 header")
			}
			start := ddsHeaderSize + ddsDX10HeaderSize
			switch dxgi := le.Uint32(data[128:132]); dxgi {
			case dxgiFormatR32G32B32A32Float:
				return ddsLayout{format: TextureFormatRGBA32Float}, start, nil
			case dxgiFormatR16G16B16A16Float:
				return ddsLayout{format: TextureFormatRGBA16Float}, start, nil
			case dxgiFormatR8G8B8A8Unorm:
				return ddsLayout{format: TextureFormatRGBA8Unorm}, start, nil
			case dxgiFormatR8G8B8A8UnormSrgb:
				return ddsLayout{format: TextureFormatRGBA8UnormSrgb}, start, nil
			case dxgiFormatB8G8R8A8Unorm:
				return ddsLayout{format: TextureFormatBGRA8Unorm}, start, nil
			case dxgiFormatBC1Unorm:
				return ddsLayout{format: TextureFormatRGBA8Unorm, blockSize: 8, decode: decodeBC1Block}, start, nil
			case dxgiFormatBC1UnormSrgb:
				return ddsLayout{format: TextureFormatRGBA8UnormSrgb, blockSize: 8, decode: decodeBC1Block}, start, nil
			case dxgiFormatBC2Unorm:
				return ddsLayout{format: TextureFormatRGBA8Unorm, blockSize: 16, decode: decodeBC2Block}, start, nil
			case dxgiFormatBC2UnormSrgb:
				return ddsLayout{format: TextureFormatRGBA8UnormSrgb, blockSize: 16, decode: decodeBC2Block}, start, nil
			case dxgiFormatBC3Unorm:
				return ddsLayout{format: TextureFormatRGBA8Unorm, blockSize: 16, decode: decodeBC3Block}, start, nil
			case dxgiFormatBC3UnormSrgb:
				return ddsLayout{format: TextureFormatRGBA8UnormSrgb, blockSize: 16, decode: decodeBC3Block}, start, nil
			default:
				return ddsLayout{}, 0, decodef("dds: unsupported DXGI format %d", dxgi)
			}
		default:
			return ddsLayout{}, 0, decodef("dds: unsupported FourCC 0x%08x", code)
		}
	}

	if pfFlags&ddsPixelRGB != 0 && le.Uint32(data[88:92]) == 32 {
		switch le.Uint32(data[92:96]) {
		case 0x000000ff:
			return ddsLayout{format: TextureFormatRGBA8Unorm}, ddsHeaderSize, nil
		case 0x00ff0000:
			return ddsLayout{format: TextureFormatBGRA8Unorm}, ddsHeaderSize, nil
		}
	}
	return ddsLayout{}, 0, decodef("dds: unsupported pixel format")
}

// decodeDDS reads a 2D DDS file with its mip chain.
func decodeDDS(data []byte) (*Image, error) {
	if !isDDS(data) {
		return nil, decodef("dds: bad header")
	}
	le := binary.LittleEndian
	height := int(le.Uint32(data[12:16]))
	width := int(le.Uint32(data[16:20]))
	if err := checkImageSize("dds", width, height); err != nil {
		return nil, err
	}
	levels := 1
	if le.Uint32(data[8:12])&ddsFlagMipMapCount != 0 {
		levels = max(1, int(le.Uint32(data[28:32])))
	}
	levels = min(levels, common.MaxMipLevels(width, height))

	layout, offset, err := ddsLayoutFor(data)
	if err != nil {
		return nil, err
	}

	img := &Image{Width: width, Height: height, Format: layout.format}
	for i := 0; i < levels; i++ {
		w, h := common.MipExtent(width, i), common.MipExtent(height, i)
		size := w * h * layout.format.BytesPerTexel()
		if layout.decode != nil {
			size = common.DivideByMultiple(w, 4) * common.DivideByMultiple(h, 4) * layout.blockSize
		}
		if size > len(data)-offset {
			return nil, decodef("dds: level %d truncated", i)
		}
		level := data[offset : offset+size]
		offset += size
		if layout.decode != nil {
			img.Levels = append(img.Levels, decodeBlockLevel(level, w, h, layout.blockSize, layout.decode))
			continue
		}
		img.Levels = append(img.Levels, append([]byte(nil), level...))
	}
	return img, nil
}
