package graphics

import (
	"bytes"
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

const (
	ktxHeaderSize = 64
	ktxEndianness = 0x04030201

	glRGBA8       = 0x8058
	glSRGB8Alpha8 = 0x8C43
	glRGBA16F     = 0x881A
	glRGBA32F     = 0x8814
)

var ktxIdentifier = []byte{0xAB, 'K', 'T', 'X', ' ', '1', '1', 0xBB, '\r', '\n', 0x1A, '\n'}

func isKTX(buf []byte) bool {
	return bytes.HasPrefix(buf, ktxIdentifier)
}

var ktxFormats = map[uint32]TextureFormat{
	glRGBA8:       TextureFormatRGBA8Unorm,
	glSRGB8Alpha8: TextureFormatRGBA8UnormSrgb,
	glRGBA16F:     TextureFormatRGBA16Float,
	glRGBA32F:     TextureFormatRGBA32Float,
}

// decodeKTX reads an uncompressed little-endian KTX 1.1 2D texture.
func decodeKTX(data []byte) (*Image, error) {
	if len(data) < ktxHeaderSize || !isKTX(data) {
		return nil, decodef("ktx: bad header")
	}
	le := binary.LittleEndian
	if le.Uint32(data[12:16]) != ktxEndianness {
		return nil, decodef("ktx: big-endian files are not supported")
	}
	internal := le.Uint32(data[28:32])
	format, ok := ktxFormats[internal]
	if !ok {
		return nil, decodef("ktx: unsupported internal format 0x%04x", internal)
	}
	width := int(le.Uint32(data[36:40]))
	height := int(le.Uint32(data[40:44]))
	depth := le.Uint32(data[44:48])
	arrays := le.Uint32(data[48:52])
	faces := le.Uint32(data[52:56])
	if depth > 1 || arrays > 0 || faces != 1 {
		return nil, decodef("ktx: only single 2D images are supported")
	}
	if err := checkImageSize("ktx", width, height); err != nil {
		return nil, err
	}
	levels := min(max(1, int(le.Uint32(data[56:60]))), common.MaxMipLevels(width, height))
	keyValueBytes := uint64(le.Uint32(data[60:64]))
	if keyValueBytes > uint64(len(data)-ktxHeaderSize) {
		return nil, decodef("ktx: key/value data truncated")
	}
	offset := ktxHeaderSize + int(keyValueBytes)

	img := &Image{Width: width, Height: height, Format: format}
	for i := 0; i < levels; i++ {
		if len(data)-offset < 4 {
			return nil, decodef("ktx: level %d truncated", i)
		}
		size := uint64(le.Uint32(data[offset : offset+4]))
		offset += 4
		w, h := common.MipExtent(width, i), common.MipExtent(height, i)
		want := w * h * format.BytesPerTexel()
		if size < uint64(want) || size > uint64(len(data)-offset) {
			return nil, decodef("ktx: level %d has %d bytes, expected %d", i, size, want)
		}
		img.Levels = append(img.Levels, append([]byte(nil), data[offset:offset+want]...))
		offset = min(offset+common.AlignUp(int(size), 4), len(data))
	}
	return img, nil
}
