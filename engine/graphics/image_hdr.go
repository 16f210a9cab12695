package graphics

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

var (
	hdrMagicRadiance = []byte("#?RADIANCE")
	hdrMagicRGBE     = []byte("#?RGBE")
)

func isHDR(buf []byte) bool {
	return bytes.HasPrefix(buf, hdrMagicRadiance) || bytes.HasPrefix(buf, hdrMagicRGBE)
}

// decodeHDR reads a Radiance RGBE image, flat or new-style run-length encoded, into
// RGBA16Float, the format every pipeline pass samples.
func decodeHDR(data []byte) (*Image, error) {
	if !isHDR(data) {
		return nil, decodef("hdr: bad header")
	}

	// Header lines end at the first empty line; the resolution line follows.
	pos := 0
	readLine := func() (string, bool) {
		if pos >= len(data) {
			return "", false
		}
		end := bytes.IndexByte(data[pos:], '\n')
		if end < 0 {
			return "", false
		}
		line := string(data[pos : pos+end])
		pos += end + 1
		return strings.TrimRight(line, "\r"), true
	}
	for {
		line, ok := readLine()
		if !ok {
			return nil, decodef("hdr: truncated header")
		}
		if line == "" {
			break
		}
		if f, found := strings.CutPrefix(line, "FORMAT="); found && f != "32-bit_rle_rgbe" {
			return nil, decodef("hdr: unsupported format %q", f)
		}
	}
	res, ok := readLine()
	if !ok {
		return nil, decodef("hdr: missing resolution line")
	}
	fields := strings.Fields(res)
	if len(fields) != 4 || fields[0] != "-Y" || fields[2] != "+X" {
		return nil, decodef("hdr: unsupported orientation %q", res)
	}
	height, err1 := strconv.Atoi(fields[1])
	width, err2 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil {
		return nil, decodef("hdr: invalid resolution %q", res)
	}
	if err := checkImageSize("hdr", width, height); err != nil {
		return nil, err
	}
	if height*minHDRScanline(width) > len(data)-pos {
		return nil, decodef("hdr: %dx%d image needs more than the %d bytes left", width, height, len(data)-pos)
	}

	bpt := TextureFormatRGBA16Float.BytesPerTexel()
	out := make([]byte, width*height*bpt)
	scan := make([]byte, width*4)
	for y := 0; y < height; y++ {
		n, err := readHDRScanline(data[pos:], scan, width)
		if err != nil {
			return nil, err
		}
		pos += n
		for x := 0; x < width; x++ {
			encodeTexel(TextureFormatRGBA16Float, rgbeToFloat(scan[x*4:x*4+4]), out[(y*width+x)*bpt:])
		}
	}
	return &Image{Width: width, Height: height, Format: TextureFormatRGBA16Float, Levels: [][]byte{out}}, nil
}

// hdrMaxRun is the longest run one RLE count byte encodes.
const hdrMaxRun = 127

// minHDRScanline is the fewest bytes a scanline of the given width can be stored in.
func minHDRScanline(width int) int {
	if width >= 8 && width <= 0x7fff {
		// Four channels of two-byte runs after the four-byte marker.
		return 4 + 4*2*common.DivideByMultiple(width, hdrMaxRun)
	}
	return width * 4
}

// readHDRScanline decodes one scanline into scan and returns the bytes consumed.
func readHDRScanline(src, scan []byte, width int) (int, error) {
	rle := width >= 8 && width <= 0x7fff && len(src) >= 4 &&
		src[0] == 2 && src[1] == 2 && src[2]&0x80 == 0 && int(src[2])<<8|int(src[3]) == width
	if !rle {
		if len(src) < width*4 {
			return 0, decodef("hdr: truncated scanline")
		}
		copy(scan, src[:width*4])
		return width * 4, nil
	}

	pos := 4
	for c := 0; c < 4; c++ {
		for x := 0; x < width; {
			if pos >= len(src) {
				return 0, decodef("hdr: truncated run")
			}
			count := int(src[pos])
			pos++
			if count > 128 {
				count -= 128
				if x+count > width || pos >= len(src) {
					return 0, decodef("hdr: run overflows scanline")
				}
				v := src[pos]
				pos++
				for ; count > 0; count-- {
					scan[x*4+c] = v
					x++
				}
				continue
			}
			if count == 0 || x+count > width || pos+count > len(src) {
				return 0, decodef("hdr: bad literal run")
			}
			for ; count > 0; count-- {
				scan[x*4+c] = src[pos]
				pos++
				x++
			}
		}
	}
	return pos, nil
}

func rgbeToFloat(p []byte) [4]float32 {
	if p[3] == 0 {
		return [4]float32{0, 0, 0, 1}
	}
	f := math32.Ldexp(1, int(p[3])-(128+8))
	return [4]float32{float32(p[0]) * f, float32(p[1]) * f, float32(p[2]) * f, 1}
}
