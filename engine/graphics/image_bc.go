package graphics

import "encoding/binary"

// BC1/BC2/BC3 blocks cover 4x4 texels and decode to RGBA8.

func expand565(c uint16) [3]uint8 {
	r := uint8(c >> 11 & 0x1f)
	g := uint8(c >> 5 & 0x3f)
	b := uint8(c & 0x1f)
	return [3]uint8{r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2}
}

// decodeColorBlock decodes the 8-byte color half of a BC block. threeColor enables the
// BC1 punch-through mode when c0 <= c1.
func decodeColorBlock(block []byte, threeColor bool, out *[16][4]uint8) {
	c0 := binary.LittleEndian.Uint16(block[0:2])
	c1 := binary.LittleEndian.Uint16(block[2:4])
	e0, e1 := expand565(c0), expand565(c1)

	var palette [4][4]uint8
	palette[0] = [4]uint8{e0[0], e0[1], e0[2], 255}
	palette[1] = [4]uint8{e1[0], e1[1], e1[2], 255}
	if c0 > c1 || !threeColor {
		for i := 0; i < 3; i++ {
			palette[2][i] = uint8((2*int(e0[i]) + int(e1[i])) / 3)
			palette[3][i] = uint8((int(e0[i]) + 2*int(e1[i])) / 3)
		}
		palette[2][3], palette[3][3] = 255, 255
	} else {
		for i := 0; i < 3; i++ {
			palette[2][i] = uint8((int(e0[i]) + int(e1[i])) / 2)
		}
		palette[2][3] = 255
		palette[3] = [4]uint8{0, 0, 0, 0}
	}

	indices := binary.LittleEndian.Uint32(block[4:8])
	for i := 0; i < 16; i++ {
		out[i] = palette[indices>>(2*i)&3]
	}
}

func decodeBC1Block(block []byte, out *[16][4]uint8) {
	decodeColorBlock(block, true, out)
}

func decodeBC2Block(block []byte, out *[16][4]uint8) {
	decodeColorBlock(block[8:16], false, out)
	alpha := binary.LittleEndian.Uint64(block[0:8])
	for i := 0; i < 16; i++ {
		a := uint8(alpha >> (4 * i) & 0xf)
		out[i][3] = a<<4 | a
	}
}

func decodeBC3Block(block []byte, out *[16][4]uint8) {
	decodeColorBlock(block[8:16], false, out)

	a0, a1 := int(block[0]), int(block[1])
	var palette [8]uint8
	palette[0], palette[1] = uint8(a0), uint8(a1)
	if a0 > a1 {
		for i := 1; i < 7; i++ {
			palette[i+1] = uint8(((7-i)*a0 + i*a1) / 7)
		}
	} else {
		for i := 1; i < 5; i++ {
			palette[i+1] = uint8(((5-i)*a0 + i*a1) / 5)
		}
		palette[6], palette[7] = 0, 255
	}

	var bits uint64
	for i := 0; i < 6; i++ {
		bits |= uint64(block[2+i]) << (8 * i)
	}
	for i := 0; i < 16; i++ {
		out[i][3] = palette[bits>>(3*i)&7]
	}
}

// decodeBlockLevel expands one block-compressed level of w x h texels to tightly packed RGBA8.
func decodeBlockLevel(data []byte, w, h, blockSize int, decode func([]byte, *[16][4]uint8)) []byte {
	bw, bh := (w+3)/4, (h+3)/4
	out := make([]byte, w*h*4)
	var texels [16][4]uint8
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			off := (by*bw + bx) * blockSize
			decode(data[off:off+blockSize], &texels)
			for i := 0; i < 16; i++ {
				x, y := bx*4+i%4, by*4+i/4
				if x >= w || y >= h {
					continue
				}
				copy(out[(y*w+x)*4:], texels[i][:])
			}
		}
	}
	return out
}
