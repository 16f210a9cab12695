package graphics

import "github.com/chewxy/math32"

// loadTexel reads texel (x, y) of a level. Out-of-range coordinates read zero.
func loadTexel(f TextureFormat, level []byte, w, h, x, y int) [4]float32 {
	if x < 0 || y < 0 || x >= w || y >= h {
		return [4]float32{}
	}
	bpt := f.BytesPerTexel()
	return decodeTexel(f, level[(y*w+x)*bpt:])
}

// storeTexel writes texel (x, y) of a level. Out-of-range writes are dropped.
func storeTexel(f TextureFormat, level []byte, w, h, x, y int, c [4]float32) {
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	bpt := f.BytesPerTexel()
	encodeTexel(f, c, level[(y*w+x)*bpt:])
}

// wrapCoord maps an integer texel coordinate into [0, n) using mode.
func wrapCoord(mode WrapMode, i, n int) int {
	switch mode {
	case WrapModeClampToEdge:
		return max(0, min(n-1, i))
	case WrapModeMirroredRepeat:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i
	default:
		i %= n
		if i < 0 {
			i += n
		}
		return i
	}
}

// sampleTexture filters level 0 of t at normalized coordinates (u, v) using the
// texture's wrap and filter modes. v = 0 is the top row.
func sampleTexture(t *softwareTexture, u, v float32) [4]float32 {
	desc := t.desc
	level := t.level(0)
	w, h := desc.Width, desc.Height
	fetch := func(x, y int) [4]float32 {
		x = wrapCoord(desc.WrapS, x, w)
		y = wrapCoord(desc.WrapT, y, h)
		return loadTexel(desc.Format, level, w, h, x, y)
	}

	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5
	if desc.Filter == FilterModeNearest {
		return fetch(int(math32.Floor(x+0.5)), int(math32.Floor(y+0.5)))
	}

	x0, y0 := math32.Floor(x), math32.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	c00, c10 := fetch(ix, iy), fetch(ix+1, iy)
	c01, c11 := fetch(ix, iy+1), fetch(ix+1, iy+1)
	var out [4]float32
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*fx
		bottom := c01[i] + (c11[i]-c01[i])*fx
		out[i] = top + (bottom-top)*fy
	}
	return out
}
