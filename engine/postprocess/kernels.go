package postprocess

import (
	_ "embed"
	"strings"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-fx/engine/graphics"
)

var (
	//go:embed assets/extract.wgsl
	extractSource string

	//go:embed assets/downsample.wgsl
	downsampleSource string

	//go:embed assets/bloom.wgsl
	bloomSource string

	//go:embed assets/blur.wgsl
	blurTemplate string

	//go:embed assets/blit.wgsl
	blitSource string
)

const (
	minLuminance = 0.0001

	// Uniform and binding names shared by the WGSL sources and the Go kernels.
	uniformThreshold     = "uThreshold"
	uniformExposure      = "uExposure"
	uniformBloomStrength = "uBloomStrength"
	uniformBaseLevel     = "uBaseLevel"
	imageSource          = "uSource"
	imageTarget          = "uTarget"
	textureSource        = "uTexSource"
	textureBloom         = "uTexBloom"
)

// blurWeights is a 9-tap Gaussian, center first.
var blurWeights = [5]float32{0.227027, 0.1945946, 0.1216216, 0.054054, 0.016216}

// blurSource instantiates the separable blur for one axis.
func blurSource(vertical bool) string {
	dir := "vec2<f32>(1.0, 0.0)"
	if vertical {
		dir = "vec2<f32>(0.0, 1.0)"
	}
	return strings.ReplaceAll(blurTemplate, "BLUR_DIRECTION", dir)
}

func luminance(c [4]float32) float32 {
	return 0.2126*c[0] + 0.7152*c[1] + 0.0722*c[2]
}

// brightPass keeps the share of c whose luminance exceeds threshold.
func brightPass(c [4]float32, threshold float32) [3]float32 {
	lum := luminance(c)
	k := max(lum-threshold, 0) / max(lum, minLuminance)
	return [3]float32{c[0] * k, c[1] * k, c[2] * k}
}

// acesFilm is the Narkowicz fit of the ACES filmic curve.
func acesFilm(x float32) float32 {
	const a, b, c, d, e = 2.51, 0.03, 2.43, 0.59, 0.14
	return min(max((x*(a*x+b))/(x*(c*x+d)+e), 0), 1)
}

func extractKernel(inv *graphics.Invocation) {
	x, y := inv.GlobalX, inv.GlobalY
	tw, th := inv.ImageSize(imageTarget)
	sw, sh := inv.ImageSize(imageSource)
	if x >= tw || y >= th || x >= sw || y >= sh {
		return
	}
	c := inv.Load(imageSource, x, y)
	b := brightPass(c, inv.Uniform(uniformThreshold))
	inv.Store(imageTarget, x, y, [4]float32{b[0], b[1], b[2], math32.Log2(max(luminance(c), minLuminance))})
}

// tileTexels scales coverage so a fully covered tile stores 1.
const tileTexels = TileSize * TileSize

// downsampleKernel reduces one tile. Red is coverage in base texels over tileTexels,
// alpha the coverage-weighted mean log luminance.
func downsampleKernel(inv *graphics.Invocation) {
	x, y := inv.GlobalX, inv.GlobalY
	tw, th := inv.ImageSize(imageTarget)
	if x >= tw || y >= th {
		return
	}
	sw, sh := inv.ImageSize(imageSource)
	base := inv.Uniform(uniformBaseLevel) > 0.5
	var sum, weight float32
	for j := range TileSize {
		for i := range TileSize {
			px, py := x*TileSize+i, y*TileSize+j
			if px >= sw || py >= sh {
				continue
			}
			c := inv.Load(imageSource, px, py)
			w := c[0]
			if base {
				w = 1
			}
			sum += w * c[3]
			weight += w
		}
	}
	var mean float32
	if weight > 0 {
		mean = sum / weight
	}
	inv.Store(imageTarget, x, y, [4]float32{weight / tileTexels, 0, 0, mean})
}

func bloomKernel(inv *graphics.Invocation) [4]float32 {
	b := brightPass(inv.Sample(textureSource, inv.U, inv.V), inv.Uniform(uniformThreshold))
	return [4]float32{b[0], b[1], b[2], 1}
}

// blurKernel returns the fragment kernel blurring along (dx, dy).
func blurKernel(dx, dy float32) graphics.FragmentKernel {
	return func(inv *graphics.Invocation) [4]float32 {
		w, h := inv.TextureSize(textureSource)
		sx, sy := dx/float32(w), dy/float32(h)
		c := inv.Sample(textureSource, inv.U, inv.V)
		out := [4]float32{c[0] * blurWeights[0], c[1] * blurWeights[0], c[2] * blurWeights[0], 1}
		for i := 1; i < len(blurWeights); i++ {
			ox, oy := sx*float32(i), sy*float32(i)
			p := inv.Sample(textureSource, inv.U+ox, inv.V+oy)
			n := inv.Sample(textureSource, inv.U-ox, inv.V-oy)
			for ch := range 3 {
				out[ch] += (p[ch] + n[ch]) * blurWeights[i]
			}
		}
		return out
	}
}

func blitKernel(inv *graphics.Invocation) [4]float32 {
	src := inv.Sample(textureSource, inv.U, inv.V)
	bloom := inv.Sample(textureBloom, inv.U, inv.V)
	strength := inv.Uniform(uniformBloomStrength)
	scale := math32.Exp2(inv.Uniform(uniformExposure))
	var out [4]float32
	for ch := range 3 {
		out[ch] = acesFilm((src[ch] + bloom[ch]*strength) * scale)
	}
	out[3] = 1
	return out
}

// programDescriptors lists every pass the pipeline compiles, in creation order.
func programDescriptors() []graphics.ProgramDescriptor {
	return []graphics.ProgramDescriptor{
		{Label: "postprocess extract", Source: extractSource, Compute: extractKernel},
		{Label: "postprocess downsample", Source: downsampleSource, Compute: downsampleKernel},
		{Label: "postprocess blur horizontal", Source: blurSource(false), Fragment: blurKernel(1, 0)},
		{Label: "postprocess blur vertical", Source: blurSource(true), Fragment: blurKernel(0, 1)},
		{Label: "postprocess bloom", Source: bloomSource, Fragment: bloomKernel},
		{Label: "postprocess blit", Source: blitSource, Fragment: blitKernel},
	}
}
