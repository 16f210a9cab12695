package graphics

import (
	"sync"
)

// Invocation is the per-invocation view a Go kernel gets of its program's bindings.
// Compute kernels use the Global/Local/Group coordinates; fragment kernels use
// FragX/FragY and the viewport-relative U/V.
type Invocation struct {
	GlobalX, GlobalY int
	LocalX, LocalY   int
	GroupX, GroupY   int

	// FragX and FragY are the target pixel of a fragment invocation.
	FragX, FragY int

	// U and V are the pixel center relative to the viewport, (0, 0) at its top-left corner.
	U, V float32

	ctx *kernelContext
}

// Uniform returns a float uniform, zero when never set.
func (inv *Invocation) Uniform(name string) float32 {
	v := inv.ctx.uniforms[name]
	if v.isInt {
		return float32(v.i)
	}
	return v.f
}

// UniformInt returns an integer uniform, zero when never set.
func (inv *Invocation) UniformInt(name string) int32 {
	v := inv.ctx.uniforms[name]
	if v.isInt {
		return v.i
	}
	return int32(v.f)
}

// Sample filters the texture bound to name at (u, v) with its wrap and filter modes.
func (inv *Invocation) Sample(name string, u, v float32) [4]float32 {
	return sampleTexture(inv.ctx.texture(name), u, v)
}

// TextureSize returns the level 0 size of the texture bound to name.
func (inv *Invocation) TextureSize(name string) (int, int) {
	d := inv.ctx.texture(name).desc
	return d.Width, d.Height
}

// Load reads a texel from the read-only image bound to name. Out-of-range reads return zero.
func (inv *Invocation) Load(name string, x, y int) [4]float32 {
	img := inv.ctx.image(name)
	precondition(img.access == AccessReadOnly, "program %q: load from write-only image %q", inv.ctx.label, name)
	return loadTexel(img.format, img.data, img.width, img.height, x, y)
}

// Store writes a texel to the write-only image bound to name. Out-of-range writes are dropped.
func (inv *Invocation) Store(name string, x, y int, c [4]float32) {
	img := inv.ctx.image(name)
	precondition(img.access == AccessWriteOnly, "program %q: store to read-only image %q", inv.ctx.label, name)
	storeTexel(img.format, img.data, img.width, img.height, x, y, c)
}

// ImageSize returns the size of the mip level bound to name.
func (inv *Invocation) ImageSize(name string) (int, int) {
	img := inv.ctx.image(name)
	return img.width, img.height
}

// resolvedImage is an image binding resolved to its backing level.
type resolvedImage struct {
	data          []byte
	format        TextureFormat
	width, height int
	access        AccessMode
}

// kernelContext snapshots a program's bindings for one dispatch or draw.
type kernelContext struct {
	label    string
	uniforms map[string]uniformValue
	textures map[string]*softwareTexture
	images   map[string]resolvedImage
}

func (c *kernelContext) texture(name string) *softwareTexture {
	t, ok := c.textures[name]
	precondition(ok, "program %q: texture %q is not bound", c.label, name)
	return t
}

func (c *kernelContext) image(name string) resolvedImage {
	img, ok := c.images[name]
	precondition(ok, "program %q: image %q is not bound", c.label, name)
	return img
}

// softwareProgram runs Go kernels on the CPU. Each dispatch or draw fans rows out over
// goroutines and waits for them.
type softwareProgram struct {
	programBase
}

var _ programResource = &softwareProgram{}

func (p *softwareProgram) create(desc ProgramDescriptor) error {
	if err := p.initBase(desc); err != nil {
		return err
	}
	if desc.Compute == nil && desc.Fragment == nil {
		return invalidf("program %q has no kernel for the software backend", desc.Label)
	}
	if desc.Source != "" && p.compute != (desc.Compute != nil) {
		return invalidf("program %q source and kernel disagree on the stage", desc.Label)
	}
	p.compute = desc.Compute != nil
	return nil
}

func (p *softwareProgram) Bind() {
	p.bindSelf(p)
}

// snapshot resolves the program's unit associations against the device tables.
func (p *softwareProgram) snapshot(d *device) *kernelContext {
	ctx := &kernelContext{
		label:    p.desc.Label,
		uniforms: make(map[string]uniformValue),
		textures: make(map[string]*softwareTexture),
		images:   make(map[string]resolvedImage),
	}

	p.mu.Lock()
	for k, v := range p.uniforms {
		ctx.uniforms[k] = v
	}
	textures := make(map[string]int, len(p.textures))
	for k, v := range p.textures {
		textures[k] = v
	}
	images := make(map[string]int, len(p.images))
	for k, v := range p.images {
		images[k] = v
	}
	p.mu.Unlock()

	for name, unit := range textures {
		t, ok := d.textureAt(unit).(*softwareTexture)
		if !ok {
			continue
		}
		ctx.textures[name] = t
	}
	for name, unit := range images {
		b, ok := d.imageAt(unit)
		if !ok {
			continue
		}
		t, ok := b.texture.(*softwareTexture)
		if !ok {
			continue
		}
		w, h := t.desc.LevelSize(b.mipLevel)
		ctx.images[name] = resolvedImage{
			data:   t.level(b.mipLevel),
			format: t.desc.Format,
			width:  w,
			height: h,
			access: b.access,
		}
	}
	return ctx
}

func (p *softwareProgram) Dispatch2D(width, height int) {
	wx, wy := p.WorkgroupSize()
	p.Dispatch2DTiled(width, height, wx, wy)
}

// Dispatch2DTiled runs tileW x tileH invocations per workgroup.
func (p *softwareProgram) Dispatch2DTiled(width, height, tileW, tileH int) {
	d, gx, gy := p.beginDispatch(p, width, height, tileW, tileH)
	ctx := p.snapshot(d)
	kernel := p.desc.Compute

	// One goroutine per workgroup row stands in for GPU invocation parallelism.
	var wg sync.WaitGroup
	for groupY := 0; groupY < gy; groupY++ {
		wg.Add(1)
		go func(groupY int) {
			defer wg.Done()
			inv := Invocation{GroupY: groupY, ctx: ctx}
			for groupX := 0; groupX < gx; groupX++ {
				inv.GroupX = groupX
				for ly := 0; ly < tileH; ly++ {
					for lx := 0; lx < tileW; lx++ {
						inv.LocalX, inv.LocalY = lx, ly
						inv.GlobalX, inv.GlobalY = groupX*tileW+lx, groupY*tileH+ly
						kernel(&inv)
					}
				}
			}
		}(groupY)
	}
	wg.Wait()
}

// Draw shades every pixel of viewport ∩ target. Fragments sit at depth 0.5; with the
// depth test on they pass when closer than the stored depth and write it.
func (p *softwareProgram) Draw(vertexCount int) {
	d := p.beginDraw(p, vertexCount)
	ctx := p.snapshot(d)
	kernel := p.desc.Fragment

	fb, colorTex, depthTex := d.activeTarget()
	color, ok := colorTex.(*softwareTexture)
	precondition(ok, "program %q: target %q has no software color attachment", p.desc.Label, fb.Label())
	var depth *softwareTexture
	if d.DepthTest() && depthTex != nil {
		depth, _ = depthTex.(*softwareTexture)
	}

	vp := d.Viewport()
	if vp.Width <= 0 || vp.Height <= 0 {
		return
	}
	tw, th := color.desc.Width, color.desc.Height
	x0, y0 := max(0, vp.X), max(0, vp.Y)
	x1, y1 := min(tw, vp.X+vp.Width), min(th, vp.Y+vp.Height)
	if x0 >= x1 || y0 >= y1 {
		return
	}

	colorLevel := color.level(0)
	var depthLevel []byte
	if depth != nil {
		depthLevel = depth.level(0)
	}
	const fragDepth = float32(0.5)

	// Rows shade concurrently, like fragments on a GPU.
	var wg sync.WaitGroup
	for y := y0; y < y1; y++ {
		wg.Add(1)
		go func(y int) {
			defer wg.Done()
			inv := Invocation{FragY: y, ctx: ctx}
			inv.V = (float32(y-vp.Y) + 0.5) / float32(vp.Height)
			for x := x0; x < x1; x++ {
				if depthLevel != nil {
					stored := loadTexel(depth.desc.Format, depthLevel, tw, th, x, y)
					if !(fragDepth < stored[0]) {
						continue
					}
					storeTexel(depth.desc.Format, depthLevel, tw, th, x, y, [4]float32{fragDepth, 0, 0, 1})
				}
				inv.FragX = x
				inv.U = (float32(x-vp.X) + 0.5) / float32(vp.Width)
				storeTexel(color.desc.Format, colorLevel, tw, th, x, y, kernel(&inv))
			}
		}(y)
	}
	wg.Wait()
}

func (p *softwareProgram) Release() {
	p.releaseBase(p)
}
