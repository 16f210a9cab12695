package graphics

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderPipelineKey identifies one render pipeline variant of a program.
type renderPipelineKey struct {
	color     wgpu.TextureFormat
	depth     wgpu.TextureFormat
	hasDepth  bool
	depthTest bool
}

// wgpuProgram compiles WGSL once and builds bind groups from the reflected bindings on
// every dispatch or draw. Render pipelines are created per target format and depth state.
type wgpuProgram struct {
	programBase
	module          *wgpu.ShaderModule
	layouts         []*wgpu.BindGroupLayout
	pipelineLayout  *wgpu.PipelineLayout
	computePipeline *wgpu.ComputePipeline
	renderPipelines map[renderPipelineKey]*wgpu.RenderPipeline
}

var _ programResource = &wgpuProgram{}

func (p *wgpuProgram) backend() *wgpuDeviceBackend {
	return mustDevice(p.handle).wgpuBackend()
}

func (p *wgpuProgram) create(desc ProgramDescriptor) error {
	if err := p.initBase(desc); err != nil {
		return err
	}
	if p.reflection == nil {
		return invalidf("program %q has no WGSL source for the wgpu backend", desc.Label)
	}
	b := p.backend()
	p.renderPipelines = make(map[renderPipelineKey]*wgpu.RenderPipeline)

	module, err := b.gpu.CreateShaderModule(p.reflection.Module())
	if err != nil {
		return invalidf("program %q failed to compile: %v", desc.Label, err)
	}
	p.module = module

	descriptors := p.reflection.BindGroupLayoutDescriptors()
	maxGroup := -1
	for g := range descriptors {
		maxGroup = max(maxGroup, g)
	}
	p.layouts = make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := range p.layouts {
		layoutDesc, ok := descriptors[g]
		if !ok {
			layoutDesc = wgpu.BindGroupLayoutDescriptor{Label: fmt.Sprintf("%s Empty Group %d", desc.Label, g)}
		}
		bgl, err := b.gpu.CreateBindGroupLayout(&layoutDesc)
		if err != nil {
			p.releaseObjects()
			return allocationf(err, "bind group layout %d of program %q", g, desc.Label)
		}
		p.layouts[g] = bgl
	}

	p.pipelineLayout, err = b.gpu.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: p.layouts,
	})
	if err != nil {
		p.releaseObjects()
		return allocationf(err, "pipeline layout of program %q", desc.Label)
	}

	if !p.compute {
		return nil
	}
	p.computePipeline, err = b.gpu.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label + " Compute Pipeline",
		Layout: p.pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     p.module,
			EntryPoint: p.reflection.EntryPoint(shader.ShaderTypeCompute),
		},
	})
	if err != nil {
		p.releaseObjects()
		return invalidf("program %q compute pipeline: %v", desc.Label, err)
	}
	return nil
}

func (p *wgpuProgram) Bind() {
	p.bindSelf(p)
}

// renderPipeline returns the pipeline for key, creating it on first use.
func (p *wgpuProgram) renderPipeline(b *wgpuDeviceBackend, key renderPipelineKey) (*wgpu.RenderPipeline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rp, ok := p.renderPipelines[key]; ok {
		return rp, nil
	}
	desc := &wgpu.RenderPipelineDescriptor{
		Label:  p.desc.Label + " Render Pipeline",
		Layout: p.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     p.module,
			EntryPoint: p.reflection.EntryPoint(shader.ShaderTypeVertex),
		},
		Fragment: &wgpu.FragmentState{
			Module:     p.module,
			EntryPoint: p.reflection.EntryPoint(shader.ShaderTypeFragment),
			Targets: []wgpu.ColorTargetState{{
				Format:    key.color,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if key.hasDepth {
		depthCompare := wgpu.CompareFunctionLess
		if !key.depthTest {
			depthCompare = wgpu.CompareFunctionAlways
		}
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            key.depth,
			DepthWriteEnabled: key.depthTest,
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}
	rp, err := b.gpu.CreateRenderPipeline(desc)
	if err != nil {
		return nil, err
	}
	p.renderPipelines[key] = rp
	return rp, nil
}

// uniformBlock packs the stored uniform values of one var<uniform> binding.
func (p *wgpuProgram) uniformBlock(binding shader.Binding) []byte {
	size := int(binding.Entry.Buffer.MinBindingSize)
	for _, m := range p.reflection.UniformMembers() {
		if m.Group == binding.Group && m.Binding == binding.Binding {
			size = max(size, int(m.Offset+m.Size))
		}
	}
	block := make([]byte, common.AlignUp(max(size, 16), 16))

	p.mu.Lock()
	defer p.mu.Unlock()

	for name, v := range p.uniforms {
		m, ok := p.reflection.UniformMember(name)
		if !ok || m.Group != binding.Group || m.Binding != binding.Binding || m.Size < 4 {
			continue
		}
		dst := block[m.Offset : m.Offset+4]
		switch {
		case strings.HasPrefix(m.Type, "f32"):
			f := v.f
			if v.isInt {
				f = float32(v.i)
			}
			binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
		case strings.HasPrefix(m.Type, "i32"), strings.HasPrefix(m.Type, "u32"):
			i := v.i
			if !v.isInt {
				i = int32(v.f)
			}
			binary.LittleEndian.PutUint32(dst, uint32(i))
		}
	}
	return block
}

// bindGroups resolves every reflected binding against the device unit tables. The
// returned transient objects must be released after the commands are submitted.
func (p *wgpuProgram) bindGroups(d *device, b *wgpuDeviceBackend) ([]*wgpu.BindGroup, []releaser, error) {
	entries := make([][]wgpu.BindGroupEntry, len(p.layouts))
	var transient []releaser

	for _, binding := range p.reflection.Bindings() {
		entry := wgpu.BindGroupEntry{Binding: uint32(binding.Binding)}
		switch binding.Kind {
		case shader.BindingKindUniform:
			block := p.uniformBlock(binding)
			data, err := d.CreateGraphicsData(GraphicsDataDescriptor{
				Label: p.desc.Label + " " + binding.Name,
				Type:  GraphicsDataTypeUniform,
				Usage: GraphicsUsageWrite,
				Size:  len(block),
				Data:  block,
			})
			if err != nil {
				return nil, transient, err
			}
			transient = append(transient, data)
			entry.Buffer = data.(*wgpuGraphicsData).gpuBuffer()
			entry.Size = wgpu.WholeSize
		case shader.BindingKindSampler:
			tex := p.sampledTexture(d, strings.TrimSuffix(binding.Name, "Sampler"))
			_, entry.Sampler = tex.sampling()
		case shader.BindingKindTexture:
			if unit, ok := p.imageUnit(binding.Name); ok {
				entry.TextureView = p.imageView(d, binding.Name, unit)
				break
			}
			entry.TextureView, _ = p.sampledTexture(d, binding.Name).sampling()
		case shader.BindingKindStorageTexture:
			unit, ok := p.imageUnit(binding.Name)
			precondition(ok, "program %q: image %q is not bound", p.desc.Label, binding.Name)
			entry.TextureView = p.imageView(d, binding.Name, unit)
		default:
			panic(fmt.Sprintf("graphics: program %q: storage buffer %q cannot be bound through a program", p.desc.Label, binding.Name))
		}
		entries[binding.Group] = append(entries[binding.Group], entry)
	}

	groups := make([]*wgpu.BindGroup, len(p.layouts))
	for g, layout := range p.layouts {
		bg, err := b.gpu.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s Group %d", p.desc.Label, g),
			Layout:  layout,
			Entries: entries[g],
		})
		if err != nil {
			return nil, transient, allocationf(err, "bind group %d of program %q", g, p.desc.Label)
		}
		groups[g] = bg
		transient = append(transient, bg)
	}
	return groups, transient, nil
}

// sampledTexture resolves a sampled texture name through the sampler unit table.
func (p *wgpuProgram) sampledTexture(d *device, name string) *wgpuTexture {
	unit, ok := p.textureUnit(name)
	precondition(ok, "program %q: texture %q is not bound", p.desc.Label, name)
	tex, ok := d.textureAt(unit).(*wgpuTexture)
	precondition(ok, "program %q: sampler unit %d of %q holds no texture", p.desc.Label, unit, name)
	return tex
}

// imageView resolves an image name through the image unit table.
func (p *wgpuProgram) imageView(d *device, name string, unit int) *wgpu.TextureView {
	b, ok := d.imageAt(unit)
	precondition(ok, "program %q: image unit %d of %q is empty", p.desc.Label, unit, name)
	tex, ok := b.texture.(*wgpuTexture)
	precondition(ok, "program %q: image %q is not a wgpu texture", p.desc.Label, name)
	return tex.levelView(b.mipLevel)
}

func (p *wgpuProgram) Dispatch2D(width, height int) {
	wx, wy := p.WorkgroupSize()
	p.Dispatch2DTiled(width, height, wx, wy)
}

// Dispatch2DTiled requires the tile to equal the declared @workgroup_size.
func (p *wgpuProgram) Dispatch2DTiled(width, height, tileW, tileH int) {
	wx, wy := p.WorkgroupSize()
	precondition(tileW == wx && tileH == wy, "program %q: tile %dx%d differs from workgroup size %dx%d", p.desc.Label, tileW, tileH, wx, wy)
	d, gx, gy := p.beginDispatch(p, width, height, tileW, tileH)
	b := d.wgpuBackend()

	groups, transient, err := p.bindGroups(d, b)
	defer p.releaseTransient(b, transient)
	if err != nil {
		common.Logger().Error("dispatch skipped", "program", p.desc.Label, "error", err)
		return
	}
	encoder, err := b.commandEncoder()
	if err != nil {
		common.Logger().Error("dispatch skipped", "program", p.desc.Label, "error", err)
		return
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.computePipeline)
	for i, bg := range groups {
		pass.SetBindGroup(uint32(i), bg, nil)
	}
	pass.DispatchWorkgroups(uint32(gx), uint32(gy), 1)
	pass.End()
	pass.Release()
}

// Draw renders a full-screen triangle. The viewport is clamped to the target, which
// WebGPU requires.
func (p *wgpuProgram) Draw(vertexCount int) {
	d := p.beginDraw(p, vertexCount)
	b := d.wgpuBackend()

	key := renderPipelineKey{depthTest: d.DepthTest()}
	var colorView, depthView *wgpu.TextureView
	var targetW, targetH int

	fb, colorTex, depthTex := d.activeTarget()
	if colorTex == nil {
		view, format, err := b.surfaceView()
		if err != nil {
			common.Logger().Warn("draw skipped", "program", p.desc.Label, "error", err)
			return
		}
		colorView, key.color = view, format
		targetW, targetH = d.Size()
	} else {
		tex, ok := colorTex.(*wgpuTexture)
		precondition(ok, "program %q: target %q has no wgpu color attachment", p.desc.Label, fb.Label())
		colorView, key.color = tex.levelView(0), tex.desc.Format.WGPU()
		targetW, targetH = tex.desc.Width, tex.desc.Height
	}
	if tex, ok := depthTex.(*wgpuTexture); ok && tex != nil {
		depthView, key.depth, key.hasDepth = tex.levelView(0), tex.desc.Format.WGPU(), true
	}

	vp := d.Viewport()
	x0, y0 := max(0, vp.X), max(0, vp.Y)
	x1, y1 := min(targetW, vp.X+vp.Width), min(targetH, vp.Y+vp.Height)
	if x0 >= x1 || y0 >= y1 {
		return
	}

	rp, err := p.renderPipeline(b, key)
	if err != nil {
		common.Logger().Error("draw skipped", "program", p.desc.Label, "error", err)
		return
	}
	groups, transient, err := p.bindGroups(d, b)
	defer p.releaseTransient(b, transient)
	if err != nil {
		common.Logger().Error("draw skipped", "program", p.desc.Label, "error", err)
		return
	}
	encoder, err := b.commandEncoder()
	if err != nil {
		common.Logger().Error("draw skipped", "program", p.desc.Label, "error", err)
		return
	}

	passDesc := &wgpu.RenderPassDescriptor{
		Label: p.desc.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    colorView,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		}},
	}
	if key.hasDepth {
		passDesc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:         depthView,
			DepthLoadOp:  wgpu.LoadOpLoad,
			DepthStoreOp: wgpu.StoreOpStore,
		}
		if key.depth == wgpu.TextureFormatDepth24PlusStencil8 {
			passDesc.DepthStencilAttachment.StencilLoadOp = wgpu.LoadOpLoad
			passDesc.DepthStencilAttachment.StencilStoreOp = wgpu.StoreOpStore
		}
	}
	pass := encoder.BeginRenderPass(passDesc)
	pass.SetPipeline(rp)
	for i, bg := range groups {
		pass.SetBindGroup(uint32(i), bg, nil)
	}
	pass.SetViewport(float32(x0), float32(y0), float32(x1-x0), float32(y1-y0), 0, 1)
	pass.Draw(uint32(vertexCount), 1, 0, 0)
	pass.End()
	pass.Release()
}

// releaseTransient releases per-call uniform buffers and bind groups after the next submit.
func (p *wgpuProgram) releaseTransient(b *wgpuDeviceBackend, transient []releaser) {
	for _, r := range transient {
		if data, ok := r.(GraphicsData); ok {
			data.Release()
			continue
		}
		b.deferRelease(r)
	}
}

func (p *wgpuProgram) Release() {
	if p.releaseBase(p) {
		p.mu.Lock()
		p.releaseObjects()
		p.mu.Unlock()
	}
}

func (p *wgpuProgram) releaseObjects() {
	var objects []releaser
	for _, rp := range p.renderPipelines {
		objects = append(objects, rp)
	}
	if p.computePipeline != nil {
		objects = append(objects, p.computePipeline)
	}
	if p.pipelineLayout != nil {
		objects = append(objects, p.pipelineLayout)
	}
	for _, l := range p.layouts {
		if l != nil {
			objects = append(objects, l)
		}
	}
	if p.module != nil {
		objects = append(objects, p.module)
	}
	p.renderPipelines, p.computePipeline, p.pipelineLayout, p.layouts, p.module = nil, nil, nil, nil, nil

	d, ok := lookupDevice(p.handle)
	for _, o := range objects {
		if ok {
			d.wgpuBackend().deferRelease(o)
			continue
		}
		o.Release()
	}
}
