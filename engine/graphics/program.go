package graphics

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/graphics/shader"
)

// AccessMode is the access a program has to an image unit.
type AccessMode int

const (
	// AccessReadOnly allows texel loads.
	AccessReadOnly AccessMode = iota

	// AccessWriteOnly allows texel stores.
	AccessWriteOnly
)

func (a AccessMode) String() string {
	switch a {
	case AccessReadOnly:
		return "read-only"
	case AccessWriteOnly:
		return "write-only"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(a))
	}
}

// defaultWorkgroupSize is used when a program declares no workgroup size.
const defaultWorkgroupSize = 8

// ComputeKernel runs one compute invocation on the software backend.
type ComputeKernel func(inv *Invocation)

// FragmentKernel shades one pixel of a full-screen draw on the software backend and
// returns its linear RGBA color.
type FragmentKernel func(inv *Invocation) [4]float32

// ProgramDescriptor describes a shader program. The WGPU backend compiles Source; the
// software backend runs Compute or Fragment. A descriptor may carry both forms so one
// description serves either backend.
type ProgramDescriptor struct {
	Label string

	// Source is WGSL. When set, its bindings and uniform members define the names the
	// program accepts and its @workgroup_size defines the Dispatch2D tile.
	Source string

	Compute  ComputeKernel
	Fragment FragmentKernel
}

// Validate reports whether the descriptor describes exactly one kind of program.
func (d ProgramDescriptor) Validate() error {
	if d.Source == "" && d.Compute == nil && d.Fragment == nil {
		return invalidf("program %q has neither source nor kernel", d.Label)
	}
	if d.Compute != nil && d.Fragment != nil {
		return invalidf("program %q has both a compute and a fragment kernel", d.Label)
	}
	return nil
}

// Program is the bind / uniform / texture / image / dispatch / draw surface of a compiled
// shader program. Texture and image bindings go through the device's unit tables, so a
// binding made for one program stays on its unit until replaced.
type Program interface {
	// Descriptor returns the creation descriptor.
	Descriptor() ProgramDescriptor

	// Label returns the program's debug label.
	Label() string

	// IsCompute reports whether the program runs with Dispatch rather than Draw.
	IsCompute() bool

	// WorkgroupSize returns the tile used by Dispatch2D.
	//
	// Returns:
	//   - int: tile width in invocations
	//   - int: tile height in invocations
	WorkgroupSize() (int, int)

	// Bind makes this the device's current program.
	Bind()

	// SetUniform sets a float uniform. Values persist across frames until set again.
	//
	// Parameters:
	//   - name: the uniform member name
	//   - value: the value
	SetUniform(name string, value float32)

	// SetUniformInt sets an integer uniform.
	//
	// Parameters:
	//   - name: the uniform member name
	//   - value: the value
	SetUniformInt(name string, value int32)

	// BindTexture binds tex to a sampler unit and associates the unit with the sampled
	// texture variable name.
	//
	// Parameters:
	//   - name: the sampled texture variable
	//   - tex: the texture, never nil
	//   - unit: the sampler unit
	BindTexture(name string, tex Texture, unit int)

	// BindImage binds one mip level of tex to an image unit for load or store access and
	// associates the unit with the image variable name.
	//
	// Parameters:
	//   - name: the image variable
	//   - tex: the texture, never nil
	//   - unit: the image unit
	//   - mipLevel: the bound mip level
	//   - layered: whether every layer is bound (2D textures have one layer)
	//   - layer: the bound layer when layered is false
	//   - access: AccessReadOnly or AccessWriteOnly
	BindImage(name string, tex Texture, unit, mipLevel int, layered bool, layer int, access AccessMode)

	// Dispatch2D runs the compute program over a width x height grid using the program's
	// workgroup size as the tile.
	Dispatch2D(width, height int)

	// Dispatch2DTiled runs the compute program over ceil(width/tileW) x ceil(height/tileH)
	// workgroups.
	Dispatch2DTiled(width, height, tileW, tileH int)

	// Draw rasterizes a full-screen triangle into the device's active target, clipped
	// to the viewport and subject to the depth test state.
	//
	// Parameters:
	//   - vertexCount: must be 3
	Draw(vertexCount int)

	// Release frees the program.
	Release()
}

// programResource is the construction surface every program variant implements.
type programResource interface {
	Program
	setDevice(h DeviceHandle)
	create(desc ProgramDescriptor) error
}

// uniformValue is a float or int uniform value.
type uniformValue struct {
	f     float32
	i     int32
	isInt bool
}

// programBase holds the state shared by the program variants.
type programBase struct {
	mu         sync.Mutex
	desc       ProgramDescriptor
	handle     DeviceHandle
	reflection shader.Shader
	compute    bool
	workgroup  [2]int
	released   bool

	uniforms map[string]uniformValue
	textures map[string]int
	images   map[string]int
}

func (p *programBase) Descriptor() ProgramDescriptor {
	return p.desc
}

func (p *programBase) Label() string {
	return p.desc.Label
}

func (p *programBase) IsCompute() bool {
	return p.compute
}

func (p *programBase) WorkgroupSize() (int, int) {
	return p.workgroup[0], p.workgroup[1]
}

func (p *programBase) setDevice(h DeviceHandle) {
	p.handle = h
}

// initBase validates desc and reflects its WGSL source when present.
func (p *programBase) initBase(desc ProgramDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	p.desc = desc
	p.uniforms = make(map[string]uniformValue)
	p.textures = make(map[string]int)
	p.images = make(map[string]int)
	p.workgroup = [2]int{defaultWorkgroupSize, defaultWorkgroupSize}
	p.compute = desc.Compute != nil

	if desc.Source != "" {
		s, err := shader.NewShader(desc.Label, desc.Source)
		if err != nil {
			return invalidf("program %q: %v", desc.Label, err)
		}
		p.reflection = s
		p.compute = s.HasStage(shader.ShaderTypeCompute)
		if p.compute {
			wg := s.WorkgroupSize()
			p.workgroup = [2]int{int(wg[0]), int(wg[1])}
		} else if !s.HasStage(shader.ShaderTypeFragment) {
			return invalidf("program %q has neither a compute nor a fragment entry point", desc.Label)
		}
	}
	return nil
}

func (p *programBase) checkLive() {
	precondition(!p.released, "use of released program %q", p.desc.Label)
}

func (p *programBase) bindSelf(self Program) {
	p.checkLive()
	mustDevice(p.handle).bindProgram(self)
}

// setUniformValue records a uniform after checking the name against the reflected source.
func (p *programBase) setUniformValue(name string, v uniformValue) {
	p.checkLive()
	if p.reflection != nil {
		_, ok := p.reflection.UniformMember(name)
		precondition(ok, "program %q has no uniform %q", p.desc.Label, name)
	}
	p.mu.Lock()
	p.uniforms[name] = v
	p.mu.Unlock()

	mustDevice(p.handle).record(Command{
		Kind:     CommandSetUniform,
		Program:  p.desc.Label,
		Name:     name,
		Value:    v.f,
		IntValue: v.i,
		IsInt:    v.isInt,
	})
}

func (p *programBase) SetUniform(name string, value float32) {
	p.setUniformValue(name, uniformValue{f: value})
}

func (p *programBase) SetUniformInt(name string, value int32) {
	p.setUniformValue(name, uniformValue{i: value, isInt: true})
}

// uniform returns a uniform value as float32, zero when never set.
func (p *programBase) uniform(name string) float32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.uniforms[name]
	if v.isInt {
		return float32(v.i)
	}
	return v.f
}

func (p *programBase) uniformInt(name string) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.uniforms[name]
	if v.isInt {
		return v.i
	}
	return int32(v.f)
}

func (p *programBase) BindTexture(name string, tex Texture, unit int) {
	p.checkLive()
	precondition(tex != nil, "program %q: nil texture bound to %q", p.desc.Label, name)
	precondition(unit >= 0, "program %q: negative sampler unit %d", p.desc.Label, unit)
	if p.reflection != nil {
		b, ok := p.reflection.Binding(name)
		precondition(ok && b.Kind == shader.BindingKindTexture, "program %q has no sampled texture %q", p.desc.Label, name)
	}
	d := mustDevice(p.handle)
	precondition(tex.Device() == p.handle, "program %q: texture %q belongs to another device", p.desc.Label, tex.Descriptor().Label)
	d.bindTextureUnit(unit, tex)

	p.mu.Lock()
	p.textures[name] = unit
	p.mu.Unlock()

	d.record(Command{
		Kind:    CommandBindTexture,
		Program: p.desc.Label,
		Name:    name,
		Unit:    unit,
		Texture: tex.Descriptor().Label,
	})
}

func (p *programBase) BindImage(name string, tex Texture, unit, mipLevel int, layered bool, layer int, access AccessMode) {
	p.checkLive()
	precondition(tex != nil, "program %q: nil texture bound to image %q", p.desc.Label, name)
	precondition(unit >= 0, "program %q: negative image unit %d", p.desc.Label, unit)
	precondition(access == AccessReadOnly || access == AccessWriteOnly, "program %q: invalid access mode %v", p.desc.Label, access)
	desc := tex.Descriptor()
	precondition(mipLevel >= 0 && mipLevel < desc.LevelCount(), "program %q: texture %q has no mip level %d", p.desc.Label, desc.Label, mipLevel)
	precondition(layered || layer == 0, "program %q: texture %q has no layer %d", p.desc.Label, desc.Label, layer)
	precondition(!desc.Format.IsDepth(), "program %q: depth texture %q cannot be bound as an image", p.desc.Label, desc.Label)
	if access == AccessWriteOnly {
		precondition(desc.Format.Storable(), "program %q: format %v of %q is not writable as an image", p.desc.Label, desc.Format, desc.Label)
	}
	if p.reflection != nil {
		b, ok := p.reflection.Binding(name)
		precondition(ok && (b.Kind == shader.BindingKindTexture || b.Kind == shader.BindingKindStorageTexture), "program %q has no image %q", p.desc.Label, name)
		declared := AccessReadOnly
		if b.Kind == shader.BindingKindStorageTexture {
			declared = AccessWriteOnly
		}
		precondition(declared == access, "program %q: image %q is declared %v", p.desc.Label, name, declared)
	}
	d := mustDevice(p.handle)
	precondition(tex.Device() == p.handle, "program %q: texture %q belongs to another device", p.desc.Label, desc.Label)
	d.bindImageUnit(unit, imageBinding{
		texture:  tex,
		mipLevel: mipLevel,
		layered:  layered,
		layer:    layer,
		access:   access,
	})

	p.mu.Lock()
	p.images[name] = unit
	p.mu.Unlock()

	d.record(Command{
		Kind:     CommandBindImage,
		Program:  p.desc.Label,
		Name:     name,
		Unit:     unit,
		Texture:  desc.Label,
		MipLevel: mipLevel,
		Access:   access,
	})
}

// textureUnit returns the sampler unit bound to name.
func (p *programBase) textureUnit(name string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.textures[name]
	return u, ok
}

// imageUnit returns the image unit bound to name.
func (p *programBase) imageUnit(name string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.images[name]
	return u, ok
}

// beginDispatch checks that self is current and computes the workgroup counts.
func (p *programBase) beginDispatch(self Program, width, height, tileW, tileH int) (*device, int, int) {
	p.checkLive()
	precondition(p.compute, "program %q is not a compute program", p.desc.Label)
	precondition(width > 0 && height > 0, "program %q: dispatch over empty grid %dx%d", p.desc.Label, width, height)
	precondition(tileW > 0 && tileH > 0, "program %q: invalid tile %dx%d", p.desc.Label, tileW, tileH)
	d := mustDevice(p.handle)
	precondition(d.currentProgram() == self, "program %q dispatched while not bound", p.desc.Label)
	gx, gy := common.DivideByMultiple(width, tileW), common.DivideByMultiple(height, tileH)
	d.record(Command{
		Kind:    CommandDispatch,
		Program: p.desc.Label,
		GroupsX: gx,
		GroupsY: gy,
	})
	common.Logger().Debug("dispatch", "program", p.desc.Label, "groups_x", gx, "groups_y", gy)
	return d, gx, gy
}

// beginDraw checks that self is current and records the draw.
func (p *programBase) beginDraw(self Program, vertexCount int) *device {
	p.checkLive()
	precondition(!p.compute, "program %q is a compute program", p.desc.Label)
	precondition(vertexCount == 3, "program %q: only full-screen triangles are supported, got %d vertices", p.desc.Label, vertexCount)
	d := mustDevice(p.handle)
	precondition(d.currentProgram() == self, "program %q drawn while not bound", p.desc.Label)
	d.record(Command{
		Kind:        CommandDraw,
		Program:     p.desc.Label,
		Target:      d.Framebuffer().Label(),
		VertexCount: vertexCount,
	})
	return d
}

// releaseBase marks the program released. It reports false on a repeated call.
func (p *programBase) releaseBase(self Program) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return false
	}
	p.released = true
	if d, ok := lookupDevice(p.handle); ok {
		d.forgetProgram(self)
	}
	return true
}
