package shader

import (
	"fmt"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
)

// ShaderType identifies a pipeline stage a WGSL module provides an entry point for.
type ShaderType int

const (
	// ShaderTypeCompute indicates a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex indicates a @vertex entry point.
	ShaderTypeVertex

	// ShaderTypeFragment indicates a @fragment entry point.
	ShaderTypeFragment
)

// BindingKind is the resource category of a declared binding.
type BindingKind int

const (
	// BindingKindUniform is a var<uniform> buffer.
	BindingKindUniform BindingKind = iota

	// BindingKindStorage is a var<storage> buffer.
	BindingKindStorage

	// BindingKindSampler is a sampler or comparison sampler.
	BindingKindSampler

	// BindingKindTexture is a sampled texture, also used for read-only image loads.
	BindingKindTexture

	// BindingKindStorageTexture is a storage texture.
	BindingKindStorageTexture
)

// Binding is one @group/@binding resource declaration.
type Binding struct {
	Group   int
	Binding int
	Name    string
	Type    string
	Kind    BindingKind

	// Entry is the layout entry derived from the declaration.
	Entry wgpu.BindGroupLayoutEntry
}

// UniformMember is one member of a uniform-block struct placed at its byte offset.
type UniformMember struct {
	Name string
	Type string

	// Block is the name of the uniform variable that holds the member.
	Block   string
	Group   int
	Binding int
	Offset  uint64
	Size    uint64
}

// SamplerName returns the name of the sampler paired with the sampled texture name.
func SamplerName(texture string) string {
	return texture + "Sampler"
}

// shader is the implementation of the Shader interface.
type shader struct {
	key           string
	source        string
	entryPoints   map[ShaderType]string
	workGroupSize [3]uint32
	bindings      []Binding
	bindingIndex  map[string]int
	uniforms      map[string]UniformMember
	layouts       map[int]wgpu.BindGroupLayoutDescriptor
	module        *wgpu.ShaderModuleDescriptor

	pp PreProcessor
}

// Shader is a pre-processed and reflected WGSL module. It exposes the entry points,
// workgroup size, resource bindings and uniform member offsets a program needs to
// build pipelines and bind groups.
type Shader interface {
	// Key retrieves the unique identifier for this shader.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the pre-processed WGSL source.
	//
	// Returns:
	//   - string: the WGSL source code
	Source() string

	// HasStage reports whether the module has an entry point for the stage.
	HasStage(shaderType ShaderType) bool

	// EntryPoint returns the entry point name for the stage, or "".
	EntryPoint(shaderType ShaderType) string

	// WorkgroupSize returns the compute workgroup size, [1, 1, 1] when @workgroup_size
	// is absent and [0, 0, 0] for modules without a compute entry point.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Bindings returns every resource binding sorted by group and binding.
	Bindings() []Binding

	// Binding looks up a binding by variable name.
	//
	// Parameters:
	//   - name: the WGSL variable name
	//
	// Returns:
	//   - Binding: the binding
	//   - bool: true if the name is declared
	Binding(name string) (Binding, bool)

	// BindGroupLayoutDescriptors returns layout descriptors keyed by group index.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// UniformMember looks up a uniform-block struct member by name.
	//
	// Parameters:
	//   - name: the struct member name
	//
	// Returns:
	//   - UniformMember: the member with its block binding and byte offset
	//   - bool: true if the member exists
	UniformMember(name string) (UniformMember, bool)

	// UniformMembers returns every uniform member keyed by name.
	UniformMembers() map[string]UniformMember

	// Module returns the shader module descriptor built from the processed source.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor

	// Declarations returns the texture and image annotations found by the pre-processor.
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShader pre-processes and reflects WGSL source.
//
// Parameters:
//   - key: a unique identifier for the shader, used for labels and error messages
//   - source: the WGSL source, which may contain @oxy: annotations
//
// Returns:
//   - Shader: the reflected shader
//   - error: an error if pre-processing fails or the module declares no entry point
func NewShader(key string, source string) (Shader, error) {
	s := &shader{
		key:         key,
		entryPoints: make(map[ShaderType]string),
		pp:          NewPreProcessor(),
	}
	if err := s.parseSource(source); err != nil {
		return nil, err
	}
	return s, nil
}

// NewShaderFromPath reads a WGSL file and passes it to NewShader.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - sourcePath: the file path to read WGSL source from
//
// Returns:
//   - Shader: the reflected shader
//   - error: an error if the file cannot be read or the source is invalid
func NewShaderFromPath(key string, sourcePath string) (Shader, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to read source file %q: %w", sourcePath, err)
	}
	return NewShader(key, string(data))
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) HasStage(shaderType ShaderType) bool {
	_, ok := s.entryPoints[shaderType]
	return ok
}

func (s *shader) EntryPoint(shaderType ShaderType) string {
	return s.entryPoints[shaderType]
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Bindings() []Binding {
	return s.bindings
}

func (s *shader) Binding(name string) (Binding, bool) {
	i, ok := s.bindingIndex[name]
	if !ok {
		return Binding{}, false
	}
	return s.bindings[i], true
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.layouts
}

func (s *shader) UniformMember(name string) (UniformMember, bool) {
	m, ok := s.uniforms[name]
	return m, ok
}

func (s *shader) UniformMembers() map[string]UniformMember {
	return s.uniforms
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) Declarations() []Annotation {
	return s.pp.Declarations()
}

// parseSource pre-processes the source, builds the module descriptor and extracts
// entry points, workgroup size, bindings and uniform offsets.
func (s *shader) parseSource(raw string) error {
	source, err := s.pp.Process(raw)
	if err != nil {
		return fmt.Errorf("shader: failed to pre-process %q: %w", s.key, err)
	}
	s.source = source
	s.module = &wgpu.ShaderModuleDescriptor{
		Label: s.key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.source,
		},
	}

	for _, t := range []ShaderType{ShaderTypeCompute, ShaderTypeVertex, ShaderTypeFragment} {
		if ep := parseEntryPoint(s.source, t); ep != "" {
			s.entryPoints[t] = ep
		}
	}
	if len(s.entryPoints) == 0 {
		return fmt.Errorf("shader: %q declares no entry point", s.key)
	}

	visibility := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	if s.HasStage(ShaderTypeCompute) {
		s.workGroupSize = parseWorkgroupSize(s.source)
		visibility = wgpu.ShaderStageCompute
	}

	s.bindings = parseBindings(s.source, visibility)
	s.bindingIndex = make(map[string]int, len(s.bindings))
	for i, b := range s.bindings {
		s.bindingIndex[b.Name] = i
	}
	s.layouts = buildBindGroupLayouts(s.bindings)
	s.uniforms = parseUniformMembers(s.source, s.bindings)
	return nil
}
