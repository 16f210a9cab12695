// pre_processor.go implements the Oxy WGSL shader pre-processor. It replaces @oxy:
// annotations with shared WGSL snippets or generated binding declarations and collects
// the binding declarations in source order.
package shader

import (
	_ "embed"
	"fmt"
	"strings"
)

var (
	//go:embed assets/fullscreen.wgsl
	fullscreenSource string

	//go:embed assets/luminance.wgsl
	luminanceSource string

	//go:embed assets/tonemap.wgsl
	tonemapSource string
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// snippets maps include keys to embedded WGSL source.
	snippets map[AnnotationArg]string

	// declarations accumulates texture and image annotations during a Process call.
	declarations []Annotation
}

// PreProcessor expands @oxy: annotations in WGSL source.
type PreProcessor interface {
	// Process replaces every annotation in source with its WGSL output. The declarations
	// list is reset at the start of each call.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unknown snippet
	Process(source string) (string, error)

	// Declarations returns the texture and image annotations collected during the most
	// recent call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the built-in snippets registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		snippets: map[AnnotationArg]string{
			AnnotationArgFullscreen: fullscreenSource,
			AnnotationArgLuminance:  luminanceSource,
			AnnotationArgTonemap:    tonemapSource,
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			snippet, ok := p.snippets[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, a.Args[0])
			}
			out = append(out, snippet)
		case AnnotationTypeTexture:
			name := string(a.Args[0])
			out = append(out,
				fmt.Sprintf("@group(%d) @binding(%d) var %s: texture_2d<f32>;", *a.Group, *a.Binding, name),
				fmt.Sprintf("@group(%d) @binding(%d) var %s: sampler;", *a.Group, *a.Binding+1, SamplerName(name)),
			)
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeImage:
			name := string(a.Args[0])
			if a.Args[1] == annotationArgAccessRead {
				out = append(out, fmt.Sprintf("@group(%d) @binding(%d) var %s: texture_2d<f32>;", *a.Group, *a.Binding, name))
			} else {
				out = append(out, fmt.Sprintf("@group(%d) @binding(%d) var %s: texture_storage_2d<%s, write>;", *a.Group, *a.Binding, name, a.Args[2]))
			}
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
