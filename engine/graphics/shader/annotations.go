// annotations.go defines the annotation types and parser for the Oxy WGSL pre-processor.
// Annotations are single-line WGSL comments prefixed with @oxy: that inject shared
// snippets and generate texture and image binding declarations.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects a registered WGSL snippet at the annotation site.
	//
	// Syntax: //@oxy:include <snippet>
	//
	// Example: //@oxy:include fullscreen
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeTexture declares a sampled 2D texture together with its paired
	// sampler. The sampler takes the next binding index and is named <name>Sampler.
	//
	// Syntax: //@oxy:texture <group> <binding> <name>
	//
	// Example: //@oxy:texture 0 1 uTexSource
	AnnotationTypeTexture AnnotationType = "texture"

	// AnnotationTypeImage declares a 2D image bound for load or store access. Read
	// images are declared as sampled textures read with textureLoad; write images are
	// storage textures and require a texel format.
	//
	// Syntax: //@oxy:image <group> <binding> <name> read
	//         //@oxy:image <group> <binding> <name> write <format>
	//
	// Example: //@oxy:image 0 2 uTarget write rgba16float
	AnnotationTypeImage AnnotationType = "image"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL source line.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include: [0] = snippet key
	//   - texture: [0] = variable name
	//   - image:   [0] = variable name, [1] = access ("read" or "write"), [2] = texel format for write
	Args []AnnotationArg

	// Line is the 1-based source line number.
	Line int

	// Group and Binding are set for texture and image annotations.
	Group   *int
	Binding *int
}

// AnnotationArg is a single annotation argument.
type AnnotationArg string

const (
	// AnnotationArgFullscreen is the full-screen triangle vertex stage and its VertexOutput struct.
	AnnotationArgFullscreen AnnotationArg = "fullscreen"

	// AnnotationArgLuminance is the Rec. 709 luminance helper.
	AnnotationArgLuminance AnnotationArg = "luminance"

	// AnnotationArgTonemap is the ACES filmic tone map helper.
	AnnotationArgTonemap AnnotationArg = "tonemap"
)

const (
	annotationArgAccessRead  AnnotationArg = "read"
	annotationArgAccessWrite AnnotationArg = "write"
)

var validSnippets = []AnnotationArg{
	AnnotationArgFullscreen,
	AnnotationArgLuminance,
	AnnotationArgTonemap,
}

// parseAnnotation parses a single WGSL source line. It returns nil and no error for lines
// that are not annotations.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case annotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validSnippets, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown snippet %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case AnnotationTypeTexture:
		if len(args) != 4 {
			return nil, fmt.Errorf("line %d: @oxy texture annotation requires group, binding and name", lineNum)
		}
		group, binding, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		return &Annotation{
			Type:    AnnotationTypeTexture,
			Args:    []AnnotationArg{AnnotationArg(args[3])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	case AnnotationTypeImage:
		if len(args) < 5 {
			return nil, fmt.Errorf("line %d: @oxy image annotation requires group, binding, name and access", lineNum)
		}
		group, binding, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		a := &Annotation{
			Type:    AnnotationTypeImage,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}
		switch AnnotationArg(args[4]) {
		case annotationArgAccessRead:
			if len(args) != 5 {
				return nil, fmt.Errorf("line %d: read images take no texel format", lineNum)
			}
		case annotationArgAccessWrite:
			if len(args) != 6 {
				return nil, fmt.Errorf("line %d: write images require a texel format", lineNum)
			}
			if _, ok := wgslTexelFormatMap[args[5]]; !ok {
				return nil, fmt.Errorf("line %d: unknown texel format %q in @oxy image annotation", lineNum, args[5])
			}
			a.Args = append(a.Args, AnnotationArg(args[5]))
		default:
			return nil, fmt.Errorf("line %d: unknown access %q in @oxy image annotation", lineNum, args[4])
		}
		return a, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

func parseGroupBinding(groupArg, bindingArg string, lineNum int) (int, int, error) {
	group, err := strconv.Atoi(groupArg)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: invalid group number %q: %v", lineNum, groupArg, err)
	}
	binding, err := strconv.Atoi(bindingArg)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: invalid binding number %q: %v", lineNum, bindingArg, err)
	}
	return group, binding, nil
}
