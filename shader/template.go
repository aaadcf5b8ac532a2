// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/gogpu/polytope/params"
	"github.com/gogpu/polytope/strategy"
)

//go:embed shaders/vertex.wgsl
var vertexSource string

//go:embed shaders/fragment.wgsl
var fragmentTemplate string

// Injection markers. Each must sit on its own line in the template.
const (
	MarkerPrefix     = "//#inject"
	GeometryMarker   = MarkerPrefix + " geometry"
	ProjectionMarker = MarkerPrefix + " projection"
)

// Entry points of the two stages.
const (
	VertexEntryPoint   = "vs_main"
	FragmentEntryPoint = "fs_main"
)

// Origin names the source a line of an assembled shader came from.
const (
	OriginPrelude  = "prelude"
	OriginTemplate = "template"
	OriginVertex   = "vertex"
)

// VertexSource returns the fixed vertex stage source.
func VertexSource() string { return vertexSource }

// DefaultTemplate returns the built-in fragment template.
func DefaultTemplate() string { return fragmentTemplate }

// Origin locates one assembled line in its source.
type Origin struct {
	// Name is OriginPrelude, OriginTemplate, OriginVertex, or
	// "<role>:<strategy>" for an injected fragment.
	Name string

	// Line is 1-based within Name.
	Line int
}

func (o Origin) String() string {
	return fmt.Sprintf("%s:%d", o.Name, o.Line)
}

// Assembled is a complete fragment stage source with its line map.
type Assembled struct {
	Source string
	lines  []string
	origin []Origin
}

// Origin returns where the 1-based assembled line came from.
func (a *Assembled) Origin(line int) (Origin, bool) {
	if line < 1 || line > len(a.origin) {
		return Origin{}, false
	}
	return a.origin[line-1], true
}

// Lines returns the number of lines in Source.
func (a *Assembled) Lines() int { return len(a.lines) }

// builder accumulates lines and their origins.
type builder struct {
	lines  []string
	origin []Origin
}

func (b *builder) add(name, text string) {
	for i, line := range splitLines(text) {
		b.lines = append(b.lines, line)
		b.origin = append(b.origin, Origin{Name: name, Line: i + 1})
	}
}

func (b *builder) addLine(o Origin, line string) {
	b.lines = append(b.lines, line)
	b.origin = append(b.origin, o)
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Prelude returns the uniform declarations prepended to every fragment stage.
func Prelude(schema *params.Schema) string {
	return schema.WGSLStruct() + "\n@group(0) @binding(0) var<uniform> params: " + params.StructName + ";\n"
}

// CheckTemplate verifies that template carries each marker exactly once and
// no unknown marker.
func CheckTemplate(template string) error {
	counts := map[string]int{}
	for _, line := range splitLines(template) {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == GeometryMarker, trimmed == ProjectionMarker:
			counts[trimmed]++
		case strings.Contains(line, MarkerPrefix):
			return &InjectionError{Marker: trimmed, Reason: "unknown marker in template"}
		}
	}
	for _, m := range []string{GeometryMarker, ProjectionMarker} {
		if n := counts[m]; n != 1 {
			return &InjectionError{Marker: m, Reason: fmt.Sprintf("found %d times in template, want 1", n)}
		}
	}
	return nil
}

// Assemble builds the fragment stage source: prelude, then template with the
// geometry and projection fragments substituted at their markers.
func Assemble(template, prelude string, geometry, projection strategy.Definition) (*Assembled, error) {
	if err := CheckTemplate(template); err != nil {
		return nil, err
	}

	var b builder
	b.add(OriginPrelude, prelude)
	for i, line := range splitLines(template) {
		switch strings.TrimSpace(line) {
		case GeometryMarker:
			b.add(fragmentOrigin(geometry), geometry.Source)
		case ProjectionMarker:
			b.add(fragmentOrigin(projection), projection.Source)
		default:
			b.addLine(Origin{Name: OriginTemplate, Line: i + 1}, line)
		}
	}

	for i, line := range b.lines {
		if strings.Contains(line, MarkerPrefix) {
			o := b.origin[i]
			return nil, &InjectionError{
				Marker: strings.TrimSpace(line),
				Reason: "marker left after injection at " + o.String(),
			}
		}
	}

	return &Assembled{
		Source: strings.Join(b.lines, "\n") + "\n",
		lines:  b.lines,
		origin: b.origin,
	}, nil
}

func fragmentOrigin(d strategy.Definition) string {
	return d.Role.String() + ":" + d.Name
}

var paramRefRe = regexp.MustCompile(`\bparams\.([A-Za-z_][A-Za-z0-9_]*)`)

// referencedParams returns the parameter fields source reads.
func referencedParams(source string) map[string]bool {
	refs := map[string]bool{}
	for _, m := range paramRefRe.FindAllStringSubmatch(source, -1) {
		refs[m[1]] = true
	}
	return refs
}
