// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package params

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/chewxy/math32"
)

// Group is the semantic category of a parameter.
type Group int

const (
	GroupSystem Group = iota
	GroupDimensional
	GroupStructural
	GroupInteraction
	GroupColor
	GroupGeometry
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupSystem:
		return "system"
	case GroupDimensional:
		return "dimensional"
	case GroupStructural:
		return "structural"
	case GroupInteraction:
		return "interaction"
	case GroupColor:
		return "color"
	case GroupGeometry:
		return "geometry"
	default:
		return "unknown"
	}
}

// Parameter names in the default schema.
const (
	Time               = "time"
	Resolution         = "resolution"
	Dimension          = "dimension"
	MorphFactor        = "morphFactor"
	RotationSpeed      = "rotationSpeed"
	ProjectionDistance = "projectionDistance"
	GridDensity        = "gridDensity"
	LineThickness      = "lineThickness"
	UniverseModifier   = "universeModifier"
	Mouse              = "mouse"
	MouseIntensity     = "mouseIntensity"
	ClickIntensity     = "clickIntensity"
	ScrollIntensity    = "scrollIntensity"
	HueShift           = "hueShift"
	PatternIntensity   = "patternIntensity"
	GlitchIntensity    = "glitchIntensity"
	BaseColor          = "baseColor"
	ShellWidth         = "shellWidth"
	PlaneThickness     = "planeThickness"
)

// Param declares one render parameter.
type Param struct {
	Name       string
	Group      Group
	Components int // 1 to 4
	Min, Max   float32
	Default    Value
}

// Clamp limits every component of v to [Min, Max].
// It reports false if v has the wrong component count or a NaN component.
func (p Param) Clamp(v Value) (Value, bool) {
	if v.n != p.Components {
		return Value{}, false
	}
	for i := 0; i < v.n; i++ {
		x := v.v[i]
		if math32.IsNaN(x) {
			return Value{}, false
		}
		v.v[i] = math32.Max(p.Min, math32.Min(p.Max, x))
	}
	return v, true
}

// Slot locates a parameter inside the uniform buffer.
type Slot struct {
	Offset uint64
	Size   uint64
}

// Schema is an ordered, validated set of parameters with a WGSL uniform layout.
// A Schema is immutable and safe to share.
type Schema struct {
	params []Param
	index  map[string]int
	slots  []Slot
	size   uint64
}

var identRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// NewSchema validates ps and computes the uniform layout.
func NewSchema(ps []Param) (*Schema, error) {
	s := &Schema{
		params: make([]Param, len(ps)),
		index:  make(map[string]int, len(ps)),
		slots:  make([]Slot, len(ps)),
	}
	copy(s.params, ps)

	var offset uint64
	for i, p := range s.params {
		if !identRe.MatchString(p.Name) {
			return nil, fmt.Errorf("params: invalid name %q", p.Name)
		}
		if _, dup := s.index[p.Name]; dup {
			return nil, fmt.Errorf("params: duplicate name %q", p.Name)
		}
		if p.Components < 1 || p.Components > 4 {
			return nil, fmt.Errorf("params: %s: %d components", p.Name, p.Components)
		}
		if !(p.Min <= p.Max) {
			return nil, fmt.Errorf("params: %s: min %v > max %v", p.Name, p.Min, p.Max)
		}
		def, ok := p.Clamp(p.Default)
		if !ok {
			return nil, fmt.Errorf("params: %s: default has %d components", p.Name, p.Default.Len())
		}
		s.params[i].Default = def
		s.index[p.Name] = i

		align, size := layoutOf(p.Components)
		offset = roundUp(offset, align)
		s.slots[i] = Slot{Offset: offset, Size: size}
		offset += size
	}
	// Uniform buffer bindings need a 16-byte multiple.
	s.size = roundUp(offset, 16)
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(ps []Param) *Schema {
	s, err := NewSchema(ps)
	if err != nil {
		panic(err)
	}
	return s
}

// layoutOf returns WGSL alignment and size for a float vector.
func layoutOf(components int) (align, size uint64) {
	switch components {
	case 1:
		return 4, 4
	case 2:
		return 8, 8
	case 3:
		return 16, 12
	default:
		return 16, 16
	}
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

// Len returns the number of parameters.
func (s *Schema) Len() int { return len(s.params) }

// Params returns a copy of the parameter declarations in layout order.
func (s *Schema) Params() []Param {
	out := make([]Param, len(s.params))
	copy(out, s.params)
	return out
}

// Names returns the parameter names in layout order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.params))
	for i, p := range s.params {
		out[i] = p.Name
	}
	return out
}

// Lookup returns the declaration for name.
func (s *Schema) Lookup(name string) (Param, bool) {
	i, ok := s.index[name]
	if !ok {
		return Param{}, false
	}
	return s.params[i], true
}

// Slot returns the uniform buffer location of name.
func (s *Schema) Slot(name string) (Slot, bool) {
	i, ok := s.index[name]
	if !ok {
		return Slot{}, false
	}
	return s.slots[i], true
}

// Size returns the uniform buffer size in bytes.
func (s *Schema) Size() uint64 { return s.size }

// StructName is the WGSL type name of the generated uniform struct.
const StructName = "Params"

// WGSLStruct returns the WGSL declaration of the uniform struct. Field order
// matches the schema, so WGSL computes the same offsets as Slot.
func (s *Schema) WGSLStruct() string {
	var b strings.Builder
	b.WriteString("struct " + StructName + " {\n")
	for _, p := range s.params {
		b.WriteString("    " + p.Name + ": " + wgslType(p.Components) + ",\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func wgslType(components int) string {
	if components == 1 {
		return "f32"
	}
	return fmt.Sprintf("vec%d<f32>", components)
}

var defaultSchema = MustSchema([]Param{
	{Name: Time, Group: GroupSystem, Components: 1, Min: 0, Max: math.MaxFloat32, Default: Scalar(0)},
	{Name: Resolution, Group: GroupSystem, Components: 2, Min: 1, Max: 16384, Default: Vec2(1, 1)},

	{Name: Dimension, Group: GroupDimensional, Components: 1, Min: 3, Max: 5, Default: Scalar(4)},
	{Name: MorphFactor, Group: GroupDimensional, Components: 1, Min: 0, Max: 1.5, Default: Scalar(0.5)},
	{Name: RotationSpeed, Group: GroupDimensional, Components: 1, Min: 0, Max: 3, Default: Scalar(0.5)},
	{Name: ProjectionDistance, Group: GroupDimensional, Components: 1, Min: 1.5, Max: 6, Default: Scalar(2.5)},

	{Name: GridDensity, Group: GroupStructural, Components: 1, Min: 1, Max: 25, Default: Scalar(8)},
	{Name: LineThickness, Group: GroupStructural, Components: 1, Min: 0.002, Max: 0.1, Default: Scalar(0.03)},
	{Name: UniverseModifier, Group: GroupStructural, Components: 1, Min: 0.3, Max: 2.5, Default: Scalar(1)},

	{Name: Mouse, Group: GroupInteraction, Components: 2, Min: 0, Max: 1, Default: Vec2(0.5, 0.5)},
	{Name: MouseIntensity, Group: GroupInteraction, Components: 1, Min: 0, Max: 1, Default: Scalar(0)},
	{Name: ClickIntensity, Group: GroupInteraction, Components: 1, Min: 0, Max: 1, Default: Scalar(0)},
	{Name: ScrollIntensity, Group: GroupInteraction, Components: 1, Min: 0, Max: 1, Default: Scalar(0)},

	{Name: HueShift, Group: GroupColor, Components: 1, Min: 0, Max: 1, Default: Scalar(0.6)},
	{Name: PatternIntensity, Group: GroupColor, Components: 1, Min: 0, Max: 3, Default: Scalar(1.3)},
	{Name: GlitchIntensity, Group: GroupColor, Components: 1, Min: 0, Max: 0.15, Default: Scalar(0.02)},
	{Name: BaseColor, Group: GroupColor, Components: 3, Min: 0, Max: 1, Default: Vec3(1, 0, 1)},

	{Name: ShellWidth, Group: GroupGeometry, Components: 1, Min: 0.005, Max: 0.08, Default: Scalar(0.025)},
	{Name: PlaneThickness, Group: GroupGeometry, Components: 1, Min: 0.003, Max: 0.1, Default: Scalar(0.01)},
})

// DefaultSchema returns the stock parameter set used by the built-in
// strategies.
func DefaultSchema() *Schema { return defaultSchema }
