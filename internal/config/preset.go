package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/gogpu/polytope/params"
	"github.com/pelletier/go-toml/v2"
)

// Preset is a saved look: a strategy pair and parameter values.
//
//	geometry = "hypercube"
//	projection = "perspective"
//
//	[parameters]
//	gridDensity = 12
//	baseColor = [1.0, 0.5, 0.0]
type Preset struct {
	Geometry   string         `toml:"geometry"`
	Projection string         `toml:"projection"`
	Parameters map[string]any `toml:"parameters"`
}

// LoadPreset reads a TOML preset file.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	return ParsePreset(data)
}

// ParsePreset decodes a TOML preset. Unknown top-level keys are an error.
func ParsePreset(data []byte) (*Preset, error) {
	var p Preset
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode preset: %w", err)
	}
	return &p, nil
}

// Values converts the preset parameters to a params.Set. A number becomes a
// scalar and an array of two to four numbers a vector.
func (p *Preset) Values() (params.Set, error) {
	out := make(params.Set, len(p.Parameters))
	for name, raw := range p.Parameters {
		v, err := toValue(raw)
		if err != nil {
			return nil, fmt.Errorf("preset parameter %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func toValue(raw any) (params.Value, error) {
	switch x := raw.(type) {
	case []any:
		c := make([]float32, len(x))
		for i, e := range x {
			f, ok := toFloat(e)
			if !ok {
				return params.Value{}, fmt.Errorf("component %d is %T, want number", i, e)
			}
			c[i] = f
		}
		switch len(c) {
		case 1:
			return params.Scalar(c[0]), nil
		case 2:
			return params.Vec2(c[0], c[1]), nil
		case 3:
			return params.Vec3(c[0], c[1], c[2]), nil
		case 4:
			return params.Vec4(c[0], c[1], c[2], c[3]), nil
		}
		return params.Value{}, fmt.Errorf("%d components, want 1 to 4", len(c))
	default:
		f, ok := toFloat(raw)
		if !ok {
			return params.Value{}, fmt.Errorf("%T, want number or array", raw)
		}
		return params.Scalar(f), nil
	}
}

func toFloat(v any) (float32, bool) {
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case int64:
		return float32(n), true
	}
	return 0, false
}
