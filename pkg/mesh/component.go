// Package mesh holds spatially sampled field data and answers point queries
// over it. Samples carry a field vector decomposed into longitudinal, normal
// and transverse components plus the derived magnitude. Lookups use an
// R-tree (github.com/dhconnelly/rtreego) and inverse-distance weighting over
// the k nearest samples.
package mesh

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FieldComponent selects one component of a sampled field.
type FieldComponent int

const (
	ComponentUnset FieldComponent = iota // zero value; callers pick a default
	Longitudinal                         // along the conductor path
	Normal                               // normal to the winding surface
	Transverse                           // completes the right-handed frame
	Magnitude                            // Euclidean norm of the three above
)

// VectorComponents are the components that decompose a field vector.
var VectorComponents = []FieldComponent{Longitudinal, Normal, Transverse}

func (c FieldComponent) String() string {
	switch c {
	case Longitudinal:
		return "LONGITUDINAL"
	case Normal:
		return "NORMAL"
	case Transverse:
		return "TRANSVERSE"
	case Magnitude:
		return "MAGNITUDE"
	case ComponentUnset:
		return "UNSET"
	default:
		return fmt.Sprintf("FieldComponent(%d)", int(c))
	}
}

// ParseFieldComponent accepts the upper-case names used in model files as
// well as their lower-case forms.
func ParseFieldComponent(s string) (FieldComponent, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONGITUDINAL":
		return Longitudinal, nil
	case "NORMAL":
		return Normal, nil
	case "TRANSVERSE":
		return Transverse, nil
	case "MAGNITUDE":
		return Magnitude, nil
	}
	return ComponentUnset, fmt.Errorf("mesh: unknown field component %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c FieldComponent) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *FieldComponent) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldComponent(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Values maps field components to their scalar value.
type Values map[FieldComponent]float64

// Get returns the value of c and whether it is present.
func (v Values) Get(c FieldComponent) (float64, bool) {
	f, ok := v[c]
	return f, ok
}

// Components returns the present components in enum order.
func (v Values) Components() []FieldComponent {
	out := make([]FieldComponent, 0, len(v))
	for c := range v {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for c, f := range v {
		out[c] = f
	}
	return out
}

// hasVector reports whether all three vector components are present.
func (v Values) hasVector() bool {
	for _, c := range VectorComponents {
		if _, ok := v[c]; !ok {
			return false
		}
	}
	return true
}

// vectorMagnitude computes sqrt(L² + N² + T²).
func (v Values) vectorMagnitude() float64 {
	l, n, t := v[Longitudinal], v[Normal], v[Transverse]
	return math.Sqrt(l*l + n*n + t*t)
}
