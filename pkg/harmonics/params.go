// Package harmonics models harmonic-drive corrections. Each drive carries a
// parameter set of optional Offset, Slope and Constant coefficients plus an
// optional sine series of higher-order terms; the handler keys these by
// drive identifier and evaluates them at an operating point.
package harmonics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/chazu/cctools/pkg/mesh"
)

// ErrWrongParameterType is returned by the typed getters when the
// requested coefficient is not part of the parameter set.
var ErrWrongParameterType = errors.New("harmonics: parameter type not set")

// ParameterType names one coefficient of a drive parameter set.
type ParameterType int

const (
	Offset ParameterType = iota
	Slope
	Constant
)

var parameterTypes = []ParameterType{Offset, Slope, Constant}

func (t ParameterType) String() string {
	switch t {
	case Offset:
		return "Offset"
	case Slope:
		return "Slope"
	case Constant:
		return "Constant"
	default:
		return fmt.Sprintf("ParameterType(%d)", int(t))
	}
}

// ParseParameterType maps a coefficient name (case-insensitive) to its type.
func ParseParameterType(s string) (ParameterType, error) {
	for _, t := range parameterTypes {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("harmonics: unknown parameter type %q", s)
}

// Term is one higher-order harmonic contribution
// Amplitude·sin(Order·x + Phase).
type Term struct {
	Order     int     `json:"order" yaml:"order"`
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
	Phase     float64 `json:"phase,omitempty" yaml:"phase,omitempty"`
}

// TermOrder converts a decoded order to a term order. Fractional, non-finite
// and out-of-range values are rejected rather than truncated.
func TermOrder(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, &mesh.InvalidDataError{Index: -1, Reason: fmt.Sprintf("term order %g is not an integer", v)}
	}
	return int(v), nil
}

// Eval returns the term's value at x.
func (t Term) Eval(x float64) float64 {
	return t.Amplitude * math.Sin(float64(t.Order)*x+t.Phase)
}

// DriveParameters is the coefficient set of one drive. Absent coefficients
// contribute nothing to Evaluate and cannot be read through the typed
// getters.
type DriveParameters struct {
	values  [3]float64
	present [3]bool
	Terms   []Term
}

// NewParameter returns a set holding a single coefficient.
func NewParameter(v float64, t ParameterType) DriveParameters {
	var p DriveParameters
	if t >= Offset && t <= Constant {
		p.values[t] = v
		p.present[t] = true
	}
	return p
}

// NewLinear returns an Offset + Slope parameter set.
func NewLinear(offset, slope float64) DriveParameters {
	p := NewParameter(offset, Offset)
	p.values[Slope], p.present[Slope] = slope, true
	return p
}

// NewConstant returns a Constant-only parameter set.
func NewConstant(c float64) DriveParameters {
	return NewParameter(c, Constant)
}

// NewFull returns a set with all three coefficients.
func NewFull(offset, slope, constant float64) DriveParameters {
	p := NewLinear(offset, slope)
	p.values[Constant], p.present[Constant] = constant, true
	return p
}

// FromOptional builds a set from optional coefficients; nil pointers are
// left absent.
func FromOptional(offset, slope, constant *float64) DriveParameters {
	var p DriveParameters
	for t, v := range [3]*float64{offset, slope, constant} {
		if v != nil {
			p.values[t], p.present[t] = *v, true
		}
	}
	return p
}

// WithTerms returns a copy of p carrying the given harmonic terms.
func (p DriveParameters) WithTerms(terms ...Term) DriveParameters {
	p.Terms = append([]Term(nil), terms...)
	return p
}

// Has reports whether coefficient t is set.
func (p DriveParameters) Has(t ParameterType) bool {
	return t >= Offset && t <= Constant && p.present[t]
}

// IsEmpty reports whether no coefficient and no term is set.
func (p DriveParameters) IsEmpty() bool {
	return !p.present[Offset] && !p.present[Slope] && !p.present[Constant] && len(p.Terms) == 0
}

// IsLinear reports whether both Offset and Slope are set.
func (p DriveParameters) IsLinear() bool {
	return p.Has(Offset) && p.Has(Slope)
}

// Get returns coefficient t.
func (p DriveParameters) Get(t ParameterType) (float64, error) {
	if !p.Has(t) {
		return 0, fmt.Errorf("%w: %s", ErrWrongParameterType, t)
	}
	return p.values[t], nil
}

// Offset returns the Offset coefficient.
func (p DriveParameters) Offset() (float64, error) { return p.Get(Offset) }

// Slope returns the Slope coefficient.
func (p DriveParameters) Slope() (float64, error) { return p.Get(Slope) }

// Constant returns the Constant coefficient.
func (p DriveParameters) Constant() (float64, error) { return p.Get(Constant) }

// Set overwrites coefficient t. Only coefficients already present can be
// set.
func (p *DriveParameters) Set(v float64, t ParameterType) error {
	if !p.Has(t) {
		return fmt.Errorf("%w: cannot set %s", ErrWrongParameterType, t)
	}
	p.values[t] = v
	return nil
}

// Evaluate returns Offset + Slope·x plus the harmonic terms. Constant is the
// base value only for sets without a linear part; a set carrying Offset or
// Slope ignores it.
func (p DriveParameters) Evaluate(x float64) float64 {
	var v float64
	switch {
	case p.present[Offset] || p.present[Slope]:
		if p.present[Offset] {
			v = p.values[Offset]
		}
		if p.present[Slope] {
			v += float64(p.values[Slope] * x)
		}
	case p.present[Constant]:
		v = p.values[Constant]
	}
	for _, t := range p.Terms {
		v += t.Eval(x)
	}
	return v
}

// Validate rejects non-finite coefficients and non-positive term orders.
func (p DriveParameters) Validate() error {
	for _, t := range parameterTypes {
		if p.present[t] && (math.IsNaN(p.values[t]) || math.IsInf(p.values[t], 0)) {
			return &mesh.InvalidDataError{Index: -1, Reason: fmt.Sprintf("%s is not finite", t)}
		}
	}
	for i, term := range p.Terms {
		if term.Order < 1 {
			return &mesh.InvalidDataError{Index: i, Reason: fmt.Sprintf("term order %d must be positive", term.Order)}
		}
		if math.IsNaN(term.Amplitude) || math.IsInf(term.Amplitude, 0) ||
			math.IsNaN(term.Phase) || math.IsInf(term.Phase, 0) {
			return &mesh.InvalidDataError{Index: i, Reason: "term is not finite"}
		}
	}
	return nil
}

// Equal reports whether p and o hold the same coefficients and terms.
func (p DriveParameters) Equal(o DriveParameters) bool {
	if p.present != o.present || len(p.Terms) != len(o.Terms) {
		return false
	}
	for _, t := range parameterTypes {
		if p.present[t] && p.values[t] != o.values[t] {
			return false
		}
	}
	for i := range p.Terms {
		if p.Terms[i] != o.Terms[i] {
			return false
		}
	}
	return true
}

// String renders the set as "Offset: 0.1, Slope: 0.01".
func (p DriveParameters) String() string {
	var parts []string
	for _, t := range parameterTypes {
		if p.present[t] {
			parts = append(parts, fmt.Sprintf("%s: %g", t, p.values[t]))
		}
	}
	for _, term := range p.Terms {
		parts = append(parts, fmt.Sprintf("B%d: %g@%g", term.Order, term.Amplitude, term.Phase))
	}
	if len(parts) == 0 {
		return "Undefined"
	}
	return strings.Join(parts, ", ")
}

// wireParameters is the JSON shape {"Offset": f, "Slope": f, "Constant": f, "Terms": [...]}.
type wireParameters struct {
	Offset   *float64 `json:"Offset,omitempty"`
	Slope    *float64 `json:"Slope,omitempty"`
	Constant *float64 `json:"Constant,omitempty"`
	Terms    []Term   `json:"Terms,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p DriveParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ToMap())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *DriveParameters) UnmarshalJSON(data []byte) error {
	var w wireParameters
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("harmonics: decode parameters: %w", err)
	}
	*p = FromOptional(w.Offset, w.Slope, w.Constant).WithTerms(w.Terms...)
	return nil
}

// ToMap renders the set as a generic tree node with only present keys.
func (p DriveParameters) ToMap() map[string]any {
	m := make(map[string]any, 4)
	for _, t := range parameterTypes {
		if p.present[t] {
			m[t.String()] = p.values[t]
		}
	}
	if len(p.Terms) > 0 {
		terms := make([]any, len(p.Terms))
		for i, term := range p.Terms {
			terms[i] = map[string]any{
				"order":     float64(term.Order),
				"amplitude": term.Amplitude,
				"phase":     term.Phase,
			}
		}
		m["Terms"] = terms
	}
	return m
}

// ParameterMap maps drive identifiers to their parameter sets.
type ParameterMap map[string]DriveParameters

// IDs returns the drive identifiers in sorted order.
func (m ParameterMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy.
func (m ParameterMap) Clone() ParameterMap {
	out := make(ParameterMap, len(m))
	for id, p := range m {
		out[id] = p.WithTerms(p.Terms...)
	}
	return out
}
