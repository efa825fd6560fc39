package mesh

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/cctools/pkg/geom"
)

// magnitudeTolerance is the relative tolerance accepted between a supplied
// MAGNITUDE and the one derived from the vector components.
const magnitudeTolerance = 1e-9

// SampleKind distinguishes samples carrying a full field vector from those
// carrying only a magnitude.
type SampleKind int

const (
	KindVector SampleKind = iota
	KindScalar
)

func (k SampleKind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindScalar:
		return "scalar"
	default:
		return fmt.Sprintf("SampleKind(%d)", int(k))
	}
}

// Sample is one located field measurement.
type Sample struct {
	Pos          geom.Vec3
	Values       Values
	Extrapolated bool
	Name         string
}

// Kind reports whether s carries the vector components.
func (s Sample) Kind() SampleKind {
	if s.Values.hasVector() {
		return KindVector
	}
	return KindScalar
}

// Value returns component c, or an error when the sample lacks it.
func (s Sample) Value(c FieldComponent) (float64, error) {
	v, ok := s.Values[c]
	if !ok {
		return 0, invalid(-1, "sample at %s has no %s component", s.Pos, c)
	}
	return v, nil
}

// Normalize checks the component set of s and fills in the derived
// MAGNITUDE. A full vector derives MAGNITUDE (or verifies a supplied one),
// MAGNITUDE alone makes a scalar sample, and any other partial set is
// rejected.
func (s Sample) Normalize() (Sample, error) {
	if len(s.Values) == 0 {
		return Sample{}, invalid(-1, "sample at %s has no components", s.Pos)
	}
	for c, v := range s.Values {
		if c < Longitudinal || c > Magnitude {
			return Sample{}, invalid(-1, "sample at %s has unknown component %s", s.Pos, c)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, invalid(-1, "sample at %s: %s is not finite", s.Pos, c)
		}
	}

	out := s
	out.Values = s.Values.Clone()

	if out.Values.hasVector() {
		derived := out.Values.vectorMagnitude()
		if supplied, ok := out.Values[Magnitude]; ok {
			if !approxEqual(supplied, derived, magnitudeTolerance) {
				return Sample{}, invalid(-1, "sample at %s: MAGNITUDE %g inconsistent with vector norm %g", s.Pos, supplied, derived)
			}
		}
		out.Values[Magnitude] = derived
		return out, nil
	}

	mag, ok := out.Values[Magnitude]
	if !ok || len(out.Values) != 1 {
		return Sample{}, invalid(-1, "sample at %s has partial component set %s", s.Pos, describe(out.Values))
	}
	if mag < 0 {
		return Sample{}, invalid(-1, "sample at %s: negative MAGNITUDE %g", s.Pos, mag)
	}
	return out, nil
}

func approxEqual(a, b, rel float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < 1 {
		scale = 1
	}
	return diff <= rel*scale
}

func describe(v Values) string {
	names := make([]string, 0, len(v))
	for _, c := range v.Components() {
		names = append(names, c.String())
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// ---------------------------------------------------------------------------
// Combination
// ---------------------------------------------------------------------------

// CombinePolicy is the reduction applied when two samples are merged.
type CombinePolicy int

const (
	CombineNone CombinePolicy = iota // merging is an error
	CombineSum
	CombineAverage
	CombineMax
)

func (p CombinePolicy) String() string {
	switch p {
	case CombineNone:
		return "none"
	case CombineSum:
		return "sum"
	case CombineAverage:
		return "average"
	case CombineMax:
		return "max"
	default:
		return fmt.Sprintf("CombinePolicy(%d)", int(p))
	}
}

// ParseCombinePolicy maps a policy name to its value. The empty string is
// CombineNone.
func ParseCombinePolicy(s string) (CombinePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CombineNone, nil
	case "sum":
		return CombineSum, nil
	case "average", "avg", "mean":
		return CombineAverage, nil
	case "max":
		return CombineMax, nil
	}
	return CombineNone, fmt.Errorf("mesh: unknown combine policy %q", s)
}

func (p CombinePolicy) reduce(a, b float64) float64 {
	switch p {
	case CombineSum:
		return a + b
	case CombineAverage:
		return (a + b) / 2
	case CombineMax:
		return math.Max(a, b)
	}
	return math.NaN()
}

// CombinePoints merges a and b into a new sample located at their midpoint.
// Vector samples reduce each vector component and re-derive MAGNITUDE from
// the reduced vector; scalar samples reduce MAGNITUDE directly. The result
// is extrapolated when either input is. Sum and Average are commutative.
func CombinePoints(a, b Sample, policy CombinePolicy) (Sample, error) {
	if policy == CombineNone {
		return Sample{}, &DomainError{Reason: "no combine policy set"}
	}
	if policy < CombineNone || policy > CombineMax {
		return Sample{}, &DomainError{Reason: fmt.Sprintf("unsupported policy %s", policy)}
	}

	na, err := a.Normalize()
	if err != nil {
		return Sample{}, fmt.Errorf("mesh: combine first operand: %w", err)
	}
	nb, err := b.Normalize()
	if err != nil {
		return Sample{}, fmt.Errorf("mesh: combine second operand: %w", err)
	}
	if na.Kind() != nb.Kind() {
		return Sample{}, &DomainError{
			Reason: fmt.Sprintf("cannot combine %s sample %s with %s sample %s",
				na.Kind(), describe(na.Values), nb.Kind(), describe(nb.Values)),
		}
	}

	out := Sample{
		Pos:          na.Pos.Midpoint(nb.Pos),
		Values:       make(Values, len(na.Values)),
		Extrapolated: na.Extrapolated || nb.Extrapolated,
		Name:         combinedName(na.Name, nb.Name),
	}
	if na.Kind() == KindVector {
		for _, c := range VectorComponents {
			out.Values[c] = policy.reduce(na.Values[c], nb.Values[c])
		}
		out.Values[Magnitude] = out.Values.vectorMagnitude()
		return out, nil
	}
	out.Values[Magnitude] = policy.reduce(na.Values[Magnitude], nb.Values[Magnitude])
	return out, nil
}

func combinedName(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	}
	// keep commutativity for named samples
	if b < a {
		a, b = b, a
	}
	return a + "+" + b
}
