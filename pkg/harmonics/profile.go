package harmonics

import (
	"fmt"
	"math"

	"github.com/chazu/cctools/pkg/mesh"
)

// maxMultipoles bounds the normalised multipole tables.
const maxMultipoles = 10

// Point2 is an (x, y) pair of a sampled profile.
type Point2 struct {
	X, Y float64
}

// ZipPoints pairs x[i] with y[i]. Both slices must have the same length.
func ZipPoints(x, y []float64) ([]Point2, error) {
	if len(x) != len(y) {
		return nil, &mesh.InvalidDataError{Index: -1, Reason: fmt.Sprintf("x and y lengths differ: %d vs %d", len(x), len(y))}
	}
	out := make([]Point2, len(x))
	for i := range x {
		out[i] = Point2{X: x[i], Y: y[i]}
	}
	return out, nil
}

// Profile is a field harmonics profile along the magnet axis: Ell holds the
// axial positions in metres and Bn[c-1] the strength of component c at each
// position.
type Profile struct {
	Ell []float64   `json:"ell"`
	Bn  [][]float64 `json:"bn"`
}

// Components returns the number of B components in the profile.
func (p Profile) Components() int { return len(p.Bn) }

// EllMM returns the axial positions converted to millimetres.
func (p Profile) EllMM() []float64 {
	out := make([]float64, len(p.Ell))
	for i, v := range p.Ell {
		out[i] = v * 1000
	}
	return out
}

// BnPoints returns component c (1-based) as (ell [mm], Bn) points. Odd components
// are sign-flipped to match the reference frame of the field solver.
func (p Profile) BnPoints(component int) ([]Point2, error) {
	if component < 1 || component > len(p.Bn) {
		return nil, &mesh.InvalidDataError{Index: -1, Reason: fmt.Sprintf("component %d outside 1..%d", component, len(p.Bn))}
	}
	data := append([]float64(nil), p.Bn[component-1]...)
	if len(data) != len(p.Ell) {
		return nil, &mesh.InvalidDataError{Index: component, Reason: fmt.Sprintf("ell and Bn lengths differ: %d vs %d", len(p.Ell), len(data))}
	}
	if component%2 == 1 {
		for i := range data {
			data[i] = -data[i]
		}
	}
	return ZipPoints(p.EllMM(), data)
}

// NormalizeMultipoles scales the integrated skew (A) and normal (B)
// harmonics to units of 1e-4 of the dominant component. The dominant
// component is the index with the largest max(|A|,|B|). Index 0 is dropped
// and at most ten entries are returned per table.
func NormalizeMultipoles(a, b []float64) (an, bn []float64, err error) {
	if len(a) != len(b) {
		return nil, nil, &mesh.InvalidDataError{Index: -1, Reason: fmt.Sprintf("A and B lengths differ: %d vs %d", len(a), len(b))}
	}
	if len(a) == 0 {
		return nil, nil, &mesh.InvalidDataError{Index: -1, Reason: "no harmonics"}
	}
	var ref float64
	for i := range a {
		ref = math.Max(ref, math.Max(math.Abs(a[i]), math.Abs(b[i])))
	}
	if ref == 0 {
		return nil, nil, &mesh.InvalidDataError{Index: -1, Reason: "all harmonics are zero"}
	}
	n := min(maxMultipoles, len(a)-1)
	an = make([]float64, n)
	bn = make([]float64, n)
	for i := 0; i < n; i++ {
		an[i] = 1e4 * a[i+1] / ref
		bn[i] = 1e4 * b[i+1] / ref
	}
	return an, bn, nil
}
