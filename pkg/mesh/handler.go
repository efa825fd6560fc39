package mesh

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/chazu/cctools/pkg/geom"
)

const (
	// DefaultNeighbors is the number of samples weighted by Query.
	DefaultNeighbors = 4
	// DefaultPower is the inverse-distance exponent.
	DefaultPower = 2.0
	// ExactHitDistance is the distance below which Query returns a stored
	// sample unchanged.
	ExactHitDistance = 1e-12

	// rtree node fan-out
	minChildren = 2
	maxChildren = 8
	// half edge of the degenerate rectangle each sample occupies in the index
	pointTolerance = 1e-9
)

// Neighbor is one sample that contributed to an interpolated value.
type Neighbor struct {
	Pos      geom.Vec3 `json:"pos"`
	Distance float64   `json:"distance"`
	Weight   float64   `json:"weight"`
	Name     string    `json:"name,omitempty"`
}

// Interpolation is the result of a point query.
type Interpolation struct {
	Values       Values
	Neighbors    []Neighbor
	Extrapolated bool // some contributing sample was tagged extrapolated
}

// Value returns component c of the interpolated values.
func (in Interpolation) Value(c FieldComponent) (float64, error) {
	v, ok := in.Values[c]
	if !ok {
		return 0, invalid(-1, "interpolation has no %s component", c)
	}
	return v, nil
}

// indexed wraps a sample for the R-tree.
type indexed struct {
	idx int
	pt  rtreego.Point
}

func (e *indexed) Bounds() rtreego.Rect {
	return e.pt.ToRect(pointTolerance)
}

var _ rtreego.Spatial = (*indexed)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithNeighbors sets how many nearest samples Query weights. Values below
// one are ignored.
func WithNeighbors(k int) Option {
	return func(h *Handler) {
		if k >= 1 {
			h.k = k
		}
	}
}

// WithPower sets the inverse-distance exponent. Non-positive values are
// ignored.
func WithPower(p float64) Option {
	return func(h *Handler) {
		if p > 0 {
			h.power = p
		}
	}
}

// Handler owns a mesh data set and answers spatial queries against it.
// Queries take a read lock; Load takes the write lock.
type Handler struct {
	mu      sync.RWMutex
	samples []Sample
	tree    *rtreego.Rtree
	k       int
	power   float64
}

// NewHandler returns an empty handler.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{k: DefaultNeighbors, power: DefaultPower}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Neighbors returns the configured neighbor count.
func (h *Handler) Neighbors() int { return h.k }

// Power returns the configured inverse-distance exponent.
func (h *Handler) Power() float64 { return h.power }

// Load replaces the data set. Every sample is normalised; samples sharing
// exact coordinates are merged with merge, or rejected when merge is
// CombineNone. On error the previous data set is left untouched.
func (h *Handler) Load(samples []Sample, merge CombinePolicy) error {
	normalized := make([]Sample, 0, len(samples))
	seen := make(map[geom.Vec3]int, len(samples))

	for i, s := range samples {
		n, err := s.Normalize()
		if err != nil {
			var ide *InvalidDataError
			if errors.As(err, &ide) {
				return &InvalidDataError{Index: i, Reason: ide.Reason}
			}
			return err
		}
		at, dup := seen[n.Pos]
		if !dup {
			seen[n.Pos] = len(normalized)
			normalized = append(normalized, n)
			continue
		}
		if merge == CombineNone {
			return invalid(i, "duplicate coordinates %s (first seen as sample %d) and no merge policy", n.Pos, at)
		}
		merged, err := CombinePoints(normalized[at], n, merge)
		if err != nil {
			return &InvalidDataError{Index: i, Reason: fmt.Sprintf("merge duplicate at %s: %v", n.Pos, err)}
		}
		merged.Pos = n.Pos
		normalized[at] = merged
	}

	objs := make([]rtreego.Spatial, len(normalized))
	for i, s := range normalized {
		objs[i] = &indexed{idx: i, pt: rtreego.Point{s.Pos.X, s.Pos.Y, s.Pos.Z}}
	}
	tree := rtreego.NewTree(3, minChildren, maxChildren, objs...)

	h.mu.Lock()
	h.samples = normalized
	h.tree = tree
	h.mu.Unlock()
	return nil
}

// Len returns the number of samples after merging.
func (h *Handler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

// Samples returns a copy of the data set in load order.
func (h *Handler) Samples() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, len(h.samples))
	for i, s := range h.samples {
		s.Values = s.Values.Clone()
		out[i] = s
	}
	return out
}

// Query interpolates the field at p by inverse-distance weighting over the
// k nearest samples. An exact hit returns the stored values. When every
// neighbor is a vector sample the vector components are interpolated and
// MAGNITUDE re-derived; otherwise only MAGNITUDE is interpolated.
func (h *Handler) Query(p geom.Vec3) (Interpolation, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.samples) == 0 {
		return Interpolation{}, invalid(-1, "query on empty mesh")
	}

	found := h.tree.NearestNeighbors(h.k, rtreego.Point{p.X, p.Y, p.Z})
	near := make([]Neighbor, 0, len(found))
	idx := make([]int, 0, len(found))
	for _, obj := range found {
		e, ok := obj.(*indexed)
		if !ok || e == nil {
			continue
		}
		s := h.samples[e.idx]
		near = append(near, Neighbor{Pos: s.Pos, Distance: s.Pos.Dist(p), Name: s.Name})
		idx = append(idx, e.idx)
	}
	if len(near) == 0 {
		return Interpolation{}, invalid(-1, "no neighbors found for %s", p)
	}
	order := make([]int, len(near))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return near[order[a]].Distance < near[order[b]].Distance })

	first := order[0]
	if near[first].Distance <= ExactHitDistance {
		s := h.samples[idx[first]]
		n := near[first]
		n.Weight = 1
		return Interpolation{
			Values:       s.Values.Clone(),
			Neighbors:    []Neighbor{n},
			Extrapolated: s.Extrapolated,
		}, nil
	}

	// raw weights are (nearest/d)^p, so the nearest sample weighs 1
	nearest := near[first].Distance
	var total float64
	sortedNear := make([]Neighbor, len(order))
	sortedIdx := make([]int, len(order))
	for i, o := range order {
		n := near[o]
		n.Weight = math.Pow(nearest/n.Distance, h.power)
		total += n.Weight
		sortedNear[i] = n
		sortedIdx[i] = idx[o]
	}

	allVector := true
	for _, i := range sortedIdx {
		if h.samples[i].Kind() != KindVector {
			allVector = false
			break
		}
	}

	out := Interpolation{Values: make(Values, 4), Neighbors: sortedNear}
	for i := range sortedNear {
		sortedNear[i].Weight /= total
		s := h.samples[sortedIdx[i]]
		w := sortedNear[i].Weight
		if s.Extrapolated {
			out.Extrapolated = true
		}
		if allVector {
			for _, c := range VectorComponents {
				out.Values[c] += w * s.Values[c]
			}
		} else {
			out.Values[Magnitude] += w * s.Values[Magnitude]
		}
	}
	if allVector {
		out.Values[Magnitude] = out.Values.vectorMagnitude()
	}
	return out, nil
}

// MinMaxZ returns the lowest and highest z coordinate in the data set.
func (h *Handler) MinMaxZ() (float64, float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.samples) == 0 {
		return 0, 0, invalid(-1, "min/max z on empty mesh")
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range h.samples {
		lo = math.Min(lo, s.Pos.Z)
		hi = math.Max(hi, s.Pos.Z)
	}
	return lo, hi, nil
}

// MaxComponent returns the sample with the largest value of c. When region
// is non-nil only samples it contains are considered; an error is returned
// if none qualify.
func (h *Handler) MaxComponent(c FieldComponent, region *geom.Cube3D) (Sample, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	best := -1
	bestVal := math.Inf(-1)
	for i, s := range h.samples {
		if region != nil && !region.Contains(s.Pos) {
			continue
		}
		v, ok := s.Values[c]
		if !ok {
			continue
		}
		if best < 0 || v > bestVal {
			best, bestVal = i, v
		}
	}
	if best < 0 {
		if region != nil {
			return Sample{}, invalid(-1, "no sample with %s inside %s", c, region)
		}
		return Sample{}, invalid(-1, "no sample with %s", c)
	}
	s := h.samples[best]
	s.Values = s.Values.Clone()
	return s, nil
}

// Bounds returns the tight box around all sample positions.
func (h *Handler) Bounds() (geom.Cube3D, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.samples) == 0 {
		return geom.Cube3D{}, invalid(-1, "bounds of empty mesh")
	}
	lo := h.samples[0].Pos
	hi := lo
	for _, s := range h.samples[1:] {
		lo = geom.Vec3{X: math.Min(lo.X, s.Pos.X), Y: math.Min(lo.Y, s.Pos.Y), Z: math.Min(lo.Z, s.Pos.Z)}
		hi = geom.Vec3{X: math.Max(hi.X, s.Pos.X), Y: math.Max(hi.Y, s.Pos.Y), Z: math.Max(hi.Z, s.Pos.Z)}
	}
	return geom.NewCube3D(lo, hi, false)
}
