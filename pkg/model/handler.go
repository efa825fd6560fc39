// Package model assembles a computable model from a structured, schema-less
// configuration tree. The Handler owns a private copy of the tree and a
// derived Snapshot (domain cube, mesh handler, harmonics handler) that is
// rebuilt after every write. All configuration access, reads and writes,
// goes through the typed AccessOrModifyTarget accessor.
//
// Tree schema:
//
//	{ "domain": {"min": [x,y,z], "max": [x,y,z], "invert": false},
//	  "merge":  "none|sum|average|max",
//	  "mesh":   [ {"pos": [x,y,z], "LONGITUDINAL": f, "NORMAL": f, "TRANSVERSE": f,
//	               "MAGNITUDE": f, "extrapolated": bool, "name": s}, ... ],
//	  "drives": { "<id>": {"Offset": f, "Slope": f, "Constant": f,
//	                       "Terms": [{"order": n, "amplitude": a, "phase": p}]} } }
package model

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/harmonics"
	"github.com/chazu/cctools/pkg/mesh"
)

// Snapshot is the immutable computable view of the model at one point in
// time. A new Snapshot is built after every write; holders of an older one
// keep a consistent view.
type Snapshot struct {
	Domain geom.Cube3D
	Merge  mesh.CombinePolicy
	Mesh   *mesh.Handler
	Drives *harmonics.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for write and rebuild events.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMeshOptions passes interpolation options to every mesh handler the
// model builds.
func WithMeshOptions(opts ...mesh.Option) Option {
	return func(h *Handler) {
		h.meshOpts = append(h.meshOpts, opts...)
	}
}

// WithDefaultMerge sets the merge policy used when the tree has no "merge"
// key.
func WithDefaultMerge(p mesh.CombinePolicy) Option {
	return func(h *Handler) {
		h.defaultMerge = p
	}
}

// Handler owns the model tree and its derived snapshot.
type Handler struct {
	mu           sync.RWMutex
	tree         map[string]any
	snap         *Snapshot
	logger       *zap.Logger
	meshOpts     []mesh.Option
	defaultMerge mesh.CombinePolicy
}

// New takes a deep copy of tree and builds the model from it.
func New(tree map[string]any, opts ...Option) (*Handler, error) {
	h := &Handler{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}

	norm, err := normalize(tree)
	if err != nil {
		return nil, err
	}
	root, ok := norm.(map[string]any)
	if !ok {
		root = map[string]any{}
	}
	h.tree = root

	snap, err := h.build()
	if err != nil {
		return nil, err
	}
	h.snap = snap
	h.logger.Debug("model built",
		zap.Int("samples", snap.Mesh.Len()),
		zap.Int("drives", snap.Drives.Len()),
		zap.Stringer("domain", snap.Domain))
	return h, nil
}

// Snapshot returns the current computable view.
func (h *Handler) Snapshot() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

// Domain returns the current domain cube.
func (h *Handler) Domain() geom.Cube3D { return h.Snapshot().Domain }

// Mesh returns the current mesh handler.
func (h *Handler) Mesh() *mesh.Handler { return h.Snapshot().Mesh }

// Drives returns the current harmonics handler.
func (h *Handler) Drives() *harmonics.Handler { return h.Snapshot().Drives }

// Tree returns a deep copy of the configuration tree.
func (h *Handler) Tree() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return deepCopy(h.tree).(map[string]any)
}

// writeLocked replaces the node at p, rebuilds the snapshot and restores
// the previous node if the rebuild fails. Caller holds the write lock.
func (h *Handler) writeLocked(p Path, value any) error {
	prev, err := assign(h.tree, p, value, false)
	if err != nil {
		return err
	}
	snap, err := h.build()
	if err != nil {
		_, _ = assign(h.tree, p, prev, false)
		h.logger.Debug("model write rejected", zap.Stringer("path", p), zap.Error(err))
		return fmt.Errorf("model: write %s: %w", p, err)
	}
	h.snap = snap
	h.logger.Debug("model updated", zap.Stringer("path", p))
	return nil
}

// ---------------------------------------------------------------------------
// Snapshot construction
// ---------------------------------------------------------------------------

func (h *Handler) build() (*Snapshot, error) {
	domain, err := buildDomain(h.tree)
	if err != nil {
		return nil, err
	}

	merge := h.defaultMerge
	if raw, ok := h.tree["merge"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, &TypeMismatchError{Path: "merge", Want: "string", Got: kindOf(raw).String()}
		}
		if merge, err = mesh.ParseCombinePolicy(s); err != nil {
			return nil, &mesh.InvalidDataError{Index: -1, Reason: err.Error()}
		}
	}

	samples, err := buildSamples(h.tree, domain)
	if err != nil {
		return nil, err
	}
	mh := mesh.NewHandler(h.meshOpts...)
	if err := mh.Load(samples, merge); err != nil {
		return nil, err
	}

	params, err := buildDrives(h.tree)
	if err != nil {
		return nil, err
	}
	dh, err := harmonics.NewHandler(params)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Domain: domain, Merge: merge, Mesh: mh, Drives: dh}, nil
}

func buildDomain(tree map[string]any) (geom.Cube3D, error) {
	raw, ok := tree["domain"]
	if !ok {
		return geom.Cube3D{}, &PathNotFoundError{Path: "domain", Reason: "model has no domain"}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return geom.Cube3D{}, &TypeMismatchError{Path: "domain", Want: "object", Got: kindOf(raw).String()}
	}
	min, err := vecAt(obj, "min", "domain.min")
	if err != nil {
		return geom.Cube3D{}, err
	}
	max, err := vecAt(obj, "max", "domain.max")
	if err != nil {
		return geom.Cube3D{}, err
	}
	invert := false
	if v, ok := obj["invert"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return geom.Cube3D{}, &TypeMismatchError{Path: "domain.invert", Want: "bool", Got: kindOf(v).String()}
		}
		invert = b
	}
	cube, err := geom.NewCube3D(min, max, invert)
	if err != nil {
		return geom.Cube3D{}, &mesh.InvalidDataError{Index: -1, Reason: err.Error()}
	}
	return cube, nil
}

func vecAt(obj map[string]any, key, path string) (geom.Vec3, error) {
	raw, ok := obj[key]
	if !ok {
		return geom.Vec3{}, &PathNotFoundError{Path: path}
	}
	fs, ok := floats(raw)
	if !ok || len(fs) != 3 {
		return geom.Vec3{}, &TypeMismatchError{Path: path, Want: "[x,y,z]", Got: kindOf(raw).String()}
	}
	return geom.Vec3{X: fs[0], Y: fs[1], Z: fs[2]}, nil
}

// sampleMetaKeys are mesh entry keys that are not field components.
var sampleMetaKeys = map[string]bool{"pos": true, "extrapolated": true, "name": true}

func buildSamples(tree map[string]any, domain geom.Cube3D) ([]mesh.Sample, error) {
	raw, ok := tree["mesh"]
	if !ok || raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, &TypeMismatchError{Path: "mesh", Want: "array", Got: kindOf(raw).String()}
	}

	samples := make([]mesh.Sample, 0, len(arr))
	for i, entry := range arr {
		path := fmt.Sprintf("mesh[%d]", i)
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, &TypeMismatchError{Path: path, Want: "object", Got: kindOf(entry).String()}
		}
		pos, err := vecAt(obj, "pos", path+".pos")
		if err != nil {
			return nil, err
		}
		s := mesh.Sample{Pos: pos, Values: make(mesh.Values, 4)}
		if v, ok := obj["extrapolated"]; ok && v != nil {
			b, ok := v.(bool)
			if !ok {
				return nil, &TypeMismatchError{Path: path + ".extrapolated", Want: "bool", Got: kindOf(v).String()}
			}
			s.Extrapolated = b
		}
		if v, ok := obj["name"].(string); ok {
			s.Name = v
		}
		for _, key := range sortedKeys(obj) {
			if sampleMetaKeys[key] {
				continue
			}
			c, err := mesh.ParseFieldComponent(key)
			if err != nil {
				// unknown keys are reported by Validate
				continue
			}
			f, _, err := numberAt(obj, key)
			if err != nil {
				return nil, &mesh.InvalidDataError{Index: i, Reason: err.Error()}
			}
			s.Values[c] = f
		}
		if !domain.Contains(pos) && !s.Extrapolated {
			return nil, &mesh.InvalidDataError{
				Index:  i,
				Reason: fmt.Sprintf("position %s outside domain %s and not tagged extrapolated", pos, domain),
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// driveKeys are the recognised keys of a drive entry.
var driveKeys = map[string]bool{"Offset": true, "Slope": true, "Constant": true, "Terms": true}

func buildDrives(tree map[string]any) (harmonics.ParameterMap, error) {
	raw, ok := tree["drives"]
	if !ok || raw == nil {
		return harmonics.ParameterMap{}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &TypeMismatchError{Path: "drives", Want: "object", Got: kindOf(raw).String()}
	}
	out := make(harmonics.ParameterMap, len(obj))
	for _, id := range sortedKeys(obj) {
		p, err := parseDrive(obj[id], "drives."+id)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func parseDrive(raw any, path string) (harmonics.DriveParameters, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return harmonics.DriveParameters{}, &TypeMismatchError{Path: path, Want: "object", Got: kindOf(raw).String()}
	}
	var coeffs [3]*float64
	for i, t := range []harmonics.ParameterType{harmonics.Offset, harmonics.Slope, harmonics.Constant} {
		f, present, err := numberAt(obj, t.String())
		if err != nil {
			return harmonics.DriveParameters{}, &TypeMismatchError{Path: path + "." + t.String(), Want: "number", Got: err.Error()}
		}
		if present {
			coeffs[i] = &f
		}
	}
	p := harmonics.FromOptional(coeffs[0], coeffs[1], coeffs[2])

	if raw, ok := obj["Terms"]; ok && raw != nil {
		arr, ok := raw.([]any)
		if !ok {
			return p, &TypeMismatchError{Path: path + ".Terms", Want: "array", Got: kindOf(raw).String()}
		}
		terms := make([]harmonics.Term, 0, len(arr))
		for i, entry := range arr {
			tp := fmt.Sprintf("%s.Terms[%d]", path, i)
			tobj, ok := entry.(map[string]any)
			if !ok {
				return p, &TypeMismatchError{Path: tp, Want: "object", Got: kindOf(entry).String()}
			}
			order, _, err := numberAt(tobj, "order")
			if err != nil {
				return p, &TypeMismatchError{Path: tp + ".order", Want: "number", Got: err.Error()}
			}
			amp, _, err := numberAt(tobj, "amplitude")
			if err != nil {
				return p, &TypeMismatchError{Path: tp + ".amplitude", Want: "number", Got: err.Error()}
			}
			phase, _, err := numberAt(tobj, "phase")
			if err != nil {
				return p, &TypeMismatchError{Path: tp + ".phase", Want: "number", Got: err.Error()}
			}
			n, err := harmonics.TermOrder(order)
			if err != nil {
				return p, fmt.Errorf("model: %s.order: %w", tp, err)
			}
			terms = append(terms, harmonics.Term{Order: n, Amplitude: amp, Phase: phase})
		}
		p = p.WithTerms(terms...)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("model: %s: %w", path, err)
	}
	return p, nil
}
