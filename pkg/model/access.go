package model

import (
	"fmt"
	"math"

	"github.com/chazu/cctools/pkg/geom"
)

// AccessOrModifyTarget is the single typed accessor over the model tree.
// With newValue nil it returns the value at path converted to T. With
// newValue set it replaces the value in place, rebuilds the derived model
// and returns the previous value converted to T. A write whose kind differs
// from the current node fails with TypeMismatchError; a write that leaves
// the model invalid is rolled back and its error returned.
//
// Supported targets: float64, int, bool, string, []float64, geom.Vec3,
// map[string]any, []any and any.
func AccessOrModifyTarget[T any](h *Handler, path string, newValue *T) (T, error) {
	var zero T
	p, err := ParsePath(path)
	if err != nil {
		return zero, &PathNotFoundError{Path: path, Reason: err.Error()}
	}

	if newValue == nil {
		h.mu.RLock()
		defer h.mu.RUnlock()
		node, err := resolve(h.tree, p)
		if err != nil {
			return zero, err
		}
		return convert[T](deepCopy(node), path)
	}

	node, err := normalize(any(*newValue))
	if err != nil {
		return zero, &TypeMismatchError{Path: path, Want: "tree value", Got: fmt.Sprintf("%T", *newValue)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current, err := resolve(h.tree, p)
	if err != nil {
		return zero, err
	}
	if ck, nk := kindOf(current), kindOf(node); ck != KindNull && ck != nk {
		return zero, &TypeMismatchError{Path: path, Want: ck.String(), Got: nk.String()}
	}
	prev := zero
	if current != nil {
		if prev, err = convert[T](deepCopy(current), path); err != nil {
			return zero, err
		}
	}
	if err := h.writeLocked(p, node); err != nil {
		return zero, err
	}
	return prev, nil
}

// Get reads the value at path as T.
func Get[T any](h *Handler, path string) (T, error) {
	return AccessOrModifyTarget[T](h, path, nil)
}

// Set writes v at path and returns the previous value.
func Set[T any](h *Handler, path string, v T) (T, error) {
	return AccessOrModifyTarget(h, path, &v)
}

// convert maps a normalised node onto the target type.
func convert[T any](node any, path string) (T, error) {
	var zero T
	mismatch := func() (T, error) {
		return zero, &TypeMismatchError{Path: path, Want: fmt.Sprintf("%T", zero), Got: kindOf(node).String()}
	}

	var out any
	switch any(zero).(type) {
	case float64:
		f, ok := node.(float64)
		if !ok {
			return mismatch()
		}
		out = f
	case int:
		f, ok := node.(float64)
		if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return mismatch()
		}
		out = int(f)
	case bool:
		b, ok := node.(bool)
		if !ok {
			return mismatch()
		}
		out = b
	case string:
		s, ok := node.(string)
		if !ok {
			return mismatch()
		}
		out = s
	case []float64:
		fs, ok := floats(node)
		if !ok {
			return mismatch()
		}
		out = fs
	case geom.Vec3:
		fs, ok := floats(node)
		if !ok || len(fs) != 3 {
			return mismatch()
		}
		out = geom.Vec3{X: fs[0], Y: fs[1], Z: fs[2]}
	case map[string]any:
		m, ok := node.(map[string]any)
		if !ok {
			return mismatch()
		}
		out = m
	case []any:
		a, ok := node.([]any)
		if !ok {
			return mismatch()
		}
		out = a
	default:
		// T is an interface type such as any
		if v, ok := node.(T); ok {
			return v, nil
		}
		if node == nil {
			return zero, nil
		}
		return mismatch()
	}
	return out.(T), nil
}

// floats converts an array of numbers.
func floats(node any) ([]float64, bool) {
	arr, ok := node.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, v := range arr {
		f, ok := v.(float64)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
