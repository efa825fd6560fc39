package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind is the JSON kind of a tree node.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindBool
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// kindOf classifies a normalised node.
func kindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case float64:
		return KindNumber
	case bool:
		return KindBool
	case string:
		return KindString
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	default:
		return KindNull
	}
}

// normalize deep-copies v into the canonical tree representation: objects
// are map[string]any, arrays are []any and every number is float64. Input
// from encoding/json, gopkg.in/yaml.v3 and hand-built literals is accepted.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return t, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("model: number %q: %w", t, err)
		}
		return f, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case map[string]float64:
		out := make(map[string]any, len(t))
		for k, f := range t {
			out[k] = f
		}
		return out, nil
	case json.Marshaler:
		// structured values such as geom.Vec3 or harmonics.DriveParameters
		data, err := t.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("model: encode %T: %w", v, err)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("model: decode %T: %w", v, err)
		}
		return normalize(generic)
	default:
		return nil, fmt.Errorf("model: unsupported value type %T", v)
	}
}

// deepCopy copies an already-normalised node.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return t
	}
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolve walks p from root and returns the node it addresses.
func resolve(root any, p Path) (any, error) {
	cur := root
	for i, seg := range p {
		next, err := step(cur, seg, p[:i+1])
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func step(node any, seg Segment, at Path) (any, error) {
	if seg.IsIndex {
		arr, ok := node.([]any)
		if !ok {
			return nil, &PathNotFoundError{Path: at.String(), Reason: fmt.Sprintf("%s is not an array", kindOf(node))}
		}
		if seg.Index < 0 || seg.Index >= len(arr) {
			return nil, &PathNotFoundError{Path: at.String(), Reason: fmt.Sprintf("index %d out of range [0,%d)", seg.Index, len(arr))}
		}
		return arr[seg.Index], nil
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, &PathNotFoundError{Path: at.String(), Reason: fmt.Sprintf("%s is not an object", kindOf(node))}
	}
	child, ok := obj[seg.Key]
	if !ok {
		return nil, &PathNotFoundError{Path: at.String()}
	}
	return child, nil
}

// assign replaces the node at p (which must exist unless create is set and
// the last segment is an object key) and returns the previous node.
func assign(root any, p Path, value any, create bool) (any, error) {
	if len(p) == 0 {
		return nil, &PathNotFoundError{Path: "", Reason: "cannot replace the root"}
	}
	parent, err := resolve(root, p[:len(p)-1])
	if err != nil {
		return nil, err
	}
	last := p[len(p)-1]
	if last.IsIndex {
		arr, ok := parent.([]any)
		if !ok || last.Index < 0 || last.Index >= len(arr) {
			_, err := step(parent, last, p)
			return nil, err
		}
		prev := arr[last.Index]
		arr[last.Index] = value
		return prev, nil
	}
	obj, ok := parent.(map[string]any)
	if !ok {
		return nil, &PathNotFoundError{Path: p.String(), Reason: fmt.Sprintf("%s is not an object", kindOf(parent))}
	}
	prev, exists := obj[last.Key]
	if !exists && !create {
		return nil, &PathNotFoundError{Path: p.String()}
	}
	obj[last.Key] = value
	return prev, nil
}

// numberAt reads a finite float from an object field.
func numberAt(obj map[string]any, key string) (float64, bool, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, true, fmt.Errorf("%s: want number, got %s", key, kindOf(v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true, fmt.Errorf("%s: not finite", key)
	}
	return f, true, nil
}
