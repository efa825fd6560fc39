package model

import (
	"fmt"

	"go.uber.org/zap"
)

// NameKey is the object field FindByName and SetByName match against.
const NameKey = "name"

// namedPaths returns the paths of every object in the tree whose "name"
// field equals name, in depth-first order with object keys sorted.
func namedPaths(node any, name string, at Path, out []Path) []Path {
	switch t := node.(type) {
	case map[string]any:
		if n, ok := t[NameKey].(string); ok && n == name {
			out = append(out, at)
		}
		for _, k := range sortedKeys(t) {
			out = namedPaths(t[k], name, at.Join(Key(k)), out)
		}
	case []any:
		for i, child := range t {
			out = namedPaths(child, name, at.Join(Index(i)), out)
		}
	}
	return out
}

// FindByName searches the tree for objects named name and returns the value
// at the relative path rel inside each of them. Objects that lack rel are
// skipped; PathNotFoundError is returned when nothing matches.
func (h *Handler) FindByName(name, rel string) ([]any, error) {
	relPath, err := ParsePath(rel)
	if err != nil {
		return nil, &PathNotFoundError{Path: rel, Reason: err.Error()}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []any
	for _, p := range namedPaths(h.tree, name, nil, nil) {
		v, err := resolve(h.tree, p.Join(relPath...))
		if err != nil {
			continue
		}
		out = append(out, deepCopy(v))
	}
	if len(out) == 0 {
		return nil, &PathNotFoundError{Path: fmt.Sprintf("%s/%s", name, rel), Reason: "no named object holds this path"}
	}
	return out, nil
}

// SetByName writes value at rel inside every object named name and returns
// how many were updated. The write is all-or-nothing: any kind mismatch or
// an invalid resulting model leaves the tree untouched.
func (h *Handler) SetByName(name, rel string, value any) (int, error) {
	relPath, err := ParsePath(rel)
	if err != nil {
		return 0, &PathNotFoundError{Path: rel, Reason: err.Error()}
	}
	node, err := normalize(value)
	if err != nil {
		return 0, &TypeMismatchError{Path: rel, Want: "tree value", Got: fmt.Sprintf("%T", value)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []Path
	for _, p := range namedPaths(h.tree, name, nil, nil) {
		full := p.Join(relPath...)
		cur, err := resolve(h.tree, full)
		if err != nil {
			continue
		}
		if ck, nk := kindOf(cur), kindOf(node); ck != KindNull && ck != nk {
			return 0, &TypeMismatchError{Path: full.String(), Want: ck.String(), Got: nk.String()}
		}
		targets = append(targets, full)
	}
	if len(targets) == 0 {
		return 0, &PathNotFoundError{Path: fmt.Sprintf("%s/%s", name, rel), Reason: "no named object holds this path"}
	}

	backup := deepCopy(h.tree).(map[string]any)
	for _, p := range targets {
		if _, err := assign(h.tree, p, deepCopy(node), false); err != nil {
			h.tree = backup
			return 0, err
		}
	}
	snap, err := h.build()
	if err != nil {
		h.tree = backup
		return 0, fmt.Errorf("model: set %s/%s: %w", name, rel, err)
	}
	h.snap = snap
	h.logger.Debug("model updated by name",
		zap.String("name", name),
		zap.String("path", rel),
		zap.Int("matches", len(targets)))
	return len(targets), nil
}
