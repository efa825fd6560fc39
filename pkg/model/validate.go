package model

import (
	"errors"
	"fmt"

	"github.com/chazu/cctools/pkg/mesh"
)

// ValidationSeverity indicates whether a finding makes the model unusable
// or is merely advisory.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // model cannot be computed
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Path     string             // tree path of the offending node (empty if model-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Path, e.Message)
}

// ValidationResult bundles blocking errors and advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// OK reports whether the result has no errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate runs the structural checks (tier 1) and the advisory checks
// (tier 2) over the current tree and snapshot. It never mutates the model.
// A Handler can only exist with a buildable tree, so tier 1 errors surface
// only for trees validated through ValidateTree.
func (h *Handler) Validate() ValidationResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var res ValidationResult
	res.Warnings = append(res.Warnings, validateKeys(h.tree)...)
	res.Warnings = append(res.Warnings, validateContent(h.tree, h.snap)...)
	return res
}

// ValidateTree checks a raw tree without building a Handler. Build failures
// are reported as a single error finding.
func ValidateTree(tree map[string]any, opts ...Option) ValidationResult {
	h, err := New(tree, opts...)
	if err != nil {
		return ValidationResult{Errors: []ValidationError{{
			Path:     ErrorPath(err),
			Message:  err.Error(),
			Severity: SeverityError,
		}}}
	}
	return h.Validate()
}

// ErrorPath returns the model path a build error refers to, empty when the
// error carries none.
func ErrorPath(err error) string {
	var pnf *PathNotFoundError
	var tme *TypeMismatchError
	var ide *mesh.InvalidDataError
	switch {
	case errors.As(err, &pnf):
		return pnf.Path
	case errors.As(err, &tme):
		return tme.Path
	case errors.As(err, &ide) && ide.Index >= 0:
		return fmt.Sprintf("mesh[%d]", ide.Index)
	}
	return ""
}

var topLevelKeys = map[string]bool{"domain": true, "merge": true, "mesh": true, "drives": true}

// validateKeys warns about keys the model builder ignores.
func validateKeys(tree map[string]any) []ValidationError {
	var warns []ValidationError
	for _, k := range sortedKeys(tree) {
		if !topLevelKeys[k] {
			warns = append(warns, warning(k, "unknown top-level key ignored"))
		}
	}
	if arr, ok := tree["mesh"].([]any); ok {
		for i, entry := range arr {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			for _, k := range sortedKeys(obj) {
				if sampleMetaKeys[k] {
					continue
				}
				if _, err := mesh.ParseFieldComponent(k); err != nil {
					warns = append(warns, warning(fmt.Sprintf("mesh[%d].%s", i, k), "unknown sample key ignored"))
				}
			}
		}
	}
	if drives, ok := tree["drives"].(map[string]any); ok {
		for _, id := range sortedKeys(drives) {
			obj, ok := drives[id].(map[string]any)
			if !ok {
				continue
			}
			for _, k := range sortedKeys(obj) {
				if !driveKeys[k] {
					warns = append(warns, warning(fmt.Sprintf("drives.%s.%s", id, k), "unknown drive key ignored"))
				}
			}
		}
	}
	return warns
}

// validateContent reports suspicious but computable model content.
func validateContent(tree map[string]any, snap *Snapshot) []ValidationError {
	var warns []ValidationError
	if snap == nil {
		return warns
	}

	size := snap.Domain.Size()
	if size.X == 0 || size.Y == 0 || size.Z == 0 {
		warns = append(warns, warning("domain", "domain has zero volume"))
	}
	if snap.Mesh.Len() == 0 {
		warns = append(warns, warning("mesh", "mesh has no samples; every query will fail"))
	}
	if arr, ok := tree["mesh"].([]any); ok {
		if snap.Mesh.Len() < len(arr) {
			warns = append(warns, warning("mesh", fmt.Sprintf("%d duplicate samples merged with policy %s", len(arr)-snap.Mesh.Len(), snap.Merge)))
		}
		for i, entry := range arr {
			obj, _ := entry.(map[string]any)
			if ext, _ := obj["extrapolated"].(bool); !ext {
				continue
			}
			if pos, err := vecAt(obj, "pos", ""); err == nil && snap.Domain.Contains(pos) {
				warns = append(warns, warning(fmt.Sprintf("mesh[%d]", i), "tagged extrapolated but lies inside the domain"))
			}
		}
	}
	for _, id := range snap.Drives.Drives() {
		p, err := snap.Drives.Parameters(id)
		if err != nil {
			continue
		}
		if p.IsEmpty() {
			warns = append(warns, warning("drives."+id, "drive has no coefficients; its correction is always 0"))
		}
	}
	return warns
}

func warning(path, msg string) ValidationError {
	return ValidationError{Path: path, Message: msg, Severity: SeverityWarning}
}
