package model

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chazu/cctools/pkg/harmonics"
)

// DriveValues returns the drives whose id is prefix followed by one or two
// digits.
func (h *Handler) DriveValues(prefix string) harmonics.ParameterMap {
	return h.Drives().Matching(prefix)
}

// SetDriveParameters writes p into the tree under drives.<id>, creating the
// entry (and the drives object) when absent, and rebuilds the model.
func (h *Handler) SetDriveParameters(id string, p harmonics.DriveParameters) error {
	return h.ApplyParams(harmonics.ParameterMap{id: p})
}

// ApplyParams writes every entry of params into the tree in one step. On
// failure the tree is left unchanged.
func (h *Handler) ApplyParams(params harmonics.ParameterMap) error {
	for _, id := range params.IDs() {
		if id == "" {
			return fmt.Errorf("model: apply params: empty drive id")
		}
		if err := params[id].Validate(); err != nil {
			return fmt.Errorf("model: drive %q: %w", id, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	backup := deepCopy(h.tree).(map[string]any)
	drives, ok := h.tree["drives"].(map[string]any)
	if !ok {
		if raw, exists := h.tree["drives"]; exists && raw != nil {
			return &TypeMismatchError{Path: "drives", Want: "object", Got: kindOf(raw).String()}
		}
		drives = make(map[string]any, len(params))
		h.tree["drives"] = drives
	}
	for _, id := range params.IDs() {
		node, err := normalize(params[id].ToMap())
		if err != nil {
			h.tree = backup
			return err
		}
		drives[id] = node
	}

	snap, err := h.build()
	if err != nil {
		h.tree = backup
		return fmt.Errorf("model: apply params: %w", err)
	}
	h.snap = snap
	h.logger.Debug("drive parameters applied", zap.Strings("drives", params.IDs()))
	return nil
}
