package harmonics

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// ErrUnknownDrive is the sentinel for lookups of an absent drive id.
var ErrUnknownDrive = errors.New("harmonics: unknown drive")

// UnknownDriveError names the drive id that was not found.
type UnknownDriveError struct {
	ID string
}

func (e *UnknownDriveError) Error() string {
	return fmt.Sprintf("harmonics: unknown drive %q", e.ID)
}

func (e *UnknownDriveError) Unwrap() error { return ErrUnknownDrive }

// Handler stores the parameter map and evaluates drives. Reads are safe to
// share across goroutines as long as no SetParameters or Apply runs
// concurrently with a compute phase.
type Handler struct {
	mu     sync.RWMutex
	params ParameterMap
}

// NewHandler returns a handler seeded with a copy of initial.
func NewHandler(initial ParameterMap) (*Handler, error) {
	h := &Handler{params: make(ParameterMap, len(initial))}
	if err := h.Apply(initial); err != nil {
		return nil, err
	}
	return h, nil
}

// SetParameters inserts or overwrites the entry for id.
func (h *Handler) SetParameters(id string, p DriveParameters) error {
	if id == "" {
		return fmt.Errorf("harmonics: set parameters: empty drive id")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("harmonics: drive %q: %w", id, err)
	}
	h.mu.Lock()
	h.params[id] = p.WithTerms(p.Terms...)
	h.mu.Unlock()
	return nil
}

// Apply sets every entry of m. Either all entries are applied or none.
func (h *Handler) Apply(m ParameterMap) error {
	for _, id := range m.IDs() {
		if id == "" {
			return fmt.Errorf("harmonics: apply: empty drive id")
		}
		if err := m[id].Validate(); err != nil {
			return fmt.Errorf("harmonics: drive %q: %w", id, err)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, p := range m {
		h.params[id] = p.WithTerms(p.Terms...)
	}
	return nil
}

// Parameters returns the set stored for id.
func (h *Handler) Parameters(id string) (DriveParameters, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.params[id]
	if !ok {
		return DriveParameters{}, &UnknownDriveError{ID: id}
	}
	return p.WithTerms(p.Terms...), nil
}

// Evaluate computes the correction of drive id at x.
func (h *Handler) Evaluate(id string, x float64) (float64, error) {
	h.mu.RLock()
	p, ok := h.params[id]
	h.mu.RUnlock()
	if !ok {
		return 0, &UnknownDriveError{ID: id}
	}
	return p.Evaluate(x), nil
}

// Drives returns the known drive ids, sorted.
func (h *Handler) Drives() []string {
	h.mu.RLock()
	ids := lo.Keys(map[string]DriveParameters(h.params))
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of drives.
func (h *Handler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.params)
}

// All returns a copy of the full parameter map.
func (h *Handler) All() ParameterMap {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.params.Clone()
}

// Matching returns the drives whose id is prefix followed by one or two
// digits, e.g. "B1" through "B99" for prefix "B".
func (h *Handler) Matching(prefix string) ParameterMap {
	re := DriveIDPattern(prefix)
	h.mu.RLock()
	defer h.mu.RUnlock()
	return ParameterMap(lo.PickBy(map[string]DriveParameters(h.params), func(id string, _ DriveParameters) bool {
		return re.MatchString(id)
	})).Clone()
}

// DriveIDPattern matches prefix followed by one or two digits.
func DriveIDPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `\d{1,2}$`)
}
