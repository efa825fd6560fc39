// Package result defines the output of a model computation and the sinks
// that consume it. The calculator only sees the Handler interface; which
// variant is active (memory, CSV, JSON lines, log, null, fan-out) is chosen
// at configuration time.
package result

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/mesh"
)

// Provenance records the inputs that contributed to a result.
type Provenance struct {
	Neighbors  []mesh.Neighbor `json:"neighbors"`
	Parameters string          `json:"parameters,omitempty"`
}

// CalcResult is the output of one computation. Once handed to a Handler it
// is owned by that handler.
type CalcResult struct {
	RunID           uuid.UUID           `json:"run_id"`
	Seq             int                 `json:"seq"`
	Point           geom.Vec3           `json:"point"`
	Drive           string              `json:"drive,omitempty"`
	X               float64             `json:"x"`
	Component       mesh.FieldComponent `json:"component"`
	MeshValue       float64             `json:"mesh_value"`
	Correction      float64             `json:"correction"`
	Value           float64             `json:"value"`
	Rule            string              `json:"rule"`
	Extrapolated    bool                `json:"extrapolated"`
	OutsideDistance float64             `json:"outside_distance"`
	Provenance      Provenance          `json:"provenance"`
}

// Clone returns a copy that shares no slices with r.
func (r CalcResult) Clone() CalcResult {
	r.Provenance.Neighbors = append([]mesh.Neighbor(nil), r.Provenance.Neighbors...)
	return r
}

// Handler consumes results.
type Handler interface {
	Accept(CalcResult) error
}

// ErrHandler is the sentinel for every sink failure.
var ErrHandler = errors.New("result: handler failed")

// HandlerError wraps a sink failure with the sink name and the sequence
// number of the result that could not be accepted.
type HandlerError struct {
	Sink string
	Seq  int
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("result: %s sink failed on result %d: %v", e.Sink, e.Seq, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *HandlerError) Unwrap() []error { return []error{ErrHandler, e.Err} }

func sinkError(sink string, seq int, err error) error {
	var he *HandlerError
	if errors.As(err, &he) {
		return err
	}
	return &HandlerError{Sink: sink, Seq: seq, Err: err}
}

// ---------------------------------------------------------------------------
// Memory and Null
// ---------------------------------------------------------------------------

// Memory accumulates results in arrival order. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	results []CalcResult
}

// NewMemory returns an empty accumulator.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Accept(r CalcResult) error {
	m.mu.Lock()
	m.results = append(m.results, r.Clone())
	m.mu.Unlock()
	return nil
}

// Results returns a copy of everything accepted so far.
func (m *Memory) Results() []CalcResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CalcResult, len(m.results))
	for i, r := range m.results {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of accepted results.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

// Reset drops all accumulated results.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.results = nil
	m.mu.Unlock()
}

// Null discards every result. Useful for dry runs.
type Null struct{}

func (Null) Accept(CalcResult) error { return nil }

// ---------------------------------------------------------------------------
// Multi
// ---------------------------------------------------------------------------

// Multi forwards each result to every handler in order and stops at the
// first failure.
type Multi []Handler

func (m Multi) Accept(r CalcResult) error {
	for _, h := range m {
		if err := h.Accept(r.Clone()); err != nil {
			return sinkError("multi", r.Seq, err)
		}
	}
	return nil
}

// Func adapts a function to the Handler interface.
type Func func(CalcResult) error

func (f Func) Accept(r CalcResult) error {
	if err := f(r); err != nil {
		return sinkError("func", r.Seq, err)
	}
	return nil
}

var (
	_ Handler = (*Memory)(nil)
	_ Handler = Null{}
	_ Handler = Multi(nil)
	_ Handler = Func(nil)
)
