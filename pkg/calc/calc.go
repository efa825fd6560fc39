// Package calc computes model values: for each query it interpolates the
// mesh field at a point, evaluates the drive's harmonic correction, combines
// the two under a fixed rule and hands the result to a sink.
//
// A Calculator reads the model through immutable snapshots, so queries never
// observe a half-applied write. ComputeAll evaluates a batch in parallel over
// one snapshot and dispatches results in query order.
package calc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/cctools/internal/logging"
	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/mesh"
	"github.com/chazu/cctools/pkg/model"
	"github.com/chazu/cctools/pkg/result"
)

// DefaultWorkers bounds ComputeAll when no worker count is configured.
const DefaultWorkers = 4

// ErrOutOfDomain is the sentinel for queries outside the model domain.
var ErrOutOfDomain = errors.New("calc: point outside domain")

// OutOfDomainError reports a query point outside the domain with no
// extrapolation policy configured.
type OutOfDomainError struct {
	Point    geom.Vec3
	Domain   geom.Cube3D
	Distance float64
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("calc: point %s outside domain %s (distance %s)",
		e.Point, e.Domain, logging.FormatSci(e.Distance))
}

func (e *OutOfDomainError) Unwrap() error { return ErrOutOfDomain }

// Query is one computation request. An empty Drive means no harmonic
// correction; an unset Component means the calculator default.
type Query struct {
	Point     geom.Vec3           `json:"point"`
	Drive     string              `json:"drive,omitempty"`
	X         float64             `json:"x"`
	Component mesh.FieldComponent `json:"component,omitempty"`
}

// Source provides model snapshots.
type Source interface {
	Snapshot() *model.Snapshot
}

// Calculator runs queries against a model and dispatches the results.
type Calculator struct {
	src           Source
	sink          result.Handler
	rule          Rule
	extrapolation Extrapolation
	component     mesh.FieldComponent
	logger        *zap.Logger
	workers       int
	runID         uuid.UUID
	seq           atomic.Int64
}

// New returns a calculator reading src and writing to sink. A nil sink
// discards results.
func New(src Source, sink result.Handler, opts ...Option) *Calculator {
	if sink == nil {
		sink = result.Null{}
	}
	c := &Calculator{
		src:       src,
		sink:      sink,
		component: mesh.Magnitude,
		logger:    zap.NewNop(),
		workers:   DefaultWorkers,
		runID:     uuid.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RunID returns the id stamped on every result of this calculator.
func (c *Calculator) RunID() uuid.UUID { return c.runID }

// Rule returns the combination rule.
func (c *Calculator) Rule() Rule { return c.rule }

// Compute evaluates q and dispatches the result. On a sink failure the
// computed result is returned together with the *result.HandlerError.
func (c *Calculator) Compute(q Query) (result.CalcResult, error) {
	snap := c.src.Snapshot()
	r, err := c.evaluate(snap, q)
	if err != nil {
		c.logger.Debug("compute failed", zap.Stringer("point", q.Point), zap.Error(err))
		return result.CalcResult{}, err
	}
	return c.dispatch(r)
}

// ComputeAll evaluates qs in parallel over a single snapshot and dispatches
// the results in query order. Evaluation stops at the first error, which is
// returned with no results dispatched. A dispatch failure stops dispatching
// and returns the results accepted so far.
func (c *Calculator) ComputeAll(ctx context.Context, qs []Query) ([]result.CalcResult, error) {
	snap := c.src.Snapshot()
	out := make([]result.CalcResult, len(qs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range qs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := c.evaluate(snap, qs[i])
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Debug("batch failed", zap.Int("queries", len(qs)), zap.Error(err))
		return nil, err
	}

	for i := range out {
		r, err := c.dispatch(out[i])
		if err != nil {
			return out[:i], err
		}
		out[i] = r
	}
	c.logger.Debug("batch complete", zap.Int("queries", len(qs)), zap.Stringer("run", c.runID))
	return out, nil
}

func (c *Calculator) dispatch(r result.CalcResult) (result.CalcResult, error) {
	r.Seq = int(c.seq.Add(1) - 1)
	if err := c.sink.Accept(r.Clone()); err != nil {
		return r, err
	}
	return r, nil
}

// evaluate computes the unnumbered result of q on snap.
func (c *Calculator) evaluate(snap *model.Snapshot, q Query) (result.CalcResult, error) {
	component := q.Component
	if component == mesh.ComponentUnset {
		component = c.component
	}

	if !q.Point.IsFinite() {
		return result.CalcResult{}, &mesh.InvalidDataError{Index: -1, Reason: fmt.Sprintf("query point %s is not finite", q.Point)}
	}

	at := q.Point
	dist := snap.Domain.OutsideDistance(q.Point)
	outside := !snap.Domain.Contains(q.Point)
	if outside {
		switch c.extrapolation {
		case ExtrapolateNearest:
		case ExtrapolateClamp:
			if !snap.Domain.Inverted() {
				at = snap.Domain.Clamp(q.Point)
			}
		default:
			return result.CalcResult{}, &OutOfDomainError{Point: q.Point, Domain: snap.Domain, Distance: dist}
		}
	}

	in, err := snap.Mesh.Query(at)
	if err != nil {
		return result.CalcResult{}, err
	}
	meshValue, err := in.Value(component)
	if err != nil {
		return result.CalcResult{}, err
	}

	var correction float64
	var params string
	if q.Drive != "" {
		p, err := snap.Drives.Parameters(q.Drive)
		if err != nil {
			return result.CalcResult{}, err
		}
		correction = p.Evaluate(q.X)
		params = p.String()
	}

	value := c.rule.Apply(meshValue, correction)
	if c.logger.Core().Enabled(zap.DebugLevel) {
		c.logger.Debug("computed",
			zap.Stringer("point", q.Point),
			zap.String("drive", q.Drive),
			logging.Sci("mesh", meshValue),
			logging.Sci("correction", correction),
			logging.Sci("value", value))
	}

	return result.CalcResult{
		RunID:           c.runID,
		Point:           q.Point,
		Drive:           q.Drive,
		X:               q.X,
		Component:       component,
		MeshValue:       meshValue,
		Correction:      correction,
		Value:           value,
		Rule:            c.rule.String(),
		Extrapolated:    outside || in.Extrapolated,
		OutsideDistance: dist,
		Provenance: result.Provenance{
			Neighbors:  in.Neighbors,
			Parameters: params,
		},
	}, nil
}
