// Package study runs a study script end to end: evaluate the script, build
// and validate the model it declares, compute every query and report the
// results together with all errors and warnings met along the way.
package study

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/chazu/cctools/pkg/calc"
	"github.com/chazu/cctools/pkg/engine"
	"github.com/chazu/cctools/pkg/model"
	"github.com/chazu/cctools/pkg/result"
)

// Message is one error or warning in a Report.
type Message struct {
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Report is the full outcome of a run.
type Report struct {
	RunID    string              `json:"run_id,omitempty"`
	Results  []result.CalcResult `json:"results"`
	Errors   []Message           `json:"errors"`
	Warnings []Message           `json:"warnings"`

	// Model is the model the study declared, nil when it failed to build.
	Model *model.Handler `json:"-"`
}

// OK reports whether the run finished without errors.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// ErrNoDomain is reported for scripts that declare queries but no domain.
var ErrNoDomain = errors.New("study declares no domain")

// Option configures a Runner.
type Option func(*Runner)

// WithEngine sets the script engine.
func WithEngine(e *engine.Engine) Option {
	return func(r *Runner) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithLogger sets the logger, also passed on to the model and calculator.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCalcOptions sets options applied to every calculator the runner
// creates.
func WithCalcOptions(opts ...calc.Option) Option {
	return func(r *Runner) { r.calcOpts = append(r.calcOpts, opts...) }
}

// WithModelOptions sets options applied to every model the runner builds.
func WithModelOptions(opts ...model.Option) Option {
	return func(r *Runner) { r.modelOpts = append(r.modelOpts, opts...) }
}

// Runner evaluates study scripts and computes their queries.
type Runner struct {
	engine    *engine.Engine
	logger    *zap.Logger
	calcOpts  []calc.Option
	modelOpts []model.Option
}

// NewRunner creates a Runner with a default engine.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		engine: engine.NewEngine(),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run evaluates source and computes its queries, sending each result to
// sink (which may be nil). Failures never panic; they are collected in the
// report. A script with no domain and no queries is a valid empty study.
func (r *Runner) Run(ctx context.Context, source string, sink result.Handler) Report {
	rep := Report{
		Results:  []result.CalcResult{},
		Errors:   []Message{},
		Warnings: []Message{},
	}

	// Step 1: evaluate the script.
	s, evalErrs, err := r.engine.Evaluate(source)
	if err != nil {
		r.logger.Warn("study evaluation failed", zap.Error(err))
		rep.Errors = append(rep.Errors, Message{Message: err.Error()})
		return rep
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			rep.Errors = append(rep.Errors, Message{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return rep
	}
	if !s.HasModel() {
		if len(s.Queries) > 0 {
			rep.Errors = append(rep.Errors, Message{Path: "domain", Message: ErrNoDomain.Error()})
		}
		return rep
	}

	// Step 2: build and validate the model.
	m, err := model.New(s.Tree, append([]model.Option{model.WithLogger(r.logger)}, r.modelOpts...)...)
	if err != nil {
		rep.Errors = append(rep.Errors, Message{Path: model.ErrorPath(err), Message: err.Error()})
		return rep
	}
	rep.Model = m
	v := m.Validate()
	for _, w := range v.Warnings {
		rep.Warnings = append(rep.Warnings, Message{Path: w.Path, Message: w.Message})
	}
	for _, e := range v.Errors {
		rep.Errors = append(rep.Errors, Message{Path: e.Path, Message: e.Message})
	}
	if !v.OK() {
		return rep
	}

	// Step 3: compute every query.
	c := calc.New(m, sink, append([]calc.Option{calc.WithLogger(r.logger)}, r.calcOpts...)...)
	rep.RunID = c.RunID().String()
	results, err := c.ComputeAll(ctx, s.Queries)
	rep.Results = append(rep.Results, results...)
	if err != nil {
		rep.Errors = append(rep.Errors, Message{Message: err.Error()})
		return rep
	}

	r.logger.Info("study complete",
		zap.String("run", rep.RunID),
		zap.Int("queries", len(s.Queries)),
		zap.Int("warnings", len(rep.Warnings)))
	return rep
}
