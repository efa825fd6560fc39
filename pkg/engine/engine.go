// Package engine evaluates study scripts. A study is a small Lisp program,
// run in a fresh zygomys sandbox, that declares a model (domain, mesh
// samples, drives) and a list of queries to compute against it.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/cctools/pkg/calc"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Study is the output of a successful evaluation: a model tree in the shape
// model.New accepts, and the queries to run against it in script order.
type Study struct {
	Tree    map[string]any
	Queries []calc.Query
}

// HasModel reports whether the script declared a domain.
func (s *Study) HasModel() bool {
	_, ok := s.Tree["domain"]
	return ok
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the hard limit for a single evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// Engine evaluates study scripts. It is safe for concurrent use; each call
// to Evaluate creates a fresh sandbox, and only the most recent call's
// result is returned.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	timeout    time.Duration
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: EvalTimeout}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate runs source and returns the study it declares.
//
// Return semantics:
//   - On success: returns study + nil errors + nil error
//   - On parse/eval failure: returns nil study + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Study, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		s, evalErrs, err := evaluate(source)
		ch <- evalResult{study: s, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation, e.timeout)
}

// evaluate runs source in a fresh sandbox with the study builtins installed.
func evaluate(source string) (*Study, []EvalError, error) {
	b := newBuilder()
	if strings.TrimSpace(source) == "" {
		return b.study(), nil, nil
	}

	// The sandbox has no filesystem or syscall access.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, b)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		errs := parseZygomysError(err)
		if b.failed != nil {
			errs[0].Message = b.failed.Error()
		}
		return nil, errs, nil
	}
	return b.study(), nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalErrors, extracting the
// line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
