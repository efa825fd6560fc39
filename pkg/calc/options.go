package calc

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chazu/cctools/pkg/mesh"
)

// Rule is the way a harmonic correction is folded into a mesh value.
type Rule int

const (
	// Additive yields mesh + correction.
	Additive Rule = iota
	// Multiplicative yields mesh * (1 + correction).
	Multiplicative
)

func (r Rule) String() string {
	switch r {
	case Additive:
		return "additive"
	case Multiplicative:
		return "multiplicative"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// Apply combines a mesh value with a correction.
func (r Rule) Apply(meshValue, correction float64) float64 {
	if r == Multiplicative {
		return meshValue * (1 + correction)
	}
	return meshValue + correction
}

// ParseRule parses a rule name. The empty string is Additive.
func ParseRule(s string) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "additive", "add":
		return Additive, nil
	case "multiplicative", "mul":
		return Multiplicative, nil
	}
	return Additive, fmt.Errorf("calc: unknown rule %q", s)
}

// Extrapolation is the policy for query points outside the domain.
type Extrapolation int

const (
	// ExtrapolateNone rejects out-of-domain points.
	ExtrapolateNone Extrapolation = iota
	// ExtrapolateNearest interpolates at the point itself from the nearest
	// samples.
	ExtrapolateNearest
	// ExtrapolateClamp interpolates at the nearest point of the domain.
	ExtrapolateClamp
)

func (e Extrapolation) String() string {
	switch e {
	case ExtrapolateNone:
		return "none"
	case ExtrapolateNearest:
		return "nearest"
	case ExtrapolateClamp:
		return "clamp"
	default:
		return fmt.Sprintf("Extrapolation(%d)", int(e))
	}
}

// ParseExtrapolation parses a policy name. The empty string is
// ExtrapolateNone.
func ParseExtrapolation(s string) (Extrapolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ExtrapolateNone, nil
	case "nearest":
		return ExtrapolateNearest, nil
	case "clamp":
		return ExtrapolateClamp, nil
	}
	return ExtrapolateNone, fmt.Errorf("calc: unknown extrapolation policy %q", s)
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithRule sets the combination rule.
func WithRule(r Rule) Option {
	return func(c *Calculator) { c.rule = r }
}

// WithExtrapolation sets the out-of-domain policy.
func WithExtrapolation(e Extrapolation) Option {
	return func(c *Calculator) { c.extrapolation = e }
}

// WithComponent sets the component used when a query names none.
func WithComponent(fc mesh.FieldComponent) Option {
	return func(c *Calculator) {
		if fc != mesh.ComponentUnset {
			c.component = fc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWorkers bounds the parallelism of ComputeAll.
func WithWorkers(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithRunID stamps results with a fixed run id instead of a random one.
func WithRunID(id uuid.UUID) Option {
	return func(c *Calculator) { c.runID = id }
}
