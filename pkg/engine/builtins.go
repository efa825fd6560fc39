package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/cctools/pkg/calc"
	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/harmonics"
	"github.com/chazu/cctools/pkg/mesh"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// preprocessSource rewrites study source into something zygomys accepts:
//
//   - :keyword becomes the string literal "__kw_keyword"
//   - kebab-case identifiers become snake_case (zygomys reads '-' as minus)
//   - ';' line comments become '//' comments
//
// String literals (double-quoted and backtick) pass through untouched.
func preprocessSource(source string) string {
	var out strings.Builder
	out.Grow(len(source) + len(source)/4)

	for i := 0; i < len(source); {
		c := source[i]
		switch {
		case c == '"' || c == '`':
			j := skipString(source, i)
			out.WriteString(source[i:j])
			i = j

		case c == ';':
			out.WriteString("//")
			for i < len(source) && source[i] == ';' {
				i++
			}
			j := strings.IndexByte(source[i:], '\n')
			if j < 0 {
				j = len(source) - i
			}
			out.WriteString(source[i : i+j])
			i += j

		case c == ':' && i+1 < len(source) && source[i+1] == '=':
			out.WriteString(":=")
			i += 2

		case c == ':' && i+1 < len(source) && isLetter(source[i+1]):
			j := i + 1
			for j < len(source) && isKWChar(source[j]) {
				j++
			}
			out.WriteString(`"` + kwPrefix + source[i+1:j] + `"`)
			i = j

		case c == '-' && i > 0 && i+1 < len(source) &&
			isIdentChar(source[i-1]) && isLetter(source[i+1]):
			out.WriteByte('_')
			i++

		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// skipString returns the index just past the string literal starting at i.
// Double-quoted strings honour backslash escapes; backtick strings do not.
func skipString(s string, i int) int {
	quote := s[i]
	j := i + 1
	for j < len(s) && s[j] != quote {
		if quote == '"' && s[j] == '\\' && j+1 < len(s) {
			j++
		}
		j++
	}
	if j < len(s) {
		j++
	}
	return j
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Go values passed through the zygomys environment
// ---------------------------------------------------------------------------

type sexpVec3 struct {
	vec geom.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

type sexpTerm struct {
	term harmonics.Term
}

func (t *sexpTerm) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(term :order %d :amplitude %g :phase %g)", t.term.Order, t.term.Amplitude, t.term.Phase)
}
func (t *sexpTerm) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Argument parsing
// ---------------------------------------------------------------------------

// keywordName returns the keyword name of a preprocessed keyword literal.
func keywordName(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds a mixed positional and keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates keyword arguments from positional ones. A trailing
// keyword with no value maps to SexpNull.
func parseArgs(args []zygo.Sexp) kwArgs {
	pa := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := keywordName(args[i])
		if !ok {
			pa.positional = append(pa.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			pa.kw[name] = args[i+1]
			i++
		} else {
			pa.kw[name] = zygo.SexpNull
		}
	}
	return pa
}

// float returns keyword key as a number, reporting whether it was given.
func (pa kwArgs) float(key string) (float64, bool, error) {
	v, ok := pa.kw[key]
	if !ok {
		return 0, false, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return f, true, nil
}

// unknown returns the first keyword not in allowed.
func (pa kwArgs) unknown(allowed ...string) (string, bool) {
	for k := range pa.kw {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return k, true
		}
	}
	return "", false
}

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString accepts a keyword (:average) or a plain string ("average").
func toKeywordString(s zygo.Sexp) (string, error) {
	if name, ok := keywordName(s); ok {
		return name, nil
	}
	return toString(s)
}

func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return false, nil
		}
	case *zygo.SexpStr:
		name, _ := toKeywordString(v)
		switch name {
		case "true", "yes":
			return true, nil
		case "false", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("expected bool, got %T (%s)", s, s.SexpString(nil))
}

func toVec3(s zygo.Sexp) (geom.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return geom.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a Lisp list or array to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

func vecNode(v geom.Vec3) []any { return []any{v.X, v.Y, v.Z} }

// ---------------------------------------------------------------------------
// Study builder
// ---------------------------------------------------------------------------

// builder accumulates the declarations of one evaluation.
type builder struct {
	domain  map[string]any
	merge   string
	mesh    []any
	drives  map[string]any
	queries []calc.Query

	// failed is the last error returned by a builtin
	failed error
}

func newBuilder() *builder {
	return &builder{drives: make(map[string]any)}
}

type builtinFunc = func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// register installs fn under name, remembering its errors so they can be
// reported without the interpreter's wrapping.
func (b *builder) register(env *zygo.Zlisp, name string, fn builtinFunc) {
	env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		out, err := fn(env, name, args)
		if err != nil {
			b.failed = err
		}
		return out, err
	})
}

func (b *builder) study() *Study {
	tree := make(map[string]any, 4)
	if b.domain != nil {
		tree["domain"] = b.domain
	}
	if b.merge != "" {
		tree["merge"] = b.merge
	}
	if len(b.mesh) > 0 {
		tree["mesh"] = b.mesh
	}
	if len(b.drives) > 0 {
		tree["drives"] = b.drives
	}
	return &Study{Tree: tree, Queries: b.queries}
}

// sampleComponents maps sample keywords to field components.
var sampleComponents = map[string]mesh.FieldComponent{
	"longitudinal": mesh.Longitudinal,
	"normal":       mesh.Normal,
	"transverse":   mesh.Transverse,
	"magnitude":    mesh.Magnitude,
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the study DSL into env. Declarations accumulate
// in b. Source must go through preprocessSource first so :keywords arrive
// as recognisable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	b.register(env, "vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: geom.Vec3{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (domain :min (vec3 0 0 0) :max (vec3 10 10 10) :invert false)
	// (domain (vec3 0 0 0) (vec3 10 10 10))
	// -----------------------------------------------------------------------
	b.register(env, "domain", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if k, bad := pa.unknown("min", "max", "invert"); bad {
			return zygo.SexpNull, fmt.Errorf("domain: unknown keyword :%s", k)
		}
		minArg, maxArg := pa.kw["min"], pa.kw["max"]
		if len(pa.positional) == 2 {
			minArg, maxArg = pa.positional[0], pa.positional[1]
		}
		if minArg == nil || maxArg == nil {
			return zygo.SexpNull, fmt.Errorf("domain requires :min and :max")
		}
		min, err := toVec3(minArg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("domain: min: %w", err)
		}
		max, err := toVec3(maxArg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("domain: max: %w", err)
		}
		invert := false
		if v, ok := pa.kw["invert"]; ok {
			if invert, err = toBool(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("domain: invert: %w", err)
			}
		}
		if _, err := geom.NewCube3D(min, max, invert); err != nil {
			return zygo.SexpNull, fmt.Errorf("domain: %w", err)
		}
		b.domain = map[string]any{"min": vecNode(min), "max": vecNode(max), "invert": invert}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (merge :average)
	// -----------------------------------------------------------------------
	b.register(env, "merge", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("merge requires exactly 1 argument, got %d", len(args))
		}
		s, err := toKeywordString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("merge: %w", err)
		}
		policy, err := mesh.ParseCombinePolicy(s)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("merge: %w", err)
		}
		b.merge = policy.String()
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (sample (vec3 5 5 5) :longitudinal 1 :normal 2 :transverse 3
	//         :name "center" :extrapolated false)
	// -----------------------------------------------------------------------
	b.register(env, "sample", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if k, bad := pa.unknown("longitudinal", "normal", "transverse", "magnitude", "name", "extrapolated"); bad {
			return zygo.SexpNull, fmt.Errorf("sample: unknown keyword :%s", k)
		}
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("sample requires a position")
		}
		pos, err := toVec3(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sample: position: %w", err)
		}

		entry := map[string]any{"pos": vecNode(pos)}
		for kw, c := range sampleComponents {
			f, ok, err := pa.float(kw)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("sample: %w", err)
			}
			if ok {
				entry[c.String()] = f
			}
		}
		if v, ok := pa.kw["name"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("sample: name: %w", err)
			}
			entry["name"] = s
		}
		if v, ok := pa.kw["extrapolated"]; ok {
			x, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("sample: extrapolated: %w", err)
			}
			entry["extrapolated"] = x
		}
		b.mesh = append(b.mesh, entry)
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (term :order 2 :amplitude 0.05 :phase 0)
	// -----------------------------------------------------------------------
	b.register(env, "term", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if k, bad := pa.unknown("order", "amplitude", "phase"); bad {
			return zygo.SexpNull, fmt.Errorf("term: unknown keyword :%s", k)
		}
		order, ok, err := pa.float("order")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("term: %w", err)
		}
		if !ok {
			return zygo.SexpNull, fmt.Errorf("term requires :order")
		}
		amp, _, err := pa.float("amplitude")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("term: %w", err)
		}
		phase, _, err := pa.float("phase")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("term: %w", err)
		}
		n, err := harmonics.TermOrder(order)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("term: %w", err)
		}
		return &sexpTerm{term: harmonics.Term{Order: n, Amplitude: amp, Phase: phase}}, nil
	})

	// -----------------------------------------------------------------------
	// (drive "d1" :offset 0.1 :slope 0.01 :constant 0
	//        :terms (list (term :order 2 :amplitude 0.05)))
	// -----------------------------------------------------------------------
	b.register(env, "drive", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if k, bad := pa.unknown("offset", "slope", "constant", "terms"); bad {
			return zygo.SexpNull, fmt.Errorf("drive: unknown keyword :%s", k)
		}
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("drive requires an id")
		}
		id, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("drive: id: %w", err)
		}
		if id == "" {
			return zygo.SexpNull, fmt.Errorf("drive: empty id")
		}
		if _, dup := b.drives[id]; dup {
			return zygo.SexpNull, fmt.Errorf("drive %q defined twice", id)
		}

		var coeffs [3]*float64
		for i, kw := range []string{"offset", "slope", "constant"} {
			f, ok, err := pa.float(kw)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("drive %q: %w", id, err)
			}
			if ok {
				coeffs[i] = &f
			}
		}
		p := harmonics.FromOptional(coeffs[0], coeffs[1], coeffs[2])

		if v, ok := pa.kw["terms"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("drive %q: terms: %w", id, err)
			}
			terms := make([]harmonics.Term, 0, len(items))
			for i, item := range items {
				t, ok := item.(*sexpTerm)
				if !ok {
					return zygo.SexpNull, fmt.Errorf("drive %q: terms[%d]: expected term, got %T", id, i, item)
				}
				terms = append(terms, t.term)
			}
			p = p.WithTerms(terms...)
		}
		if err := p.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("drive %q: %w", id, err)
		}
		b.drives[id] = p.ToMap()
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (query (vec3 5 5 5) :drive "d1" :x 10 :component :normal)
	// -----------------------------------------------------------------------
	b.register(env, "query", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if k, bad := pa.unknown("drive", "x", "component"); bad {
			return zygo.SexpNull, fmt.Errorf("query: unknown keyword :%s", k)
		}
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("query requires a point")
		}
		pt, err := toVec3(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("query: point: %w", err)
		}
		q := calc.Query{Point: pt}
		if v, ok := pa.kw["drive"]; ok {
			if q.Drive, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("query: drive: %w", err)
			}
		}
		if q.X, _, err = pa.float("x"); err != nil {
			return zygo.SexpNull, fmt.Errorf("query: %w", err)
		}
		if v, ok := pa.kw["component"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("query: component: %w", err)
			}
			if q.Component, err = mesh.ParseFieldComponent(s); err != nil {
				return zygo.SexpNull, fmt.Errorf("query: %w", err)
			}
		}
		b.queries = append(b.queries, q)
		return zygo.SexpNull, nil
	})
}
