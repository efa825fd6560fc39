package study

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chazu/cctools/pkg/calc"
	"github.com/chazu/cctools/pkg/engine"
	"github.com/chazu/cctools/pkg/mesh"
	"github.com/chazu/cctools/pkg/model"
	"github.com/chazu/cctools/pkg/result"
)

const header = `
(domain :min (vec3 0 0 0) :max (vec3 10 10 10))
(sample (vec3 5 5 5) :longitudinal 1 :normal 2 :transverse 3)
(drive "d1" :offset 0.1 :slope 0.01 :constant 0)
`

func run(t *testing.T, src string, opts ...Option) Report {
	t.Helper()
	return NewRunner(opts...).Run(context.Background(), src, nil)
}

// TestE2EStudy exercises the full pipeline: script → engine → model →
// calculator → sink.
func TestE2EStudy(t *testing.T) {
	source, err := os.ReadFile("testdata/e2e.zy")
	require.NoError(t, err)

	sink := result.NewMemory()
	rep := NewRunner().Run(context.Background(), string(source), sink)

	require.True(t, rep.OK(), "errors: %v", rep.Errors)
	assert.Empty(t, rep.Warnings)
	require.Len(t, rep.Results, 1)
	assert.InDelta(t, 3.9417, rep.Results[0].Value, 1e-3)
	assert.InDelta(t, 3.7416573867739413, rep.Results[0].MeshValue, 1e-9)
	assert.Equal(t, rep.RunID, rep.Results[0].RunID.String())
	assert.Equal(t, 1, sink.Len())
	require.NotNil(t, rep.Model)

	v, err := model.Get[float64](rep.Model, "drives.d1.Slope")
	require.NoError(t, err)
	assert.Equal(t, 0.01, v)
}

func TestEmptySource(t *testing.T) {
	for _, src := range []string{"", "  \n", ";; only a comment\n"} {
		rep := run(t, src)
		assert.True(t, rep.OK(), "source %q: %v", src, rep.Errors)
		assert.Empty(t, rep.Results)
		assert.Nil(t, rep.Model)
	}
}

func TestSyntaxError(t *testing.T) {
	rep := run(t, "(domain")
	require.False(t, rep.OK())
	assert.NotEmpty(t, rep.Errors[0].Message)
	assert.Empty(t, rep.Results)
}

func TestQueriesWithoutDomain(t *testing.T) {
	rep := run(t, `(query (vec3 0 0 0))`)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "domain", rep.Errors[0].Path)
	assert.Equal(t, ErrNoDomain.Error(), rep.Errors[0].Message)
}

func TestModelBuildError(t *testing.T) {
	rep := run(t, `
(domain (vec3 0 0 0) (vec3 1 1 1))
(sample (vec3 5 5 5) :magnitude 1)
`)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "mesh[0]", rep.Errors[0].Path)
	assert.Contains(t, rep.Errors[0].Message, "outside domain")
	assert.Nil(t, rep.Model)
}

func TestValidationWarnings(t *testing.T) {
	rep := run(t, header+`
(sample (vec3 1 1 1) :magnitude 2 :extrapolated true)
(drive "idle")
(query (vec3 5 5 5))
`)
	require.True(t, rep.OK(), "errors: %v", rep.Errors)
	paths := make([]string, 0, len(rep.Warnings))
	for _, w := range rep.Warnings {
		paths = append(paths, w.Path)
	}
	assert.ElementsMatch(t, []string{"mesh[1]", "drives.idle"}, paths)
	assert.Len(t, rep.Results, 1)
}

func TestComputeErrorReported(t *testing.T) {
	rep := run(t, header+`
(query (vec3 5 5 5) :drive "d1")
(query (vec3 5 5 5) :drive "missing")
`)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0].Message, `unknown drive "missing"`)
	assert.Empty(t, rep.Results)
	assert.NotNil(t, rep.Model)
}

func TestOutOfDomainQuery(t *testing.T) {
	src := header + `(query (vec3 11 5 5))`

	rep := run(t, src)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0].Message, "outside domain")

	rep = run(t, src, WithCalcOptions(calc.WithExtrapolation(calc.ExtrapolateNearest)))
	require.True(t, rep.OK(), "errors: %v", rep.Errors)
	require.Len(t, rep.Results, 1)
	assert.True(t, rep.Results[0].Extrapolated)
}

func TestRunnerOptions(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	src := `
(domain (vec3 0 0 0) (vec3 10 10 10))
(sample (vec3 1 1 1) :magnitude 1)
(sample (vec3 1 1 1) :magnitude 2)
(query (vec3 1 1 1))
`
	rep := run(t, src,
		WithEngine(engine.NewEngine()),
		WithLogger(zap.New(core)),
		WithModelOptions(model.WithDefaultMerge(mesh.CombineSum)),
		WithCalcOptions(calc.WithRule(calc.Multiplicative)))

	require.True(t, rep.OK(), "errors: %v", rep.Errors)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, 3.0, rep.Results[0].Value)
	assert.Equal(t, "multiplicative", rep.Results[0].Rule)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0].Message, "merged with policy sum")
	assert.Equal(t, 1, logs.FilterMessage("study complete").Len())
}

func TestRapidSequentialRuns(t *testing.T) {
	r := NewRunner()
	sources := []string{
		header + `(query (vec3 5 5 5) :drive "d1" :x 1)`,
		`(+ 1 2)`,
		``,
		`(domain`,
		header + `(query (vec3 5 5 5) :drive "d1" :x 2)`,
	}
	for i, src := range sources {
		func() {
			defer func() {
				if p := recover(); p != nil {
					t.Errorf("iteration %d panicked: %v", i, p)
				}
			}()
			_ = r.Run(context.Background(), src, result.Null{})
		}()
	}
}
