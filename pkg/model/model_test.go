package model

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/harmonics"
	"github.com/chazu/cctools/pkg/mesh"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// baseTree is the end-to-end model: one sample at the domain centre and one
// linear drive.
func baseTree() map[string]any {
	return map[string]any{
		"domain": map[string]any{"min": []any{0, 0, 0}, "max": []any{10, 10, 10}},
		"mesh": []any{
			map[string]any{"pos": []any{5, 5, 5}, "LONGITUDINAL": 1.0, "NORMAL": 2.0, "TRANSVERSE": 3.0},
		},
		"drives": map[string]any{
			"d1": map[string]any{"Offset": 0.1, "Slope": 0.01, "Constant": 0.0},
		},
	}
}

func newHandler(t *testing.T, tree map[string]any) *Handler {
	t.Helper()
	h, err := New(tree)
	require.NoError(t, err)
	return h
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

func TestParsePath(t *testing.T) {
	tests := []struct {
		in   string
		want Path
	}{
		{"", nil},
		{"domain", Path{Key("domain")}},
		{"mesh[0].pos[2]", Path{Key("mesh"), Index(0), Key("pos"), Index(2)}},
		{"drives.d1.Offset", Path{Key("drives"), Key("d1"), Key("Offset")}},
		{`drives["a.b"].Slope`, Path{Key("drives"), Key("a.b"), Key("Slope")}},
		{"[1][2]", Path{Index(1), Index(2)}},
	}
	for _, tt := range tests {
		got, err := ParsePath(tt.in)
		require.NoError(t, err, tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParsePath(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}

	for _, bad := range []string{"a..b", "a.", ".a", "a[", "a[x]", "a[-1]", "a[0]b"} {
		_, err := ParsePath(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "mesh[0].pos[2]", MustParsePath("mesh[0].pos[2]").String())
}

// ---------------------------------------------------------------------------
// AccessOrModifyTarget
// ---------------------------------------------------------------------------

func TestAccessReadTyped(t *testing.T) {
	h := newHandler(t, baseTree())

	offset, err := Get[float64](h, "drives.d1.Offset")
	require.NoError(t, err)
	assert.Equal(t, 0.1, offset)

	pos, err := Get[geom.Vec3](h, "mesh[0].pos")
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{X: 5, Y: 5, Z: 5}, pos)

	z, err := Get[int](h, "mesh[0].pos[2]")
	require.NoError(t, err)
	assert.Equal(t, 5, z)

	min, err := Get[[]float64](h, "domain.min")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, min)

	drive, err := Get[map[string]any](h, "drives.d1")
	require.NoError(t, err)
	assert.Len(t, drive, 3)

	raw, err := Get[any](h, "drives.d1.Slope")
	require.NoError(t, err)
	assert.Equal(t, 0.01, raw)
}

func TestAccessReadErrors(t *testing.T) {
	h := newHandler(t, baseTree())

	_, err := Get[float64](h, "drives.d2.Offset")
	assert.True(t, errors.Is(err, ErrPathNotFound), "err = %v", err)

	_, err = Get[float64](h, "mesh[3]")
	assert.True(t, errors.Is(err, ErrPathNotFound), "err = %v", err)

	_, err = Get[string](h, "drives.d1.Offset")
	var tme *TypeMismatchError
	require.True(t, errors.As(err, &tme), "err = %v", err)
	assert.Equal(t, "number", tme.Got)

	_, err = Get[int](h, "drives.d1.Offset")
	assert.True(t, errors.Is(err, ErrTypeMismatch), "non-integral int read: %v", err)
}

func TestAccessReadAfterWrite(t *testing.T) {
	h := newHandler(t, baseTree())

	prev, err := Set(h, "drives.d1.Offset", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.1, prev)

	got, err := Get[float64](h, "drives.d1.Offset")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)

	// the derived model follows the tree
	v, err := h.Drives().Evaluate("d1", 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v, 1e-12)
}

func TestAccessWriteVectorRebuildsMesh(t *testing.T) {
	h := newHandler(t, baseTree())

	_, err := Set(h, "mesh[0].pos", geom.Vec3{X: 2, Y: 2, Z: 2})
	require.NoError(t, err)

	s := h.Mesh().Samples()
	require.Len(t, s, 1)
	assert.Equal(t, geom.Vec3{X: 2, Y: 2, Z: 2}, s[0].Pos)
}

func TestAccessWriteKindMismatch(t *testing.T) {
	h := newHandler(t, baseTree())

	_, err := Set(h, "drives.d1.Offset", "big")
	assert.True(t, errors.Is(err, ErrTypeMismatch), "err = %v", err)

	_, err = Set(h, "mesh[0].pos", 3.0)
	assert.True(t, errors.Is(err, ErrTypeMismatch), "err = %v", err)

	_, err = Set(h, "drives.d9.Offset", 1.0)
	assert.True(t, errors.Is(err, ErrPathNotFound), "err = %v", err)
}

func TestAccessWriteRollsBackInvalidModel(t *testing.T) {
	h := newHandler(t, baseTree())
	before := h.Tree()

	// moves the only sample outside the domain without tagging it
	_, err := Set(h, "mesh[0].pos", []float64{20, 5, 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mesh.ErrInvalidData), "err = %v", err)

	if diff := cmp.Diff(before, h.Tree()); diff != "" {
		t.Errorf("tree changed after rejected write (-before +after):\n%s", diff)
	}
	pos, err := Get[geom.Vec3](h, "mesh[0].pos")
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{X: 5, Y: 5, Z: 5}, pos)
}

func TestNewCopiesInput(t *testing.T) {
	tree := baseTree()
	h := newHandler(t, tree)

	tree["drives"].(map[string]any)["d1"].(map[string]any)["Offset"] = 99.0
	got, err := Get[float64](h, "drives.d1.Offset")
	require.NoError(t, err)
	assert.Equal(t, 0.1, got)

	out := h.Tree()
	out["merge"] = "sum"
	_, err = Get[string](h, "merge")
	assert.True(t, errors.Is(err, ErrPathNotFound))
}

// ---------------------------------------------------------------------------
// Building
// ---------------------------------------------------------------------------

func TestNewRejectsOutOfDomainSample(t *testing.T) {
	tree := baseTree()
	tree["mesh"] = append(tree["mesh"].([]any), map[string]any{"pos": []any{11, 5, 5}, "MAGNITUDE": 1.0})

	_, err := New(tree)
	var ide *mesh.InvalidDataError
	require.True(t, errors.As(err, &ide), "err = %v", err)
	assert.Equal(t, 1, ide.Index)

	tree["mesh"].([]any)[1].(map[string]any)["extrapolated"] = true
	_, err = New(tree)
	assert.NoError(t, err)
}

func TestNewRejectsFractionalTermOrder(t *testing.T) {
	for _, order := range []float64{2.5, 1e20} {
		tree := baseTree()
		tree["drives"].(map[string]any)["d1"].(map[string]any)["Terms"] = []any{
			map[string]any{"order": order, "amplitude": 1.0},
		}
		_, err := New(tree)
		assert.True(t, errors.Is(err, mesh.ErrInvalidData), "order %g: err = %v", order, err)
	}
}

func TestNewRequiresDomain(t *testing.T) {
	tree := baseTree()
	delete(tree, "domain")
	_, err := New(tree)
	assert.True(t, errors.Is(err, ErrPathNotFound), "err = %v", err)
}

func TestNewDuplicateSamplesNeedMerge(t *testing.T) {
	tree := baseTree()
	tree["mesh"] = append(tree["mesh"].([]any),
		map[string]any{"pos": []any{5, 5, 5}, "LONGITUDINAL": 3.0, "NORMAL": 2.0, "TRANSVERSE": 1.0})

	_, err := New(tree)
	assert.True(t, errors.Is(err, mesh.ErrInvalidData), "err = %v", err)

	tree["merge"] = "average"
	h, err := New(tree)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Mesh().Len())
	assert.Equal(t, mesh.CombineAverage, h.Snapshot().Merge)
}

func TestSnapshotIsStableAcrossWrites(t *testing.T) {
	h := newHandler(t, baseTree())
	old := h.Snapshot()

	_, err := Set(h, "drives.d1.Slope", 1.0)
	require.NoError(t, err)

	v, err := old.Drives.Evaluate("d1", 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, v, 1e-12, "old snapshot must keep old parameters")
	assert.NotSame(t, old, h.Snapshot())
}

// ---------------------------------------------------------------------------
// Named access and drives
// ---------------------------------------------------------------------------

func TestFindAndSetByName(t *testing.T) {
	h, err := Load(filepath.Join("testdata", "model.json"))
	require.NoError(t, err)

	vals, err := h.FindByName("corner", "LONGITUDINAL")
	require.NoError(t, err)
	assert.Equal(t, []any{0.5}, vals)

	n, err := h.SetByName("corner", "LONGITUDINAL", 4.0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := Get[float64](h, "mesh[1].LONGITUDINAL")
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)

	_, err = h.FindByName("missing", "LONGITUDINAL")
	assert.True(t, errors.Is(err, ErrPathNotFound))

	_, err = h.SetByName("corner", "LONGITUDINAL", "x")
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestSetByNameUpdatesAllMatches(t *testing.T) {
	tree := baseTree()
	tree["mesh"] = []any{
		map[string]any{"pos": []any{1, 1, 1}, "MAGNITUDE": 1.0, "name": "probe"},
		map[string]any{"pos": []any{2, 2, 2}, "MAGNITUDE": 2.0, "name": "probe"},
	}
	h := newHandler(t, tree)

	n, err := h.SetByName("probe", "MAGNITUDE", 7.0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, s := range h.Mesh().Samples() {
		assert.Equal(t, 7.0, s.Values[mesh.Magnitude])
	}
}

func TestDriveValuesAndApplyParams(t *testing.T) {
	h, err := Load(filepath.Join("testdata", "model.json"))
	require.NoError(t, err)

	b := h.DriveValues("B")
	assert.Equal(t, []string{"B1", "B2"}, b.IDs())

	require.NoError(t, h.SetDriveParameters("B3", harmonics.NewLinear(1, 2)))
	off, err := Get[float64](h, "drives.B3.Offset")
	require.NoError(t, err)
	assert.Equal(t, 1.0, off)

	err = h.ApplyParams(harmonics.ParameterMap{
		"B1": harmonics.NewConstant(9),
		"d1": harmonics.NewLinear(0, 0).WithTerms(harmonics.Term{Order: 1, Amplitude: 1}),
	})
	require.NoError(t, err)

	p, err := h.Drives().Parameters("B1")
	require.NoError(t, err)
	assert.True(t, p.Equal(harmonics.NewConstant(9)), "B1 = %v", p)

	v, err := h.Drives().Evaluate("d1", math.Pi/2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)
}

func TestApplyParamsCreatesDrivesObject(t *testing.T) {
	tree := baseTree()
	delete(tree, "drives")
	h := newHandler(t, tree)
	assert.Empty(t, h.Drives().Drives())

	require.NoError(t, h.SetDriveParameters("d7", harmonics.NewConstant(2)))
	assert.Equal(t, []string{"d7"}, h.Drives().Drives())
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidateWarnings(t *testing.T) {
	tree := baseTree()
	tree["comment"] = "hello"
	tree["mesh"].([]any)[0].(map[string]any)["colour"] = "red"
	tree["mesh"].([]any)[0].(map[string]any)["extrapolated"] = true
	tree["drives"].(map[string]any)["empty"] = map[string]any{}
	h := newHandler(t, tree)

	res := h.Validate()
	assert.True(t, res.OK())
	paths := make([]string, len(res.Warnings))
	for i, w := range res.Warnings {
		paths[i] = w.Path
		assert.Equal(t, SeverityWarning, w.Severity)
	}
	assert.ElementsMatch(t, []string{"comment", "mesh[0].colour", "mesh[0]", "drives.empty"}, paths)
}

func TestValidateTreeReportsBuildError(t *testing.T) {
	tree := baseTree()
	tree["domain"].(map[string]any)["min"] = []any{20, 0, 0}
	res := ValidateTree(tree)
	require.False(t, res.OK())
	assert.Equal(t, SeverityError, res.Errors[0].Severity)
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

func TestLoadJSONAndYAMLAgree(t *testing.T) {
	fromJSON := newHandler(t, baseTree())
	fromYAML, err := Load(filepath.Join("testdata", "model.yaml"))
	require.NoError(t, err)

	opts := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff(fromJSON.Tree(), fromYAML.Tree(), opts); diff != "" {
		t.Errorf("trees differ (-json +yaml):\n%s", diff)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	h, err := Load(filepath.Join("testdata", "model.json"))
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"out.json", "nested/out.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, h.Save(path))
		back, err := Load(path)
		require.NoError(t, err)
		if diff := cmp.Diff(h.Tree(), back.Tree()); diff != "" {
			t.Errorf("%s round trip (-want +got):\n%s", name, diff)
		}
	}
}
