package harmonics

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/chazu/cctools/pkg/mesh"
)

func TestLinearEvaluateIsExact(t *testing.T) {
	tests := []struct {
		o, s, c, x float64
	}{
		{0.1, 0.01, 0, 10},
		{-3.5, 2.25, 7, 4},
		{1e-3, -1e3, 99, 0.125},
		{0, 0, 0, 42},
	}
	for _, tt := range tests {
		p := NewFull(tt.o, tt.s, tt.c)
		if got, want := p.Evaluate(tt.x), tt.o+float64(tt.s*tt.x); got != want {
			t.Errorf("Evaluate(%g) with %v = %v, want exactly %v", tt.x, p, got, want)
		}
	}
}

func TestConstantOnlyEvaluate(t *testing.T) {
	p := NewConstant(2.5)
	for _, x := range []float64{-10, 0, 3} {
		if got := p.Evaluate(x); got != 2.5 {
			t.Errorf("Evaluate(%g) = %g, want 2.5", x, got)
		}
	}
	if got := (DriveParameters{}).Evaluate(5); got != 0 {
		t.Errorf("empty Evaluate = %g, want 0", got)
	}
}

func TestEvaluateWithTerms(t *testing.T) {
	p := NewLinear(1, 0.5).WithTerms(
		Term{Order: 2, Amplitude: 0.3},
		Term{Order: 3, Amplitude: -0.1, Phase: math.Pi / 2},
	)
	x := 0.7
	// hand-computed reference
	want := 1 + 0.5*0.7 + 0.3*math.Sin(1.4) - 0.1*math.Sin(2.1+math.Pi/2)
	if got := p.Evaluate(x); math.Abs(got-want) > 1e-12 {
		t.Errorf("Evaluate = %.15g, want %.15g", got, want)
	}
}

func TestTypedGetters(t *testing.T) {
	p := NewLinear(0.1, 0.01)
	if v, err := p.Offset(); err != nil || v != 0.1 {
		t.Errorf("Offset = %g, %v", v, err)
	}
	if v, err := p.Slope(); err != nil || v != 0.01 {
		t.Errorf("Slope = %g, %v", v, err)
	}
	if _, err := p.Constant(); !errors.Is(err, ErrWrongParameterType) {
		t.Errorf("Constant err = %v, want ErrWrongParameterType", err)
	}
	if !p.IsLinear() {
		t.Error("IsLinear = false")
	}
	if err := p.Set(0.2, Offset); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := p.Offset(); v != 0.2 {
		t.Errorf("Offset after Set = %g", v)
	}
	if err := p.Set(1, Constant); !errors.Is(err, ErrWrongParameterType) {
		t.Errorf("Set absent type err = %v", err)
	}
}

func TestParametersStringAndEqual(t *testing.T) {
	p := NewLinear(0.1, 0.01)
	if got := p.String(); got != "Offset: 0.1, Slope: 0.01" {
		t.Errorf("String = %q", got)
	}
	if got := (DriveParameters{}).String(); got != "Undefined" {
		t.Errorf("empty String = %q", got)
	}
	if !p.Equal(NewLinear(0.1, 0.01)) {
		t.Error("Equal on identical sets = false")
	}
	if p.Equal(NewFull(0.1, 0.01, 0)) {
		t.Error("Equal ignores presence of Constant")
	}
	if p.Equal(p.WithTerms(Term{Order: 1, Amplitude: 1})) {
		t.Error("Equal ignores terms")
	}
}

func TestParametersJSON(t *testing.T) {
	var p DriveParameters
	if err := json.Unmarshal([]byte(`{"Offset":0.1,"Slope":0.01,"Terms":[{"order":2,"amplitude":0.5}]}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.Has(Offset) || !p.Has(Slope) || p.Has(Constant) {
		t.Errorf("presence wrong: %v", p)
	}
	if len(p.Terms) != 1 || p.Terms[0].Order != 2 {
		t.Errorf("terms = %+v", p.Terms)
	}

	data, err := json.Marshal(NewConstant(3))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"Constant":3}` {
		t.Errorf("marshal = %s", data)
	}
}

func TestValidate(t *testing.T) {
	bad := []DriveParameters{
		NewParameter(math.NaN(), Offset),
		NewLinear(0, math.Inf(1)),
		NewLinear(0, 1).WithTerms(Term{Order: 0, Amplitude: 1}),
	}
	for _, p := range bad {
		if err := p.Validate(); !errors.Is(err, mesh.ErrInvalidData) {
			t.Errorf("Validate(%v) = %v, want ErrInvalidData", p, err)
		}
	}
}

func TestTermOrder(t *testing.T) {
	if n, err := TermOrder(3); err != nil || n != 3 {
		t.Errorf("TermOrder(3) = %d, %v", n, err)
	}
	for _, v := range []float64{2.5, 1e20, -1e20, math.NaN(), math.Inf(1)} {
		if _, err := TermOrder(v); !errors.Is(err, mesh.ErrInvalidData) {
			t.Errorf("TermOrder(%g) = %v, want ErrInvalidData", v, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

func TestHandlerSetAndEvaluate(t *testing.T) {
	h, err := NewHandler(ParameterMap{"d1": NewLinear(0.1, 0.01)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	got, err := h.Evaluate("d1", 10)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(got-0.2) > 1e-12 {
		t.Errorf("Evaluate = %g, want 0.2", got)
	}

	if err := h.SetParameters("d1", NewConstant(4)); err != nil {
		t.Fatalf("SetParameters: %v", err)
	}
	if got, _ := h.Evaluate("d1", 10); got != 4 {
		t.Errorf("Evaluate after overwrite = %g, want 4", got)
	}
}

func TestHandlerUnknownDrive(t *testing.T) {
	h, _ := NewHandler(nil)
	_, err := h.Evaluate("nope", 1)
	if !errors.Is(err, ErrUnknownDrive) {
		t.Fatalf("err = %v, want ErrUnknownDrive", err)
	}
	var ude *UnknownDriveError
	if !errors.As(err, &ude) || ude.ID != "nope" {
		t.Errorf("UnknownDriveError = %+v", ude)
	}
	if _, err := h.Parameters("nope"); !errors.Is(err, ErrUnknownDrive) {
		t.Errorf("Parameters err = %v", err)
	}
}

func TestHandlerApplyIsAtomic(t *testing.T) {
	h, _ := NewHandler(ParameterMap{"a": NewConstant(1)})
	err := h.Apply(ParameterMap{
		"b": NewConstant(2),
		"c": NewParameter(math.NaN(), Offset),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if h.Len() != 1 {
		t.Errorf("partial apply: Len = %d", h.Len())
	}
}

func TestHandlerDrivesAndMatching(t *testing.T) {
	h, _ := NewHandler(ParameterMap{
		"B3":   NewConstant(3),
		"B1":   NewConstant(1),
		"B12":  NewConstant(12),
		"B123": NewConstant(123),
		"A1":   NewConstant(0),
		"Bx":   NewConstant(0),
	})

	drives := h.Drives()
	want := []string{"A1", "B1", "B12", "B123", "B3", "Bx"}
	if len(drives) != len(want) {
		t.Fatalf("Drives = %v", drives)
	}
	for i := range want {
		if drives[i] != want[i] {
			t.Errorf("Drives[%d] = %q, want %q", i, drives[i], want[i])
		}
	}

	m := h.Matching("B")
	ids := m.IDs()
	if len(ids) != 3 || ids[0] != "B1" || ids[1] != "B12" || ids[2] != "B3" {
		t.Errorf("Matching(B) = %v", ids)
	}
}

// ---------------------------------------------------------------------------
// Profile
// ---------------------------------------------------------------------------

func TestProfileBnPoints(t *testing.T) {
	p := Profile{
		Ell: []float64{0.001, 0.002},
		Bn:  [][]float64{{1, 2}, {3, 4}},
	}

	odd, err := p.BnPoints(1)
	if err != nil {
		t.Fatalf("BnPoints(1): %v", err)
	}
	if odd[0] != (Point2{X: 1, Y: -1}) || odd[1] != (Point2{X: 2, Y: -2}) {
		t.Errorf("BnPoints(1) = %v", odd)
	}
	even, err := p.BnPoints(2)
	if err != nil {
		t.Fatalf("BnPoints(2): %v", err)
	}
	if even[1] != (Point2{X: 2, Y: 4}) {
		t.Errorf("BnPoints(2) = %v", even)
	}
	if p.Bn[0][0] != 1 {
		t.Error("BnPoints mutated the profile")
	}
	for _, c := range []int{0, 3} {
		if _, err := p.BnPoints(c); !errors.Is(err, mesh.ErrInvalidData) {
			t.Errorf("BnPoints(%d) err = %v", c, err)
		}
	}
}

func TestNormalizeMultipoles(t *testing.T) {
	a := []float64{0, 0.5, -2}
	b := []float64{9, 4, 1}
	an, bn, err := NormalizeMultipoles(a, b)
	if err != nil {
		t.Fatalf("NormalizeMultipoles: %v", err)
	}
	if len(an) != 2 || len(bn) != 2 {
		t.Fatalf("lengths = %d, %d", len(an), len(bn))
	}
	if math.Abs(bn[0]-1e4*4/9) > 1e-9 || math.Abs(an[1]-1e4*-2/9) > 1e-9 {
		t.Errorf("an = %v, bn = %v", an, bn)
	}

	long := make([]float64, 15)
	long[1] = 1
	an, _, err = NormalizeMultipoles(long, make([]float64, 15))
	if err != nil {
		t.Fatalf("long: %v", err)
	}
	if len(an) != 10 || an[0] != 1e4 {
		t.Errorf("long an = %v", an)
	}

	if _, _, err := NormalizeMultipoles([]float64{1}, nil); !errors.Is(err, mesh.ErrInvalidData) {
		t.Errorf("length mismatch err = %v", err)
	}
}

func TestZipPoints(t *testing.T) {
	pts, err := ZipPoints([]float64{1, 2}, []float64{3, 4})
	if err != nil || len(pts) != 2 || pts[1] != (Point2{2, 4}) {
		t.Errorf("ZipPoints = %v, %v", pts, err)
	}
	if _, err := ZipPoints([]float64{1}, nil); err == nil {
		t.Error("expected error on length mismatch")
	}
}
