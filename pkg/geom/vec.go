// Package geom provides the spatial primitives shared by the mesh, model
// and calculator packages: a 3D vector and the axis-aligned Cube3D domain
// used to clip and validate mesh evaluation. Cube3D is backed by the
// github.com/deadsy/sdfx box and signed distance types.
package geom

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Vec3 is a point or displacement in model coordinates (m).
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Length returns the Euclidean norm of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Dist returns the Euclidean distance between v and o.
func (v Vec3) Dist(o Vec3) float64 {
	return v.Sub(o).Length()
}

// Midpoint returns the point halfway between v and o.
func (v Vec3) Midpoint(o Vec3) Vec3 {
	return v.Add(o).Scale(0.5)
}

// IsFinite reports whether every coordinate is neither NaN nor infinite.
func (v Vec3) IsFinite() bool {
	for _, c := range v.Array() {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Array returns the coordinates as a fixed-size array.
func (v Vec3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

func (v Vec3) toSdfx() v3.Vec {
	return v3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

func fromSdfx(v v3.Vec) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// MarshalJSON encodes the vector as [x, y, z].
func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Array())
}

// UnmarshalJSON decodes a vector from [x, y, z].
func (v *Vec3) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("geom: vec3: %w", err)
	}
	if len(arr) != 3 {
		return fmt.Errorf("geom: vec3 needs 3 coordinates, got %d", len(arr))
	}
	*v = Vec3{X: arr[0], Y: arr[1], Z: arr[2]}
	return nil
}

// ParseVec3 parses "x,y,z" (whitespace around the numbers is ignored).
func ParseVec3(s string) (Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Vec3{}, fmt.Errorf("geom: expected x,y,z, got %q", s)
	}
	var c [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Vec3{}, fmt.Errorf("geom: coordinate %d of %q: %w", i, s, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Vec3{}, fmt.Errorf("geom: coordinate %d of %q is not finite", i, s)
		}
		c[i] = f
	}
	return Vec3{X: c[0], Y: c[1], Z: c[2]}, nil
}

// VecFromSlice converts a 3-element slice into a Vec3.
func VecFromSlice(c []float64) (Vec3, error) {
	if len(c) != 3 {
		return Vec3{}, fmt.Errorf("geom: vec3 needs 3 coordinates, got %d", len(c))
	}
	return Vec3{X: c[0], Y: c[1], Z: c[2]}, nil
}
