package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
)

// ErrInvalidBounds is returned when a cube is built with min > max on any axis.
var ErrInvalidBounds = errors.New("geom: invalid cube bounds")

// Cube3D spans an axis-aligned region of model space. When Invert is set the
// region is everything except the box, so Contains reports the complement.
//
// A Cube3D is immutable except through Resize.
type Cube3D struct {
	box    sdf.Box3
	invert bool
}

// NewCube3D builds a cube from its min and max corners.
func NewCube3D(min, max Vec3, invert bool) (Cube3D, error) {
	if min.X > max.X || min.Y > max.Y || min.Z > max.Z {
		return Cube3D{}, fmt.Errorf("%w: min %s exceeds max %s", ErrInvalidBounds, min, max)
	}
	return Cube3D{
		box:    sdf.Box3{Min: min.toSdfx(), Max: max.toSdfx()},
		invert: invert,
	}, nil
}

// NewCube3DFromRanges builds a cube from per-axis ranges.
func NewCube3DFromRanges(xMin, xMax, yMin, yMax, zMin, zMax float64, invert bool) (Cube3D, error) {
	return NewCube3D(Vec3{X: xMin, Y: yMin, Z: zMin}, Vec3{X: xMax, Y: yMax, Z: zMax}, invert)
}

// MustCube3D is NewCube3D that panics on invalid bounds. Intended for tests
// and literals.
func MustCube3D(min, max Vec3) Cube3D {
	c, err := NewCube3D(min, max, false)
	if err != nil {
		panic(err)
	}
	return c
}

// Min returns the minimum corner.
func (c Cube3D) Min() Vec3 { return fromSdfx(c.box.Min) }

// Max returns the maximum corner.
func (c Cube3D) Max() Vec3 { return fromSdfx(c.box.Max) }

// Inverted reports whether the cube selects the complement of its box.
func (c Cube3D) Inverted() bool { return c.invert }

// Center returns the box center.
func (c Cube3D) Center() Vec3 { return fromSdfx(c.box.Center()) }

// Size returns the box edge lengths.
func (c Cube3D) Size() Vec3 { return fromSdfx(c.box.Size()) }

// Box3 exposes the underlying sdfx box.
func (c Cube3D) Box3() sdf.Box3 { return c.box }

// Contains reports whether p lies in the selected region. Points on the box
// boundary are inside the box.
func (c Cube3D) Contains(p Vec3) bool {
	return c.box.Contains(p.toSdfx()) != c.invert
}

// OutsideDistance returns the distance from p to the selected region, zero
// when p is contained.
func (c Cube3D) OutsideDistance(p Vec3) float64 {
	if c.Contains(p) {
		return 0
	}
	d := c.signedDistance(p)
	if c.invert {
		// inside the excluded box: distance to its surface
		return math.Abs(d)
	}
	return math.Max(d, 0)
}

// signedDistance evaluates the box SDF: negative inside, positive outside.
func (c Cube3D) signedDistance(p Vec3) float64 {
	size := c.box.Size()
	s, err := sdf.Box3D(size, 0)
	if err != nil {
		return c.manualDistance(p)
	}
	return s.Evaluate(p.toSdfx().Sub(c.box.Center()))
}

// manualDistance is the exterior distance for degenerate boxes sdfx rejects.
func (c Cube3D) manualDistance(p Vec3) float64 {
	return p.Dist(c.Clamp(p))
}

// Clamp returns the point of the box nearest to p.
func (c Cube3D) Clamp(p Vec3) Vec3 {
	min, max := c.Min(), c.Max()
	return Vec3{
		X: math.Min(math.Max(p.X, min.X), max.X),
		Y: math.Min(math.Max(p.Y, min.Y), max.Y),
		Z: math.Min(math.Max(p.Z, min.Z), max.Z),
	}
}

// Resize replaces the cube corners, keeping the invert flag.
func (c *Cube3D) Resize(min, max Vec3) error {
	resized, err := NewCube3D(min, max, c.invert)
	if err != nil {
		return err
	}
	*c = resized
	return nil
}

func (c Cube3D) String() string {
	if c.invert {
		return fmt.Sprintf("not[%s..%s]", c.Min(), c.Max())
	}
	return fmt.Sprintf("[%s..%s]", c.Min(), c.Max())
}
