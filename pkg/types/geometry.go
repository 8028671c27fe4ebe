package types

import (
	"fmt"
	"math"
)

// Vector is a point or direction in 3D space.
type Vector struct {
	X, Y, Z float64
}

func NewVector(x, y, z float64) Vector {
	return Vector{X: x, Y: y, Z: z}
}

func (v Vector) IsNaN() bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z)
}

func (v Vector) IsFinite() bool {
	return !v.IsNaN() && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}

func (v Vector) Add(o Vector) Vector { return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector) Sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector) Scale(f float64) Vector {
	return Vector{v.X * f, v.Y * f, v.Z * f}
}
func (v Vector) Dot(o Vector) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vector) Length() float64     { return math.Sqrt(v.Dot(v)) }

func (v Vector) DistanceTo(o Vector) float64 {
	return v.Sub(o).Length()
}

func (v Vector) Min(o Vector) Vector {
	return Vector{math.Min(v.X, o.X), math.Min(v.Y, o.Y), math.Min(v.Z, o.Z)}
}

func (v Vector) Max(o Vector) Vector {
	return Vector{math.Max(v.X, o.X), math.Max(v.Y, o.Y), math.Max(v.Z, o.Z)}
}

func (v Vector) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Box is an axis aligned 3D box. The zero value is not a valid box, use
// EmptyBox to start growing one.
type Box struct {
	Min   Vector
	Max   Vector
	Valid bool
}

// EmptyBox returns a box that contains nothing and grows on the first
// GrowToInclude call.
func EmptyBox() Box {
	return Box{}
}

// NewBox builds a normalised box from two arbitrary corners.
func NewBox(c1, c2 Vector) Box {
	return Box{Min: c1.Min(c2), Max: c1.Max(c2), Valid: true}
}

func NewBox2D(x1, y1, x2, y2 float64) Box {
	return NewBox(Vector{x1, y1, 0}, Vector{x2, y2, 0})
}

// Normalized swaps min and max per axis where needed.
func (b Box) Normalized() Box {
	if !b.Valid {
		return b
	}
	return NewBox(b.Min, b.Max)
}

func (b Box) HasNaN() bool {
	return b.Min.IsNaN() || b.Max.IsNaN()
}

// IsSane reports whether the box is set and has finite coordinates.
func (b Box) IsSane() bool {
	return b.Valid && b.Min.IsFinite() && b.Max.IsFinite()
}

// IsEmpty reports boxes without extent in x and y, e.g. the box of a point.
func (b Box) IsEmpty() bool {
	return !b.Valid || (b.Width() == 0 && b.Height() == 0)
}

func (b Box) Width() float64  { return b.Max.X - b.Min.X }
func (b Box) Height() float64 { return b.Max.Y - b.Min.Y }
func (b Box) Depth() float64  { return b.Max.Z - b.Min.Z }

// GrowToInclude extends b so that it contains o. Invalid boxes are ignored.
func (b *Box) GrowToInclude(o Box) {
	if !o.Valid {
		return
	}
	if !b.Valid {
		*b = o
		return
	}
	b.Min = b.Min.Min(o.Min)
	b.Max = b.Max.Max(o.Max)
}

func (b *Box) GrowToIncludePoint(p Vector) {
	b.GrowToInclude(Box{Min: p, Max: p, Valid: true})
}

// Grow extends the box by offset in every direction.
func (b Box) Grow(offset float64) Box {
	if !b.Valid {
		return b
	}
	d := Vector{offset, offset, offset}
	return NewBox(b.Min.Sub(d), b.Max.Add(d))
}

// Intersects is true when the boxes share at least one point.
func (b Box) Intersects(o Box) bool {
	if !b.Valid || !o.Valid {
		return false
	}
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Contains is true when o lies completely inside b.
func (b Box) Contains(o Box) bool {
	if !b.Valid || !o.Valid {
		return false
	}
	return b.Min.X <= o.Min.X && b.Max.X >= o.Max.X &&
		b.Min.Y <= o.Min.Y && b.Max.Y >= o.Max.Y &&
		b.Min.Z <= o.Min.Z && b.Max.Z >= o.Max.Z
}

// DistanceTo returns the euclidean distance from p to the closest point of
// the box, zero for points inside.
func (b Box) DistanceTo(p Vector) float64 {
	return math.Sqrt(b.DistanceSquaredTo(p))
}

func (b Box) DistanceSquaredTo(p Vector) float64 {
	if !b.Valid {
		return math.Inf(1)
	}
	d := 0.0
	d += axisGap(p.X, b.Min.X, b.Max.X)
	d += axisGap(p.Y, b.Min.Y, b.Max.Y)
	d += axisGap(p.Z, b.Min.Z, b.Max.Z)
	return d
}

func axisGap(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return (lo - v) * (lo - v)
	case v > hi:
		return (v - hi) * (v - hi)
	}
	return 0
}

// Margin is the sum of the edge lengths.
func (b Box) Margin() float64 {
	if !b.Valid {
		return 0
	}
	return b.Width() + b.Height() + b.Depth()
}

// Union returns the smallest box containing both.
func (b Box) Union(o Box) Box {
	out := b
	out.GrowToInclude(o)
	return out
}

// Flatten2D widens the z range to the full float range so that queries
// ignore the z coordinate.
func (b Box) Flatten2D() Box {
	if !b.Valid {
		return b
	}
	b.Min.Z = -math.MaxFloat64
	b.Max.Z = math.MaxFloat64
	return b
}

func (b Box) Equal(o Box) bool {
	return b.Valid == o.Valid && b.Min == o.Min && b.Max == o.Max
}

func (b Box) String() string {
	if !b.Valid {
		return "Box(empty)"
	}
	return fmt.Sprintf("Box(%v - %v)", b.Min, b.Max)
}
