package model

import (
	"math"
	"slices"

	"github.com/i5heu/ouroboros-cad/pkg/types"
)

type ShapeKind uint8

const (
	ShapePoint ShapeKind = iota
	ShapeSegment
	ShapePolyline
)

func (k ShapeKind) String() string {
	switch k {
	case ShapePoint:
		return "Point"
	case ShapeSegment:
		return "Segment"
	case ShapePolyline:
		return "Polyline"
	}
	return "Unknown"
}

// Shape is one sub-shape of an entity. Curved geometry is handed to the store
// already approximated by its caller, the store only needs boxes and
// distances.
type Shape struct {
	Kind   ShapeKind
	Points []types.Vector
}

func Point(p types.Vector) Shape {
	return Shape{Kind: ShapePoint, Points: []types.Vector{p}}
}

func Segment(from, to types.Vector) Shape {
	return Shape{Kind: ShapeSegment, Points: []types.Vector{from, to}}
}

func Polyline(points ...types.Vector) Shape {
	return Shape{Kind: ShapePolyline, Points: slices.Clone(points)}
}

func (s Shape) Clone() Shape {
	return Shape{Kind: s.Kind, Points: slices.Clone(s.Points)}
}

func (s Shape) Equal(o Shape) bool {
	return s.Kind == o.Kind && slices.Equal(s.Points, o.Points)
}

func (s Shape) BoundingBox() types.Box {
	box := types.EmptyBox()
	for _, p := range s.Points {
		box.GrowToIncludePoint(p)
	}
	return box
}

// EndPoints returns the first and last point; a single point for points.
func (s Shape) EndPoints() []types.Vector {
	switch len(s.Points) {
	case 0:
		return nil
	case 1:
		return []types.Vector{s.Points[0]}
	}
	return []types.Vector{s.Points[0], s.Points[len(s.Points)-1]}
}

// DistanceTo is the shortest euclidean distance from p to the shape.
func (s Shape) DistanceTo(p types.Vector) float64 {
	switch len(s.Points) {
	case 0:
		return math.Inf(1)
	case 1:
		return s.Points[0].DistanceTo(p)
	}
	best := math.Inf(1)
	for i := 1; i < len(s.Points); i++ {
		best = math.Min(best, segmentDistance(s.Points[i-1], s.Points[i], p))
	}
	return best
}

func segmentDistance(a, b, p types.Vector) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return a.DistanceTo(p)
	}
	t := p.Sub(a).Dot(ab) / l2
	t = math.Max(0, math.Min(1, t))
	return a.Add(ab.Scale(t)).DistanceTo(p)
}
