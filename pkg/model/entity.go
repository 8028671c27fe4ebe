package model

import (
	"math"
	"slices"

	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// DefaultDrawOrder marks entities that have not been placed in the draw order
// yet. The store moves them on top of everything else when they are saved.
const DefaultDrawOrder = math.MinInt32

// EntityData is the payload of every entity type.
type EntityData struct {
	// LayerID and BlockID place the entity on a layer and in a block (the
	// space it is drawn in).
	LayerID types.ObjectID
	BlockID types.ObjectID

	// ParentID links attributes to the block reference that owns them.
	// It is a back reference only, the store keeps the child index.
	ParentID types.ObjectID

	// ReferencedBlockID is set for block references.
	ReferencedBlockID types.ObjectID

	// DrawOrder stacks entities back to front. Lower values are drawn first.
	DrawOrder int

	Lineweight types.Lineweight

	// Shapes are the sub-shapes of the entity. Each one is indexed on its
	// own under (id, position).
	Shapes []Shape
}

// NewEntity creates an unsaved entity on the given layer and block.
func NewEntity(t types.ObjectType, layerID, blockID types.ObjectID, shapes ...Shape) *Object {
	o := newObject(t, "")
	o.Entity = &EntityData{
		LayerID:           layerID,
		BlockID:           blockID,
		ParentID:          types.InvalidID,
		ReferencedBlockID: types.InvalidID,
		DrawOrder:         DefaultDrawOrder,
		Lineweight:        types.LineweightByLayer,
		Shapes:            shapes,
	}
	return o
}

// NewLine is a convenience for a single segment entity.
func NewLine(layerID, blockID types.ObjectID, from, to types.Vector) *Object {
	return NewEntity(types.EntityLine, layerID, blockID, Segment(from, to))
}

// NewPolyline creates a polyline entity with one sub-shape per segment.
func NewPolyline(layerID, blockID types.ObjectID, points ...types.Vector) *Object {
	shapes := make([]Shape, 0, len(points))
	for i := 1; i < len(points); i++ {
		shapes = append(shapes, Segment(points[i-1], points[i]))
	}
	return NewEntity(types.EntityPolyline, layerID, blockID, shapes...)
}

func NewPoint(layerID, blockID types.ObjectID, p types.Vector) *Object {
	return NewEntity(types.EntityPoint, layerID, blockID, Point(p))
}

// NewBlockRef creates a block reference. The footprint shapes stand in for
// the referenced block's content, which the store does not expand.
func NewBlockRef(layerID, blockID, referencedBlockID types.ObjectID, footprint ...Shape) *Object {
	o := NewEntity(types.EntityBlockRef, layerID, blockID, footprint...)
	o.Entity.ReferencedBlockID = referencedBlockID
	return o
}

// NewAttribute creates an attribute owned by a block reference.
func NewAttribute(layerID, blockID, parentID types.ObjectID, shapes ...Shape) *Object {
	o := NewEntity(types.EntityAttribute, layerID, blockID, shapes...)
	o.Entity.ParentID = parentID
	return o
}

func (e *EntityData) Clone() *EntityData {
	if e == nil {
		return nil
	}
	c := *e
	if e.Shapes != nil {
		c.Shapes = make([]Shape, len(e.Shapes))
		for i, s := range e.Shapes {
			c.Shapes[i] = s.Clone()
		}
	}
	return &c
}

// BoundingBox is the union of all sub-shape boxes. With ignoreEmpty set,
// sub-shapes without extent (points) are left out.
func (e *EntityData) BoundingBox(ignoreEmpty bool) types.Box {
	box := types.EmptyBox()
	if e == nil {
		return box
	}
	for _, s := range e.Shapes {
		b := s.BoundingBox()
		if ignoreEmpty && b.IsEmpty() {
			continue
		}
		box.GrowToInclude(b)
	}
	return box
}

// SubBoxes returns one box per sub-shape, in position order.
func (e *EntityData) SubBoxes() []types.Box {
	if e == nil {
		return nil
	}
	out := make([]types.Box, len(e.Shapes))
	for i, s := range e.Shapes {
		out[i] = s.BoundingBox()
	}
	return out
}

// DistanceTo returns the distance from p to the sub-shape at pos, or to the
// closest sub-shape when pos is negative.
func (e *EntityData) DistanceTo(p types.Vector, pos int) float64 {
	if e == nil || len(e.Shapes) == 0 {
		return math.Inf(1)
	}
	if pos >= 0 {
		if pos >= len(e.Shapes) {
			return math.Inf(1)
		}
		return e.Shapes[pos].DistanceTo(p)
	}
	best := math.Inf(1)
	for _, s := range e.Shapes {
		best = math.Min(best, s.DistanceTo(p))
	}
	return best
}

// EndPoints collects the end points of every sub-shape.
func (e *EntityData) EndPoints() []types.Vector {
	if e == nil {
		return nil
	}
	var out []types.Vector
	for _, s := range e.Shapes {
		out = append(out, s.EndPoints()...)
	}
	return out
}

// Move translates every sub-shape by offset.
func (e *EntityData) Move(offset types.Vector) {
	for i := range e.Shapes {
		for j := range e.Shapes[i].Points {
			e.Shapes[i].Points[j] = e.Shapes[i].Points[j].Add(offset)
		}
	}
}

// Equal compares placement and geometry.
func (e *EntityData) Equal(o *EntityData) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.LayerID == o.LayerID &&
		e.BlockID == o.BlockID &&
		e.ParentID == o.ParentID &&
		e.ReferencedBlockID == o.ReferencedBlockID &&
		e.DrawOrder == o.DrawOrder &&
		e.Lineweight == o.Lineweight &&
		slices.EqualFunc(e.Shapes, o.Shapes, func(a, b Shape) bool { return a.Equal(b) })
}
