package types

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// ObjectID is the session local identifier of a stored object. IDs are
// handed out by the store and never reused within a session.
type ObjectID int32

// Handle is the persistent identifier of an object. Handles survive save and
// load and are checked for collisions when documents are merged.
type Handle int64

const (
	InvalidID     ObjectID = -1
	InvalidHandle Handle   = -1
)

func (id ObjectID) IsValid() bool {
	return id != InvalidID
}

func (id ObjectID) String() string {
	if id == InvalidID {
		return "invalid"
	}
	return strconv.FormatInt(int64(id), 10)
}

func (h Handle) IsValid() bool {
	return h != InvalidHandle
}

// String renders the handle as hex, the way CAD files show it.
func (h Handle) String() string {
	if h == InvalidHandle {
		return "invalid"
	}
	return "0x" + strconv.FormatInt(int64(h), 16)
}

// Bytes returns the big endian representation, which keeps handle ordered
// keys sorted in byte wise key value stores.
func (h Handle) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(h))
	return b
}

func (h *Handle) FromBytes(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("invalid byte length for Handle: %d", len(b))
	}
	*h = Handle(binary.BigEndian.Uint64(b))
	return nil
}

// ObjectType discriminates the variants of a stored object.
type ObjectType int

const (
	ObjectUnknown ObjectType = iota
	ObjectLayer
	ObjectLayerState
	ObjectBlock
	ObjectLinetype
	ObjectView
	ObjectDimStyle
	ObjectDocumentVariables

	// entity types, keep them after entityFirst
	entityFirst
	EntityLine
	EntityArc
	EntityPolyline
	EntityPoint
	EntityBlockRef
	EntityAttribute
	EntityDimension
	EntityText
	EntityViewport
	entityLast
)

// IsEntity reports whether objects of this type are drawable entities.
func (t ObjectType) IsEntity() bool {
	return t > entityFirst && t < entityLast
}

// HasUniqueName reports whether the store enforces case insensitive name
// uniqueness for objects of this type.
func (t ObjectType) HasUniqueName() bool {
	switch t {
	case ObjectLayer, ObjectLayerState, ObjectBlock, ObjectLinetype:
		return true
	}
	return false
}

func (t ObjectType) String() string {
	switch t {
	case ObjectLayer:
		return "Layer"
	case ObjectLayerState:
		return "LayerState"
	case ObjectBlock:
		return "Block"
	case ObjectLinetype:
		return "Linetype"
	case ObjectView:
		return "View"
	case ObjectDimStyle:
		return "DimStyle"
	case ObjectDocumentVariables:
		return "DocumentVariables"
	case EntityLine:
		return "Line"
	case EntityArc:
		return "Arc"
	case EntityPolyline:
		return "Polyline"
	case EntityPoint:
		return "Point"
	case EntityBlockRef:
		return "BlockRef"
	case EntityAttribute:
		return "Attribute"
	case EntityDimension:
		return "Dimension"
	case EntityText:
		return "Text"
	case EntityViewport:
		return "Viewport"
	}
	return "Unknown"
}

// EntityTypes lists every entity type in declaration order.
func EntityTypes() []ObjectType {
	out := make([]ObjectType, 0, int(entityLast-entityFirst-1))
	for t := entityFirst + 1; t < entityLast; t++ {
		out = append(out, t)
	}
	return out
}

// Lineweight in 1/100 mm. Negative values are the ByLayer/ByBlock markers.
type Lineweight int16

const (
	LineweightByBlock Lineweight = -2
	LineweightByLayer Lineweight = -1
	Lineweight000     Lineweight = 0
)
