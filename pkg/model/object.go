// Package model defines the records kept by the document store.
//
// Every stored record is an Object. The Type tag decides which of the
// variant payloads is set: layers carry LayerData, blocks carry BlockData,
// entities carry EntityData and the two document singletons (document
// variables and dimension style) carry Vars. Relations between objects are
// plain ids, never pointers, so the store can own every record outright.
package model

import (
	"maps"

	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// Object is the unit of persistence of the store.
type Object struct {
	// ID is assigned by the store on first save and never reused within a
	// session. New objects start with types.InvalidID.
	ID types.ObjectID

	// Handle is the persistent identifier. At most one live object holds a
	// given handle.
	Handle types.Handle

	// Type discriminates the variant payload below.
	Type types.ObjectType

	// Name is used by layers, layer states, blocks, linetypes and views.
	// The store keeps names of layers, layer states, blocks and linetypes
	// unique (case insensitive).
	Name string

	// Undone marks a soft deleted object. It stays in the store so that a
	// redo can bring it back.
	Undone bool

	// Protected objects cannot be unprotected by redefining them under the
	// same name.
	Protected bool

	// Selected and SelectedWorkingSet are transient UI flags. They are not
	// restored by undo or redo.
	Selected           bool
	SelectedWorkingSet bool

	Layer  *LayerData
	Block  *BlockData
	Entity *EntityData

	// Vars holds the key value settings of the document variables and the
	// dimension style singletons.
	Vars map[string]string
}

// LayerData is the payload of ObjectLayer.
type LayerData struct {
	Off        bool
	Frozen     bool
	Locked     bool
	Plottable  bool
	Snappable  bool
	Lineweight types.Lineweight
	Color      string
	Linetype   types.ObjectID
}

// BlockData is the payload of ObjectBlock.
type BlockData struct {
	Frozen     bool
	Origin     types.Vector
	ModelSpace bool
}

// ModelSpaceName is the name of the implicit block every document has.
const ModelSpaceName = "*Model_Space"

func newObject(t types.ObjectType, name string) *Object {
	return &Object{
		ID:     types.InvalidID,
		Handle: types.InvalidHandle,
		Type:   t,
		Name:   name,
	}
}

func NewLayer(name string) *Object {
	o := newObject(types.ObjectLayer, name)
	o.Layer = &LayerData{Plottable: true, Snappable: true, Lineweight: types.Lineweight000, Linetype: types.InvalidID}
	return o
}

func NewBlock(name string) *Object {
	o := newObject(types.ObjectBlock, name)
	o.Block = &BlockData{ModelSpace: name == ModelSpaceName}
	return o
}

func NewLinetype(name string) *Object {
	return newObject(types.ObjectLinetype, name)
}

func NewLayerState(name string) *Object {
	return newObject(types.ObjectLayerState, name)
}

func NewView(name string) *Object {
	return newObject(types.ObjectView, name)
}

func NewDimStyle() *Object {
	o := newObject(types.ObjectDimStyle, "")
	o.Vars = map[string]string{}
	return o
}

func NewDocumentVariables() *Object {
	o := newObject(types.ObjectDocumentVariables, "")
	o.Vars = map[string]string{}
	return o
}

// IsEntity reports whether the object is a drawable entity.
func (o *Object) IsEntity() bool {
	return o != nil && o.Type.IsEntity() && o.Entity != nil
}

// Clone returns a deep copy. Callers of the cloning query path may mutate the
// copy without touching the stored object.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := *o
	if o.Layer != nil {
		l := *o.Layer
		c.Layer = &l
	}
	if o.Block != nil {
		b := *o.Block
		c.Block = &b
	}
	if o.Entity != nil {
		c.Entity = o.Entity.Clone()
	}
	if o.Vars != nil {
		c.Vars = maps.Clone(o.Vars)
	}
	return &c
}

// Var returns a document variable, empty when unset.
func (o *Object) Var(key string) string {
	if o == nil || o.Vars == nil {
		return ""
	}
	return o.Vars[key]
}

func (o *Object) SetVar(key, value string) {
	if o.Vars == nil {
		o.Vars = map[string]string{}
	}
	o.Vars[key] = value
}
