package storage

import (
	"slices"
	"strings"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// The query functions are total: unknown ids, handles and names yield nil or
// an empty result. Functions without the Direct suffix return private
// clones; the Direct variants return the canonical record, which must be
// treated as read only.

func (s *Store) QueryObject(id types.ObjectID) *model.Object {
	return s.objects[id].Clone()
}

func (s *Store) QueryObjectDirect(id types.ObjectID) *model.Object {
	return s.objects[id]
}

func (s *Store) QueryObjectByHandle(h types.Handle) *model.Object {
	return s.handles[h].Clone()
}

func (s *Store) QueryObjectByHandleDirect(h types.Handle) *model.Object {
	return s.handles[h]
}

func (s *Store) QueryEntity(id types.ObjectID) *model.Object {
	return s.QueryEntityDirect(id).Clone()
}

func (s *Store) QueryEntityDirect(id types.ObjectID) *model.Object {
	if o := s.objects[id]; o.IsEntity() {
		return o
	}
	return nil
}

func (s *Store) queryTyped(t types.ObjectType, id types.ObjectID) *model.Object {
	if o := s.objects[id]; o != nil && o.Type == t {
		return o
	}
	return nil
}

// queryNamed looks up a live object of a unique name type, case
// insensitive.
func (s *Store) queryNamed(t types.ObjectType, name string) *model.Object {
	return s.names[t][strings.ToLower(name)]
}

func (s *Store) QueryLayer(id types.ObjectID) *model.Object {
	return s.queryTyped(types.ObjectLayer, id).Clone()
}

func (s *Store) QueryLayerDirect(id types.ObjectID) *model.Object {
	return s.queryTyped(types.ObjectLayer, id)
}

func (s *Store) QueryLayerByName(name string) *model.Object {
	return s.queryNamed(types.ObjectLayer, name).Clone()
}

func (s *Store) QueryLayerByNameDirect(name string) *model.Object {
	return s.queryNamed(types.ObjectLayer, name)
}

func (s *Store) QueryBlock(id types.ObjectID) *model.Object {
	return s.queryTyped(types.ObjectBlock, id).Clone()
}

func (s *Store) QueryBlockDirect(id types.ObjectID) *model.Object {
	return s.queryTyped(types.ObjectBlock, id)
}

func (s *Store) QueryBlockByName(name string) *model.Object {
	return s.queryNamed(types.ObjectBlock, name).Clone()
}

func (s *Store) QueryLinetype(id types.ObjectID) *model.Object {
	return s.queryTyped(types.ObjectLinetype, id).Clone()
}

func (s *Store) QueryLinetypeByName(name string) *model.Object {
	return s.queryNamed(types.ObjectLinetype, name).Clone()
}

func (s *Store) QueryLayerState(id types.ObjectID) *model.Object {
	return s.queryTyped(types.ObjectLayerState, id).Clone()
}

func (s *Store) QueryLayerStateByName(name string) *model.Object {
	return s.queryNamed(types.ObjectLayerState, name).Clone()
}

func (s *Store) QueryView(id types.ObjectID) *model.Object {
	return s.queryTyped(types.ObjectView, id).Clone()
}

// QueryViewByName returns the live view with the given name. View names
// are not kept unique, the lowest id wins.
func (s *Store) QueryViewByName(name string) *model.Object {
	for _, id := range s.QueryAllViews() {
		if v := s.objects[id]; strings.EqualFold(v.Name, name) {
			return v.Clone()
		}
	}
	return nil
}

func (s *Store) QueryDocumentVariables() *model.Object {
	return s.docVars.Clone()
}

func (s *Store) QueryDocumentVariablesDirect() *model.Object {
	return s.docVars
}

func (s *Store) QueryDimStyle() *model.Object {
	return s.dimStyle.Clone()
}

func (s *Store) QueryDimStyleDirect() *model.Object {
	return s.dimStyle
}

// LayerID resolves a layer name, InvalidID if there is none.
func (s *Store) LayerID(name string) types.ObjectID {
	if l := s.queryNamed(types.ObjectLayer, name); l != nil {
		return l.ID
	}
	return types.InvalidID
}

func (s *Store) BlockID(name string) types.ObjectID {
	if b := s.queryNamed(types.ObjectBlock, name); b != nil {
		return b.ID
	}
	return types.InvalidID
}

// ModelSpaceBlockID is the id of the model space block, InvalidID before
// the document was bootstrapped.
func (s *Store) ModelSpaceBlockID() types.ObjectID {
	return s.BlockID(model.ModelSpaceName)
}

func (s *Store) LayerNames() []string {
	return s.liveNames(types.ObjectLayer)
}

func (s *Store) BlockNames() []string {
	return s.liveNames(types.ObjectBlock)
}

func (s *Store) liveNames(t types.ObjectType) []string {
	out := make([]string, 0, len(s.names[t]))
	for _, o := range s.names[t] {
		out = append(out, o.Name)
	}
	slices.Sort(out)
	return out
}

// liveOfType returns the ids of live objects of type t in ascending order.
func (s *Store) liveOfType(t types.ObjectType) []types.ObjectID {
	var out []types.ObjectID
	for _, id := range sortedKeys(s.typeObjects[t]) {
		if !s.objects[id].Undone {
			out = append(out, id)
		}
	}
	return out
}

// QueryAllObjects returns every live object id.
func (s *Store) QueryAllObjects() []types.ObjectID {
	var out []types.ObjectID
	for _, id := range sortedKeys(s.objects) {
		if !s.objects[id].Undone {
			out = append(out, id)
		}
	}
	return out
}

// QueryAllObjectsWithUndone also returns soft deleted objects.
func (s *Store) QueryAllObjectsWithUndone() []types.ObjectID {
	return sortedKeys(s.objects)
}

func (s *Store) QueryAllLayers() []types.ObjectID      { return s.liveOfType(types.ObjectLayer) }
func (s *Store) QueryAllBlocks() []types.ObjectID      { return s.liveOfType(types.ObjectBlock) }
func (s *Store) QueryAllLinetypes() []types.ObjectID   { return s.liveOfType(types.ObjectLinetype) }
func (s *Store) QueryAllViews() []types.ObjectID       { return s.liveOfType(types.ObjectView) }
func (s *Store) QueryAllLayerStates() []types.ObjectID { return s.liveOfType(types.ObjectLayerState) }

// QueryAllEntities returns entities of the current block, or of every block
// with allBlocks. Undone entities are included with undone set. When
// entityTypes is not empty only those types are returned.
func (s *Store) QueryAllEntities(undone, allBlocks bool, entityTypes ...types.ObjectType) []types.ObjectID {
	var out []types.ObjectID
	match := func(e *model.Object) bool {
		if e.Undone && !undone {
			return false
		}
		return len(entityTypes) == 0 || slices.Contains(entityTypes, e.Type)
	}
	if allBlocks {
		for _, t := range types.EntityTypes() {
			for _, e := range s.typeObjects[t] {
				if match(e) {
					out = append(out, e.ID)
				}
			}
		}
	} else {
		for _, e := range s.blockEntities[s.currentBlock] {
			if match(e) {
				out = append(out, e.ID)
			}
		}
	}
	slices.Sort(out)
	return out
}

// QueryLayerEntities returns the live entities on a layer, in the current
// block unless allBlocks is set.
func (s *Store) QueryLayerEntities(layerID types.ObjectID, allBlocks bool) []types.ObjectID {
	var out []types.ObjectID
	for _, id := range s.QueryAllEntities(false, allBlocks) {
		if s.objects[id].Entity.LayerID == layerID {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) HasLayerEntities(layerID types.ObjectID) bool {
	for _, t := range types.EntityTypes() {
		for _, e := range s.typeObjects[t] {
			if !e.Undone && e.Entity.LayerID == layerID {
				return true
			}
		}
	}
	return false
}

// QueryBlockEntities returns the live entities of a block.
func (s *Store) QueryBlockEntities(blockID types.ObjectID) []types.ObjectID {
	var out []types.ObjectID
	for id, e := range s.blockEntities[blockID] {
		if !e.Undone {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (s *Store) HasBlockEntities(blockID types.ObjectID) bool {
	for _, e := range s.blockEntities[blockID] {
		if !e.Undone {
			return true
		}
	}
	return false
}

// QueryChildEntities returns the live children of a parent entity, such as
// the attributes of a block reference. With childTypes only those types.
func (s *Store) QueryChildEntities(parentID types.ObjectID, childTypes ...types.ObjectType) []types.ObjectID {
	var out []types.ObjectID
	for id := range s.children[parentID] {
		c := s.objects[id]
		if c == nil || c.Undone {
			continue
		}
		if len(childTypes) > 0 && !slices.Contains(childTypes, c.Type) {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *Store) HasChildEntities(parentID types.ObjectID) bool {
	for id := range s.children[parentID] {
		if c := s.objects[id]; c != nil && !c.Undone {
			return true
		}
	}
	return false
}

// QueryBlockReferences returns the live block references to blockID in any
// block.
func (s *Store) QueryBlockReferences(blockID types.ObjectID) []types.ObjectID {
	var out []types.ObjectID
	for id, e := range s.typeObjects[types.EntityBlockRef] {
		if !e.Undone && e.Entity.ReferencedBlockID == blockID {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (s *Store) QueryAllBlockReferences() []types.ObjectID {
	return s.liveOfType(types.EntityBlockRef)
}

func (s *Store) QueryAllViewports() []types.ObjectID {
	return s.liveOfType(types.EntityViewport)
}

// OrderBackToFront sorts entity ids by draw order, then by id. Unknown ids
// are dropped.
func (s *Store) OrderBackToFront(ids []types.ObjectID) []types.ObjectID {
	out := make([]types.ObjectID, 0, len(ids))
	for _, id := range ids {
		if s.objects[id].IsEntity() {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b types.ObjectID) int {
		da, db := s.objects[a].Entity.DrawOrder, s.objects[b].Entity.DrawOrder
		if da != db {
			if da < db {
				return -1
			}
			return 1
		}
		return int(a) - int(b)
	})
	return slices.Compact(out)
}
