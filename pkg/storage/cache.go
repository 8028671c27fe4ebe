package storage

import (
	"slices"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// cacheState holds the derived views of the current block. Every view has a
// dirty flag; reads refresh a dirty view before answering.
type cacheState struct {
	visible      map[types.ObjectID]*model.Object
	visibleDirty bool

	selected      map[types.ObjectID]*model.Object
	selectedDirty bool

	// boundingBox[ignoreHidden][ignoreEmpty]
	boundingBox   [2][2]types.Box
	maxLineweight types.Lineweight
	boundsDirty   bool
}

func newCacheState() cacheState {
	c := cacheState{}
	c.invalidateAll()
	return c
}

func (c *cacheState) invalidateAll() {
	c.visibleDirty = true
	c.selectedDirty = true
	c.boundsDirty = true
}

// invalidateFor marks the views a change of obj can affect.
func (s *Store) invalidateFor(obj *model.Object) {
	switch {
	case obj.Type.IsEntity(), obj.Type == types.ObjectLayer, obj.Type == types.ObjectBlock:
		s.cache.invalidateAll()
	}
}

func (s *Store) refreshVisible() {
	if !s.cache.visibleDirty {
		return
	}
	s.cache.visible = make(map[types.ObjectID]*model.Object)
	for id, e := range s.blockEntities[s.currentBlock] {
		if e.Undone || !s.visibility(s, e) {
			continue
		}
		s.cache.visible[id] = e
	}
	s.cache.visibleDirty = false
}

func (s *Store) refreshSelected() {
	if !s.cache.selectedDirty {
		return
	}
	s.cache.selected = make(map[types.ObjectID]*model.Object)
	for id, e := range s.blockEntities[s.currentBlock] {
		if e.Undone || !e.Selected {
			continue
		}
		s.cache.selected[id] = e
	}
	s.cache.selectedDirty = false
}

// refreshBounds recomputes the four bounding box variants and the maximum
// lineweight in one pass over the current block.
func (s *Store) refreshBounds() {
	if !s.cache.boundsDirty {
		return
	}
	var boxes [2][2]types.Box
	maxLw := types.Lineweight000
	for _, e := range s.blockEntities[s.currentBlock] {
		if e.Undone {
			continue
		}
		visible := s.visibility(s, e)
		bb := e.Entity.BoundingBox(false)
		bbIgnoreEmpty := e.Entity.BoundingBox(true)
		if !bb.IsSane() {
			continue
		}
		boxes[0][0].GrowToInclude(bb)
		if bbIgnoreEmpty.IsSane() {
			boxes[0][1].GrowToInclude(bbIgnoreEmpty)
		}
		if visible {
			boxes[1][0].GrowToInclude(bb)
			if bbIgnoreEmpty.IsSane() {
				boxes[1][1].GrowToInclude(bbIgnoreEmpty)
			}
		}
		if lw := s.resolveLineweight(e); lw > maxLw {
			maxLw = lw
		}
	}
	s.cache.boundingBox = boxes
	s.cache.maxLineweight = maxLw
	s.cache.boundsDirty = false
}

// resolveLineweight replaces ByLayer with the layer's lineweight. ByBlock
// cannot be resolved without a block reference and counts as zero.
func (s *Store) resolveLineweight(e *model.Object) types.Lineweight {
	lw := e.Entity.Lineweight
	if lw == types.LineweightByLayer {
		if layer := s.objects[e.Entity.LayerID]; layer != nil && layer.Layer != nil {
			lw = layer.Layer.Lineweight
		}
	}
	if lw < 0 {
		return types.Lineweight000
	}
	return lw
}

// BoundingBox of the current block. ignoreHidden leaves out entities that
// are not visible, ignoreEmpty leaves out sub-shapes without extent.
func (s *Store) BoundingBox(ignoreHidden, ignoreEmpty bool) types.Box {
	s.refreshBounds()
	return s.cache.boundingBox[b2i(ignoreHidden)][b2i(ignoreEmpty)]
}

// MaxLineweight of the live entities of the current block.
func (s *Store) MaxLineweight() types.Lineweight {
	s.refreshBounds()
	return s.cache.maxLineweight
}

// QueryAllVisibleEntities returns the visible entities of the current block
// in ascending id order.
func (s *Store) QueryAllVisibleEntities() []types.ObjectID {
	s.refreshVisible()
	return sortedKeys(s.cache.visible)
}

// IsEntityVisible applies the visibility predicate to any live entity.
func (s *Store) IsEntityVisible(id types.ObjectID) bool {
	e := s.objects[id]
	if !e.IsEntity() || e.Undone {
		return false
	}
	if e.Entity.BlockID == s.currentBlock {
		s.refreshVisible()
		_, ok := s.cache.visible[id]
		return ok
	}
	return s.visibility(s, e)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedKeys[V any](m map[types.ObjectID]V) []types.ObjectID {
	out := make([]types.ObjectID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
