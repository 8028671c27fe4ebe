// Package query composes the spatial index and the object store into the
// read queries callers need: entities in a window, the entity closest to a
// point and chains of connected entities.
//
// An Engine owns no state besides the store it reads. All functions are
// total: invalid boxes, unknown ids and empty candidate sets yield empty
// results.
package query

import (
	"slices"

	"github.com/i5heu/ouroboros-cad/internal/spatial"
	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/storage"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// Filter narrows the entities a query returns. The zero value returns live,
// visible entities of the current block that are not on a locked layer.
type Filter struct {
	IncludeLockedLayers bool
	SelectedOnly        bool
	IncludeUndone       bool
	// IncludeHidden also returns entities the visibility predicate hides.
	// Undone entities are always hidden.
	IncludeHidden bool
	// Types limits the result to these entity types when not empty.
	Types []types.ObjectType
	// AllBlocks searches every block. The spatial index only covers the
	// current block, so such queries scan.
	AllBlocks bool
}

// scans reports whether the index cannot answer the query.
func (f Filter) scans() bool {
	return f.AllBlocks || f.IncludeUndone
}

func (f Filter) match(s *storage.Store, e *model.Object) bool {
	if !e.IsEntity() {
		return false
	}
	if e.Undone && !f.IncludeUndone {
		return false
	}
	if !f.AllBlocks && e.Entity.BlockID != s.CurrentBlock() {
		return false
	}
	if f.SelectedOnly && !e.Selected {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if !f.IncludeLockedLayers {
		if l := s.QueryLayerDirect(e.Entity.LayerID); l != nil && l.Layer != nil && l.Layer.Locked {
			return false
		}
	}
	if !f.IncludeHidden && !s.IsEntityVisible(e.ID) {
		return false
	}
	return true
}

type Engine struct {
	store *storage.Store
}

func New(store *storage.Store) Engine {
	return Engine{store: store}
}

// IntersectedShapes returns, per entity, the sub-shape positions whose box
// intersects region, positions in ascending order.
func (q Engine) IntersectedShapes(region types.Box, f Filter) map[types.ObjectID][]int {
	return q.shapes(region, f, false)
}

// IntersectedEntities returns the ids of entities with at least one
// sub-shape box intersecting region, in ascending order.
func (q Engine) IntersectedEntities(region types.Box, f Filter) []types.ObjectID {
	return sortedIDs(q.shapes(region, f, false))
}

// ContainedEntities returns the entities that lie completely inside region.
func (q Engine) ContainedEntities(region types.Box, f Filter) []types.ObjectID {
	var out []types.ObjectID
	for _, id := range sortedIDs(q.shapes(region, f, true)) {
		e := q.store.QueryObjectDirect(id)
		if region.Normalized().Contains(e.Entity.BoundingBox(false)) {
			out = append(out, id)
		}
	}
	return out
}

// IntersectedEntitiesXY is IntersectedEntities ignoring z.
func (q Engine) IntersectedEntitiesXY(region types.Box, f Filter) []types.ObjectID {
	return q.IntersectedEntities(region.Flatten2D(), f)
}

func (q Engine) IntersectedShapesXY(region types.Box, f Filter) map[types.ObjectID][]int {
	return q.IntersectedShapes(region.Flatten2D(), f)
}

func (q Engine) ContainedEntitiesXY(region types.Box, f Filter) []types.ObjectID {
	return q.ContainedEntities(region.Flatten2D(), f)
}

// VisibleEntitiesIn returns the visible entities of the current block
// intersecting region, including those on locked layers.
func (q Engine) VisibleEntitiesIn(region types.Box) []types.ObjectID {
	return q.IntersectedEntities(region, Filter{IncludeLockedLayers: true})
}

// EntitiesBox is the union of the bounding boxes of ids. Unknown ids are
// skipped.
func (q Engine) EntitiesBox(ids []types.ObjectID) types.Box {
	box := types.EmptyBox()
	for _, id := range ids {
		if e := q.store.QueryEntityDirect(id); e != nil {
			box.GrowToInclude(e.Entity.BoundingBox(false))
		}
	}
	return box
}

func (q Engine) shapes(region types.Box, f Filter, contained bool) map[types.ObjectID][]int {
	out := make(map[types.ObjectID][]int)
	if !region.Valid || region.HasNaN() {
		return out
	}
	region = region.Normalized()

	if f.scans() {
		for _, id := range q.store.QueryAllEntities(f.IncludeUndone, f.AllBlocks) {
			e := q.store.QueryObjectDirect(id)
			if !f.match(q.store, e) {
				continue
			}
			for pos, b := range e.Entity.SubBoxes() {
				if (contained && region.Contains(b)) || (!contained && region.Intersects(b)) {
					out[id] = append(out[id], pos)
				}
			}
		}
		return out
	}

	var res spatial.Result
	if contained {
		res = q.store.SpatialIndex().QueryContained(region, nil)
	} else {
		res = q.store.SpatialIndex().QueryIntersected(region, nil)
	}
	for id, positions := range res {
		if !f.match(q.store, q.store.QueryObjectDirect(id)) {
			continue
		}
		for pos := range positions {
			out[id] = append(out[id], pos)
		}
		slices.Sort(out[id])
	}
	return out
}

func sortedIDs[V any](m map[types.ObjectID]V) []types.ObjectID {
	out := make([]types.ObjectID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
