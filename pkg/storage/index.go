package storage

import (
	"github.com/i5heu/ouroboros-cad/internal/spatial"
	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// SpatialIndex exposes the index of the current block for read queries.
// Callers must not add or remove entries.
func (s *Store) SpatialIndex() *spatial.Tree {
	return s.index
}

// IndexedBoxes returns the boxes an entity is currently indexed with, one
// per sub-shape position. Positions that were not accepted by the index hold
// an invalid box.
func (s *Store) IndexedBoxes(id types.ObjectID) []types.Box {
	return s.indexed[id]
}

// addToIndex inserts one box per sub-shape and remembers the boxes, the
// index itself can only remove entries given their exact box.
func (s *Store) addToIndex(e *model.Object) {
	if _, ok := s.indexed[e.ID]; ok {
		s.removeFromIndex(e.ID)
	}
	boxes := e.Entity.SubBoxes()
	recorded := make([]types.Box, len(boxes))
	hasBox := false
	for pos, b := range boxes {
		if !b.Valid {
			continue
		}
		if s.index.Add(e.ID, pos, b) {
			recorded[pos] = b
			hasBox = true
		}
	}
	if hasBox {
		s.indexed[e.ID] = recorded
	}
}

func (s *Store) removeFromIndex(id types.ObjectID) {
	boxes, ok := s.indexed[id]
	if !ok {
		return
	}
	delete(s.indexed, id)
	if !s.index.RemoveAll(id, boxes) {
		s.log.WithField("id", id.String()).Warn("storage: entity was missing from the spatial index")
	}
}

// rebuildIndex bulk loads the live entities of the current block.
func (s *Store) rebuildIndex() {
	s.indexed = make(map[types.ObjectID][]types.Box)

	members := s.blockEntities[s.currentBlock]
	ids := make([]types.ObjectID, 0, len(members))
	boxes := make([][]types.Box, 0, len(members))
	for id, e := range members {
		if e.Undone {
			continue
		}
		bs := e.Entity.SubBoxes()
		recorded := make([]types.Box, len(bs))
		hasBox := false
		for pos, b := range bs {
			if b.Valid && !b.HasNaN() {
				recorded[pos] = b
				hasBox = true
			}
		}
		ids = append(ids, id)
		boxes = append(boxes, bs)
		if hasBox {
			s.indexed[id] = recorded
		}
	}
	s.index.BulkLoad(ids, boxes)
}
