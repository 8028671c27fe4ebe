package storage

import (
	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// Affected collects the ids whose selection flag changed. A nil Affected is
// valid and ignores everything.
type Affected map[types.ObjectID]struct{}

func (a Affected) add(id types.ObjectID) {
	if a != nil {
		a[id] = struct{}{}
	}
}

// IDs returns the collected ids in ascending order.
func (a Affected) IDs() []types.ObjectID {
	return sortedKeys(a)
}

// SelectEntity selects an entity. Without add the current selection is
// cleared first.
func (s *Store) SelectEntity(id types.ObjectID, add bool, affected Affected) {
	if !add {
		s.ClearEntitySelection(affected)
	}
	if e := s.objects[id]; e.IsEntity() && !e.Undone {
		s.setEntitySelected(e, true, affected, false)
	}
}

// SelectEntities selects every given entity and returns how many of them
// changed state. Without add the current selection is cleared first.
func (s *Store) SelectEntities(ids []types.ObjectID, add bool, affected Affected) int {
	if !add {
		s.ClearEntitySelection(affected)
	}
	n := 0
	for _, id := range ids {
		if e := s.objects[id]; e.IsEntity() && !e.Undone {
			n += s.setEntitySelected(e, true, affected, false)
		}
	}
	return n
}

func (s *Store) DeselectEntity(id types.ObjectID, affected Affected) bool {
	if e := s.objects[id]; e.IsEntity() {
		return s.setEntitySelected(e, false, affected, false) > 0
	}
	return false
}

// DeselectEntities returns how many entities changed state.
func (s *Store) DeselectEntities(ids []types.ObjectID, affected Affected) int {
	n := 0
	for _, id := range ids {
		if e := s.objects[id]; e.IsEntity() {
			n += s.setEntitySelected(e, false, affected, false)
		}
	}
	return n
}

// SelectAllEntities selects the visible entities of the current block that
// are not on a locked layer.
func (s *Store) SelectAllEntities(affected Affected) {
	s.refreshVisible()
	for _, id := range sortedKeys(s.cache.visible) {
		e := s.cache.visible[id]
		if s.isOnLockedLayer(e) {
			continue
		}
		s.setEntitySelected(e, true, affected, true)
	}
}

// ClearEntitySelection deselects every entity in every block and drops the
// working set flags too.
func (s *Store) ClearEntitySelection(affected Affected) {
	for _, t := range types.EntityTypes() {
		for id, e := range s.typeObjects[t] {
			if !e.Selected && !e.SelectedWorkingSet {
				continue
			}
			e.Selected, e.SelectedWorkingSet = false, false
			affected.add(id)
		}
	}
	s.cache.selectedDirty = true
}

// setEntitySelected sets the flag of e. Attributes hand the request to their
// block reference, and block references pass it on to their attributes.
// It returns the number of entities whose flag changed.
func (s *Store) setEntitySelected(e *model.Object, on bool, affected Affected, onlyDescend bool) int {
	if !onlyDescend && e.Type == types.EntityAttribute && e.Entity.ParentID.IsValid() {
		if parent := s.objects[e.Entity.ParentID]; parent.IsEntity() {
			return s.setEntitySelected(parent, on, affected, false)
		}
	}

	n := 0
	if e.Selected != on {
		e.Selected = on
		affected.add(e.ID)
		s.cache.selectedDirty = true
		n++
	}

	for _, childID := range s.QueryChildEntities(e.ID) {
		if child := s.objects[childID]; child.IsEntity() && !child.Undone {
			n += s.setEntitySelected(child, on, affected, true)
		}
	}
	return n
}

func (s *Store) isOnLockedLayer(e *model.Object) bool {
	layer := s.objects[e.Entity.LayerID]
	return layer != nil && layer.Layer != nil && layer.Layer.Locked
}

func (s *Store) IsSelected(id types.ObjectID) bool {
	e := s.objects[id]
	return e != nil && !e.Undone && e.Selected
}

// IsSelectedWorkingSet reports the working set flag used while editing a
// block reference in place.
func (s *Store) IsSelectedWorkingSet(id types.ObjectID) bool {
	e := s.objects[id]
	return e != nil && !e.Undone && e.SelectedWorkingSet
}

func (s *Store) SetSelectedWorkingSet(id types.ObjectID, on bool) bool {
	e := s.objects[id]
	if !e.IsEntity() || e.Undone {
		return false
	}
	e.SelectedWorkingSet = on
	return true
}

func (s *Store) HasSelection() bool {
	s.refreshSelected()
	return len(s.cache.selected) > 0
}

func (s *Store) CountSelectedEntities() int {
	s.refreshSelected()
	return len(s.cache.selected)
}

// QuerySelectedEntities returns the selected entities of the current block
// in ascending id order.
func (s *Store) QuerySelectedEntities() []types.ObjectID {
	s.refreshSelected()
	return sortedKeys(s.cache.selected)
}

// QuerySelectedLayers returns the live layers flagged as selected.
func (s *Store) QuerySelectedLayers() []types.ObjectID {
	var out []types.ObjectID
	for _, id := range sortedKeys(s.typeObjects[types.ObjectLayer]) {
		if l := s.objects[id]; !l.Undone && l.Selected {
			out = append(out, id)
		}
	}
	return out
}

// SelectionBox is the union of the bounding boxes of the selected entities.
func (s *Store) SelectionBox() types.Box {
	s.refreshSelected()
	box := types.EmptyBox()
	for _, e := range s.cache.selected {
		box.GrowToInclude(e.Entity.BoundingBox(false))
	}
	return box
}
