// Package storage is the in-memory document store of a drawing.
//
// The Store owns every object record, keeps the secondary indices (by type,
// handle, block, parent, unique name) in sync on every save and delete,
// maintains the spatial index of the current block and lazily recomputes the
// derived caches (visible entities, selected entities, bounding boxes). The
// transaction log on top of it records before and after snapshots of every
// change for undo and redo.
//
// A Store is not safe for concurrent use. Callers that share it between
// goroutines must hold a lock for the whole transaction bracket.
package storage

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-cad/internal/spatial"
	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// VisibilityPredicate decides whether a live entity is drawn. It is
// consulted by the visibility and bounding box caches.
type VisibilityPredicate func(s *Store, e *model.Object) bool

type Config struct {
	Logger     *logrus.Logger
	Spatial    spatial.Options
	Visibility VisibilityPredicate
}

type Store struct {
	log        *logrus.Logger
	visibility VisibilityPredicate

	alloc allocator

	objects       map[types.ObjectID]*model.Object
	handles       map[types.Handle]*model.Object
	links         map[types.ObjectID]linkInfo
	typeObjects   map[types.ObjectType]map[types.ObjectID]*model.Object
	blockEntities map[types.ObjectID]map[types.ObjectID]*model.Object
	children      map[types.ObjectID]map[types.ObjectID]struct{}
	names         map[types.ObjectType]map[string]*model.Object

	docVars  *model.Object
	dimStyle *model.Object

	currentBlock types.ObjectID
	maxDrawOrder int

	index   *spatial.Tree
	indexed map[types.ObjectID][]types.Box

	cache cacheState
	txlog transactionLog

	modified bool
}

func New(config Config) *Store {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Spatial.MaxEntries == 0 {
		config.Spatial = spatial.DefaultOptions()
	}
	if config.Spatial.Logger == nil {
		config.Spatial.Logger = config.Logger
	}
	if config.Visibility == nil {
		config.Visibility = DefaultVisibility
	}

	s := &Store{
		log:        config.Logger,
		visibility: config.Visibility,
		index:      spatial.New(config.Spatial),
	}
	s.Clear()
	return s
}

// Clear drops every object, the undo history and all counters.
func (s *Store) Clear() {
	s.alloc = newAllocator()
	s.objects = make(map[types.ObjectID]*model.Object)
	s.handles = make(map[types.Handle]*model.Object)
	s.links = make(map[types.ObjectID]linkInfo)
	s.typeObjects = make(map[types.ObjectType]map[types.ObjectID]*model.Object)
	s.blockEntities = make(map[types.ObjectID]map[types.ObjectID]*model.Object)
	s.children = make(map[types.ObjectID]map[types.ObjectID]struct{})
	s.names = make(map[types.ObjectType]map[string]*model.Object)
	s.docVars = nil
	s.dimStyle = nil
	s.currentBlock = types.InvalidID
	s.maxDrawOrder = 0
	s.index.Clear()
	s.indexed = make(map[types.ObjectID][]types.Box)
	s.cache = newCacheState()
	s.txlog = newTransactionLog()
	s.modified = false
}

// DefaultVisibility hides entities on layers that are off or frozen and
// entities in frozen blocks.
func DefaultVisibility(s *Store, e *model.Object) bool {
	if !e.IsEntity() || e.Undone {
		return false
	}
	if layer := s.objects[e.Entity.LayerID]; layer != nil && layer.Layer != nil {
		if layer.Layer.Off || layer.Layer.Frozen {
			return false
		}
	}
	if block := s.objects[e.Entity.BlockID]; block != nil && block.Block != nil && block.Block.Frozen {
		return false
	}
	return true
}

func (s *Store) Logger() *logrus.Logger {
	return s.log
}

// IsModified reports unsaved changes since the last SetModified(false).
func (s *Store) IsModified() bool {
	return s.modified
}

func (s *Store) SetModified(m bool) {
	s.modified = m
}

// SaveObject stores obj as the canonical record of its id. The store takes
// ownership of obj; callers that keep a reference must not mutate it outside
// of another SaveObject call.
//
// Objects of a type with unique names that collide with a live object of the
// same name are retargeted to that object's id and handle, turning the save
// into an update of the existing object. New objects get a fresh id, and a
// fresh handle unless keepHandles is set and the handle is already valid.
// Entities without a draw order are put on top.
func (s *Store) SaveObject(obj *model.Object, keepHandles bool) error {
	if err := s.prepare(obj, keepHandles); err != nil {
		return err
	}
	if err := s.put(obj); err != nil {
		return err
	}
	if !s.txlog.inTransaction {
		s.sweepHandles(obj.ID)
	}
	return nil
}

// prepare assigns ids, handles and the draw order and enforces the name
// and block recursion rules.
func (s *Store) prepare(obj *model.Object, keepHandles bool) error {
	if obj == nil {
		return ErrNilObject
	}
	if obj.Type.IsEntity() && obj.Entity == nil {
		return fmt.Errorf("%s: %w", obj.Type, ErrMissingEntityData)
	}
	if obj.Type == types.EntityBlockRef && obj.Entity.ReferencedBlockID.IsValid() &&
		s.CheckRecursion(obj.Entity.BlockID, obj.Entity.ReferencedBlockID) {
		return fmt.Errorf("block %s referenced from %s: %w",
			obj.Entity.ReferencedBlockID, obj.Entity.BlockID, ErrBlockRecursion)
	}

	s.retargetByName(obj)

	if !obj.ID.IsValid() {
		obj.ID = s.alloc.newObjectID()
		if !keepHandles || !obj.Handle.IsValid() {
			obj.Handle = s.alloc.newObjectHandle()
		}
	} else if !obj.Handle.IsValid() {
		obj.Handle = s.alloc.newObjectHandle()
	}

	if err := s.SetObjectHandle(obj, obj.Handle); err != nil {
		return err
	}

	if obj.IsEntity() {
		if obj.Entity.DrawOrder == model.DefaultDrawOrder {
			s.maxDrawOrder++
			obj.Entity.DrawOrder = s.maxDrawOrder
		} else if obj.Entity.DrawOrder > s.maxDrawOrder {
			s.maxDrawOrder = obj.Entity.DrawOrder
		}
	}
	return nil
}

// retargetByName turns a save of a new object under an existing unique name
// into an update of the existing object.
func (s *Store) retargetByName(obj *model.Object) {
	if !obj.Type.HasUniqueName() || obj.Name == "" {
		return
	}
	existing := s.names[obj.Type][strings.ToLower(obj.Name)]
	if existing == nil || existing.ID == obj.ID || existing.Undone {
		return
	}
	s.log.WithFields(logrus.Fields{
		"type":   obj.Type.String(),
		"name":   obj.Name,
		"id":     obj.ID.String(),
		"target": existing.ID.String(),
	}).Debug("storage: name already in use, updating existing object")

	obj.ID = existing.ID
	obj.Handle = existing.Handle
	if existing.Protected {
		obj.Protected = true
	}
}

// put replaces the canonical record of obj.ID and brings every index in
// line with it. obj must carry a valid id and a reserved handle.
func (s *Store) put(obj *model.Object) error {
	if err := s.alloc.reserve(obj.Handle, obj.ID); err != nil {
		return err
	}
	if other, ok := s.handles[obj.Handle]; ok && other.ID != obj.ID {
		return fmt.Errorf("handle %s: %w", obj.Handle, ErrHandleCollision)
	}

	if obj.ID >= s.alloc.nextID {
		s.alloc.nextID = obj.ID + 1
	}

	old := s.objects[obj.ID]
	if old != nil {
		s.unlink(obj.ID)
	}
	s.link(obj)
	s.invalidateFor(obj)
	if old != nil && old.Type != obj.Type {
		s.invalidateFor(old)
	}
	return nil
}

// linkInfo remembers the index keys an object was linked under, so that
// unlinking stays correct when the canonical record was mutated in place.
type linkInfo struct {
	handle types.Handle
	typ    types.ObjectType
	name   string
	entity bool
	block  types.ObjectID
	parent types.ObjectID
}

// link adds obj to the primary map and every secondary index.
func (s *Store) link(obj *model.Object) {
	info := linkInfo{handle: obj.Handle, typ: obj.Type, parent: types.InvalidID}

	s.objects[obj.ID] = obj
	s.handles[obj.Handle] = obj

	byType := s.typeObjects[obj.Type]
	if byType == nil {
		byType = make(map[types.ObjectID]*model.Object)
		s.typeObjects[obj.Type] = byType
	}
	byType[obj.ID] = obj

	if obj.Type.HasUniqueName() && obj.Name != "" && !obj.Undone {
		byName := s.names[obj.Type]
		if byName == nil {
			byName = make(map[string]*model.Object)
			s.names[obj.Type] = byName
		}
		info.name = strings.ToLower(obj.Name)
		byName[info.name] = obj
	}

	switch obj.Type {
	case types.ObjectDocumentVariables:
		s.docVars = obj
	case types.ObjectDimStyle:
		s.dimStyle = obj
	}

	if obj.IsEntity() {
		info.entity = true
		info.block = obj.Entity.BlockID
		members := s.blockEntities[info.block]
		if members == nil {
			members = make(map[types.ObjectID]*model.Object)
			s.blockEntities[info.block] = members
		}
		members[obj.ID] = obj

		if obj.Entity.ParentID.IsValid() {
			info.parent = obj.Entity.ParentID
			kids := s.children[info.parent]
			if kids == nil {
				kids = make(map[types.ObjectID]struct{})
				s.children[info.parent] = kids
			}
			kids[obj.ID] = struct{}{}
		}

		if !obj.Undone && info.block == s.currentBlock {
			s.addToIndex(obj)
		}
	}
	s.links[obj.ID] = info
}

// unlink removes the object from the secondary indices. The primary map
// and the handle reservation are left to the caller.
func (s *Store) unlink(id types.ObjectID) {
	info, ok := s.links[id]
	if !ok {
		return
	}
	delete(s.links, id)

	if h, ok := s.handles[info.handle]; ok && h.ID == id {
		delete(s.handles, info.handle)
	}
	delete(s.typeObjects[info.typ], id)

	if info.name != "" {
		if cur := s.names[info.typ][info.name]; cur != nil && cur.ID == id {
			delete(s.names[info.typ], info.name)
		}
	}

	if !info.entity {
		return
	}
	s.removeFromIndex(id)
	delete(s.blockEntities[info.block], id)
	if info.parent.IsValid() {
		delete(s.children[info.parent], id)
		if len(s.children[info.parent]) == 0 {
			delete(s.children, info.parent)
		}
	}
}

// DeleteObject removes the object from the store for good: every index,
// the spatial index and every handle reserved for it. It reports whether the
// object existed.
func (s *Store) DeleteObject(id types.ObjectID) bool {
	obj, ok := s.objects[id]
	if !ok {
		return false
	}
	s.unlink(id)
	delete(s.objects, id)
	s.alloc.releaseAll(id)

	if s.docVars == obj {
		s.docVars = nil
	}
	if s.dimStyle == obj {
		s.dimStyle = nil
	}
	s.invalidateFor(obj)
	s.cache.selectedDirty = true
	return true
}

// SetUndone toggles the soft delete flag of an object. Undone entities leave
// the spatial index and the caches, and lose their selection.
func (s *Store) SetUndone(id types.ObjectID, undone bool) bool {
	obj, ok := s.objects[id]
	if !ok {
		return false
	}
	if obj.Undone == undone {
		return true
	}
	s.unlink(id)
	obj.Undone = undone
	if undone {
		obj.Selected = false
		obj.SelectedWorkingSet = false
	}
	s.link(obj)
	s.invalidateFor(obj)
	return true
}

// SetEntityParentID moves an entity to a new parent and relinks the child
// index.
func (s *Store) SetEntityParentID(entityID, parentID types.ObjectID) bool {
	obj := s.objects[entityID]
	if !obj.IsEntity() {
		return false
	}
	s.unlink(entityID)
	obj.Entity.ParentID = parentID
	s.link(obj)
	return true
}

// CheckRecursion reports whether inserting a reference to potentialChild
// into block would create a cycle of block references.
func (s *Store) CheckRecursion(block, potentialChild types.ObjectID) bool {
	return s.checkRecursion(block, potentialChild, map[types.ObjectID]struct{}{})
}

func (s *Store) checkRecursion(block, potentialChild types.ObjectID, seen map[types.ObjectID]struct{}) bool {
	if block == potentialChild {
		return true
	}
	if _, ok := seen[potentialChild]; ok {
		return false
	}
	seen[potentialChild] = struct{}{}
	for _, e := range s.blockEntities[potentialChild] {
		if e.Undone || e.Type != types.EntityBlockRef {
			continue
		}
		if s.checkRecursion(block, e.Entity.ReferencedBlockID, seen) {
			return true
		}
	}
	return false
}

// CurrentBlock is the block whose entities are spatially indexed.
func (s *Store) CurrentBlock() types.ObjectID {
	return s.currentBlock
}

// SetCurrentBlock switches the current block and rebuilds the spatial index
// from the live entities of that block.
func (s *Store) SetCurrentBlock(id types.ObjectID) {
	s.currentBlock = id
	s.rebuildIndex()
	s.cache.invalidateAll()
}

// MaxDrawOrder is the draw order given to the most recent entity put on top.
func (s *Store) MaxDrawOrder() int {
	return s.maxDrawOrder
}

// MinDrawOrder is the lowest draw order of the live entities of the current
// block, 0 when the block is empty.
func (s *Store) MinDrawOrder() int {
	minOrder, found := 0, false
	for _, e := range s.blockEntities[s.currentBlock] {
		if e.Undone {
			continue
		}
		if !found || e.Entity.DrawOrder < minOrder {
			minOrder, found = e.Entity.DrawOrder, true
		}
	}
	return minOrder
}

// Stats is a snapshot of the store's size.
type Stats struct {
	Objects      int
	LiveObjects  int
	Entities     int
	IndexEntries int
	Transactions int
	Selected     int
}

func (s *Store) Stats() Stats {
	st := Stats{
		Objects:      len(s.objects),
		IndexEntries: s.index.Len(),
		Transactions: len(s.txlog.transactions),
		Selected:     s.CountSelectedEntities(),
	}
	for _, o := range s.objects {
		if o.Undone {
			continue
		}
		st.LiveObjects++
		if o.IsEntity() {
			st.Entities++
		}
	}
	return st
}
