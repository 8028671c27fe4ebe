package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// allocator hands out object ids and handles. Ids are never reused within a
// session. A handle stays reserved by its object until the object is hard
// deleted or, for a handle the object no longer carries, until no stored
// transaction snapshot refers to it any more. One object can therefore hold
// several handles.
type allocator struct {
	nextID        types.ObjectID
	handleCounter types.Handle
	reserved      map[types.Handle]types.ObjectID
	held          map[types.ObjectID]map[types.Handle]struct{}
}

func newAllocator() allocator {
	return allocator{
		nextID:        0,
		handleCounter: 1,
		reserved:      make(map[types.Handle]types.ObjectID),
		held:          make(map[types.ObjectID]map[types.Handle]struct{}),
	}
}

func (a *allocator) newObjectID() types.ObjectID {
	id := a.nextID
	a.nextID++
	return id
}

// newObjectHandle returns the smallest unreserved handle at or above the
// counter and moves the counter past it.
func (a *allocator) newObjectHandle() types.Handle {
	h := a.handleCounter
	for {
		if _, taken := a.reserved[h]; !taken {
			break
		}
		h++
	}
	a.handleCounter = h + 1
	return h
}

func (a *allocator) owner(h types.Handle) (types.ObjectID, bool) {
	id, ok := a.reserved[h]
	return id, ok
}

func (a *allocator) reserve(h types.Handle, id types.ObjectID) error {
	if owner, ok := a.reserved[h]; ok && owner != id {
		return fmt.Errorf("handle %s held by %s, wanted by %s: %w", h, owner, id, ErrHandleCollision)
	}
	a.reserved[h] = id
	if a.held[id] == nil {
		a.held[id] = make(map[types.Handle]struct{})
	}
	a.held[id][h] = struct{}{}
	if h >= a.handleCounter {
		a.handleCounter = h + 1
	}
	return nil
}

func (a *allocator) release(h types.Handle, id types.ObjectID) {
	if owner, ok := a.reserved[h]; ok && owner == id {
		delete(a.reserved, h)
		delete(a.held[id], h)
		if len(a.held[id]) == 0 {
			delete(a.held, id)
		}
	}
}

func (a *allocator) releaseAll(id types.ObjectID) {
	for h := range a.held[id] {
		delete(a.reserved, h)
	}
	delete(a.held, id)
}

// handlesOf returns every handle reserved for id.
func (a *allocator) handlesOf(id types.ObjectID) []types.Handle {
	out := make([]types.Handle, 0, len(a.held[id]))
	for h := range a.held[id] {
		out = append(out, h)
	}
	return out
}

// seed moves the counters past persisted values so that a loaded document
// keeps allocating monotonically.
func (a *allocator) seed(maxID types.ObjectID, handleCounter types.Handle) {
	if maxID >= a.nextID {
		a.nextID = maxID + 1
	}
	if handleCounter > a.handleCounter {
		a.handleCounter = handleCounter
	}
}

// NewObjectID returns a fresh object id.
func (s *Store) NewObjectID() types.ObjectID {
	return s.alloc.newObjectID()
}

// NewObjectHandle returns a fresh, unreserved handle.
func (s *Store) NewObjectHandle() types.Handle {
	return s.alloc.newObjectHandle()
}

// MaxObjectID is the highest id handed out so far, InvalidID if none.
func (s *Store) MaxObjectID() types.ObjectID {
	return s.alloc.nextID - 1
}

// HandleCounter is the next handle candidate.
func (s *Store) HandleCounter() types.Handle {
	return s.alloc.handleCounter
}

// SeedCounters continues id and handle allocation after persisted values.
func (s *Store) SeedCounters(maxID types.ObjectID, handleCounter types.Handle) {
	s.alloc.seed(maxID, handleCounter)
}

// SetObjectHandle assigns h to obj. When h is held by another object a
// warning is logged and a fresh handle is assigned instead. The previous
// handle of obj stays reserved for it, undo may bring it back. It is freed
// by the next handle sweep once no stored transaction refers to it.
func (s *Store) SetObjectHandle(obj *model.Object, h types.Handle) error {
	if obj == nil {
		return ErrNilObject
	}
	if owner, ok := s.alloc.owner(h); ok && owner != obj.ID {
		fresh := s.alloc.newObjectHandle()
		s.log.WithFields(logrus.Fields{
			"handle":       h.String(),
			"collidesWith": owner.String(),
			"object":       obj.ID.String(),
			"reassigned":   fresh.String(),
		}).Warn("storage: handle collision, assigning a new handle")
		h = fresh
	}
	if obj.ID.IsValid() {
		if err := s.alloc.reserve(h, obj.ID); err != nil {
			return err
		}
	}
	obj.Handle = h
	return nil
}

// sweepHandles releases the handles of ids that neither the current record
// nor any stored transaction snapshot carries.
func (s *Store) sweepHandles(ids ...types.ObjectID) {
	for _, id := range ids {
		if _, ok := s.alloc.held[id]; !ok {
			continue
		}
		keep := make(map[types.Handle]struct{})
		if obj := s.objects[id]; obj != nil {
			keep[obj.Handle] = struct{}{}
		}
		if info, ok := s.links[id]; ok {
			keep[info.handle] = struct{}{}
		}
		for _, tx := range s.txlog.transactions {
			for _, c := range tx.changes {
				if c.ID != id {
					continue
				}
				if c.Before != nil {
					keep[c.Before.Handle] = struct{}{}
				}
				if c.After != nil {
					keep[c.After.Handle] = struct{}{}
				}
			}
		}
		for _, h := range s.alloc.handlesOf(id) {
			if _, ok := keep[h]; !ok {
				s.alloc.release(h, id)
			}
		}
	}
}

// sweepAllHandles runs sweepHandles over every object holding a handle.
func (s *Store) sweepAllHandles() {
	ids := make([]types.ObjectID, 0, len(s.alloc.held))
	for id := range s.alloc.held {
		ids = append(ids, id)
	}
	s.sweepHandles(ids...)
}
