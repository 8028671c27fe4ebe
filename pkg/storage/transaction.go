package storage

import (
	"fmt"
	"slices"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// TransactionType flags the kinds of objects a transaction touched, so that
// listeners can skip refreshes they do not need.
type TransactionType uint16

const (
	TransactionEntity TransactionType = 1 << iota
	TransactionLayer
	TransactionLayerState
	TransactionBlock
	TransactionLinetype
	TransactionView
	TransactionDocumentSettings

	TransactionGeneric TransactionType = 0
)

func transactionTypeOf(t types.ObjectType) TransactionType {
	switch t {
	case types.ObjectLayer:
		return TransactionLayer
	case types.ObjectLayerState:
		return TransactionLayerState
	case types.ObjectBlock:
		return TransactionBlock
	case types.ObjectLinetype:
		return TransactionLinetype
	case types.ObjectView:
		return TransactionView
	case types.ObjectDimStyle, types.ObjectDocumentVariables:
		return TransactionDocumentSettings
	}
	if t.IsEntity() {
		return TransactionEntity
	}
	return TransactionGeneric
}

func (t TransactionType) Has(flag TransactionType) bool {
	return t&flag != 0
}

// Change is the before and after state of one object within a transaction.
// Before is nil for objects the transaction created.
type Change struct {
	ID     types.ObjectID
	Before *model.Object
	After  *model.Object
}

// Transaction is a unit of change. It is started with
// Store.BeginTransaction and must be finished with CommitTransaction or
// RollbackTransaction.
type Transaction struct {
	ID       int
	Group    int
	Text     string
	Undoable bool
	Type     TransactionType

	store   *Store
	changes []Change
	byID    map[types.ObjectID]int
	closed  bool
}

func newTransaction(s *Store, text string, undoable bool, group int) *Transaction {
	return &Transaction{
		ID:       -1,
		Group:    group,
		Text:     text,
		Undoable: undoable,
		store:    s,
		byID:     make(map[types.ObjectID]int),
	}
}

// AddObject saves obj within the transaction. The store takes ownership of
// obj, see Store.SaveObject. To change a stored object pass a copy from
// QueryObject, never the record returned by a Direct query, or the before
// snapshot is lost.
func (tx *Transaction) AddObject(obj *model.Object, keepHandles bool) error {
	if tx.closed {
		return ErrTransactionClosed
	}
	if obj == nil {
		return ErrNilObject
	}
	s := tx.store

	s.retargetByName(obj)
	var before *model.Object
	if obj.ID.IsValid() {
		before = s.objects[obj.ID].Clone()
	}

	if err := s.SaveObject(obj, keepHandles); err != nil {
		return fmt.Errorf("add %s to transaction %q: %w", obj.Type, tx.Text, err)
	}
	tx.record(obj.ID, before, obj.Clone())
	return nil
}

// DeleteObject soft deletes an object. Deleting a block reference also
// deletes its attributes.
func (tx *Transaction) DeleteObject(id types.ObjectID) error {
	if tx.closed {
		return ErrTransactionClosed
	}
	s := tx.store
	obj := s.objects[id]
	if obj == nil || obj.Undone {
		return fmt.Errorf("delete %s: %w", id, ErrObjectNotFound)
	}

	for _, child := range s.QueryChildEntities(id) {
		if err := tx.DeleteObject(child); err != nil {
			return err
		}
	}

	before := obj.Clone()
	s.SetUndone(id, true)
	tx.record(id, before, obj.Clone())
	return nil
}

// record merges a change into the transaction: the first before snapshot
// and the last after snapshot of an object are kept.
func (tx *Transaction) record(id types.ObjectID, before, after *model.Object) {
	if i, ok := tx.byID[id]; ok {
		tx.changes[i].After = after
	} else {
		tx.byID[id] = len(tx.changes)
		tx.changes = append(tx.changes, Change{ID: id, Before: before, After: after})
	}
	if after != nil {
		tx.Type |= transactionTypeOf(after.Type)
	}
	if before != nil {
		tx.Type |= transactionTypeOf(before.Type)
	}
}

// AffectedObjects returns the ids of every object the transaction touched,
// in ascending order.
func (tx *Transaction) AffectedObjects() []types.ObjectID {
	out := make([]types.ObjectID, 0, len(tx.changes))
	for _, c := range tx.changes {
		out = append(out, c.ID)
	}
	slices.Sort(out)
	return out
}

// Changes returns the recorded changes in the order they happened.
func (tx *Transaction) Changes() []Change {
	return slices.Clone(tx.changes)
}

func (tx *Transaction) HasChanges() bool {
	return len(tx.changes) > 0
}

func (tx *Transaction) IsClosed() bool {
	return tx.closed
}

// undo restores the before snapshots in reverse order. Objects the
// transaction created are soft deleted so that a redo can restore them.
func (tx *Transaction) undo() {
	s := tx.store
	for i := len(tx.changes) - 1; i >= 0; i-- {
		c := tx.changes[i]
		if c.Before == nil {
			s.SetUndone(c.ID, true)
			continue
		}
		s.restore(c.Before)
	}
}

func (tx *Transaction) redo() {
	s := tx.store
	for _, c := range tx.changes {
		if c.After == nil {
			s.SetUndone(c.ID, true)
			continue
		}
		s.restore(c.After)
	}
}

// rollback restores the before snapshots and removes created objects for
// good.
func (tx *Transaction) rollback() {
	s := tx.store
	for i := len(tx.changes) - 1; i >= 0; i-- {
		c := tx.changes[i]
		if c.Before == nil {
			s.DeleteObject(c.ID)
			continue
		}
		s.restore(c.Before)
	}
}
