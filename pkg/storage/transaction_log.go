package storage

import (
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// transactionLog is a linear undo stack. lastID is the cursor: transactions
// up to and including it are applied, the ones after it can be redone until
// a new undoable transaction starts and discards them.
type transactionLog struct {
	transactions  map[int]*Transaction
	lastID        int
	group         int
	nextGroup     int
	inTransaction bool
}

func newTransactionLog() transactionLog {
	return transactionLog{
		transactions: make(map[int]*Transaction),
		lastID:       -1,
		group:        -1,
	}
}

// BeginTransaction opens a transaction. An undoable transaction first
// discards the transactions after the cursor, they can no longer be redone.
func (s *Store) BeginTransaction(text string, undoable bool) *Transaction {
	if undoable {
		s.DeleteTransactionsFrom(s.txlog.lastID + 1)
	}
	s.txlog.inTransaction = true
	return newTransaction(s, text, undoable, s.txlog.group)
}

// InTransaction reports whether a transaction is open.
func (s *Store) InTransaction() bool {
	return s.txlog.inTransaction
}

// CommitTransaction closes tx. Transactions that changed something mark the
// document as modified and, when undoable, are appended to the history.
func (s *Store) CommitTransaction(tx *Transaction) error {
	if tx.closed {
		return ErrTransactionClosed
	}
	tx.closed = true
	s.txlog.inTransaction = false
	if !tx.HasChanges() {
		return nil
	}
	s.cache.boundsDirty = true
	s.modified = true
	s.SaveTransaction(tx)
	s.sweepHandles(tx.AffectedObjects()...)
	return nil
}

// RollbackTransaction closes tx and reverts every change it made. Objects it
// created are removed for good.
func (s *Store) RollbackTransaction(tx *Transaction) error {
	if tx.closed {
		return ErrTransactionClosed
	}
	tx.closed = true
	s.txlog.inTransaction = false
	tx.rollback()
	s.sweepHandles(tx.AffectedObjects()...)
	return nil
}

// SaveTransaction appends an undoable transaction to the history and moves
// the cursor onto it. Other transactions are ignored.
func (s *Store) SaveTransaction(tx *Transaction) {
	if !tx.Undoable {
		return
	}
	tx.ID = s.txlog.lastID + 1
	s.txlog.transactions[tx.ID] = tx
	s.txlog.lastID = tx.ID
}

// DeleteTransactionsFrom drops every transaction with an id of at least n.
// Soft deleted objects that only those transactions referred to are
// unreachable afterwards and are deleted for good. Handles only the dropped
// snapshots carried are released.
func (s *Store) DeleteTransactionsFrom(n int) {
	var dropped []*Transaction
	for id, tx := range s.txlog.transactions {
		if id >= n {
			dropped = append(dropped, tx)
			delete(s.txlog.transactions, id)
		}
	}
	if len(dropped) == 0 {
		return
	}

	stillReferenced := make(map[types.ObjectID]struct{})
	for _, tx := range s.txlog.transactions {
		for _, c := range tx.changes {
			stillReferenced[c.ID] = struct{}{}
		}
	}
	garbage := 0
	var touched []types.ObjectID
	for _, tx := range dropped {
		for _, c := range tx.changes {
			touched = append(touched, c.ID)
			if _, ok := stillReferenced[c.ID]; ok {
				continue
			}
			if obj := s.objects[c.ID]; obj != nil && obj.Undone {
				s.DeleteObject(c.ID)
				garbage++
			}
		}
	}

	s.sweepHandles(touched...)

	if s.txlog.lastID >= n {
		s.txlog.lastID = s.MaxTransactionID()
	}
	s.log.WithFields(logrus.Fields{
		"from":    n,
		"dropped": len(dropped),
		"garbage": garbage,
	}).Debug("storage: discarded redo history")
}

// Undo reverts the transaction at the cursor, or the whole group it belongs
// to, and returns the reverted transactions. Nothing happens when there is
// nothing to undo.
func (s *Store) Undo() []*Transaction {
	var out []*Transaction
	group := -1
	for s.txlog.lastID >= 0 {
		tx, ok := s.txlog.transactions[s.txlog.lastID]
		if !ok {
			break
		}
		if len(out) > 0 && (group == -1 || tx.Group != group) {
			break
		}
		group = tx.Group
		tx.undo()
		s.txlog.lastID--
		out = append(out, tx)
	}
	if len(out) > 0 {
		s.cache.invalidateAll()
		s.modified = true
	}
	return out
}

// Redo reapplies the transaction after the cursor, or its whole group.
func (s *Store) Redo() []*Transaction {
	var out []*Transaction
	group := -1
	for {
		tx, ok := s.txlog.transactions[s.txlog.lastID+1]
		if !ok {
			break
		}
		if len(out) > 0 && (group == -1 || tx.Group != group) {
			break
		}
		group = tx.Group
		tx.redo()
		s.txlog.lastID++
		out = append(out, tx)
	}
	if len(out) > 0 {
		s.cache.invalidateAll()
		s.modified = true
	}
	return out
}

func (s *Store) CanUndo() bool {
	_, ok := s.txlog.transactions[s.txlog.lastID]
	return s.txlog.lastID >= 0 && ok
}

func (s *Store) CanRedo() bool {
	_, ok := s.txlog.transactions[s.txlog.lastID+1]
	return ok
}

// Transaction returns a stored transaction. Ids that were never stored or
// have been discarded yield an empty transaction and a warning.
func (s *Store) Transaction(id int) *Transaction {
	if tx, ok := s.txlog.transactions[id]; ok {
		return tx
	}
	s.log.WithField("transaction", id).Warn("storage: transaction not found, it may have been discarded")
	tx := newTransaction(s, "", false, -1)
	tx.closed = true
	return tx
}

// TransactionIDs returns the stored transaction ids in ascending order.
func (s *Store) TransactionIDs() []int {
	ids := make([]int, 0, len(s.txlog.transactions))
	for id := range s.txlog.transactions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ResetTransactionStack forgets the whole history. Objects stay as they are,
// handles they no longer carry are released.
func (s *Store) ResetTransactionStack() {
	s.txlog.transactions = make(map[int]*Transaction)
	s.txlog.lastID = -1
	s.sweepAllHandles()
}

// LastTransactionID is the cursor, -1 when nothing can be undone.
func (s *Store) LastTransactionID() int {
	return s.txlog.lastID
}

// MaxTransactionID is the highest stored id, -1 for an empty history.
func (s *Store) MaxTransactionID() int {
	maxID := -1
	for id := range s.txlog.transactions {
		maxID = max(maxID, id)
	}
	return maxID
}

// StartTransactionGroup makes the following transactions undo and redo as
// one until EndTransactionGroup is called.
func (s *Store) StartTransactionGroup() int {
	s.txlog.nextGroup++
	s.txlog.group = s.txlog.nextGroup
	return s.txlog.group
}

func (s *Store) EndTransactionGroup() {
	s.txlog.group = -1
}

// restore makes snap the canonical record again. The transient selection
// flags of the current record survive, they are not part of the history.
func (s *Store) restore(snap *model.Object) {
	obj := snap.Clone()
	obj.Selected, obj.SelectedWorkingSet = false, false
	if cur := s.objects[obj.ID]; cur != nil && !obj.Undone {
		obj.Selected = cur.Selected
		obj.SelectedWorkingSet = cur.SelectedWorkingSet
	}
	if obj.IsEntity() && obj.Entity.DrawOrder > s.maxDrawOrder {
		s.maxDrawOrder = obj.Entity.DrawOrder
	}
	if err := s.put(obj); err != nil {
		s.log.WithFields(logrus.Fields{
			"id":     obj.ID.String(),
			"handle": obj.Handle.String(),
		}).WithError(err).Error("storage: could not restore object snapshot")
	}
}
