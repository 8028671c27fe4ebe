package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

func TestTransactionNumbering(t *testing.T) {
	d := newTestDoc(t)
	assert.Equal(t, -1, d.s.LastTransactionID())
	assert.False(t, d.s.CanUndo())

	for i := 0; i < 3; i++ {
		tx := d.commit(t, "add", func(tx *Transaction) {
			require.NoError(t, tx.AddObject(d.line(0, 0, float64(i+1), 0), false))
		})
		assert.Equal(t, i, tx.ID)
	}
	assert.Equal(t, 2, d.s.LastTransactionID())
	assert.Equal(t, 2, d.s.MaxTransactionID())
	assert.Equal(t, []int{0, 1, 2}, d.s.TransactionIDs())
	assert.True(t, d.s.CanUndo())
	assert.False(t, d.s.CanRedo())
}

func TestNonUndoableAndEmptyTransactionsAreNotStored(t *testing.T) {
	d := newTestDoc(t)
	tx := d.s.BeginTransaction("cosmetic", false)
	require.NoError(t, tx.AddObject(d.line(0, 0, 1, 1), false))
	require.NoError(t, d.s.CommitTransaction(tx))
	assert.Equal(t, -1, d.s.LastTransactionID())
	assert.Len(t, d.s.QueryAllEntities(false, false), 1)

	empty := d.s.BeginTransaction("nothing", true)
	assert.True(t, d.s.InTransaction())
	require.NoError(t, d.s.CommitTransaction(empty))
	assert.False(t, d.s.InTransaction())
	assert.Equal(t, -1, d.s.LastTransactionID())
	assert.Empty(t, d.s.Undo())
}

func TestClosedTransaction(t *testing.T) {
	d := newTestDoc(t)
	tx := d.s.BeginTransaction("x", true)
	require.NoError(t, d.s.CommitTransaction(tx))

	assert.ErrorIs(t, d.s.CommitTransaction(tx), ErrTransactionClosed)
	assert.ErrorIs(t, d.s.RollbackTransaction(tx), ErrTransactionClosed)
	assert.ErrorIs(t, tx.AddObject(d.line(0, 0, 1, 1), false), ErrTransactionClosed)
	assert.ErrorIs(t, tx.DeleteObject(d.layer0), ErrTransactionClosed)
}

func TestDeleteMissingObject(t *testing.T) {
	d := newTestDoc(t)
	tx := d.s.BeginTransaction("del", true)
	assert.ErrorIs(t, tx.DeleteObject(4711), ErrObjectNotFound)
	require.NoError(t, d.s.RollbackTransaction(tx))
}

func TestRollback(t *testing.T) {
	d := newTestDoc(t)
	keep := d.line(0, 0, 1, 1)
	d.commit(t, "add", func(tx *Transaction) { require.NoError(t, tx.AddObject(keep, false)) })
	before := d.s.QueryObject(keep.ID)

	tx := d.s.BeginTransaction("edit", true)
	created := d.line(5, 5, 6, 6)
	require.NoError(t, tx.AddObject(created, false))
	moved := d.s.QueryObject(keep.ID)
	moved.Entity.Move(types.NewVector(10, 0, 0))
	require.NoError(t, tx.AddObject(moved, false))
	require.NoError(t, d.s.RollbackTransaction(tx))

	assert.Nil(t, d.s.QueryObject(created.ID), "created objects are removed for good")
	assert.Equal(t, before, d.s.QueryObject(keep.ID))
	assert.Equal(t, []types.ObjectID{keep.ID},
		d.s.SpatialIndex().QueryIntersected(types.NewBox2D(-1, -1, 20, 20), nil).IDs())
	assert.Equal(t, 0, d.s.LastTransactionID())
}

func TestUndoRedoModification(t *testing.T) {
	d := newTestDoc(t)
	e := d.line(0, 0, 1, 1)
	d.commit(t, "add", func(tx *Transaction) { require.NoError(t, tx.AddObject(e, false)) })
	original := d.s.QueryObject(e.ID)

	d.commit(t, "move", func(tx *Transaction) {
		cp := d.s.QueryObject(e.ID)
		cp.Entity.Move(types.NewVector(10, 10, 0))
		require.NoError(t, tx.AddObject(cp, false))
	})
	moved := d.s.QueryObject(e.ID)

	require.Len(t, d.s.Undo(), 1)
	assert.Equal(t, original, d.s.QueryObject(e.ID))
	assert.True(t, d.s.SpatialIndex().QueryIntersected(types.NewBox2D(0, 0, 1, 1), nil).Has(e.ID, 0))
	assert.False(t, d.s.SpatialIndex().QueryIntersected(types.NewBox2D(10.5, 10.5, 20, 20), nil).Has(e.ID, 0))

	require.Len(t, d.s.Redo(), 1)
	assert.Equal(t, moved, d.s.QueryObject(e.ID))
	assert.Empty(t, d.s.SpatialIndex().QueryIntersected(types.NewBox2D(0, 0, 1, 1), nil))
	assert.Empty(t, d.s.Redo(), "nothing left to redo")
}

func TestUndoDeleteRestoresAttributes(t *testing.T) {
	d := newTestDoc(t)
	block := model.NewBlock("B")
	require.NoError(t, d.s.SaveObject(block, false))
	ref := model.NewBlockRef(d.layer0, d.modelSpace, block.ID,
		model.Segment(types.NewVector(0, 0, 0), types.NewVector(1, 0, 0)))
	require.NoError(t, d.s.SaveObject(ref, false))
	attr := model.NewAttribute(d.layer0, d.modelSpace, ref.ID,
		model.Segment(types.NewVector(0, 1, 0), types.NewVector(1, 1, 0)))
	require.NoError(t, d.s.SaveObject(attr, false))

	tx := d.commit(t, "delete ref", func(tx *Transaction) { require.NoError(t, tx.DeleteObject(ref.ID)) })
	assert.ElementsMatch(t, []types.ObjectID{ref.ID, attr.ID}, tx.AffectedObjects())
	assert.True(t, tx.Type.Has(TransactionEntity))
	assert.False(t, tx.Type.Has(TransactionLayer))
	assert.Empty(t, d.s.QueryAllEntities(false, false))

	d.s.Undo()
	assert.ElementsMatch(t, []types.ObjectID{ref.ID, attr.ID}, d.s.QueryAllEntities(false, false))
	assert.Equal(t, []types.ObjectID{attr.ID}, d.s.QueryChildEntities(ref.ID))
}

func TestNewTransactionDiscardsRedoBranch(t *testing.T) {
	d := newTestDoc(t)
	first := d.line(0, 0, 1, 1)
	d.commit(t, "first", func(tx *Transaction) { require.NoError(t, tx.AddObject(first, false)) })
	lost := d.line(2, 2, 3, 3)
	d.commit(t, "lost", func(tx *Transaction) { require.NoError(t, tx.AddObject(lost, false)) })

	d.s.Undo()
	assert.True(t, d.s.CanRedo())
	require.NotNil(t, d.s.QueryObject(lost.ID), "undone objects stay for redo")

	third := d.line(4, 4, 5, 5)
	tx := d.commit(t, "third", func(tx *Transaction) { require.NoError(t, tx.AddObject(third, false)) })

	assert.Equal(t, 1, tx.ID)
	assert.False(t, d.s.CanRedo())
	assert.Nil(t, d.s.QueryObject(lost.ID), "objects of the discarded branch are garbage")
	assert.Nil(t, d.s.QueryObjectByHandle(lost.Handle))
	assert.NotNil(t, d.s.QueryObject(first.ID))
	assert.Equal(t, "third", d.s.Transaction(1).Text)
}

func TestPruneKeepsObjectsStillInHistory(t *testing.T) {
	d := newTestDoc(t)
	e := d.line(0, 0, 1, 1)
	d.commit(t, "add", func(tx *Transaction) { require.NoError(t, tx.AddObject(e, false)) })
	d.commit(t, "delete", func(tx *Transaction) { require.NoError(t, tx.DeleteObject(e.ID)) })
	d.commit(t, "touch", func(tx *Transaction) {
		l := d.s.QueryLayer(d.layer0)
		l.Layer.Color = "blue"
		require.NoError(t, tx.AddObject(l, false))
	})

	d.s.Undo()
	d.commit(t, "other", func(tx *Transaction) { require.NoError(t, tx.AddObject(d.line(9, 9, 8, 8), false)) })

	require.NotNil(t, d.s.QueryObject(e.ID), "still needed to undo the delete")
	d.s.Undo()
	d.s.Undo()
	assert.False(t, d.s.QueryObjectDirect(e.ID).Undone)
}

func TestTransactionLookupOfDiscardedID(t *testing.T) {
	d := newTestDoc(t)
	tx := d.s.Transaction(42)
	require.NotNil(t, tx)
	assert.Equal(t, -1, tx.ID)
	assert.False(t, tx.HasChanges())
	assert.True(t, tx.IsClosed())
}

func TestTransactionGroupsUndoTogether(t *testing.T) {
	d := newTestDoc(t)
	d.commit(t, "alone", func(tx *Transaction) { require.NoError(t, tx.AddObject(d.line(0, 0, 1, 0), false)) })

	g := d.s.StartTransactionGroup()
	for i := 0; i < 3; i++ {
		tx := d.commit(t, "grouped", func(tx *Transaction) {
			require.NoError(t, tx.AddObject(d.line(0, 0, 0, float64(i+1)), false))
		})
		assert.Equal(t, g, tx.Group)
	}
	d.s.EndTransactionGroup()

	undone := d.s.Undo()
	assert.Len(t, undone, 3)
	assert.Len(t, d.s.QueryAllEntities(false, false), 1)
	assert.Equal(t, 0, d.s.LastTransactionID())

	redone := d.s.Redo()
	assert.Len(t, redone, 3)
	assert.Len(t, d.s.QueryAllEntities(false, false), 4)

	assert.Len(t, d.s.Undo(), 3)
	assert.Len(t, d.s.Undo(), 1)
	assert.Empty(t, d.s.Undo())
}

func TestUndoKeepsSelectionFlags(t *testing.T) {
	d := newTestDoc(t)
	e := d.line(0, 0, 1, 1)
	d.commit(t, "add", func(tx *Transaction) { require.NoError(t, tx.AddObject(e, false)) })
	d.commit(t, "move", func(tx *Transaction) {
		cp := d.s.QueryObject(e.ID)
		cp.Entity.Move(types.NewVector(1, 0, 0))
		require.NoError(t, tx.AddObject(cp, false))
	})
	d.s.SelectEntity(e.ID, false, nil)

	d.s.Undo()
	assert.True(t, d.s.IsSelected(e.ID))
	d.s.Undo()
	assert.False(t, d.s.IsSelected(e.ID))
	d.s.Redo()
	assert.False(t, d.s.IsSelected(e.ID))
}

func TestResetTransactionStack(t *testing.T) {
	d := newTestDoc(t)
	e := d.line(0, 0, 1, 1)
	d.commit(t, "add", func(tx *Transaction) { require.NoError(t, tx.AddObject(e, false)) })
	d.s.ResetTransactionStack()
	assert.Equal(t, -1, d.s.LastTransactionID())
	assert.Equal(t, -1, d.s.MaxTransactionID())
	assert.Empty(t, d.s.Undo())
	assert.NotNil(t, d.s.QueryObject(e.ID))
}

func TestMultipleEditsOfOneObjectMerge(t *testing.T) {
	d := newTestDoc(t)
	e := d.line(0, 0, 1, 1)
	tx := d.commit(t, "add and edit", func(tx *Transaction) {
		require.NoError(t, tx.AddObject(e, false))
		cp := d.s.QueryObject(e.ID)
		cp.Entity.Lineweight = 25
		require.NoError(t, tx.AddObject(cp, false))
	})
	changes := tx.Changes()
	require.Len(t, changes, 1)
	assert.Nil(t, changes[0].Before)
	assert.Equal(t, types.Lineweight(25), changes[0].After.Entity.Lineweight)

	d.s.Undo()
	assert.True(t, d.s.QueryObjectDirect(e.ID).Undone)
	d.s.Redo()
	assert.Equal(t, types.Lineweight(25), d.s.QueryObjectDirect(e.ID).Entity.Lineweight)
}

func TestUndoBringsBackReplacedHandle(t *testing.T) {
	d := newTestDoc(t)
	x := d.line(0, 0, 1, 1)
	x.Handle = 0x3
	d.commit(t, "add x", func(tx *Transaction) { require.NoError(t, tx.AddObject(x, true)) })

	d.commit(t, "rehandle x", func(tx *Transaction) {
		cp := d.s.QueryObject(x.ID)
		cp.Handle = 0x900
		require.NoError(t, tx.AddObject(cp, true))
	})
	assert.Equal(t, x.ID, d.s.QueryObjectByHandle(0x900).ID)
	assert.Nil(t, d.s.QueryObjectByHandle(0x3))

	y := d.line(2, 2, 3, 3)
	y.Handle = 0x3
	d.commit(t, "add y", func(tx *Transaction) { require.NoError(t, tx.AddObject(y, true)) })
	assert.NotEqual(t, types.Handle(0x3), y.Handle, "handle kept for the undo history")

	d.s.Undo()
	d.s.Undo()
	require.NotNil(t, d.s.QueryObjectByHandle(0x3))
	assert.Equal(t, x.ID, d.s.QueryObjectByHandle(0x3).ID)
	assert.Equal(t, types.Handle(0x3), d.s.QueryObject(x.ID).Handle)

	d.s.Redo()
	assert.Equal(t, x.ID, d.s.QueryObjectByHandle(0x900).ID)
	d.s.Undo()

	z := d.line(4, 4, 5, 5)
	z.Handle = 0x900
	d.commit(t, "add z", func(tx *Transaction) { require.NoError(t, tx.AddObject(z, true)) })
	assert.Equal(t, types.Handle(0x900), z.Handle, "discarding the redo branch frees the handle")
	assert.Equal(t, types.Handle(0x3), d.s.QueryObject(x.ID).Handle)
}

func TestRollbackReleasesHandlesOfTheTransaction(t *testing.T) {
	d := newTestDoc(t)
	x := d.line(0, 0, 1, 1)
	d.commit(t, "add x", func(tx *Transaction) { require.NoError(t, tx.AddObject(x, false)) })
	original := x.Handle

	tx := d.s.BeginTransaction("rehandle", true)
	cp := d.s.QueryObject(x.ID)
	cp.Handle = 0x777
	require.NoError(t, tx.AddObject(cp, true))
	require.NoError(t, d.s.RollbackTransaction(tx))

	assert.Equal(t, original, d.s.QueryObject(x.ID).Handle)
	_, held := d.s.alloc.owner(0x777)
	assert.False(t, held)
}
