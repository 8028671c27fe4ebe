package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

var layerNames = []string{"0", "Walls", "Doors", "Hidden"}

func genPoint(t *rapid.T, label string) types.Vector {
	return types.NewVector(
		rapid.Float64Range(-50, 50).Draw(t, label+"x"),
		rapid.Float64Range(-50, 50).Draw(t, label+"y"),
		0,
	)
}

// storeStateMachine drives a store through random transactions, selection
// changes and undo/redo, and checks the derived state after every step.
type storeStateMachine struct {
	d testDoc
}

func (m *storeStateMachine) Init(t *rapid.T) {
	m.d = newTestDoc(t)
}

func (m *storeStateMachine) commit(t *rapid.T, text string, fn func(tx *Transaction)) {
	tx := m.d.s.BeginTransaction(text, true)
	fn(tx)
	require.NoError(t, m.d.s.CommitTransaction(tx))
}

func (m *storeStateMachine) pickEntity(t *rapid.T) types.ObjectID {
	ids := m.d.s.QueryAllEntities(false, false)
	if len(ids) == 0 {
		t.Skip("no entities")
	}
	return rapid.SampledFrom(ids).Draw(t, "entity")
}

func (m *storeStateMachine) AddEntity(t *rapid.T) {
	layer := rapid.SampledFrom(m.d.s.QueryAllLayers()).Draw(t, "layer")
	n := rapid.IntRange(2, 5).Draw(t, "points")
	points := make([]types.Vector, n)
	for i := range points {
		points[i] = genPoint(t, "p")
	}
	e := model.NewPolyline(layer, m.d.modelSpace, points...)
	m.commit(t, "add entity", func(tx *Transaction) {
		require.NoError(t, tx.AddObject(e, false))
	})
}

func (m *storeStateMachine) ModifyEntity(t *rapid.T) {
	id := m.pickEntity(t)
	offset := genPoint(t, "offset")
	m.commit(t, "move", func(tx *Transaction) {
		cp := m.d.s.QueryObject(id)
		cp.Entity.Move(offset)
		require.NoError(t, tx.AddObject(cp, false))
	})
}

func (m *storeStateMachine) DeleteEntity(t *rapid.T) {
	id := m.pickEntity(t)
	m.commit(t, "delete", func(tx *Transaction) {
		require.NoError(t, tx.DeleteObject(id))
	})
}

// AddLayer adds a layer or, for a name that is taken, replaces the flags of
// the existing one.
func (m *storeStateMachine) AddLayer(t *rapid.T) {
	l := model.NewLayer(rapid.SampledFrom(layerNames).Draw(t, "name"))
	l.Layer.Off = rapid.Bool().Draw(t, "off")
	l.Layer.Frozen = rapid.Bool().Draw(t, "frozen")
	l.Layer.Locked = rapid.Bool().Draw(t, "locked")
	l.Layer.Lineweight = rapid.SampledFrom([]types.Lineweight{0, 25, 50, 100}).Draw(t, "lw")
	m.commit(t, "layer", func(tx *Transaction) {
		require.NoError(t, tx.AddObject(l, false))
	})
}

func (m *storeStateMachine) Select(t *rapid.T) {
	id := m.pickEntity(t)
	m.d.s.SelectEntity(id, rapid.Bool().Draw(t, "add"), nil)
	require.True(t, m.d.s.IsSelected(id))
}

func (m *storeStateMachine) Undo(t *rapid.T) {
	can := m.d.s.CanUndo()
	require.Equal(t, can, len(m.d.s.Undo()) > 0)
}

func (m *storeStateMachine) Redo(t *rapid.T) {
	can := m.d.s.CanRedo()
	require.Equal(t, can, len(m.d.s.Redo()) > 0)
}

// UndoRedo asserts that undo followed by redo leaves every object as it was,
// selection aside.
func (m *storeStateMachine) UndoRedo(t *rapid.T) {
	if !m.d.s.CanUndo() {
		t.Skip("nothing to undo")
	}
	before := m.snapshot()
	m.d.s.Undo()
	m.d.s.Redo()
	require.Equal(t, before, m.snapshot())
}

// NewAfterUndo starts a new transaction after an undo, which must discard
// the redo branch.
func (m *storeStateMachine) NewAfterUndo(t *rapid.T) {
	if !m.d.s.CanUndo() {
		t.Skip("nothing to undo")
	}
	m.d.s.Undo()
	m.AddEntity(t)
	require.False(t, m.d.s.CanRedo())
}

func (m *storeStateMachine) snapshot() map[types.ObjectID]*model.Object {
	out := make(map[types.ObjectID]*model.Object)
	for _, id := range m.d.s.QueryAllObjectsWithUndone() {
		o := m.d.s.QueryObject(id)
		o.Selected, o.SelectedWorkingSet = false, false
		out[id] = o
	}
	return out
}

func (m *storeStateMachine) Check(t *rapid.T) {
	s := m.d.s

	handles := make(map[types.Handle]types.ObjectID)
	referenced := make(map[types.ObjectID]struct{})
	for _, txID := range s.TransactionIDs() {
		for _, c := range s.Transaction(txID).Changes() {
			referenced[c.ID] = struct{}{}
		}
	}
	for _, id := range s.QueryAllObjectsWithUndone() {
		o := s.QueryObjectDirect(id)
		if prev, dup := handles[o.Handle]; dup {
			t.Fatalf("handle %s shared by %s and %s", o.Handle, prev, id)
		}
		handles[o.Handle] = id
		if got := s.QueryObjectByHandleDirect(o.Handle); got != o {
			t.Fatalf("handle %s does not resolve to %s", o.Handle, id)
		}
		if o.Undone {
			if o.Selected {
				t.Fatalf("undone object %s is selected", id)
			}
			if _, ok := referenced[id]; !ok {
				t.Fatalf("undone object %s is not reachable from the history", id)
			}
		}
	}

	entries := 0
	union := [2]types.Box{types.EmptyBox(), types.EmptyBox()}
	var visible, selected []types.ObjectID
	for _, id := range s.QueryAllEntities(true, false) {
		e := s.QueryObjectDirect(id)
		if e.Undone {
			if s.IndexedBoxes(id) != nil {
				t.Fatalf("undone entity %s is still indexed", id)
			}
			continue
		}
		boxes := e.Entity.SubBoxes()
		indexed := s.IndexedBoxes(id)
		if len(indexed) != len(boxes) {
			t.Fatalf("entity %s indexed with %d boxes, has %d sub-shapes", id, len(indexed), len(boxes))
		}
		for pos, b := range boxes {
			if !indexed[pos].Equal(b) {
				t.Fatalf("entity %s pos %d indexed as %s, is %s", id, pos, indexed[pos], b)
			}
			if !s.SpatialIndex().QueryIntersected(b, nil).Has(id, pos) {
				t.Fatalf("entity %s pos %d not found in the index", id, pos)
			}
			entries++
		}

		bb := e.Entity.BoundingBox(false)
		union[0].GrowToInclude(bb)
		if DefaultVisibility(s, e) {
			visible = append(visible, id)
			union[1].GrowToInclude(bb)
		}
		if e.Selected {
			selected = append(selected, id)
		}
	}
	if s.SpatialIndex().Len() != entries {
		t.Fatalf("index holds %d entries, want %d", s.SpatialIndex().Len(), entries)
	}
	require.Equal(t, visible, nilIfEmpty(s.QueryAllVisibleEntities()))
	require.Equal(t, selected, nilIfEmpty(s.QuerySelectedEntities()))
	require.Equal(t, len(selected), s.CountSelectedEntities())
	if got := s.BoundingBox(false, false); !got.Equal(union[0]) {
		t.Fatalf("bounding box %s, want %s", got, union[0])
	}
	if got := s.BoundingBox(true, false); !got.Equal(union[1]) {
		t.Fatalf("visible bounding box %s, want %s", got, union[1])
	}
}

func nilIfEmpty(ids []types.ObjectID) []types.ObjectID {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func TestStoreProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &storeStateMachine{}
		m.Init(t)

		actions := map[string]func(*rapid.T){
			"AddEntity":    m.AddEntity,
			"ModifyEntity": m.ModifyEntity,
			"DeleteEntity": m.DeleteEntity,
			"AddLayer":     m.AddLayer,
			"Select":       m.Select,
			"Undo":         m.Undo,
			"Redo":         m.Redo,
			"UndoRedo":     m.UndoRedo,
			"NewAfterUndo": m.NewAfterUndo,
		}
		checked := make(map[string]func(*rapid.T), len(actions))
		for name, action := range actions {
			action := action
			checked[name] = func(t *rapid.T) {
				action(t)
				m.Check(t)
			}
		}
		t.Repeat(checked)
	})
}
