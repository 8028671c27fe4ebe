package spatial

import (
	"container/heap"

	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// QueryIntersected returns every entry whose box shares at least one point
// with region. v may be nil.
func (t *Tree) QueryIntersected(region types.Box, v Visitor) Result {
	res := Result{}
	if !region.Valid || region.HasNaN() || t.size == 0 {
		return res
	}
	region = region.Normalized()
	t.search(t.root, region, false, v, res)
	return res
}

// QueryContained returns every entry whose box lies completely inside
// region. v may be nil.
func (t *Tree) QueryContained(region types.Box, v Visitor) Result {
	res := Result{}
	if !region.Valid || region.HasNaN() || t.size == 0 {
		return res
	}
	region = region.Normalized()
	t.search(t.root, region, true, v, res)
	return res
}

func (t *Tree) search(n *node, region types.Box, contained bool, v Visitor, res Result) {
	for i := range n.entries {
		e := &n.entries[i]
		if !region.Intersects(e.box) {
			continue
		}
		if !n.leaf {
			if v != nil {
				v.VisitNode(e.box)
			}
			t.search(e.child, region, contained, v, res)
			continue
		}
		if contained && !region.Contains(e.box) {
			continue
		}
		res.add(e.key)
		if v != nil {
			v.VisitData(e.key.ID(), e.key.Pos(), e.box)
		}
	}
}

// QueryNearestNeighbor returns the k entries closest to p, measured from p to
// each entry's box. Entries at the same distance are ordered by id and then
// by position, so the cut at k is deterministic.
func (t *Tree) QueryNearestNeighbor(k int, p types.Vector, v Visitor) Result {
	res := Result{}
	if k <= 0 || p.IsNaN() || t.size == 0 {
		return res
	}
	t.nearest(p, func(key types.SIKey, box types.Box) bool {
		res.add(key)
		if v != nil {
			v.VisitData(key.ID(), key.Pos(), box)
		}
		k--
		return k > 0
	}, v)
	return res
}

// Nearest returns the single entry closest to (x, y, z).
func (t *Tree) Nearest(x, y, z float64) (types.ObjectID, int, bool) {
	p := types.NewVector(x, y, z)
	if p.IsNaN() || t.size == 0 {
		return types.InvalidID, -1, false
	}
	id, pos, found := types.InvalidID, -1, false
	t.nearest(p, func(key types.SIKey, _ types.Box) bool {
		id, pos, found = key.ID(), key.Pos(), true
		return false
	}, nil)
	return id, pos, found
}

// Neighbor is one result of NearestWithDistance.
type Neighbor struct {
	ID       types.ObjectID
	Pos      int
	Box      types.Box
	Distance float64
}

// NearestWithDistance streams entries in ascending box distance until fn
// returns false.
func (t *Tree) NearestWithDistance(p types.Vector, fn func(n Neighbor) bool) {
	if p.IsNaN() || t.size == 0 {
		return
	}
	t.nearest(p, func(key types.SIKey, box types.Box) bool {
		return fn(Neighbor{ID: key.ID(), Pos: key.Pos(), Box: box, Distance: box.DistanceTo(p)})
	}, nil)
}

// nearest is a best first traversal. Nodes sort before data at equal distance
// so that every entry at a given distance is queued before the first of them
// is emitted, which makes the key order tie break hold.
func (t *Tree) nearest(p types.Vector, emit func(key types.SIKey, box types.Box) bool, v Visitor) {
	q := &nnQueue{}
	t.pushNode(q, t.root, p)
	for q.Len() > 0 {
		it := heap.Pop(q).(nnItem)
		if it.node == nil {
			if !emit(it.key, it.box) {
				return
			}
			continue
		}
		if v != nil && it.node != t.root {
			v.VisitNode(it.box)
		}
		t.pushNode(q, it.node, p)
	}
}

func (t *Tree) pushNode(q *nnQueue, n *node, p types.Vector) {
	for i := range n.entries {
		e := &n.entries[i]
		it := nnItem{dist: e.box.DistanceSquaredTo(p), box: e.box}
		if n.leaf {
			it.key = e.key
		} else {
			it.node = e.child
		}
		heap.Push(q, it)
	}
}

type nnItem struct {
	dist float64
	node *node
	key  types.SIKey
	box  types.Box
}

type nnQueue []nnItem

func (q nnQueue) Len() int { return len(q) }

func (q nnQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	if (a.node != nil) != (b.node != nil) {
		return a.node != nil
	}
	if a.node == nil && a.key.ID() != b.key.ID() {
		return a.key.ID() < b.key.ID()
	}
	return a.key.Pos() < b.key.Pos()
}

func (q nnQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nnQueue) Push(x any) { *q = append(*q, x.(nnItem)) }

func (q *nnQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
