package spatial

import (
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-cad/pkg/types"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestTree(maxEntries int) *Tree {
	return New(Options{MaxEntries: maxEntries, MinEntries: maxEntries / 4, Logger: quietLogger()})
}

// checkTree verifies the structural invariants: uniform leaf depth, node
// fan-out, parent boxes covering their children and the entry count.
func checkTree(t *testing.T, tr *Tree) {
	t.Helper()
	leafDepth := -1
	count := 0
	var walk func(n *node, depth int, isRoot bool)
	walk = func(n *node, depth int, isRoot bool) {
		require.LessOrEqual(t, len(n.entries), tr.opts.MaxEntries, "node overflow")
		if !isRoot {
			require.NotEmpty(t, n.entries, "empty non root node")
		}
		if n.leaf {
			if leafDepth == -1 {
				leafDepth = depth
			}
			require.Equal(t, leafDepth, depth, "leaves at different depths")
			count += len(n.entries)
			return
		}
		for i := range n.entries {
			e := n.entries[i]
			require.NotNil(t, e.child)
			require.True(t, e.box.Equal(e.child.bounds()), "stale node box %s vs %s", e.box, e.child.bounds())
			walk(e.child, depth+1, false)
		}
	}
	walk(tr.root, 1, true)
	require.Equal(t, tr.size, count)
	if count > 0 {
		require.Equal(t, tr.height, leafDepth)
	}
}

func randomBox(r *rand.Rand) types.Box {
	x, y := r.Float64()*1000, r.Float64()*1000
	w, h := r.Float64()*20, r.Float64()*20
	return types.NewBox2D(x, y, x+w, y+h)
}

type keyed struct {
	id  types.ObjectID
	pos int
	box types.Box
}

func bruteIntersected(items []keyed, region types.Box) Result {
	res := Result{}
	for _, it := range items {
		if region.Intersects(it.box) {
			res.add(types.NewSIKey(it.id, it.pos))
		}
	}
	return res
}

func TestAddAndQueryIntersected(t *testing.T) {
	tr := New(DefaultOptions())
	require.True(t, tr.Add(1, 0, types.NewBox2D(0, 0, 1, 1)))
	require.True(t, tr.Add(2, 0, types.NewBox2D(5, 5, 6, 6)))
	require.True(t, tr.Add(2, 1, types.NewBox2D(0.5, 0.5, 3, 3)))

	res := tr.QueryIntersected(types.NewBox2D(0, 0, 2, 2), nil)
	assert.Len(t, res, 2)
	assert.True(t, res.Has(1, 0))
	assert.True(t, res.Has(2, 1))
	assert.False(t, res.Has(2, 0))
	assert.Equal(t, 3, tr.Len())
}

func TestAddNormalizesCorners(t *testing.T) {
	tr := New(DefaultOptions())
	inverted := types.Box{Min: types.NewVector(2, 2, 0), Max: types.NewVector(0, 0, 0), Valid: true}
	require.True(t, tr.Add(7, 0, inverted))

	res := tr.QueryContained(types.NewBox2D(-1, -1, 3, 3), nil)
	assert.True(t, res.Has(7, 0))
	assert.True(t, tr.Remove(7, 0, inverted))
	assert.Equal(t, 0, tr.Len())
}

func TestAddRejectsNaN(t *testing.T) {
	tr := newTestTree(8)
	bad := types.NewBox2D(0, 0, math.NaN(), 1)
	assert.False(t, tr.Add(1, 0, bad))
	assert.False(t, tr.Add(1, 1, types.EmptyBox()))
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.QueryIntersected(types.NewBox2D(-10, -10, 10, 10), nil))
}

func TestRemoveNeedsExactBox(t *testing.T) {
	tr := newTestTree(8)
	box := types.NewBox2D(0, 0, 1, 1)
	require.True(t, tr.Add(1, 0, box))

	assert.False(t, tr.Remove(1, 0, types.NewBox2D(0, 0, 1, 2)))
	assert.False(t, tr.Remove(1, 1, box))
	assert.False(t, tr.Remove(2, 0, box))
	assert.True(t, tr.Remove(1, 0, box))
	assert.False(t, tr.Remove(1, 0, box))
	assert.Empty(t, tr.QueryIntersected(box, nil))
}

func TestRemoveAll(t *testing.T) {
	tr := newTestTree(8)
	boxes := []types.Box{
		types.NewBox2D(0, 0, 1, 1),
		types.NewBox2D(1, 1, 2, 2),
		types.NewBox2D(2, 2, 3, 3),
	}
	for pos, b := range boxes {
		require.True(t, tr.Add(4, pos, b))
	}
	require.True(t, tr.Add(5, 0, boxes[0]))

	assert.True(t, tr.RemoveAll(4, boxes))
	res := tr.QueryIntersected(types.NewBox2D(0, 0, 3, 3), nil)
	assert.Equal(t, []types.ObjectID{5}, res.IDs())

	assert.False(t, tr.RemoveAll(4, boxes))
}

func TestSplitsAndRemovalsKeepInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tr := newTestTree(6)

	var items []keyed
	for i := 0; i < 500; i++ {
		it := keyed{id: types.ObjectID(i / 3), pos: i % 3, box: randomBox(r)}
		require.True(t, tr.Add(it.id, it.pos, it.box))
		items = append(items, it)
	}
	checkTree(t, tr)
	assert.Greater(t, tr.Height(), 2)

	for q := 0; q < 50; q++ {
		region := randomBox(r).Grow(r.Float64() * 100)
		assert.Equal(t, bruteIntersected(items, region), tr.QueryIntersected(region, nil))
	}

	r.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	removed := items[:300]
	items = items[300:]
	for _, it := range removed {
		require.True(t, tr.Remove(it.id, it.pos, it.box))
	}
	checkTree(t, tr)
	assert.Equal(t, len(items), tr.Len())

	for q := 0; q < 50; q++ {
		region := randomBox(r).Grow(r.Float64() * 100)
		assert.Equal(t, bruteIntersected(items, region), tr.QueryIntersected(region, nil))
	}

	for _, it := range items {
		require.True(t, tr.Remove(it.id, it.pos, it.box))
	}
	checkTree(t, tr)
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 1, tr.Height())
	assert.False(t, tr.Bounds().Valid)
}

func TestBulkLoad(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tr := newTestTree(8)
	require.True(t, tr.Add(999, 0, types.NewBox2D(-5, -5, -4, -4)))

	var ids []types.ObjectID
	var boxes [][]types.Box
	var items []keyed
	for i := 0; i < 400; i++ {
		id := types.ObjectID(i)
		n := 1 + r.Intn(3)
		var bs []types.Box
		for pos := 0; pos < n; pos++ {
			b := randomBox(r)
			bs = append(bs, b)
			items = append(items, keyed{id: id, pos: pos, box: b})
		}
		ids = append(ids, id)
		boxes = append(boxes, bs)
	}
	boxes[3] = append(boxes[3], types.NewBox2D(math.NaN(), 0, 1, 1))

	tr.BulkLoad(ids, boxes)
	checkTree(t, tr)
	assert.Equal(t, len(items), tr.Len())
	assert.Empty(t, tr.QueryIntersected(types.NewBox2D(-5, -5, -4, -4), nil), "previous content must be discarded")

	for q := 0; q < 50; q++ {
		region := randomBox(r).Grow(r.Float64() * 100)
		assert.Equal(t, bruteIntersected(items, region), tr.QueryIntersected(region, nil))
	}

	// the packed tree stays usable for incremental updates
	for _, it := range items[:100] {
		require.True(t, tr.Remove(it.id, it.pos, it.box))
	}
	require.True(t, tr.Add(1000, 0, types.NewBox2D(0, 0, 1, 1)))
	checkTree(t, tr)

	tr.BulkLoad(nil, nil)
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.QueryIntersected(types.NewBox2D(-1e9, -1e9, 1e9, 1e9), nil))
}

func TestQueryContained(t *testing.T) {
	tr := newTestTree(4)
	tr.Add(1, 0, types.NewBox2D(0, 0, 1, 1))
	tr.Add(2, 0, types.NewBox2D(0.5, 0.5, 4, 4))
	tr.Add(3, 0, types.NewBox2D(1, 1, 2, 2))

	res := tr.QueryContained(types.NewBox2D(0, 0, 2, 2), nil)
	assert.True(t, res.Has(1, 0))
	assert.True(t, res.Has(3, 0))
	assert.False(t, res.Has(2, 0))
}

func TestZeroSizeRegion(t *testing.T) {
	tr := newTestTree(4)
	tr.Add(1, 0, types.NewBox2D(0, 0, 2, 2))
	point := types.NewBox2D(1, 1, 1, 1)
	assert.True(t, tr.QueryIntersected(point, nil).Has(1, 0))
	assert.Empty(t, tr.QueryContained(point, nil))
	assert.Empty(t, tr.QueryIntersected(types.EmptyBox(), nil))
}

type countingVisitor struct {
	nodes int
	data  []types.SIKey
}

func (v *countingVisitor) VisitNode(types.Box) { v.nodes++ }

func (v *countingVisitor) VisitData(id types.ObjectID, pos int, _ types.Box) {
	v.data = append(v.data, types.NewSIKey(id, pos))
}

func TestVisitor(t *testing.T) {
	tr := newTestTree(4)
	for i := 0; i < 40; i++ {
		f := float64(i)
		tr.Add(types.ObjectID(i), 0, types.NewBox2D(f, f, f+0.5, f+0.5))
	}
	v := &countingVisitor{}
	res := tr.QueryIntersected(types.NewBox2D(0, 0, 10, 10), v)
	assert.Len(t, v.data, len(res))
	assert.Positive(t, v.nodes)
}

func TestNearestNeighbor(t *testing.T) {
	tr := newTestTree(4)
	for i := 0; i < 30; i++ {
		f := float64(i * 10)
		tr.Add(types.ObjectID(i), 0, types.NewBox2D(f, 0, f+1, 1))
	}

	res := tr.QueryNearestNeighbor(3, types.NewVector(101, 0.5, 0), nil)
	assert.ElementsMatch(t, []types.ObjectID{9, 10, 11}, res.IDs())

	id, pos, ok := tr.Nearest(205, 0, 0)
	require.True(t, ok)
	assert.Equal(t, types.ObjectID(20), id)
	assert.Equal(t, 0, pos)

	assert.Empty(t, tr.QueryNearestNeighbor(0, types.NewVector(0, 0, 0), nil))
	assert.Empty(t, tr.QueryNearestNeighbor(2, types.NewVector(math.NaN(), 0, 0), nil))
}

func TestNearestNeighborTieBreak(t *testing.T) {
	tr := newTestTree(4)
	box := types.NewBox2D(0, 0, 1, 1)
	for _, id := range []types.ObjectID{17, 3, 11, 5, 8, 2} {
		tr.Add(id, 1, box)
		tr.Add(id, 0, box)
	}

	res := tr.QueryNearestNeighbor(3, types.NewVector(5, 5, 0), nil)
	require.Len(t, res, 2)
	assert.True(t, res.Has(2, 0))
	assert.True(t, res.Has(2, 1))
	assert.True(t, res.Has(3, 0))
	assert.False(t, res.Has(3, 1))

	id, pos, ok := tr.Nearest(5, 5, 0)
	require.True(t, ok)
	assert.Equal(t, types.ObjectID(2), id)
	assert.Equal(t, 0, pos)
}

func TestNearestOnEmptyTree(t *testing.T) {
	tr := newTestTree(4)
	_, _, ok := tr.Nearest(0, 0, 0)
	assert.False(t, ok)
}

func TestNearestWithDistanceIsOrdered(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	tr := newTestTree(5)
	for i := 0; i < 200; i++ {
		tr.Add(types.ObjectID(i), 0, randomBox(r))
	}
	p := types.NewVector(500, 500, 0)
	last := -1.0
	seen := 0
	tr.NearestWithDistance(p, func(n Neighbor) bool {
		assert.GreaterOrEqual(t, n.Distance, last)
		last = n.Distance
		seen++
		return true
	})
	assert.Equal(t, 200, seen)
}

func TestClearAndString(t *testing.T) {
	tr := newTestTree(4)
	tr.Add(1, 0, types.NewBox2D(0, 0, 1, 1))
	assert.Contains(t, tr.String(), "1:0")
	assert.True(t, tr.Bounds().Equal(types.NewBox2D(0, 0, 1, 1)))
	tr.Clear()
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, "RTree(size=0, height=1)\n", tr.String())
}

func TestSIKeyRoundTripInResults(t *testing.T) {
	tr := newTestTree(4)
	tr.Add(math.MaxInt32, 1<<20, types.NewBox2D(0, 0, 1, 1))
	res := tr.QueryIntersected(types.NewBox2D(0, 0, 1, 1), nil)
	assert.True(t, res.Has(math.MaxInt32, 1<<20))
}
