// Package spatial implements the 3D R-tree used to answer window and nearest
// neighbour queries over entity sub-shapes.
//
// Entries are keyed by types.SIKey, which packs the object id and the
// sub-shape position. The tree knows nothing about entities: callers insert
// boxes under keys and must remove them with the exact box they inserted,
// there is no reverse lookup by id.
//
// A Tree is not safe for concurrent use.
package spatial

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// Options configures node fan-out. The defaults follow the capacities the
// CAD storage historically ran with (50 entries per node, 20% minimum load).
type Options struct {
	MaxEntries int
	MinEntries int
	Logger     *logrus.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxEntries: 50,
		MinEntries: 10,
	}
}

func (o *Options) validate() {
	if o.MaxEntries < 4 {
		o.MaxEntries = 4
	}
	if o.MinEntries < 1 || o.MinEntries > o.MaxEntries/2 {
		o.MinEntries = max(1, o.MaxEntries/5)
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
}

// Visitor receives the raw geometry a query touches. VisitNode is called for
// every inner or leaf node whose box is examined, VisitData for every matching
// entry.
type Visitor interface {
	VisitNode(box types.Box)
	VisitData(id types.ObjectID, pos int, box types.Box)
}

// Result maps object ids to the set of matching sub-shape positions.
type Result map[types.ObjectID]map[int]struct{}

func (r Result) add(k types.SIKey) {
	id := k.ID()
	set, ok := r[id]
	if !ok {
		set = make(map[int]struct{})
		r[id] = set
	}
	set[k.Pos()] = struct{}{}
}

// IDs returns the object ids of the result in ascending order.
func (r Result) IDs() []types.ObjectID {
	out := make([]types.ObjectID, 0, len(r))
	for id := range r {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Has reports whether (id, pos) is part of the result.
func (r Result) Has(id types.ObjectID, pos int) bool {
	_, ok := r[id][pos]
	return ok
}

type entry struct {
	box   types.Box
	child *node
	key   types.SIKey
}

type node struct {
	leaf    bool
	entries []entry
}

func (n *node) bounds() types.Box {
	b := types.EmptyBox()
	for i := range n.entries {
		b.GrowToInclude(n.entries[i].box)
	}
	return b
}

// Tree is a 3D R-tree with quadratic split and STR bulk loading.
type Tree struct {
	opts   Options
	log    *logrus.Logger
	root   *node
	size   int
	height int
}

func New(opts Options) *Tree {
	opts.validate()
	t := &Tree{opts: opts, log: opts.Logger}
	t.Clear()
	return t
}

// Clear drops every entry.
func (t *Tree) Clear() {
	t.root = &node{leaf: true}
	t.size = 0
	t.height = 1
}

// Len is the number of indexed sub-shape boxes.
func (t *Tree) Len() int {
	return t.size
}

// Height of the tree, 1 for a tree that only has a root leaf.
func (t *Tree) Height() int {
	return t.height
}

// Bounds covers every entry; invalid for an empty tree.
func (t *Tree) Bounds() types.Box {
	return t.root.bounds()
}

// Add indexes box under (id, pos). Boxes with NaN coordinates are rejected
// with a warning and false is returned.
func (t *Tree) Add(id types.ObjectID, pos int, box types.Box) bool {
	if !box.Valid || box.HasNaN() {
		t.log.WithFields(logrus.Fields{
			"id":  id,
			"pos": pos,
			"box": box.String(),
		}).Warn("spatial: refusing to index box with NaN coordinates")
		return false
	}
	t.insert(entry{box: box.Normalized(), key: types.NewSIKey(id, pos)}, t.height)
	t.size++
	return true
}

// Remove deletes the entry (id, pos) that was inserted with exactly box.
// It returns false when no such entry exists.
func (t *Tree) Remove(id types.ObjectID, pos int, box types.Box) bool {
	if !box.Valid || box.HasNaN() {
		return false
	}
	box = box.Normalized()
	key := types.NewSIKey(id, pos)

	var path []*node
	var idx []int
	if !t.findLeaf(t.root, key, box, &path, &idx) {
		return false
	}
	leaf := path[len(path)-1]
	i := idx[len(idx)-1]
	leaf.entries = append(leaf.entries[:i], leaf.entries[i+1:]...)
	t.size--
	t.condense(path[:len(path)-1], idx[:len(idx)-1])
	return true
}

// RemoveAll removes the boxes of all sub-shapes of id, boxes[pos] being the
// box inserted for position pos. Invalid boxes mark positions that were
// never inserted and are skipped. It returns false if any of the others was
// missing, the rest are still removed.
func (t *Tree) RemoveAll(id types.ObjectID, boxes []types.Box) bool {
	ok := true
	for pos, b := range boxes {
		if !b.Valid {
			continue
		}
		ok = t.Remove(id, pos, b) && ok
	}
	return ok
}

// findLeaf walks every subtree whose box contains the target box. path ends
// with the leaf, idx holds the entry index chosen at each level (the last one
// is the index of the matching entry inside the leaf).
func (t *Tree) findLeaf(n *node, key types.SIKey, box types.Box, path *[]*node, idx *[]int) bool {
	*path = append(*path, n)
	if n.leaf {
		for i := range n.entries {
			if n.entries[i].key == key && n.entries[i].box.Equal(box) {
				*idx = append(*idx, i)
				return true
			}
		}
		*path = (*path)[:len(*path)-1]
		return false
	}
	for i := range n.entries {
		if !n.entries[i].box.Contains(box) {
			continue
		}
		*idx = append(*idx, i)
		if t.findLeaf(n.entries[i].child, key, box, path, idx) {
			return true
		}
		*idx = (*idx)[:len(*idx)-1]
	}
	*path = (*path)[:len(*path)-1]
	return false
}

// condense walks back up from a leaf that lost an entry, dropping underfull
// nodes and reinserting their leaf entries, and tightens the boxes on the way.
func (t *Tree) condense(parents []*node, idx []int) {
	var orphans []entry
	for level := len(parents) - 1; level >= 0; level-- {
		parent := parents[level]
		i := idx[level]
		child := parent.entries[i].child
		if len(child.entries) < t.opts.MinEntries {
			parent.entries = append(parent.entries[:i], parent.entries[i+1:]...)
			orphans = collectLeafEntries(child, orphans)
			continue
		}
		parent.entries[i].box = child.bounds()
	}

	for !t.root.leaf && len(t.root.entries) == 1 {
		t.root = t.root.entries[0].child
		t.height--
	}
	if !t.root.leaf && len(t.root.entries) == 0 {
		t.root = &node{leaf: true}
		t.height = 1
	}

	for _, e := range orphans {
		t.insert(e, t.height)
	}
}

func collectLeafEntries(n *node, out []entry) []entry {
	if n.leaf {
		return append(out, n.entries...)
	}
	for i := range n.entries {
		out = collectLeafEntries(n.entries[i].child, out)
	}
	return out
}

// insert places e at the given level, counted from the leaves (1) upwards.
func (t *Tree) insert(e entry, level int) {
	split := t.insertAt(t.root, e, t.height, level)
	if split != nil {
		oldRoot := t.root
		t.root = &node{
			leaf: false,
			entries: []entry{
				{box: oldRoot.bounds(), child: oldRoot},
				{box: split.bounds(), child: split},
			},
		}
		t.height++
	}
}

// insertAt returns the new sibling if n had to be split.
func (t *Tree) insertAt(n *node, e entry, nodeLevel, targetLevel int) *node {
	if nodeLevel == targetLevel {
		n.entries = append(n.entries, e)
	} else {
		i := chooseSubtree(n, e.box)
		sibling := t.insertAt(n.entries[i].child, e, nodeLevel-1, targetLevel)
		n.entries[i].box = n.entries[i].child.bounds()
		if sibling != nil {
			n.entries = append(n.entries, entry{box: sibling.bounds(), child: sibling})
		}
	}
	if len(n.entries) > t.opts.MaxEntries {
		return t.split(n)
	}
	return nil
}

// cost is an ordering key for boxes that also works for flat drawings, where
// every volume is zero: half the surface first, the margin as tie breaker.
type cost struct {
	surface float64
	margin  float64
}

func costOf(b types.Box) cost {
	if !b.Valid {
		return cost{}
	}
	w, h, d := b.Width(), b.Height(), b.Depth()
	return cost{surface: w*h + h*d + w*d, margin: b.Margin()}
}

func (c cost) sub(o cost) cost {
	return cost{surface: c.surface - o.surface, margin: c.margin - o.margin}
}

func (c cost) less(o cost) bool {
	if c.surface != o.surface {
		return c.surface < o.surface
	}
	return c.margin < o.margin
}

func chooseSubtree(n *node, b types.Box) int {
	best := 0
	var bestGrow, bestCost cost
	for i := range n.entries {
		cur := costOf(n.entries[i].box)
		grow := costOf(n.entries[i].box.Union(b)).sub(cur)
		if i == 0 || grow.less(bestGrow) || (grow == bestGrow && cur.less(bestCost)) {
			best, bestGrow, bestCost = i, grow, cur
		}
	}
	return best
}

// split distributes the entries of an overflowing node between n and a new
// sibling using Guttman's quadratic split.
func (t *Tree) split(n *node) *node {
	entries := n.entries
	s1, s2 := pickSeeds(entries)

	a := &node{leaf: n.leaf, entries: []entry{entries[s1]}}
	b := &node{leaf: n.leaf, entries: []entry{entries[s2]}}
	boxA, boxB := entries[s1].box, entries[s2].box

	rest := make([]entry, 0, len(entries)-2)
	for i := range entries {
		if i != s1 && i != s2 {
			rest = append(rest, entries[i])
		}
	}

	minEntries := t.opts.MinEntries
	for len(rest) > 0 {
		if len(a.entries)+len(rest) <= minEntries {
			a.entries = append(a.entries, rest...)
			break
		}
		if len(b.entries)+len(rest) <= minEntries {
			b.entries = append(b.entries, rest...)
			break
		}

		// pick the entry with the strongest preference for one group
		pick, prefA := 0, true
		var bestDiff float64 = -1
		for i := range rest {
			dA := costOf(boxA.Union(rest[i].box)).sub(costOf(boxA))
			dB := costOf(boxB.Union(rest[i].box)).sub(costOf(boxB))
			diff := math.Abs(dA.surface-dB.surface) + math.Abs(dA.margin-dB.margin)
			if diff > bestDiff {
				bestDiff = diff
				pick = i
				prefA = dA.less(dB) || (dA == dB && len(a.entries) <= len(b.entries))
			}
		}
		e := rest[pick]
		rest = append(rest[:pick], rest[pick+1:]...)
		if prefA {
			a.entries = append(a.entries, e)
			boxA = boxA.Union(e.box)
		} else {
			b.entries = append(b.entries, e)
			boxB = boxB.Union(e.box)
		}
	}

	n.entries = a.entries
	return b
}

// pickSeeds returns the pair of entries that would waste the most space if
// put in the same node.
func pickSeeds(entries []entry) (int, int) {
	s1, s2 := 0, 1
	worst := cost{surface: math.Inf(-1), margin: math.Inf(-1)}
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			u := costOf(entries[i].box.Union(entries[j].box))
			waste := u.sub(costOf(entries[i].box)).sub(costOf(entries[j].box))
			if worst.less(waste) {
				worst = waste
				s1, s2 = i, j
			}
		}
	}
	return s1, s2
}

func (t *Tree) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "RTree(size=%d, height=%d)\n", t.size, t.height)
	var dump func(n *node, depth int)
	dump = func(n *node, depth int) {
		indent := strings.Repeat("  ", depth)
		for i := range n.entries {
			if n.leaf {
				fmt.Fprintf(&sb, "%s%s %s\n", indent, n.entries[i].key, n.entries[i].box)
				continue
			}
			fmt.Fprintf(&sb, "%snode %s\n", indent, n.entries[i].box)
			dump(n.entries[i].child, depth+1)
		}
	}
	dump(t.root, 0)
	return sb.String()
}
