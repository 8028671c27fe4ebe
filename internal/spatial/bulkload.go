package spatial

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// BulkLoad discards the current tree and builds a new one from boxes, where
// boxes[i][pos] is the box of sub-shape pos of ids[i]. The tree is packed
// with Sort-Tile-Recursive. Empty input leaves an empty tree.
func (t *Tree) BulkLoad(ids []types.ObjectID, boxes [][]types.Box) {
	t.Clear()

	var items []entry
	skipped := 0
	for i, id := range ids {
		if i >= len(boxes) {
			break
		}
		for pos, b := range boxes[i] {
			if !b.Valid || b.HasNaN() {
				skipped++
				continue
			}
			items = append(items, entry{box: b.Normalized(), key: types.NewSIKey(id, pos)})
		}
	}
	if skipped > 0 {
		t.log.WithFields(logrus.Fields{
			"skipped": skipped,
			"loaded":  len(items),
		}).Warn("spatial: bulk load skipped boxes with NaN coordinates")
	}
	if len(items) == 0 {
		return
	}

	level := make([]*node, 0)
	for _, group := range strTile(items, 0, t.opts.MaxEntries) {
		level = append(level, &node{leaf: true, entries: group})
	}
	height := 1
	for len(level) > 1 {
		parents := make([]entry, len(level))
		for i, n := range level {
			parents[i] = entry{box: n.bounds(), child: n}
		}
		next := make([]*node, 0)
		for _, group := range strTile(parents, 0, t.opts.MaxEntries) {
			next = append(next, &node{entries: group})
		}
		level = next
		height++
	}

	t.root = level[0]
	t.height = height
	t.size = len(items)
}

// strTile sorts items into slabs along axis and recurses into the next axis,
// returning groups of at most capacity entries.
func strTile(items []entry, axis, capacity int) [][]entry {
	sort.SliceStable(items, func(i, j int) bool {
		return center(items[i].box, axis) < center(items[j].box, axis)
	})
	if axis == 2 || len(items) <= capacity {
		return chunk(items, capacity)
	}

	pages := int(math.Ceil(float64(len(items)) / float64(capacity)))
	slabs := int(math.Ceil(math.Pow(float64(pages), 1/float64(3-axis))))
	slabSize := int(math.Ceil(float64(len(items))/float64(slabs)/float64(capacity))) * capacity

	var out [][]entry
	for start := 0; start < len(items); start += slabSize {
		end := min(start+slabSize, len(items))
		out = append(out, strTile(items[start:end], axis+1, capacity)...)
	}
	return out
}

func chunk(items []entry, capacity int) [][]entry {
	var out [][]entry
	for start := 0; start < len(items); start += capacity {
		end := min(start+capacity, len(items))
		group := make([]entry, end-start)
		copy(group, items[start:end])
		out = append(out, group)
	}
	return out
}

func center(b types.Box, axis int) float64 {
	switch axis {
	case 0:
		return (b.Min.X + b.Max.X) / 2
	case 1:
		return (b.Min.Y + b.Max.Y) / 2
	}
	return (b.Min.Z + b.Max.Z) / 2
}
