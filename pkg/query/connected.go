package query

import (
	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// ConnectedEntities returns the entities reachable from id by following end
// points that lie within tolerance of each other, id included. Only live
// entities of the current block take part.
func (q Engine) ConnectedEntities(id types.ObjectID, tolerance float64) []types.ObjectID {
	start := q.store.QueryEntityDirect(id)
	if start == nil || start.Undone || start.Entity.BlockID != q.store.CurrentBlock() {
		return nil
	}
	tolerance = max(tolerance, 0)

	seen := map[types.ObjectID]struct{}{id: {}}
	queue := []*model.Object{start}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		for _, p := range e.Entity.EndPoints() {
			window := types.NewBox(p, p).Grow(tolerance)
			for candidate := range q.store.SpatialIndex().QueryIntersected(window, nil) {
				if _, ok := seen[candidate]; ok {
					continue
				}
				c := q.store.QueryObjectDirect(candidate)
				if !touches(c.Entity.EndPoints(), p, tolerance) {
					continue
				}
				seen[candidate] = struct{}{}
				queue = append(queue, c)
			}
		}
	}

	return sortedIDs(seen)
}

func touches(points []types.Vector, p types.Vector, tolerance float64) bool {
	for _, o := range points {
		if o.DistanceTo(p) <= tolerance {
			return true
		}
	}
	return false
}
