package query

import (
	"math"

	"github.com/i5heu/ouroboros-cad/internal/spatial"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

// Hit is an entity sub-shape found by a closest query.
type Hit struct {
	ID       types.ObjectID
	Pos      int
	Distance float64
}

var noHit = Hit{ID: types.InvalidID, Pos: -1, Distance: math.Inf(1)}

// better orders hits by distance, then id, then position.
func (h Hit) better(o Hit) bool {
	if h.Distance != o.Distance {
		return h.Distance < o.Distance
	}
	if h.ID != o.ID {
		return h.ID < o.ID
	}
	return h.Pos < o.Pos
}

// ClosestEntity returns the entity whose geometry is closest to p and not
// further away than maxDistance, or InvalidID.
func (q Engine) ClosestEntity(p types.Vector, maxDistance float64, f Filter) types.ObjectID {
	return q.ClosestEntityWithIndex(p, maxDistance, f).ID
}

// ClosestEntityWithIndex is ClosestEntity that also reports the sub-shape
// position and the exact distance. Ties go to the lower id.
//
// Candidates come from the index in ascending box distance; the box distance
// is a lower bound of the shape distance, so the walk stops as soon as it
// exceeds the best exact distance found.
func (q Engine) ClosestEntityWithIndex(p types.Vector, maxDistance float64, f Filter) Hit {
	if p.IsNaN() || math.IsNaN(maxDistance) || maxDistance < 0 {
		return noHit
	}
	best := noHit

	if f.scans() {
		for _, id := range q.store.QueryAllEntities(f.IncludeUndone, f.AllBlocks) {
			e := q.store.QueryObjectDirect(id)
			if !f.match(q.store, e) {
				continue
			}
			for pos := range e.Entity.Shapes {
				best = consider(best, Hit{ID: id, Pos: pos, Distance: e.Entity.DistanceTo(p, pos)}, maxDistance)
			}
		}
		return best
	}

	q.store.SpatialIndex().NearestWithDistance(p, func(n spatial.Neighbor) bool {
		if n.Distance > maxDistance || n.Distance > best.Distance {
			return false
		}
		e := q.store.QueryObjectDirect(n.ID)
		if !f.match(q.store, e) {
			return true
		}
		best = consider(best, Hit{ID: n.ID, Pos: n.Pos, Distance: e.Entity.DistanceTo(p, n.Pos)}, maxDistance)
		return true
	})
	return best
}

// ClosestAmong returns the candidate closest to p within maxDistance,
// without any filtering. Unknown ids and non entities are skipped.
func (q Engine) ClosestAmong(candidates []types.ObjectID, p types.Vector, maxDistance float64) types.ObjectID {
	if p.IsNaN() || math.IsNaN(maxDistance) || maxDistance < 0 {
		return types.InvalidID
	}
	best := noHit
	for _, id := range candidates {
		e := q.store.QueryEntityDirect(id)
		if e == nil {
			continue
		}
		best = consider(best, Hit{ID: id, Pos: -1, Distance: e.Entity.DistanceTo(p, -1)}, maxDistance)
	}
	return best.ID
}

func consider(best, h Hit, maxDistance float64) Hit {
	if math.IsNaN(h.Distance) || h.Distance > maxDistance {
		return best
	}
	if h.better(best) {
		return h
	}
	return best
}
