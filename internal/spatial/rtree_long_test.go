package spatial

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-cad/internal/testutil"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

func bruteIntersectedIDs(boxes []types.Box, region types.Box, removed map[int]bool) []types.ObjectID {
	var out []types.ObjectID
	for i, b := range boxes {
		if !removed[i] && b.Intersects(region) {
			out = append(out, types.ObjectID(i))
		}
	}
	return out
}

func TestLargeTreeAgainstBruteForce(t *testing.T) {
	testutil.RequireLong(t)

	rng := rand.New(rand.NewSource(7))
	boxes := testutil.RandomBoxes(rng, 50000, 10000, 40)

	ids := make([]types.ObjectID, len(boxes))
	perID := make([][]types.Box, len(boxes))
	for i, b := range boxes {
		ids[i] = types.ObjectID(i)
		perID[i] = []types.Box{b}
	}

	tr := newTestTree(32)
	tr.BulkLoad(ids[:len(ids)/2], perID[:len(ids)/2])
	for i := len(ids) / 2; i < len(ids); i++ {
		require.True(t, tr.Add(ids[i], 0, boxes[i]))
	}
	checkTree(t, tr)

	removed := map[int]bool{}
	for i := 0; i < len(boxes); i += 3 {
		require.True(t, tr.Remove(types.ObjectID(i), 0, boxes[i]))
		removed[i] = true
	}
	checkTree(t, tr)
	assert.Equal(t, len(boxes)-len(removed), tr.Len())

	for _, region := range testutil.RandomBoxes(rng, 200, 10000, 500) {
		got := tr.QueryIntersected(region, nil).IDs()
		assert.ElementsMatch(t, bruteIntersectedIDs(boxes, region, removed), got)
	}
}
