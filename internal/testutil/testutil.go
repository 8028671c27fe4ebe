// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"flag"
	"math/rand"
	"testing"

	"github.com/i5heu/ouroboros-cad/pkg/types"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

// RandomBoxes returns n boxes with corners inside [0, extent) on every axis
// and edges of at most maxSize. Every tenth box is flat in z, like most
// drawing geometry.
func RandomBoxes(rng *rand.Rand, n int, extent, maxSize float64) []types.Box {
	out := make([]types.Box, n)
	for i := range out {
		lo := types.NewVector(rng.Float64()*extent, rng.Float64()*extent, rng.Float64()*extent)
		size := types.NewVector(rng.Float64()*maxSize, rng.Float64()*maxSize, rng.Float64()*maxSize)
		if i%10 == 0 {
			size.Z = 0
		}
		out[i] = types.NewBox(lo, lo.Add(size))
	}
	return out
}
