package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/query"
	"github.com/i5heu/ouroboros-cad/pkg/storage"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

var (
	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Draw a small floor plan and save it",
		Args:  cobra.NoArgs,
		RunE:  cmdDemo,
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Print counts, extents and layers of the stored document",
		Args:  cobra.NoArgs,
		RunE:  cmdInfo,
	}

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "List the entities intersecting or inside a box",
		Args:  cobra.NoArgs,
		RunE:  cmdQuery,
	}

	closestCmd = &cobra.Command{
		Use:   "closest",
		Short: "Find the entity closest to a point",
		Args:  cobra.NoArgs,
		RunE:  cmdClosest,
	}

	queryBox       []float64
	queryContained bool
	closestAt      []float64
	closestRange   float64
)

func init() {
	queryCmd.Flags().Float64SliceVar(&queryBox, "box", nil, "query box as x1,y1,x2,y2")
	queryCmd.Flags().BoolVar(&queryContained, "contained", false, "only entities completely inside the box")
	_ = queryCmd.MarkFlagRequired("box")

	closestCmd.Flags().Float64SliceVar(&closestAt, "at", nil, "point as x,y")
	closestCmd.Flags().Float64Var(&closestRange, "range", math.Inf(1), "maximum distance")
	_ = closestCmd.MarkFlagRequired("at")
}

func cmdDemo(cmd *cobra.Command, _ []string) error {
	doc, log, err := openDocument()
	if err != nil {
		return err
	}
	defer doc.Close()

	var block types.ObjectID
	doc.Read(func(s *storage.Store, _ query.Engine) { block = s.CurrentBlock() })
	err = doc.Transaction("demo floor plan", func(tx *storage.Transaction) error {
		return drawFloorPlan(tx, block)
	})
	if err != nil {
		return err
	}
	if err := doc.Save(context.Background()); err != nil {
		return err
	}
	log.WithField("document", doc.ID()).Info("demo drawing saved")
	return nil
}

// drawFloorPlan adds a walls layer with a rectangular room and a doors layer
// with a door swing in the opening.
func drawFloorPlan(tx *storage.Transaction, block types.ObjectID) error {
	walls := model.NewLayer("Walls")
	walls.Layer.Color = "white"
	walls.Layer.Lineweight = 50
	doors := model.NewLayer("Doors")
	doors.Layer.Color = "yellow"
	for _, l := range []*model.Object{walls, doors} {
		if err := tx.AddObject(l, false); err != nil {
			return err
		}
	}

	v := func(x, y float64) types.Vector { return types.NewVector(x, y, 0) }
	entities := []*model.Object{
		model.NewPolyline(walls.ID, block, v(0, 0), v(8, 0), v(8, 6), v(0, 6), v(0, 0)),
		model.NewLine(walls.ID, block, v(0, 3), v(3, 3)),
		model.NewLine(walls.ID, block, v(4, 3), v(8, 3)),
		model.NewLine(doors.ID, block, v(3, 3), v(3, 4)),
		model.NewEntity(types.EntityArc, doors.ID, block,
			model.Polyline(v(3, 4), v(3.29, 3.96), v(3.5, 3.87), v(3.71, 3.71), v(3.87, 3.5), v(4, 3))),
		model.NewEntity(types.EntityPoint, walls.ID, block, model.Point(v(4, 4.5))),
	}
	for _, e := range entities {
		if err := tx.AddObject(e, false); err != nil {
			return err
		}
	}
	return nil
}

func cmdInfo(cmd *cobra.Command, _ []string) error {
	doc, _, err := openDocument()
	if err != nil {
		return err
	}
	defer doc.Close()

	out := cmd.OutOrStdout()
	doc.Read(func(s *storage.Store, _ query.Engine) {
		st := s.Stats()
		fmt.Fprintf(out, "Document %s\n", doc.ID())
		fmt.Fprintf(out, "  Objects:       %d (%d live)\n", st.Objects, st.LiveObjects)
		fmt.Fprintf(out, "  Entities:      %d\n", st.Entities)
		fmt.Fprintf(out, "  Index entries: %d\n", st.IndexEntries)
		fmt.Fprintf(out, "  Extents:       %s\n", s.BoundingBox(false, false))
		fmt.Fprintf(out, "  Layers:\n")
		for _, name := range s.LayerNames() {
			id := s.LayerID(name)
			fmt.Fprintf(out, "    %-12s %d entities\n", name, len(s.QueryLayerEntities(id, false)))
		}
	})
	return nil
}

func cmdQuery(cmd *cobra.Command, _ []string) error {
	if err := checkFloats(queryBox, 4); err != nil {
		return fmt.Errorf("--box: %w", err)
	}
	f := queryBox
	doc, _, err := openDocument()
	if err != nil {
		return err
	}
	defer doc.Close()

	box := types.NewBox2D(f[0], f[1], f[2], f[3])
	out := cmd.OutOrStdout()
	doc.Read(func(s *storage.Store, q query.Engine) {
		var ids []types.ObjectID
		if queryContained {
			ids = q.ContainedEntitiesXY(box, query.Filter{IncludeLockedLayers: true})
		} else {
			ids = q.IntersectedEntitiesXY(box, query.Filter{IncludeLockedLayers: true})
		}
		for _, id := range ids {
			printEntity(out, s, id)
		}
		fmt.Fprintf(out, "%d entities\n", len(ids))
	})
	return nil
}

func cmdClosest(cmd *cobra.Command, _ []string) error {
	if err := checkFloats(closestAt, 2); err != nil {
		return fmt.Errorf("--at: %w", err)
	}
	f := closestAt
	doc, _, err := openDocument()
	if err != nil {
		return err
	}
	defer doc.Close()

	out := cmd.OutOrStdout()
	doc.Read(func(s *storage.Store, q query.Engine) {
		hit := q.ClosestEntityWithIndex(types.NewVector(f[0], f[1], 0), closestRange, query.Filter{})
		if !hit.ID.IsValid() {
			fmt.Fprintln(out, "no entity in range")
			return
		}
		printEntity(out, s, hit.ID)
		fmt.Fprintf(out, "sub-shape %d at distance %.4f\n", hit.Pos, hit.Distance)
	})
	return nil
}

func printEntity(out io.Writer, s *storage.Store, id types.ObjectID) {
	e := s.QueryEntityDirect(id)
	if e == nil {
		return
	}
	layer := "?"
	if l := s.QueryLayerDirect(e.Entity.LayerID); l != nil {
		layer = l.Name
	}
	fmt.Fprintf(out, "%6s %-10s %-9s layer=%s\n", e.ID, e.Handle, e.Type, layer)
}

// checkFloats wants exactly n finite numbers.
func checkFloats(f []float64, n int) error {
	if len(f) != n {
		return fmt.Errorf("want %d comma separated numbers, got %d", n, len(f))
	}
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%v is not a finite number", v)
		}
	}
	return nil
}
