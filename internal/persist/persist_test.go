package persist

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

func openMem(t *testing.T) *Store {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := Open(Options{InMemory: true, Logger: log, Workers: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot() Snapshot {
	layer := model.NewLayer("Walls")
	layer.ID, layer.Handle = 1, 0x10
	layer.Layer.Color = "red"

	block := model.NewBlock(model.ModelSpaceName)
	block.ID, block.Handle = 0, 0x11

	line := model.NewLine(1, 0, types.NewVector(0, 0, 0), types.NewVector(3, 4, 0))
	line.ID, line.Handle = 2, 0x12
	line.Entity.DrawOrder = 1

	vars := model.NewDocumentVariables()
	vars.ID, vars.Handle = 3, 0x13
	vars.SetVar("unit", "mm")

	return Snapshot{
		DocumentID:    uuid.New(),
		CurrentBlock:  0,
		MaxObjectID:   3,
		HandleCounter: 0x14,
		SavedAt:       time.Date(2024, 5, 1, 12, 0, 0, 42, time.UTC),
		Objects:       []*model.Object{line, layer, vars, block},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openMem(t)
	ctx := context.Background()
	snap := sampleSnapshot()

	require.NoError(t, s.SaveSnapshot(ctx, snap))
	ok, err := s.HasSnapshot()
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.DocumentID, got.DocumentID)
	assert.Equal(t, snap.CurrentBlock, got.CurrentBlock)
	assert.Equal(t, snap.MaxObjectID, got.MaxObjectID)
	assert.Equal(t, snap.HandleCounter, got.HandleCounter)
	assert.True(t, snap.SavedAt.Equal(got.SavedAt))

	require.Len(t, got.Objects, 4)
	for i, obj := range got.Objects {
		assert.Equal(t, types.ObjectID(i), obj.ID)
	}
	assert.Equal(t, model.ModelSpaceName, got.Objects[0].Name)
	assert.True(t, got.Objects[0].Block.ModelSpace)
	assert.Equal(t, "red", got.Objects[1].Layer.Color)
	assert.Equal(t, types.Handle(0x12), got.Objects[2].Handle)
	assert.Equal(t, types.ObjectID(1), got.Objects[2].Entity.LayerID)
	assert.Equal(t, types.InvalidID, got.Objects[2].Entity.ParentID)
	assert.True(t, got.Objects[2].Entity.Shapes[0].Equal(model.Segment(types.NewVector(0, 0, 0), types.NewVector(3, 4, 0))))
	assert.Equal(t, "mm", got.Objects[3].Var("unit"))
}

func TestSaveDropsStaleObjects(t *testing.T) {
	s := openMem(t)
	ctx := context.Background()
	snap := sampleSnapshot()
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	snap.Objects = snap.Objects[1:]
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Objects, 3)
	for _, obj := range got.Objects {
		assert.NotEqual(t, types.ObjectID(2), obj.ID)
	}
}

func TestLoadWithoutSnapshot(t *testing.T) {
	s := openMem(t)
	_, err := s.LoadSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.True(t, Error.Has(err))

	ok, err := s.HasSnapshot()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveRejectsObjectWithoutHandle(t *testing.T) {
	s := openMem(t)
	snap := sampleSnapshot()
	snap.Objects[0].Handle = types.InvalidHandle

	err := s.SaveSnapshot(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, Error.Has(err))
}

func TestHeaderCodec(t *testing.T) {
	h := header{
		documentID:    uuid.New(),
		currentBlock:  7,
		maxObjectID:   99,
		handleCounter: 0x7fffffffffff,
		savedAt:       time.Unix(1700000000, 5).UTC(),
		objects:       12,
	}
	raw, err := encodeHeader(h)
	require.NoError(t, err)
	got, err := decodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, h.documentID, got.documentID)
	assert.Equal(t, h.handleCounter, got.handleCounter)
	assert.Equal(t, h.objects, got.objects)
	assert.True(t, h.savedAt.Equal(got.savedAt))

	_, err = decodeHeader([]byte{0xff, 0xff})
	assert.Error(t, err)
}

func TestLzmaHelpers(t *testing.T) {
	data := []byte("a line from 0,0 to 3,4 on layer Walls")
	packed, err := compressWithLzma(data)
	require.NoError(t, err)
	unpacked, err := decompressWithLzma(packed)
	require.NoError(t, err)
	assert.Equal(t, data, unpacked)
}
