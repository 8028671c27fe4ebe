// Package persist writes document snapshots into a badger backed key value
// store and reads them back.
//
// A snapshot is one header record plus one record per live object, keyed by
// the object handle. Saving replaces the previous snapshot in a single write
// batch, so objects deleted since the last save disappear from disk too.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-cad/internal/keyValStore"
	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
	workerpool "github.com/i5heu/ouroboros-cad/pkg/workerPool"
)

// Snapshot is the persisted state of one document.
type Snapshot struct {
	DocumentID    uuid.UUID
	CurrentBlock  types.ObjectID
	MaxObjectID   types.ObjectID
	HandleCounter types.Handle
	SavedAt       time.Time
	Objects       []*model.Object
}

type Options struct {
	Path             string
	InMemory         bool
	MinimumFreeSpace int // in GB
	Logger           *logrus.Logger
	// Workers encode and decode objects in parallel. Zero picks the pool
	// default.
	Workers int
}

type Store struct {
	kv  *keyValStore.KeyValStore
	wp  *workerpool.WorkerPool
	log *logrus.Logger
}

func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Path:             opts.Path,
		InMemory:         opts.InMemory,
		MinimumFreeSpace: opts.MinimumFreeSpace,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{
		kv:  kv,
		wp:  workerpool.NewWorkerPool(workerpool.Config{WorkerCount: opts.Workers}),
		log: opts.Logger,
	}, nil
}

func (s *Store) Close() error {
	s.wp.Close()
	return Error.Wrap(s.kv.Close())
}

type encoded struct {
	kv  keyValStore.KV
	err error
}

type decoded struct {
	obj *model.Object
	err error
}

// SaveSnapshot replaces the stored snapshot with snap.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	start := time.Now()

	room := s.wp.CreateRoom(len(snap.Objects))
	room.AsyncCollector()
	for _, obj := range snap.Objects {
		if !obj.Handle.IsValid() {
			room.GetAsyncResults()
			return Error.New("object %d has no handle", obj.ID)
		}
		obj := obj
		err := room.NewTaskWaitForFreeSlot(ctx, func() interface{} {
			data, err := encodeObject(obj)
			if err != nil {
				return encoded{err: fmt.Errorf("encode object %d: %w", obj.ID, err)}
			}
			return encoded{kv: keyValStore.KV{Key: objectKey(obj.Handle), Value: data}}
		})
		if err != nil {
			room.GetAsyncResults()
			return Error.Wrap(err)
		}
	}

	batch := make([]keyValStore.KV, 0, len(snap.Objects)+1)
	for _, r := range room.GetAsyncResults() {
		e := r.(encoded)
		if e.err != nil {
			return Error.Wrap(e.err)
		}
		batch = append(batch, e.kv)
	}

	hdr, err := encodeHeader(header{
		documentID:    snap.DocumentID,
		currentBlock:  snap.CurrentBlock,
		maxObjectID:   snap.MaxObjectID,
		handleCounter: snap.HandleCounter,
		savedAt:       snap.SavedAt,
		objects:       len(snap.Objects),
	})
	if err != nil {
		return Error.New("encode header: %v", err)
	}
	batch = append(batch, keyValStore.KV{Key: []byte(keyHeader), Value: hdr})

	deleted, err := s.kv.ReplacePrefix([]byte(prefixDoc), batch)
	if err != nil {
		return Error.Wrap(err)
	}

	s.log.WithFields(logrus.Fields{
		"document": snap.DocumentID,
		"objects":  len(snap.Objects),
		"deleted":  deleted,
		"duration": time.Since(start),
	}).Debug("snapshot saved")
	return nil
}

// LoadSnapshot reads the stored snapshot. Objects come back ordered by id.
func (s *Store) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	raw, err := s.kv.Read([]byte(keyHeader))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, Error.Wrap(err)
	}
	hdr, err := decodeHeader(raw)
	if err != nil {
		return Snapshot{}, Error.New("decode header: %v", err)
	}

	items, err := s.kv.GetItemsWithPrefix([]byte(prefixObject))
	if err != nil {
		return Snapshot{}, Error.Wrap(err)
	}
	if len(items) != hdr.objects {
		return Snapshot{}, Error.New("header lists %d objects, found %d", hdr.objects, len(items))
	}

	room := s.wp.CreateRoom(len(items))
	room.AsyncCollector()
	for _, item := range items {
		item := item
		err := room.NewTaskWaitForFreeSlot(ctx, func() interface{} {
			obj, err := decodeObject(item.Value)
			if err != nil {
				return decoded{err: fmt.Errorf("decode %s: %w", item.Key, err)}
			}
			return decoded{obj: obj}
		})
		if err != nil {
			room.GetAsyncResults()
			return Snapshot{}, Error.Wrap(err)
		}
	}

	objects := make([]*model.Object, 0, len(items))
	for _, r := range room.GetAsyncResults() {
		d := r.(decoded)
		if d.err != nil {
			return Snapshot{}, Error.Wrap(d.err)
		}
		objects = append(objects, d.obj)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })

	return Snapshot{
		DocumentID:    hdr.documentID,
		CurrentBlock:  hdr.currentBlock,
		MaxObjectID:   hdr.maxObjectID,
		HandleCounter: hdr.handleCounter,
		SavedAt:       hdr.savedAt,
		Objects:       objects,
	}, nil
}

// HasSnapshot reports whether a snapshot header is stored.
func (s *Store) HasSnapshot() (bool, error) {
	_, err := s.kv.Read([]byte(keyHeader))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, Error.Wrap(err)
}
