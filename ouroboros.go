// Package ouroboros is the document handle of the CAD store.
//
// A Document owns an in-memory storage.Store, serializes access to it and
// optionally persists it as badger snapshots. Edits go through Transaction,
// which holds the document lock for the whole begin/commit bracket; readers
// use Read. The store itself is not safe for concurrent use.
package ouroboros

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-cad/internal/persist"
	"github.com/i5heu/ouroboros-cad/internal/spatial"
	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/query"
	"github.com/i5heu/ouroboros-cad/pkg/storage"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

var (
	ErrClosed        = errors.New("ouroboros: document closed")
	ErrNoPersistence = errors.New("ouroboros: document has no snapshot store")
)

// Names of the objects every new document starts with.
const (
	DefaultLayerName    = "0"
	DefaultLinetypeName = "CONTINUOUS"

	// VarDocumentID is the document variable holding the document uuid.
	VarDocumentID = "documentId"
)

type Document struct {
	mu     sync.Mutex
	log    *logrus.Logger
	config Config

	id      uuid.UUID
	store   *storage.Store
	persist *persist.Store

	closed    bool
	closeOnce sync.Once
	autosave  sync.WaitGroup
	stop      chan struct{}
}

// New creates a document. When persistence is configured and a snapshot is
// stored, the snapshot is loaded; otherwise the document starts with the
// default objects.
func New(conf Config) (*Document, error) {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}

	d := &Document{
		log:    conf.Logger,
		config: conf,
		stop:   make(chan struct{}),
	}
	d.store = d.newStore()
	if err := d.bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap document: %w", err)
	}

	if !conf.persistent() {
		return d, nil
	}
	ps, err := persist.Open(persist.Options{
		Path:             conf.Path,
		InMemory:         conf.InMemory,
		MinimumFreeSpace: conf.MinimumFreeGB,
		Logger:           conf.Logger,
		Workers:          conf.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	d.persist = ps

	err = d.Load(context.Background())
	if err != nil && !errors.Is(err, persist.ErrNoSnapshot) {
		_ = ps.Close()
		return nil, err
	}
	d.StartAutosave(context.Background(), conf.AutosaveInterval)
	return d, nil
}

func (d *Document) newStore() *storage.Store {
	opts := spatial.DefaultOptions()
	if d.config.MaxEntries > 0 {
		opts.MaxEntries = d.config.MaxEntries
	}
	if d.config.MinEntries > 0 {
		opts.MinEntries = d.config.MinEntries
	}
	opts.Logger = d.config.Logger

	return storage.New(storage.Config{
		Logger:     d.config.Logger,
		Spatial:    opts,
		Visibility: d.config.Visibility,
	})
}

// bootstrap fills the empty store with the model space, the default layer
// and linetype and the document singletons.
func (d *Document) bootstrap() error {
	d.id = uuid.New()
	s := d.store

	modelSpace := model.NewBlock(model.ModelSpaceName)
	modelSpace.Protected = true
	linetype := model.NewLinetype(DefaultLinetypeName)
	linetype.Protected = true
	vars := model.NewDocumentVariables()
	vars.SetVar(VarDocumentID, d.id.String())

	for _, obj := range []*model.Object{modelSpace, linetype, vars, model.NewDimStyle()} {
		if err := s.SaveObject(obj, false); err != nil {
			return err
		}
	}
	layer := model.NewLayer(DefaultLayerName)
	layer.Protected = true
	layer.Layer.Linetype = linetype.ID
	if err := s.SaveObject(layer, false); err != nil {
		return err
	}

	s.SetCurrentBlock(modelSpace.ID)
	s.ResetTransactionStack()
	s.SetModified(false)
	return nil
}

// ID returns the uuid of the document. It survives save and load.
func (d *Document) ID() uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Transaction runs fn inside an undoable transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (d *Document) Transaction(text string, fn func(tx *storage.Transaction) error) error {
	return d.transaction(text, true, fn)
}

// NonUndoable runs fn inside a transaction that is not recorded in the undo
// history.
func (d *Document) NonUndoable(text string, fn func(tx *storage.Transaction) error) error {
	return d.transaction(text, false, fn)
}

func (d *Document) transaction(text string, undoable bool, fn func(tx *storage.Transaction) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	tx := d.store.BeginTransaction(text, undoable)
	if err := fn(tx); err != nil {
		if rbErr := d.store.RollbackTransaction(tx); rbErr != nil && !errors.Is(rbErr, storage.ErrTransactionClosed) {
			d.log.WithError(rbErr).Error("rollback failed")
		}
		return err
	}
	return d.store.CommitTransaction(tx)
}

// Group makes every transaction started by fn undo and redo as one step.
// fn receives a function to start the grouped transactions with.
func (d *Document) Group(fn func(transaction func(text string, fn func(tx *storage.Transaction) error) error) error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.store.StartTransactionGroup()
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.store.EndTransactionGroup()
		d.mu.Unlock()
	}()
	return fn(d.Transaction)
}

// Read runs fn with the store and a query engine under the document lock.
// Selection changes are fine, edits belong in Transaction.
func (d *Document) Read(fn func(s *storage.Store, q query.Engine)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.store, query.New(d.store))
}

// Undo reverts the last transaction, or transaction group, and returns the
// affected object ids.
func (d *Document) Undo() []types.ObjectID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return affected(d.store.Undo())
}

func (d *Document) Redo() []types.ObjectID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return affected(d.store.Redo())
}

func affected(txs []*storage.Transaction) []types.ObjectID {
	seen := make(storage.Affected)
	for _, tx := range txs {
		for _, id := range tx.AffectedObjects() {
			seen[id] = struct{}{}
		}
	}
	return seen.IDs()
}

// Modified reports whether the document changed since it was created,
// loaded or saved.
func (d *Document) Modified() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.IsModified()
}

// Save writes the live objects as a snapshot. Undo history and selection
// are not saved.
func (d *Document) Save(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save(ctx)
}

func (d *Document) save(ctx context.Context) error {
	if d.closed {
		return ErrClosed
	}
	if d.persist == nil {
		return ErrNoPersistence
	}

	ids := d.store.QueryAllObjects()
	objects := make([]*model.Object, 0, len(ids))
	for _, id := range ids {
		obj := d.store.QueryObject(id)
		obj.Selected, obj.SelectedWorkingSet = false, false
		objects = append(objects, obj)
	}

	err := d.persist.SaveSnapshot(ctx, persist.Snapshot{
		DocumentID:    d.id,
		CurrentBlock:  d.store.CurrentBlock(),
		MaxObjectID:   d.store.MaxObjectID(),
		HandleCounter: d.store.HandleCounter(),
		SavedAt:       time.Now(),
		Objects:       objects,
	})
	if err != nil {
		return fmt.Errorf("save document %s: %w", d.id, err)
	}
	d.store.SetModified(false)
	d.log.WithFields(logrus.Fields{
		"document": d.id,
		"objects":  len(objects),
	}).Info("document saved")
	return nil
}

// Load replaces the document with the stored snapshot and forgets the undo
// history. The snapshot is loaded into a new store, a failing load leaves
// the document as it was.
func (d *Document) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.persist == nil {
		return ErrNoPersistence
	}

	snap, err := d.persist.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	s := d.newStore()
	for _, obj := range snap.Objects {
		if err := s.SaveObject(obj, true); err != nil {
			return fmt.Errorf("load object %s: %w", obj.ID, err)
		}
	}
	s.SeedCounters(snap.MaxObjectID, snap.HandleCounter)
	s.SetCurrentBlock(snap.CurrentBlock)
	s.ResetTransactionStack()
	s.SetModified(false)
	d.store = s
	d.id = snap.DocumentID

	d.log.WithFields(logrus.Fields{
		"document": d.id,
		"objects":  len(snap.Objects),
		"savedAt":  snap.SavedAt,
	}).Info("document loaded")
	return nil
}

// StartAutosave saves the document every interval while it is modified,
// until ctx is done or the document is closed.
func (d *Document) StartAutosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 || d.persist == nil {
		return
	}
	d.autosave.Add(1)
	go func() {
		defer d.autosave.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stop:
				return
			case <-ticker.C:
				d.autosaveOnce(ctx)
			}
		}
	}()
}

func (d *Document) autosaveOnce(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.store.IsModified() {
		return
	}
	if err := d.save(ctx); err != nil {
		d.log.WithError(err).Warn("autosave failed")
	}
}

// Close stops autosave and closes the snapshot store. Unsaved changes are
// lost.
func (d *Document) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.stop)
		d.autosave.Wait()

		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed = true
		if d.persist != nil {
			err = d.persist.Close()
		}
	})
	return err
}
