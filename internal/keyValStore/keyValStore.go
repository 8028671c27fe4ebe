package keyValStore

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var ErrKeyNotFound = errors.New("ouroboros: key not found")

type StoreConfig struct {
	Path             string // directory of the badger files, unused in memory
	InMemory         bool
	MinimumFreeSpace int // in GB
	Logger           *logrus.Logger
}

// KV is a key value pair read from or written to the store.
type KV struct {
	Key   []byte
	Value []byte
}

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	readCounter  atomic.Uint64
	writeCounter atomic.Uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB per value log file
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	k := &KeyValStore{
		config:   config,
		log:      config.Logger,
		badgerDB: db,
	}
	if !config.InMemory {
		if err := displayDiskUsage(k.log, config.Path); err != nil {
			k.log.WithError(err).Warn("could not read disk usage")
		}
	}
	return k, nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	k.writeCounter.Add(1)
	return k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	k.readCounter.Add(1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("read %q: %w", key, ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return value, nil
}

// WriteBatch writes all pairs through a badger write batch, which splits
// them over as many transactions as needed.
func (k *KeyValStore) WriteBatch(batch []KV) error {
	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()

	for _, kv := range batch {
		k.writeCounter.Add(1)
		if err := wb.Set(kv.Key, kv.Value); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}
	return wb.Flush()
}

// ReplacePrefix writes batch and deletes every other key under prefix in
// the same write batch, so the prefix afterwards holds exactly batch. It
// returns the number of deleted keys.
func (k *KeyValStore) ReplacePrefix(prefix []byte, batch []KV) (int, error) {
	existing, err := k.KeysWithPrefix(prefix)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(batch))
	for _, kv := range batch {
		keep[string(kv.Key)] = struct{}{}
	}

	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()

	for _, kv := range batch {
		if !bytes.HasPrefix(kv.Key, prefix) {
			return 0, fmt.Errorf("key %q outside of prefix %q", kv.Key, prefix)
		}
		k.writeCounter.Add(1)
		if err := wb.Set(kv.Key, kv.Value); err != nil {
			return 0, fmt.Errorf("replace prefix: %w", err)
		}
	}
	deleted := 0
	for _, key := range existing {
		if _, ok := keep[string(key)]; ok {
			continue
		}
		k.writeCounter.Add(1)
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("replace prefix: %w", err)
		}
		deleted++
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("replace prefix: %w", err)
	}
	return deleted, nil
}

// GetItemsWithPrefix returns all keys and values with the given prefix in
// key order.
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([]KV, error) {
	var out []KV
	k.readCounter.Add(1)
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, KV{Key: item.KeyCopy(nil), Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	return out, nil
}

func (k *KeyValStore) KeysWithPrefix(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	k.readCounter.Add(1)
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan keys %q: %w", prefix, err)
	}
	return keys, nil
}

// Operations returns the number of read and write operations so far.
func (k *KeyValStore) Operations() (reads, writes uint64) {
	return k.readCounter.Load(), k.writeCounter.Load()
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.WithError(err).Warn("cleaning the key value store before close failed")
	}
	return k.badgerDB.Close()
}

// Clean syncs, flattens and garbage collects the value log.
func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}
	if err := k.badgerDB.Sync(); err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	if err := k.badgerDB.Flatten(runtime.NumCPU()); err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB Flattened")

	err := k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}
	return nil
}
