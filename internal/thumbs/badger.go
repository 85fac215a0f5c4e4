package thumbs

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Key namespace for thumbnail entries. Values are JSON-encoded entries;
// thumbnails are small enough that value-log indirection is not a concern.
const keyPrefix = "tmb:"

// BadgerStore implements Store on an embedded BadgerDB database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the thumbnail database at dbPath.
func OpenBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts = opts.WithLoggingLevel(badger.WARNING)
	// JPEG bytes do not compress further.
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open thumbnail store at %s: %w", dbPath, err)
	}
	return &BadgerStore{db: db}, nil
}

func key(path string) []byte {
	return []byte(keyPrefix + path)
}

// Get returns the entry for path.
func (s *BadgerStore) Get(path string) (*Entry, bool, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get thumbnail for %s: %w", path, err)
	}
	return &entry, true, nil
}

// Put stores entry with delete-then-insert upsert semantics.
func (s *BadgerStore) Put(entry *Entry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode thumbnail for %s: %w", entry.Path, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		k := key(entry.Path)
		if err := txn.Delete(k); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(k, val)
	})
	if err != nil {
		return fmt.Errorf("store thumbnail for %s: %w", entry.Path, err)
	}
	return nil
}

// Delete removes the entry for path, reporting whether one existed.
func (s *BadgerStore) Delete(path string) (bool, error) {
	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		k := key(path)
		if _, err := txn.Get(k); err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		removed = true
		return txn.Delete(k)
	})
	if err != nil {
		return false, fmt.Errorf("delete thumbnail for %s: %w", path, err)
	}
	return removed, nil
}

// DeletePrefix removes every entry whose source path starts with prefix.
func (s *BadgerStore) DeletePrefix(prefix string) (int, error) {
	keys, err := s.collectKeys(keyPrefix + prefix)
	if err != nil {
		return 0, err
	}
	return s.deleteKeys(keys)
}

// Paths lists every cached source path.
func (s *BadgerStore) Paths() ([]string, error) {
	var paths []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			paths = append(paths, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list thumbnail paths: %w", err)
	}
	return paths, nil
}

// Stats returns entry count and total stored bytes.
func (s *BadgerStore) Stats() (Stats, error) {
	var stats Stats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.Count++
			stats.TotalBytes += it.Item().ValueSize()
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("thumbnail stats: %w", err)
	}
	return stats, nil
}

// Clear removes all entries.
func (s *BadgerStore) Clear() (int, error) {
	keys, err := s.collectKeys(keyPrefix)
	if err != nil {
		return 0, err
	}
	return s.deleteKeys(keys)
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) collectKeys(prefix string) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan thumbnail keys: %w", err)
	}
	return keys, nil
}

// deleteKeys removes keys in batches; badger transactions have a size cap.
func (s *BadgerStore) deleteKeys(keys [][]byte) (int, error) {
	const batch = 1000
	deleted := 0
	for start := 0; start < len(keys); start += batch {
		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, k := range keys[start:end] {
				if err := txn.Delete(k); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("delete thumbnail batch: %w", err)
		}
		deleted += end - start
	}
	return deleted, nil
}
