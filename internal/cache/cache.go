// Package cache is a read-through TTL cache over an embedded Badger
// store. It serves read-mostly listing queries that tolerate slight
// staleness; the access gate and the view transition never go through it.
//
// Invalidation is tag-based: every entry registers under the tags it
// depends on, and a mutation invalidates tags rather than enumerating
// concrete keys. Concurrent misses on one key may each run the producer;
// producers are idempotent reads so the duplicate work is accepted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"pastekeep/internal/metrics"
)

const (
	entryPrefix = "entry/"
	tagPrefix   = "tag/"
)

// Cache wraps a Badger database used purely as a disposable side store.
type Cache struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open initializes the cache at dir. The directory can be deleted between
// runs without data loss.
func Open(dir string, logger *slog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{db: db, logger: logger}, nil
}

// GetOrFill returns the cached value for key, or runs fill and stores the
// result under the given tags with an absolute TTL. Cache backend errors
// degrade to calling fill directly; they never fail the read.
func (c *Cache) GetOrFill(ctx context.Context, key string, tags []string, ttl time.Duration, fill func(context.Context) ([]byte, error)) ([]byte, error) {
	var cached []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key))
		if err != nil {
			return err
		}
		cached, err = item.ValueCopy(nil)
		return err
	})
	if err == nil {
		metrics.CacheHits.Inc()
		return cached, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	metrics.CacheMisses.Inc()

	value, err := fill(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.set(key, tags, ttl, value); err != nil {
		// Best effort: an unstorable entry just means the next read
		// recomputes.
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return value, nil
}

func (c *Cache) set(key string, tags []string, ttl time.Duration, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(entryKey(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			return err
		}
		for _, tag := range tags {
			te := badger.NewEntry(tagIndexKey(tag, key), nil)
			if ttl > 0 {
				te = te.WithTTL(ttl)
			}
			if err := txn.SetEntry(te); err != nil {
				return err
			}
		}
		return nil
	})
}

// InvalidateTag drops every entry registered under tag. Failures are
// logged and swallowed: a missed invalidation means staleness bounded by
// the TTL, not incorrectness.
func (c *Cache) InvalidateTag(tag string) {
	prefix := []byte(tagPrefix + tag + "/")
	err := c.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)

		var doomed [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			doomed = append(doomed, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, tk := range doomed {
			key := string(tk[len(prefix):])
			if err := txn.Delete(entryKey(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Delete(tk); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("cache invalidation failed", "tag", tag, "error", err)
	}
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func entryKey(key string) []byte {
	return []byte(entryPrefix + key)
}

func tagIndexKey(tag, key string) []byte {
	return []byte(tagPrefix + tag + "/" + key)
}
