package geocoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dispatch_service/internal/domain/model"

	"github.com/dgraph-io/badger/v4"
)

const cacheKeyPrefix = "geocode/"

type cacheEntry struct {
	Location model.Location `json:"location"`
	Found    bool           `json:"found"`
}

// Cache stores geocoder answers, including misses, in badger. An empty dir
// keeps the cache in memory for the lifetime of the process.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open geocode cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) get(address string) (cacheEntry, bool, error) {
	var entry cacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(address))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return cacheEntry{}, false, nil
	}
	if err != nil {
		return cacheEntry{}, false, fmt.Errorf("read geocode cache: %w", err)
	}
	return entry, true, nil
}

func (c *Cache) set(address string, entry cacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal geocode cache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(cacheKey(address), data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// cacheKey folds case and whitespace so trivially different spellings of
// one address share an entry.
func cacheKey(address string) []byte {
	return []byte(cacheKeyPrefix + normalizeAddress(address))
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
