package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"aritech2mqtt/internal/panel"
)

var (
	bucketPanel = []byte("panel")
	keyData     = []byte("data")
)

var ErrNotFound = errors.New("no cached data")

// entry wraps the cached snapshot with a write timestamp, so stale caches
// can be reported at startup.
type entry struct {
	Data      panel.CacheData `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Cache persists panel identity and entity names across restarts in a
// bolt database, so a restart can publish discovery and state without
// waiting for the name download.
type Cache struct {
	db *bolt.DB
}

func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPanel)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Save(data panel.CacheData) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(entry{Data: data, UpdatedAt: time.Now()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPanel).Put(keyData, raw)
	})
}

func (c *Cache) Load() (panel.CacheData, time.Time, error) {
	var e entry
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketPanel).Get(keyData)
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &e)
	})
	if err != nil {
		return panel.CacheData{}, time.Time{}, err
	}
	return e.Data, e.UpdatedAt, nil
}

func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPanel).Delete(keyData)
	})
}

func (c *Cache) Close() error {
	return c.db.Close()
}
