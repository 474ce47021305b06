// Package cache stores prepared aggregation results in a bolt database so
// that re-running a study over an unchanged results directory skips the
// scan and recompute phase.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"compbench/table"
)

// log is the global logging variable.
var log = logging.MustGetLogger("cache")

// MAIN is the key name for all entries.
var MAIN = []byte("main")

// Entry is one cached aggregation result.
type Entry struct {
	Identifier string
	Threshold  float64
	Mode       string
	Created    time.Time
	Aggregated *table.Table
}

// IO provides cache operations on a bolt database. A nil database disables
// caching.
type IO struct {
	db *bolt.DB
}

// NewIO creates a new IO.
func NewIO(db *bolt.DB) *IO {
	return &IO{db: db}
}

// Key builds the cache key for one study configuration.
func Key(path, identifier string, threshold float64, mode string) []byte {
	return []byte(fmt.Sprintf("%s\x00%s\x00%g\x00%s", path, identifier, threshold, mode))
}

// Put saves an entry under the given key.
func (s *IO) Put(key []byte, e *Entry) error {
	e.Created = time.Now()
	data, err := json.Marshal(e)
	if err != nil {
		log.Error("Error serializing cache entry", err)
		return err
	}
	err = SaveData(s.db, key, data)
	if err != nil {
		log.Error("Error saving cache entry", err)
	}
	return err
}

// Get returns the entry stored under the given key, or nil if there is none.
func (s *IO) Get(key []byte) (*Entry, error) {
	b, err := LoadData(s.db, key)
	if err != nil || b == nil {
		return nil, err
	}

	var e *Entry
	if err = json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	if e == nil || e.Aggregated == nil {
		return nil, nil
	}

	log.Noticef("Found cached aggregation (identifier=%q, threshold=%v, from %v)",
		e.Identifier, e.Threshold, e.Created)
	return e, nil
}

// SaveData saves values in the bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}

		err = b.Put(key, data)
		return err
	})
	return err
}

// LoadData loads data from the bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}

		v := b.Get(key)
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
