// Package seedstore persists failing simulation runs so their seeds can be
// replayed later. Records are stored in a single bbolt file, grouped by
// test name.
package seedstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	bolt "go.etcd.io/bbolt"
)

var failuresBucket = []byte("failures")

// A Record is one failing run of one test.
type Record struct {
	ID        string    `json:"id"`
	Test      string    `json:"test"`
	Seed      int64     `json:"seed"`
	Checksum  uint64    `json:"checksum"`
	When      time.Time `json:"when"`
	Err       string    `json:"err"`
	LogOutput []byte    `json:"log_output,omitempty"`
}

// A Store is a handle to a seedstore file. It is safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the seedstore file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening seedstore %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(failuresBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put records one failing run under the given test name. The record's ID
// and When fields are assigned by the store.
func (s *Store) Put(test string, rec Record) error {
	rec.ID = xid.New().String()
	rec.Test = test
	rec.When = time.Now().UTC()

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(failuresBucket).CreateBucketIfNotExists([]byte(test))
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), encoded)
	})
}

// Tests returns the names of all tests with recorded failures.
func (s *Store) Tests() ([]string, error) {
	var tests []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(failuresBucket).ForEachBucket(func(name []byte) error {
			tests = append(tests, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tests, nil
}

// Failures returns all recorded failures for the given test, in insertion
// order.
func (s *Store) Failures(test string) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(failuresBucket).Bucket([]byte(test))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding record %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one record by test name and id.
func (s *Store) Get(test, id string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(failuresBucket).Bucket([]byte(test))
		if b == nil {
			return fmt.Errorf("no failures recorded for test %s", test)
		}
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("no record %s for test %s", id, test)
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

// Delete removes all recorded failures for the given test.
func (s *Store) Delete(test string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(failuresBucket)
		if b.Bucket([]byte(test)) == nil {
			return nil
		}
		return b.DeleteBucket([]byte(test))
	})
}
