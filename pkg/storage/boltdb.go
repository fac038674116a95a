package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultFileName is the journal file created inside the working directory
const DefaultFileName = ".fleetroll.db"

var (
	bucketJournal = []byte("journal")
	keyInFlight   = []byte("in_flight")
)

// Journal is a BoltDB file that serializes rollouts on one working directory
// and remembers the step of a run that has not finished yet
type Journal struct {
	db   *bolt.DB
	path string
}

// Open opens the journal and takes its exclusive file lock, waiting up to
// timeout for a running rollout to release it
func Open(path string, timeout time.Duration) (*Journal, error) {
	if timeout <= 0 {
		timeout = time.Second
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketJournal); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketJournal, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.path
}

// Close releases the lock
func (j *Journal) Close() error {
	return j.db.Close()
}

// Current returns the in-flight marker, or nil when the last run finished
func (j *Journal) Current() (*InFlight, error) {
	var entry *InFlight
	err := j.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJournal).Get(keyInFlight)
		if data == nil {
			return nil
		}
		entry = &InFlight{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entry, nil
}

// EnsureIdle fails with an *InFlightError if a previous run left a marker
func (j *Journal) EnsureIdle() error {
	entry, err := j.Current()
	if err != nil {
		return err
	}
	if entry != nil {
		return &InFlightError{Entry: entry}
	}
	return nil
}

// Record replaces the in-flight marker
func (j *Journal) Record(entry InFlight) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJournal).Put(keyInFlight, data)
	})
}

// Clear removes the in-flight marker
func (j *Journal) Clear() error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJournal).Delete(keyInFlight)
	})
}
