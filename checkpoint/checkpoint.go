// Package checkpoint stores optimizer checkpoints in a bolt
// database, so an interrupted fit can be resumed.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
)

// log is the package logger.
var log = logging.MustGetLogger("checkpoint")

// Version is the checkpoint format version. Checkpoints with other
// versions are ignored.
const Version = 1

var bucket = []byte("checkpoints")

// ErrVersion is returned for checkpoints written in another format.
var ErrVersion = errors.New("checkpoint: unsupported version")

// Data is the saved optimizer state.
type Data struct {
	Version    int                `json:"version"`
	Optimizer  string             `json:"optimizer"`
	Parameters map[string]float64 `json:"parameters"`
	Likelihood float64            `json:"lnL"`
	Iter       int                `json:"iter"`
	Final      bool               `json:"final"`
	Time       time.Time          `json:"time"`
}

// IO saves and loads the checkpoint of a single run. A nil database
// disables all the operations.
type IO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// Open opens or creates the database file.
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0666, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database %s: %w", path, err)
	}
	return db, nil
}

// Key returns the checkpoint key for a run description, e.g. the
// covariance family and the data file.
func Key(parts ...string) []byte {
	b, _ := json.Marshal(parts)
	return b
}

// NewIO creates a new IO. Intermediate checkpoints are saved at
// most once in the given number of seconds.
func NewIO(db *bolt.DB, key []byte, seconds float64) *IO {
	return &IO{
		db:      db,
		key:     key,
		seconds: seconds,
		last:    time.Now(),
	}
}

// Old returns true if the last checkpoint was saved too long ago.
func (s *IO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// Save saves a checkpoint. The throttling clock restarts even if
// saving fails.
func (s *IO) Save(data *Data) error {
	s.last = time.Now()
	if s.db == nil {
		return nil
	}
	data.Version = Version
	data.Time = s.last
	b, err := json.Marshal(data)
	if err == nil {
		err = s.db.Update(func(tx *bolt.Tx) error {
			bk, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}
			return bk.Put(s.key, b)
		})
	}
	if err != nil {
		log.Error("Error saving checkpoint:", err)
	}
	return err
}

// Load returns the saved checkpoint or nil if there is none.
func (s *IO) Load() (*Data, error) {
	if s.db == nil {
		return nil, nil
	}
	var b []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if bk := tx.Bucket(bucket); bk != nil {
			// the value is only valid during the transaction
			if v := bk.Get(s.key); v != nil {
				b = append([]byte(nil), v...)
			}
		}
		return nil
	})
	if err != nil || b == nil {
		return nil, err
	}

	var data Data
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	if data.Version != Version {
		return nil, fmt.Errorf("%w %d", ErrVersion, data.Version)
	}
	if len(data.Parameters) == 0 {
		return nil, nil
	}
	state := "unfinished"
	if data.Final {
		state = "finished"
	}
	log.Noticef("Found %s %s checkpoint from %v (iter=%v, lnL=%v)",
		state, data.Optimizer, data.Time.Format(time.RFC3339), data.Iter, data.Likelihood)
	return &data, nil
}

// Delete removes the checkpoint.
func (s *IO) Delete() error {
	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucket)
		if bk == nil {
			return nil
		}
		return bk.Delete(s.key)
	})
}
