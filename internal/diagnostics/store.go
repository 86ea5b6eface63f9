// ABOUTME: Badger-backed diagnostics sink for aggregation failures and backfill checkpoints.
// ABOUTME: Failure keys are ULIDs so iteration returns them oldest first.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/oklog/ulid/v2"
)

// Key prefixes for BadgerDB storage
const (
	failurePrefix    = "aggfail/"
	failureIdxPrefix = "aggidx/"
	checkpointPrefix = "ckpt/"
)

// ErrNotFound is returned when a failure id is unknown.
var ErrNotFound = errors.New("diagnostic not found")

// ErrChanged is returned by Resolve when the pair failed again after the
// caller read the entry.
var ErrChanged = errors.New("diagnostic changed since it was read")

// Failure is one (user, date) whose aggregation failed after its enrichment
// was stored. Repeated failures of the same pair update a single entry.
type Failure struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Key returns the pair the failure is for.
func (f *Failure) Key() models.UserDate {
	return models.UserDate{UserID: f.UserID, Date: f.Date}
}

// Store persists diagnostics in badger.
type Store struct {
	db *badger.DB
}

// Open opens the store in dir. An empty dir keeps everything in memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordFailure records or refreshes the failure entry for key.
func (s *Store) RecordFailure(_ context.Context, key models.UserDate, cause error) (*Failure, error) {
	now := time.Now().UTC()
	var f *Failure

	err := s.db.Update(func(txn *badger.Txn) error {
		idxKey := []byte(failureIdxPrefix + key.String())

		existing, err := getFailureByIndex(txn, idxKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing != nil {
			f = existing
		} else {
			f = &Failure{
				ID:        ulid.Make().String(),
				UserID:    key.UserID,
				Date:      key.Date,
				FirstSeen: now,
			}
		}
		f.Attempts++
		f.LastSeen = now
		if cause != nil {
			f.Error = cause.Error()
		}

		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshal failure: %w", err)
		}
		if err := txn.Set([]byte(failurePrefix+f.ID), data); err != nil {
			return fmt.Errorf("set failure: %w", err)
		}
		return txn.Set(idxKey, []byte(f.ID))
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func getFailureByIndex(txn *badger.Txn, idxKey []byte) (*Failure, error) {
	item, err := txn.Get(idxKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failure index: %w", err)
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return getFailure(txn, string(id))
}

func getFailure(txn *badger.Txn, id string) (*Failure, error) {
	item, err := txn.Get([]byte(failurePrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failure: %w", err)
	}
	var f Failure
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &f)
	}); err != nil {
		return nil, fmt.Errorf("decode failure: %w", err)
	}
	return &f, nil
}

// PendingFailures lists unresolved failures oldest first. A limit of zero or
// less returns all of them.
func (s *Store) PendingFailures(_ context.Context, limit int) ([]*Failure, error) {
	var failures []*Failure
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(failurePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var f Failure
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			}); err != nil {
				return fmt.Errorf("decode failure: %w", err)
			}
			failures = append(failures, &f)
			if limit > 0 && len(failures) >= limit {
				break
			}
		}
		return nil
	})
	return failures, err
}

// CountFailures returns the number of unresolved failures.
func (s *Store) CountFailures(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(failurePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Resolve removes a failure once its pair has been aggregated. seen is the
// entry as read before the repair; if the pair was recorded again since, the
// entry is kept and ErrChanged is returned.
func (s *Store) Resolve(_ context.Context, seen *Failure) error {
	return s.db.Update(func(txn *badger.Txn) error {
		f, err := getFailure(txn, seen.ID)
		if err != nil {
			return err
		}
		if f.Attempts != seen.Attempts || !f.LastSeen.Equal(seen.LastSeen) {
			return ErrChanged
		}
		if err := txn.Delete([]byte(failurePrefix + f.ID)); err != nil {
			return err
		}
		return txn.Delete([]byte(failureIdxPrefix + f.Key().String()))
	})
}

// MarkDone checkpoints a completed pair for a backfill run.
func (s *Store) MarkDone(_ context.Context, runID string, key models.UserDate) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(runID, key), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// IsDone reports whether a backfill run already completed key.
func (s *Store) IsDone(_ context.Context, runID string, key models.UserDate) (bool, error) {
	done := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(checkpointKey(runID, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

// ClearRun drops every checkpoint of a backfill run.
func (s *Store) ClearRun(_ context.Context, runID string) error {
	return s.db.DropPrefix([]byte(checkpointPrefix + runID + "/"))
}

func checkpointKey(runID string, key models.UserDate) []byte {
	return []byte(checkpointPrefix + runID + "/" + key.String())
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}
