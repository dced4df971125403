package storage

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Storage keys
const (
	keyStats       = "run_stats"
	keyLastRun     = "last_run"
	keyFirstLaunch = "first_launch"
)

// RunStats accumulates execution statistics across every program the CLI
// has run.
type RunStats struct {
	ProgramsRun  int               `json:"programs_run"`
	Instructions uint64            `json:"instructions"`
	ByOpcode     map[string]uint64 `json:"by_opcode"`
	TotalRunTime time.Duration     `json:"total_run_time"`
	Failures     int               `json:"failures"`
}

// NewRunStats returns empty run statistics.
func NewRunStats() *RunStats {
	return &RunStats{ByOpcode: make(map[string]uint64)}
}

// RunResult describes one completed (or failed) program execution.
type RunResult struct {
	Image        string            `json:"image"`
	Instructions uint64            `json:"instructions"`
	ByOpcode     map[string]uint64 `json:"by_opcode"`
	Duration     time.Duration     `json:"duration"`
	Failed       bool              `json:"failed"`
	When         time.Time         `json:"when"`
}

// Storage wraps BadgerDB for persistent run statistics.
type Storage struct {
	db *badger.DB
}

// NewStorage opens the database in the platform data directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Open opens (or creates) the database at dir.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// IsFirstLaunch returns true if nothing has ever been recorded.
func (s *Storage) IsFirstLaunch() (bool, error) {
	firstLaunch := true

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyFirstLaunch))
		if err == badger.ErrKeyNotFound {
			firstLaunch = true
			return nil
		}
		if err != nil {
			return err
		}
		firstLaunch = false
		return nil
	})

	return firstLaunch, err
}

// RecordRun folds one execution into the accumulated statistics and stores
// it as the most recent run.
func (s *Storage) RecordRun(res *RunResult) error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}

	stats.ProgramsRun++
	stats.Instructions += res.Instructions
	stats.TotalRunTime += res.Duration
	if res.Failed {
		stats.Failures++
	}
	for op, n := range res.ByOpcode {
		stats.ByOpcode[op] += n
	}

	res.When = time.Now()
	resData, err := json.Marshal(res)
	if err != nil {
		return err
	}
	statsData, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyLastRun), resData); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyStats), statsData); err != nil {
			return err
		}
		return txn.Set([]byte(keyFirstLaunch), []byte("done"))
	})
}

// LoadStats loads accumulated statistics, returning empty stats if nothing
// was recorded yet.
func (s *Storage) LoadStats() (*RunStats, error) {
	stats := NewRunStats()

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyStats))
		if err == badger.ErrKeyNotFound {
			return nil // Use empty stats
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, stats)
		})
	})

	return stats, err
}

// LastRun loads the most recent run record, or nil if none exists.
func (s *Storage) LastRun() (*RunResult, error) {
	var res *RunResult

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyLastRun))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			res = &RunResult{}
			return json.Unmarshal(val, res)
		})
	})

	return res, err
}
