package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Storage keys
const (
	keyEvalPrefix = "eval/"
	keyNetPrefix  = "net/"
)

// EvalRecord is one stored evaluation.
type EvalRecord struct {
	Score  int       `json:"score"`
	FEN    string    `json:"fen,omitempty"`
	Kernel string    `json:"kernel"`
	At     time.Time `json:"at"`
}

// NetworkInfo describes a weight set seen by the store.
type NetworkInfo struct {
	Fingerprint uint64    `json:"fingerprint"`
	Source      string    `json:"source"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Storage wraps BadgerDB. Evaluations are namespaced by network fingerprint
// so results of different weight sets never mix.
type Storage struct {
	db *badger.DB
}

// NewStorage opens (or creates) the database in the default data dir.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Open opens the database in dir.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	return open(opts)
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory() (*Storage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return open(opts)
}

func open(opts badger.Options) (*Storage, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func evalKey(fingerprint, hash uint64) []byte {
	key := make([]byte, 0, len(keyEvalPrefix)+16)
	key = append(key, keyEvalPrefix...)
	key = binary.BigEndian.AppendUint64(key, fingerprint)
	return binary.BigEndian.AppendUint64(key, hash)
}

func evalPrefix(fingerprint uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(keyEvalPrefix), fingerprint)
}

func netKey(fingerprint uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(keyNetPrefix), fingerprint)
}

// SaveEval stores rec for the position hash under the given network.
func (s *Storage) SaveEval(fingerprint, hash uint64, rec EvalRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(evalKey(fingerprint, hash), data)
	})
}

// LoadEval returns the stored record; ok is false when none exists.
func (s *Storage) LoadEval(fingerprint, hash uint64) (rec EvalRecord, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(evalKey(fingerprint, hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		ok = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, ok, err
}

// CountEvals returns how many evaluations are stored for a network.
func (s *Storage) CountEvals(fingerprint uint64) (int, error) {
	prefix := evalPrefix(fingerprint)
	count := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// DropEvals deletes every evaluation stored for a network.
func (s *Storage) DropEvals(fingerprint uint64) error {
	return s.db.DropPrefix(evalPrefix(fingerprint))
}

// TouchNetwork records that a network was loaded, creating its entry on
// first sight.
func (s *Storage) TouchNetwork(fingerprint uint64, source string) (*NetworkInfo, error) {
	now := time.Now()
	info := &NetworkInfo{Fingerprint: fingerprint, Source: source, FirstSeen: now}

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(netKey(fingerprint))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, info)
			}); err != nil {
				return err
			}
		}

		info.LastSeen = now
		if source != "" {
			info.Source = source
		}
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return txn.Set(netKey(fingerprint), data)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
