// Package store implements the durable backends for internal/raftledger's
// Sprint-2 hashicorp/raft variant: a bbolt-backed raft.LogStore and
// raft.StableStore over three logical buckets (raft_log, raft_vote,
// raft_meta). The in-memory backend is hashicorp/raft's own InmemStore,
// constructed in internal/raftledger, not a type in this package.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/raft"
	bolt "go.etcd.io/bbolt"
)

var (
	logBucket  = []byte("raft_log")
	voteBucket = []byte("raft_vote")
	metaBucket = []byte("raft_meta")
)

// voteKeys are the stable-store keys hashicorp/raft uses for vote
// persistence; everything else lands in raft_meta.
var voteKeys = map[string]struct{}{
	"CurrentTerm":  {},
	"LastVoteCand": {},
	"LastVoteTerm": {},
}

// BBoltStore implements both raft.LogStore and raft.StableStore over a
// single bbolt database file with the three logical buckets the ledger's
// persistence model names.
type BBoltStore struct {
	db *bolt.DB
}

var (
	_ raft.LogStore    = (*BBoltStore)(nil)
	_ raft.StableStore = (*BBoltStore)(nil)
)

// Open creates or opens a bbolt database at path and ensures its three
// buckets exist.
func Open(path string) (*BBoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{logBucket, voteBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &BBoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BBoltStore) Close() error {
	return s.db.Close()
}

func logKey(index uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], index)
	return b[:]
}

func encodeLog(l *raft.Log) []byte {
	buf := make([]byte, 0, 8+1+4+len(l.Data)+4+len(l.Extensions))
	var term [8]byte
	binary.BigEndian.PutUint64(term[:], l.Term)
	buf = append(buf, term[:]...)
	buf = append(buf, byte(l.Type))

	var dlen [4]byte
	binary.BigEndian.PutUint32(dlen[:], uint32(len(l.Data)))
	buf = append(buf, dlen[:]...)
	buf = append(buf, l.Data...)

	var elen [4]byte
	binary.BigEndian.PutUint32(elen[:], uint32(len(l.Extensions)))
	buf = append(buf, elen[:]...)
	buf = append(buf, l.Extensions...)
	return buf
}

func decodeLog(index uint64, b []byte) (*raft.Log, error) {
	if len(b) < 8+1+4 {
		return nil, errors.New("store: truncated log record")
	}
	term := binary.BigEndian.Uint64(b[0:8])
	typ := raft.LogType(b[8])
	b = b[9:]

	dlen := int(binary.BigEndian.Uint32(b[0:4]))
	b = b[4:]
	if len(b) < dlen+4 {
		return nil, errors.New("store: truncated log data")
	}
	data := b[:dlen]
	b = b[dlen:]

	elen := int(binary.BigEndian.Uint32(b[0:4]))
	b = b[4:]
	if len(b) < elen {
		return nil, errors.New("store: truncated log extensions")
	}
	ext := b[:elen]

	return &raft.Log{Index: index, Term: term, Type: typ, Data: data, Extensions: ext}, nil
}

// FirstIndex returns the first index written, 0 if the log is empty.
func (s *BBoltStore) FirstIndex() (uint64, error) {
	var idx uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(logBucket).Cursor()
		k, _ := c.First()
		if k != nil {
			idx = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return idx, err
}

// LastIndex returns the last index written, 0 if the log is empty.
func (s *BBoltStore) LastIndex() (uint64, error) {
	var idx uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(logBucket).Cursor()
		k, _ := c.Last()
		if k != nil {
			idx = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return idx, err
}

// GetLog fills log with the entry at index.
func (s *BBoltStore) GetLog(index uint64, log *raft.Log) error {
	return s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(logBucket).Get(logKey(index))
		if v == nil {
			return raft.ErrLogNotFound
		}
		decoded, err := decodeLog(index, v)
		if err != nil {
			return err
		}
		*log = *decoded
		return nil
	})
}

// StoreLog stores a single log entry.
func (s *BBoltStore) StoreLog(log *raft.Log) error {
	return s.StoreLogs([]*raft.Log{log})
}

// StoreLogs stores multiple log entries in one transaction, flushing
// before returning so raft's append callback always observes durable state.
func (s *BBoltStore) StoreLogs(logs []*raft.Log) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(logBucket)
		for _, l := range logs {
			if err := b.Put(logKey(l.Index), encodeLog(l)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRange removes log entries in [min, max], used for both truncation
// of uncommitted tail entries and log compaction after a snapshot.
func (s *BBoltStore) DeleteRange(min, max uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(logBucket)
		c := b.Cursor()
		for k, _ := c.Seek(logKey(min)); k != nil; k, _ = c.Next() {
			idx := binary.BigEndian.Uint64(k)
			if idx > max {
				break
			}
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func bucketFor(key []byte) []byte {
	if _, ok := voteKeys[string(key)]; ok {
		return voteBucket
	}
	return metaBucket
}

// Set stores a stable-store key/value pair, routed to raft_vote for the
// three vote-persistence keys and raft_meta otherwise.
func (s *BBoltStore) Set(key, val []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFor(key)).Put(key, val)
	})
}

// Get retrieves a stable-store value, or nil if key was never set.
func (s *BBoltStore) Get(key []byte) ([]byte, error) {
	var v []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(bucketFor(key)).Get(key)
		if stored != nil {
			v = append([]byte(nil), stored...)
		}
		return nil
	})
	return v, err
}

// SetUint64 is a convenience wrapper storing val as 8 big-endian bytes.
func (s *BBoltStore) SetUint64(key []byte, val uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], val)
	return s.Set(key, b[:])
}

// GetUint64 is the inverse of SetUint64; missing keys read back as zero.
func (s *BBoltStore) GetUint64(key []byte) (uint64, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v), nil
}
