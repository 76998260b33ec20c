// Package objectstore implements the hash-indexed mapping of object name to
// historylog.Log described in spec.md §4.1: a fixed 1019-bucket open hash
// table keyed by a process-random, case-insensitive keyed hash, grounded on
// hbm_find_object/hbm_find_or_add_object in the original C module.
package objectstore

import (
	"crypto/rand"
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/adred-codev/chanhistory/internal/historylog"
)

// Buckets is the fixed bucket count (a prime), matching
// HISTORY_BACKEND_MEM_HASH_TABLE_SIZE in the original module.
const Buckets = 1019

// Store is the ObjectStore: a chained hash table of Logs. The key used for
// hashing is sampled once from a secure random source and never persisted
// (spec.md §4.1): it only mitigates in-process collision attacks, not a
// durable property of the on-disk format.
type Store struct {
	key     uint64
	buckets [Buckets][]*historylog.Log
}

// New creates an empty Store with a fresh random hash key.
func New() *Store {
	var keyBytes [8]byte
	if _, err := rand.Read(keyBytes[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to a fixed key rather than panicking, since
		// the key only hardens against in-process hash-flooding, it is
		// not a security boundary on its own.
		keyBytes = [8]byte{0xde, 0xad, 0xbe, 0xef, 0xfe, 0xed, 0xfa, 0xce}
	}
	return &Store{key: binary.LittleEndian.Uint64(keyBytes[:])}
}

func (s *Store) bucket(name string) int {
	h := xxhash.New()
	var keyBuf [8]byte
	binary.LittleEndian.PutUint64(keyBuf[:], s.key)
	_, _ = h.Write(keyBuf[:])
	_, _ = h.Write([]byte(strings.ToLower(name)))
	return int(h.Sum64() % Buckets)
}

// Find looks up a Log by name, case-insensitively. O(1) expected.
func (s *Store) Find(name string) *historylog.Log {
	b := s.bucket(name)
	for _, l := range s.buckets[b] {
		if strings.EqualFold(l.Name, name) {
			return l
		}
	}
	return nil
}

// FindOrInsert returns the existing Log for name, or inserts and returns a
// freshly created empty one (limits still zero — see historylog.Log.Add's
// NoLimit contract for what happens if a caller then calls Add directly).
func (s *Store) FindOrInsert(name string) *historylog.Log {
	if l := s.Find(name); l != nil {
		return l
	}
	l := historylog.New(name)
	b := s.bucket(name)
	s.buckets[b] = append(s.buckets[b], l)
	return l
}

// Remove unlinks l from its bucket chain. The caller has already freed
// l's entries (via Log.Destroy).
func (s *Store) Remove(l *historylog.Log) {
	b := s.bucket(l.Name)
	chain := s.buckets[b]
	for i, c := range chain {
		if c == l {
			s.buckets[b] = append(chain[:i], chain[i+1:]...)
			return
		}
	}
}

// Bucket exposes the chain at index i for the expiry scheduler to sweep.
func (s *Store) Bucket(i int) []*historylog.Log {
	return s.buckets[i%Buckets]
}

// All returns every Log across every bucket, for diagnostic reporting
// (the metrics gauges). Order is unspecified.
func (s *Store) All() []*historylog.Log {
	out := make([]*historylog.Log, 0)
	for _, chain := range s.buckets {
		out = append(out, chain...)
	}
	return out
}
