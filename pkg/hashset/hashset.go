// Package hashset implements an open-addressing set of packed records.
//
// Records are copied into a BlobStore and the table holds references to them.
// Collisions are resolved by linear probing. Erased slots become tombstones so
// that probe chains stay intact; they are dropped the next time the table is
// rebuilt.
package hashset

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bubo/pkg/codec"
)

const (
	// DefaultInitialSize is the number of slots a new set starts with.
	DefaultInitialSize = 4 << 10
	// DefaultMaxSize is the largest the slot table grows to.
	DefaultMaxSize = 512 << 20

	resizeThresholdPct = 70
	tombstone          = ^Ref(0)
)

var (
	// ErrSetFull is returned by Insert when the table is at its maximum size
	// and has no free slot left.
	ErrSetFull = errors.New("hashset: set is full")

	// ErrNullRecord is returned when an empty buffer is inserted.
	ErrNullRecord = errors.New("hashset: null record")
)

// Options configure a Set.
type Options struct {
	InitialSize uint32
	MaxSize     uint32
	// Hash buckets records. Default: codec.Hash.
	Hash func([]byte) uint32
	// ChunkSize is the BlobStore allocation unit.
	ChunkSize int
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}
	if oo.InitialSize == 0 {
		oo.InitialSize = DefaultInitialSize
	}
	if oo.MaxSize == 0 {
		oo.MaxSize = DefaultMaxSize
	}
	if oo.MaxSize < oo.InitialSize {
		oo.MaxSize = oo.InitialSize
	}
	if oo.Hash == nil {
		oo.Hash = codec.Hash
	}
	return &oo
}

// Set is a set of packed records. It is not safe for concurrent use.
type Set struct {
	o     *Options
	table []Ref
	blobs *BlobStore

	live int // slots holding a record
	used int // live slots plus tombstones
}

// New returns an empty set.
func New(o *Options) *Set {
	o = o.norm()
	return &Set{
		o:     o,
		table: make([]Ref, o.InitialSize),
		blobs: NewBlobStore(o.ChunkSize),
	}
}

// Insert adds rec to the set and reports whether it was not present before.
// rec must hold exactly one record.
func (s *Set) Insert(rec []byte) (bool, error) {
	if err := checkRecord(rec); err != nil {
		return false, err
	}

	_, found, free := s.find(rec)
	if found {
		return false, nil
	}
	if free < 0 {
		return false, errors.Wrapf(ErrSetFull, "%d slots", len(s.table))
	}

	if s.table[free] != tombstone {
		s.used++
	}
	s.table[free] = s.blobs.Add(rec)
	s.live++

	s.maybeResize()
	return true, nil
}

// Contains reports whether rec is in the set.
func (s *Set) Contains(rec []byte) bool {
	if len(rec) == 0 {
		return false
	}
	_, found, _ := s.find(rec)
	return found
}

// Erase removes rec from the set and reports whether it was present. The
// record's bytes stay in the BlobStore.
func (s *Set) Erase(rec []byte) bool {
	if len(rec) == 0 {
		return false
	}
	idx, found, _ := s.find(rec)
	if !found {
		return false
	}
	s.table[idx] = tombstone
	s.live--
	return true
}

// Len returns the number of records in the set.
func (s *Set) Len() int {
	return s.live
}

// Range calls fn for every record until fn returns false. The record aliases
// internal storage and must not be modified or retained.
func (s *Set) Range(fn func(rec []byte) bool) {
	for _, ref := range s.table {
		if ref == 0 || ref == tombstone {
			continue
		}
		if !fn(s.blobs.Get(ref)) {
			return
		}
	}
}

// Clear removes every record but keeps the slot table. Blob memory is not
// released.
func (s *Set) Clear() {
	for i := range s.table {
		s.table[i] = 0
	}
	s.live, s.used = 0, 0
}

// find probes for rec. It returns the slot holding rec if found, otherwise
// the first reusable slot on the probe chain (-1 if the table has none).
func (s *Set) find(rec []byte) (idx int, found bool, free int) {
	size := len(s.table)
	free = -1
	i := int(s.o.Hash(rec) % uint32(size))
	for n := 0; n < size; n++ {
		switch ref := s.table[i]; ref {
		case 0:
			if free < 0 {
				free = i
			}
			return -1, false, free
		case tombstone:
			if free < 0 {
				free = i
			}
		default:
			if bytes.Equal(s.blobs.Get(ref), rec) {
				return i, true, -1
			}
		}
		i++
		if i == size {
			i = 0
		}
	}
	return -1, false, free
}

func (s *Set) maybeResize() {
	size := len(s.table)
	if 100*s.used <= resizeThresholdPct*size {
		return
	}
	switch {
	case uint32(size) < s.o.MaxSize:
		next := uint64(size) * 2
		if next > uint64(s.o.MaxSize) {
			next = uint64(s.o.MaxSize)
		}
		s.rehash(int(next))
	case s.used > s.live:
		s.rehash(size)
	}
}

// rehash moves every live record into a table of the given size, dropping
// tombstones.
func (s *Set) rehash(size int) {
	old := s.table
	s.table = make([]Ref, size)
	s.used = 0
	for _, ref := range old {
		if ref == 0 || ref == tombstone {
			continue
		}
		i := int(s.o.Hash(s.blobs.Get(ref)) % uint32(size))
		for s.table[i] != 0 {
			i++
			if i == size {
				i = 0
			}
		}
		s.table[i] = ref
		s.used++
	}
}

func checkRecord(rec []byte) error {
	if len(rec) == 0 {
		return ErrNullRecord
	}
	n, err := codec.RecordLength(rec)
	if err != nil {
		return err
	}
	if n != len(rec) {
		return errors.Newf("hashset: %d trailing bytes after record", len(rec)-n)
	}
	return nil
}

// Stats describes the memory held by a set.
type Stats struct {
	SpineLen           uint64 // slots in the table
	Entries            uint64 // live records
	Tombstones         uint64 // erased slots not yet reclaimed
	HTBytes            uint64 // bytes used by the slot table
	BlobAllocatedBytes uint64
	BlobUsedBytes      uint64
	Bytes              uint64 // table plus allocated blob bytes
}

// Stats returns the current statistics of the set.
func (s *Set) Stats() Stats {
	allocated, used := s.blobs.Stats()
	st := Stats{
		SpineLen:           uint64(len(s.table)),
		Entries:            uint64(s.live),
		Tombstones:         uint64(s.used - s.live),
		HTBytes:            uint64(len(s.table)) * 8,
		BlobAllocatedBytes: uint64(allocated),
		BlobUsedBytes:      uint64(used),
	}
	st.Bytes = st.HTBytes + st.BlobAllocatedBytes
	return st
}
