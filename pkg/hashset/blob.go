package hashset

import (
	"github.com/cockroachdb/errors"
	"github.com/ssargent/bubo/pkg/codec"
)

const defaultChunkSize = 64 << 10

// Ref addresses a record in a BlobStore. The zero Ref addresses nothing.
type Ref uint64

func makeRef(chunk, off int) Ref {
	return Ref(uint64(chunk+1)<<32 | uint64(off))
}

func (r Ref) chunk() int  { return int(r>>32) - 1 }
func (r Ref) offset() int { return int(uint32(r)) }

// BlobStore is an append-only arena of packed records. Records are stored back
// to back without lengths; Get recovers a record's extent with
// codec.RecordLength.
type BlobStore struct {
	chunks    [][]byte
	chunkSize int
	allocated int
	used      int
}

// NewBlobStore returns an empty arena that allocates chunkSize bytes at a time.
func NewBlobStore(chunkSize int) *BlobStore {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &BlobStore{chunkSize: chunkSize}
}

// Add copies rec into the arena. rec must be a single complete record.
func (b *BlobStore) Add(rec []byte) Ref {
	last := len(b.chunks) - 1
	if last < 0 || cap(b.chunks[last])-len(b.chunks[last]) < len(rec) {
		size := b.chunkSize
		if len(rec) > size {
			size = len(rec)
		}
		b.chunks = append(b.chunks, make([]byte, 0, size))
		b.allocated += size
		last++
	}
	off := len(b.chunks[last])
	b.chunks[last] = append(b.chunks[last], rec...)
	b.used += len(rec)
	return makeRef(last, off)
}

// Get returns the record stored at ref. The result aliases the arena.
func (b *BlobStore) Get(ref Ref) []byte {
	chunk := b.chunks[ref.chunk()][ref.offset():]
	n, err := codec.RecordLength(chunk)
	if err != nil {
		panic(errors.AssertionFailedf("blob %#x: %v", ref, err))
	}
	return chunk[:n:n]
}

// Stats returns the bytes reserved by the arena and the bytes holding records.
func (b *BlobStore) Stats() (allocated, used int) {
	return b.allocated, b.used
}
