package codec

import "hash"

// Hash returns the Jenkins one-at-a-time hash of data. It is used to bucket
// records and must not be relied on for anything security related.
func Hash(data []byte) uint32 {
	return finalize(mix(0, data))
}

func mix(h uint32, data []byte) uint32 {
	for _, b := range data {
		h += uint32(b)
		h += h << 10
		h ^= h >> 6
	}
	return h
}

func finalize(h uint32) uint32 {
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

type oneAtATime uint32

// New32 returns a streaming form of Hash. Sum32 may be called between writes;
// it does not change the running state.
func New32() hash.Hash32 {
	var h oneAtATime
	return &h
}

func (h *oneAtATime) Write(p []byte) (int, error) {
	*h = oneAtATime(mix(uint32(*h), p))
	return len(p), nil
}

func (h *oneAtATime) Sum32() uint32 { return finalize(uint32(*h)) }

func (h *oneAtATime) Sum(b []byte) []byte {
	s := h.Sum32()
	return append(b, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (h *oneAtATime) Reset()         { *h = 0 }
func (h *oneAtATime) Size() int      { return 4 }
func (h *oneAtATime) BlockSize() int { return 1 }
