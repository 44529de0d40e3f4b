package codec

import "github.com/cockroachdb/errors"

var (
	// ErrMalformedVarint is returned when a varint runs past MaxVarintLen32 bytes
	// without a terminating byte.
	ErrMalformedVarint = errors.New("codec: malformed varint")

	// ErrTruncatedRecord is returned when decoding would read past the end of
	// the supplied buffer.
	ErrTruncatedRecord = errors.New("codec: truncated record")
)
