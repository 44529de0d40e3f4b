// Package codec provides the record encoding used by bubo to store attribute sets.
//
// An attribute set is a list of (tag, value) string pairs. Before it is stored,
// every tag and value is interned into a sequence number, the pairs are sorted
// by tag and the resulting tuples are packed into a record.
//
// # Varints
//
// All integers are unsigned 32-bit base-128 varints, byte compatible with the
// unsigned varints of Protocol Buffers. Each byte carries 7 bits of the value,
// least significant group first; the high bit is set on every byte except the
// last. An encoded uint32 takes between 1 and MaxVarintLen32 (5) bytes:
//
//	0          -> 00
//	300        -> ac 02
//	4294967295 -> ff ff ff ff 0f
//
// # Record Format
//
// A packed record is a tuple count followed by two varints per tuple:
//
//	varint(N) (varint(tag_seq) varint(val_seq)){N}
//
// A record without tuples is the single byte 0x00. Because the count is known
// after the first field, RecordLength can measure a record by walking the
// continuation bits of its 2N+1 fields. Records are therefore written back to
// back with no length prefix or offset table; ScanRecords splits such a stream
// for use with bufio.Scanner.
//
// Literal records hold the tag and value bytes instead of sequence numbers and
// are used for dumps that must not depend on a particular strings table:
//
//	varint(N) (varint(len) tag varint(len) value){N}
//
// # Canonical Order
//
// Two attribute sets with the same pairs must produce the same record whatever
// order the pairs were supplied in. EncodeTokens sorts tokens by the bytes of
// their tags (CompareTokens) with a stable sort before packing them.
//
// # Hashing
//
// Hash is the Jenkins one-at-a-time hash. It is fast, order sensitive and stable
// across platforms, which is all the hash set needs for bucketing records. It is
// not collision resistant.
//
// # Error Handling
//
// Decoding never reads past the slice it is given. Running out of bytes yields
// ErrTruncatedRecord and a varint without a terminating byte in its first five
// bytes yields ErrMalformedVarint; both are wrapped with the position at which
// decoding stopped and can be matched with errors.Is.
//
// # Thread Safety
//
// All functions are stateless and may be called concurrently on disjoint
// buffers. The hash.Hash32 returned by New32 is not safe for concurrent use.
package codec
