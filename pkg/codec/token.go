package codec

import (
	"bytes"
	"sort"
)

// Token is a (tag, value) pair being canonicalized. Tag and Value are views
// into storage owned by the caller; a Token is only meaningful for the
// duration of the sort that uses it.
type Token struct {
	Tag    []byte
	Value  []byte
	TagSeq uint32
	ValSeq uint32
}

// Tuple returns the sequence-number pair that is written to a record.
func (t Token) Tuple() Tuple {
	return Tuple{TagSeq: t.TagSeq, ValSeq: t.ValSeq}
}

// CompareTokens orders tokens by the bytes of their tags. Values and sequence
// numbers do not take part in the comparison.
func CompareTokens(a, b Token) int {
	return bytes.Compare(a.Tag, b.Tag)
}

// SortTokens sorts tokens into canonical order. Tokens with equal tags keep
// their relative order.
func SortTokens(tokens []Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		return CompareTokens(tokens[i], tokens[j]) < 0
	})
}

// EncodeTokens sorts tokens in place and appends the resulting record to dst.
// Any permutation of the same tokens with distinct tags encodes to the same
// bytes.
func EncodeTokens(dst []byte, tokens []Token) []byte {
	SortTokens(tokens)
	dst = AppendUvarint32(dst, uint32(len(tokens)))
	for _, t := range tokens {
		dst = AppendUvarint32(dst, t.TagSeq)
		dst = AppendUvarint32(dst, t.ValSeq)
	}
	return dst
}
