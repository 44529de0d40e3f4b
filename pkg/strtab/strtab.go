// Package strtab interns attribute tags and values into sequence numbers.
//
// Tags and values live in separate spaces; each space hands out sequence
// numbers from 1 upward in the order strings are first seen. Zero is never
// assigned, so a zero sequence number in a record always indicates corruption.
package strtab

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bubo/pkg/codec"
)

// Kind selects the tag or the value space.
type Kind byte

const (
	TagKind   Kind = 't'
	ValueKind Kind = 'v'
)

func (k Kind) String() string {
	switch k {
	case TagKind:
		return "tag"
	case ValueKind:
		return "value"
	default:
		return "unknown"
	}
}

// ErrTableFull is returned when a space has handed out every sequence number.
var ErrTableFull = errors.New("strtab: sequence numbers exhausted")

// Dictionary persists newly interned strings. Put is called before the string
// becomes visible in the table; if it fails the string is not interned.
type Dictionary interface {
	Put(kind Kind, s []byte, seq uint32) error
}

// Table is a pair of string spaces. It is not safe for concurrent use.
type Table struct {
	tags   space
	values space
	dict   Dictionary
}

type space struct {
	ids   map[string]uint32
	strs  []string // strs[seq-1]
	bytes int
}

// New returns an empty table. dict may be nil.
func New(dict Dictionary) *Table {
	return &Table{
		tags:   space{ids: make(map[string]uint32)},
		values: space{ids: make(map[string]uint32)},
		dict:   dict,
	}
}

func (t *Table) space(kind Kind) *space {
	if kind == TagKind {
		return &t.tags
	}
	return &t.values
}

// CheckAndAdd interns tag and val and returns a token carrying both sequence
// numbers. The token's Tag and Value alias the arguments. found reports whether
// both strings were already known.
func (t *Table) CheckAndAdd(tag, val []byte) (tok codec.Token, found bool, err error) {
	tagSeq, tagFound, err := t.intern(TagKind, tag)
	if err != nil {
		return codec.Token{}, false, err
	}
	valSeq, valFound, err := t.intern(ValueKind, val)
	if err != nil {
		return codec.Token{}, false, err
	}
	return codec.Token{Tag: tag, Value: val, TagSeq: tagSeq, ValSeq: valSeq}, tagFound && valFound, nil
}

func (t *Table) intern(kind Kind, s []byte) (uint32, bool, error) {
	sp := t.space(kind)
	if seq, ok := sp.ids[string(s)]; ok {
		return seq, true, nil
	}
	if uint64(len(sp.strs)) >= math.MaxUint32 {
		return 0, false, errors.Wrapf(ErrTableFull, "%s space", kind)
	}
	seq := uint32(len(sp.strs) + 1)
	if t.dict != nil {
		if err := t.dict.Put(kind, s, seq); err != nil {
			return 0, false, errors.Wrapf(err, "persist %s %q", kind, s)
		}
	}
	str := string(s)
	sp.ids[str] = seq
	sp.strs = append(sp.strs, str)
	sp.bytes += len(str)
	return seq, false, nil
}

// Lookup returns the token for tag and val without interning anything. ok is
// false if either string is unknown.
func (t *Table) Lookup(tag, val []byte) (tok codec.Token, ok bool) {
	tagSeq, ok := t.tags.ids[string(tag)]
	if !ok {
		return codec.Token{}, false
	}
	valSeq, ok := t.values.ids[string(val)]
	if !ok {
		return codec.Token{}, false
	}
	return codec.Token{Tag: tag, Value: val, TagSeq: tagSeq, ValSeq: valSeq}, true
}

// Tag returns the tag interned under seq.
func (t *Table) Tag(seq uint32) (string, bool) {
	return t.tags.get(seq)
}

// Value returns the value interned under seq.
func (t *Table) Value(seq uint32) (string, bool) {
	return t.values.get(seq)
}

func (sp *space) get(seq uint32) (string, bool) {
	if seq == 0 || uint64(seq) > uint64(len(sp.strs)) {
		return "", false
	}
	s := sp.strs[seq-1]
	// holes left by an incomplete Restore map to no string
	if id, ok := sp.ids[s]; !ok || id != seq {
		return "", false
	}
	return s, true
}

// Restore loads a previously persisted string. Entries may arrive in any
// order but a string or sequence number may not be bound twice.
func (t *Table) Restore(kind Kind, s string, seq uint32) error {
	if seq == 0 {
		return errors.Newf("strtab: restore %s %q with sequence number 0", kind, s)
	}
	sp := t.space(kind)
	if prev, ok := sp.ids[s]; ok {
		return errors.Newf("strtab: %s %q already bound to %d, restoring %d", kind, s, prev, seq)
	}
	for uint64(len(sp.strs)) < uint64(seq) {
		sp.strs = append(sp.strs, "")
	}
	if cur, ok := sp.get(seq); ok {
		return errors.Newf("strtab: %s sequence %d already bound to %q, restoring %q", kind, seq, cur, s)
	}
	sp.strs[seq-1] = s
	sp.ids[s] = seq
	sp.bytes += len(s)
	return nil
}

// Validate reports an error if restored entries left unassigned sequence
// numbers.
func (t *Table) Validate() error {
	for _, kind := range []Kind{TagKind, ValueKind} {
		sp := t.space(kind)
		if len(sp.ids) != len(sp.strs) {
			return errors.Newf("strtab: %s space has %d strings for %d sequence numbers", kind, len(sp.ids), len(sp.strs))
		}
	}
	return nil
}

// Stats describes the size of a table.
type Stats struct {
	Tags   int
	Values int
	Bytes  int
}

// Stats returns the number of interned strings and their total size.
func (t *Table) Stats() Stats {
	return Stats{
		Tags:   len(t.tags.strs),
		Values: len(t.values.strs),
		Bytes:  t.tags.bytes + t.values.bytes,
	}
}
