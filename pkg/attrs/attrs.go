// Package attrs maintains the set of distinct attribute sets seen by a store.
//
// An attribute set is canonicalized by dropping ignored tags, interning every
// tag and value in a strings table and sorting the resulting tokens by tag.
// The packed record of those tokens is the set's identity in the hash set.
package attrs

import (
	"github.com/cockroachdb/errors"
	"github.com/ssargent/bubo/pkg/codec"
	"github.com/ssargent/bubo/pkg/hashset"
	"github.com/ssargent/bubo/pkg/strtab"
)

// DefaultMaxAttrStringSize bounds the canonical attribute string.
const DefaultMaxAttrStringSize = 16 << 10

var (
	// ErrAttrStringTooLong is returned when the canonical attribute string
	// would exceed Options.MaxAttrStringSize.
	ErrAttrStringTooLong = errors.New("attrs: attribute string too long")

	// ErrDuplicateTag is returned when an attribute set names a tag twice.
	ErrDuplicateTag = errors.New("attrs: duplicate tag")
)

// Attr is a single tag=value attribute.
type Attr struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// Options configure a Table.
type Options struct {
	// Ignored lists tags that are dropped before an attribute set is encoded.
	Ignored []string
	// MaxAttrStringSize bounds the canonical string returned by Add.
	// Default: 16KiB.
	MaxAttrStringSize int
	// HashSet configures the underlying record set.
	HashSet *hashset.Options
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}
	if oo.MaxAttrStringSize < 1 {
		oo.MaxAttrStringSize = DefaultMaxAttrStringSize
	}
	return &oo
}

// Table is a set of canonical attribute sets. It is not safe for concurrent
// use.
type Table struct {
	o       *Options
	ignored map[string]struct{}
	strings *strtab.Table
	set     *hashset.Set

	tokens []codec.Token // scratch
	buf    []byte        // scratch
}

// New returns an empty table that interns strings into strings.
func New(strings *strtab.Table, o *Options) *Table {
	o = o.norm()
	ignored := make(map[string]struct{}, len(o.Ignored))
	for _, tag := range o.Ignored {
		ignored[tag] = struct{}{}
	}
	return &Table{
		o:       o,
		ignored: ignored,
		strings: strings,
		set:     hashset.New(o.HashSet),
	}
}

// Add inserts attrs and reports whether an identical set was already present.
// If wantString is true the canonical "tag=value,tag=value" form is returned
// as well.
func (t *Table) Add(attrs []Attr, wantString bool) (existed bool, attrString string, err error) {
	rec, err := t.encode(attrs, true)
	if err != nil {
		return false, "", err
	}
	if wantString {
		if attrString, err = t.attrString(); err != nil {
			return false, "", err
		}
	}
	added, err := t.set.Insert(rec)
	if err != nil {
		return false, "", err
	}
	return !added, attrString, nil
}

// Contains reports whether attrs is present. Unknown tags or values are not
// interned.
func (t *Table) Contains(attrs []Attr) (bool, error) {
	rec, err := t.encode(attrs, false)
	if err != nil || rec == nil {
		return false, err
	}
	return t.set.Contains(rec), nil
}

// Remove deletes attrs and reports whether it was present.
func (t *Table) Remove(attrs []Attr) (bool, error) {
	rec, err := t.encode(attrs, false)
	if err != nil || rec == nil {
		return false, err
	}
	return t.set.Erase(rec), nil
}

// Encode returns the canonical record for attrs, interning unknown strings.
// The result is a fresh slice.
func (t *Table) Encode(attrs []Attr) ([]byte, error) {
	rec, err := t.encode(attrs, true)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), rec...), nil
}

// Lookup returns the canonical record for attrs without interning. ok is false
// if some tag or value is unknown, in which case no stored set can match.
func (t *Table) Lookup(attrs []Attr) (rec []byte, ok bool, err error) {
	rec, err = t.encode(attrs, false)
	if err != nil || rec == nil {
		return nil, false, err
	}
	return append([]byte(nil), rec...), true, nil
}

// InsertRecord adds an already canonical record, as read back from a log.
func (t *Table) InsertRecord(rec []byte) (bool, error) {
	if err := t.checkRecord(rec); err != nil {
		return false, err
	}
	return t.set.Insert(rec)
}

// EraseRecord removes an already canonical record.
func (t *Table) EraseRecord(rec []byte) bool {
	return t.set.Erase(rec)
}

// Decode maps a record back to its attributes.
func (t *Table) Decode(rec []byte) ([]Attr, error) {
	tuples, n, err := codec.DecodeRecord(rec)
	if err != nil {
		return nil, err
	}
	if n != len(rec) {
		return nil, errors.Newf("attrs: %d trailing bytes after record", len(rec)-n)
	}
	attrs := make([]Attr, len(tuples))
	for i, tu := range tuples {
		tag, ok := t.strings.Tag(tu.TagSeq)
		if !ok {
			return nil, errors.Newf("attrs: unknown tag sequence number %d", tu.TagSeq)
		}
		val, ok := t.strings.Value(tu.ValSeq)
		if !ok {
			return nil, errors.Newf("attrs: unknown value sequence number %d", tu.ValSeq)
		}
		attrs[i] = Attr{Tag: tag, Value: val}
	}
	return attrs, nil
}

// Range calls fn with every stored record until fn returns false. The record
// must not be retained.
func (t *Table) Range(fn func(rec []byte) bool) {
	t.set.Range(fn)
}

// Len returns the number of distinct attribute sets.
func (t *Table) Len() int {
	return t.set.Len()
}

// Stats combines hash set and strings table statistics.
type Stats struct {
	Entries int           `json:"attr_entries"`
	HashSet hashset.Stats `json:"hash_set"`
	Strings strtab.Stats  `json:"strings"`
}

// Stats returns the table statistics.
func (t *Table) Stats() Stats {
	return Stats{
		Entries: t.set.Len(),
		HashSet: t.set.Stats(),
		Strings: t.strings.Stats(),
	}
}

// encode fills t.tokens with the sorted tokens of attrs and returns the record
// in t.buf. With intern false a nil record means an unknown string was seen.
func (t *Table) encode(attrs []Attr, intern bool) ([]byte, error) {
	t.tokens = t.tokens[:0]
	for _, a := range attrs {
		if _, skip := t.ignored[a.Tag]; skip {
			continue
		}
		tag, val := []byte(a.Tag), []byte(a.Value)
		if intern {
			tok, _, err := t.strings.CheckAndAdd(tag, val)
			if err != nil {
				return nil, err
			}
			t.tokens = append(t.tokens, tok)
			continue
		}
		tok, ok := t.strings.Lookup(tag, val)
		if !ok {
			return nil, nil
		}
		t.tokens = append(t.tokens, tok)
	}

	t.buf = codec.EncodeTokens(t.buf[:0], t.tokens)
	for i := 1; i < len(t.tokens); i++ {
		if t.tokens[i-1].TagSeq == t.tokens[i].TagSeq {
			return nil, errors.Wrapf(ErrDuplicateTag, "%q", t.tokens[i].Tag)
		}
	}
	return t.buf, nil
}

// attrString renders t.tokens, which encode just sorted.
func (t *Table) attrString() (string, error) {
	size := 0
	for i, tok := range t.tokens {
		if i > 0 {
			size++
		}
		size += len(tok.Tag) + 1 + len(tok.Value)
	}
	if size >= t.o.MaxAttrStringSize {
		return "", errors.Wrapf(ErrAttrStringTooLong, "%d bytes, limit %d", size, t.o.MaxAttrStringSize)
	}

	b := make([]byte, 0, size)
	for i, tok := range t.tokens {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, tok.Tag...)
		b = append(b, '=')
		b = append(b, tok.Value...)
	}
	return string(b), nil
}

func (t *Table) checkRecord(rec []byte) error {
	tuples, n, err := codec.DecodeRecord(rec)
	if err != nil {
		return err
	}
	if n != len(rec) {
		return errors.Newf("attrs: %d trailing bytes after record", len(rec)-n)
	}
	for _, tu := range tuples {
		if _, ok := t.strings.Tag(tu.TagSeq); !ok {
			return errors.Newf("attrs: unknown tag sequence number %d", tu.TagSeq)
		}
		if _, ok := t.strings.Value(tu.ValSeq); !ok {
			return errors.Newf("attrs: unknown value sequence number %d", tu.ValSeq)
		}
	}
	return nil
}
