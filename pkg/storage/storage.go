// Package storage persists the strings dictionary of a store in pebble.
package storage

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/bubo/pkg/codec"
	"github.com/ssargent/bubo/pkg/strtab"
)

var (
	storeIDKey = []byte("meta/store-id")
	tagPrefix  = []byte("t/")
	valPrefix  = []byte("v/")
)

// Dictionary maps interned strings to their sequence numbers. It implements
// strtab.Dictionary.
type Dictionary struct {
	db *pebble.DB
	id ksuid.KSUID
}

// OpenDictionary opens or creates the dictionary at path. A new dictionary is
// assigned a store ID.
func OpenDictionary(path string) (*Dictionary, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open dictionary %s", path)
	}
	d := &Dictionary{db: db}
	if err := d.loadID(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dictionary) loadID() error {
	data, closer, err := d.db.Get(storeIDKey)
	if errors.Is(err, pebble.ErrNotFound) {
		d.id = ksuid.New()
		return d.db.Set(storeIDKey, d.id.Bytes(), pebble.Sync)
	}
	if err != nil {
		return err
	}
	defer closer.Close()

	id, err := ksuid.FromBytes(data)
	if err != nil {
		return errors.Wrap(err, "decode store id")
	}
	d.id = id
	return nil
}

// ID identifies the store this dictionary belongs to.
func (d *Dictionary) ID() ksuid.KSUID {
	return d.id
}

func key(kind strtab.Kind, s []byte) []byte {
	prefix := valPrefix
	if kind == strtab.TagKind {
		prefix = tagPrefix
	}
	k := make([]byte, 0, len(prefix)+len(s))
	k = append(k, prefix...)
	return append(k, s...)
}

// Put records that s was interned under seq. The write is synced so that a
// log entry referencing seq is never durable before the string itself.
func (d *Dictionary) Put(kind strtab.Kind, s []byte, seq uint32) error {
	return d.db.Set(key(kind, s), codec.AppendUvarint32(nil, seq), pebble.Sync)
}

// Get returns the sequence number of s.
func (d *Dictionary) Get(kind strtab.Kind, s []byte) (uint32, bool, error) {
	data, closer, err := d.db.Get(key(kind, s))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()

	seq, _, err := codec.Uvarint32(data)
	if err != nil {
		return 0, false, errors.Wrapf(err, "dictionary entry %s %q", kind, s)
	}
	return seq, true, nil
}

// Load restores every persisted string into tbl.
func (d *Dictionary) Load(tbl *strtab.Table) (int, error) {
	n := 0
	for _, kind := range []strtab.Kind{strtab.TagKind, strtab.ValueKind} {
		prefix := key(kind, nil)
		iter, err := d.db.NewIter(&pebble.IterOptions{
			LowerBound: prefix,
			UpperBound: prefixEnd(prefix),
		})
		if err != nil {
			return n, err
		}
		for iter.First(); iter.Valid(); iter.Next() {
			s := bytes.TrimPrefix(iter.Key(), prefix)
			seq, _, err := codec.Uvarint32(iter.Value())
			if err != nil {
				iter.Close()
				return n, errors.Wrapf(err, "dictionary entry %s %q", kind, s)
			}
			if err := tbl.Restore(kind, string(s), seq); err != nil {
				iter.Close()
				return n, err
			}
			n++
		}
		if err := iter.Close(); err != nil {
			return n, err
		}
	}
	return n, tbl.Validate()
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

// Close closes the underlying database.
func (d *Dictionary) Close() error {
	return d.db.Close()
}
