package attrs

import (
	"strings"
	"testing"

	"github.com/ssargent/bubo/pkg/codec"
	"github.com/ssargent/bubo/pkg/hashset"
	"github.com/ssargent/bubo/pkg/strtab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, o *Options) *Table {
	t.Helper()
	return New(strtab.New(nil), o)
}

func TestTable_Add(t *testing.T) {
	tbl := newTable(t, nil)

	existed, s, err := tbl.Add([]Attr{{"region", "eu"}, {"host", "db-01"}}, true)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, "host=db-01,region=eu", s)

	existed, s, err = tbl.Add([]Attr{{"host", "db-01"}, {"region", "eu"}}, false)
	require.NoError(t, err)
	assert.True(t, existed, "same attributes in a different order")
	assert.Empty(t, s)

	existed, _, err = tbl.Add([]Attr{{"host", "db-02"}, {"region", "eu"}}, false)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, 2, tbl.Len())
}

func TestTable_EmptyAttributeSet(t *testing.T) {
	tbl := newTable(t, nil)

	existed, s, err := tbl.Add(nil, true)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, "", s)

	rec, err := tbl.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, rec)

	ok, err := tbl.Contains([]Attr{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTable_IgnoredAttributes(t *testing.T) {
	tbl := newTable(t, &Options{Ignored: []string{"timestamp", "seq"}})

	_, s, err := tbl.Add([]Attr{{"host", "a"}, {"timestamp", "1700000000"}}, true)
	require.NoError(t, err)
	assert.Equal(t, "host=a", s)

	ok, err := tbl.Contains([]Attr{{"seq", "9"}, {"host", "a"}})
	require.NoError(t, err)
	assert.True(t, ok, "ignored tags do not change identity")

	_, found := tbl.strings.Lookup([]byte("timestamp"), []byte("1700000000"))
	assert.False(t, found, "ignored tags are never interned")
}

func TestTable_ContainsDoesNotIntern(t *testing.T) {
	tbl := newTable(t, nil)
	_, _, err := tbl.Add([]Attr{{"host", "a"}}, false)
	require.NoError(t, err)

	ok, err := tbl.Contains([]Attr{{"host", "b"}})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, tbl.Stats().Strings.Values)

	_, ok, err = tbl.Lookup([]Attr{{"zone", "a"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTable_Remove(t *testing.T) {
	tbl := newTable(t, nil)
	attrs := []Attr{{"host", "a"}, {"env", "prod"}}
	_, _, err := tbl.Add(attrs, false)
	require.NoError(t, err)

	removed, err := tbl.Remove([]Attr{{"env", "prod"}, {"host", "a"}})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = tbl.Remove(attrs)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = tbl.Remove([]Attr{{"unknown", "x"}})
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_DuplicateTag(t *testing.T) {
	tbl := newTable(t, nil)
	_, _, err := tbl.Add([]Attr{{"host", "a"}, {"host", "b"}}, false)
	assert.ErrorIs(t, err, ErrDuplicateTag)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_AttrStringTooLong(t *testing.T) {
	tbl := newTable(t, &Options{MaxAttrStringSize: 16})

	_, s, err := tbl.Add([]Attr{{"k", strings.Repeat("v", 13)}}, true)
	require.NoError(t, err, "15 bytes fit")
	assert.Len(t, s, 15)

	_, _, err = tbl.Add([]Attr{{"k", strings.Repeat("v", 14)}}, true)
	assert.ErrorIs(t, err, ErrAttrStringTooLong)
	assert.Equal(t, 1, tbl.Len(), "rejected sets are not inserted")

	_, _, err = tbl.Add([]Attr{{"k", strings.Repeat("v", 14)}}, false)
	assert.NoError(t, err, "limit only applies when the string is requested")
}

func TestTable_DecodeAndRange(t *testing.T) {
	tbl := newTable(t, nil)
	sets := [][]Attr{
		{{"host", "a"}, {"region", "eu"}},
		{{"host", "b"}},
		{},
	}
	for _, s := range sets {
		_, _, err := tbl.Add(s, false)
		require.NoError(t, err)
	}

	var decoded []string
	tbl.Range(func(rec []byte) bool {
		attrs, err := tbl.Decode(rec)
		require.NoError(t, err)
		var parts []string
		for _, a := range attrs {
			parts = append(parts, a.Tag+"="+a.Value)
		}
		decoded = append(decoded, strings.Join(parts, ","))
		return true
	})
	assert.ElementsMatch(t, []string{"host=a,region=eu", "host=b", ""}, decoded)

	_, err := tbl.Decode(codec.AppendRecord(nil, []codec.Tuple{{TagSeq: 42, ValSeq: 1}}))
	assert.Error(t, err)
}

func TestTable_InsertAndEraseRecord(t *testing.T) {
	tbl := newTable(t, nil)
	rec, err := tbl.Encode([]Attr{{"host", "a"}})
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len(), "encode does not insert")

	added, err := tbl.InsertRecord(rec)
	require.NoError(t, err)
	assert.True(t, added)

	ok, err := tbl.Contains([]Attr{{"host", "a"}})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = tbl.InsertRecord(codec.AppendRecord(nil, []codec.Tuple{{TagSeq: 1, ValSeq: 9}}))
	assert.Error(t, err, "value 9 was never interned")

	assert.True(t, tbl.EraseRecord(rec))
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_Stats(t *testing.T) {
	tbl := newTable(t, &Options{HashSet: &hashset.Options{InitialSize: 32}})
	_, _, err := tbl.Add([]Attr{{"host", "a"}, {"env", "prod"}}, false)
	require.NoError(t, err)

	st := tbl.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, uint64(32), st.HashSet.SpineLen)
	assert.Equal(t, 2, st.Strings.Tags)
	assert.Equal(t, 2, st.Strings.Values)
}
