package store

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ssargent/bubo/pkg/attrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(kv ...string) []attrs.Attr {
	out := make([]attrs.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, attrs.Attr{Tag: kv[i], Value: kv[i+1]})
	}
	return out
}

func openTestStore(t *testing.T, dir string, ignored ...string) (*AttrStore, *RecoveryResult) {
	t.Helper()
	s, err := NewAttrStore(StoreConfig{
		DataDir:    dir,
		Attributes: attrs.Options{Ignored: ignored},
	})
	require.NoError(t, err)
	result, err := s.Open()
	require.NoError(t, err)
	return s, result
}

func TestNewAttrStore_RequiresDataDir(t *testing.T) {
	_, err := NewAttrStore(StoreConfig{})
	assert.Error(t, err)
}

func TestAttrStore_AddContainsRemove(t *testing.T) {
	s, _ := openTestStore(t, t.TempDir())
	defer s.Close()

	existed, str, err := s.Add(set("host", "a", "dc", "east"), true)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, "dc=east,host=a", str)

	existed, _, err = s.Add(set("dc", "east", "host", "a"), false)
	require.NoError(t, err)
	assert.True(t, existed, "order of attributes does not matter")

	ok, err := s.Contains(set("host", "a", "dc", "east"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains(set("host", "b", "dc", "east"))
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := s.Remove(set("host", "a", "dc", "east"))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(set("host", "a", "dc", "east"))
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err = s.Contains(set("host", "a", "dc", "east"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAttrStore_IgnoredTags(t *testing.T) {
	s, _ := openTestStore(t, t.TempDir(), "request_id")
	defer s.Close()

	_, str, err := s.Add(set("host", "a", "request_id", "123"), true)
	require.NoError(t, err)
	assert.Equal(t, "host=a", str)

	ok, err := s.Contains(set("host", "a", "request_id", "456"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttrStore_DuplicateTag(t *testing.T) {
	s, _ := openTestStore(t, t.TempDir())
	defer s.Close()

	_, _, err := s.Add(set("host", "a", "host", "b"), false)
	assert.ErrorIs(t, err, attrs.ErrDuplicateTag)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.LogSize)
}

func TestAttrStore_Persistence(t *testing.T) {
	dir := t.TempDir()

	s, _ := openTestStore(t, dir)
	id := s.ID()
	for _, host := range []string{"a", "b", "c"} {
		_, _, err := s.Add(set("host", host, "dc", "east"), false)
		require.NoError(t, err)
	}
	_, err := s.Remove(set("host", "b", "dc", "east"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, result := openTestStore(t, dir)
	defer s.Close()

	assert.Equal(t, id, s.ID())
	assert.Equal(t, int64(4), result.EntriesReplayed)
	assert.Equal(t, int64(0), result.BytesTruncated)
	assert.Equal(t, 6, result.StringsLoaded)

	for host, want := range map[string]bool{"a": true, "b": false, "c": true} {
		ok, err := s.Contains(set("host", host, "dc", "east"))
		require.NoError(t, err)
		assert.Equal(t, want, ok, host)
	}

	// strings interned after reopening must not collide with restored ones
	_, _, err = s.Add(set("host", "d", "rack", "r1"), false)
	require.NoError(t, err)
	sets, err := s.List(0)
	require.NoError(t, err)
	assert.Equal(t, [][]attrs.Attr{
		set("dc", "east", "host", "a"),
		set("dc", "east", "host", "c"),
		set("host", "d", "rack", "r1"),
	}, sets)
}

func TestAttrStore_RecoversTornTail(t *testing.T) {
	dir := t.TempDir()

	s, _ := openTestStore(t, dir)
	_, _, err := s.Add(set("host", "a"), false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	logFile := filepath.Join(dir, LogFileName)
	before, err := os.ReadFile(logFile)
	require.NoError(t, err)

	// a half-written entry claiming three tuples
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.Write([]byte{'A', 3, 1, 1})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, result := openTestStore(t, dir)
	defer s.Close()

	assert.Equal(t, int64(1), result.EntriesReplayed)
	assert.Equal(t, int64(4), result.BytesTruncated)
	assert.Equal(t, int64(len(before)), result.FileSizeAfter)

	after, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	ok, err := s.Contains(set("host", "a"))
	require.NoError(t, err)
	assert.True(t, ok)

	// the store keeps working after recovery
	existed, _, err := s.Add(set("host", "b"), false)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestAttrStore_RecoversUnknownSequence(t *testing.T) {
	dir := t.TempDir()

	s, _ := openTestStore(t, dir)
	_, _, err := s.Add(set("host", "a"), false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// an entry referring to strings the dictionary never saw
	writeLog(t, filepath.Join(dir, LogFileName), LogEntry{Op: OpAdd, Record: rec(90, 91)})

	s, result := openTestStore(t, dir)
	defer s.Close()

	assert.Equal(t, int64(1), result.EntriesReplayed)
	assert.Equal(t, int64(len(rec(90, 91))+1), result.BytesTruncated)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestAttrStore_ExportImport(t *testing.T) {
	src, _ := openTestStore(t, t.TempDir())
	defer src.Close()

	want := [][]attrs.Attr{
		set("dc", "east", "host", "a"),
		set("dc", "west", "host", "b"),
		set(),
		set("path", "/a=b,c"),
	}
	for _, a := range want {
		_, _, err := src.Add(a, false)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	n, err := src.Export(&buf)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)

	dst, _ := openTestStore(t, t.TempDir())
	defer dst.Close()
	_, _, err = dst.Add(set("dc", "east", "host", "a"), false)
	require.NoError(t, err)

	added, err := dst.Import(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, len(want)-1, added)

	for _, a := range want {
		ok, err := dst.Contains(a)
		require.NoError(t, err)
		assert.True(t, ok, "%v", a)
	}
}

func TestAttrStore_ImportRejectsGarbage(t *testing.T) {
	s, _ := openTestStore(t, t.TempDir())
	defer s.Close()

	_, err := s.Import(bytes.NewReader([]byte("not a snappy stream")))
	assert.Error(t, err)
}

func TestAttrStore_ListLimit(t *testing.T) {
	s, _ := openTestStore(t, t.TempDir())
	defer s.Close()

	for _, host := range []string{"c", "a", "b"} {
		_, _, err := s.Add(set("host", host), false)
		require.NoError(t, err)
	}

	sets, err := s.List(2)
	require.NoError(t, err)
	assert.Equal(t, [][]attrs.Attr{set("host", "a"), set("host", "b")}, sets)
}

func TestAttrStore_Closed(t *testing.T) {
	s, _ := openTestStore(t, t.TempDir())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is harmless")

	_, _, err := s.Add(set("host", "a"), false)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Contains(set("host", "a"))
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Remove(set("host", "a"))
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.List(0)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Stats()
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.Empty(t, s.ID())
}

func TestAttrStore_OpenTwice(t *testing.T) {
	s, _ := openTestStore(t, t.TempDir())
	defer s.Close()

	_, err := s.Open()
	assert.ErrorIs(t, err, ErrStoreOpen)
}

func TestAttrStore_ConcurrentAdds(t *testing.T) {
	s, _ := openTestStore(t, t.TempDir())
	defer s.Close()

	hosts := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, h := range hosts {
				_, _, err := s.Add(set("host", h, "dc", "east"), false)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, len(hosts), stats.Entries)
	assert.Equal(t, len(hosts)+1, stats.Attrs.Strings.Values)
	assert.NotEmpty(t, stats.StoreID)
}
