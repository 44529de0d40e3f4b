package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t testing.TB, path string, entries ...LogEntry) {
	t.Helper()
	writer, err := NewLogWriter(LogWriterConfig{FilePath: path})
	require.NoError(t, err)
	for _, e := range entries {
		_, err := writer.Append(e.Op, e.Record)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
}

func TestNewLogReader_NonExistentFile(t *testing.T) {
	reader, err := NewLogReader(LogReaderConfig{
		FilePath: filepath.Join(t.TempDir(), "missing.log"),
	})
	assert.Error(t, err)
	assert.Nil(t, reader)
}

func TestLogReader_ReadNext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	entries := []LogEntry{
		{Op: OpAdd, Record: rec(1, 1, 2, 2)},
		{Op: OpAdd, Record: rec()},
		{Op: OpRemove, Record: rec(1, 1, 2, 2)},
		{Op: OpAdd, Record: rec(300, 70000)},
	}
	writeLog(t, path, entries...)

	reader, err := NewLogReader(LogReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	var offset int64
	for _, want := range entries {
		got, err := reader.ReadNext()
		require.NoError(t, err)
		assert.Equal(t, want.Op, got.Op)
		assert.Equal(t, want.Record, got.Record)
		offset += int64(want.Size())
		assert.Equal(t, offset, reader.Offset())
	}

	_, err = reader.ReadNext()
	assert.Equal(t, io.EOF, err)
}

func TestLogReader_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.log")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	reader, err := NewLogReader(LogReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadNext()
	assert.Equal(t, io.EOF, err)
}

func TestLogReader_StartOffsetAndSeek(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	first := LogEntry{Op: OpAdd, Record: rec(1, 1)}
	second := LogEntry{Op: OpAdd, Record: rec(2, 2)}
	writeLog(t, path, first, second)

	reader, err := NewLogReader(LogReaderConfig{
		FilePath:    path,
		StartOffset: int64(first.Size()),
	})
	require.NoError(t, err)
	defer reader.Close()

	got, err := reader.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, second.Record, got.Record)

	require.NoError(t, reader.Seek(0))
	assert.Equal(t, int64(0), reader.Offset())
	got, err = reader.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, first.Record, got.Record)
}

func TestLogReader_Iterator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	writeLog(t, path,
		LogEntry{Op: OpAdd, Record: rec(1, 1)},
		LogEntry{Op: OpAdd, Record: rec(2, 2)},
		LogEntry{Op: OpRemove, Record: rec(1, 1)},
	)

	reader, err := NewLogReader(LogReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	it := reader.Iterator()
	defer it.Close()

	var ops []Op
	for it.Next() {
		ops = append(ops, it.Entry().Op)
	}
	assert.NoError(t, it.Err())
	assert.Equal(t, []Op{OpAdd, OpAdd, OpRemove}, ops)
}

func TestLogReader_Corruption(t *testing.T) {
	good := append([]byte{'A'}, rec(1, 1)...)

	tests := []struct {
		name string
		tail []byte
	}{
		{"torn record", []byte{'A', 2, 1}},
		{"op only", []byte{'A'}},
		{"invalid op", []byte{'X', 0}},
		{"malformed varint", []byte{'A', 0x81, 0xff, 0xff, 0xff, 0xff, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.log")
			require.NoError(t, os.WriteFile(path, append(append([]byte(nil), good...), tt.tail...), 0600))

			reader, err := NewLogReader(LogReaderConfig{FilePath: path})
			require.NoError(t, err)
			defer reader.Close()

			entry, err := reader.ReadNext()
			require.NoError(t, err)
			assert.Equal(t, rec(1, 1), entry.Record)
			assert.Equal(t, int64(len(good)), reader.Offset())

			_, err = reader.ReadNext()
			assert.ErrorIs(t, err, ErrCorruption)
			assert.Equal(t, int64(len(good)), reader.Offset())
		})
	}
}

func TestLogReader_CorruptionCause(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	writeLog(t, path, LogEntry{Op: OpAdd, Record: rec(1, 1)})
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.Write([]byte{'A', 2, 1})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reader, err := NewLogReader(LogReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadNext()
	require.NoError(t, err)

	_, err = reader.ReadNext()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruption)
	assert.True(t, errors.Is(err, ErrCorruption))
	assert.Contains(t, err.Error(), "entry at offset 4")
	assert.Contains(t, err.Error(), "truncated record")
}

func TestLogReader_EntryTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	// claims 1000 tuples but holds only a few bytes
	data := []byte{'A', 0xe8, 0x07}
	for i := 0; i < 64; i++ {
		data = append(data, 1)
	}
	require.NoError(t, os.WriteFile(path, data, 0600))

	reader, err := NewLogReader(LogReaderConfig{FilePath: path, MaxEntrySize: 32})
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadNext()
	assert.ErrorIs(t, err, ErrCorruption)
}

func BenchmarkLogReader_ReadNext(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.log")
	entries := make([]LogEntry, 1000)
	for i := range entries {
		entries[i] = LogEntry{Op: OpAdd, Record: rec(uint32(i+1), uint32(i+1))}
	}
	writeLog(b, path, entries...)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader, err := NewLogReader(LogReaderConfig{FilePath: path})
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := reader.ReadNext(); err != nil {
				break
			}
		}
		reader.Close()
	}
}
