package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ssargent/bubo/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rec packs (tag, value) sequence pairs into a record.
func rec(seqs ...uint32) []byte {
	tuples := make([]codec.Tuple, 0, len(seqs)/2)
	for i := 0; i+1 < len(seqs); i += 2 {
		tuples = append(tuples, codec.Tuple{TagSeq: seqs[i], ValSeq: seqs[i+1]})
	}
	return codec.AppendRecord(nil, tuples)
}

func newTestWriter(t *testing.T, interval time.Duration) (*LogWriter, string) {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), "test.log")
	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:      filePath,
		FsyncInterval: interval,
		BufferSize:    4096,
	})
	require.NoError(t, err)
	return writer, filePath
}

func TestNewLogWriter(t *testing.T) {
	writer, filePath := newTestWriter(t, 0)

	assert.FileExists(t, filePath)
	assert.Equal(t, int64(0), writer.Size())

	assert.NoError(t, writer.Close())
}

func TestNewLogWriter_DirectoryCreation(t *testing.T) {
	nestedDir := filepath.Join(t.TempDir(), "nested", "deep", "path")

	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:   filepath.Join(nestedDir, "test.log"),
		BufferSize: 4096,
	})
	require.NoError(t, err)
	assert.DirExists(t, nestedDir)
	assert.NoError(t, writer.Close())
}

func TestNewLogWriter_InvalidPath(t *testing.T) {
	writer, err := NewLogWriter(LogWriterConfig{
		FilePath: "/dev/null/cannot/be/created/test.log",
	})
	assert.Error(t, err)
	assert.Nil(t, writer)
}

func TestLogWriter_Append(t *testing.T) {
	writer, filePath := newTestWriter(t, 0)

	r := rec(1, 1, 2, 2)
	offset, err := writer.Append(OpAdd, r)
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)
	assert.Equal(t, int64(1+len(r)), writer.Size())

	offset, err = writer.Append(OpRemove, r)
	require.NoError(t, err)
	assert.Equal(t, int64(1+len(r)), offset)
	require.NoError(t, writer.Close())

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	want := append([]byte{'A'}, r...)
	want = append(want, 'R')
	want = append(want, r...)
	assert.Equal(t, want, data)
}

func TestLogWriter_AppendRejectsBadInput(t *testing.T) {
	writer, _ := newTestWriter(t, 0)
	defer writer.Close()

	_, err := writer.Append(Op('X'), rec(1, 1))
	assert.ErrorIs(t, err, ErrInvalidOp)

	_, err = writer.Append(OpAdd, nil)
	assert.Error(t, err)

	_, err = writer.Append(OpAdd, append(rec(1, 1), 0))
	assert.Error(t, err, "trailing bytes")

	_, err = writer.Append(OpAdd, rec(1, 1)[:2])
	assert.ErrorIs(t, err, codec.ErrTruncatedRecord)

	assert.Equal(t, int64(0), writer.Size())
}

func TestLogWriter_EmptySet(t *testing.T) {
	writer, _ := newTestWriter(t, 0)
	defer writer.Close()

	_, err := writer.Append(OpAdd, rec())
	require.NoError(t, err)
	assert.Equal(t, int64(2), writer.Size())
}

func TestLogWriter_Reopen(t *testing.T) {
	writer, filePath := newTestWriter(t, 0)
	_, err := writer.Append(OpAdd, rec(1, 1))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	writer, err = NewLogWriter(LogWriterConfig{FilePath: filePath})
	require.NoError(t, err)
	defer writer.Close()

	assert.Equal(t, int64(4), writer.Size())
	offset, err := writer.Append(OpAdd, rec(2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(4), offset)
}

func TestLogWriter_FsyncInterval(t *testing.T) {
	writer, filePath := newTestWriter(t, 10*time.Millisecond)

	_, err := writer.Append(OpAdd, rec(1, 1))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		info, err := os.Stat(filePath)
		return err == nil && info.Size() == 4
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, writer.Sync())
	assert.NoError(t, writer.Close())
}

func TestLogWriter_ConcurrentAccess(t *testing.T) {
	writer, _ := newTestWriter(t, 0)
	defer writer.Close()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			for j := uint32(0); j < perWorker; j++ {
				_, err := writer.Append(OpAdd, rec(id+1, j+1))
				assert.NoError(t, err)
			}
		}(uint32(i))
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker*4), writer.Size())
}

func BenchmarkLogWriter_Append(b *testing.B) {
	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:      filepath.Join(b.TempDir(), "bench.log"),
		FsyncInterval: time.Second,
		BufferSize:    64 << 10,
	})
	require.NoError(b, err)
	defer writer.Close()

	r := rec(1, 1, 2, 2, 3, 3)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := writer.Append(OpAdd, r); err != nil {
			b.Fatal(err)
		}
	}
}
