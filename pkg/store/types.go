package store

import (
	"time"

	"github.com/ssargent/bubo/pkg/attrs"
)

// Op is the operation a log entry records.
type Op byte

const (
	OpAdd    Op = 'A'
	OpRemove Op = 'R'
)

func (op Op) valid() bool {
	return op == OpAdd || op == OpRemove
}

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	default:
		return "invalid"
	}
}

// LogEntry is one operation in the log: an op byte followed by a packed
// record. Entries carry no length; the record frames itself.
type LogEntry struct {
	Op     Op
	Record []byte
}

// Size returns the number of bytes the entry occupies in the log.
func (e *LogEntry) Size() int {
	return 1 + len(e.Record)
}

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FilePath      string        // Path to the log file
	FsyncInterval time.Duration // How often to fsync (0 = every write)
	BufferSize    int           // Write buffer size
}

// LogReaderConfig holds configuration for the log reader
type LogReaderConfig struct {
	FilePath     string // Path to the log file
	StartOffset  int64  // Offset to start reading from
	MaxEntrySize int    // Largest entry the reader accepts (default 16MiB)
}

// StoreConfig holds configuration for the attribute store
type StoreConfig struct {
	DataDir       string        // Directory for the log and dictionary
	FsyncInterval time.Duration // Fsync interval for durability
	Attributes    attrs.Options // Ignored tags, string limit, hash set sizing
}

// EntryIterator provides streaming access to log entries
type EntryIterator interface {
	Next() bool
	Entry() *LogEntry
	Err() error
	Close() error
}

// RecoveryResult describes what Open found in the log.
type RecoveryResult struct {
	EntriesReplayed int64
	BytesTruncated  int64
	FileSizeBefore  int64
	FileSizeAfter   int64
	StringsLoaded   int
	RecoveryTime    time.Duration
}

// StoreStats holds statistics about the store
type StoreStats struct {
	StoreID string        `json:"store_id"`
	Entries int           `json:"entries"`
	LogSize int64         `json:"log_size"`
	Uptime  time.Duration `json:"uptime"`
	Attrs   attrs.Stats   `json:"attrs"`
}

// Errors
var (
	ErrStoreClosed = &StoreError{"store is not open"}
	ErrCorruption  = &StoreError{"data corruption detected"}
	ErrInvalidOp   = &StoreError{"invalid log operation"}
	ErrStoreOpen   = &StoreError{"store is already open"}
)

// StoreError represents an attribute store error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}
