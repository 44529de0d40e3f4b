package store

import (
	"bufio"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bubo/pkg/codec"
)

// DefaultMaxEntrySize bounds a single log entry.
const DefaultMaxEntrySize = 16 << 20

// LogReader provides sequential access to the entries of a log file
type LogReader struct {
	file    *os.File
	scanner *bufio.Scanner
	offset  int64
	config  LogReaderConfig
}

// NewLogReader creates a new log reader for the specified file
func NewLogReader(config LogReaderConfig) (*LogReader, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, err
	}
	if config.MaxEntrySize <= 0 {
		config.MaxEntrySize = DefaultMaxEntrySize
	}

	r := &LogReader{file: file, config: config}
	if err := r.Seek(config.StartOffset); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// ReadNext reads the entry at the current offset. It returns io.EOF at the
// clean end of the log and an error matching ErrCorruption if the log ends in
// a partial entry or holds bytes that are not an entry.
func (r *LogReader) ReadNext() (*LogEntry, error) {
	if !r.scanner.Scan() {
		err := r.scanner.Err()
		switch {
		case err == nil:
			return nil, io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			return nil, corruption(errors.Wrapf(err, "entry at offset %d", r.offset))
		default:
			return nil, errors.Wrapf(err, "entry at offset %d", r.offset)
		}
	}
	tok := r.scanner.Bytes()
	r.offset += int64(len(tok))
	return &LogEntry{
		Op:     Op(tok[0]),
		Record: append([]byte(nil), tok[1:]...),
	}, nil
}

// Seek sets the read offset
func (r *LogReader) Seek(offset int64) error {
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	r.scanner = bufio.NewScanner(r.file)
	r.scanner.Buffer(make([]byte, 0, min(64<<10, r.config.MaxEntrySize)), r.config.MaxEntrySize)
	r.scanner.Split(scanEntries)
	r.offset = offset
	return nil
}

// Offset returns the offset of the next entry
func (r *LogReader) Offset() int64 {
	return r.offset
}

// Iterator returns a streaming iterator for entries
func (r *LogReader) Iterator() EntryIterator {
	return &logEntryIterator{reader: r}
}

// Close closes the log reader
func (r *LogReader) Close() error {
	return r.file.Close()
}

// scanEntries is a bufio.SplitFunc for op-prefixed records.
func scanEntries(data []byte, atEOF bool) (int, []byte, error) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	if op := Op(data[0]); !op.valid() {
		return 0, nil, errors.Wrapf(ErrCorruption, "invalid op %#x", data[0])
	}
	if len(data) == 1 {
		if atEOF {
			return 0, nil, errors.Wrap(ErrCorruption, "entry without record")
		}
		return 0, nil, nil
	}

	n, err := codec.RecordLength(data[1:])
	switch {
	case err == nil:
		return 1 + n, data[:1+n], nil
	case errors.Is(err, codec.ErrTruncatedRecord) && !atEOF:
		return 0, nil, nil
	default:
		return 0, nil, corruption(err)
	}
}

// corruption wraps ErrCorruption around cause. The cause is kept as a
// secondary error so its details survive in verbose output.
func corruption(cause error) error {
	return errors.WithSecondaryError(errors.Wrapf(ErrCorruption, "%v", cause), cause)
}

type logEntryIterator struct {
	reader *LogReader
	entry  *LogEntry
	err    error
}

func (it *logEntryIterator) Next() bool {
	it.entry, it.err = it.reader.ReadNext()
	return it.err == nil
}

func (it *logEntryIterator) Entry() *LogEntry {
	return it.entry
}

// Err returns the error that stopped iteration, or nil at the end of the log.
func (it *logEntryIterator) Err() error {
	if it.err == io.EOF {
		return nil
	}
	return it.err
}

func (it *logEntryIterator) Close() error {
	// the reader is owned by the caller
	return nil
}
