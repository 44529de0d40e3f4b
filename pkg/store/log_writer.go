package store

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/grailbio/base/log"
	"github.com/ssargent/bubo/pkg/codec"
)

// LogWriter appends operations to the active log file
type LogWriter struct {
	file       *os.File
	writer     *bufio.Writer
	fsyncTimer *time.Timer
	config     LogWriterConfig
	mutex      sync.Mutex
	offset     int64 // Current write offset
}

// NewLogWriter creates a new log writer with the given configuration
func NewLogWriter(config LogWriterConfig) (*LogWriter, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			log.Error.Printf("close %s: %v", config.FilePath, closeErr)
		}
		return nil, err
	}

	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = 4096
	}

	writer := &LogWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, bufSize),
		config: config,
		offset: stat.Size(),
	}

	if config.FsyncInterval > 0 {
		writer.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			writer.mutex.Lock()
			defer writer.mutex.Unlock()
			if err := writer.sync(); err != nil {
				log.Error.Printf("fsync %s: %v", config.FilePath, err)
			}
		})
	}

	return writer, nil
}

// Append writes op and rec to the log and returns the offset of the entry.
// rec must hold exactly one packed record.
func (w *LogWriter) Append(op Op, rec []byte) (int64, error) {
	if !op.valid() {
		return 0, errors.Wrapf(ErrInvalidOp, "op %#x", byte(op))
	}
	n, err := codec.RecordLength(rec)
	if err != nil {
		return 0, err
	}
	if n == 0 || n != len(rec) {
		return 0, errors.Newf("log entry holds %d bytes, record is %d", len(rec), n)
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	if err := w.writer.WriteByte(byte(op)); err != nil {
		return 0, err
	}
	if _, err := w.writer.Write(rec); err != nil {
		return 0, err
	}

	entryOffset := w.offset
	w.offset += int64(1 + len(rec))

	if w.config.FsyncInterval == 0 {
		if err := w.sync(); err != nil {
			return 0, err
		}
	} else if w.fsyncTimer != nil {
		w.fsyncTimer.Reset(w.config.FsyncInterval)
	}

	return entryOffset, nil
}

// Sync forces a fsync to disk
func (w *LogWriter) Sync() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.sync()
}

func (w *LogWriter) sync() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close closes the log writer and ensures all data is synced
func (w *LogWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.fsyncTimer != nil {
		w.fsyncTimer.Stop()
	}

	if err := w.sync(); err != nil {
		if closeErr := w.file.Close(); closeErr != nil {
			log.Error.Printf("close %s: %v", w.config.FilePath, closeErr)
		}
		return err
	}

	return w.file.Close()
}

// Size returns the current size of the log file
func (w *LogWriter) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}
