package store

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/grailbio/base/log"
	"github.com/ssargent/bubo/pkg/attrs"
	"github.com/ssargent/bubo/pkg/codec"
	"github.com/ssargent/bubo/pkg/hashset"
	"github.com/ssargent/bubo/pkg/storage"
	"github.com/ssargent/bubo/pkg/strtab"
)

const (
	// LogFileName is the operation log inside the data directory.
	LogFileName = "attrs.log"
	// DictDirName is the pebble dictionary inside the data directory.
	DictDirName = "dict"
)

// AttrStore is a durable set of attribute sets. Every added or removed set is
// appended to an operation log; the strings its records refer to live in a
// pebble dictionary. All methods are safe for concurrent use.
type AttrStore struct {
	config  StoreConfig
	logFile string

	dict    *storage.Dictionary
	strings *strtab.Table
	table   *attrs.Table
	writer  *LogWriter

	mutex    sync.Mutex
	isOpen   bool
	openedAt time.Time
}

// NewAttrStore creates a store rooted at config.DataDir. Call Open before use.
func NewAttrStore(config StoreConfig) (*AttrStore, error) {
	if config.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	return &AttrStore{
		config:  config,
		logFile: filepath.Join(config.DataDir, LogFileName),
	}, nil
}

// Open loads the dictionary and replays the log. A log that ends in a torn or
// corrupt entry is truncated to its last valid entry.
func (s *AttrStore) Open() (*RecoveryResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isOpen {
		return nil, ErrStoreOpen
	}

	start := time.Now()
	if err := os.MkdirAll(s.config.DataDir, 0750); err != nil {
		return nil, err
	}

	dict, err := storage.OpenDictionary(filepath.Join(s.config.DataDir, DictDirName))
	if err != nil {
		return nil, err
	}
	strings := strtab.New(dict)
	loaded, err := dict.Load(strings)
	if err != nil {
		dict.Close()
		return nil, errors.Wrap(err, "load dictionary")
	}

	table := attrs.New(strings, &s.config.Attributes)
	result := &RecoveryResult{StringsLoaded: loaded}
	if err := recoverLog(s.logFile, table, result); err != nil {
		dict.Close()
		return nil, err
	}

	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:      s.logFile,
		FsyncInterval: s.config.FsyncInterval,
		BufferSize:    4096,
	})
	if err != nil {
		dict.Close()
		return nil, err
	}

	s.dict, s.strings, s.table, s.writer = dict, strings, table, writer
	s.isOpen = true
	s.openedAt = time.Now()

	result.FileSizeAfter = writer.Size()
	result.RecoveryTime = time.Since(start)
	log.Printf("store %s: %d strings, %d entries replayed, %d attribute sets in %v",
		dict.ID(), loaded, result.EntriesReplayed, table.Len(), result.RecoveryTime)
	return result, nil
}

// recoverLog replays path into table and truncates whatever follows the last
// entry that could be applied.
func recoverLog(path string, table *attrs.Table, result *RecoveryResult) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	result.FileSizeBefore = info.Size()

	reader, err := NewLogReader(LogReaderConfig{FilePath: path})
	if err != nil {
		return err
	}
	defer reader.Close()

	it := reader.Iterator()
	defer it.Close()

	var validEnd int64
	for it.Next() {
		if err := applyEntry(table, it.Entry()); err != nil {
			if errors.Is(err, hashset.ErrSetFull) {
				return err
			}
			log.Error.Printf("%s: entry at offset %d: %v", path, validEnd, err)
			break
		}
		validEnd = reader.Offset()
		result.EntriesReplayed++
	}
	if err := it.Err(); err != nil {
		if !errors.Is(err, ErrCorruption) {
			return err
		}
		log.Error.Printf("%s: %v", path, err)
	}

	if validEnd < info.Size() {
		log.Printf("%s: truncating %d bytes after offset %d", path, info.Size()-validEnd, validEnd)
		if err := os.Truncate(path, validEnd); err != nil {
			return errors.Wrapf(err, "truncate %s", path)
		}
		result.BytesTruncated = info.Size() - validEnd
	}
	return nil
}

func applyEntry(table *attrs.Table, entry *LogEntry) error {
	switch entry.Op {
	case OpAdd:
		_, err := table.InsertRecord(entry.Record)
		return err
	case OpRemove:
		table.EraseRecord(entry.Record)
		return nil
	default:
		return errors.Wrapf(ErrInvalidOp, "op %#x", byte(entry.Op))
	}
}

// Add stores the attribute set and reports whether it was already present.
// With wantString the canonical "tag=value,..." form is returned as well.
func (s *AttrStore) Add(set []attrs.Attr, wantString bool) (existed bool, attrString string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return false, "", ErrStoreClosed
	}
	return s.add(set, wantString)
}

func (s *AttrStore) add(set []attrs.Attr, wantString bool) (bool, string, error) {
	existed, attrString, err := s.table.Add(set, wantString)
	if err != nil || existed {
		return existed, attrString, err
	}

	rec, _, err := s.table.Lookup(set)
	if err != nil {
		return false, "", err
	}
	if _, err := s.writer.Append(OpAdd, rec); err != nil {
		s.table.EraseRecord(rec)
		return false, "", errors.Wrap(err, "append to log")
	}
	log.Debug.Printf("added attribute set %q", attrString)
	return false, attrString, nil
}

// Contains reports whether the attribute set is stored.
func (s *AttrStore) Contains(set []attrs.Attr) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return false, ErrStoreClosed
	}
	return s.table.Contains(set)
}

// Remove deletes the attribute set and reports whether it was present.
func (s *AttrStore) Remove(set []attrs.Attr) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return false, ErrStoreClosed
	}

	rec, ok, err := s.table.Lookup(set)
	if err != nil || !ok {
		return false, err
	}
	if !s.table.EraseRecord(rec) {
		return false, nil
	}
	if _, err := s.writer.Append(OpRemove, rec); err != nil {
		if _, rerr := s.table.InsertRecord(rec); rerr != nil {
			log.Error.Printf("restore attribute set after failed remove: %v", rerr)
		}
		return false, errors.Wrap(err, "append to log")
	}
	return true, nil
}

// List returns up to limit stored attribute sets, all of them if limit is not
// positive. Sets are ordered by their attributes.
func (s *AttrStore) List(limit int) ([][]attrs.Attr, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}

	sets, err := s.decodeAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(sets, func(i, j int) bool {
		return lessAttrs(sets[i], sets[j])
	})
	if limit > 0 && len(sets) > limit {
		sets = sets[:limit]
	}
	return sets, nil
}

func (s *AttrStore) decodeAll() ([][]attrs.Attr, error) {
	sets := make([][]attrs.Attr, 0, s.table.Len())
	var err error
	s.table.Range(func(rec []byte) bool {
		var set []attrs.Attr
		if set, err = s.table.Decode(rec); err != nil {
			return false
		}
		sets = append(sets, set)
		return true
	})
	return sets, err
}

func lessAttrs(a, b []attrs.Attr) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Tag != b[i].Tag {
			return a[i].Tag < b[i].Tag
		}
		if a[i].Value != b[i].Value {
			return a[i].Value < b[i].Value
		}
	}
	return len(a) < len(b)
}

// Export writes every stored attribute set to w as a snappy-framed stream of
// literal records and returns the number of sets written.
func (s *AttrStore) Export(w io.Writer) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return 0, ErrStoreClosed
	}

	sw := snappy.NewBufferedWriter(w)
	var (
		n    int
		buf  []byte
		lits []codec.Attr
		err  error
	)
	s.table.Range(func(rec []byte) bool {
		var set []attrs.Attr
		if set, err = s.table.Decode(rec); err != nil {
			return false
		}
		lits = lits[:0]
		for _, a := range set {
			lits = append(lits, codec.Attr{Tag: []byte(a.Tag), Value: []byte(a.Value)})
		}
		buf = codec.AppendLiteralRecord(buf[:0], lits)
		if _, err = sw.Write(buf); err != nil {
			return false
		}
		n++
		return true
	})
	if err != nil {
		sw.Close()
		return n, errors.Wrap(err, "export")
	}
	return n, sw.Close()
}

// Import adds every attribute set in a stream written by Export and returns
// the number of sets that were not already present.
func (s *AttrStore) Import(r io.Reader) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return 0, ErrStoreClosed
	}

	scanner := bufio.NewScanner(snappy.NewReader(r))
	scanner.Buffer(make([]byte, 0, 64<<10), DefaultMaxEntrySize)
	scanner.Split(codec.ScanLiteralRecords)

	added := 0
	for scanner.Scan() {
		lits, _, err := codec.DecodeLiteralRecord(scanner.Bytes())
		if err != nil {
			return added, errors.Wrapf(err, "import record %d", added)
		}
		set := make([]attrs.Attr, len(lits))
		for i, l := range lits {
			set[i] = attrs.Attr{Tag: string(l.Tag), Value: string(l.Value)}
		}
		existed, _, err := s.add(set, false)
		if err != nil {
			return added, err
		}
		if !existed {
			added++
		}
	}
	if err := scanner.Err(); err != nil {
		return added, errors.Wrap(err, "import")
	}
	return added, nil
}

// ID returns the store identifier kept in the dictionary.
func (s *AttrStore) ID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return ""
	}
	return s.dict.ID().String()
}

// Stats returns store statistics
func (s *AttrStore) Stats() (*StoreStats, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}
	return &StoreStats{
		StoreID: s.dict.ID().String(),
		Entries: s.table.Len(),
		LogSize: s.writer.Size(),
		Uptime:  time.Since(s.openedAt),
		Attrs:   s.table.Stats(),
	}, nil
}

// Sync flushes the log to disk.
func (s *AttrStore) Sync() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return ErrStoreClosed
	}
	return s.writer.Sync()
}

// Close syncs the log and closes the store.
func (s *AttrStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil
	}
	s.isOpen = false

	var err error
	if cerr := s.writer.Close(); cerr != nil {
		err = errors.Wrap(cerr, "close log")
	}
	if cerr := s.dict.Close(); cerr != nil {
		err = errors.CombineErrors(err, errors.Wrap(cerr, "close dictionary"))
	}
	return err
}
