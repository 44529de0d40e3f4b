package codec

import "github.com/cockroachdb/errors"

// Tuple is one (tag, value) pair of a packed record, each side identified by the
// sequence number its string was interned under.
type Tuple struct {
	TagSeq uint32
	ValSeq uint32
}

// RecordLength returns the number of bytes occupied by the packed record at the
// start of buf. An empty buf is the null record and has length 0. A record with
// no tuples is the single byte 0x00.
//
// Only the varint continuation bits are inspected, so a reader can step over
// back-to-back records without decoding them.
func RecordLength(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n, w, err := Uvarint32(buf)
	if err != nil {
		return 0, errors.Wrap(err, "record tuple count")
	}
	if n == 0 {
		return w, nil
	}

	off := w
	fields := 2 * uint64(n)
	for i := uint64(0); i < fields; i++ {
		fw, err := skipUvarint(buf[off:])
		if err != nil {
			return 0, errors.Wrapf(err, "record field %d at offset %d", i+1, off)
		}
		off += fw
	}
	return off, nil
}

// AppendRecord appends the packed record for tuples to dst.
func AppendRecord(dst []byte, tuples []Tuple) []byte {
	dst = AppendUvarint32(dst, uint32(len(tuples)))
	for _, t := range tuples {
		dst = AppendUvarint32(dst, t.TagSeq)
		dst = AppendUvarint32(dst, t.ValSeq)
	}
	return dst
}

// RecordSize returns the encoded size of the packed record for tuples.
func RecordSize(tuples []Tuple) int {
	n := UvarintLen32(uint32(len(tuples)))
	for _, t := range tuples {
		n += UvarintLen32(t.TagSeq) + UvarintLen32(t.ValSeq)
	}
	return n
}

// DecodeRecord decodes the packed record at the start of buf and returns its
// tuples and encoded length.
func DecodeRecord(buf []byte) ([]Tuple, int, error) {
	if len(buf) == 0 {
		return nil, 0, nil
	}
	n, off, err := Uvarint32(buf)
	if err != nil {
		return nil, 0, errors.Wrap(err, "record tuple count")
	}
	// every tuple needs at least two bytes
	if uint64(n)*2 > uint64(len(buf)-off) {
		return nil, 0, errors.Wrapf(ErrTruncatedRecord, "%d tuples in %d bytes", n, len(buf)-off)
	}

	tuples := make([]Tuple, n)
	for i := range tuples {
		tag, w, err := Uvarint32(buf[off:])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "tuple %d tag", i)
		}
		off += w
		val, w, err := Uvarint32(buf[off:])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "tuple %d value", i)
		}
		off += w
		tuples[i] = Tuple{TagSeq: tag, ValSeq: val}
	}
	return tuples, off, nil
}

// Attr is a literal (tag, value) pair.
type Attr struct {
	Tag   []byte
	Value []byte
}

// AppendLiteralRecord appends a literal record to dst. Literal records carry the
// tag and value bytes themselves, each preceded by its varint length:
//
//	varint(N) (varint(len(tag)) tag varint(len(value)) value){N}
func AppendLiteralRecord(dst []byte, attrs []Attr) []byte {
	dst = AppendUvarint32(dst, uint32(len(attrs)))
	for _, a := range attrs {
		dst = AppendUvarint32(dst, uint32(len(a.Tag)))
		dst = append(dst, a.Tag...)
		dst = AppendUvarint32(dst, uint32(len(a.Value)))
		dst = append(dst, a.Value...)
	}
	return dst
}

// LiteralRecordLength is the RecordLength counterpart for literal records.
func LiteralRecordLength(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n, off, err := Uvarint32(buf)
	if err != nil {
		return 0, errors.Wrap(err, "literal record count")
	}
	spans := 2 * uint64(n)
	for i := uint64(0); i < spans; i++ {
		l, w, err := Uvarint32(buf[off:])
		if err != nil {
			return 0, errors.Wrapf(err, "literal span %d", i)
		}
		off += w
		if uint64(l) > uint64(len(buf)-off) {
			return 0, errors.Wrapf(ErrTruncatedRecord, "literal span %d needs %d bytes, have %d", i, l, len(buf)-off)
		}
		off += int(l)
	}
	return off, nil
}

// DecodeLiteralRecord decodes the literal record at the start of buf. The
// returned attributes alias buf.
func DecodeLiteralRecord(buf []byte) ([]Attr, int, error) {
	size, err := LiteralRecordLength(buf)
	if err != nil || size == 0 {
		return nil, size, err
	}
	n, off, _ := Uvarint32(buf)
	attrs := make([]Attr, n)
	for i := range attrs {
		attrs[i].Tag, off = literalSpan(buf, off)
		attrs[i].Value, off = literalSpan(buf, off)
	}
	return attrs, size, nil
}

// literalSpan reads a span that LiteralRecordLength already validated.
func literalSpan(buf []byte, off int) ([]byte, int) {
	l, w, _ := Uvarint32(buf[off:])
	off += w
	end := off + int(l)
	return buf[off:end:end], end
}

// ScanRecords is a bufio.SplitFunc that yields packed records stored back to
// back. A partial record at EOF is reported as ErrTruncatedRecord.
func ScanRecords(data []byte, atEOF bool) (int, []byte, error) {
	return scanFramed(data, atEOF, RecordLength)
}

// ScanLiteralRecords is ScanRecords for literal records.
func ScanLiteralRecords(data []byte, atEOF bool) (int, []byte, error) {
	return scanFramed(data, atEOF, LiteralRecordLength)
}

func scanFramed(data []byte, atEOF bool, length func([]byte) (int, error)) (int, []byte, error) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	n, err := length(data)
	switch {
	case err == nil:
		return n, data[:n], nil
	case errors.Is(err, ErrTruncatedRecord) && !atEOF:
		return 0, nil, nil
	default:
		return 0, nil, err
	}
}
