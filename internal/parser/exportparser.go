package parser

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"journalread/internal/model"
)

const (
	// MaxFieldNameLen matches the journal's own limit on field names.
	MaxFieldNameLen = 64
	// DefaultMaxFieldSize bounds a single length-prefixed payload.
	DefaultMaxFieldSize = 768 * 1024 * 1024
)

// RecordReader is a single-pass cursor over log records. Next returns io.EOF
// once the input is exhausted.
type RecordReader interface {
	Next() (*model.LogRecord, error)
}

// ExportDecoder decodes the journal export format one entry at a time. It
// never reads further than the entry being returned needs, apart from what
// the internal read buffer holds. After the first error every call to Next
// returns that error.
type ExportDecoder struct {
	r            *bufio.Reader
	path         string
	offset       int64
	maxFieldSize uint64
	err          error
}

type DecoderOption func(*ExportDecoder)

func WithMaxFieldSize(n uint64) DecoderOption {
	return func(d *ExportDecoder) {
		d.maxFieldSize = n
	}
}

func NewExportDecoder(r io.Reader, path string, opts ...DecoderOption) *ExportDecoder {
	d := &ExportDecoder{
		r:            bufio.NewReaderSize(r, 32*1024),
		path:         path,
		maxFieldSize: DefaultMaxFieldSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Offset is the number of decoded bytes consumed so far.
func (d *ExportDecoder) Offset() int64 {
	return d.offset
}

func (d *ExportDecoder) Next() (*model.LogRecord, error) {
	if d.err != nil {
		return nil, d.err
	}
	rec, err := d.next()
	if err != nil {
		d.err = err
		if err != io.EOF {
			log.Debug().Err(err).Str("file", d.path).Int64("offset", d.offset).Msg("Export decoding stopped")
		}
		return nil, err
	}
	return rec, nil
}

func (d *ExportDecoder) next() (*model.LogRecord, error) {
	var fields []model.Field
	for {
		b, err := d.readByte()
		if err == io.EOF {
			if len(fields) == 0 {
				return nil, io.EOF
			}
			return nil, d.truncated("", "stream ended before the blank line terminating the entry")
		}
		if err != nil {
			return nil, err
		}

		if b == '\n' {
			// Blank lines before the first field are entry separators.
			if len(fields) == 0 {
				continue
			}
			return model.NewLogRecord(fields), nil
		}

		f, err := d.readField(b)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
}

// readField decodes one field whose first name byte has been consumed. The
// byte that ends the name decides the framing: '=' starts a text value, '\n'
// announces a length-prefixed binary value.
func (d *ExportDecoder) readField(first byte) (model.Field, error) {
	if first == '=' {
		return model.Field{}, d.malformed("", "empty field name")
	}
	name := []byte{first}
	var sep byte
	for {
		b, err := d.readByte()
		if err == io.EOF {
			return model.Field{}, d.truncated(string(name), "stream ended inside field name")
		}
		if err != nil {
			return model.Field{}, err
		}
		if b == '=' || b == '\n' {
			sep = b
			break
		}
		name = append(name, b)
		if len(name) > MaxFieldNameLen {
			return model.Field{}, d.malformed(string(name[:16])+"...", fmt.Sprintf("field name longer than %d bytes", MaxFieldNameLen))
		}
	}
	if err := validateFieldName(name); err != nil {
		return model.Field{}, d.malformed(string(name), err.Error())
	}

	if sep == '=' {
		return d.readTextValue(string(name))
	}
	return d.readBinaryValue(string(name))
}

func (d *ExportDecoder) readTextValue(name string) (model.Field, error) {
	line, err := d.r.ReadBytes('\n')
	d.offset += int64(len(line))
	if err == io.EOF {
		return model.Field{}, d.truncated(name, "stream ended before the end of the field line")
	}
	if err != nil {
		return model.Field{}, d.readError(err)
	}
	return model.Field{Name: name, Value: line[:len(line)-1]}, nil
}

func (d *ExportDecoder) readBinaryValue(name string) (model.Field, error) {
	var sizeBuf [8]byte
	if err := d.readFull(sizeBuf[:]); err != nil {
		if isEOF(err) {
			return model.Field{}, d.truncated(name, "stream ended inside the length prefix")
		}
		return model.Field{}, err
	}
	size := binary.LittleEndian.Uint64(sizeBuf[:])
	if size > d.maxFieldSize {
		return model.Field{}, d.malformed(name, fmt.Sprintf("declared length %d exceeds limit %d", size, d.maxFieldSize))
	}

	value := make([]byte, size)
	if err := d.readFull(value); err != nil {
		if isEOF(err) {
			return model.Field{}, d.truncated(name, fmt.Sprintf("payload shorter than declared length %d", size))
		}
		return model.Field{}, err
	}

	b, err := d.readByte()
	if err == io.EOF {
		return model.Field{}, d.truncated(name, "stream ended before the newline after the payload")
	}
	if err != nil {
		return model.Field{}, err
	}
	if b != '\n' {
		return model.Field{}, d.malformed(name, fmt.Sprintf("payload followed by 0x%02x instead of a newline", b))
	}
	return model.Field{Name: name, Value: value, Binary: true}, nil
}

func (d *ExportDecoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, d.readError(err)
	}
	d.offset++
	return b, nil
}

func (d *ExportDecoder) readFull(buf []byte) error {
	n, err := io.ReadFull(d.r, buf)
	d.offset += int64(n)
	if err != nil && !isEOF(err) {
		return d.readError(err)
	}
	return err
}

func (d *ExportDecoder) readError(err error) error {
	if errors.Is(err, ErrCompression) {
		reason := err.Error()
		if inner := errors.Unwrap(err); inner != nil {
			reason = inner.Error()
		}
		return &DecodeError{Kind: Compression, Path: d.path, Offset: d.offset, Reason: reason, Err: err}
	}
	return fmt.Errorf("read at offset %d: %w", d.offset, err)
}

func (d *ExportDecoder) truncated(field, reason string) error {
	return &DecodeError{Kind: TruncatedEntry, Path: d.path, Offset: d.offset, Field: field, Reason: reason}
}

func (d *ExportDecoder) malformed(field, reason string) error {
	return &DecodeError{Kind: MalformedFrame, Path: d.path, Offset: d.offset, Field: field, Reason: reason}
}

// isEOF reports plain end-of-input. Errors from the opener that merely wrap
// io.ErrUnexpectedEOF (a truncated gzip member) are deliberately not matched.
func isEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

// validateFieldName accepts the journal's field alphabet: ASCII letters,
// digits and underscores, not starting with a digit.
func validateFieldName(name []byte) error {
	if len(name) == 0 {
		return fmt.Errorf("empty field name")
	}
	if name[0] >= '0' && name[0] <= '9' {
		return fmt.Errorf("field name starts with a digit")
	}
	for _, c := range name {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
		default:
			return fmt.Errorf("invalid byte 0x%02x in field name", c)
		}
	}
	return nil
}
