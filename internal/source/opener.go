package source

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
	"github.com/xi2/xz"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionXZ   Compression = "xz"
	CompressionLZ4  Compression = "lz4"
)

var magics = []struct {
	compression Compression
	magic       []byte
}{
	{CompressionGzip, []byte{0x1f, 0x8b}},
	{CompressionZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{CompressionXZ, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{CompressionLZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
}

const sniffLen = 6

// Detect returns the compression whose magic prefixes head.
func Detect(head []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.compression
		}
	}
	return CompressionNone
}

type Opener interface {
	Open(path string) (*Stream, error)
}

type fileOpener struct{}

func NewFileOpener() Opener {
	return &fileOpener{}
}

func (o *fileOpener) Open(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "open", Err: err}
	}
	s, err := NewStream(path, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.closers = append(s.closers, f)
	return s, nil
}

// Stream is a decompressed view over one export file. It owns the
// underlying file when created by an Opener.
type Stream struct {
	Path        string
	Compression Compression

	r       io.Reader
	closers []io.Closer
	closed  bool
}

// NewStream sniffs r for a known compression magic and wraps it in the
// matching decompressor. Closing the Stream does not close r.
func NewStream(path string, r io.Reader) (*Stream, error) {
	br := bufio.NewReaderSize(&ioErrorReader{r: r, path: path}, 64*1024)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}

	s := &Stream{Path: path, Compression: Detect(head)}
	switch s.Compression {
	case CompressionNone:
		s.r = br
		log.Debug().Str("file", path).Msg("Opened uncompressed export file")
		return s, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, s.compressionError(err)
		}
		s.r = zr
		s.closers = append(s.closers, zr)
	case CompressionZstd:
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, s.compressionError(err)
		}
		s.r = zr
		s.closers = append(s.closers, closerFunc(func() error {
			zr.Close()
			return nil
		}))
	case CompressionXZ:
		xr, err := xz.NewReader(br, 0)
		if err != nil {
			return nil, s.compressionError(err)
		}
		s.r = xr
	case CompressionLZ4:
		s.r = lz4.NewReader(br)
	}
	s.r = &compressionErrorReader{r: s.r, stream: s}
	log.Debug().Str("file", path).Str("compression", string(s.Compression)).Msg("Opened compressed export file")
	return s, nil
}

func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	return s.r.Read(p)
}

// Close releases the decompressor and, for opened files, the file. It is
// safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Stream) compressionError(err error) error {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &CompressionError{Path: s.Path, Codec: s.Compression, Err: err}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ioErrorReader tags failures of the raw file read as IOError.
type ioErrorReader struct {
	r    io.Reader
	path string
}

func (e *ioErrorReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		err = &IOError{Path: e.path, Op: "read", Err: err}
	}
	return n, err
}

// compressionErrorReader tags decompressor failures as CompressionError. A
// truncated compressed stream surfaces here as io.ErrUnexpectedEOF, which
// must not be mistaken for a truncated export entry.
type compressionErrorReader struct {
	r      io.Reader
	stream *Stream
}

func (c *compressionErrorReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		err = c.stream.compressionError(err)
	}
	return n, err
}
