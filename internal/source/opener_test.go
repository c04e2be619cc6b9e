package source_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalread/internal/parser"
	"journalread/internal/source"
)

const sample = "__REALTIME_TIMESTAMP=1700000000000000\nMESSAGE=hello\n\n"

// xzSample is strings.Repeat(sample, 50) compressed with "xz --check=crc32".
var xzSample = []byte{
	0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00, 0x01, 0x69, 0x22, 0xde, 0x36,
	0x04, 0xc0, 0x42, 0xda, 0x14, 0x21, 0x01, 0x16, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x59, 0x1d, 0x8a, 0xf7, 0xe0, 0x0a, 0x59, 0x00,
	0x3a, 0x5d, 0x00, 0x2f, 0xe1, 0x44, 0x8a, 0x41, 0x3c, 0xc1, 0x16, 0x6b,
	0xd2, 0xb4, 0xe1, 0x01, 0x42, 0xb2, 0xbf, 0x25, 0x32, 0x11, 0x1b, 0xa4,
	0xd5, 0x7b, 0x00, 0x4d, 0x8f, 0x4b, 0x2d, 0x5c, 0x02, 0x9a, 0xcf, 0x0a,
	0x29, 0x58, 0xb2, 0x5b, 0x28, 0x2d, 0x42, 0x5c, 0x37, 0x8d, 0x1e, 0x99,
	0x6e, 0xe2, 0x4c, 0xb6, 0x9f, 0xde, 0xce, 0x0c, 0x33, 0x21, 0xd0, 0xcb,
	0x00, 0x00, 0x00, 0x00, 0x8c, 0x37, 0x9e, 0x16, 0x00, 0x01, 0x5a, 0xda,
	0x14, 0x00, 0x00, 0x00, 0x7c, 0x58, 0x7e, 0x72, 0x3e, 0x30, 0x0d, 0x8b,
	0x02, 0x00, 0x00, 0x00, 0x00, 0x01, 0x59, 0x5a,
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func lz4Bytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want source.Compression
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00}, source.CompressionGzip},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, source.CompressionZstd},
		{"xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, source.CompressionXZ},
		{"lz4", []byte{0x04, 0x22, 0x4d, 0x18}, source.CompressionLZ4},
		{"plain export", []byte("MESSAGE=x"), source.CompressionNone},
		{"single gzip byte", []byte{0x1f}, source.CompressionNone},
		{"empty", nil, source.CompressionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, source.Detect(tt.head))
		})
	}
}

func TestNewStream_Decompresses(t *testing.T) {
	data := []byte(strings.Repeat(sample, 50))
	tests := []struct {
		name  string
		input []byte
		want  source.Compression
	}{
		{"plain", data, source.CompressionNone},
		{"gzip", gzipBytes(t, data), source.CompressionGzip},
		{"zstd", zstdBytes(t, data), source.CompressionZstd},
		{"lz4", lz4Bytes(t, data), source.CompressionLZ4},
		{"xz", xzSample, source.CompressionXZ},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := source.NewStream(tt.name+".export", bytes.NewReader(tt.input))
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, tt.want, s.Compression)
			got, err := io.ReadAll(s)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestNewStream_ShortPlainInput(t *testing.T) {
	for _, input := range []string{"", "\n", "A=1\n"} {
		s, err := source.NewStream("short.export", strings.NewReader(input))
		require.NoError(t, err)
		got, err := io.ReadAll(s)
		require.NoError(t, err)
		assert.Equal(t, input, string(got))
	}
}

func TestNewStream_TruncatedGzipIsCompressionError(t *testing.T) {
	data := []byte(strings.Repeat(sample, 2000))
	compressed := gzipBytes(t, data)
	truncated := compressed[:len(compressed)/2]

	s, err := source.NewStream("cut.export.gz", bytes.NewReader(truncated))
	require.NoError(t, err)
	defer s.Close()

	dec := parser.NewExportDecoder(s, "cut.export.gz")
	for {
		_, err = dec.Next()
		if err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)

	var compErr *source.CompressionError
	require.True(t, errors.As(err, &compErr), "got %T: %v", err, err)
	assert.Equal(t, source.CompressionGzip, compErr.Codec)
	assert.Equal(t, "cut.export.gz", compErr.Path)
	assert.NotErrorIs(t, err, parser.ErrTruncatedEntry)

	var decErr *parser.DecodeError
	require.True(t, errors.As(err, &decErr), "got %T: %v", err, err)
	assert.Equal(t, parser.Compression, decErr.Kind)
	assert.Equal(t, "cut.export.gz", decErr.Path)
	assert.ErrorIs(t, err, parser.ErrCompression)
}

func TestNewStream_TruncatedXZIsCompressionError(t *testing.T) {
	s, err := source.NewStream("cut.export.xz", bytes.NewReader(xzSample[:60]))
	require.NoError(t, err)
	defer s.Close()

	_, err = io.ReadAll(s)
	var compErr *source.CompressionError
	require.True(t, errors.As(err, &compErr), "got %T: %v", err, err)
	assert.Equal(t, source.CompressionXZ, compErr.Codec)
}

func TestFileOpener_OpenAndClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.export.gz")
	require.NoError(t, os.WriteFile(path, gzipBytes(t, []byte(sample)), 0o644))

	s, err := source.NewFileOpener().Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path)
	assert.Equal(t, source.CompressionGzip, s.Compression)

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, sample, string(got))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestFileOpener_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.export")
	_, err := source.NewFileOpener().Open(path)
	require.Error(t, err)

	var ioErr *source.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "open", ioErr.Op)
	assert.Equal(t, path, ioErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewStream_CorruptGzipHeader(t *testing.T) {
	_, err := source.NewStream("bad.gz", bytes.NewReader([]byte{0x1f, 0x8b, 0xff, 0xff, 0xff}))
	require.Error(t, err)
	var compErr *source.CompressionError
	assert.True(t, errors.As(err, &compErr), "got %T: %v", err, err)
}
