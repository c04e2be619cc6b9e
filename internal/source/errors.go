package source

import (
	"fmt"

	"journalread/internal/parser"
)

// IOError reports a failure to open or read the file itself.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// CompressionError reports a corrupt or truncated compressed stream. It is
// raised while reading, not when the file is opened.
type CompressionError struct {
	Path  string
	Codec Compression
	Err   error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("%s: corrupt %s stream: %v", e.Path, e.Codec, e.Err)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}

// Is lets decode errors and callers match parser.ErrCompression.
func (e *CompressionError) Is(target error) bool {
	return target == parser.ErrCompression
}
