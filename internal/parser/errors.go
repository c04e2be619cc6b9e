package parser

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrTruncatedEntry = errors.New("truncated entry")
	// ErrCompression is matched by errors from a corrupt or truncated
	// compressed stream underneath the decoder.
	ErrCompression = errors.New("compression error")
)

type DecodeErrorKind int

const (
	MalformedFrame DecodeErrorKind = iota + 1
	TruncatedEntry
	Compression
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedFrame:
		return "malformed frame"
	case TruncatedEntry:
		return "truncated entry"
	case Compression:
		return "compression error"
	default:
		return "decode error"
	}
}

// DecodeError describes why the byte stream is not valid export format.
// Offset counts bytes of the decoded (decompressed) stream.
type DecodeError struct {
	Kind   DecodeErrorKind
	Path   string
	Offset int64
	Field  string
	Reason string
	// Err is the reader failure behind a Compression error.
	Err error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s: offset %d: %s", e.Path, e.Offset, e.Kind)
	if e.Field != "" {
		msg += fmt.Sprintf(" in field %q", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel errors by kind.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrMalformedFrame:
		return e.Kind == MalformedFrame
	case ErrTruncatedEntry:
		return e.Kind == TruncatedEntry
	case ErrCompression:
		return e.Kind == Compression
	}
	return false
}
