package formatter

import (
	"fmt"
	"io"
	"time"

	"journalread/internal/model"
	"journalread/internal/parser"
)

// Placeholder is printed in with_unit mode for records without _SYSTEMD_UNIT.
const Placeholder = "-"

type BinaryEncoding string

const (
	BinaryBase64 BinaryEncoding = "base64"
	BinaryHex    BinaryEncoding = "hex"
)

type Options struct {
	// Location is used for human-readable timestamps. Defaults to time.Local.
	Location *time.Location
	// BinaryEncoding selects how JSON modes encode length-prefixed values and
	// values that are not valid UTF-8. Defaults to base64.
	BinaryEncoding BinaryEncoding
}

// Formatter renders records. A Formatter reuses an internal buffer and is
// not safe for concurrent use.
type Formatter interface {
	Format(w io.Writer, rec *model.LogRecord) error
	Mode() OutputMode
}

type renderFunc func(buf []byte, rec *model.LogRecord) ([]byte, error)

type formatter struct {
	mode   OutputMode
	opts   Options
	render renderFunc
	buf    []byte
}

func New(mode OutputMode, opts Options) (Formatter, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	switch opts.BinaryEncoding {
	case "":
		opts.BinaryEncoding = BinaryBase64
	case BinaryBase64, BinaryHex:
	default:
		return nil, fmt.Errorf("unknown binary encoding %q", opts.BinaryEncoding)
	}

	f := &formatter{mode: mode, opts: opts}
	switch {
	case mode.IsShort():
		f.render = f.renderShort
	case mode.IsJSON():
		f.render = f.renderJSON
	case mode == ModeVerbose:
		f.render = f.renderVerbose
	case mode == ModeExport:
		f.render = func(buf []byte, rec *model.LogRecord) ([]byte, error) {
			return parser.AppendRecord(buf, rec), nil
		}
	case mode == ModeCat:
		f.render = renderCat
	default:
		return nil, fmt.Errorf("unknown output mode %q", mode)
	}
	return f, nil
}

func (f *formatter) Mode() OutputMode {
	return f.mode
}

// Format renders rec completely before writing, so a FormatError leaves w
// untouched.
func (f *formatter) Format(w io.Writer, rec *model.LogRecord) error {
	out, err := f.render(f.buf[:0], rec)
	if err != nil {
		return err
	}
	f.buf = out
	_, err = w.Write(out)
	return err
}

func renderCat(buf []byte, rec *model.LogRecord) ([]byte, error) {
	msg, _ := rec.Message()
	buf = append(buf, msg...)
	return append(buf, '\n'), nil
}
