package formatter

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"journalread/internal/model"
)

var shortLayouts = map[OutputMode]string{
	ModeShort:           "Jan 02 15:04:05",
	ModeWithUnit:        "Jan 02 15:04:05",
	ModeShortPrecise:    "Jan 02 15:04:05.000000",
	ModeShortISO:        "2006-01-02T15:04:05-0700",
	ModeShortISOPrecise: "2006-01-02T15:04:05.000000-0700",
	ModeShortFull:       "Mon 2006-01-02 15:04:05 MST",
}

// renderShort writes "[<unit> ]<timestamp> <hostname> <identifier>[<pid>]: <message>".
// Hostname and identifier are left out when absent; the pid only follows an
// identifier. Continuation lines of a multi-line message are indented to the
// message column.
func (f *formatter) renderShort(buf []byte, rec *model.LogRecord) ([]byte, error) {
	start := len(buf)

	if f.mode == ModeWithUnit {
		unit, ok := rec.Unit()
		if !ok || unit == "" {
			unit = Placeholder
		}
		buf = append(buf, unit...)
		buf = append(buf, ' ')
	}

	var err error
	buf, err = f.appendShortTimestamp(buf, rec)
	if err != nil {
		return nil, err
	}
	if host, ok := rec.Hostname(); ok && host != "" {
		buf = append(buf, ' ')
		buf = append(buf, host...)
	}

	if ident, ok := rec.Identifier(); ok && ident != "" {
		buf = append(buf, ' ')
		buf = append(buf, ident...)
		if pid, hasPID := rec.PID(); hasPID && pid != "" {
			buf = append(buf, '[')
			buf = append(buf, pid...)
			buf = append(buf, ']')
		}
	}
	buf = append(buf, ':', ' ')
	indent := len(buf) - start

	msg, _ := rec.Message()
	if !utf8.ValidString(msg) {
		msg = fmt.Sprintf("[%dB blob data]", len(msg))
	}
	for i, line := range bytes.Split([]byte(msg), []byte{'\n'}) {
		if i > 0 {
			buf = append(buf, '\n')
			buf = append(buf, bytes.Repeat([]byte{' '}, indent)...)
		}
		buf = append(buf, line...)
	}
	return append(buf, '\n'), nil
}

func (f *formatter) appendShortTimestamp(buf []byte, rec *model.LogRecord) ([]byte, error) {
	if f.mode == ModeShortMonotonic {
		us, err := rec.MonotonicMicros()
		if err != nil {
			return nil, &FormatError{Mode: f.mode, Field: model.FieldMonotonic, Err: missing(err)}
		}
		return fmt.Appendf(buf, "[%5d.%06d]", us/1_000_000, us%1_000_000), nil
	}

	us, err := rec.RealtimeMicros()
	if err != nil {
		return nil, &FormatError{Mode: f.mode, Field: model.FieldSourceRealtime, Err: missing(err)}
	}
	if f.mode == ModeShortUnix {
		buf = strconv.AppendUint(buf, us/1_000_000, 10)
		return fmt.Appendf(buf, ".%06d", us%1_000_000), nil
	}
	return model.MicrosToTime(us).In(f.opts.Location).AppendFormat(buf, shortLayouts[f.mode]), nil
}

// missing maps an absent timestamp onto ErrMissingField and keeps parse
// failures as they are.
func missing(err error) error {
	if errors.Is(err, model.ErrNoTimestamp) {
		return fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	return err
}
