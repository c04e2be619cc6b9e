package formatter

import (
	"fmt"

	"journalread/internal/model"
)

const verboseLayout = "Mon 2006-01-02 15:04:05.000000 MST"

// renderVerbose writes a header with timestamp and cursor, then every field
// indented on its own line. Length-prefixed fields are shown by size only.
func (f *formatter) renderVerbose(buf []byte, rec *model.LogRecord) ([]byte, error) {
	if ts, err := rec.Realtime(); err == nil {
		buf = ts.In(f.opts.Location).AppendFormat(buf, verboseLayout)
		if cursor, ok := rec.Get(model.FieldCursor); ok {
			buf = append(buf, " ["...)
			buf = append(buf, cursor...)
			buf = append(buf, ']')
		}
		buf = append(buf, '\n')
	}

	rec.Each(func(fl model.Field) {
		buf = append(buf, "    "...)
		buf = append(buf, fl.Name...)
		buf = append(buf, '=')
		if fl.Binary {
			buf = fmt.Appendf(buf, "[%dB blob data]", len(fl.Value))
		} else {
			buf = append(buf, fl.Value...)
		}
		buf = append(buf, '\n')
	})
	return append(buf, '\n'), nil
}
