package parser

import (
	"encoding/binary"

	"journalread/internal/model"
)

// AppendRecord appends rec in export framing to buf. Each field keeps the
// framing it was decoded with, so decoding and re-encoding an entry is
// byte-identical.
func AppendRecord(buf []byte, rec *model.LogRecord) []byte {
	rec.Each(func(f model.Field) {
		buf = append(buf, f.Name...)
		if f.Binary {
			buf = append(buf, '\n')
			buf = binary.LittleEndian.AppendUint64(buf, uint64(len(f.Value)))
			buf = append(buf, f.Value...)
		} else {
			buf = append(buf, '=')
			buf = append(buf, f.Value...)
		}
		buf = append(buf, '\n')
	})
	return append(buf, '\n')
}
