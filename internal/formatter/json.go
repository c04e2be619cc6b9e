package formatter

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"unicode/utf8"

	"journalread/internal/model"
)

const (
	jsonSeqRS = 0x1e
	hexDigits = "0123456789abcdef"
)

// renderJSON writes one object per record. Keys keep the order of their first
// occurrence; a name that repeats maps to an array of its values.
func (f *formatter) renderJSON(buf []byte, rec *model.LogRecord) ([]byte, error) {
	obj := f.appendJSONObject(nil, rec)

	switch f.mode {
	case ModeJSONPretty:
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, obj, "", "\t"); err != nil {
			return nil, &FormatError{Mode: f.mode, Field: "", Err: err}
		}
		buf = append(buf, pretty.Bytes()...)
		return append(buf, '\n'), nil
	case ModeJSONSSE:
		buf = append(buf, "data: "...)
		buf = append(buf, obj...)
		return append(buf, '\n', '\n'), nil
	case ModeJSONSeq:
		buf = append(buf, jsonSeqRS)
		buf = append(buf, obj...)
		return append(buf, '\n'), nil
	default:
		buf = append(buf, obj...)
		return append(buf, '\n'), nil
	}
}

func (f *formatter) appendJSONObject(buf []byte, rec *model.LogRecord) []byte {
	type group struct {
		name   string
		values []model.Field
	}
	var groups []group
	index := make(map[string]int, rec.Len())
	rec.Each(func(fl model.Field) {
		if i, ok := index[fl.Name]; ok {
			groups[i].values = append(groups[i].values, fl)
			return
		}
		index[fl.Name] = len(groups)
		groups = append(groups, group{name: fl.Name, values: []model.Field{fl}})
	})

	buf = append(buf, '{')
	for i, g := range groups {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendJSONString(buf, []byte(g.name))
		buf = append(buf, ':')
		if len(g.values) == 1 {
			buf = f.appendJSONValue(buf, g.values[0])
			continue
		}
		buf = append(buf, '[')
		for j, v := range g.values {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = f.appendJSONValue(buf, v)
		}
		buf = append(buf, ']')
	}
	return append(buf, '}')
}

// appendJSONValue encodes length-prefixed payloads and invalid UTF-8 with the
// configured binary encoding.
func (f *formatter) appendJSONValue(buf []byte, fl model.Field) []byte {
	v := fl.Value
	if !fl.Binary && utf8.Valid(v) {
		return appendJSONString(buf, v)
	}
	buf = append(buf, '"')
	if f.opts.BinaryEncoding == BinaryHex {
		buf = append(buf, hex.EncodeToString(v)...)
	} else {
		buf = append(buf, base64.StdEncoding.EncodeToString(v)...)
	}
	return append(buf, '"')
}

// appendJSONString quotes valid UTF-8 s. Unlike encoding/json it leaves
// '<', '>' and '&' alone, matching journalctl's output.
func appendJSONString(buf []byte, s []byte) []byte {
	buf = append(buf, '"')
	for _, c := range s {
		switch {
		case c == '"' || c == '\\':
			buf = append(buf, '\\', c)
		case c == '\n':
			buf = append(buf, '\\', 'n')
		case c == '\r':
			buf = append(buf, '\\', 'r')
		case c == '\t':
			buf = append(buf, '\\', 't')
		case c < 0x20:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}
