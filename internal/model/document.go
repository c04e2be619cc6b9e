package model

import (
	"encoding/base64"
	"time"
	"unicode/utf8"
)

// JournalDocument is the flattened form of a LogRecord shipped to external
// stores. Fields holds every field: a string, or a []string when the name
// repeats. Binary fields and values that are not valid UTF-8 are base64
// encoded.
type JournalDocument struct {
	Timestamp  time.Time              `json:"@timestamp"`
	Unit       string                 `json:"unit,omitempty"`
	Hostname   string                 `json:"hostname,omitempty"`
	Identifier string                 `json:"identifier,omitempty"`
	PID        string                 `json:"pid,omitempty"`
	Priority   *int                   `json:"priority,omitempty"`
	Message    string                 `json:"message"`
	Cursor     string                 `json:"cursor,omitempty"`
	BootID     string                 `json:"boot_id,omitempty"`
	Invocation string                 `json:"invocation_id,omitempty"`
	SourceFile string                 `json:"source_file"`
	Fields     map[string]interface{} `json:"fields"`
}

func NewJournalDocument(rec *LogRecord, sourceFile string) JournalDocument {
	doc := JournalDocument{
		SourceFile: sourceFile,
		Fields:     make(map[string]interface{}, rec.Len()),
	}
	if ts, err := rec.Realtime(); err == nil {
		doc.Timestamp = ts
	}
	doc.Unit, _ = rec.Unit()
	doc.Hostname, _ = rec.Hostname()
	doc.Identifier, _ = rec.Identifier()
	doc.PID, _ = rec.PID()
	doc.Message, _ = rec.Message()
	doc.Cursor, _ = rec.Get(FieldCursor)
	doc.BootID, _ = rec.Get(FieldBootID)
	doc.Invocation, _ = rec.Get(FieldSystemdInvocation)
	if p, ok := rec.Priority(); ok {
		doc.Priority = &p
	}

	rec.Each(func(f Field) {
		v := TextValue(f)
		switch existing := doc.Fields[f.Name].(type) {
		case nil:
			doc.Fields[f.Name] = v
		case string:
			doc.Fields[f.Name] = []string{existing, v}
		case []string:
			doc.Fields[f.Name] = append(existing, v)
		}
	})
	return doc
}

// TextValue returns the value of f as a string, base64 encoding it when f was
// length-prefixed or is not valid UTF-8.
func TextValue(f Field) string {
	if !f.Binary && utf8.Valid(f.Value) {
		return string(f.Value)
	}
	return base64.StdEncoding.EncodeToString(f.Value)
}
