package model

import (
	"fmt"
	"strconv"
	"time"
)

// Canonical journal field names.
const (
	FieldMessage           = "MESSAGE"
	FieldSyslogRaw         = "SYSLOG_RAW"
	FieldSystemdUnit       = "_SYSTEMD_UNIT"
	FieldHostname          = "_HOSTNAME"
	FieldSyslogIdentifier  = "SYSLOG_IDENTIFIER"
	FieldComm              = "_COMM"
	FieldPID               = "_PID"
	FieldPriority          = "PRIORITY"
	FieldSourceRealtime    = "_SOURCE_REALTIME_TIMESTAMP"
	FieldRealtime          = "__REALTIME_TIMESTAMP"
	FieldMonotonic         = "__MONOTONIC_TIMESTAMP"
	FieldCursor            = "__CURSOR"
	FieldBootID            = "_BOOT_ID"
	FieldSystemdInvocation = "_SYSTEMD_INVOCATION_ID"
)

// Field is one framed field of a journal entry. Binary reports whether the
// field was framed with an explicit length prefix rather than as NAME=VALUE.
type Field struct {
	Name   string
	Value  []byte
	Binary bool
}

// LogRecord is one decoded journal entry. Fields keep their input order and
// repeated names are kept as separate fields.
type LogRecord struct {
	fields []Field
}

// NewLogRecord takes ownership of fields. Callers must not modify the slice
// or any value afterwards.
func NewLogRecord(fields []Field) *LogRecord {
	return &LogRecord{fields: fields}
}

func (r *LogRecord) Len() int {
	return len(r.fields)
}

// Fields returns a copy of the record's fields in input order.
func (r *LogRecord) Fields() []Field {
	out := make([]Field, len(r.fields))
	for i, f := range r.fields {
		out[i] = Field{Name: f.Name, Value: append([]byte(nil), f.Value...), Binary: f.Binary}
	}
	return out
}

// Each calls fn for every field in order without copying values. fn must not
// retain or modify the value slice.
func (r *LogRecord) Each(fn func(f Field)) {
	for _, f := range r.fields {
		fn(f)
	}
}

func (r *LogRecord) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Get returns the first value stored under name.
func (r *LogRecord) Get(name string) (string, bool) {
	v, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	return string(v), true
}

// Values returns every value stored under name, in input order.
func (r *LogRecord) Values(name string) []string {
	var out []string
	for _, f := range r.fields {
		if f.Name == name {
			out = append(out, string(f.Value))
		}
	}
	return out
}

func (r *LogRecord) lookup(name string) ([]byte, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Message returns MESSAGE, or SYSLOG_RAW when MESSAGE is present but empty.
func (r *LogRecord) Message() (string, bool) {
	msg, ok := r.Get(FieldMessage)
	if !ok {
		return "", false
	}
	if msg == "" {
		if raw, ok := r.Get(FieldSyslogRaw); ok {
			return raw, true
		}
	}
	return msg, true
}

func (r *LogRecord) Unit() (string, bool) {
	return r.Get(FieldSystemdUnit)
}

func (r *LogRecord) Hostname() (string, bool) {
	return r.Get(FieldHostname)
}

func (r *LogRecord) PID() (string, bool) {
	return r.Get(FieldPID)
}

// Identifier returns SYSLOG_IDENTIFIER, falling back to _COMM.
func (r *LogRecord) Identifier() (string, bool) {
	if id, ok := r.Get(FieldSyslogIdentifier); ok && id != "" {
		return id, true
	}
	return r.Get(FieldComm)
}

// Priority returns the syslog priority (0-7) of the entry.
func (r *LogRecord) Priority() (int, bool) {
	s, ok := r.Get(FieldPriority)
	if !ok {
		return 0, false
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 7 {
		return 0, false
	}
	return p, true
}

// RealtimeMicros returns the entry's wallclock timestamp in microseconds
// since the Unix epoch, taken from _SOURCE_REALTIME_TIMESTAMP and falling back
// to __REALTIME_TIMESTAMP.
func (r *LogRecord) RealtimeMicros() (uint64, error) {
	s, ok := r.Get(FieldSourceRealtime)
	if !ok {
		s, ok = r.Get(FieldRealtime)
	}
	if !ok {
		return 0, fmt.Errorf("%w: neither %s nor %s present", ErrNoTimestamp, FieldSourceRealtime, FieldRealtime)
	}
	us, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid realtime timestamp %q: %w", s, err)
	}
	return us, nil
}

// Realtime is RealtimeMicros as a time.Time in UTC.
func (r *LogRecord) Realtime() (time.Time, error) {
	us, err := r.RealtimeMicros()
	if err != nil {
		return time.Time{}, err
	}
	return MicrosToTime(us), nil
}

// MonotonicMicros returns __MONOTONIC_TIMESTAMP.
func (r *LogRecord) MonotonicMicros() (uint64, error) {
	s, ok := r.Get(FieldMonotonic)
	if !ok {
		return 0, fmt.Errorf("%w: %s not present", ErrNoTimestamp, FieldMonotonic)
	}
	us, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid monotonic timestamp %q: %w", s, err)
	}
	return us, nil
}

func MicrosToTime(us uint64) time.Time {
	return time.Unix(int64(us/1_000_000), int64(us%1_000_000)*1000).UTC()
}
