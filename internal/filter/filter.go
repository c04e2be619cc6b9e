package filter

import (
	"io"

	"github.com/rs/zerolog/log"

	"journalread/internal/dto"
	"journalread/internal/model"
	"journalread/internal/parser"
)

// Counter tracks how many records have been emitted toward the count limit.
// One Counter is shared by all files of an invocation.
type Counter struct {
	limit   int
	limited bool
	emitted int
}

func NewCounter(spec dto.FilterSpec) *Counter {
	limit, limited := spec.LimitValue()
	return &Counter{limit: limit, limited: limited}
}

func (c *Counter) Exhausted() bool {
	return c.limited && c.emitted >= c.limit
}

func (c *Counter) Emitted() int {
	return c.emitted
}

// Match reports whether rec satisfies the unit and time predicates of spec.
// A record lacking the field an active predicate needs never matches.
func Match(spec dto.FilterSpec, rec *model.LogRecord) bool {
	if spec.Unit != "" {
		unit, ok := rec.Unit()
		if !ok || unit != spec.Unit {
			return false
		}
	}

	if spec.HasTimeRange() {
		ts, err := rec.Realtime()
		if err != nil {
			log.Trace().Err(err).Msg("Excluding record without usable timestamp")
			return false
		}
		if !spec.Since.IsZero() && ts.Before(spec.Since) {
			return false
		}
		if !spec.Until.IsZero() && ts.After(spec.Until) {
			return false
		}
	}
	return true
}

// Reader yields the records of src that match spec. Once the shared counter
// is exhausted it returns io.EOF without pulling from src again.
type Reader struct {
	src      parser.RecordReader
	spec     dto.FilterSpec
	counter  *Counter
	excluded int
}

// NewReader wraps src. A nil counter gives the reader a limit of its own.
func NewReader(src parser.RecordReader, spec dto.FilterSpec, counter *Counter) *Reader {
	if counter == nil {
		counter = NewCounter(spec)
	}
	return &Reader{src: src, spec: spec, counter: counter}
}

func (r *Reader) Next() (*model.LogRecord, error) {
	for {
		if r.counter.Exhausted() {
			return nil, io.EOF
		}
		rec, err := r.src.Next()
		if err != nil {
			return nil, err
		}
		if !Match(r.spec, rec) {
			r.excluded++
			continue
		}
		r.counter.emitted++
		return rec, nil
	}
}

// Excluded is the number of records dropped by the predicates so far.
func (r *Reader) Excluded() int {
	return r.excluded
}
