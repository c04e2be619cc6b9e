package metrics

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"journalread/internal/model"
)

const (
	MetricJournalEvent = "journal_event"
	MetricErrorEvent   = "error_event"

	// Records at or below this syslog priority (err, crit, alert, emerg)
	// also count as errors.
	errorPriority = 3

	unknownUnit = "unknown"
)

var priorityNames = [...]string{"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug"}

type Extractor interface {
	ExtractMetricEvents(rec *model.LogRecord) []model.MetricEvent
}

type journalExtractor struct{}

func NewJournalExtractor() Extractor {
	return &journalExtractor{}
}

// ExtractMetricEvents derives a journal_event for every record with a
// timestamp, and an error_event for records of error priority. Records
// without a timestamp yield nothing.
func (e *journalExtractor) ExtractMetricEvents(rec *model.LogRecord) []model.MetricEvent {
	if rec == nil {
		return nil
	}
	ts, err := rec.Realtime()
	if err != nil {
		log.Trace().Err(err).Msg("Skipping metric extraction for record without timestamp")
		return nil
	}

	unit, ok := rec.Unit()
	if !ok {
		unit = unknownUnit
	}

	tags := map[string]string{}
	priority, hasPriority := rec.Priority()
	if hasPriority {
		tags["priority"] = PriorityName(priority)
	}
	if host, ok := rec.Hostname(); ok {
		tags["hostname"] = host
	}
	if ident, ok := rec.Identifier(); ok {
		tags["identifier"] = ident
	}

	events := make([]model.MetricEvent, 0, 2)
	events = append(events, model.MetricEvent{
		Time:       ts,
		MetricName: MetricJournalEvent,
		Unit:       unit,
		Tags:       tags,
	})

	if hasPriority && priority <= errorPriority {
		errTags := make(map[string]string, len(tags)+1)
		for k, v := range tags {
			errTags[k] = v
		}
		if msg, ok := rec.Message(); ok {
			errTags["error_key"] = msg
		}
		events = append(events, model.MetricEvent{
			Time:       ts,
			MetricName: MetricErrorEvent,
			Unit:       unit,
			Tags:       errTags,
		})
	}
	log.Trace().Str("unit", unit).Time("timestamp", ts).Int("event_count", len(events)).Msg("Extracted metric events")
	return events
}

// PriorityName returns the syslog keyword for p, or its number when out of
// range.
func PriorityName(p int) string {
	if p >= 0 && p < len(priorityNames) {
		return priorityNames[p]
	}
	return strconv.Itoa(p)
}
