package formatter

import (
	"fmt"
	"strings"
)

type OutputMode string

const (
	ModeShort           OutputMode = "short"
	ModeShortPrecise    OutputMode = "short_precise"
	ModeShortISO        OutputMode = "short_iso"
	ModeShortISOPrecise OutputMode = "short_iso_precise"
	ModeShortFull       OutputMode = "short_full"
	ModeShortMonotonic  OutputMode = "short_monotonic"
	ModeShortUnix       OutputMode = "short_unix"
	ModeVerbose         OutputMode = "verbose"
	ModeExport          OutputMode = "export"
	ModeJSON            OutputMode = "json"
	ModeJSONPretty      OutputMode = "json_pretty"
	ModeJSONSSE         OutputMode = "json_sse"
	ModeJSONSeq         OutputMode = "json_seq"
	ModeCat             OutputMode = "cat"
	ModeWithUnit        OutputMode = "with_unit"

	DefaultMode = ModeShort
)

var Modes = []OutputMode{
	ModeShort, ModeShortPrecise, ModeShortISO, ModeShortISOPrecise, ModeShortFull,
	ModeShortMonotonic, ModeShortUnix, ModeVerbose, ModeExport, ModeJSON,
	ModeJSONPretty, ModeJSONSSE, ModeJSONSeq, ModeCat, ModeWithUnit,
}

// ParseOutputMode accepts journalctl's dashed spellings ("short-iso") as well
// as underscores, in any case. An empty string selects DefaultMode.
func ParseOutputMode(s string) (OutputMode, error) {
	if s == "" {
		return DefaultMode, nil
	}
	norm := OutputMode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, m := range Modes {
		if m == norm {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown output mode %q (valid: %s)", s, strings.Join(ModeNames(), ", "))
}

// ModeNames lists the modes in journalctl's dashed spelling.
func ModeNames() []string {
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = m.Flag()
	}
	return names
}

func (m OutputMode) Flag() string {
	return strings.ReplaceAll(string(m), "_", "-")
}

func (m OutputMode) IsShort() bool {
	switch m {
	case ModeShort, ModeShortPrecise, ModeShortISO, ModeShortISOPrecise, ModeShortFull,
		ModeShortMonotonic, ModeShortUnix, ModeWithUnit:
		return true
	}
	return false
}

func (m OutputMode) IsJSON() bool {
	switch m {
	case ModeJSON, ModeJSONPretty, ModeJSONSSE, ModeJSONSeq:
		return true
	}
	return false
}

// ContentType is the MIME type used when serving the mode over HTTP.
func (m OutputMode) ContentType() string {
	switch m {
	case ModeJSON, ModeJSONPretty:
		return "application/x-ndjson"
	case ModeJSONSSE:
		return "text/event-stream"
	case ModeJSONSeq:
		return "application/json-seq"
	case ModeExport:
		return "application/vnd.fdo.journal"
	default:
		return "text/plain; charset=utf-8"
	}
}
