package formatter_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalread/internal/formatter"
	"journalread/internal/model"
	"journalread/internal/parser"
)

func record(fields ...string) *model.LogRecord {
	var fs []model.Field
	for i := 0; i+1 < len(fields); i += 2 {
		fs = append(fs, model.Field{Name: fields[i], Value: []byte(fields[i+1])})
	}
	return model.NewLogRecord(fs)
}

func fullRecord() *model.LogRecord {
	return record(
		"__CURSOR", "c1",
		"__REALTIME_TIMESTAMP", "1700000000123456",
		"__MONOTONIC_TIMESTAMP", "5123456",
		"_HOSTNAME", "host",
		"SYSLOG_IDENTIFIER", "ident",
		"_PID", "123",
		"_SYSTEMD_UNIT", "a.service",
		"MESSAGE", "hello",
	)
}

func render(t *testing.T, mode formatter.OutputMode, opts formatter.Options, rec *model.LogRecord) (string, error) {
	t.Helper()
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	f, err := formatter.New(mode, opts)
	require.NoError(t, err)
	var buf bytes.Buffer
	err = f.Format(&buf, rec)
	return buf.String(), err
}

func TestFormat_ShortFamily(t *testing.T) {
	tests := []struct {
		mode formatter.OutputMode
		want string
	}{
		{formatter.ModeShort, "Nov 14 22:13:20 host ident[123]: hello\n"},
		{formatter.ModeShortPrecise, "Nov 14 22:13:20.123456 host ident[123]: hello\n"},
		{formatter.ModeShortISO, "2023-11-14T22:13:20+0000 host ident[123]: hello\n"},
		{formatter.ModeShortISOPrecise, "2023-11-14T22:13:20.123456+0000 host ident[123]: hello\n"},
		{formatter.ModeShortFull, "Tue 2023-11-14 22:13:20 UTC host ident[123]: hello\n"},
		{formatter.ModeShortMonotonic, "[    5.123456] host ident[123]: hello\n"},
		{formatter.ModeShortUnix, "1700000000.123456 host ident[123]: hello\n"},
		{formatter.ModeWithUnit, "a.service Nov 14 22:13:20 host ident[123]: hello\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got, err := render(t, tt.mode, formatter.Options{}, fullRecord())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_ShortUsesLocation(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	got, err := render(t, formatter.ModeShortISO, formatter.Options{Location: loc}, fullRecord())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "2023-11-15T00:13:20+0200 "), got)
}

func TestFormat_ShortOmitsAbsentFields(t *testing.T) {
	rec := record("__REALTIME_TIMESTAMP", "1700000000000000", "MESSAGE", "bare")
	got, err := render(t, formatter.ModeShort, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "Nov 14 22:13:20: bare\n", got)
}

func TestFormat_ShortFallsBackToComm(t *testing.T) {
	rec := record("__REALTIME_TIMESTAMP", "1700000000000000", "_COMM", "sshd", "MESSAGE", "x")
	got, err := render(t, formatter.ModeShort, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "Nov 14 22:13:20 sshd: x\n", got)
}

func TestFormat_ShortMultilineMessage(t *testing.T) {
	rec := record("__REALTIME_TIMESTAMP", "1700000000000000", "_HOSTNAME", "h", "MESSAGE", "one\ntwo")
	got, err := render(t, formatter.ModeShort, formatter.Options{}, rec)
	require.NoError(t, err)

	prefix := "Nov 14 22:13:20 h: "
	assert.Equal(t, prefix+"one\n"+strings.Repeat(" ", len(prefix))+"two\n", got)
}

func TestFormat_ShortBinaryMessage(t *testing.T) {
	rec := model.NewLogRecord([]model.Field{
		{Name: "__REALTIME_TIMESTAMP", Value: []byte("1700000000000000")},
		{Name: "MESSAGE", Value: []byte{0xff, 0xfe, 0x00}, Binary: true},
	})
	got, err := render(t, formatter.ModeShort, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "Nov 14 22:13:20: [3B blob data]\n", got)
}

func TestFormat_SyslogRawFallback(t *testing.T) {
	rec := record("__REALTIME_TIMESTAMP", "1700000000000000", "MESSAGE", "", "SYSLOG_RAW", "<13>raw")
	got, err := render(t, formatter.ModeCat, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "<13>raw\n", got)
}

func TestFormat_WithUnitPlaceholder(t *testing.T) {
	rec := record("__REALTIME_TIMESTAMP", "1700000000000000", "MESSAGE", "m")
	got, err := render(t, formatter.ModeWithUnit, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, formatter.Placeholder+" Nov 14 22:13:20: m\n", got)
}

func TestFormat_WithUnitIndentsContinuation(t *testing.T) {
	rec := record("__REALTIME_TIMESTAMP", "1700000000000000", "_SYSTEMD_UNIT", "u", "MESSAGE", "a\nb")
	got, err := render(t, formatter.ModeWithUnit, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "u Nov 14 22:13:20: a\n                   b\n", got)
}

func TestFormat_PIDWithoutIdentifier(t *testing.T) {
	rec := record("__REALTIME_TIMESTAMP", "1700000000000000", "_HOSTNAME", "h", "_PID", "42", "MESSAGE", "hi")
	got, err := render(t, formatter.ModeShort, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "Nov 14 22:13:20 h: hi\n", got)
}

func TestFormat_MissingTimestamp(t *testing.T) {
	tests := []struct {
		mode  formatter.OutputMode
		rec   *model.LogRecord
		field string
	}{
		{formatter.ModeShort, record("MESSAGE", "x"), model.FieldSourceRealtime},
		{formatter.ModeShortUnix, record("MESSAGE", "x"), model.FieldSourceRealtime},
		{formatter.ModeWithUnit, record("_SYSTEMD_UNIT", "a.service"), model.FieldSourceRealtime},
		{formatter.ModeShortMonotonic, record("__REALTIME_TIMESTAMP", "1"), model.FieldMonotonic},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got, err := render(t, tt.mode, formatter.Options{}, tt.rec)
			require.Error(t, err)
			assert.Empty(t, got)
			assert.ErrorIs(t, err, formatter.ErrMissingField)

			var fmtErr *formatter.FormatError
			require.True(t, errors.As(err, &fmtErr))
			assert.Equal(t, tt.mode, fmtErr.Mode)
			assert.Equal(t, tt.field, fmtErr.Field)
		})
	}
}

func TestFormat_UnparsableTimestampIsNotMissing(t *testing.T) {
	_, err := render(t, formatter.ModeShort, formatter.Options{}, record("__REALTIME_TIMESTAMP", "abc"))
	var fmtErr *formatter.FormatError
	require.True(t, errors.As(err, &fmtErr))
	assert.NotErrorIs(t, err, formatter.ErrMissingField)
}

func TestFormat_ModesThatNeverFail(t *testing.T) {
	rec := record("FOO", "bar")
	for _, mode := range []formatter.OutputMode{
		formatter.ModeVerbose, formatter.ModeExport, formatter.ModeJSON,
		formatter.ModeJSONPretty, formatter.ModeJSONSSE, formatter.ModeJSONSeq, formatter.ModeCat,
	} {
		_, err := render(t, mode, formatter.Options{}, rec)
		assert.NoError(t, err, "mode %s", mode)
	}
}

func TestFormat_Verbose(t *testing.T) {
	rec := model.NewLogRecord([]model.Field{
		{Name: "__CURSOR", Value: []byte("c1")},
		{Name: "__REALTIME_TIMESTAMP", Value: []byte("1700000000123456")},
		{Name: "MESSAGE", Value: []byte("hello")},
		{Name: "BLOB", Value: []byte{0, 1, 2, 3}, Binary: true},
	})
	got, err := render(t, formatter.ModeVerbose, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "Tue 2023-11-14 22:13:20.123456 UTC [c1]\n"+
		"    __CURSOR=c1\n"+
		"    __REALTIME_TIMESTAMP=1700000000123456\n"+
		"    MESSAGE=hello\n"+
		"    BLOB=[4B blob data]\n"+
		"\n", got)
}

func TestFormat_VerboseWithoutTimestamp(t *testing.T) {
	got, err := render(t, formatter.ModeVerbose, formatter.Options{}, record("MESSAGE", "x"))
	require.NoError(t, err)
	assert.Equal(t, "    MESSAGE=x\n\n", got)
}

func TestFormat_JSON(t *testing.T) {
	got, err := render(t, formatter.ModeJSON, formatter.Options{}, fullRecord())
	require.NoError(t, err)
	assert.Equal(t, `{"__CURSOR":"c1","__REALTIME_TIMESTAMP":"1700000000123456",`+
		`"__MONOTONIC_TIMESTAMP":"5123456","_HOSTNAME":"host","SYSLOG_IDENTIFIER":"ident",`+
		`"_PID":"123","_SYSTEMD_UNIT":"a.service","MESSAGE":"hello"}`+"\n", got)
}

func TestFormat_JSONRepeatedFieldsBecomeArrays(t *testing.T) {
	got, err := render(t, formatter.ModeJSON, formatter.Options{}, record("TAG", "a", "MESSAGE", "m", "TAG", "b"))
	require.NoError(t, err)
	assert.Equal(t, `{"TAG":["a","b"],"MESSAGE":"m"}`+"\n", got)
}

func TestFormat_JSONEscaping(t *testing.T) {
	got, err := render(t, formatter.ModeJSON, formatter.Options{}, record("MESSAGE", "a\"b\\c\n\t\x01<&>"))
	require.NoError(t, err)
	assert.Equal(t, `{"MESSAGE":"a\"b\\c\n\t\u0001<&>"}`+"\n", got)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	assert.Equal(t, "a\"b\\c\n\t\x01<&>", decoded["MESSAGE"])
}

func TestFormat_JSONBinaryValues(t *testing.T) {
	rec := model.NewLogRecord([]model.Field{
		{Name: "DATA", Value: []byte{0xff, 0x00, 0x10}, Binary: true},
		{Name: "TEXT", Value: []byte("fine"), Binary: true},
		{Name: "PLAIN", Value: []byte("fine")},
	})

	got, err := render(t, formatter.ModeJSON, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, `{"DATA":"/wAQ","TEXT":"ZmluZQ==","PLAIN":"fine"}`+"\n", got)

	got, err = render(t, formatter.ModeJSON, formatter.Options{BinaryEncoding: formatter.BinaryHex}, rec)
	require.NoError(t, err)
	assert.Equal(t, `{"DATA":"ff0010","TEXT":"66696e65","PLAIN":"fine"}`+"\n", got)
}

func TestFormat_JSONLengthPrefixedMessage(t *testing.T) {
	input := []byte("MESSAGE\n\x0b\x00\x00\x00\x00\x00\x00\x00line1\nline2\nTAG=ok\n\n")
	rec, err := parser.NewExportDecoder(bytes.NewReader(input), "blob.export").Next()
	require.NoError(t, err)

	got, err := render(t, formatter.ModeJSON, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, `{"MESSAGE":"bGluZTEKbGluZTI=","TAG":"ok"}`+"\n", got)

	got, err = render(t, formatter.ModeVerbose, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Contains(t, got, "    MESSAGE=[11B blob data]\n")
}

func TestFormat_JSONVariants(t *testing.T) {
	rec := record("A", "1", "B", "2")

	got, err := render(t, formatter.ModeJSONSSE, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"A\":\"1\",\"B\":\"2\"}\n\n", got)

	got, err = render(t, formatter.ModeJSONSeq, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "\x1e{\"A\":\"1\",\"B\":\"2\"}\n", got)

	got, err = render(t, formatter.ModeJSONPretty, formatter.Options{}, rec)
	require.NoError(t, err)
	assert.Equal(t, "{\n\t\"A\": \"1\",\n\t\"B\": \"2\"\n}\n", got)
}

func TestFormat_ExportRoundTrip(t *testing.T) {
	input := []byte("__CURSOR=x\n__REALTIME_TIMESTAMP=1\nMESSAGE\n\x03\x00\x00\x00\x00\x00\x00\x00a\nb\nTAG=1\nTAG=2\n\n" +
		"MESSAGE=plain\n\n")

	dec := parser.NewExportDecoder(bytes.NewReader(input), "rt.export")
	f, err := formatter.New(formatter.ModeExport, formatter.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	for {
		rec, err := dec.Next()
		if err != nil {
			break
		}
		require.NoError(t, f.Format(&out, rec))
	}
	assert.Equal(t, input, out.Bytes())
}

func TestFormat_CatWithoutMessage(t *testing.T) {
	got, err := render(t, formatter.ModeCat, formatter.Options{}, record("A", "1"))
	require.NoError(t, err)
	assert.Equal(t, "\n", got)
}

func TestNew_RejectsUnknown(t *testing.T) {
	_, err := formatter.New("bogus", formatter.Options{})
	assert.Error(t, err)
	_, err = formatter.New(formatter.ModeJSON, formatter.Options{BinaryEncoding: "rot13"})
	assert.Error(t, err)
}

func TestParseOutputMode(t *testing.T) {
	tests := []struct {
		in      string
		want    formatter.OutputMode
		wantErr bool
	}{
		{"", formatter.ModeShort, false},
		{"short", formatter.ModeShort, false},
		{"short-iso", formatter.ModeShortISO, false},
		{"short_iso_precise", formatter.ModeShortISOPrecise, false},
		{"JSON-PRETTY", formatter.ModeJSONPretty, false},
		{"with-unit", formatter.ModeWithUnit, false},
		{"json-seq", formatter.ModeJSONSeq, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := formatter.ParseOutputMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputMode_Helpers(t *testing.T) {
	assert.Equal(t, "short-iso-precise", formatter.ModeShortISOPrecise.Flag())
	assert.True(t, formatter.ModeWithUnit.IsShort())
	assert.False(t, formatter.ModeVerbose.IsShort())
	assert.True(t, formatter.ModeJSONSSE.IsJSON())
	assert.Equal(t, "text/event-stream", formatter.ModeJSONSSE.ContentType())
	assert.Len(t, formatter.ModeNames(), len(formatter.Modes))
}
