package database

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecord = `{
	"_SOURCE_REALTIME_TIMESTAMP": "1700000123456789",
	"_AUDIT_TYPE_NAME": "AVC",
	"_AUDIT_FIELD_OPERATION": "\"open\"",
	"_AUDIT_FIELD_NAME": "\"/etc/shadow\"",
	"_PID": "4242",
	"_AUDIT_FIELD_APPARMOR": "\"DENIED\"",
	"_AUDIT_FIELD_PROFILE": "\"/usr/bin/evince\"",
	"MESSAGE": "ignored"
}`

func TestParseLogRecord(t *testing.T) {
	rec, err := ParseLogRecord([]byte(sampleRecord))
	require.NoError(t, err)

	assert.Equal(t, LogRecord{
		Profile:   "/usr/bin/evince",
		Timestamp: time.Unix(1700000123, 0).UTC(),
		Type:      "AVC",
		Operation: "open",
		Name:      "/etc/shadow",
		PID:       4242,
		Status:    "DENIED",
	}, rec)
}

func TestParseLogRecordMalformed(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"invalid json", `{"_PID": `, ""},
		{"missing profile", `{"_SOURCE_REALTIME_TIMESTAMP":"1","_AUDIT_TYPE_NAME":"AVC","_AUDIT_FIELD_OPERATION":"open","_AUDIT_FIELD_NAME":"n","_PID":"1","_AUDIT_FIELD_APPARMOR":"DENIED"}`, fieldProfile},
		{"missing timestamp", `{"_AUDIT_TYPE_NAME":"AVC","_AUDIT_FIELD_OPERATION":"open","_AUDIT_FIELD_NAME":"n","_PID":"1","_AUDIT_FIELD_APPARMOR":"DENIED","_AUDIT_FIELD_PROFILE":"p"}`, fieldTimestamp},
		{"null name", `{"_SOURCE_REALTIME_TIMESTAMP":"1","_AUDIT_TYPE_NAME":"AVC","_AUDIT_FIELD_OPERATION":"open","_AUDIT_FIELD_NAME":null,"_PID":"1","_AUDIT_FIELD_APPARMOR":"DENIED","_AUDIT_FIELD_PROFILE":"p"}`, fieldName},
		{"bad timestamp", `{"_SOURCE_REALTIME_TIMESTAMP":"yesterday","_AUDIT_TYPE_NAME":"AVC","_AUDIT_FIELD_OPERATION":"open","_AUDIT_FIELD_NAME":"n","_PID":"1","_AUDIT_FIELD_APPARMOR":"DENIED","_AUDIT_FIELD_PROFILE":"p"}`, fieldTimestamp},
		{"bad pid", `{"_SOURCE_REALTIME_TIMESTAMP":"1","_AUDIT_TYPE_NAME":"AVC","_AUDIT_FIELD_OPERATION":"open","_AUDIT_FIELD_NAME":"n","_PID":"-3","_AUDIT_FIELD_APPARMOR":"DENIED","_AUDIT_FIELD_PROFILE":"p"}`, fieldPID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLogRecord([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedLogRecord))

			var mErr *MalformedLogRecordError
			require.True(t, errors.As(err, &mErr))
			assert.Equal(t, tt.field, mErr.Field)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "03:04:05"},
		{time.Date(2024, 1, 2, 23, 59, 59, 999, time.UTC), "23:59:59"},
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "00:00:00"},
		{time.Date(2024, 1, 2, 13, 0, 7, 0, time.UTC), "13:00:07"},
		{time.Date(2024, 1, 2, 13, 0, 7, 0, time.FixedZone("UTC+5", 5*3600)), "08:00:07"},
		{time.Date(2024, 1, 2, 1, 30, 0, 0, time.FixedZone("UTC-8", -8*3600)), "09:30:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.in))
	}
}

func TestParsedRecordRendersIndependentOfLocalZone(t *testing.T) {
	saved := time.Local
	defer func() { time.Local = saved }()

	for _, zone := range []*time.Location{time.UTC, time.FixedZone("UTC+9", 9*3600), time.FixedZone("UTC-7", -7*3600)} {
		time.Local = zone
		rec, err := ParseLogRecord([]byte(sampleRecord))
		require.NoError(t, err)

		db := newTestDB(t)
		key := db.Log.AddRecord(rec)
		entry, ok := db.Log.GetLog(key)
		require.True(t, ok)
		assert.Equal(t, "22:15:23", entry.Fields()[0], "local zone %s", zone)
	}
}

func TestFormatLogValue(t *testing.T) {
	assert.Equal(t, "open", FormatLogValue(`"open"`))
	assert.Equal(t, "open", FormatLogValue("open"))
	assert.Equal(t, `"`, FormatLogValue(`"`))
	assert.Equal(t, "", FormatLogValue(`""`))
	assert.Equal(t, `"a"`, FormatLogValue(`""a""`))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusEnforce, ParseStatus("enforce"))
	assert.Equal(t, StatusComplain, ParseStatus("COMPLAIN"))
	assert.Equal(t, StatusKill, ParseStatus(" kill\n"))
	assert.Equal(t, StatusUnknown, ParseStatus(""))
	assert.Equal(t, StatusUnknown, ParseStatus("mixed"))
}

func TestEntryFields(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, []string{"07:08:09", "AVC", "open", "/x", "12", "DENIED"},
		LogEntry{Timestamp: ts, Type: "AVC", Operation: "open", Name: "/x", PID: 12, Status: "DENIED"}.Fields())
	assert.Equal(t, []string{"bash", "root", "1", "enforce"},
		ProcessEntry{PID: 1, ProcessName: "bash", User: "root", Status: StatusEnforce}.Fields())
	assert.Equal(t, []string{"p", "complain"}, ProfileEntry{Name: "p", Status: StatusComplain}.Fields())
}
