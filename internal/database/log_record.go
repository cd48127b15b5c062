package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMalformedLogRecord is matched by every error ParseLogRecord returns.
// Callers skip the record and keep reading the stream.
var ErrMalformedLogRecord = errors.New("malformed log record")

// MalformedLogRecordError names the field that could not be extracted.
type MalformedLogRecordError struct {
	Field  string
	Reason string
}

func (e *MalformedLogRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedLogRecord, e.Reason)
	}
	return fmt.Sprintf("%s: field %s: %s", ErrMalformedLogRecord, e.Field, e.Reason)
}

func (e *MalformedLogRecordError) Unwrap() error { return ErrMalformedLogRecord }

// LogRecord holds the fields extracted from one raw journal record, ready for AddLog.
type LogRecord struct {
	Profile   string
	Timestamp time.Time
	Type      string
	Operation string
	Name      string
	PID       uint32
	Status    string
}

// Journal keys of the audit fields, as emitted by `journalctl --output=json`.
const (
	fieldTimestamp = "_SOURCE_REALTIME_TIMESTAMP"
	fieldType      = "_AUDIT_TYPE_NAME"
	fieldOperation = "_AUDIT_FIELD_OPERATION"
	fieldName      = "_AUDIT_FIELD_NAME"
	fieldPID       = "_PID"
	fieldStatus    = "_AUDIT_FIELD_APPARMOR"
	fieldProfile   = "_AUDIT_FIELD_PROFILE"
)

var logRecordFields = []string{
	fieldTimestamp,
	fieldType,
	fieldOperation,
	fieldName,
	fieldPID,
	fieldStatus,
	fieldProfile,
}

// ParseLogRecord extracts a LogRecord from one journal JSON object. Every field
// is required; a missing or unparseable one yields a *MalformedLogRecordError.
func ParseLogRecord(raw []byte) (LogRecord, error) {
	if !gjson.ValidBytes(raw) {
		return LogRecord{}, &MalformedLogRecordError{Reason: "invalid JSON"}
	}
	results := gjson.GetManyBytes(raw, logRecordFields...)
	for i, r := range results {
		if !r.Exists() || r.Type == gjson.Null {
			return LogRecord{}, &MalformedLogRecordError{Field: logRecordFields[i], Reason: "missing"}
		}
	}

	micros, err := strconv.ParseInt(strings.TrimSpace(results[0].String()), 10, 64)
	if err != nil || micros < 0 {
		return LogRecord{}, &MalformedLogRecordError{Field: fieldTimestamp, Reason: "not a microsecond timestamp"}
	}
	pid, err := strconv.ParseUint(strings.TrimSpace(results[4].String()), 10, 32)
	if err != nil {
		return LogRecord{}, &MalformedLogRecordError{Field: fieldPID, Reason: "not a pid"}
	}

	return LogRecord{
		Timestamp: time.Unix(micros/int64(time.Second/time.Microsecond), 0).UTC(),
		Type:      results[1].String(),
		Operation: FormatLogValue(results[2].String()),
		Name:      FormatLogValue(results[3].String()),
		PID:       uint32(pid),
		Status:    FormatLogValue(results[5].String()),
		Profile:   FormatLogValue(results[6].String()),
	}, nil
}

// FormatTimestamp renders t as 24-hour, zero-padded HH:MM:SS in UTC, so the
// output does not depend on the host time zone.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.TimeOnly)
}

// FormatLogValue strips one pair of surrounding double quotes, as the audit
// subsystem quotes string fields.
func FormatLogValue(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
