package database

import (
	"strconv"
	"time"
)

// ProfileEntry is one profile and its current mode.
type ProfileEntry struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Fields returns the columns the filter matches against.
func (e ProfileEntry) Fields() []string {
	return []string{e.Name, e.Status.String()}
}

// ProcessKey identifies a process within its profile. An empty Profile is the
// unconfined group.
type ProcessKey struct {
	Profile string
	PID     uint32
}

// ProcessEntry is the latest snapshot of one confined (or unconfined) process.
// PID and PPID never change after insertion.
type ProcessEntry struct {
	PID         uint32 `json:"pid"`
	PPID        uint32 `json:"ppid"`
	ProcessName string `json:"process_name"`
	ProfileName string `json:"profile_name"`
	User        string `json:"user"`
	Status      Status `json:"status"`
}

func (e ProcessEntry) Key() ProcessKey {
	return ProcessKey{Profile: e.ProfileName, PID: e.PID}
}

// Fields returns the columns the filter matches against.
func (e ProcessEntry) Fields() []string {
	return []string{e.ProcessName, e.User, strconv.FormatUint(uint64(e.PID), 10), e.Status.String()}
}

// LogKey identifies one log line. Seq disambiguates lines of the same profile
// logged within the same second.
type LogKey struct {
	Profile   string
	Timestamp int64 // unix seconds
	Seq       uint64
}

// LogEntry is a single policy log line.
type LogEntry struct {
	Key         LogKey    `json:"-"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Operation   string    `json:"operation"`
	Name        string    `json:"name"`
	PID         uint32    `json:"pid"`
	Status      string    `json:"status"`
	ProfileName string    `json:"profile_name"`
}

// Fields returns the columns the filter matches against.
func (e LogEntry) Fields() []string {
	return []string{
		FormatTimestamp(e.Timestamp),
		e.Type,
		e.Operation,
		e.Name,
		strconv.FormatUint(uint64(e.PID), 10),
		e.Status,
	}
}
