package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidStatus is returned for a status document that is not valid JSON.
var ErrInvalidStatus = errors.New("invalid aa-status document")

// StatusStats counts what ApplyStatus did.
type StatusStats struct {
	Profiles  int
	Changed   int
	Processes int
	Skipped   int
}

// ApplyStatus merges an `aa-status --json` document into the database:
//
//	{"profiles": {"<name>": "<mode>"},
//	 "processes": {"<exe>": [{"profile": "<name>", "pid": "<pid>", "status": "<mode>"}]}}
//
// Process entries without a usable pid are skipped.
func (f *Feeder) ApplyStatus(raw []byte) (StatusStats, error) {
	var stats StatusStats
	if !gjson.ValidBytes(raw) {
		return stats, ErrInvalidStatus
	}
	doc := gjson.ParseBytes(raw)

	doc.Get("profiles").ForEach(func(name, mode gjson.Result) bool {
		stats.Profiles++
		if f.db.Profile.UpdateProfile(name.String(), mode.String()) {
			stats.Changed++
		}
		return true
	})

	doc.Get("processes").ForEach(func(exe, procs gjson.Result) bool {
		procs.ForEach(func(_, p gjson.Result) bool {
			pid, err := strconv.ParseUint(p.Get("pid").String(), 10, 32)
			if err != nil || pid == 0 {
				stats.Skipped++
				f.log.Debug().Str("process", exe.String()).Str("pid", p.Get("pid").String()).Msg("Skipping process without pid")
				return true
			}
			ppid, _ := strconv.ParseUint(p.Get("ppid").String(), 10, 32)
			f.db.Process.UpdateProcess(
				exe.String(),
				p.Get("profile").String(),
				uint32(pid),
				uint32(ppid),
				p.Get("user").String(),
				p.Get("status").String(),
			)
			stats.Processes++
			return true
		})
		return true
	})

	f.log.Debug().
		Int("profiles", stats.Profiles).
		Int("changed", stats.Changed).
		Int("processes", stats.Processes).
		Msg("Applied status snapshot")
	return stats, nil
}

// ApplyStatusFile reads path and applies it.
func (f *Feeder) ApplyStatusFile(path string) (StatusStats, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StatusStats{}, fmt.Errorf("failed to read status file: %w", err)
	}
	stats, err := f.ApplyStatus(raw)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", path, err)
	}
	return stats, nil
}

// PollStatus applies path every interval until ctx is done. Failed reads are
// logged and retried on the next tick.
func (f *Feeder) PollStatus(ctx context.Context, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.ApplyStatusFile(path); err != nil {
				f.log.Warn().Err(err).Msg("Status snapshot refresh failed")
			}
		}
	}
}
