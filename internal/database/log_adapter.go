package database

import (
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"aa_exporter/internal/maps"
	"aa_exporter/internal/store"

	"github.com/google/btree"
	"github.com/phuslu/log"
)

// timelineItem orders the log lines of one profile by (timestamp, seq).
type timelineItem struct {
	ts     int64
	seq    uint64
	handle store.Handle
}

func timelineLess(a, b timelineItem) bool {
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	return a.seq < b.seq
}

type timeline struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[timelineItem]
}

func newTimeline() *timeline {
	return &timeline{tree: btree.NewG(32, timelineLess)}
}

// LogAdapter appends log lines to the log store. Lines are never updated.
type LogAdapter struct {
	store     store.Writer[LogKey, LogEntry]
	seq       atomic.Uint64
	timelines maps.ConcurrentMap[string, *timeline]
	notify    func(Event)
	log       *log.Logger
}

// NewLogAdapter wires an adapter to its store. notify may be nil.
func NewLogAdapter(s store.Writer[LogKey, LogEntry], impl maps.Implementation, notify func(Event), logger *log.Logger) *LogAdapter {
	if notify == nil {
		notify = func(Event) {}
	}
	return &LogAdapter{
		store:     s,
		timelines: maps.NewConcurrentMap[string, *timeline](impl),
		notify:    notify,
		log:       logger,
	}
}

// AddLog inserts a new log line and returns its key. Two lines with the same
// profile and second are kept apart by an adapter-wide sequence number.
func (a *LogAdapter) AddLog(profile string, ts time.Time, typ, operation, name string, pid uint32, status string) LogKey {
	key := LogKey{Profile: profile, Timestamp: ts.Unix(), Seq: a.seq.Add(1)}
	h, outcome := a.store.Upsert(key, store.Placement{Group: profile},
		func() LogEntry {
			return LogEntry{
				Key:         key,
				Timestamp:   ts,
				Type:        typ,
				Operation:   operation,
				Name:        name,
				PID:         pid,
				Status:      status,
				ProfileName: profile,
			}
		}, nil)
	if outcome != store.Inserted {
		panic(fmt.Sprintf("database: log key %+v inserted twice", key))
	}

	tl, _ := a.timelines.LoadOrStore(profile, newTimeline)
	tl.mu.Lock()
	tl.tree.ReplaceOrInsert(timelineItem{ts: key.Timestamp, seq: key.Seq, handle: h})
	tl.mu.Unlock()

	a.log.Trace().
		Str("profile", profile).
		Int64("timestamp", key.Timestamp).
		Uint64("seq", key.Seq).
		Str("operation", operation).
		Msg("Log added")
	a.notify(Event{Kind: KindLog, Op: OpInserted, Profile: profile, PID: pid})
	return key
}

// AddRecord inserts a parsed log record.
func (a *LogAdapter) AddRecord(r LogRecord) LogKey {
	return a.AddLog(r.Profile, r.Timestamp, r.Type, r.Operation, r.Name, r.PID, r.Status)
}

// GetLog returns the line stored under key.
func (a *LogAdapter) GetLog(key LogKey) (LogEntry, bool) {
	return a.store.Get(key)
}

// Logs yields the lines of profile in arrival order.
func (a *LogAdapter) Logs(profile string) iter.Seq[LogEntry] {
	return values(a.store.ForEachIn(profile))
}

// LogsBetween returns the lines of profile with from <= timestamp < to, at
// whole-second granularity, oldest first.
func (a *LogAdapter) LogsBetween(profile string, from, to time.Time) []LogEntry {
	tl, ok := a.timelines.Load(profile)
	if !ok {
		return nil
	}
	var handles []store.Handle
	tl.mu.RLock()
	tl.tree.AscendRange(
		timelineItem{ts: from.Unix()},
		timelineItem{ts: to.Unix()},
		func(it timelineItem) bool {
			handles = append(handles, it.handle)
			return true
		})
	tl.mu.RUnlock()
	return a.resolve(handles)
}

// Latest returns up to n of the newest lines of profile, newest first.
func (a *LogAdapter) Latest(profile string, n int) []LogEntry {
	tl, ok := a.timelines.Load(profile)
	if !ok || n <= 0 {
		return nil
	}
	handles := make([]store.Handle, 0, n)
	tl.mu.RLock()
	tl.tree.Descend(func(it timelineItem) bool {
		handles = append(handles, it.handle)
		return len(handles) < n
	})
	tl.mu.RUnlock()
	return a.resolve(handles)
}

func (a *LogAdapter) resolve(handles []store.Handle) []LogEntry {
	out := make([]LogEntry, 0, len(handles))
	for _, h := range handles {
		e, ok := a.store.Lookup(h)
		if !ok {
			panic(fmt.Sprintf("database: timeline references missing log handle %d", h))
		}
		out = append(out, e)
	}
	return out
}
