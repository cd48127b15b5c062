// Package database holds the profile, process and log tables of the monitor
// and the adapters that merge collector output into them.
//
// Each table is its own store.Store with its own locks; no operation holds
// locks of two tables at once. Adapters are the only holders of a store's
// write capability. Consumers read through the Database accessors and may
// Subscribe to change events.
package database

import (
	"iter"

	"aa_exporter/internal/logger"
	"aa_exporter/internal/store"

	"github.com/phuslu/log"
)

// Options configures a Database.
type Options struct {
	Store store.Options
	// Logger is used as the base for the adapter loggers. When nil the
	// configured default logger is used.
	Logger *log.Logger
}

// Database owns the three tables and their adapters.
type Database struct {
	profiles  *store.Store[string, ProfileEntry]
	processes *store.Store[ProcessKey, ProcessEntry]
	logs      *store.Store[LogKey, LogEntry]

	Profile *ProfileAdapter
	Process *ProcessAdapter
	Log     *LogAdapter

	events *notifier
	log    log.Logger
}

// New builds an empty database.
func New(opts Options) *Database {
	componentLogger := func(component string) *log.Logger {
		l := logger.NewLoggerWithContext(component)
		if opts.Logger != nil {
			l = *opts.Logger
			l.Context = log.NewContext(opts.Logger.Context).Str("component", component).Value()
		}
		return &l
	}

	db := &Database{
		profiles:  store.New[string, ProfileEntry](opts.Store),
		processes: store.New[ProcessKey, ProcessEntry](opts.Store),
		logs:      store.New[LogKey, LogEntry](opts.Store),
		events:    newNotifier(opts.Store.Arena),
		log:       *componentLogger("database"),
	}
	db.Profile = NewProfileAdapter(db.profiles, db.events.emit, componentLogger("profile_adapter"))
	db.Process = NewProcessAdapter(db.processes, db.events.emit, componentLogger("process_adapter"))
	db.Log = NewLogAdapter(db.logs, opts.Store.Index, db.events.emit, componentLogger("log_adapter"))

	db.log.Debug().
		Str("index", string(opts.Store.Index)).
		Str("arena", string(opts.Store.Arena)).
		Msg("Database created")
	return db
}

// Subscribe registers fn for every change event and returns a function that
// removes it. fn runs on the writer's goroutine after the change is visible.
func (db *Database) Subscribe(fn func(Event)) (unsubscribe func()) {
	return db.events.subscribe(fn)
}

// OnProfileStatusChange registers fn for status changes of known profiles.
func (db *Database) OnProfileStatusChange(fn func(ProfileChange)) (unsubscribe func()) {
	return db.Subscribe(func(ev Event) {
		if ev.Kind == KindProfile && ev.Op == OpStatusChanged {
			fn(ProfileChange{Profile: ev.Profile, Old: ev.OldStatus, New: ev.NewStatus})
		}
	})
}

// Profiles is the read-only view of the profile table.
func (db *Database) Profiles() store.Reader[string, ProfileEntry] { return db.profiles }

// Processes is the read-only view of the process table.
func (db *Database) Processes() store.Reader[ProcessKey, ProcessEntry] { return db.processes }

// Logs is the read-only view of the log table.
func (db *Database) Logs() store.Reader[LogKey, LogEntry] { return db.logs }

// ProcessCount returns the number of processes seen under profile, 0 if unknown.
func (db *Database) ProcessCount(profile string) int {
	return db.processes.CountIn(profile)
}

// LogCount returns the number of log lines seen under profile, 0 if unknown.
func (db *Database) LogCount(profile string) int {
	return db.logs.CountIn(profile)
}

// ProfileSummary aggregates one profile for display and export.
type ProfileSummary struct {
	Profile   string `json:"profile"`
	Status    Status `json:"status"`
	Processes int    `json:"processes"`
	Logs      int    `json:"logs"`
}

// Fields returns the columns the filter matches against.
func (s ProfileSummary) Fields() []string {
	return []string{s.Profile, s.Status.String()}
}

// Summary aggregates profile. A profile that has processes or logs but was
// never reported itself has StatusUnknown.
func (db *Database) Summary(profile string) ProfileSummary {
	s := ProfileSummary{
		Profile:   profile,
		Status:    StatusUnknown,
		Processes: db.ProcessCount(profile),
		Logs:      db.LogCount(profile),
	}
	if e, ok := db.profiles.Get(profile); ok {
		s.Status = e.Status
	}
	return s
}

// Summaries yields a summary of every known profile: reported profiles in
// first-seen order, then profiles seen only through processes or logs (such as
// the unconfined "" group), which carry StatusUnknown.
func (db *Database) Summaries() iter.Seq[ProfileSummary] {
	return func(yield func(ProfileSummary) bool) {
		seen := make(map[string]struct{})
		for e := range db.Profile.Profiles() {
			seen[e.Name] = struct{}{}
			if !yield(db.Summary(e.Name)) {
				return
			}
		}
		for _, groups := range [][]string{db.processes.Groups(), db.logs.Groups()} {
			for _, name := range groups {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				if !yield(db.Summary(name)) {
					return
				}
			}
		}
	}
}
