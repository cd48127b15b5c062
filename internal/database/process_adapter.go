package database

import (
	"iter"

	"aa_exporter/internal/store"

	"github.com/phuslu/log"
)

// ProcessAdapter merges process snapshots into the process store, keeping one
// forest of processes per profile.
type ProcessAdapter struct {
	store  store.Writer[ProcessKey, ProcessEntry]
	notify func(Event)
	log    *log.Logger
}

// NewProcessAdapter wires an adapter to its store. notify may be nil.
func NewProcessAdapter(s store.Writer[ProcessKey, ProcessEntry], notify func(Event), logger *log.Logger) *ProcessAdapter {
	if notify == nil {
		notify = func(Event) {}
	}
	return &ProcessAdapter{store: s, notify: notify, log: logger}
}

// UpdateProcess records a process observation.
//
// A known (profile, pid) is updated in place: name, user and status change,
// pid and ppid do not. A new process is placed under the process (profile, ppid)
// when that one is already known, otherwise it becomes a root. Processes are
// never re-parented after insertion, even if their parent shows up later.
func (a *ProcessAdapter) UpdateProcess(processName, profileName string, pid, ppid uint32, user, status string) store.Outcome {
	key := ProcessKey{Profile: profileName, PID: pid}
	next := ParseStatus(status)

	// The parent is resolved before Upsert takes the key's bucket; a parent
	// inserted concurrently may be missed, which leaves the child a root.
	parent := store.NoHandle
	if ppid > 0 && ppid != pid {
		if h, ok := a.store.Handle(ProcessKey{Profile: profileName, PID: ppid}); ok {
			parent = h
		}
	}

	var old Status
	h, outcome := a.store.Upsert(key, store.Placement{Group: profileName, Parent: parent},
		func() ProcessEntry {
			return ProcessEntry{
				PID:         pid,
				PPID:        ppid,
				ProcessName: processName,
				ProfileName: profileName,
				User:        user,
				Status:      next,
			}
		},
		func(e *ProcessEntry) {
			old = e.Status
			e.ProcessName = processName
			e.ProfileName = profileName
			e.User = user
			e.Status = next
		})

	if outcome == store.Inserted {
		_, linked := a.store.Parent(h)
		a.log.Debug().
			Str("profile", profileName).
			Uint32("pid", pid).
			Uint32("ppid", ppid).
			Str("process", processName).
			Bool("root", !linked).
			Msg("Process added")
		a.notify(Event{Kind: KindProcess, Op: OpInserted, Profile: profileName, PID: pid, NewStatus: next})
	} else {
		a.notify(Event{Kind: KindProcess, Op: OpUpdated, Profile: profileName, PID: pid, OldStatus: old, NewStatus: next})
	}
	return outcome
}

// GetProcess returns the process pid of profile. It never mutates the store.
func (a *ProcessAdapter) GetProcess(profile string, pid uint32) (ProcessEntry, bool) {
	return a.store.Get(ProcessKey{Profile: profile, PID: pid})
}

// Processes yields every process of profile in first-seen order.
func (a *ProcessAdapter) Processes(profile string) iter.Seq[ProcessEntry] {
	return values(a.store.ForEachIn(profile))
}

// Roots yields the processes of profile that have no known parent.
func (a *ProcessAdapter) Roots(profile string) iter.Seq[ProcessEntry] {
	return values(a.store.RootsIn(profile))
}

// Children yields the direct children of (profile, pid).
func (a *ProcessAdapter) Children(profile string, pid uint32) iter.Seq[ProcessEntry] {
	h, ok := a.store.Handle(ProcessKey{Profile: profile, PID: pid})
	if !ok {
		return func(func(ProcessEntry) bool) {}
	}
	return values(a.store.Children(h))
}

// Parent returns the process (profile, pid) was inserted under.
func (a *ProcessAdapter) Parent(profile string, pid uint32) (ProcessEntry, bool) {
	h, ok := a.store.Handle(ProcessKey{Profile: profile, PID: pid})
	if !ok {
		return ProcessEntry{}, false
	}
	p, ok := a.store.Parent(h)
	if !ok {
		return ProcessEntry{}, false
	}
	return a.store.Lookup(p)
}

func values[T any](seq iter.Seq2[store.Handle, T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range seq {
			if !yield(v) {
				return
			}
		}
	}
}
