package database

import (
	"iter"

	"aa_exporter/internal/store"

	"github.com/phuslu/log"
)

// allProfiles is the single group of the profile store, so Profiles walks
// profiles in the order they were first reported.
const allProfiles = "profiles"

// ProfileAdapter merges profile status reports into the profile store.
type ProfileAdapter struct {
	store  store.Writer[string, ProfileEntry]
	notify func(Event)
	log    *log.Logger
}

// NewProfileAdapter wires an adapter to its store. notify may be nil.
func NewProfileAdapter(s store.Writer[string, ProfileEntry], notify func(Event), logger *log.Logger) *ProfileAdapter {
	if notify == nil {
		notify = func(Event) {}
	}
	return &ProfileAdapter{store: s, notify: notify, log: logger}
}

// UpdateProfile records the current status of a profile. Unrecognized status
// strings are stored as StatusUnknown. It reports true only when an already
// known profile changed status; the first report of a profile returns false.
func (a *ProfileAdapter) UpdateProfile(name, status string) bool {
	next := ParseStatus(status)
	var (
		old     Status
		changed bool
	)
	_, outcome := a.store.Upsert(name, store.Placement{Group: allProfiles},
		func() ProfileEntry {
			return ProfileEntry{Name: name, Status: next}
		},
		func(e *ProfileEntry) {
			old = e.Status
			if e.Status != next {
				e.Status = next
				changed = true
			}
		})

	switch {
	case outcome == store.Inserted:
		a.log.Debug().Str("profile", name).Str("status", next.String()).Msg("Profile added")
		a.notify(Event{Kind: KindProfile, Op: OpInserted, Profile: name, NewStatus: next})
	case changed:
		a.log.Info().
			Str("profile", name).
			Str("old_status", old.String()).
			Str("new_status", next.String()).
			Msg("Profile status changed")
		a.notify(Event{Kind: KindProfile, Op: OpStatusChanged, Profile: name, OldStatus: old, NewStatus: next})
	}
	if next == StatusUnknown && status != string(StatusUnknown) {
		a.log.Debug().Str("profile", name).Str("status", status).Msg("Unrecognized profile status stored as unknown")
	}
	return changed
}

// GetProfile returns the profile called name.
func (a *ProfileAdapter) GetProfile(name string) (ProfileEntry, bool) {
	return a.store.Get(name)
}

// Profiles yields every known profile in first-seen order.
func (a *ProfileAdapter) Profiles() iter.Seq[ProfileEntry] {
	return values(a.store.ForEachIn(allProfiles))
}
