package database

import (
	"sync/atomic"

	"aa_exporter/internal/maps"
)

// Kind names the table an Event came from.
type Kind uint8

const (
	KindProfile Kind = iota + 1
	KindProcess
	KindLog
)

func (k Kind) String() string {
	switch k {
	case KindProfile:
		return "profile"
	case KindProcess:
		return "process"
	case KindLog:
		return "log"
	default:
		return "unknown"
	}
}

// Op is what happened to the entry.
type Op uint8

const (
	OpInserted Op = iota + 1
	OpUpdated
	// OpStatusChanged is an update of an existing profile whose status differs
	// from the stored one.
	OpStatusChanged
)

func (o Op) String() string {
	switch o {
	case OpInserted:
		return "inserted"
	case OpUpdated:
		return "updated"
	case OpStatusChanged:
		return "status_changed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a mutation has been published.
type Event struct {
	Kind      Kind
	Op        Op
	Profile   string
	PID       uint32 // processes and logs only
	OldStatus Status // zero on insert
	NewStatus Status
}

// ProfileChange is the payload of a profile status change.
type ProfileChange struct {
	Profile string
	Old     Status
	New     Status
}

// notifier fans events out to subscribers. Delivery is synchronous on the
// writer's goroutine and happens after every store lock has been released, so
// handlers may read the database. Delivery order across subscribers is unspecified.
type notifier struct {
	subs maps.ConcurrentMap[uint64, func(Event)]
	next atomic.Uint64
}

func newNotifier(impl maps.Implementation) *notifier {
	return &notifier{subs: maps.NewIntegerMap[uint64, func(Event)](impl)}
}

func (n *notifier) subscribe(fn func(Event)) func() {
	id := n.next.Add(1)
	n.subs.Store(id, fn)
	return func() { n.subs.Delete(id) }
}

func (n *notifier) emit(ev Event) {
	n.subs.Range(func(_ uint64, fn func(Event)) bool {
		fn(ev)
		return true
	})
}
