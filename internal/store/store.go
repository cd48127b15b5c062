// Package store implements the indexed record store shared by the profile,
// process and log tables.
//
// Every entity lives in an arena slot addressed by a Handle. The primary index
// maps a kind-specific key to its handle, and a secondary index keeps the
// handles of each group (profile name) in first-seen order. Parent/child links
// are plain handle fields, so there are no pointer cycles between entries.
//
// Slot values are immutable snapshots swapped atomically on update: a reader
// sees either the old or the new value of an entry, never a partial write.
package store

import (
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"aa_exporter/internal/maps"
)

// Handle addresses one entry in a Store's arena. The zero Handle means "none".
type Handle uint64

// NoHandle is the absent handle, used for roots and failed lookups.
const NoHandle Handle = 0

// Outcome reports what an Upsert did.
type Outcome uint8

const (
	Inserted Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Placement tells Upsert where a new entry goes. It is ignored for existing keys.
type Placement struct {
	Group  string // Secondary index key, e.g. the profile name.
	Parent Handle // Parent entry in the same group, or NoHandle for a root.
}

// Options selects the map backends of a Store.
type Options struct {
	Index maps.Implementation // Primary and group indices. Must have an atomic Update.
	Arena maps.Implementation // Handle arena.
}

// DefaultOptions returns xsync indices over a lock-free cornelk arena.
func DefaultOptions() Options {
	return Options{Index: maps.XSync, Arena: maps.Cornelk}
}

// Reader is the read-only view handed to consumers.
type Reader[K comparable, T any] interface {
	Get(key K) (T, bool)
	Handle(key K) (Handle, bool)
	Lookup(h Handle) (T, bool)
	Parent(h Handle) (Handle, bool)
	ForEachIn(group string) iter.Seq2[Handle, T]
	RootsIn(group string) iter.Seq2[Handle, T]
	Children(h Handle) iter.Seq2[Handle, T]
	CountIn(group string) int
	Groups() []string
	Len() int
}

// Writer is the mutation capability. Only adapters are constructed with it.
type Writer[K comparable, T any] interface {
	Reader[K, T]
	Upsert(key K, at Placement, create func() T, mutate func(*T)) (Handle, Outcome)
}

type node[T any] struct {
	value  atomic.Pointer[T]
	group  string
	parent Handle

	mu       sync.RWMutex
	children []Handle
}

func (n *node[T]) addChild(h Handle) {
	n.mu.Lock()
	n.children = append(n.children, h)
	n.mu.Unlock()
}

// childHandles returns the child list as of now. The slice is append-only, so
// the prefix we return never changes underneath the caller.
func (n *node[T]) childHandles() []Handle {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.children[:len(n.children):len(n.children)]
}

type group struct {
	mu      sync.RWMutex
	handles []Handle
	roots   []Handle
}

func (g *group) add(h Handle, root bool) {
	g.mu.Lock()
	g.handles = append(g.handles, h)
	if root {
		g.roots = append(g.roots, h)
	}
	g.mu.Unlock()
}

func (g *group) snapshot(rootsOnly bool) []Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if rootsOnly {
		return g.roots[:len(g.roots):len(g.roots)]
	}
	return g.handles[:len(g.handles):len(g.handles)]
}

func (g *group) count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.handles)
}

// Store holds every entity of one kind T, keyed by K.
type Store[K comparable, T any] struct {
	primary maps.ConcurrentMap[K, Handle]
	arena   maps.ConcurrentMap[Handle, *node[T]]
	groups  maps.ConcurrentMap[string, *group]

	groupOrderMu sync.Mutex
	groupOrder   []string

	next atomic.Uint64
	size atomic.Int64
}

// New creates a Store. It panics if the index backend cannot update atomically,
// since that would allow lost updates on concurrent upserts of one key.
func New[K comparable, T any](opts Options) *Store[K, T] {
	if opts.Index == "" {
		opts.Index = maps.DefaultImplementation
	}
	if opts.Arena == "" {
		opts.Arena = maps.Cornelk
	}
	if !opts.Index.Atomic() || !opts.Index.SupportsAnyKey() {
		panic(fmt.Sprintf("store: index implementation %q cannot serve as a primary index", opts.Index))
	}
	return &Store[K, T]{
		primary: maps.NewConcurrentMap[K, Handle](opts.Index),
		arena:   maps.NewIntegerMap[Handle, *node[T]](opts.Arena),
		groups:  maps.NewConcurrentMap[string, *group](opts.Index),
	}
}

// Upsert looks up key and either mutates the existing entry in place or
// constructs and inserts a new one. The look-up-and-mutate sequence is atomic
// with respect to other writers of the same key and does not block other keys.
//
// mutate receives a private copy of the current value; the copy is published
// atomically once mutate returns. create and mutate must not call back into
// this Store.
func (s *Store[K, T]) Upsert(key K, at Placement, create func() T, mutate func(*T)) (Handle, Outcome) {
	var (
		h       Handle
		outcome Outcome
	)
	s.primary.Update(key, func(existing Handle, exists bool) (Handle, bool) {
		if exists {
			n := s.mustNode(existing)
			cur := *n.value.Load()
			if mutate != nil {
				mutate(&cur)
			}
			n.value.Store(&cur)
			h, outcome = existing, Updated
			return existing, true
		}

		h, outcome = Handle(s.next.Add(1)), Inserted
		v := create()
		n := &node[T]{group: at.Group}
		n.value.Store(&v)

		var parent *node[T]
		if at.Parent != NoHandle {
			if p, ok := s.arena.Load(at.Parent); ok && p.group == at.Group {
				parent = p
				n.parent = at.Parent
			}
		}

		// Publish order: arena slot, parent link, group index, then the primary
		// key when Update returns. Anything reachable through an index is
		// therefore already resolvable in the arena.
		s.arena.Store(h, n)
		if parent != nil {
			parent.addChild(h)
		}
		s.group(at.Group).add(h, parent == nil)
		s.size.Add(1)
		return h, true
	})
	return h, outcome
}

// Get returns a snapshot of the entry stored under key.
func (s *Store[K, T]) Get(key K) (T, bool) {
	h, ok := s.primary.Load(key)
	if !ok {
		var zero T
		return zero, false
	}
	return *s.mustNode(h).value.Load(), true
}

// Handle returns the arena handle for key.
func (s *Store[K, T]) Handle(key K) (Handle, bool) {
	return s.primary.Load(key)
}

// Lookup returns a snapshot of the entry at h.
func (s *Store[K, T]) Lookup(h Handle) (T, bool) {
	n, ok := s.arena.Load(h)
	if !ok {
		var zero T
		return zero, false
	}
	return *n.value.Load(), true
}

// Parent returns the parent handle of h, if h was inserted under a parent.
func (s *Store[K, T]) Parent(h Handle) (Handle, bool) {
	n, ok := s.arena.Load(h)
	if !ok || n.parent == NoHandle {
		return NoHandle, false
	}
	return n.parent, true
}

// ForEachIn yields every entry of group in first-seen order. The sequence is
// lazy and can be ranged over again; entries inserted after the range starts
// are not included in that pass.
func (s *Store[K, T]) ForEachIn(group string) iter.Seq2[Handle, T] {
	return func(yield func(Handle, T) bool) {
		g, ok := s.groups.Load(group)
		if !ok {
			return
		}
		s.yieldHandles(g.snapshot(false), yield)
	}
}

// RootsIn yields the entries of group that have no parent, in first-seen order.
func (s *Store[K, T]) RootsIn(group string) iter.Seq2[Handle, T] {
	return func(yield func(Handle, T) bool) {
		g, ok := s.groups.Load(group)
		if !ok {
			return
		}
		s.yieldHandles(g.snapshot(true), yield)
	}
}

// Children yields the direct children of h in first-seen order.
func (s *Store[K, T]) Children(h Handle) iter.Seq2[Handle, T] {
	return func(yield func(Handle, T) bool) {
		n, ok := s.arena.Load(h)
		if !ok {
			return
		}
		s.yieldHandles(n.childHandles(), yield)
	}
}

func (s *Store[K, T]) yieldHandles(handles []Handle, yield func(Handle, T) bool) {
	for _, h := range handles {
		if !yield(h, *s.mustNode(h).value.Load()) {
			return
		}
	}
}

// CountIn returns the number of entries in group without walking them.
func (s *Store[K, T]) CountIn(group string) int {
	g, ok := s.groups.Load(group)
	if !ok {
		return 0
	}
	return g.count()
}

// Groups returns the known group names in first-seen order.
func (s *Store[K, T]) Groups() []string {
	s.groupOrderMu.Lock()
	defer s.groupOrderMu.Unlock()
	out := make([]string, len(s.groupOrder))
	copy(out, s.groupOrder)
	return out
}

// Len returns the total number of entries.
func (s *Store[K, T]) Len() int {
	return int(s.size.Load())
}

func (s *Store[K, T]) group(name string) *group {
	g, loaded := s.groups.LoadOrStore(name, func() *group { return new(group) })
	if !loaded {
		s.groupOrderMu.Lock()
		s.groupOrder = append(s.groupOrder, name)
		s.groupOrderMu.Unlock()
	}
	return g
}

// mustNode resolves a handle that an index promised exists.
func (s *Store[K, T]) mustNode(h Handle) *node[T] {
	n, ok := s.arena.Load(h)
	if !ok {
		panic(fmt.Sprintf("store: index references handle %d missing from the arena", h))
	}
	return n
}
