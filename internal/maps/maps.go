package maps

import "fmt"

// Implementation names a ConcurrentMap backend.
// Valid options: "xsync", "sharded", "cornelk".
type Implementation string

const (
	XSync   Implementation = "xsync"
	Sharded Implementation = "sharded"
	Cornelk Implementation = "cornelk"
)

// DefaultImplementation is used when no backend is configured.
const DefaultImplementation = XSync

// Integer is a constraint that permits any integer type.
// All integer types are comparable.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap defines a generic, thread-safe map interface.
// This abstraction allows swapping the underlying implementation without
// changing the business logic in the stores.
type ConcurrentMap[K comparable, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadAndDelete(key K) (V, bool)
	// LoadOrStore returns the existing value, or stores the factory result.
	// loaded is true if the value was already present.
	LoadOrStore(key K, valueFactory func() V) (value V, loaded bool)
	// Update runs updateFunc as a single read-modify-write for key.
	// Only backends whose Implementation.Atomic() is true hold the key's
	// bucket exclusively while updateFunc runs.
	Update(key K, updateFunc func(value V, exists bool) (newValue V, keep bool))
	Range(f func(key K, value V) bool)
	Len() int
}

// ParseImplementation validates a backend name. An empty name selects the default.
func ParseImplementation(name string) (Implementation, error) {
	switch impl := Implementation(name); impl {
	case "":
		return DefaultImplementation, nil
	case XSync, Sharded, Cornelk:
		return impl, nil
	default:
		return "", fmt.Errorf("unknown map implementation %q", name)
	}
}

// Atomic reports whether Update is a true atomic read-modify-write for this backend.
func (i Implementation) Atomic() bool {
	return i == XSync || i == Sharded
}

// SupportsAnyKey reports whether the backend accepts any comparable key type.
// cornelk/hashmap is restricted to integer and string keys.
func (i Implementation) SupportsAnyKey() bool {
	return i != Cornelk
}

// NewConcurrentMap is a factory for maps keyed by any comparable type.
// cornelk is not available for arbitrary keys; requesting it falls back to xsync.
func NewConcurrentMap[K comparable, V any](impl Implementation) ConcurrentMap[K, V] {
	switch impl {
	case Sharded:
		return NewShardedMap[K, V]()
	case XSync:
		return NewXSyncMap[K, V]()
	default:
		// Default to the highest-performing implementation as a safe fallback.
		return NewXSyncMap[K, V]()
	}
}

// NewIntegerMap is a factory for integer-keyed maps, where every backend is available.
func NewIntegerMap[K Integer, V any](impl Implementation) ConcurrentMap[K, V] {
	if impl == Cornelk {
		return NewCornelkMap[K, V]()
	}
	return NewConcurrentMap[K, V](impl)
}
