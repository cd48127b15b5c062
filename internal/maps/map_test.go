package maps

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	keySpace = 1024
)

type compositeKey struct {
	Profile string
	PID     uint32
}

// --- RWMutexMap (Benchmark Baseline Only) ---

type RWMutexMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewRWMutexMap[K comparable, V any]() ConcurrentMap[K, V] {
	return &RWMutexMap[K, V]{m: make(map[K]V)}
}
func (m *RWMutexMap[K, V]) Load(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.m[key]
	return val, ok
}
func (m *RWMutexMap[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}
func (m *RWMutexMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}
func (m *RWMutexMap[K, V]) LoadAndDelete(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, exists := m.m[key]
	if exists {
		delete(m.m, key)
	}
	return val, exists
}
func (m *RWMutexMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.m[key]; ok {
		return val, true
	}
	val := valueFactory()
	m.m[key] = val
	return val, false
}
func (m *RWMutexMap[K, V]) Update(key K, updateFunc func(value V, exists bool) (newValue V, keep bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldVal, exists := m.m[key]
	newVal, keep := updateFunc(oldVal, exists)
	if keep {
		m.m[key] = newVal
	} else {
		delete(m.m, key)
	}
}
func (m *RWMutexMap[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	copiedMap := make(map[K]V, len(m.m))
	for k, v := range m.m {
		copiedMap[k] = v
	}
	m.mu.RUnlock()

	for k, v := range copiedMap {
		if !f(k, v) {
			return
		}
	}
}
func (m *RWMutexMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// --- Functional tests ---

func TestParseImplementation(t *testing.T) {
	tests := []struct {
		in      string
		want    Implementation
		wantErr bool
	}{
		{"", DefaultImplementation, false},
		{"xsync", XSync, false},
		{"sharded", Sharded, false},
		{"cornelk", Cornelk, false},
		{"sync", "", true},
	}
	for _, tt := range tests {
		got, err := ParseImplementation(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseImplementation(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseImplementation(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	if Cornelk.Atomic() {
		t.Error("cornelk Update must not be reported as atomic")
	}
	if !XSync.Atomic() || !Sharded.Atomic() {
		t.Error("xsync and sharded Update must be reported as atomic")
	}
}

func TestCompositeKeys(t *testing.T) {
	for _, impl := range []Implementation{XSync, Sharded} {
		t.Run(string(impl), func(t *testing.T) {
			m := NewConcurrentMap[compositeKey, string](impl)
			m.Store(compositeKey{"firefox", 10}, "a")
			m.Store(compositeKey{"evince", 10}, "b")

			if v, ok := m.Load(compositeKey{"firefox", 10}); !ok || v != "a" {
				t.Errorf("Load(firefox,10) = %q, %v", v, ok)
			}
			if v, ok := m.Load(compositeKey{"evince", 10}); !ok || v != "b" {
				t.Errorf("Load(evince,10) = %q, %v", v, ok)
			}
			if _, ok := m.Load(compositeKey{"firefox", 11}); ok {
				t.Error("Load of a missing key reported present")
			}
			if m.Len() != 2 {
				t.Errorf("Len() = %d, want 2", m.Len())
			}

			v, loaded := m.LoadOrStore(compositeKey{"firefox", 10}, func() string { return "c" })
			if !loaded || v != "a" {
				t.Errorf("LoadOrStore existing = %q, %v", v, loaded)
			}
			v, loaded = m.LoadOrStore(compositeKey{"firefox", 12}, func() string { return "c" })
			if loaded || v != "c" {
				t.Errorf("LoadOrStore new = %q, %v", v, loaded)
			}
		})
	}
}

func TestIntegerMapBackends(t *testing.T) {
	for _, impl := range []Implementation{XSync, Sharded, Cornelk} {
		t.Run(string(impl), func(t *testing.T) {
			m := NewIntegerMap[uint64, int](impl)
			for i := uint64(1); i <= 100; i++ {
				m.Store(i, int(i))
			}
			if m.Len() != 100 {
				t.Fatalf("Len() = %d, want 100", m.Len())
			}
			sum := 0
			m.Range(func(_ uint64, v int) bool {
				sum += v
				return true
			})
			if sum != 5050 {
				t.Errorf("Range sum = %d, want 5050", sum)
			}
			if v, ok := m.LoadAndDelete(7); !ok || v != 7 {
				t.Errorf("LoadAndDelete(7) = %d, %v", v, ok)
			}
			if _, ok := m.Load(7); ok {
				t.Error("key 7 still present after LoadAndDelete")
			}
		})
	}
}

// TestAtomicUpdate runs concurrent read-modify-write cycles on a small key set.
// Atomic backends must not lose a single increment.
func TestAtomicUpdate(t *testing.T) {
	const (
		workers = 8
		rounds  = 2000
		keys    = 4
	)
	for _, impl := range []Implementation{XSync, Sharded} {
		t.Run(string(impl), func(t *testing.T) {
			m := NewConcurrentMap[compositeKey, int](impl)
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < rounds; i++ {
						key := compositeKey{"p", uint32(i % keys)}
						m.Update(key, func(v int, _ bool) (int, bool) {
							return v + 1, true
						})
					}
				}()
			}
			wg.Wait()

			for k := 0; k < keys; k++ {
				got, _ := m.Load(compositeKey{"p", uint32(k)})
				if want := workers * rounds / keys; got != want {
					t.Errorf("key %d = %d, want %d", k, got, want)
				}
			}
		})
	}
}

func TestUpdateDeleteOfMissingKey(t *testing.T) {
	for _, impl := range []Implementation{XSync, Sharded} {
		m := NewConcurrentMap[string, int](impl)
		m.Update("absent", func(v int, exists bool) (int, bool) {
			return 0, false
		})
		if _, ok := m.Load("absent"); ok {
			t.Errorf("%s: Update with keep=false created the key", impl)
		}
	}
}

// --- Benchmark Runners ---

// runMixedWorkloadBenchmark simulates N goroutines each performing a mix of operations.
func runMixedWorkloadBenchmark(b *testing.B, bm ConcurrentMap[uint32, *int64], readRatio int, writers int) {
	var v int64 = 1
	for i := range keySpace {
		bm.Store(uint32(i), &v)
	}
	b.ResetTimer()
	b.SetParallelism(writers)
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := r.Uint32() % keySpace
			if r.Intn(100) < readRatio {
				_, _ = bm.Load(key)
			} else {
				bm.Store(key, &v)
			}
		}
	})
}

// runLoadOrStoreBenchmark simulates the per-profile group creation pattern.
func runLoadOrStoreBenchmark(b *testing.B, bm ConcurrentMap[uint32, *atomic.Int64], writers int) {
	b.ResetTimer()
	b.SetParallelism(writers)
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		factory := func() *atomic.Int64 { return new(atomic.Int64) }
		for pb.Next() {
			key := r.Uint32() % keySpace
			counter, _ := bm.LoadOrStore(key, factory)
			counter.Add(1)
		}
	})
}

// runUpdateBenchmark simulates the process upsert pattern on composite keys.
func runUpdateBenchmark(b *testing.B, bm ConcurrentMap[compositeKey, uint64], writers int) {
	b.ResetTimer()
	b.SetParallelism(writers)
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := compositeKey{Profile: "profile", PID: r.Uint32() % keySpace}
			bm.Update(key, func(val uint64, exists bool) (uint64, bool) {
				return val + 1, true
			})
		}
	})
}

// --- Main Benchmark Function ---

func BenchmarkMaps(b *testing.B) {
	workloads := []struct {
		name    string
		threads int
	}{
		{"1_Thread", 1},
		{"2_Threads", 2},
		{"Max_Threads_(Generic)", -1}, // -1 will use b.N
	}

	b.Run("Pattern_LoadOrStore_Counters", func(b *testing.B) {
		mapsToTest := []struct {
			name string
			m    ConcurrentMap[uint32, *atomic.Int64]
		}{
			{"RWMutexMap", NewRWMutexMap[uint32, *atomic.Int64]()},
			{"ShardedMap", NewShardedMap[uint32, *atomic.Int64]()},
			{"CornelkHashMap", NewCornelkMap[uint32, *atomic.Int64]()},
			{"XSyncMapV4", NewXSyncMap[uint32, *atomic.Int64]()},
		}
		for _, wl := range workloads {
			b.Run(wl.name, func(b *testing.B) {
				for _, mt := range mapsToTest {
					b.Run(mt.name, func(b *testing.B) {
						runLoadOrStoreBenchmark(b, mt.m, wl.threads)
					})
				}
			})
		}
	})

	b.Run("Pattern_Update_CompositeKey", func(b *testing.B) {
		mapsToTest := []struct {
			name string
			m    ConcurrentMap[compositeKey, uint64]
		}{
			{"RWMutexMap", NewRWMutexMap[compositeKey, uint64]()},
			{"ShardedMap", NewShardedMap[compositeKey, uint64]()},
			{"XSyncMapV4", NewXSyncMap[compositeKey, uint64]()},
		}
		for _, wl := range workloads {
			b.Run(wl.name, func(b *testing.B) {
				for _, mt := range mapsToTest {
					b.Run(mt.name, func(b *testing.B) {
						runUpdateBenchmark(b, mt.m, wl.threads)
					})
				}
			})
		}
	})

	b.Run("Pattern_LoadStore_Simple", func(b *testing.B) {
		mapsToTest := []struct {
			name string
			m    ConcurrentMap[uint32, *int64]
		}{
			{"RWMutexMap", NewRWMutexMap[uint32, *int64]()},
			{"ShardedMap", NewShardedMap[uint32, *int64]()},
			{"CornelkHashMap", NewCornelkMap[uint32, *int64]()},
			{"XSyncMapV4", NewXSyncMap[uint32, *int64]()},
		}
		for _, wl := range workloads {
			b.Run(wl.name, func(b *testing.B) {
				b.Run("ReadHeavy_90R_10W", func(b *testing.B) {
					for _, mt := range mapsToTest {
						b.Run(mt.name, func(b *testing.B) {
							runMixedWorkloadBenchmark(b, mt.m, 90, wl.threads)
						})
					}
				})
				b.Run("WriteHeavy_10R_90W", func(b *testing.B) {
					for _, mt := range mapsToTest {
						b.Run(mt.name, func(b *testing.B) {
							runMixedWorkloadBenchmark(b, mt.m, 10, wl.threads)
						})
					}
				})
			})
		}
	})
}
