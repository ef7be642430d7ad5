package registry

import (
	"sort"
	"sync"

	"github.com/vitwit/wrldpay/types"
)

type table[V any] struct {
	mu      sync.RWMutex
	entries map[types.IntentKey]*V
	created func(*V) int64
}

func newTable[V any](created func(*V) int64) *table[V] {
	return &table[V]{
		entries: make(map[types.IntentKey]*V),
		created: created,
	}
}

func (t *table[V]) put(key types.IntentKey, v *V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = v
}

func (t *table[V]) putIfAbsent(key types.IntentKey, v *V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[key]; exists {
		return false
	}
	t.entries[key] = v
	return true
}

func (t *table[V]) get(key types.IntentKey) (*V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

func (t *table[V]) remove(key types.IntentKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	return true
}

// compareAndRemove deletes key only while it still maps to v.
func (t *table[V]) compareAndRemove(key types.IntentKey, v *V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.entries[key]; !ok || cur != v {
		return false
	}
	delete(t.entries, key)
	return true
}

func (t *table[V]) take(key types.IntentKey) (*V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return v, ok
}

func (t *table[V]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// snapshot copies every entry, oldest first.
func (t *table[V]) snapshot() []V {
	t.mu.RLock()
	out := make([]V, 0, len(t.entries))
	for _, v := range t.entries {
		out = append(out, *v)
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return t.created(&out[i]) < t.created(&out[j])
	})
	return out
}
