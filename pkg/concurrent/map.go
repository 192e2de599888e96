package concurrent

import "sync"

type Map[K comparable, V any] struct {
	mu     sync.RWMutex
	values map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		values: make(map[K]V),
	}
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.values[key]
	return val, ok
}

func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
}

// Update applies f to the current value while holding the write lock, so the
// read-modify-write cycle cannot interleave with other writers. f receives the
// zero value and ok=false when the key is absent. The returned value is stored.
func (m *Map[K, V]) Update(key K, f func(value V, ok bool) V) V {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.values[key]
	val := f(old, ok)
	m.values[key] = val
	return val
}

// Replace applies f to an existing value while holding the write lock and
// stores the result. It reports false without storing anything when the key
// is absent.
func (m *Map[K, V]) Replace(key K, f func(value V) V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.values[key]
	if !ok {
		var zero V
		return zero, false
	}
	val := f(old)
	m.values[key] = val
	return val, true
}

func (m *Map[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.values[key]
	delete(m.values, key)
	return ok
}

func (m *Map[K, V]) Length() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.values)
}

func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for k, v := range m.values {
		if !f(k, v) {
			break
		}
	}
}
