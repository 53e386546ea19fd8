package main

import (
	"sync"
)

// syncMap is sync.Map with types. The server keeps its live sessions here.
type syncMap[K comparable, V any] struct {
	m sync.Map
}

func (m *syncMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (m *syncMap[K, V]) Set(key K, value V) {
	m.m.Store(key, value)
}

func (m *syncMap[K, V]) Delete(key K) {
	m.m.Delete(key)
}

func (m *syncMap[K, V]) Len() int {
	n := 0
	m.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
