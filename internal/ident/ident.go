// Package ident issues resource identifiers and stores resources behind
// generational keys.
package ident

import "sync/atomic"

var counter uint64

// Next returns a process wide unique number. Numbers start at 1 and are
// strictly increasing in issuance order, so 0 never names a live resource.
func Next() uint64 {
	return atomic.AddUint64(&counter, 1)
}

// Key names a slot in an Arena. A key outlives the value it names: once
// the value is removed the key resolves to nothing, even if the slot is
// reused.
type Key struct {
	index      uint32
	generation uint32
}

// IsZero reports whether the key was never issued by an arena.
func (k Key) IsZero() bool {
	return k.generation == 0
}

type slot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Arena is a dense store of values addressed by generational keys. It is
// not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func (a *Arena[T]) Insert(value T) Key {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}

	s := &a.slots[index]
	s.generation++
	s.value = value
	s.live = true
	a.live++
	return Key{index: index, generation: s.generation}
}

func (a *Arena[T]) Get(key Key) (T, bool) {
	var zero T
	if key.IsZero() || int(key.index) >= len(a.slots) {
		return zero, false
	}

	s := a.slots[key.index]
	if !s.live || s.generation != key.generation {
		return zero, false
	}
	return s.value, true
}

// Remove drops the value named by key. It reports false for stale keys.
func (a *Arena[T]) Remove(key Key) bool {
	if _, ok := a.Get(key); !ok {
		return false
	}

	var zero T
	s := &a.slots[key.index]
	s.value = zero
	s.live = false
	a.free = append(a.free, key.index)
	a.live--
	return true
}

func (a *Arena[T]) Len() int {
	return a.live
}

// Each calls fn for every live value in slot order.
func (a *Arena[T]) Each(fn func(Key, T)) {
	for i := range a.slots {
		s := a.slots[i]
		if s.live {
			fn(Key{index: uint32(i), generation: s.generation}, s.value)
		}
	}
}
