package ident

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestNextIsUniqueAcrossGoroutines(t *testing.T) {
	c := qt.New(t)

	const workers, perWorker = 8, 1000
	results := make([][]uint64, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results[w] = append(results[w], Next())
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool, workers*perWorker)
	for _, issued := range results {
		for i, id := range issued {
			c.Assert(id, qt.Not(qt.Equals), uint64(0))
			c.Assert(seen[id], qt.IsFalse, qt.Commentf("id %d issued twice", id))
			seen[id] = true
			if i > 0 {
				c.Assert(id > issued[i-1], qt.IsTrue)
			}
		}
	}
	c.Assert(seen, qt.HasLen, workers*perWorker)
}

func TestArenaStaleKey(t *testing.T) {
	c := qt.New(t)

	var arena Arena[string]
	first := arena.Insert("first")
	c.Assert(arena.Remove(first), qt.IsTrue)

	second := arena.Insert("second")
	_, ok := arena.Get(first)
	c.Assert(ok, qt.IsFalse)
	c.Assert(arena.Remove(first), qt.IsFalse)

	value, ok := arena.Get(second)
	c.Assert(ok, qt.IsTrue)
	c.Assert(value, qt.Equals, "second")
	c.Assert(arena.Len(), qt.Equals, 1)
}

func TestArenaZeroKey(t *testing.T) {
	c := qt.New(t)

	var arena Arena[int]
	arena.Insert(1)

	var key Key
	c.Assert(key.IsZero(), qt.IsTrue)
	_, ok := arena.Get(key)
	c.Assert(ok, qt.IsFalse)
}

func TestArenaEachInSlotOrder(t *testing.T) {
	c := qt.New(t)

	var arena Arena[int]
	keys := []Key{arena.Insert(10), arena.Insert(20), arena.Insert(30)}
	arena.Remove(keys[1])

	var values []int
	arena.Each(func(key Key, value int) {
		values = append(values, value)
	})
	c.Assert(values, qt.DeepEquals, []int{10, 30})
}

func BenchmarkNext(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			Next()
		}
	})
}
