package workers

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
)

func TestRunCollectsErrorsByIndex(t *testing.T) {
	c := qt.New(t)

	p := New(2)
	defer p.Close()

	var calls int32
	failed := errors.New("failed")
	errs := p.Run(
		func() error { atomic.AddInt32(&calls, 1); return nil },
		func() error { atomic.AddInt32(&calls, 1); return failed },
		func() error { atomic.AddInt32(&calls, 1); return nil },
	)

	c.Assert(atomic.LoadInt32(&calls), qt.Equals, int32(3))
	c.Assert(errs, qt.HasLen, 3)
	c.Assert(errs[0], qt.IsNil)
	c.Assert(errs[1], qt.Equals, failed)
	c.Assert(errs[2], qt.IsNil)
}

func TestRunEmpty(t *testing.T) {
	c := qt.New(t)

	p := New(0)
	defer p.Close()

	c.Assert(p.Run(), qt.HasLen, 0)
}

func TestCloseDrainsQueue(t *testing.T) {
	c := qt.New(t)

	p := New(1)
	var done int32
	for i := 0; i < 10; i++ {
		p.Do(func() { atomic.AddInt32(&done, 1) })
	}
	p.Close()
	p.Close()

	c.Assert(atomic.LoadInt32(&done), qt.Equals, int32(10))
	c.Assert(func() { p.Do(func() {}) }, qt.PanicMatches, ".*Do on a closed pool")
}

func TestCloseWhileQueueing(t *testing.T) {
	c := qt.New(t)

	for i := 0; i < 200; i++ {
		p := New(1)
		var queued, ran int32

		var wg sync.WaitGroup
		wg.Add(4)
		for j := 0; j < 4; j++ {
			go func() {
				defer wg.Done()
				defer func() {
					// Losing the race with Close is the assertion panic, never
					// a send on a closed channel.
					if r := recover(); r != nil {
						c.Check(r, qt.ErrorMatches, ".*Do on a closed pool")
					}
				}()
				for k := 0; k < 8; k++ {
					p.Do(func() { atomic.AddInt32(&ran, 1) })
					atomic.AddInt32(&queued, 1)
				}
			}()
		}
		p.Close()
		wg.Wait()

		c.Assert(atomic.LoadInt32(&ran), qt.Equals, atomic.LoadInt32(&queued))
	}
}
