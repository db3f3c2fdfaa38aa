// Package workers runs tasks on a fixed set of goroutines.
package workers

import (
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("subsystem", "Workers")

// Pool is a fixed-size worker pool. Tasks are run in submission order by
// whichever worker is free.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	// mu is held for reading while a task is queued so Close never closes
	// the channel under a sender.
	mu     sync.RWMutex
	closed bool
}

// New starts size workers. A size of zero or less uses one worker per CPU.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	p := &Pool{tasks: make(chan func(), size*4)}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}
	log.Debugf("started %d workers", size)
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Do queues task. It blocks while the queue is full and panics once the
// pool is closed.
func (p *Pool) Do(task func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		panic(errors.AssertionFailedf("workers: Do on a closed pool"))
	}
	p.tasks <- task
}

// Run executes every task on the pool and waits for all of them. The
// returned slice holds each task's error at the task's index.
func (p *Pool) Run(tasks ...func() error) []error {
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		i, task := i, task
		p.Do(func() {
			defer wg.Done()
			errs[i] = task()
		})
	}
	wg.Wait()
	return errs
}

// Close waits for queued tasks to finish and stops the workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
}
