package render

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
)

// RecordFunc records commands into a one-shot command buffer.
type RecordFunc func(gpu.CommandBuffer) error

type submitRequest struct {
	record RecordFunc
	done   chan error
}

// Submitter runs one-shot transfer work on its own goroutine. Requests
// queued while a batch is in flight are recorded together into a single
// command buffer, submitted once and waited on with a queue idle.
type Submitter struct {
	device gpu.Device
	queue  gpu.Queue
	pool   gpu.CommandPool
	buffer gpu.CommandBuffer

	requests chan submitRequest
	wg       sync.WaitGroup

	// sendMu is held for reading while a request is queued so Close never
	// closes the channel under a sender.
	sendMu sync.RWMutex
	closed bool

	mu      sync.Mutex
	batches int
}

func NewSubmitter(device gpu.Device, queueFamily int) (*Submitter, error) {
	pool, err := device.CreateCommandPool(queueFamily)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create command submitter pool (vkCreateCommandPool didn't return success).")
		return nil, errors.Wrap(err, "create submitter command pool")
	}

	buffers, err := device.AllocateCommandBuffers(pool, core1_0.CommandBufferLevelPrimary, 1)
	if err != nil {
		pool.Destroy()
		log.Error("Vulkan Renderer | Failed to allocate command submitter buffer (vkAllocateCommandBuffers didn't return success).")
		return nil, errors.Wrap(err, "allocate submitter command buffer")
	}

	s := &Submitter{
		device:   device,
		queue:    device.GraphicsQueue(),
		pool:     pool,
		buffer:   buffers[0],
		requests: make(chan submitRequest, 64),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Submit queues record and blocks until the GPU has executed it. Work is
// never cancelled once queued.
func (s *Submitter) Submit(record RecordFunc) error {
	s.sendMu.RLock()
	if s.closed {
		s.sendMu.RUnlock()
		panic(errors.AssertionFailedf("render: Submit on a closed Submitter"))
	}
	done := make(chan error, 1)
	s.requests <- submitRequest{record: record, done: done}
	s.sendMu.RUnlock()

	return <-done
}

// Batches reports how many command buffers have been submitted.
func (s *Submitter) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func (s *Submitter) run() {
	defer s.wg.Done()

	for request := range s.requests {
		batch := []submitRequest{request}
	drain:
		for {
			select {
			case next, ok := <-s.requests:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		s.execute(batch)
	}
}

func (s *Submitter) execute(batch []submitRequest) {
	results := make([]error, len(batch))

	err := s.buffer.Reset()
	if err == nil {
		err = s.buffer.Begin(gpu.BeginInfo{Flags: core1_0.CommandBufferUsageOneTimeSubmit})
	}
	if err != nil {
		err = errors.Wrap(err, "begin one-shot command buffer")
		for _, request := range batch {
			request.done <- err
		}
		return
	}

	for i, request := range batch {
		results[i] = request.record(s.buffer)
	}

	err = s.buffer.End()
	if err == nil {
		err = s.queue.Submit(nil, gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{s.buffer}})
		if err != nil {
			log.Error("Vulkan Renderer | Failed to submit one-shot commands (vkQueueSubmit didn't return success).")
		}
	}
	if err == nil {
		err = s.queue.WaitIdle()
	}

	s.mu.Lock()
	s.batches++
	s.mu.Unlock()

	for i, request := range batch {
		if results[i] == nil && err != nil {
			results[i] = errors.Wrap(err, "submit one-shot commands")
		}
		request.done <- results[i]
	}
}

// Close finishes queued work, stops the goroutine and frees the command
// pool.
func (s *Submitter) Close() {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return
	}
	s.closed = true
	close(s.requests)
	s.sendMu.Unlock()

	s.wg.Wait()
	s.device.FreeCommandBuffers([]gpu.CommandBuffer{s.buffer})
	s.pool.Destroy()
}
