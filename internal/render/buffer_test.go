package render

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/gpu/gputest"
	"github.com/vkngwrapper/core/core1_0"
)

func newBufferManager(c *qt.C) (*gputest.Device, *Submitter, *BufferManager) {
	device, _, _, _ := newTestContext(c)
	submitter, err := NewSubmitter(device, 0)
	c.Assert(err, qt.IsNil)
	c.Cleanup(submitter.Close)
	return device, submitter, NewBufferManager(device, submitter)
}

func TestStaticBufferUpload(t *testing.T) {
	c := qt.New(t)
	device, submitter, buffers := newBufferManager(c)

	data, err := encode([]float32{0, 0.5, 1, -1, 3.25, 1e6})
	c.Assert(err, qt.IsNil)

	buffer, err := buffers.CreateBuffer(BufferCreateInfo{
		Type:   VertexBuffer,
		Memory: GpuStatic,
		Data:   data,
		Size:   len(data),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(buffer.ID, qt.Not(qt.Equals), uint64(0))
	c.Assert(buffer.Size(), qt.Equals, len(data))

	handle := buffer.Handle().(*gputest.Buffer)
	c.Assert(handle.Options.Residency, qt.Equals, gpu.GPUOnly)
	c.Assert(handle.Options.Usage&core1_0.BufferUsageVertexBuffer, qt.Not(qt.Equals), core1_0.BufferUsageFlags(0))
	c.Assert(handle.Write(0, data), qt.ErrorMatches, ".*write to GPUOnly buffer.*")

	// The staging buffer is gone once the upload returns.
	c.Assert(device.Live("buffer"), qt.Equals, 1)

	readback, err := device.CreateBuffer(gpu.BufferOptions{
		Size:      len(data),
		Usage:     core1_0.BufferUsageTransferDst,
		Residency: gpu.CPUOnly,
	})
	c.Assert(err, qt.IsNil)
	err = submitter.Submit(func(cb gpu.CommandBuffer) error {
		return cb.CopyBuffer(buffer.Handle(), readback, len(data))
	})
	c.Assert(err, qt.IsNil)

	got := make([]byte, len(data))
	c.Assert(readback.Read(0, got), qt.IsNil)
	c.Assert(got, qt.DeepEquals, data)
}

func TestDynamicBufferWritesInPlace(t *testing.T) {
	c := qt.New(t)
	device, submitter, buffers := newBufferManager(c)

	data := []byte{1, 2, 3, 4}
	buffer, err := buffers.CreateBuffer(BufferCreateInfo{
		Type:   IndexBuffer,
		Memory: GpuDynamic,
		Data:   data,
		Size:   len(data),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(submitter.Batches(), qt.Equals, 0)
	c.Assert(buffer.Handle().(*gputest.Buffer).Options.Residency, qt.Equals, gpu.CPUToGPU)
	c.Assert(buffer.Handle().(*gputest.Buffer).Contents(), qt.DeepEquals, data)

	c.Assert(buffer.Update([]byte{9, 9}), qt.IsNil)
	c.Assert(buffer.Handle().(*gputest.Buffer).Contents(), qt.DeepEquals, []byte{9, 9, 3, 4})
	c.Assert(device.Created("buffer"), qt.Equals, 1)
}

func TestBufferUpdateGrows(t *testing.T) {
	c := qt.New(t)
	device, _, buffers := newBufferManager(c)

	buffer, err := buffers.CreateBuffer(BufferCreateInfo{
		Type:   VertexBuffer,
		Memory: GpuStatic,
		Data:   []byte{1, 2, 3, 4},
		Size:   4,
	})
	c.Assert(err, qt.IsNil)
	old := buffer.Handle().(*gputest.Buffer)
	idles := device.WaitIdles

	bigger := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	c.Assert(buffer.Update(bigger), qt.IsNil)
	c.Assert(device.WaitIdles, qt.Equals, idles+1)
	c.Assert(old.Destroyed(), qt.IsTrue)
	c.Assert(buffer.Size(), qt.Equals, 8)
	c.Assert(buffer.Handle().(*gputest.Buffer).Contents(), qt.DeepEquals, bigger)

	// Smaller data fits in place.
	current := buffer.Handle()
	c.Assert(buffer.Update([]byte{7, 7}), qt.IsNil)
	c.Assert(buffer.Handle(), qt.Equals, current)
	c.Assert(buffer.Handle().(*gputest.Buffer).Contents(), qt.DeepEquals, []byte{7, 7, 3, 4, 5, 6, 7, 8})
}

func TestBufferDestroy(t *testing.T) {
	c := qt.New(t)
	device, _, buffers := newBufferManager(c)

	buffer, err := buffers.CreateBuffer(BufferCreateInfo{
		Type:   VertexBuffer,
		Memory: CpuAny,
		Data:   []byte{1, 2, 3, 4},
		Size:   4,
	})
	c.Assert(err, qt.IsNil)
	key := buffer.Key()
	c.Assert(buffers.Len(), qt.Equals, 1)

	found, ok := buffers.Lookup(key)
	c.Assert(ok, qt.IsTrue)
	c.Assert(found, qt.Equals, buffer)

	buffer.Destroy()
	c.Assert(buffer.ID, qt.Equals, uint64(0))
	c.Assert(buffers.Len(), qt.Equals, 0)
	c.Assert(device.Live("buffer"), qt.Equals, 0)

	_, ok = buffers.Lookup(key)
	c.Assert(ok, qt.IsFalse)

	buffer.Destroy()
	c.Assert(func() { buffer.Update([]byte{1}) }, qt.PanicMatches, ".*destroyed buffer.*")
}

func TestBufferIDsIncrease(t *testing.T) {
	c := qt.New(t)
	_, _, buffers := newBufferManager(c)

	var previous uint64
	for i := 0; i < 5; i++ {
		buffer, err := buffers.CreateBuffer(BufferCreateInfo{
			Type:   IndexBuffer,
			Memory: CpuAny,
			Data:   []byte{0, 0},
			Size:   2,
		})
		c.Assert(err, qt.IsNil)
		c.Assert(buffer.ID > previous, qt.IsTrue)
		previous = buffer.ID
	}

	buffers.Destroy()
	c.Assert(buffers.Len(), qt.Equals, 0)
}

func TestCreateBufferPreconditions(t *testing.T) {
	c := qt.New(t)
	_, _, buffers := newBufferManager(c)

	tests := []struct {
		about string
		info  BufferCreateInfo
		panic string
	}{{
		about: "unknown type",
		info:  BufferCreateInfo{Memory: GpuStatic, Data: []byte{1}, Size: 1},
		panic: ".*Type is Unknown.*",
	}, {
		about: "unknown memory",
		info:  BufferCreateInfo{Type: VertexBuffer, Data: []byte{1}, Size: 1},
		panic: ".*Memory is Unknown.*",
	}, {
		about: "nil data",
		info:  BufferCreateInfo{Type: VertexBuffer, Memory: GpuStatic, Size: 1},
		panic: ".*Data is nil.*",
	}, {
		about: "zero size",
		info:  BufferCreateInfo{Type: VertexBuffer, Memory: GpuStatic, Data: []byte{1}},
		panic: ".*Size 0 with 1 bytes.*",
	}, {
		about: "size beyond data",
		info:  BufferCreateInfo{Type: VertexBuffer, Memory: GpuStatic, Data: []byte{1}, Size: 2},
		panic: ".*Size 2 with 1 bytes.*",
	}}

	for _, test := range tests {
		c.Run(test.about, func(c *qt.C) {
			c.Assert(func() { buffers.CreateBuffer(test.info) }, qt.PanicMatches, test.panic)
		})
	}
}
