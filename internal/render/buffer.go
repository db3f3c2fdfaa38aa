package render

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/ident"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

type BufferType int

const (
	BufferTypeUnknown BufferType = iota
	VertexBuffer
	IndexBuffer
	// TextureBuffer holds pixels on their way into an image.
	TextureBuffer
)

type MemoryType int

const (
	MemoryTypeUnknown MemoryType = iota
	// GpuStatic buffers live in device local memory and are filled through
	// a staging copy.
	GpuStatic
	// GpuDynamic buffers are host visible and written in place.
	GpuDynamic
	// CpuAny buffers live in host memory.
	CpuAny
)

func (t MemoryType) residency() gpu.Residency {
	switch t {
	case GpuStatic:
		return gpu.GPUOnly
	case GpuDynamic:
		return gpu.CPUToGPU
	case CpuAny:
		return gpu.CPUOnly
	}
	return gpu.ResidencyUnknown
}

func (t BufferType) usage() core1_0.BufferUsageFlags {
	switch t {
	case VertexBuffer:
		return core1_0.BufferUsageTransferDst | core1_0.BufferUsageVertexBuffer
	case IndexBuffer:
		return core1_0.BufferUsageTransferDst | core1_0.BufferUsageIndexBuffer
	case TextureBuffer:
		return core1_0.BufferUsageTransferSrc
	}
	return 0
}

type BufferCreateInfo struct {
	Type   BufferType
	Memory MemoryType
	Data   []byte
	Size   int
}

// Buffer is a device buffer owned by a BufferManager.
type Buffer struct {
	ID     uint64
	Type   BufferType
	Memory MemoryType

	key     ident.Key
	manager *BufferManager
	handle  gpu.Buffer
	size    int
}

func (b *Buffer) Key() ident.Key     { return b.key }
func (b *Buffer) Handle() gpu.Buffer { return b.handle }
func (b *Buffer) Size() int          { return b.size }

// Update replaces the buffer's contents with data. A buffer too small for
// data is reallocated once the device is idle.
func (b *Buffer) Update(data []byte) error {
	if b.ID == 0 {
		panic(errors.AssertionFailedf("render: Update on a destroyed buffer"))
	}
	if len(data) == 0 {
		panic(errors.AssertionFailedf("render: Update with no data"))
	}

	if len(data) > b.size {
		if err := b.manager.device.WaitIdle(); err != nil {
			return errors.Wrap(err, "wait for device before growing buffer")
		}

		handle, err := b.manager.allocate(b.Type, b.Memory, len(data))
		if err != nil {
			return err
		}
		b.handle.Destroy()
		b.handle = handle
		b.size = len(data)
	}

	return b.manager.upload(b, data)
}

// Destroy frees the buffer and removes it from its manager. The ID is zero
// afterwards.
func (b *Buffer) Destroy() {
	if b.ID == 0 {
		return
	}

	b.manager.buffers.Remove(b.key)
	b.handle.Destroy()
	b.handle = nil
	b.ID = 0
}

type BufferManager struct {
	device    gpu.Device
	submitter *Submitter
	buffers   ident.Arena[*Buffer]
}

func NewBufferManager(device gpu.Device, submitter *Submitter) *BufferManager {
	return &BufferManager{device: device, submitter: submitter}
}

func (m *BufferManager) CreateBuffer(info BufferCreateInfo) (*Buffer, error) {
	if info.Type == BufferTypeUnknown {
		panic(errors.AssertionFailedf("render: BufferCreateInfo.Type is Unknown"))
	}
	if info.Memory == MemoryTypeUnknown {
		panic(errors.AssertionFailedf("render: BufferCreateInfo.Memory is Unknown"))
	}
	if info.Data == nil {
		panic(errors.AssertionFailedf("render: BufferCreateInfo.Data is nil"))
	}
	if info.Size <= 0 || info.Size > len(info.Data) {
		panic(errors.AssertionFailedf("render: BufferCreateInfo.Size %d with %d bytes of data", info.Size, len(info.Data)))
	}

	handle, err := m.allocate(info.Type, info.Memory, info.Size)
	if err != nil {
		return nil, err
	}

	buffer := &Buffer{
		ID:      ident.Next(),
		Type:    info.Type,
		Memory:  info.Memory,
		manager: m,
		handle:  handle,
		size:    info.Size,
	}

	if err := m.upload(buffer, info.Data[:info.Size]); err != nil {
		handle.Destroy()
		return nil, err
	}

	buffer.key = m.buffers.Insert(buffer)
	return buffer, nil
}

// Lookup resolves a buffer key. Keys of destroyed buffers resolve to
// nothing.
func (m *BufferManager) Lookup(key ident.Key) (*Buffer, bool) {
	return m.buffers.Get(key)
}

func (m *BufferManager) Len() int {
	return m.buffers.Len()
}

// Destroy frees every live buffer.
func (m *BufferManager) Destroy() {
	var live []*Buffer
	m.buffers.Each(func(_ ident.Key, buffer *Buffer) {
		live = append(live, buffer)
	})
	for _, buffer := range live {
		buffer.Destroy()
	}
}

func (m *BufferManager) allocate(bufferType BufferType, memory MemoryType, size int) (gpu.Buffer, error) {
	usage := bufferType.usage()
	if memory == GpuStatic {
		usage |= core1_0.BufferUsageTransferDst
	}

	handle, err := m.device.CreateBuffer(gpu.BufferOptions{
		Size:      size,
		Usage:     usage,
		Residency: memory.residency(),
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create buffer (vkCreateBuffer didn't return success).")
		return nil, errors.Wrapf(err, "create %d byte buffer", size)
	}
	return handle, nil
}

func (m *BufferManager) upload(buffer *Buffer, data []byte) error {
	if buffer.Memory != GpuStatic {
		return errors.Wrap(buffer.handle.Write(0, data), "write mapped buffer")
	}

	staging, err := m.device.CreateBuffer(gpu.BufferOptions{
		Size:      len(data),
		Usage:     core1_0.BufferUsageTransferSrc,
		Residency: gpu.CPUOnly,
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create staging buffer (vkCreateBuffer didn't return success).")
		return errors.Wrap(err, "create staging buffer")
	}
	defer staging.Destroy()

	if err := staging.Write(0, data); err != nil {
		return errors.Wrap(err, "write staging buffer")
	}

	dst := buffer.handle
	return m.submitter.Submit(func(cb gpu.CommandBuffer) error {
		return cb.CopyBuffer(staging, dst, len(data))
	})
}

// encode lays data out the way the GPU reads it.
func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return nil, errors.Wrap(err, "encode buffer data")
	}
	return buf.Bytes(), nil
}
