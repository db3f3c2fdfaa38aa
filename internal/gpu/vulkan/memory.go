package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
)

const hostMemory = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

// memoryPreferences lists the property sets to try for a residency, best
// first.
func memoryPreferences(residency gpu.Residency) []core1_0.MemoryPropertyFlags {
	switch residency {
	case gpu.GPUOnly:
		return []core1_0.MemoryPropertyFlags{core1_0.MemoryPropertyDeviceLocal}
	case gpu.CPUToGPU:
		return []core1_0.MemoryPropertyFlags{hostMemory | core1_0.MemoryPropertyDeviceLocal, hostMemory}
	case gpu.CPUOnly:
		return []core1_0.MemoryPropertyFlags{hostMemory}
	}
	panic(errors.AssertionFailedf("vulkan: no memory type for residency %s", residency))
}

func findMemoryType(types []core1_0.MemoryType, typeFilter uint32, residency gpu.Residency) (int, error) {
	for _, properties := range memoryPreferences(residency) {
		for i, memoryType := range types {
			typeBit := uint32(1 << i)
			if typeFilter&typeBit != 0 && memoryType.PropertyFlags&properties == properties {
				return i, nil
			}
		}
	}
	return 0, errors.Newf("no memory type for %s allocation (type bits %#x)", residency, typeFilter)
}

func (d *Device) allocate(requirements *core1_0.MemoryRequirements, residency gpu.Residency) (core1_0.DeviceMemory, error) {
	index, err := findMemoryType(d.physical.vk.MemoryProperties().MemoryTypes, requirements.MemoryTypeBits, residency)
	if err != nil {
		return nil, err
	}

	memory, _, err := d.vk.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: index,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkAllocateMemory")
	}
	return memory, nil
}

type Buffer struct {
	vk        core1_0.Buffer
	memory    core1_0.DeviceMemory
	size      int
	residency gpu.Residency
}

func (d *Device) CreateBuffer(options gpu.BufferOptions) (gpu.Buffer, error) {
	vk, _, err := d.vk.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        options.Size,
		Usage:       options.Usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateBuffer")
	}

	memory, err := d.allocate(vk.MemoryRequirements(), options.Residency)
	if err != nil {
		vk.Destroy(nil)
		return nil, err
	}

	if _, err := vk.BindBufferMemory(memory, 0); err != nil {
		vk.Destroy(nil)
		memory.Free(nil)
		return nil, errors.Wrap(err, "vkBindBufferMemory")
	}

	return &Buffer{vk: vk, memory: memory, size: options.Size, residency: options.Residency}, nil
}

func (b *Buffer) Size() int {
	return b.size
}

func (b *Buffer) mapped(offset, size int, fn func(mem []byte)) error {
	if !b.residency.HostVisible() {
		return errors.Newf("map of %s buffer", b.residency)
	}
	if offset < 0 || offset+size > b.size {
		return errors.Newf("map of %d bytes at %d overflows %d", size, offset, b.size)
	}
	if size == 0 {
		return nil
	}

	ptr, _, err := b.memory.Map(offset, size, 0)
	if err != nil {
		return errors.Wrap(err, "vkMapMemory")
	}
	defer b.memory.Unmap()

	fn(unsafe.Slice((*byte)(ptr), size))
	return nil
}

func (b *Buffer) Write(offset int, data []byte) error {
	return b.mapped(offset, len(data), func(mem []byte) {
		copy(mem, data)
	})
}

func (b *Buffer) Read(offset int, data []byte) error {
	return b.mapped(offset, len(data), func(mem []byte) {
		copy(data, mem)
	})
}

func (b *Buffer) Destroy() {
	if b.vk != nil {
		b.vk.Destroy(nil)
		b.vk = nil
	}
	if b.memory != nil {
		b.memory.Free(nil)
		b.memory = nil
	}
}

// Image is either a device local image with its own allocation or a
// swapchain image, which is owned by the swapchain and has no memory.
type Image struct {
	vk     core1_0.Image
	memory core1_0.DeviceMemory
}

func (d *Device) CreateImage(options gpu.ImageOptions) (gpu.Image, error) {
	vk, _, err := d.vk.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  options.Width,
			Height: options.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        options.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         options.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateImage")
	}

	memory, err := d.allocate(vk.MemoryRequirements(), gpu.GPUOnly)
	if err != nil {
		vk.Destroy(nil)
		return nil, err
	}

	if _, err := vk.BindImageMemory(memory, 0); err != nil {
		vk.Destroy(nil)
		memory.Free(nil)
		return nil, errors.Wrap(err, "vkBindImageMemory")
	}

	return &Image{vk: vk, memory: memory}, nil
}

func (i *Image) Destroy() {
	if i.memory == nil {
		return
	}
	i.vk.Destroy(nil)
	i.memory.Free(nil)
	i.vk, i.memory = nil, nil
}
