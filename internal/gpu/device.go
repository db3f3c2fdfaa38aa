package gpu

import (
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
)

// Residency says where a buffer's memory lives and who can map it.
type Residency int

const (
	ResidencyUnknown Residency = iota
	// GPUOnly memory is device local and never mapped.
	GPUOnly
	// CPUToGPU memory is host visible and preferably device local.
	CPUToGPU
	// CPUOnly memory is host visible and host coherent.
	CPUOnly
)

func (r Residency) String() string {
	switch r {
	case GPUOnly:
		return "GPUOnly"
	case CPUToGPU:
		return "CPUToGPU"
	case CPUOnly:
		return "CPUOnly"
	}
	return "Unknown"
}

// HostVisible reports whether buffers of this residency can be written and
// read from the CPU.
func (r Residency) HostVisible() bool {
	return r == CPUToGPU || r == CPUOnly
}

type BufferOptions struct {
	Size      int
	Usage     core1_0.BufferUsageFlags
	Residency Residency
}

type ImageOptions struct {
	Width  int
	Height int
	Format core1_0.Format
	Usage  core1_0.ImageUsageFlags
}

type FramebufferOptions struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       int
	Height      int
}

type SwapchainOptions struct {
	Surface       Surface
	Capabilities  *khr_surface.SurfaceCapabilities
	MinImageCount int
	Format        khr_surface.SurfaceFormat
	Extent        core1_0.Extent2D
	PresentMode   khr_surface.PresentMode
	SharingMode   core1_0.SharingMode
	QueueFamilies []int
}

type GraphicsPipelineOptions struct {
	Vertex     ShaderModule
	Fragment   ShaderModule
	Layout     PipelineLayout
	RenderPass RenderPass
	Bindings   []core1_0.VertexInputBindingDescription
	Attributes []core1_0.VertexInputAttributeDescription
}

// Device is a logical device and the factory for everything allocated on it.
type Device interface {
	WaitIdle() error
	GraphicsQueue() Queue
	PresentQueue() Queue

	CreateBuffer(options BufferOptions) (Buffer, error)
	CreateImage(options ImageOptions) (Image, error)
	CreateImageView(image Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (ImageView, error)
	CreateSampler(options core1_0.SamplerCreateInfo) (Sampler, error)
	CreateRenderPass(options core1_0.RenderPassCreateInfo) (RenderPass, error)
	CreateFramebuffer(options FramebufferOptions) (Framebuffer, error)
	CreateSwapchain(options SwapchainOptions) (Swapchain, error)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout, pushConstants []core1_0.PushConstantRange) (PipelineLayout, error)
	CreateGraphicsPipeline(options GraphicsPipelineOptions) (Pipeline, error)
	CreateComputePipeline(module ShaderModule, layout PipelineLayout) (Pipeline, error)
	CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (DescriptorPool, error)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	WriteImageDescriptor(set DescriptorSet, binding int, view ImageView, sampler Sampler) error

	CreateCommandPool(queueFamily int) (CommandPool, error)
	AllocateCommandBuffers(pool CommandPool, level core1_0.CommandBufferLevel, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(buffers []CommandBuffer)

	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	WaitForFences(fences ...Fence) error
	ResetFences(fences ...Fence) error

	Destroy()
}

// Buffer is a device buffer bound to its own allocation.
type Buffer interface {
	Size() int
	// Write copies data into the buffer at offset. Only host visible
	// buffers can be written.
	Write(offset int, data []byte) error
	// Read copies len(data) bytes starting at offset out of a host visible
	// buffer.
	Read(offset int, data []byte) error
	Destroy()
}

type Image interface{ Destroyer }
type ImageView interface{ Destroyer }
type Sampler interface{ Destroyer }
type RenderPass interface{ Destroyer }
type Framebuffer interface{ Destroyer }
type ShaderModule interface{ Destroyer }
type PipelineLayout interface{ Destroyer }
type Pipeline interface{ Destroyer }
type DescriptorSetLayout interface{ Destroyer }
type DescriptorPool interface{ Destroyer }
type CommandPool interface{ Destroyer }
type Semaphore interface{ Destroyer }

// DescriptorSet is released with its pool.
type DescriptorSet interface{}

type Fence interface {
	Wait() error
	Destroy()
}

type Swapchain interface {
	Images() ([]Image, error)
	// AcquireNextImage returns ErrOutOfDate when the swapchain must be
	// recreated before anything can be presented.
	AcquireNextImage(signal Semaphore) (int, error)
	Destroy()
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

// Queue access is serialised by the implementation.
type Queue interface {
	Submit(fence Fence, info SubmitInfo) error
	// Present returns ErrOutOfDate when the image was presented to a
	// surface that no longer matches the swapchain.
	Present(swapchain Swapchain, image int, wait Semaphore) error
	WaitIdle() error
}
