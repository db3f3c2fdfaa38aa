package gputest

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
)

// Object is the bookkeeping shared by every fake handle.
type Object struct {
	ID   int
	Kind string

	device    *Device
	destroyed bool
}

func (o *Object) Destroy() {
	o.device.mu.Lock()
	defer o.device.mu.Unlock()
	o.destroyed = true
}

func (o *Object) Destroyed() bool {
	o.device.mu.Lock()
	defer o.device.mu.Unlock()
	return o.destroyed
}

type Image struct {
	Object
	Options gpu.ImageOptions
	Layout  core1_0.ImageLayout
	Pixels  []byte
}

type ImageView struct {
	Object
	Image  gpu.Image
	Format core1_0.Format
}

type Framebuffer struct {
	Object
	Options gpu.FramebufferOptions
}

type RenderPass struct {
	Object
	Info core1_0.RenderPassCreateInfo
}

type Pipeline struct {
	Object
	Graphics *gpu.GraphicsPipelineOptions
}

type ShaderModule struct {
	Object
	Code []uint32
}

type DescriptorSet struct {
	ID     int
	Layout gpu.DescriptorSetLayout
	Images map[int]gpu.ImageView
}

type Fence struct {
	Object
	Signaled bool
}

func (f *Fence) Wait() error {
	f.device.mu.Lock()
	defer f.device.mu.Unlock()
	return f.device.waitLocked(f)
}

// Device is the fake logical device. A single mutex guards every object it
// creates, so it is safe to use from the submitter and worker goroutines.
type Device struct {
	mu     sync.Mutex
	nextID int

	Physical *PhysicalDevice
	Options  gpu.DeviceOptions

	graphics *Queue
	present  *Queue

	objects    []*Object
	Swapchains []*Swapchain

	// FenceWaits logs every fence waited on, in order.
	FenceWaits []*Fence
	WaitIdles  int
	Destroyed  bool

	// RejectShader makes CreateShaderModule fail for matching code.
	RejectShader func(code []uint32) bool
}

func NewDevice() *Device {
	d := &Device{}
	d.graphics = &Queue{device: d}
	d.present = d.graphics
	return d
}

func (d *Device) track(o *Object, kind string) {
	d.nextID++
	o.ID = d.nextID
	o.Kind = kind
	o.device = d
	d.objects = append(d.objects, o)
}

// Live counts the objects of a kind that have not been destroyed.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0
	for _, o := range d.objects {
		if o.Kind == kind && !o.destroyed {
			count++
		}
	}
	return count
}

// Created counts every object of a kind ever created.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0
	for _, o := range d.objects {
		if o.Kind == kind {
			count++
		}
	}
	return count
}

func (d *Device) Queue() *Queue {
	return d.graphics
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdles++
	return nil
}

func (d *Device) GraphicsQueue() gpu.Queue { return d.graphics }
func (d *Device) PresentQueue() gpu.Queue  { return d.present }

func (d *Device) CreateBuffer(options gpu.BufferOptions) (gpu.Buffer, error) {
	if options.Size <= 0 {
		return nil, errors.Newf("gputest: buffer size %d", options.Size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b := &Buffer{Options: options, data: make([]byte, options.Size)}
	d.track(&b.Object, "buffer")
	return b, nil
}

func (d *Device) CreateImage(options gpu.ImageOptions) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img := &Image{Options: options, Layout: core1_0.ImageLayoutUndefined}
	d.track(&img.Object, "image")
	return img, nil
}

func (d *Device) CreateImageView(image gpu.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	view := &ImageView{Image: image, Format: format}
	d.track(&view.Object, "imageview")
	return view, nil
}

func (d *Device) CreateSampler(options core1_0.SamplerCreateInfo) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sampler := &Object{}
	d.track(sampler, "sampler")
	return sampler, nil
}

func (d *Device) CreateRenderPass(options core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pass := &RenderPass{Info: options}
	d.track(&pass.Object, "renderpass")
	return pass, nil
}

func (d *Device) CreateFramebuffer(options gpu.FramebufferOptions) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fb := &Framebuffer{Options: options}
	d.track(&fb.Object, "framebuffer")
	return fb, nil
}

func (d *Device) CreateSwapchain(options gpu.SwapchainOptions) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sc := &Swapchain{Options: options}
	d.track(&sc.Object, "swapchain")
	for i := 0; i < options.MinImageCount; i++ {
		img := &Image{
			Options: gpu.ImageOptions{
				Width:  options.Extent.Width,
				Height: options.Extent.Height,
				Format: options.Format.Format,
				Usage:  core1_0.ImageUsageColorAttachment,
			},
		}
		d.track(&img.Object, "swapimage")
		sc.images = append(sc.images, img)
	}
	d.Swapchains = append(d.Swapchains, sc)
	return sc, nil
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.RejectShader != nil && d.RejectShader(code) {
		return nil, errors.New("gputest: shader module rejected")
	}
	module := &ShaderModule{Code: code}
	d.track(&module.Object, "shadermodule")
	return module, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	layout := &Object{}
	d.track(layout, "descriptorsetlayout")
	return layout, nil
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout, pushConstants []core1_0.PushConstantRange) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	layout := &Object{}
	d.track(layout, "pipelinelayout")
	return layout, nil
}

func (d *Device) CreateGraphicsPipeline(options gpu.GraphicsPipelineOptions) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pipeline := &Pipeline{Graphics: &options}
	d.track(&pipeline.Object, "pipeline")
	return pipeline, nil
}

func (d *Device) CreateComputePipeline(module gpu.ShaderModule, layout gpu.PipelineLayout) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pipeline := &Pipeline{}
	d.track(&pipeline.Object, "pipeline")
	return pipeline, nil
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pool := &DescriptorPool{MaxSets: maxSets}
	d.track(&pool.Object, "descriptorpool")
	return pool, nil
}

func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := pool.(*DescriptorPool)
	if !ok {
		return nil, errors.Newf("gputest: foreign descriptor pool %T", pool)
	}
	if p.Allocated >= p.MaxSets {
		return nil, errors.New("gputest: descriptor pool exhausted")
	}
	p.Allocated++

	d.nextID++
	return &DescriptorSet{ID: d.nextID, Layout: layout, Images: map[int]gpu.ImageView{}}, nil
}

func (d *Device) WriteImageDescriptor(set gpu.DescriptorSet, binding int, view gpu.ImageView, sampler gpu.Sampler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := set.(*DescriptorSet)
	if !ok {
		return errors.Newf("gputest: foreign descriptor set %T", set)
	}
	s.Images[binding] = view
	return nil
}

func (d *Device) CreateCommandPool(queueFamily int) (gpu.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pool := &Object{}
	d.track(pool, "commandpool")
	return pool, nil
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, level core1_0.CommandBufferLevel, count int) ([]gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buffers := make([]gpu.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		cb := &CommandBuffer{Level: level}
		d.track(&cb.Object, "commandbuffer")
		buffers = append(buffers, cb)
	}
	return buffers, nil
}

func (d *Device) FreeCommandBuffers(buffers []gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, buffer := range buffers {
		if cb, ok := buffer.(*CommandBuffer); ok {
			cb.destroyed = true
		}
	}
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	semaphore := &Object{}
	d.track(semaphore, "semaphore")
	return semaphore, nil
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fence := &Fence{Signaled: signaled}
	d.track(&fence.Object, "fence")
	return fence, nil
}

func (d *Device) WaitForFences(fences ...gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, fence := range fences {
		f, ok := fence.(*Fence)
		if !ok {
			return errors.Newf("gputest: foreign fence %T", fence)
		}
		if err := d.waitLocked(f); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) waitLocked(f *Fence) error {
	d.FenceWaits = append(d.FenceWaits, f)
	if !f.Signaled {
		// Work is executed at submit time, so an unsignaled fence that is
		// waited on would block forever on a real device.
		return errors.Newf("gputest: waiting on unsignaled fence %d", f.ID)
	}
	return nil
}

func (d *Device) ResetFences(fences ...gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, fence := range fences {
		f, ok := fence.(*Fence)
		if !ok {
			return errors.Newf("gputest: foreign fence %T", fence)
		}
		f.Signaled = false
	}
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Destroyed = true
}

type DescriptorPool struct {
	Object
	MaxSets   int
	Allocated int
}

type Buffer struct {
	Object
	Options gpu.BufferOptions
	data    []byte
}

func (b *Buffer) Size() int {
	return b.Options.Size
}

func (b *Buffer) Write(offset int, data []byte) error {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()

	if !b.Options.Residency.HostVisible() {
		return errors.Newf("gputest: write to %s buffer", b.Options.Residency)
	}
	if offset+len(data) > len(b.data) {
		return errors.Newf("gputest: write of %d bytes at %d overflows %d", len(data), offset, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *Buffer) Read(offset int, data []byte) error {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()

	if !b.Options.Residency.HostVisible() {
		return errors.Newf("gputest: read from %s buffer", b.Options.Residency)
	}
	if offset+len(data) > len(b.data) {
		return errors.Newf("gputest: read of %d bytes at %d overflows %d", len(data), offset, len(b.data))
	}
	copy(data, b.data[offset:])
	return nil
}

// Contents returns a copy of the buffer's bytes regardless of residency.
func (b *Buffer) Contents() []byte {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	return append([]byte(nil), b.data...)
}

type Swapchain struct {
	Object
	Options gpu.SwapchainOptions
	images  []*Image

	// Script lists the image indices returned by successive acquires. Once
	// it runs out, images are handed out round robin.
	Script   []int
	Acquires int
	// OutOfDate makes the next acquire fail with gpu.ErrOutOfDate.
	OutOfDate bool
}

func (s *Swapchain) Images() ([]gpu.Image, error) {
	images := make([]gpu.Image, 0, len(s.images))
	for _, img := range s.images {
		images = append(images, img)
	}
	return images, nil
}

func (s *Swapchain) AcquireNextImage(signal gpu.Semaphore) (int, error) {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()

	if s.OutOfDate {
		s.OutOfDate = false
		return 0, gpu.ErrOutOfDate
	}

	index := s.Acquires % len(s.images)
	if s.Acquires < len(s.Script) {
		index = s.Script[s.Acquires]
	}
	s.Acquires++
	return index, nil
}
