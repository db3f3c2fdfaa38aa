package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

type Device struct {
	physical   *PhysicalDevice
	vk         core1_0.Device
	swapchains khr_swapchain.Extension

	graphics *Queue
	present  *Queue
}

func newDevice(physical *PhysicalDevice, vk core1_0.Device, options gpu.DeviceOptions) *Device {
	d := &Device{
		physical:   physical,
		vk:         vk,
		swapchains: khr_swapchain.CreateExtensionFromDevice(vk),
	}

	d.graphics = &Queue{vk: vk.GetQueue(options.GraphicsFamily, 0), swapchains: d.swapchains}
	d.present = d.graphics
	if options.PresentFamily != options.GraphicsFamily {
		d.present = &Queue{vk: vk.GetQueue(options.PresentFamily, 0), swapchains: d.swapchains}
	}
	return d
}

func (d *Device) WaitIdle() error {
	// vkDeviceWaitIdle requires every queue to be externally synchronised.
	d.graphics.mu.Lock()
	defer d.graphics.mu.Unlock()
	if d.present != d.graphics {
		d.present.mu.Lock()
		defer d.present.mu.Unlock()
	}

	if _, err := d.vk.WaitIdle(); err != nil {
		return errors.Wrap(err, "vkDeviceWaitIdle")
	}
	return nil
}

func (d *Device) GraphicsQueue() gpu.Queue { return d.graphics }
func (d *Device) PresentQueue() gpu.Queue  { return d.present }

func (d *Device) CreateImageView(image gpu.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (gpu.ImageView, error) {
	vk, _, err := d.vk.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image.(*Image).vk,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateImageView")
	}
	return &ImageView{vk: vk}, nil
}

func (d *Device) CreateSampler(options core1_0.SamplerCreateInfo) (gpu.Sampler, error) {
	if !d.physical.vk.Features().SamplerAnisotropy {
		options.AnisotropyEnable = false
	}

	vk, _, err := d.vk.CreateSampler(nil, options)
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateSampler")
	}
	return &Sampler{vk: vk}, nil
}

func (d *Device) CreateRenderPass(options core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	vk, _, err := d.vk.CreateRenderPass(nil, options)
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateRenderPass")
	}
	return &RenderPass{vk: vk}, nil
}

func (d *Device) CreateFramebuffer(options gpu.FramebufferOptions) (gpu.Framebuffer, error) {
	attachments := make([]core1_0.ImageView, 0, len(options.Attachments))
	for _, view := range options.Attachments {
		attachments = append(attachments, view.(*ImageView).vk)
	}

	vk, _, err := d.vk.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  options.RenderPass.(*RenderPass).vk,
		Layers:      1,
		Attachments: attachments,
		Width:       options.Width,
		Height:      options.Height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateFramebuffer")
	}
	return &Framebuffer{vk: vk}, nil
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	vk, _, err := d.vk.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateShaderModule")
	}
	return &ShaderModule{vk: vk}, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	vk, _, err := d.vk.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateDescriptorSetLayout")
	}
	return &DescriptorSetLayout{vk: vk}, nil
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout, pushConstants []core1_0.PushConstantRange) (gpu.PipelineLayout, error) {
	layouts := make([]core1_0.DescriptorSetLayout, 0, len(setLayouts))
	for _, layout := range setLayouts {
		layouts = append(layouts, layout.(*DescriptorSetLayout).vk)
	}

	vk, _, err := d.vk.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         layouts,
		PushConstantRanges: pushConstants,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreatePipelineLayout")
	}
	return &PipelineLayout{vk: vk}, nil
}

func (d *Device) CreateGraphicsPipeline(options gpu.GraphicsPipelineOptions) (gpu.Pipeline, error) {
	pipelines, _, err := d.vk.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: options.Vertex.(*ShaderModule).vk,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: options.Fragment.(*ShaderModule).vk,
					Name:   "main",
				},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   options.Bindings,
				VertexAttributeDescriptions: options.Attributes,
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               core1_0.PrimitiveTopologyTriangleList,
				PrimitiveRestartEnable: false,
			},
			// Viewport and scissor are dynamic; the counts still have to be
			// declared here.
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{{MaxDepth: 1}},
				Scissors:  []core1_0.Rect2D{{}},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    core1_0.CullModeBack,
				FrontFace:   core1_0.FrontFaceCounterClockwise,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
				DepthTestEnable:  true,
				DepthWriteEnable: true,
				DepthCompareOp:   core1_0.CompareOpLess,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOp: core1_0.LogicOpCopy,
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: []core1_0.DynamicState{
					core1_0.DynamicStateViewport,
					core1_0.DynamicStateScissor,
				},
			},
			Layout:            options.Layout.(*PipelineLayout).vk,
			RenderPass:        options.RenderPass.(*RenderPass).vk,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateGraphicsPipelines")
	}
	return &Pipeline{vk: pipelines[0]}, nil
}

func (d *Device) CreateComputePipeline(module gpu.ShaderModule, layout gpu.PipelineLayout) (gpu.Pipeline, error) {
	pipelines, _, err := d.vk.CreateComputePipelines(nil, nil, []core1_0.ComputePipelineCreateInfo{
		{
			Stage: core1_0.PipelineShaderStageCreateInfo{
				Stage:  core1_0.StageCompute,
				Module: module.(*ShaderModule).vk,
				Name:   "main",
			},
			Layout:            layout.(*PipelineLayout).vk,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateComputePipelines")
	}
	return &Pipeline{vk: pipelines[0]}, nil
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	vk, _, err := d.vk.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   maxSets,
		PoolSizes: sizes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateDescriptorPool")
	}
	return &DescriptorPool{vk: vk}, nil
}

func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	sets, _, err := d.vk.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool.(*DescriptorPool).vk,
		SetLayouts:     []core1_0.DescriptorSetLayout{layout.(*DescriptorSetLayout).vk},
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkAllocateDescriptorSets")
	}
	return &DescriptorSet{vk: sets[0]}, nil
}

func (d *Device) WriteImageDescriptor(set gpu.DescriptorSet, binding int, view gpu.ImageView, sampler gpu.Sampler) error {
	err := d.vk.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          set.(*DescriptorSet).vk,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view.(*ImageView).vk,
					Sampler:     sampler.(*Sampler).vk,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
	}, nil)
	if err != nil {
		return errors.Wrap(err, "vkUpdateDescriptorSets")
	}
	return nil
}

func (d *Device) CreateCommandPool(queueFamily int) (gpu.CommandPool, error) {
	vk, _, err := d.vk.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateCommandPool")
	}
	return &CommandPool{vk: vk}, nil
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, level core1_0.CommandBufferLevel, count int) ([]gpu.CommandBuffer, error) {
	buffers, _, err := d.vk.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool.(*CommandPool).vk,
		Level:              level,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkAllocateCommandBuffers")
	}

	result := make([]gpu.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		result = append(result, &CommandBuffer{vk: buffer})
	}
	return result, nil
}

func (d *Device) FreeCommandBuffers(buffers []gpu.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}

	vk := make([]core1_0.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		vk = append(vk, buffer.(*CommandBuffer).vk)
	}
	d.vk.FreeCommandBuffers(vk)
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	vk, _, err := d.vk.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateSemaphore")
	}
	return &Semaphore{vk: vk}, nil
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}

	vk, _, err := d.vk.CreateFence(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateFence")
	}
	return &Fence{vk: vk}, nil
}

func fences(list []gpu.Fence) []core1_0.Fence {
	vk := make([]core1_0.Fence, 0, len(list))
	for _, fence := range list {
		vk = append(vk, fence.(*Fence).vk)
	}
	return vk
}

func (d *Device) WaitForFences(list ...gpu.Fence) error {
	if len(list) == 0 {
		return nil
	}
	if _, err := d.vk.WaitForFences(true, common.NoTimeout, fences(list)); err != nil {
		return errors.Wrap(err, "vkWaitForFences")
	}
	return nil
}

func (d *Device) ResetFences(list ...gpu.Fence) error {
	if len(list) == 0 {
		return nil
	}
	if _, err := d.vk.ResetFences(fences(list)); err != nil {
		return errors.Wrap(err, "vkResetFences")
	}
	return nil
}

func (d *Device) Destroy() {
	if d.vk != nil {
		d.vk.Destroy(nil)
		d.vk = nil
	}
}

// Queue serialises every call that touches the underlying VkQueue.
type Queue struct {
	mu         sync.Mutex
	vk         core1_0.Queue
	swapchains khr_swapchain.Extension
}

func (q *Queue) Submit(fence gpu.Fence, info gpu.SubmitInfo) error {
	submit := core1_0.SubmitInfo{
		WaitDstStageMask: info.WaitStages,
	}
	for _, semaphore := range info.WaitSemaphores {
		submit.WaitSemaphores = append(submit.WaitSemaphores, semaphore.(*Semaphore).vk)
	}
	for _, buffer := range info.CommandBuffers {
		submit.CommandBuffers = append(submit.CommandBuffers, buffer.(*CommandBuffer).vk)
	}
	for _, semaphore := range info.SignalSemaphores {
		submit.SignalSemaphores = append(submit.SignalSemaphores, semaphore.(*Semaphore).vk)
	}

	var vkFence core1_0.Fence
	if fence != nil {
		vkFence = fence.(*Fence).vk
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.vk.Submit(vkFence, []core1_0.SubmitInfo{submit}); err != nil {
		return errors.Wrap(err, "vkQueueSubmit")
	}
	return nil
}

func (q *Queue) Present(swapchain gpu.Swapchain, image int, wait gpu.Semaphore) error {
	info := khr_swapchain.PresentInfo{
		Swapchains:   []khr_swapchain.Swapchain{swapchain.(*Swapchain).vk},
		ImageIndices: []int{image},
	}
	if wait != nil {
		info.WaitSemaphores = []core1_0.Semaphore{wait.(*Semaphore).vk}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	res, err := q.swapchains.QueuePresent(q.vk, info)
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return gpu.ErrOutOfDate
	}
	if err != nil {
		return errors.Wrap(err, "vkQueuePresentKHR")
	}
	return nil
}

func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.vk.WaitIdle(); err != nil {
		return errors.Wrap(err, "vkQueueWaitIdle")
	}
	return nil
}
