package gpu

import "github.com/vkngwrapper/core/core1_0"

// Inheritance is the render pass state a secondary command buffer continues.
type Inheritance struct {
	RenderPass  RenderPass
	Subpass     int
	Framebuffer Framebuffer
}

type BeginInfo struct {
	Flags       core1_0.CommandBufferUsageFlags
	Inheritance *Inheritance
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      core1_0.Extent2D
	ClearValues []core1_0.ClearValue
}

type ImageBarrier struct {
	Image     Image
	Aspect    core1_0.ImageAspectFlags
	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
}

type CommandBuffer interface {
	Begin(info BeginInfo) error
	End() error
	Reset() error

	BeginRenderPass(begin RenderPassBegin, contents core1_0.SubpassContents) error
	EndRenderPass()
	ExecuteCommands(buffers []CommandBuffer)

	BindPipeline(bindPoint core1_0.PipelineBindPoint, pipeline Pipeline)
	BindDescriptorSet(bindPoint core1_0.PipelineBindPoint, layout PipelineLayout, set DescriptorSet)
	PushConstants(layout PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte) error
	SetViewport(viewport core1_0.Viewport)
	SetScissor(scissor core1_0.Rect2D)
	BindVertexBuffer(buffer Buffer)
	BindIndexBuffer(buffer Buffer, indexType core1_0.IndexType)
	DrawIndexed(indexCount int)

	CopyBuffer(src, dst Buffer, size int) error
	CopyBufferToImage(src Buffer, dst Image, width, height int) error
	PipelineBarrier(barrier ImageBarrier) error
}
