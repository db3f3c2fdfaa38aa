package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
)

type CommandBuffer struct {
	vk core1_0.CommandBuffer
}

func (c *CommandBuffer) Begin(info gpu.BeginInfo) error {
	begin := core1_0.CommandBufferBeginInfo{
		Flags: info.Flags,
	}
	if info.Inheritance != nil {
		inheritance := &core1_0.CommandBufferInheritanceInfo{
			RenderPass: info.Inheritance.RenderPass.(*RenderPass).vk,
			Subpass:    info.Inheritance.Subpass,
		}
		if info.Inheritance.Framebuffer != nil {
			inheritance.Framebuffer = info.Inheritance.Framebuffer.(*Framebuffer).vk
		}
		begin.InheritanceInfo = inheritance
	}

	if _, err := c.vk.Begin(begin); err != nil {
		return errors.Wrap(err, "vkBeginCommandBuffer")
	}
	return nil
}

func (c *CommandBuffer) End() error {
	if _, err := c.vk.End(); err != nil {
		return errors.Wrap(err, "vkEndCommandBuffer")
	}
	return nil
}

func (c *CommandBuffer) Reset() error {
	if _, err := c.vk.Reset(0); err != nil {
		return errors.Wrap(err, "vkResetCommandBuffer")
	}
	return nil
}

func (c *CommandBuffer) BeginRenderPass(begin gpu.RenderPassBegin, contents core1_0.SubpassContents) error {
	err := c.vk.CmdBeginRenderPass(contents, core1_0.RenderPassBeginInfo{
		RenderPass:  begin.RenderPass.(*RenderPass).vk,
		Framebuffer: begin.Framebuffer.(*Framebuffer).vk,
		RenderArea: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: begin.Extent,
		},
		ClearValues: begin.ClearValues,
	})
	if err != nil {
		return errors.Wrap(err, "vkCmdBeginRenderPass")
	}
	return nil
}

func (c *CommandBuffer) EndRenderPass() {
	c.vk.CmdEndRenderPass()
}

func (c *CommandBuffer) ExecuteCommands(buffers []gpu.CommandBuffer) {
	secondaries := make([]core1_0.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		secondaries = append(secondaries, buffer.(*CommandBuffer).vk)
	}
	c.vk.CmdExecuteCommands(secondaries)
}

func (c *CommandBuffer) BindPipeline(bindPoint core1_0.PipelineBindPoint, pipeline gpu.Pipeline) {
	c.vk.CmdBindPipeline(bindPoint, pipeline.(*Pipeline).vk)
}

func (c *CommandBuffer) BindDescriptorSet(bindPoint core1_0.PipelineBindPoint, layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	c.vk.CmdBindDescriptorSets(bindPoint, layout.(*PipelineLayout).vk, []core1_0.DescriptorSet{
		set.(*DescriptorSet).vk,
	}, nil)
}

func (c *CommandBuffer) PushConstants(layout gpu.PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte) error {
	c.vk.CmdPushConstants(layout.(*PipelineLayout).vk, stages, offset, data)
	return nil
}

func (c *CommandBuffer) SetViewport(viewport core1_0.Viewport) {
	c.vk.CmdSetViewport([]core1_0.Viewport{viewport})
}

func (c *CommandBuffer) SetScissor(scissor core1_0.Rect2D) {
	c.vk.CmdSetScissor([]core1_0.Rect2D{scissor})
}

func (c *CommandBuffer) BindVertexBuffer(buffer gpu.Buffer) {
	c.vk.CmdBindVertexBuffers(0, []core1_0.Buffer{buffer.(*Buffer).vk}, []int{0})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, indexType core1_0.IndexType) {
	c.vk.CmdBindIndexBuffer(buffer.(*Buffer).vk, 0, indexType)
}

func (c *CommandBuffer) DrawIndexed(indexCount int) {
	c.vk.CmdDrawIndexed(indexCount, 1, 0, 0, 0)
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	err := c.vk.CmdCopyBuffer(src.(*Buffer).vk, dst.(*Buffer).vk, []core1_0.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	})
	if err != nil {
		return errors.Wrap(err, "vkCmdCopyBuffer")
	}
	return nil
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, width, height int) error {
	err := c.vk.CmdCopyBufferToImage(src.(*Buffer).vk, dst.(*Image).vk, core1_0.ImageLayoutTransferDstOptimal, []core1_0.BufferImageCopy{
		{
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		},
	})
	if err != nil {
		return errors.Wrap(err, "vkCmdCopyBufferToImage")
	}
	return nil
}

func (c *CommandBuffer) PipelineBarrier(barrier gpu.ImageBarrier) error {
	err := c.vk.CmdPipelineBarrier(barrier.SrcStage, barrier.DstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               barrier.Image.(*Image).vk,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     barrier.Aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: barrier.SrcAccess,
			DstAccessMask: barrier.DstAccess,
		},
	})
	if err != nil {
		return errors.Wrap(err, "vkCmdPipelineBarrier")
	}
	return nil
}
