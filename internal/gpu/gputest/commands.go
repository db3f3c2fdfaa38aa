package gputest

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
)

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op string

	Pipeline  gpu.Pipeline
	Set       gpu.DescriptorSet
	Data      []byte
	Viewport  core1_0.Viewport
	Scissor   core1_0.Rect2D
	Buffer    gpu.Buffer
	Src       gpu.Buffer
	Dst       gpu.Buffer
	Image     gpu.Image
	Size      int
	Width     int
	Height    int
	Count     int
	Barrier   gpu.ImageBarrier
	Begin     gpu.RenderPassBegin
	Contents  core1_0.SubpassContents
	Secondary []gpu.CommandBuffer
}

type CommandBuffer struct {
	Object
	Level core1_0.CommandBufferLevel

	// Begins counts every time recording started on this buffer.
	Begins    int
	Info      gpu.BeginInfo
	Commands  []Command
	recording bool

	// FailBegin makes the next Begin fail.
	FailBegin bool
	// FailPushConstants makes the next PushConstants fail.
	FailPushConstants bool
}

// Recording reports whether the buffer was begun and not yet ended.
func (c *CommandBuffer) Recording() bool {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	return c.recording
}

func (c *CommandBuffer) record(cmd Command) error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	if !c.recording {
		return errors.Newf("gputest: %s outside of recording", cmd.Op)
	}
	c.Commands = append(c.Commands, cmd)
	return nil
}

// Ops lists the recorded command names.
func (c *CommandBuffer) Ops() []string {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	ops := make([]string, 0, len(c.Commands))
	for _, cmd := range c.Commands {
		ops = append(ops, cmd.Op)
	}
	return ops
}

func (c *CommandBuffer) BeginCount() int {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	return c.Begins
}

func (c *CommandBuffer) Begin(info gpu.BeginInfo) error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	if c.FailBegin {
		c.FailBegin = false
		return errors.New("gputest: begin failed")
	}
	if c.Level == core1_0.CommandBufferLevelSecondary && info.Inheritance == nil {
		return errors.New("gputest: secondary buffer begun without inheritance")
	}
	c.Begins++
	c.Info = info
	c.Commands = nil
	c.recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	if !c.recording {
		return errors.New("gputest: end without begin")
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) Reset() error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()

	c.Commands = nil
	c.recording = false
	return nil
}

func (c *CommandBuffer) BeginRenderPass(begin gpu.RenderPassBegin, contents core1_0.SubpassContents) error {
	return c.record(Command{Op: "BeginRenderPass", Begin: begin, Contents: contents})
}

func (c *CommandBuffer) EndRenderPass() {
	_ = c.record(Command{Op: "EndRenderPass"})
}

func (c *CommandBuffer) ExecuteCommands(buffers []gpu.CommandBuffer) {
	_ = c.record(Command{Op: "ExecuteCommands", Secondary: append([]gpu.CommandBuffer(nil), buffers...)})
}

func (c *CommandBuffer) BindPipeline(bindPoint core1_0.PipelineBindPoint, pipeline gpu.Pipeline) {
	_ = c.record(Command{Op: "BindPipeline", Pipeline: pipeline})
}

func (c *CommandBuffer) BindDescriptorSet(bindPoint core1_0.PipelineBindPoint, layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	_ = c.record(Command{Op: "BindDescriptorSet", Set: set})
}

func (c *CommandBuffer) PushConstants(layout gpu.PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte) error {
	c.device.mu.Lock()
	fail := c.FailPushConstants
	c.FailPushConstants = false
	c.device.mu.Unlock()
	if fail {
		return errors.New("gputest: push constants failed")
	}
	return c.record(Command{Op: "PushConstants", Data: append([]byte(nil), data...)})
}

func (c *CommandBuffer) SetViewport(viewport core1_0.Viewport) {
	_ = c.record(Command{Op: "SetViewport", Viewport: viewport})
}

func (c *CommandBuffer) SetScissor(scissor core1_0.Rect2D) {
	_ = c.record(Command{Op: "SetScissor", Scissor: scissor})
}

func (c *CommandBuffer) BindVertexBuffer(buffer gpu.Buffer) {
	_ = c.record(Command{Op: "BindVertexBuffer", Buffer: buffer})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, indexType core1_0.IndexType) {
	_ = c.record(Command{Op: "BindIndexBuffer", Buffer: buffer})
}

func (c *CommandBuffer) DrawIndexed(indexCount int) {
	_ = c.record(Command{Op: "DrawIndexed", Count: indexCount})
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	return c.record(Command{Op: "CopyBuffer", Src: src, Dst: dst, Size: size})
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, width, height int) error {
	return c.record(Command{Op: "CopyBufferToImage", Src: src, Image: dst, Width: width, Height: height})
}

func (c *CommandBuffer) PipelineBarrier(barrier gpu.ImageBarrier) error {
	return c.record(Command{Op: "PipelineBarrier", Barrier: barrier})
}

// Queue executes transfer commands at submit time and keeps a log of what
// was submitted and presented.
type Queue struct {
	device *Device

	Submits   []gpu.SubmitInfo
	Presents  []int
	Draws     int
	WaitIdles int
	// FailSubmit makes the next submit fail.
	FailSubmit bool
	// OutOfDate makes the next present fail with gpu.ErrOutOfDate.
	OutOfDate bool
}

func (q *Queue) Submit(fence gpu.Fence, info gpu.SubmitInfo) error {
	q.device.mu.Lock()
	defer q.device.mu.Unlock()

	if q.FailSubmit {
		q.FailSubmit = false
		return errors.New("gputest: submit failed")
	}

	for _, buffer := range info.CommandBuffers {
		cb, ok := buffer.(*CommandBuffer)
		if !ok {
			return errors.Newf("gputest: foreign command buffer %T", buffer)
		}
		if cb.recording {
			return errors.Newf("gputest: command buffer %d submitted while recording", cb.ID)
		}
		if err := q.execute(cb); err != nil {
			return err
		}
	}
	q.Submits = append(q.Submits, info)

	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return errors.Newf("gputest: foreign fence %T", fence)
		}
		f.Signaled = true
	}
	return nil
}

func (q *Queue) execute(cb *CommandBuffer) error {
	for _, cmd := range cb.Commands {
		switch cmd.Op {
		case "CopyBuffer":
			src, dst := cmd.Src.(*Buffer), cmd.Dst.(*Buffer)
			if cmd.Size > len(src.data) || cmd.Size > len(dst.data) {
				return errors.Newf("gputest: copy of %d bytes out of range", cmd.Size)
			}
			copy(dst.data, src.data[:cmd.Size])
		case "CopyBufferToImage":
			src, img := cmd.Src.(*Buffer), cmd.Image.(*Image)
			if img.Layout != core1_0.ImageLayoutTransferDstOptimal {
				return errors.Newf("gputest: copy to image %d in layout %d", img.ID, img.Layout)
			}
			img.Pixels = append([]byte(nil), src.data[:cmd.Width*cmd.Height*4]...)
		case "PipelineBarrier":
			img := cmd.Barrier.Image.(*Image)
			img.Layout = cmd.Barrier.NewLayout
		case "ExecuteCommands":
			for _, secondary := range cmd.Secondary {
				if err := q.execute(secondary.(*CommandBuffer)); err != nil {
					return err
				}
			}
		case "DrawIndexed":
			q.Draws++
		}
	}
	return nil
}

func (q *Queue) Present(swapchain gpu.Swapchain, image int, wait gpu.Semaphore) error {
	q.device.mu.Lock()
	defer q.device.mu.Unlock()

	q.Presents = append(q.Presents, image)
	if q.OutOfDate {
		q.OutOfDate = false
		return gpu.ErrOutOfDate
	}
	return nil
}

func (q *Queue) WaitIdle() error {
	q.device.mu.Lock()
	defer q.device.mu.Unlock()
	q.WaitIdles++
	return nil
}
