package render

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
)

// RenderCallManager drives the per-frame protocol. It keeps one primary
// command buffer per swapchain image, re-recorded only when the mesh
// secondaries changed or the swapchain was rebuilt.
type RenderCallManager struct {
	device    gpu.Device
	swapchain *Swapchain
	objects   *ObjectManager

	pool      gpu.CommandPool
	primaries []gpu.CommandBuffer
	stale     []bool

	sync *frameSync

	recordings int
	dropped    int
}

func NewRenderCallManager(device gpu.Device, queueFamily int, swapchain *Swapchain, objects *ObjectManager, framesInFlight int) (*RenderCallManager, error) {
	pool, err := device.CreateCommandPool(queueFamily)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create primary command pool (vkCreateCommandPool didn't return success).")
		return nil, errors.Wrap(err, "create primary command pool")
	}

	m := &RenderCallManager{
		device:    device,
		swapchain: swapchain,
		objects:   objects,
		pool:      pool,
	}

	if err := m.allocatePrimaries(); err != nil {
		pool.Destroy()
		return nil, err
	}

	m.sync, err = newFrameSync(device, framesInFlight, swapchain.ImageCount())
	if err != nil {
		m.device.FreeCommandBuffers(m.primaries)
		pool.Destroy()
		return nil, err
	}
	return m, nil
}

func (m *RenderCallManager) allocatePrimaries() error {
	if len(m.primaries) > 0 {
		m.device.FreeCommandBuffers(m.primaries)
		m.primaries = nil
	}
	if m.swapchain.ImageCount() == 0 {
		m.stale = nil
		return nil
	}

	buffers, err := m.device.AllocateCommandBuffers(m.pool, core1_0.CommandBufferLevelPrimary, m.swapchain.ImageCount())
	if err != nil {
		log.Error("Vulkan Renderer | Failed to allocate primary command buffers (vkAllocateCommandBuffers didn't return success).")
		return errors.Wrap(err, "allocate primary command buffers")
	}
	m.primaries = buffers
	m.stale = make([]bool, len(buffers))
	m.markStale()
	return nil
}

func (m *RenderCallManager) markStale() {
	for i := range m.stale {
		m.stale[i] = true
	}
}

// Draw renders and presents one frame. It returns gpu.ErrOutOfDate when the
// swapchain no longer matches the surface; the frame is skipped in that
// case and the caller is expected to rebuild the swapchain.
func (m *RenderCallManager) Draw() error {
	frame := m.sync.current

	if err := m.sync.inFlight[frame].Wait(); err != nil {
		log.Error("Vulkan Renderer | Failed to wait for frame (vkWaitForFences didn't return success).")
		return errors.Wrap(err, "wait for in flight fence")
	}

	if m.objects.Pending() {
		// Secondaries are re-recorded in place, so nothing may still be
		// executing them.
		if err := m.sync.waitAll(); err != nil {
			return err
		}
		if err := m.objects.Update(); err != nil {
			return err
		}
	}
	if m.objects.CmdBuffersNeedRebuilding() {
		m.markStale()
	}

	image, err := m.swapchain.Handle().AcquireNextImage(m.sync.imageAvailable[frame])
	if errors.Is(err, gpu.ErrOutOfDate) {
		return gpu.ErrOutOfDate
	}
	if err != nil {
		log.Error("Vulkan Renderer | Failed to acquire swapchain image (vkAcquireNextImageKHR didn't return success).")
		return errors.Wrap(err, "acquire swapchain image")
	}

	if err := m.prepare(image); err != nil {
		return errors.CombineErrors(err, m.sync.releaseAcquire())
	}

	fence := m.sync.inFlight[frame]
	if err := m.device.ResetFences(fence); err != nil {
		log.Error("Vulkan Renderer | Failed to reset fence (vkResetFences didn't return success).")
		return errors.CombineErrors(errors.Wrap(err, "reset in flight fence"), m.sync.recycle())
	}

	err = m.device.GraphicsQueue().Submit(fence, gpu.SubmitInfo{
		WaitSemaphores:   []gpu.Semaphore{m.sync.imageAvailable[frame]},
		WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []gpu.CommandBuffer{m.primaries[image]},
		SignalSemaphores: []gpu.Semaphore{m.sync.renderFinished[frame]},
	})
	if err != nil {
		log.WithError(err).Error("Vulkan Renderer | Failed to submit draw command buffer (vkQueueSubmit didn't return success).")
		m.dropped++
		return m.sync.recycle()
	}

	err = m.device.PresentQueue().Present(m.swapchain.Handle(), image, m.sync.renderFinished[frame])
	m.sync.advance()
	if errors.Is(err, gpu.ErrOutOfDate) {
		return gpu.ErrOutOfDate
	}
	if err != nil {
		log.Error("Vulkan Renderer | Failed to present swapchain image (vkQueuePresentKHR didn't return success).")
		return errors.Wrap(err, "present swapchain image")
	}
	return nil
}

// prepare waits for the acquired image to be free and re-records its
// primary buffer if it is stale.
func (m *RenderCallManager) prepare(image int) error {
	if err := m.sync.claimImage(image); err != nil {
		return err
	}
	if m.stale[image] {
		return m.record(image)
	}
	return nil
}

func (m *RenderCallManager) record(image int) error {
	cb := m.primaries[image]
	if err := cb.Reset(); err != nil {
		return errors.Wrap(err, "reset primary command buffer")
	}
	if err := cb.Begin(gpu.BeginInfo{}); err != nil {
		log.Error("Vulkan Renderer | Failed to begin recording command buffer (vkBeginCommandBuffer didn't return success).")
		return errors.Wrap(err, "begin primary command buffer")
	}

	err := cb.BeginRenderPass(gpu.RenderPassBegin{
		RenderPass:  m.swapchain.RenderPass(),
		Framebuffer: m.swapchain.Framebuffers()[image],
		Extent:      m.swapchain.SurfaceExtent(),
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{0, 0, 0, 1},
			core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
		},
	}, core1_0.SubpassContentsSecondaryCommandBuffers)
	if err != nil {
		_ = cb.End()
		return errors.Wrap(err, "begin render pass")
	}

	if secondaries := m.objects.MeshCommands(); len(secondaries) > 0 {
		cb.ExecuteCommands(secondaries)
	}

	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		log.Error("Vulkan Renderer | Failed to record command buffer (vkEndCommandBuffer didn't return success).")
		return errors.Wrap(err, "end primary command buffer")
	}

	m.stale[image] = false
	m.recordings++
	return nil
}

// HandleResize follows a swapchain rebuild. Primaries are reallocated when
// the image count changed and re-recorded against the new framebuffers
// either way.
func (m *RenderCallManager) HandleResize() error {
	if m.swapchain.ImageCount() != len(m.primaries) {
		if err := m.allocatePrimaries(); err != nil {
			return err
		}
	}
	m.sync.resetImages(m.swapchain.ImageCount())
	m.markStale()
	return nil
}

// WaitIdle waits for every frame in flight.
func (m *RenderCallManager) WaitIdle() error {
	return m.sync.waitAll()
}

// CurrentFrame is the frame in flight slot the next Draw uses.
func (m *RenderCallManager) CurrentFrame() int {
	return m.sync.current
}

func (m *RenderCallManager) FramesInFlight() int {
	return m.sync.frames()
}

// Recordings counts primary command buffer recordings.
func (m *RenderCallManager) Recordings() int {
	return m.recordings
}

// Dropped counts frames lost to a failed submit.
func (m *RenderCallManager) Dropped() int {
	return m.dropped
}

func (m *RenderCallManager) Destroy() {
	m.sync.destroy()
	if len(m.primaries) > 0 {
		m.device.FreeCommandBuffers(m.primaries)
		m.primaries = nil
	}
	m.pool.Destroy()
}
