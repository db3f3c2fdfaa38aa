package render

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
)

// DefaultFramesInFlight is how many frames the CPU may record ahead of the
// GPU.
const DefaultFramesInFlight = 2

// frameSync holds the per-frame semaphores and fences. imagesInFlight maps
// each swapchain image to the fence of the frame last rendered into it.
type frameSync struct {
	device gpu.Device

	imageAvailable []gpu.Semaphore
	renderFinished []gpu.Semaphore
	inFlight       []gpu.Fence
	imagesInFlight []gpu.Fence

	current int
}

func newFrameSync(device gpu.Device, frames, images int) (*frameSync, error) {
	if frames <= 0 {
		frames = DefaultFramesInFlight
	}

	s := &frameSync{
		device:         device,
		imagesInFlight: make([]gpu.Fence, images),
	}

	for i := 0; i < frames; i++ {
		imageAvailable, err := device.CreateSemaphore()
		if err != nil {
			s.destroy()
			log.Error("Vulkan Renderer | Failed to create image available semaphore (vkCreateSemaphore didn't return success).")
			return nil, errors.Wrap(err, "create image available semaphore")
		}
		s.imageAvailable = append(s.imageAvailable, imageAvailable)

		renderFinished, err := device.CreateSemaphore()
		if err != nil {
			s.destroy()
			log.Error("Vulkan Renderer | Failed to create render finished semaphore (vkCreateSemaphore didn't return success).")
			return nil, errors.Wrap(err, "create render finished semaphore")
		}
		s.renderFinished = append(s.renderFinished, renderFinished)

		fence, err := device.CreateFence(true)
		if err != nil {
			s.destroy()
			log.Error("Vulkan Renderer | Failed to create in flight fence (vkCreateFence didn't return success).")
			return nil, errors.Wrap(err, "create in flight fence")
		}
		s.inFlight = append(s.inFlight, fence)
	}

	return s, nil
}

func (s *frameSync) frames() int {
	return len(s.inFlight)
}

// claimImage waits for whichever frame last rendered into image, then marks
// image as owned by the current frame.
func (s *frameSync) claimImage(image int) error {
	fence := s.inFlight[s.current]
	if previous := s.imagesInFlight[image]; previous != nil && previous != fence {
		if err := previous.Wait(); err != nil {
			return errors.Wrapf(err, "wait for swapchain image %d", image)
		}
	}
	s.imagesInFlight[image] = fence
	return nil
}

// recycle replaces the current frame's acquire semaphore and fence after a
// failed submit left them in an unusable state.
func (s *frameSync) recycle() error {
	frame := s.current
	old := s.inFlight[frame]

	fence, err := s.device.CreateFence(true)
	if err != nil {
		return errors.Wrap(err, "recreate in flight fence")
	}
	semaphore, err := s.device.CreateSemaphore()
	if err != nil {
		fence.Destroy()
		return errors.Wrap(err, "recreate image available semaphore")
	}

	for i, owner := range s.imagesInFlight {
		if owner == old {
			s.imagesInFlight[i] = nil
		}
	}
	old.Destroy()
	s.imageAvailable[frame].Destroy()

	s.inFlight[frame] = fence
	s.imageAvailable[frame] = semaphore
	return nil
}

// releaseAcquire replaces the current frame's acquire semaphore after an
// image was acquired but never submitted. Nothing will wait on the old
// semaphore, so it cannot be handed to the next acquire.
func (s *frameSync) releaseAcquire() error {
	if err := s.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device before semaphore release")
	}
	semaphore, err := s.device.CreateSemaphore()
	if err != nil {
		return errors.Wrap(err, "recreate image available semaphore")
	}
	s.imageAvailable[s.current].Destroy()
	s.imageAvailable[s.current] = semaphore
	return nil
}

func (s *frameSync) advance() {
	s.current = (s.current + 1) % len(s.inFlight)
}

// resetImages forgets image ownership, for a swapchain with a new image
// count.
func (s *frameSync) resetImages(images int) {
	s.imagesInFlight = make([]gpu.Fence, images)
}

func (s *frameSync) waitAll() error {
	if len(s.inFlight) == 0 {
		return nil
	}
	return errors.Wrap(s.device.WaitForFences(s.inFlight...), "wait for frames in flight")
}

func (s *frameSync) destroy() {
	for _, semaphore := range s.imageAvailable {
		semaphore.Destroy()
	}
	for _, semaphore := range s.renderFinished {
		semaphore.Destroy()
	}
	for _, fence := range s.inFlight {
		fence.Destroy()
	}
	s.imageAvailable = nil
	s.renderFinished = nil
	s.inFlight = nil
	s.imagesInFlight = nil
}
