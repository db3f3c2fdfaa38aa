package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

type Swapchain struct {
	vk khr_swapchain.Swapchain
}

func (d *Device) CreateSwapchain(options gpu.SwapchainOptions) (gpu.Swapchain, error) {
	vk, _, err := d.swapchains.CreateSwapchain(d.vk, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: options.Surface.(*Surface).vk,

		MinImageCount:    options.MinImageCount,
		ImageFormat:      options.Format.Format,
		ImageColorSpace:  options.Format.ColorSpace,
		ImageExtent:      options.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   options.SharingMode,
		QueueFamilyIndices: options.QueueFamilies,

		PreTransform:   options.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    options.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateSwapchainKHR")
	}
	return &Swapchain{vk: vk}, nil
}

// Images returns the swapchain's images. They are owned by the swapchain
// and Destroy on them does nothing.
func (s *Swapchain) Images() ([]gpu.Image, error) {
	images, _, err := s.vk.SwapchainImages()
	if err != nil {
		return nil, errors.Wrap(err, "vkGetSwapchainImagesKHR")
	}

	result := make([]gpu.Image, 0, len(images))
	for _, image := range images {
		result = append(result, &Image{vk: image})
	}
	return result, nil
}

func (s *Swapchain) AcquireNextImage(signal gpu.Semaphore) (int, error) {
	var semaphore core1_0.Semaphore
	if signal != nil {
		semaphore = signal.(*Semaphore).vk
	}

	index, res, err := s.vk.AcquireNextImage(common.NoTimeout, semaphore, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, gpu.ErrOutOfDate
	}
	if err != nil {
		return 0, errors.Wrap(err, "vkAcquireNextImageKHR")
	}
	return index, nil
}

func (s *Swapchain) Destroy() {
	if s.vk != nil {
		s.vk.Destroy(nil)
		s.vk = nil
	}
}
