package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/extensions/khr_surface"
)

type Surface struct {
	vk khr_surface.Surface
}

func (s *Surface) Capabilities(physical gpu.PhysicalDevice) (*khr_surface.SurfaceCapabilities, error) {
	capabilities, _, err := s.vk.PhysicalDeviceSurfaceCapabilities(physical.(*PhysicalDevice).vk)
	if err != nil {
		return nil, errors.Wrap(err, "vkGetPhysicalDeviceSurfaceCapabilitiesKHR")
	}
	return capabilities, nil
}

func (s *Surface) Formats(physical gpu.PhysicalDevice) ([]khr_surface.SurfaceFormat, error) {
	formats, _, err := s.vk.PhysicalDeviceSurfaceFormats(physical.(*PhysicalDevice).vk)
	if err != nil {
		return nil, errors.Wrap(err, "vkGetPhysicalDeviceSurfaceFormatsKHR")
	}
	return formats, nil
}

func (s *Surface) PresentModes(physical gpu.PhysicalDevice) ([]khr_surface.PresentMode, error) {
	modes, _, err := s.vk.PhysicalDeviceSurfacePresentModes(physical.(*PhysicalDevice).vk)
	if err != nil {
		return nil, errors.Wrap(err, "vkGetPhysicalDeviceSurfacePresentModesKHR")
	}
	return modes, nil
}

func (s *Surface) SupportsPresent(physical gpu.PhysicalDevice, family int) (bool, error) {
	supported, _, err := s.vk.PhysicalDeviceSurfaceSupport(physical.(*PhysicalDevice).vk, family)
	if err != nil {
		return false, errors.Wrap(err, "vkGetPhysicalDeviceSurfaceSupportKHR")
	}
	return supported, nil
}

func (s *Surface) Destroy() {
	if s.vk != nil {
		s.vk.Destroy(nil)
		s.vk = nil
	}
}
