package render

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

// ErrNoSuitableDevice is returned when no physical device scores above 0.
var ErrNoSuitableDevice = errors.New("no suitable GPU")

var requiredExtensions = []string{khr_swapchain.ExtensionName}

var optionalExtensions = []string{"VK_KHR_dynamic_rendering"}

// DeviceScore rates a physical device for rendering. A device without the
// required extensions or without graphics and present families scores 0.
// Otherwise it earns one point per GB of device local memory, 10 points
// for being discrete, 1 for being integrated and 1 per optional extension.
func DeviceScore(device gpu.PhysicalDevice, families QueueFamilyIndices) (int, error) {
	if !families.IsComplete() {
		return 0, nil
	}

	extensions, err := device.Extensions()
	if err != nil {
		return 0, errors.Wrap(err, "enumerate device extensions")
	}
	for _, name := range requiredExtensions {
		if !extensions[name] {
			return 0, nil
		}
	}

	props, err := device.Properties()
	if err != nil {
		return 0, errors.Wrap(err, "query device properties")
	}

	vramMB := 0
	for _, heap := range device.MemoryHeaps() {
		if heap.DeviceLocal {
			vramMB += heap.Size / (1024 * 1024)
		}
	}
	score := vramMB / 1024

	switch props.Type {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		score += 10
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		score += 1
	}

	for _, name := range optionalExtensions {
		if extensions[name] {
			score++
		}
	}

	return score, nil
}

// DeviceExtensions lists the extensions to enable on a logical device: the
// required ones and whichever optional ones the device has.
func DeviceExtensions(device gpu.PhysicalDevice) ([]string, error) {
	available, err := device.Extensions()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate device extensions")
	}

	names := append([]string(nil), requiredExtensions...)
	for _, name := range optionalExtensions {
		if available[name] {
			names = append(names, name)
		}
	}
	return names, nil
}
