package render

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
)

type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// SharingMode returns how swapchain images are shared between the graphics
// and present families, and the families to list when they are concurrent.
func (i QueueFamilyIndices) SharingMode() (core1_0.SharingMode, []int) {
	if *i.GraphicsFamily != *i.PresentFamily {
		return core1_0.SharingModeConcurrent, []int{*i.GraphicsFamily, *i.PresentFamily}
	}
	return core1_0.SharingModeExclusive, nil
}

// QueueFamilyCache remembers the queue families of every physical device
// it has been asked about. Families never change for a device, so the
// driver is queried once per device.
type QueueFamilyCache struct {
	mu      sync.Mutex
	devices map[gpu.PhysicalDevice]QueueFamilyIndices
}

func (c *QueueFamilyCache) Query(device gpu.PhysicalDevice, surface gpu.Surface) (QueueFamilyIndices, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if indices, ok := c.devices[device]; ok {
		return indices, nil
	}

	indices := QueueFamilyIndices{}
	for family, flags := range device.QueueFamilies() {
		if indices.PresentFamily == nil {
			supported, err := surface.SupportsPresent(device, family)
			if err != nil {
				return indices, errors.Wrapf(err, "query present support of family %d", family)
			}
			if supported {
				indices.PresentFamily = new(int)
				*indices.PresentFamily = family
			}
		}

		if indices.GraphicsFamily == nil && flags&core1_0.QueueGraphics != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = family
		}

		if indices.IsComplete() {
			break
		}
	}

	if c.devices == nil {
		c.devices = make(map[gpu.PhysicalDevice]QueueFamilyIndices)
	}
	c.devices[device] = indices
	return indices, nil
}
