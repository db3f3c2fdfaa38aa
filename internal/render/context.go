package render

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("subsystem", "render")

// Context owns the device state shared by every renderer: the physical
// device choice, the logical device and its queues. The logical device
// exists while at least one renderer holds the context.
type Context struct {
	instance gpu.Instance
	queues   QueueFamilyCache

	mu       sync.Mutex
	refs     int
	selected gpu.PhysicalDevice
	families QueueFamilyIndices
	device   gpu.Device
}

func NewContext(instance gpu.Instance) *Context {
	return &Context{instance: instance}
}

// Acquire registers a renderer presenting to surface and returns the
// logical device, creating it on first use.
func (c *Context) Acquire(surface gpu.Surface) (gpu.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs > 0 {
		c.refs++
		return c.device, nil
	}

	physical, err := c.renderingDeviceLocked(surface)
	if err != nil {
		return nil, err
	}

	families, err := c.queues.Query(physical, surface)
	if err != nil {
		return nil, err
	}

	extensions, err := DeviceExtensions(physical)
	if err != nil {
		return nil, err
	}

	device, err := c.instance.CreateDevice(physical, gpu.DeviceOptions{
		GraphicsFamily: *families.GraphicsFamily,
		PresentFamily:  *families.PresentFamily,
		Extensions:     extensions,
	})
	if err != nil {
		log.Errorf("Vulkan Renderer | Failed to create logical device (vkCreateDevice didn't return success).")
		return nil, errors.Wrap(err, "create logical device")
	}

	c.device = device
	c.families = families
	c.refs = 1
	return device, nil
}

// Release drops one renderer's hold on the context. The last release waits
// for the device to go idle and destroys it.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		panic(errors.AssertionFailedf("render: Context released more times than acquired"))
	}

	c.refs--
	if c.refs > 0 {
		return
	}

	if err := c.device.WaitIdle(); err != nil {
		log.WithError(err).Warn("Vulkan Renderer | Failed to wait for device before destroying it (vkDeviceWaitIdle didn't return success).")
	}
	c.device.Destroy()
	c.device = nil
}

func (c *Context) Instance() gpu.Instance {
	return c.instance
}

// Device returns the logical device, or nil while no renderer holds the
// context.
func (c *Context) Device() gpu.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// PhysicalDevice returns the selected physical device, or nil before the
// first Acquire.
func (c *Context) PhysicalDevice() gpu.PhysicalDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Context) QueueFamilies() QueueFamilyIndices {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.families
}

// RenderingDevice returns the best scoring physical device. Devices are
// enumerated and scored once; later calls return the cached choice.
func (c *Context) RenderingDevice(surface gpu.Surface) (gpu.PhysicalDevice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderingDeviceLocked(surface)
}

func (c *Context) renderingDeviceLocked(surface gpu.Surface) (gpu.PhysicalDevice, error) {
	if c.selected != nil {
		return c.selected, nil
	}

	devices, err := c.instance.PhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	var best gpu.PhysicalDevice
	bestScore := 0
	for _, device := range devices {
		families, err := c.queues.Query(device, surface)
		if err != nil {
			return nil, err
		}

		score, err := DeviceScore(device, families)
		if err != nil {
			return nil, err
		}

		if props, err := device.Properties(); err == nil {
			log.Debugf("Vulkan Renderer | %s scored %d", props.Name, score)
		}

		if score > bestScore {
			best, bestScore = device, score
		}
	}

	if best == nil {
		log.Error("Vulkan Renderer | Failed to find a suitable GPU.")
		return nil, ErrNoSuitableDevice
	}

	c.selected = best
	return best, nil
}
