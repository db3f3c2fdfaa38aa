// Package gpu describes the graphics device surface the renderer drives.
//
// The renderer only ever talks to these interfaces. internal/gpu/vulkan
// implements them on top of vkngwrapper and internal/gpu/gputest implements
// them in memory for tests. Plain Vulkan value types (formats, layouts, flag
// sets, create infos that hold no handles) are shared with core1_0 and
// khr_surface directly.
package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
)

// ErrOutOfDate is returned by acquire and present when the swapchain no
// longer matches its surface and has to be recreated.
var ErrOutOfDate = errors.New("swapchain out of date")

// Destroyer is implemented by every handle that owns device memory or a
// driver object.
type Destroyer interface {
	Destroy()
}

type Instance interface {
	PhysicalDevices() ([]PhysicalDevice, error)
	CreateDevice(physical PhysicalDevice, options DeviceOptions) (Device, error)
	Destroy()
}

type DeviceOptions struct {
	GraphicsFamily int
	PresentFamily  int
	Extensions     []string
}

type PhysicalDeviceProperties struct {
	Name          string
	Type          core1_0.PhysicalDeviceType
	MaxAnisotropy float32
}

type MemoryHeap struct {
	Size        int
	DeviceLocal bool
}

type PhysicalDevice interface {
	Properties() (PhysicalDeviceProperties, error)
	MemoryHeaps() []MemoryHeap
	Extensions() (map[string]bool, error)
	// QueueFamilies returns the capability flags of every queue family, in
	// family index order.
	QueueFamilies() []core1_0.QueueFlags
	FormatProperties(format core1_0.Format) core1_0.FormatProperties
}

type Surface interface {
	Capabilities(physical PhysicalDevice) (*khr_surface.SurfaceCapabilities, error)
	Formats(physical PhysicalDevice) ([]khr_surface.SurfaceFormat, error)
	PresentModes(physical PhysicalDevice) ([]khr_surface.PresentMode, error)
	SupportsPresent(physical PhysicalDevice, family int) (bool, error)
	Destroy()
}
