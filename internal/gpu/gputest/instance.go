// Package gputest is an in-memory implementation of the gpu interfaces.
//
// It keeps buffer contents as byte slices, executes copies and barriers at
// submit time, signals fences immediately and counts the queries the
// renderer makes so tests can assert on caching and re-recording.
package gputest

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

type Instance struct {
	mu sync.Mutex

	Devices      []*PhysicalDevice
	Enumerations int
	Created      []*Device
	Destroyed    bool
}

func NewInstance(devices ...*PhysicalDevice) *Instance {
	return &Instance{Devices: devices}
}

func (i *Instance) PhysicalDevices() ([]gpu.PhysicalDevice, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.Enumerations++
	devices := make([]gpu.PhysicalDevice, 0, len(i.Devices))
	for _, device := range i.Devices {
		devices = append(devices, device)
	}
	return devices, nil
}

func (i *Instance) CreateDevice(physical gpu.PhysicalDevice, options gpu.DeviceOptions) (gpu.Device, error) {
	pd, ok := physical.(*PhysicalDevice)
	if !ok {
		return nil, errors.Newf("gputest: foreign physical device %T", physical)
	}

	device := NewDevice()
	device.Physical = pd
	device.Options = options

	i.mu.Lock()
	i.Created = append(i.Created, device)
	i.mu.Unlock()
	return device, nil
}

func (i *Instance) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Destroyed = true
}

// PhysicalDevice describes a fake adapter. Every queue family listed in
// Present can present to any Surface.
type PhysicalDevice struct {
	mu sync.Mutex

	Name             string
	Type             core1_0.PhysicalDeviceType
	Heaps            []gpu.MemoryHeap
	DeviceExtensions []string
	Families         []core1_0.QueueFlags
	Present          []int
	MaxAnisotropy    float32
	// DepthFormats lists the formats usable as optimal tiling depth
	// attachments. Nil means every format is.
	DepthFormats []core1_0.Format

	FamilyQueries int
}

// NewPhysicalDevice returns a discrete adapter with one family that does
// graphics and presentation, the swapchain extension and the given amount
// of device local memory.
func NewPhysicalDevice(name string, vramMB int) *PhysicalDevice {
	return &PhysicalDevice{
		Name:             name,
		Type:             core1_0.PhysicalDeviceTypeDiscreteGPU,
		Heaps:            []gpu.MemoryHeap{{Size: vramMB * 1024 * 1024, DeviceLocal: true}},
		DeviceExtensions: []string{khr_swapchain.ExtensionName},
		Families:         []core1_0.QueueFlags{core1_0.QueueGraphics | core1_0.QueueTransfer},
		Present:          []int{0},
		MaxAnisotropy:    16,
	}
}

func (p *PhysicalDevice) Properties() (gpu.PhysicalDeviceProperties, error) {
	return gpu.PhysicalDeviceProperties{
		Name:          p.Name,
		Type:          p.Type,
		MaxAnisotropy: p.MaxAnisotropy,
	}, nil
}

func (p *PhysicalDevice) MemoryHeaps() []gpu.MemoryHeap {
	return p.Heaps
}

func (p *PhysicalDevice) Extensions() (map[string]bool, error) {
	extensions := make(map[string]bool, len(p.DeviceExtensions))
	for _, name := range p.DeviceExtensions {
		extensions[name] = true
	}
	return extensions, nil
}

func (p *PhysicalDevice) QueueFamilies() []core1_0.QueueFlags {
	p.mu.Lock()
	p.FamilyQueries++
	p.mu.Unlock()
	return p.Families
}

func (p *PhysicalDevice) FormatProperties(format core1_0.Format) core1_0.FormatProperties {
	supported := p.DepthFormats == nil
	for _, candidate := range p.DepthFormats {
		if candidate == format {
			supported = true
		}
	}

	if !supported {
		return core1_0.FormatProperties{}
	}
	return core1_0.FormatProperties{
		OptimalTilingFeatures: core1_0.FormatFeatureDepthStencilAttachment,
	}
}

func (p *PhysicalDevice) presents(family int) bool {
	for _, candidate := range p.Present {
		if candidate == family {
			return true
		}
	}
	return false
}

type Surface struct {
	mu sync.Mutex

	Caps           khr_surface.SurfaceCapabilities
	SurfaceFormats []khr_surface.SurfaceFormat
	Modes          []khr_surface.PresentMode

	SupportQueries int
	Destroyed      bool
}

// NewSurface returns a surface without a fixed current extent, so the
// swapchain extent is clamped between 1x1 and maxWidth x maxHeight.
func NewSurface(maxWidth, maxHeight int) *Surface {
	return &Surface{
		Caps: khr_surface.SurfaceCapabilities{
			MinImageCount:  1,
			MaxImageCount:  3,
			CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: maxWidth, Height: maxHeight},
		},
		SurfaceFormats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		Modes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
	}
}

func (s *Surface) Capabilities(physical gpu.PhysicalDevice) (*khr_surface.SurfaceCapabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	caps := s.Caps
	return &caps, nil
}

func (s *Surface) Formats(physical gpu.PhysicalDevice) ([]khr_surface.SurfaceFormat, error) {
	return s.SurfaceFormats, nil
}

func (s *Surface) PresentModes(physical gpu.PhysicalDevice) ([]khr_surface.PresentMode, error) {
	return s.Modes, nil
}

func (s *Surface) SupportsPresent(physical gpu.PhysicalDevice, family int) (bool, error) {
	s.mu.Lock()
	s.SupportQueries++
	s.mu.Unlock()

	pd, ok := physical.(*PhysicalDevice)
	if !ok {
		return false, errors.Newf("gputest: foreign physical device %T", physical)
	}
	return pd.presents(family), nil
}

func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Destroyed = true
}
