// Package vulkan implements the gpu interfaces on top of vkngwrapper.
package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"
)

var log = logrus.WithField("subsystem", "vulkan")

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

type InstanceOptions struct {
	ApplicationName string
	// Extensions are the instance extensions the windowing system needs.
	Extensions []string
	Validation bool
}

type Instance struct {
	loader         core.Loader
	vk             core1_0.Instance
	surfaces       khr_surface.Extension
	debugMessenger ext_debug_utils.DebugUtilsMessenger
}

// NewInstance loads Vulkan through procAddr (vkGetInstanceProcAddr) and
// creates an instance with the requested extensions, plus the validation
// layer and debug messenger when options.Validation is set.
func NewInstance(procAddr unsafe.Pointer, options InstanceOptions) (*Instance, error) {
	loader, err := core.CreateLoaderFromProcAddr(procAddr)
	if err != nil {
		return nil, errors.Wrap(err, "create vulkan loader")
	}

	info := core1_0.InstanceCreateInfo{
		ApplicationName:    options.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "lunar",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := loader.AvailableExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "vkEnumerateInstanceExtensionProperties")
	}

	for _, ext := range options.Extensions {
		if _, ok := extensions[ext]; !ok {
			return nil, errors.Newf("create instance: missing extension %s", ext)
		}
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext)
	}

	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if options.Validation {
		layers, _, err := loader.AvailableLayers()
		if err != nil {
			return nil, errors.Wrap(err, "vkEnumerateInstanceLayerProperties")
		}

		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				return nil, errors.Newf("create instance: validation layer %s not available, install the LunarG Vulkan SDK", layer)
			}
			info.EnabledLayerNames = append(info.EnabledLayerNames, layer)
		}

		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		info.Next = debugMessengerOptions()
	}

	vk, _, err := loader.CreateInstance(nil, info)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create instance (vkCreateInstance didn't return success).")
		return nil, errors.Wrap(err, "vkCreateInstance")
	}

	instance := &Instance{
		loader:   loader,
		vk:       vk,
		surfaces: khr_surface.CreateExtensionFromInstance(vk),
	}

	if options.Validation {
		debug := ext_debug_utils.CreateExtensionFromInstance(vk)
		instance.debugMessenger, _, err = debug.CreateDebugUtilsMessenger(vk, nil, debugMessengerOptions())
		if err != nil {
			instance.Destroy()
			return nil, errors.Wrap(err, "vkCreateDebugUtilsMessengerEXT")
		}
	}

	return instance, nil
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityInfo,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func severityLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) logrus.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return logrus.ErrorLevel
	case severity&ext_debug_utils.SeverityWarning != 0:
		return logrus.WarnLevel
	case severity&ext_debug_utils.SeverityInfo != 0:
		return logrus.InfoLevel
	}
	return logrus.DebugLevel
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log.WithField("type", msgType.String()).Log(severityLevel(severity), data.Message)
	return false
}

// SurfaceFromSDL creates a presentation surface for an SDL window created
// with the WINDOW_VULKAN flag.
func (i *Instance) SurfaceFromSDL(window *sdl.Window) (gpu.Surface, error) {
	surface, err := vkng_sdl2.CreateSurface(i.vk, i.surfaces, window)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create surface (SDL_Vulkan_CreateSurface didn't return success).")
		return nil, errors.Wrap(err, "create surface")
	}
	return &Surface{vk: surface}, nil
}

func (i *Instance) PhysicalDevices() ([]gpu.PhysicalDevice, error) {
	devices, _, err := i.vk.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "vkEnumeratePhysicalDevices")
	}

	physical := make([]gpu.PhysicalDevice, 0, len(devices))
	for _, device := range devices {
		physical = append(physical, &PhysicalDevice{vk: device})
	}
	return physical, nil
}

func (i *Instance) CreateDevice(physical gpu.PhysicalDevice, options gpu.DeviceOptions) (gpu.Device, error) {
	pd := physical.(*PhysicalDevice)

	families := []int{options.GraphicsFamily}
	if options.PresentFamily != options.GraphicsFamily {
		families = append(families, options.PresentFamily)
	}

	var queueInfos []core1_0.DeviceQueueCreateInfo
	for _, family := range families {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string(nil), options.Extensions...)

	// Required wherever the implementation is a portability layer (MoltenVK).
	available, err := pd.Extensions()
	if err != nil {
		return nil, err
	}
	if available[khr_portability_subset.ExtensionName] {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	features := pd.vk.Features()
	vk, _, err := pd.vk.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueInfos,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: features.SamplerAnisotropy,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkCreateDevice")
	}

	return newDevice(pd, vk, options), nil
}

func (i *Instance) Destroy() {
	if i.debugMessenger != nil {
		i.debugMessenger.Destroy(nil)
		i.debugMessenger = nil
	}
	if i.vk != nil {
		i.vk.Destroy(nil)
		i.vk = nil
	}
}

type PhysicalDevice struct {
	vk core1_0.PhysicalDevice
}

func (p *PhysicalDevice) Properties() (gpu.PhysicalDeviceProperties, error) {
	props, err := p.vk.Properties()
	if err != nil {
		return gpu.PhysicalDeviceProperties{}, errors.Wrap(err, "vkGetPhysicalDeviceProperties")
	}

	result := gpu.PhysicalDeviceProperties{
		Name: props.DriverName,
		Type: props.DriverType,
	}
	if props.Limits != nil {
		result.MaxAnisotropy = props.Limits.MaxSamplerAnisotropy
	}
	return result, nil
}

func (p *PhysicalDevice) MemoryHeaps() []gpu.MemoryHeap {
	var heaps []gpu.MemoryHeap
	for _, heap := range p.vk.MemoryProperties().MemoryHeaps {
		heaps = append(heaps, gpu.MemoryHeap{
			Size:        int(heap.Size),
			DeviceLocal: heap.Flags&core1_0.MemoryHeapDeviceLocal != 0,
		})
	}
	return heaps
}

func (p *PhysicalDevice) Extensions() (map[string]bool, error) {
	extensions, _, err := p.vk.EnumerateDeviceExtensionProperties()
	if err != nil {
		return nil, errors.Wrap(err, "vkEnumerateDeviceExtensionProperties")
	}

	names := make(map[string]bool, len(extensions))
	for name := range extensions {
		names[name] = true
	}
	return names, nil
}

func (p *PhysicalDevice) QueueFamilies() []core1_0.QueueFlags {
	var flags []core1_0.QueueFlags
	for _, family := range p.vk.QueueFamilyProperties() {
		flags = append(flags, family.QueueFlags)
	}
	return flags
}

func (p *PhysicalDevice) FormatProperties(format core1_0.Format) core1_0.FormatProperties {
	return *p.vk.FormatProperties(format)
}

var (
	_ gpu.Instance       = (*Instance)(nil)
	_ gpu.PhysicalDevice = (*PhysicalDevice)(nil)
	_ gpu.Surface        = (*Surface)(nil)
	_ gpu.Device         = (*Device)(nil)
	_ gpu.Queue          = (*Queue)(nil)
	_ gpu.Swapchain      = (*Swapchain)(nil)
	_ gpu.CommandBuffer  = (*CommandBuffer)(nil)
	_ gpu.Buffer         = (*Buffer)(nil)
	_ gpu.Fence          = (*Fence)(nil)
)
