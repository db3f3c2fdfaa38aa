package render

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

var (
	ErrNoSurfaceFormat = errors.New("surface reports no formats")
	ErrNoPresentMode   = errors.New("surface reports no present modes")
	ErrNoDepthFormat   = errors.New("no supported depth format")
)

var depthFormats = []core1_0.Format{
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

const shadowMapFormat = core1_0.FormatD32SignedFloat

type SwapchainState int

const (
	SwapchainUninitialized SwapchainState = iota
	SwapchainCreated
	SwapchainResizing
	SwapchainDestroyed
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainCreated:
		return "Created"
	case SwapchainResizing:
		return "Resizing"
	case SwapchainDestroyed:
		return "Destroyed"
	}
	return "Uninitialized"
}

type attachment struct {
	image  gpu.Image
	view   gpu.ImageView
	format core1_0.Format
}

func (a *attachment) destroy() {
	if a.view != nil {
		a.view.Destroy()
	}
	if a.image != nil {
		a.image.Destroy()
	}
	*a = attachment{}
}

type shadowMap struct {
	attachment
	renderPass  gpu.RenderPass
	framebuffer gpu.Framebuffer
}

func (s *shadowMap) destroy() {
	if s.framebuffer != nil {
		s.framebuffer.Destroy()
	}
	if s.renderPass != nil {
		s.renderPass.Destroy()
	}
	s.attachment.destroy()
	*s = shadowMap{}
}

// Swapchain owns a surface's presentable images and everything sized to
// them: per-image views and framebuffers, the depth buffer and the shadow
// map target. The main render pass outlives resizes.
type Swapchain struct {
	device   gpu.Device
	physical gpu.PhysicalDevice
	surface  gpu.Surface
	families QueueFamilyIndices

	state        SwapchainState
	handle       gpu.Swapchain
	format       khr_surface.SurfaceFormat
	presentMode  khr_surface.PresentMode
	extent       core1_0.Extent2D
	images       []gpu.Image
	views        []gpu.ImageView
	framebuffers []gpu.Framebuffer
	renderPass   gpu.RenderPass
	depth        attachment
	shadow       shadowMap
}

func NewSwapchain(device gpu.Device, physical gpu.PhysicalDevice, surface gpu.Surface, families QueueFamilyIndices) *Swapchain {
	return &Swapchain{
		device:   device,
		physical: physical,
		surface:  surface,
		families: families,
	}
}

func (s *Swapchain) State() SwapchainState             { return s.state }
func (s *Swapchain) Handle() gpu.Swapchain             { return s.handle }
func (s *Swapchain) SurfaceExtent() core1_0.Extent2D   { return s.extent }
func (s *Swapchain) RenderPass() gpu.RenderPass        { return s.renderPass }
func (s *Swapchain) Framebuffers() []gpu.Framebuffer   { return s.framebuffers }
func (s *Swapchain) ImageCount() int                   { return len(s.images) }
func (s *Swapchain) Format() khr_surface.SurfaceFormat { return s.format }

func (s *Swapchain) Viewport() core1_0.Viewport {
	return core1_0.Viewport{
		Width:    float32(s.extent.Width),
		Height:   float32(s.extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func (s *Swapchain) Scissor() core1_0.Rect2D {
	return core1_0.Rect2D{Offset: core1_0.Offset2D{X: 0, Y: 0}, Extent: s.extent}
}

// Create builds the swapchain for a drawable of width x height. Surface
// support is queried every time since a resize invalidates it.
func (s *Swapchain) Create(width, height int) error {
	if s.state == SwapchainCreated {
		panic(errors.AssertionFailedf("render: Swapchain.Create on a created swapchain"))
	}
	if s.state == SwapchainDestroyed {
		panic(errors.AssertionFailedf("render: Swapchain.Create after Destroy"))
	}

	caps, err := s.surface.Capabilities(s.physical)
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}
	formats, err := s.surface.Formats(s.physical)
	if err != nil {
		return errors.Wrap(err, "query surface formats")
	}
	modes, err := s.surface.PresentModes(s.physical)
	if err != nil {
		return errors.Wrap(err, "query present modes")
	}

	s.format, err = chooseSurfaceFormat(formats)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to find a surface format (vkGetPhysicalDeviceSurfaceFormatsKHR didn't return any).")
		return err
	}
	s.presentMode, err = choosePresentMode(modes)
	if err != nil {
		return err
	}
	s.extent = chooseExtent(caps, width, height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	sharingMode, queueFamilies := s.families.SharingMode()
	s.handle, err = s.device.CreateSwapchain(gpu.SwapchainOptions{
		Surface:       s.surface,
		Capabilities:  caps,
		MinImageCount: imageCount,
		Format:        s.format,
		Extent:        s.extent,
		PresentMode:   s.presentMode,
		SharingMode:   sharingMode,
		QueueFamilies: queueFamilies,
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create swapchain (vkCreateSwapchainKHR didn't return success).")
		return errors.Wrap(err, "create swapchain")
	}

	if err := s.createImageViews(); err != nil {
		return err
	}
	if err := s.createDepthBuffer(); err != nil {
		return err
	}
	if err := s.createShadowMap(); err != nil {
		return err
	}
	if s.renderPass == nil {
		if err := s.createRenderPass(s.depth.format); err != nil {
			return err
		}
	}
	if err := s.createFramebuffers(); err != nil {
		return err
	}

	s.state = SwapchainCreated
	return nil
}

// CreateRenderPass creates only the main render pass, for a surface that
// cannot back a swapchain yet such as a minimized window. Create builds the
// rest once the surface has a size.
func (s *Swapchain) CreateRenderPass() error {
	if s.renderPass != nil {
		return nil
	}

	formats, err := s.surface.Formats(s.physical)
	if err != nil {
		return errors.Wrap(err, "query surface formats")
	}
	s.format, err = chooseSurfaceFormat(formats)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to find a surface format (vkGetPhysicalDeviceSurfaceFormatsKHR didn't return any).")
		return err
	}
	depth, err := s.findDepthFormat()
	if err != nil {
		log.Error("Vulkan Renderer | Failed to find a depth format (vkGetPhysicalDeviceFormatProperties didn't report one).")
		return err
	}
	return s.createRenderPass(depth)
}

// Resize waits for the device to go idle, tears down everything sized to
// the old surface and creates it again at width x height. The main render
// pass is kept.
func (s *Swapchain) Resize(width, height int) error {
	if s.state != SwapchainCreated {
		panic(errors.AssertionFailedf("render: Swapchain.Resize in state %s", s.state))
	}
	s.state = SwapchainResizing

	if err := s.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device before resize")
	}
	s.destroySized()
	s.state = SwapchainUninitialized
	return s.Create(width, height)
}

// Destroy releases every object the swapchain owns, the render pass
// included.
func (s *Swapchain) Destroy() {
	if s.state == SwapchainDestroyed {
		return
	}

	s.destroySized()
	if s.renderPass != nil {
		s.renderPass.Destroy()
		s.renderPass = nil
	}
	s.state = SwapchainDestroyed
}

func (s *Swapchain) destroySized() {
	s.shadow.destroy()
	s.depth.destroy()

	for _, framebuffer := range s.framebuffers {
		framebuffer.Destroy()
	}
	s.framebuffers = nil

	for _, view := range s.views {
		view.Destroy()
	}
	s.views = nil
	s.images = nil

	if s.handle != nil {
		s.handle.Destroy()
		s.handle = nil
	}
}

func (s *Swapchain) createImageViews() error {
	images, err := s.handle.Images()
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	s.images = images

	for _, image := range images {
		view, err := s.device.CreateImageView(image, s.format.Format, core1_0.ImageAspectColor)
		if err != nil {
			log.Error("Vulkan Renderer | Failed to create swapchain image view (vkCreateImageView didn't return success).")
			return errors.Wrap(err, "create swapchain image view")
		}
		s.views = append(s.views, view)
	}
	return nil
}

func (s *Swapchain) findDepthFormat() (core1_0.Format, error) {
	for _, format := range depthFormats {
		props := s.physical.FormatProperties(format)
		if props.OptimalTilingFeatures&core1_0.FormatFeatureDepthStencilAttachment != 0 {
			return format, nil
		}
	}
	return 0, ErrNoDepthFormat
}

func (s *Swapchain) createAttachment(format core1_0.Format, usage core1_0.ImageUsageFlags) (attachment, error) {
	image, err := s.device.CreateImage(gpu.ImageOptions{
		Width:  s.extent.Width,
		Height: s.extent.Height,
		Format: format,
		Usage:  usage,
	})
	if err != nil {
		return attachment{}, errors.Wrap(err, "create attachment image")
	}

	view, err := s.device.CreateImageView(image, format, core1_0.ImageAspectDepth)
	if err != nil {
		image.Destroy()
		return attachment{}, errors.Wrap(err, "create attachment view")
	}
	return attachment{image: image, view: view, format: format}, nil
}

func (s *Swapchain) createDepthBuffer() error {
	format, err := s.findDepthFormat()
	if err != nil {
		log.Error("Vulkan Renderer | Failed to find a depth format (vkGetPhysicalDeviceFormatProperties didn't report one).")
		return err
	}

	s.depth, err = s.createAttachment(format, core1_0.ImageUsageDepthStencilAttachment)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create depth buffer (vkCreateImage didn't return success).")
	}
	return err
}

func (s *Swapchain) createShadowMap() error {
	var err error
	s.shadow.attachment, err = s.createAttachment(shadowMapFormat, core1_0.ImageUsageDepthStencilAttachment|core1_0.ImageUsageSampled)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create shadow map (vkCreateImage didn't return success).")
		return err
	}

	s.shadow.renderPass, err = s.device.CreateRenderPass(core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         shadowMapFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilReadOnlyOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 0,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass:    core1_0.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  core1_0.PipelineStageFragmentShader,
				SrcAccessMask: core1_0.AccessShaderRead,
				DstStageMask:  core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessDepthStencilAttachmentWrite,
			},
			{
				SrcSubpass:    0,
				DstSubpass:    core1_0.SubpassExternal,
				SrcStageMask:  core1_0.PipelineStageLateFragmentTests,
				SrcAccessMask: core1_0.AccessDepthStencilAttachmentWrite,
				DstStageMask:  core1_0.PipelineStageFragmentShader,
				DstAccessMask: core1_0.AccessShaderRead,
			},
		},
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create shadow map render pass (vkCreateRenderPass didn't return success).")
		return errors.Wrap(err, "create shadow map render pass")
	}

	s.shadow.framebuffer, err = s.device.CreateFramebuffer(gpu.FramebufferOptions{
		RenderPass:  s.shadow.renderPass,
		Attachments: []gpu.ImageView{s.shadow.view},
		Width:       s.extent.Width,
		Height:      s.extent.Height,
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create shadow map framebuffer (vkCreateFramebuffer didn't return success).")
		return errors.Wrap(err, "create shadow map framebuffer")
	}
	return nil
}

func (s *Swapchain) createRenderPass(depthFormat core1_0.Format) error {
	var err error
	s.renderPass, err = s.device.CreateRenderPass(core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         s.format.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         depthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create render pass (vkCreateRenderPass didn't return success).")
		return errors.Wrap(err, "create render pass")
	}
	return nil
}

func (s *Swapchain) createFramebuffers() error {
	for _, view := range s.views {
		framebuffer, err := s.device.CreateFramebuffer(gpu.FramebufferOptions{
			RenderPass:  s.renderPass,
			Attachments: []gpu.ImageView{view, s.depth.view},
			Width:       s.extent.Width,
			Height:      s.extent.Height,
		})
		if err != nil {
			log.Error("Vulkan Renderer | Failed to create framebuffer (vkCreateFramebuffer didn't return success).")
			return errors.Wrap(err, "create framebuffer")
		}
		s.framebuffers = append(s.framebuffers, framebuffer)
	}
	return nil
}

func chooseSurfaceFormat(formats []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(formats) == 0 {
		return khr_surface.SurfaceFormat{}, ErrNoSurfaceFormat
	}

	for _, format := range formats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}
	return formats[0], nil
}

// choosePresentMode prefers mailbox and falls back to immediate.
func choosePresentMode(modes []khr_surface.PresentMode) (khr_surface.PresentMode, error) {
	if len(modes) == 0 {
		return 0, ErrNoPresentMode
	}

	for _, mode := range modes {
		if mode == khr_surface.PresentModeMailbox {
			return mode, nil
		}
	}
	return khr_surface.PresentModeImmediate, nil
}

func chooseExtent(caps *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if caps.CurrentExtent.Width != -1 {
		return caps.CurrentExtent
	}

	if width < caps.MinImageExtent.Width {
		width = caps.MinImageExtent.Width
	}
	if width > caps.MaxImageExtent.Width {
		width = caps.MaxImageExtent.Width
	}
	if height < caps.MinImageExtent.Height {
		height = caps.MinImageExtent.Height
	}
	if height > caps.MaxImageExtent.Height {
		height = caps.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}
