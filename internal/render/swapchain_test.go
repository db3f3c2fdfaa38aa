package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/lunarengine/lunar/internal/gpu/gputest"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
)

func TestSwapchainCreate(t *testing.T) {
	c := qt.New(t)

	device, physical, surface, families := newTestContext(t)
	sc := NewSwapchain(device, physical, surface, families)
	c.Assert(sc.State(), qt.Equals, SwapchainUninitialized)

	c.Assert(sc.Create(800, 600), qt.IsNil)
	c.Assert(sc.State(), qt.Equals, SwapchainCreated)
	c.Assert(sc.SurfaceExtent(), qt.Equals, core1_0.Extent2D{Width: 800, Height: 600})
	c.Assert(sc.ImageCount(), qt.Equals, 2)
	c.Assert(sc.Framebuffers(), qt.HasLen, 2)
	c.Assert(sc.Format().Format, qt.Equals, core1_0.FormatB8G8R8A8SRGB)
	c.Assert(sc.presentMode, qt.Equals, khr_surface.PresentModeMailbox)
	c.Assert(sc.depth.format, qt.Equals, core1_0.FormatD32SignedFloat)
	c.Assert(sc.shadow.format, qt.Equals, core1_0.FormatD32SignedFloat)

	created := device.Swapchains[0]
	c.Assert(created.Options.MinImageCount, qt.Equals, 2)
	c.Assert(created.Options.SharingMode, qt.Equals, core1_0.SharingModeExclusive)

	for i, framebuffer := range sc.Framebuffers() {
		fb := framebuffer.(*gputest.Framebuffer)
		c.Assert(fb.Options.RenderPass, qt.Equals, sc.RenderPass())
		c.Assert(fb.Options.Attachments, qt.HasLen, 2)
		c.Assert(fb.Options.Attachments[0], qt.Equals, sc.views[i])
		c.Assert(fb.Options.Attachments[1], qt.Equals, sc.depth.view)
	}

	pass := sc.RenderPass().(*gputest.RenderPass)
	c.Assert(pass.Info.Attachments, qt.HasLen, 2)
	c.Assert(pass.Info.Attachments[1].Format, qt.Equals, core1_0.FormatD32SignedFloat)

	shadowPass := sc.shadow.renderPass.(*gputest.RenderPass)
	c.Assert(shadowPass.Info.Attachments[0].FinalLayout, qt.Equals, core1_0.ImageLayoutDepthStencilReadOnlyOptimal)
}

func TestSwapchainResizeKeepsRenderPass(t *testing.T) {
	c := qt.New(t)

	device, physical, surface, families := newTestContext(t)
	sc := NewSwapchain(device, physical, surface, families)
	c.Assert(sc.Create(800, 600), qt.IsNil)

	pass := sc.RenderPass()
	handle := sc.Handle()
	depth := sc.depth
	shadow := sc.shadow
	framebuffers := sc.Framebuffers()
	idles := device.WaitIdles

	c.Assert(sc.Resize(8000, 0), qt.IsNil)
	c.Assert(sc.State(), qt.Equals, SwapchainCreated)
	c.Assert(device.WaitIdles, qt.Equals, idles+1)

	c.Assert(sc.RenderPass(), qt.Equals, pass)
	c.Assert(pass.(*gputest.RenderPass).Destroyed(), qt.IsFalse)
	c.Assert(sc.SurfaceExtent(), qt.Equals, core1_0.Extent2D{Width: 4096, Height: 1})

	c.Assert(sc.Handle(), qt.Not(qt.Equals), handle)
	c.Assert(sc.depth.image, qt.Not(qt.Equals), depth.image)
	c.Assert(sc.depth.view, qt.Not(qt.Equals), depth.view)
	c.Assert(sc.shadow.image, qt.Not(qt.Equals), shadow.image)
	c.Assert(sc.shadow.renderPass, qt.Not(qt.Equals), shadow.renderPass)
	c.Assert(sc.shadow.framebuffer, qt.Not(qt.Equals), shadow.framebuffer)

	c.Assert(sc.Framebuffers(), qt.HasLen, len(framebuffers))
	for i, old := range framebuffers {
		c.Assert(sc.Framebuffers()[i], qt.Not(qt.Equals), old)
		c.Assert(old.(*gputest.Framebuffer).Destroyed(), qt.IsTrue)
	}
	c.Assert(depth.image.(*gputest.Image).Destroyed(), qt.IsTrue)
	c.Assert(shadow.framebuffer.(*gputest.Framebuffer).Destroyed(), qt.IsTrue)

	c.Assert(device.Live("swapchain"), qt.Equals, 1)
	c.Assert(device.Live("framebuffer"), qt.Equals, 3)
	c.Assert(device.Live("renderpass"), qt.Equals, 2)
}

func TestSwapchainDestroy(t *testing.T) {
	c := qt.New(t)

	device, physical, surface, families := newTestContext(t)
	sc := NewSwapchain(device, physical, surface, families)
	c.Assert(sc.Create(800, 600), qt.IsNil)

	sc.Destroy()
	c.Assert(sc.State(), qt.Equals, SwapchainDestroyed)
	for _, kind := range []string{"swapchain", "image", "imageview", "framebuffer", "renderpass"} {
		c.Assert(device.Live(kind), qt.Equals, 0, qt.Commentf("%s", kind))
	}

	sc.Destroy()
	c.Assert(func() { sc.Create(800, 600) }, qt.PanicMatches, ".*after Destroy.*")
}

func TestSwapchainSurfaceFallbacks(t *testing.T) {
	c := qt.New(t)

	device, physical, surface, families := newTestContext(t)
	surface.SurfaceFormats = []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}
	surface.Modes = []khr_surface.PresentMode{khr_surface.PresentModeFIFO}
	surface.Caps.CurrentExtent = core1_0.Extent2D{Width: 640, Height: 480}
	surface.Caps.MinImageCount = 3
	surface.Caps.MaxImageCount = 0
	physical.DepthFormats = []core1_0.Format{core1_0.FormatD24UnsignedNormalizedS8UnsignedInt}

	sc := NewSwapchain(device, physical, surface, families)
	c.Assert(sc.Create(800, 600), qt.IsNil)
	c.Assert(sc.Format().Format, qt.Equals, core1_0.FormatR8G8B8A8UnsignedNormalized)
	c.Assert(sc.presentMode, qt.Equals, khr_surface.PresentModeImmediate)
	c.Assert(sc.SurfaceExtent(), qt.Equals, core1_0.Extent2D{Width: 640, Height: 480})
	c.Assert(sc.ImageCount(), qt.Equals, 4)
	c.Assert(sc.depth.format, qt.Equals, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt)
}

func TestSwapchainCreateFailures(t *testing.T) {
	c := qt.New(t)

	device, physical, surface, families := newTestContext(t)
	surface.SurfaceFormats = nil
	err := NewSwapchain(device, physical, surface, families).Create(800, 600)
	c.Assert(errors.Is(err, ErrNoSurfaceFormat), qt.IsTrue)

	device, physical, surface, families = newTestContext(t)
	physical.DepthFormats = []core1_0.Format{}
	err = NewSwapchain(device, physical, surface, families).Create(800, 600)
	c.Assert(errors.Is(err, ErrNoDepthFormat), qt.IsTrue)
}

func TestChooseExtentClamps(t *testing.T) {
	c := qt.New(t)

	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: core1_0.Extent2D{Width: 1000, Height: 1000},
	}
	c.Assert(chooseExtent(caps, 10, 5000), qt.Equals, core1_0.Extent2D{Width: 100, Height: 1000})
	c.Assert(chooseExtent(caps, 500, 600), qt.Equals, core1_0.Extent2D{Width: 500, Height: 600})
}
