package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/lunarengine/lunar/internal/gpu/gputest"
	"github.com/vkngwrapper/core/core1_0"
)

func score(c *qt.C, device *gputest.PhysicalDevice) int {
	var cache QueueFamilyCache
	families, err := cache.Query(device, gputest.NewSurface(1024, 1024))
	c.Assert(err, qt.IsNil)

	s, err := DeviceScore(device, families)
	c.Assert(err, qt.IsNil)
	return s
}

func TestDeviceScore(t *testing.T) {
	c := qt.New(t)

	discrete := gputest.NewPhysicalDevice("discrete", 8192)
	c.Assert(score(c, discrete), qt.Equals, 8+10)

	integrated := gputest.NewPhysicalDevice("integrated", 2048)
	integrated.Type = core1_0.PhysicalDeviceTypeIntegratedGPU
	c.Assert(score(c, integrated), qt.Equals, 2+1)

	optional := gputest.NewPhysicalDevice("optional", 2048)
	optional.DeviceExtensions = append(optional.DeviceExtensions, "VK_KHR_dynamic_rendering")
	c.Assert(score(c, optional), qt.Equals, 2+10+1)
}

func TestDeviceScoreIsMonotonicInMemory(t *testing.T) {
	c := qt.New(t)

	previous := -1
	for _, vramMB := range []int{0, 1024, 2048, 4096, 6144, 24576} {
		s := score(c, gputest.NewPhysicalDevice("gpu", vramMB))
		c.Assert(s > previous, qt.IsTrue, qt.Commentf("%d MB scored %d after %d", vramMB, s, previous))
		previous = s
	}
}

func TestDeviceScoreIgnoresHostHeaps(t *testing.T) {
	c := qt.New(t)

	device := gputest.NewPhysicalDevice("gpu", 2048)
	device.Heaps = append(device.Heaps, device.Heaps[0])
	device.Heaps[1].DeviceLocal = false
	c.Assert(score(c, device), qt.Equals, 2+10)
}

func TestDeviceScoreZeroWhenUnsuitable(t *testing.T) {
	c := qt.New(t)

	noSwapchain := gputest.NewPhysicalDevice("no swapchain", 16384)
	noSwapchain.DeviceExtensions = []string{"VK_KHR_dynamic_rendering"}
	c.Assert(score(c, noSwapchain), qt.Equals, 0)

	noPresent := gputest.NewPhysicalDevice("no present", 16384)
	noPresent.Present = nil
	c.Assert(score(c, noPresent), qt.Equals, 0)

	noGraphics := gputest.NewPhysicalDevice("no graphics", 16384)
	noGraphics.Families = []core1_0.QueueFlags{core1_0.QueueCompute}
	c.Assert(score(c, noGraphics), qt.Equals, 0)
}

func TestQueueFamilyCacheQueriesOnce(t *testing.T) {
	c := qt.New(t)

	device := gputest.NewPhysicalDevice("gpu", 1024)
	surface := gputest.NewSurface(1024, 1024)

	var cache QueueFamilyCache
	first, err := cache.Query(device, surface)
	c.Assert(err, qt.IsNil)
	families, support := device.FamilyQueries, surface.SupportQueries

	second, err := cache.Query(device, surface)
	c.Assert(err, qt.IsNil)
	c.Assert(*second.GraphicsFamily, qt.Equals, *first.GraphicsFamily)
	c.Assert(*second.PresentFamily, qt.Equals, *first.PresentFamily)
	c.Assert(device.FamilyQueries, qt.Equals, families)
	c.Assert(surface.SupportQueries, qt.Equals, support)
}

func TestQueueFamiliesStopAtFirstMatch(t *testing.T) {
	c := qt.New(t)

	device := gputest.NewPhysicalDevice("gpu", 1024)
	device.Families = []core1_0.QueueFlags{
		core1_0.QueueGraphics,
		core1_0.QueueGraphics,
		core1_0.QueueGraphics,
	}
	device.Present = []int{0, 1, 2}
	surface := gputest.NewSurface(1024, 1024)

	var cache QueueFamilyCache
	families, err := cache.Query(device, surface)
	c.Assert(err, qt.IsNil)
	c.Assert(*families.GraphicsFamily, qt.Equals, 0)
	c.Assert(*families.PresentFamily, qt.Equals, 0)
	c.Assert(surface.SupportQueries, qt.Equals, 1)

	mode, shared := families.SharingMode()
	c.Assert(mode, qt.Equals, core1_0.SharingModeExclusive)
	c.Assert(shared, qt.HasLen, 0)
}

func TestQueueFamiliesSplit(t *testing.T) {
	c := qt.New(t)

	device := gputest.NewPhysicalDevice("gpu", 1024)
	device.Families = []core1_0.QueueFlags{core1_0.QueueTransfer, core1_0.QueueGraphics}
	device.Present = []int{0}

	var cache QueueFamilyCache
	families, err := cache.Query(device, gputest.NewSurface(1024, 1024))
	c.Assert(err, qt.IsNil)
	c.Assert(*families.GraphicsFamily, qt.Equals, 1)
	c.Assert(*families.PresentFamily, qt.Equals, 0)

	mode, shared := families.SharingMode()
	c.Assert(mode, qt.Equals, core1_0.SharingModeConcurrent)
	c.Assert(shared, qt.DeepEquals, []int{1, 0})
}

func TestRenderingDevicePicksBestOnce(t *testing.T) {
	c := qt.New(t)

	small := gputest.NewPhysicalDevice("small", 2048)
	big := gputest.NewPhysicalDevice("big", 8192)
	broken := gputest.NewPhysicalDevice("broken", 65536)
	broken.DeviceExtensions = nil

	instance := gputest.NewInstance(small, broken, big)
	ctx := NewContext(instance)
	surface := gputest.NewSurface(1024, 1024)

	device, err := ctx.RenderingDevice(surface)
	c.Assert(err, qt.IsNil)
	c.Assert(device, qt.Equals, big)

	device, err = ctx.RenderingDevice(surface)
	c.Assert(err, qt.IsNil)
	c.Assert(device, qt.Equals, big)
	c.Assert(instance.Enumerations, qt.Equals, 1)
}

func TestRenderingDeviceNoneSuitable(t *testing.T) {
	c := qt.New(t)

	broken := gputest.NewPhysicalDevice("broken", 8192)
	broken.Present = nil

	ctx := NewContext(gputest.NewInstance(broken))
	_, err := ctx.RenderingDevice(gputest.NewSurface(1024, 1024))
	c.Assert(errors.Is(err, ErrNoSuitableDevice), qt.IsTrue)

	_, err = NewContext(gputest.NewInstance()).RenderingDevice(gputest.NewSurface(1024, 1024))
	c.Assert(errors.Is(err, ErrNoSuitableDevice), qt.IsTrue)
}

func TestContextLifetime(t *testing.T) {
	c := qt.New(t)

	physical := gputest.NewPhysicalDevice("gpu", 4096)
	physical.DeviceExtensions = append(physical.DeviceExtensions, "VK_KHR_dynamic_rendering")
	instance := gputest.NewInstance(physical)
	ctx := NewContext(instance)
	surface := gputest.NewSurface(1024, 1024)

	first, err := ctx.Acquire(surface)
	c.Assert(err, qt.IsNil)
	second, err := ctx.Acquire(surface)
	c.Assert(err, qt.IsNil)
	c.Assert(second, qt.Equals, first)
	c.Assert(instance.Created, qt.HasLen, 1)

	device := instance.Created[0]
	c.Assert(device.Options.GraphicsFamily, qt.Equals, 0)
	c.Assert(device.Options.Extensions, qt.DeepEquals, []string{"VK_KHR_swapchain", "VK_KHR_dynamic_rendering"})

	ctx.Release()
	c.Assert(device.Destroyed, qt.IsFalse)
	c.Assert(ctx.Device(), qt.Not(qt.IsNil))

	ctx.Release()
	c.Assert(device.Destroyed, qt.IsTrue)
	c.Assert(device.WaitIdles, qt.Equals, 1)
	c.Assert(ctx.Device(), qt.IsNil)

	c.Assert(ctx.Release, qt.PanicMatches, ".*released more times than acquired.*")
}
