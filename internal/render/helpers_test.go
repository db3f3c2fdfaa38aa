package render

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/gpu/gputest"
	"github.com/lunarengine/lunar/internal/workers"
)

type fakeWindow struct {
	width, height int
	surface       *gputest.Surface
	resize        func(width, height int)
}

func newFakeWindow(width, height int) *fakeWindow {
	return &fakeWindow{width: width, height: height, surface: gputest.NewSurface(4096, 4096)}
}

func (w *fakeWindow) Width() int  { return w.width }
func (w *fakeWindow) Height() int { return w.height }

func (w *fakeWindow) CreateSurface(instance gpu.Instance) (gpu.Surface, error) {
	return w.surface, nil
}

func (w *fakeWindow) OnResize(fn func(width, height int)) {
	w.resize = fn
}

func (w *fakeWindow) Resize(width, height int) {
	w.width, w.height = width, height
	if w.resize != nil {
		w.resize(width, height)
	}
}

// spirv encodes a minimal module: the magic number followed by words.
func spirv(words ...uint32) []byte {
	b := make([]byte, 4*(len(words)+1))
	binary.LittleEndian.PutUint32(b, spirvMagic)
	for i, word := range words {
		binary.LittleEndian.PutUint32(b[4*(i+1):], word)
	}
	return b
}

func validShader() GraphicsShaderCreateInfo {
	return GraphicsShaderCreateInfo{VertexCode: spirv(1), FragmentCode: spirv(2)}
}

func cube() ([]Vertex, []uint32) {
	vertices := []Vertex{
		{Position: mgl32.Vec3{-0.5, -0.5, -0.5}},
		{Position: mgl32.Vec3{0.5, -0.5, -0.5}},
		{Position: mgl32.Vec3{0.5, 0.5, -0.5}},
		{Position: mgl32.Vec3{-0.5, 0.5, -0.5}},
		{Position: mgl32.Vec3{-0.5, -0.5, 0.5}},
		{Position: mgl32.Vec3{0.5, -0.5, 0.5}},
		{Position: mgl32.Vec3{0.5, 0.5, 0.5}},
		{Position: mgl32.Vec3{-0.5, 0.5, 0.5}},
	}
	indices := []uint32{
		0, 1, 2, 2, 3, 0,
		4, 5, 6, 6, 7, 4,
		0, 4, 7, 7, 3, 0,
		1, 5, 6, 6, 2, 1,
		3, 2, 6, 6, 7, 3,
		0, 1, 5, 5, 4, 0,
	}
	return vertices, indices
}

type rendererFixture struct {
	instance *gputest.Instance
	physical *gputest.PhysicalDevice
	window   *fakeWindow
	ctx      *Context
	pool     *workers.Pool
	renderer *Renderer
}

func (f *rendererFixture) device() *gputest.Device {
	return f.instance.Created[len(f.instance.Created)-1]
}

func newRendererFixture(c *qt.C) *rendererFixture {
	f := &rendererFixture{
		physical: gputest.NewPhysicalDevice("fake", 4096),
		window:   newFakeWindow(800, 600),
		pool:     workers.New(2),
	}
	f.instance = gputest.NewInstance(f.physical)
	f.ctx = NewContext(f.instance)

	r, err := NewRenderer(f.ctx, f.window, f.pool, Options{})
	c.Assert(err, qt.IsNil)
	f.renderer = r

	c.Cleanup(func() {
		if f.renderer != nil {
			f.renderer.Destroy()
		}
		f.pool.Close()
	})
	return f
}

func newTestContext(t testing.TB) (*gputest.Device, *gputest.PhysicalDevice, *gputest.Surface, QueueFamilyIndices) {
	physical := gputest.NewPhysicalDevice("fake", 4096)
	instance := gputest.NewInstance(physical)
	surface := gputest.NewSurface(4096, 4096)

	ctx := NewContext(instance)
	if _, err := ctx.Acquire(surface); err != nil {
		t.Fatal(err)
	}
	return instance.Created[0], physical, surface, ctx.QueueFamilies()
}
