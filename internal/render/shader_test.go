package render

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/gpu/gputest"
	"github.com/lunarengine/lunar/internal/ident"
	"github.com/lunarengine/lunar/internal/workers"
	"github.com/vkngwrapper/core/core1_0"
)

func newShaderManager(c *qt.C, descriptorSets int) (*gputest.Device, *ShaderManager) {
	device, _, _, _ := newTestContext(c)
	pass, err := device.CreateRenderPass(core1_0.RenderPassCreateInfo{})
	c.Assert(err, qt.IsNil)

	pool := workers.New(2)
	c.Cleanup(pool.Close)

	shaders, err := NewShaderManager(device, pass, pool, descriptorSets)
	c.Assert(err, qt.IsNil)
	return device, shaders
}

func TestCreateGraphicsDropsBrokenShaders(t *testing.T) {
	c := qt.New(t)
	device, shaders := newShaderManager(c, 0)
	device.RejectShader = func(code []uint32) bool {
		return len(code) > 1 && code[1] == 99
	}

	keys := shaders.CreateGraphics([]GraphicsShaderCreateInfo{
		validShader(),
		{VertexCode: spirv(1), FragmentCode: []byte{1, 2, 3}},
		{VertexCode: spirv(99), FragmentCode: spirv(2)},
		{VertexCode: []byte{0, 0, 0, 0}, FragmentCode: spirv(2)},
		validShader(),
	})
	c.Assert(keys, qt.HasLen, 2)
	c.Assert(shaders.Len(), qt.Equals, 2)
	c.Assert(device.Live("pipeline"), qt.Equals, 2)
	c.Assert(device.Live("shadermodule"), qt.Equals, 0)

	for _, key := range keys {
		s, ok := shaders.TryGet(key)
		c.Assert(ok, qt.IsTrue)
		c.Assert(s.kind, qt.Equals, ShaderGraphics)

		pipeline := s.pipeline.(*gputest.Pipeline)
		c.Assert(pipeline.Graphics.Layout, qt.Equals, shaders.Layout())
		c.Assert(pipeline.Graphics.Bindings, qt.HasLen, 1)
		c.Assert(pipeline.Graphics.Bindings[0].Stride, qt.Equals, int(unsafe.Sizeof(Vertex{})))
		c.Assert(pipeline.Graphics.Attributes, qt.HasLen, 3)
		c.Assert(pipeline.Graphics.Attributes[1].Offset, qt.Equals, 12)
		c.Assert(pipeline.Graphics.Attributes[2].Offset, qt.Equals, 24)
	}
}

func TestCreateGraphicsBindsDefaultTexture(t *testing.T) {
	c := qt.New(t)
	device, shaders := newShaderManager(c, 0)

	image, err := device.CreateImage(gpu.ImageOptions{Width: 1, Height: 1, Format: core1_0.FormatR8G8B8A8SRGB})
	c.Assert(err, qt.IsNil)
	view, err := device.CreateImageView(image, core1_0.FormatR8G8B8A8SRGB, core1_0.ImageAspectColor)
	c.Assert(err, qt.IsNil)
	sampler, err := device.CreateSampler(core1_0.SamplerCreateInfo{})
	c.Assert(err, qt.IsNil)
	shaders.SetDefaultTexture(view, sampler)

	keys := shaders.CreateGraphics([]GraphicsShaderCreateInfo{validShader()})
	c.Assert(keys, qt.HasLen, 1)

	s, _ := shaders.TryGet(keys[0])
	set := s.set.(*gputest.DescriptorSet)
	c.Assert(set.Images[DiffuseBinding], qt.Equals, view)

	other, err := device.CreateImageView(image, core1_0.FormatR8G8B8A8SRGB, core1_0.ImageAspectColor)
	c.Assert(err, qt.IsNil)
	idles := device.WaitIdles
	c.Assert(shaders.UseTexture(keys[0], other, sampler), qt.IsNil)
	c.Assert(set.Images[DiffuseBinding], qt.Equals, other)
	c.Assert(device.WaitIdles, qt.Equals, idles+1)
}

func TestCreateGraphicsExhaustsDescriptorPool(t *testing.T) {
	c := qt.New(t)
	device, shaders := newShaderManager(c, 1)

	keys := shaders.CreateGraphics([]GraphicsShaderCreateInfo{validShader(), validShader()})
	c.Assert(keys, qt.HasLen, 1)
	c.Assert(device.Live("pipeline"), qt.Equals, 1)
}

func TestCreateCompute(t *testing.T) {
	c := qt.New(t)
	_, shaders := newShaderManager(c, 0)

	keys := shaders.CreateCompute([]ComputeShaderCreateInfo{
		{Code: spirv(7)},
		{Code: []byte{1, 2, 3, 4}},
	})
	c.Assert(keys, qt.HasLen, 1)

	s, ok := shaders.TryGet(keys[0])
	c.Assert(ok, qt.IsTrue)
	c.Assert(s.kind, qt.Equals, ShaderCompute)

	c.Assert(func() { shaders.UseTexture(keys[0], nil, nil) }, qt.PanicMatches, ".*compute shader.*")
}

func TestUseTextureOnStaleShader(t *testing.T) {
	c := qt.New(t)
	_, shaders := newShaderManager(c, 0)

	err := shaders.UseTexture(ident.Key{}, nil, nil)
	c.Assert(errors.Is(err, ErrStaleHandle), qt.IsTrue)

	_, ok := shaders.TryGet(ident.Key{})
	c.Assert(ok, qt.IsFalse)
}

func TestShaderManagerDestroy(t *testing.T) {
	c := qt.New(t)
	device, shaders := newShaderManager(c, 0)

	shaders.CreateGraphics([]GraphicsShaderCreateInfo{validShader()})
	shaders.CreateCompute([]ComputeShaderCreateInfo{{Code: spirv(3)}})
	shaders.Destroy()

	c.Assert(shaders.Len(), qt.Equals, 0)
	for _, kind := range []string{"pipeline", "pipelinelayout", "descriptorsetlayout", "descriptorpool"} {
		c.Assert(device.Live(kind), qt.Equals, 0, qt.Commentf("%s", kind))
	}
}

func TestBytesToBytecode(t *testing.T) {
	c := qt.New(t)

	words, err := bytesToBytecode(spirv(0x01020304))
	c.Assert(err, qt.IsNil)
	c.Assert(words, qt.DeepEquals, []uint32{spirvMagic, 0x01020304})

	_, err = bytesToBytecode(nil)
	c.Assert(err, qt.ErrorMatches, ".*not a positive multiple of 4.*")
	_, err = bytesToBytecode([]byte{1, 2, 3, 4, 5})
	c.Assert(err, qt.ErrorMatches, ".*not a positive multiple of 4.*")
	_, err = bytesToBytecode([]byte{1, 2, 3, 4})
	c.Assert(err, qt.ErrorMatches, "bad SPIR-V magic.*")
}
