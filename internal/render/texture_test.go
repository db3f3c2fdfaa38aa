package render

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/lunarengine/lunar/internal/gpu/gputest"
	"github.com/vkngwrapper/core/core1_0"
)

func newTextureManager(c *qt.C) (*gputest.Device, *Submitter, *TextureManager) {
	device, physical, _, _ := newTestContext(c)
	submitter, err := NewSubmitter(device, 0)
	c.Assert(err, qt.IsNil)
	c.Cleanup(submitter.Close)

	textures, err := NewTextureManager(device, physical, NewBufferManager(device, submitter), submitter)
	c.Assert(err, qt.IsNil)
	return device, submitter, textures
}

func TestCreateTexture(t *testing.T) {
	c := qt.New(t)
	device, submitter, textures := newTextureManager(c)

	pixels := []byte{
		0xff, 0x00, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff,
		0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
	key, err := textures.CreateTexture(TextureCreateInfo{Width: 2, Height: 2, Channels: 4, Pixels: pixels})
	c.Assert(err, qt.IsNil)
	c.Assert(textures.Len(), qt.Equals, 1)

	tex, ok := textures.get(key)
	c.Assert(ok, qt.IsTrue)
	image := tex.image.(*gputest.Image)
	c.Assert(image.Layout, qt.Equals, core1_0.ImageLayoutShaderReadOnlyOptimal)
	c.Assert(image.Pixels, qt.DeepEquals, pixels)
	c.Assert(image.Options.Format, qt.Equals, core1_0.FormatR8G8B8A8SRGB)
	c.Assert(tex.view.(*gputest.ImageView).Image, qt.Equals, tex.image)

	// Both transitions and the copy share one submission, and the staging
	// buffer is released afterwards.
	c.Assert(submitter.Batches(), qt.Equals, 1)
	c.Assert(device.Live("buffer"), qt.Equals, 0)
}

func TestDestroyTexture(t *testing.T) {
	c := qt.New(t)
	device, _, textures := newTextureManager(c)

	key, err := textures.CreateTexture(TextureCreateInfo{Width: 1, Height: 1, Channels: 4, Pixels: []byte{1, 2, 3, 4}})
	c.Assert(err, qt.IsNil)

	c.Assert(textures.DestroyTexture(key), qt.IsTrue)
	c.Assert(textures.DestroyTexture(key), qt.IsFalse)
	c.Assert(textures.Len(), qt.Equals, 0)
	c.Assert(device.Live("image"), qt.Equals, 0)
	c.Assert(device.Live("imageview"), qt.Equals, 0)

	_, ok := textures.get(key)
	c.Assert(ok, qt.IsFalse)

	textures.Destroy()
	c.Assert(device.Live("sampler"), qt.Equals, 0)
}

func TestCreateTexturePreconditions(t *testing.T) {
	c := qt.New(t)
	_, _, textures := newTextureManager(c)

	c.Assert(func() {
		textures.CreateTexture(TextureCreateInfo{Width: 0, Height: 1, Channels: 4, Pixels: []byte{1, 2, 3, 4}})
	}, qt.PanicMatches, ".*texture size 0x1.*")
	c.Assert(func() {
		textures.CreateTexture(TextureCreateInfo{Width: 1, Height: 1, Channels: 3, Pixels: []byte{1, 2, 3}})
	}, qt.PanicMatches, ".*3 channels.*")
	c.Assert(func() {
		textures.CreateTexture(TextureCreateInfo{Width: 2, Height: 2, Channels: 4, Pixels: []byte{1, 2, 3, 4}})
	}, qt.PanicMatches, ".*needs 16 bytes, got 4.*")
}

func TestLayoutTransition(t *testing.T) {
	c := qt.New(t)

	toTransfer := layoutTransition(nil, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	c.Assert(toTransfer.DstAccess, qt.Equals, core1_0.AccessTransferWrite)
	c.Assert(toTransfer.SrcStage, qt.Equals, core1_0.PipelineStageTopOfPipe)
	c.Assert(toTransfer.DstStage, qt.Equals, core1_0.PipelineStageTransfer)

	toShader := layoutTransition(nil, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	c.Assert(toShader.SrcAccess, qt.Equals, core1_0.AccessTransferWrite)
	c.Assert(toShader.DstAccess, qt.Equals, core1_0.AccessShaderRead)
	c.Assert(toShader.DstStage, qt.Equals, core1_0.PipelineStageFragmentShader)

	c.Assert(func() {
		layoutTransition(nil, core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.ImageLayoutUndefined)
	}, qt.PanicMatches, ".*unexpected layout transition.*")
}
