package render

import (
	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/ident"
	"github.com/vkngwrapper/core/core1_0"
)

const textureFormat = core1_0.FormatR8G8B8A8SRGB

// TextureCreateInfo describes tightly packed 8 bit RGBA pixels.
type TextureCreateInfo struct {
	Width    int
	Height   int
	Channels int
	Pixels   []byte
}

type texture struct {
	id     uint64
	width  int
	height int
	image  gpu.Image
	view   gpu.ImageView
}

func (t *texture) destroy() {
	t.view.Destroy()
	t.image.Destroy()
}

// TextureManager owns sampled images and the one sampler they all share.
type TextureManager struct {
	device    gpu.Device
	buffers   *BufferManager
	submitter *Submitter
	sampler   gpu.Sampler
	textures  ident.Arena[*texture]
}

func NewTextureManager(device gpu.Device, physical gpu.PhysicalDevice, buffers *BufferManager, submitter *Submitter) (*TextureManager, error) {
	props, err := physical.Properties()
	if err != nil {
		return nil, errors.Wrap(err, "query device properties")
	}

	sampler, err := device.CreateSampler(core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: true,
		MaxAnisotropy:    props.MaxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create texture sampler (vkCreateSampler didn't return success).")
		return nil, errors.Wrap(err, "create texture sampler")
	}

	return &TextureManager{
		device:    device,
		buffers:   buffers,
		submitter: submitter,
		sampler:   sampler,
	}, nil
}

func (m *TextureManager) Sampler() gpu.Sampler {
	return m.sampler
}

// CreateTexture uploads pixels into a new shader readable image. The
// layout transitions and the copy go out in one submission.
func (m *TextureManager) CreateTexture(info TextureCreateInfo) (ident.Key, error) {
	if info.Width <= 0 || info.Height <= 0 {
		panic(errors.AssertionFailedf("render: texture size %dx%d", info.Width, info.Height))
	}
	if info.Channels != 4 {
		panic(errors.AssertionFailedf("render: texture with %d channels, want 4", info.Channels))
	}
	size := info.Width * info.Height * info.Channels
	if len(info.Pixels) < size {
		panic(errors.AssertionFailedf("render: texture needs %d bytes, got %d", size, len(info.Pixels)))
	}

	staging, err := m.buffers.CreateBuffer(BufferCreateInfo{
		Type:   TextureBuffer,
		Memory: CpuAny,
		Data:   info.Pixels,
		Size:   size,
	})
	if err != nil {
		return ident.Key{}, err
	}
	defer staging.Destroy()

	image, err := m.device.CreateImage(gpu.ImageOptions{
		Width:  info.Width,
		Height: info.Height,
		Format: textureFormat,
		Usage:  core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create texture image (vkCreateImage didn't return success).")
		return ident.Key{}, errors.Wrap(err, "create texture image")
	}

	err = m.submitter.Submit(func(cb gpu.CommandBuffer) error {
		if err := cb.PipelineBarrier(layoutTransition(image, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)); err != nil {
			return err
		}
		if err := cb.CopyBufferToImage(staging.Handle(), image, info.Width, info.Height); err != nil {
			return err
		}
		return cb.PipelineBarrier(layoutTransition(image, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal))
	})
	if err != nil {
		image.Destroy()
		return ident.Key{}, errors.Wrap(err, "upload texture")
	}

	view, err := m.device.CreateImageView(image, textureFormat, core1_0.ImageAspectColor)
	if err != nil {
		image.Destroy()
		log.Error("Vulkan Renderer | Failed to create texture image view (vkCreateImageView didn't return success).")
		return ident.Key{}, errors.Wrap(err, "create texture view")
	}

	return m.textures.Insert(&texture{
		id:     ident.Next(),
		width:  info.Width,
		height: info.Height,
		image:  image,
		view:   view,
	}), nil
}

func (m *TextureManager) get(key ident.Key) (*texture, bool) {
	return m.textures.Get(key)
}

// DestroyTexture frees a texture. It reports false for stale keys.
func (m *TextureManager) DestroyTexture(key ident.Key) bool {
	t, ok := m.textures.Get(key)
	if !ok {
		return false
	}
	m.textures.Remove(key)
	t.destroy()
	return true
}

func (m *TextureManager) Len() int {
	return m.textures.Len()
}

func (m *TextureManager) Destroy() {
	m.textures.Each(func(_ ident.Key, t *texture) {
		t.destroy()
	})
	m.textures = ident.Arena[*texture]{}
	m.sampler.Destroy()
}

func layoutTransition(image gpu.Image, oldLayout, newLayout core1_0.ImageLayout) gpu.ImageBarrier {
	barrier := gpu.ImageBarrier{
		Image:     image,
		Aspect:    core1_0.ImageAspectColor,
		OldLayout: oldLayout,
		NewLayout: newLayout,
	}

	switch {
	case oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal:
		barrier.SrcAccess = 0
		barrier.DstAccess = core1_0.AccessTransferWrite
		barrier.SrcStage = core1_0.PipelineStageTopOfPipe
		barrier.DstStage = core1_0.PipelineStageTransfer
	case oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccess = core1_0.AccessTransferWrite
		barrier.DstAccess = core1_0.AccessShaderRead
		barrier.SrcStage = core1_0.PipelineStageTransfer
		barrier.DstStage = core1_0.PipelineStageFragmentShader
	default:
		panic(errors.AssertionFailedf("render: unexpected layout transition %d -> %d", oldLayout, newLayout))
	}
	return barrier
}
