package render

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/ident"
	"github.com/lunarengine/lunar/internal/workers"
	"github.com/vkngwrapper/core/core1_0"
)

const (
	spirvMagic = 0x07230203
	// DiffuseBinding is the descriptor binding graphics shaders sample
	// their texture from.
	DiffuseBinding = 1
	// DefaultDescriptorSets is the capacity of the shared descriptor pool.
	DefaultDescriptorSets = 100
)

type ShaderType int

const (
	ShaderUnknown ShaderType = iota
	ShaderGraphics
	ShaderCompute
)

// GraphicsShaderCreateInfo holds SPIR-V for the vertex and fragment stages.
type GraphicsShaderCreateInfo struct {
	VertexCode   []byte
	FragmentCode []byte
}

type ComputeShaderCreateInfo struct {
	Code []byte
}

type shader struct {
	id       uint64
	kind     ShaderType
	pipeline gpu.Pipeline
	set      gpu.DescriptorSet
	// view is the image view the set currently samples.
	view gpu.ImageView
}

// ShaderManager builds pipelines. Every graphics pipeline shares one layout
// (a vertex stage mat4 push constant and one combined image sampler) and
// allocates its descriptor set from one shared pool.
type ShaderManager struct {
	device     gpu.Device
	renderPass gpu.RenderPass
	workers    *workers.Pool

	setLayout     gpu.DescriptorSetLayout
	layout        gpu.PipelineLayout
	computeLayout gpu.PipelineLayout
	descriptors   gpu.DescriptorPool

	defaultView    gpu.ImageView
	defaultSampler gpu.Sampler

	shaders ident.Arena[*shader]
}

func NewShaderManager(device gpu.Device, renderPass gpu.RenderPass, pool *workers.Pool, descriptorSets int) (*ShaderManager, error) {
	if descriptorSets <= 0 {
		descriptorSets = DefaultDescriptorSets
	}

	m := &ShaderManager{device: device, renderPass: renderPass, workers: pool}

	var err error
	m.setLayout, err = device.CreateDescriptorSetLayout([]core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         DiffuseBinding,
			DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,

			StageFlags: core1_0.StageFragment,
		},
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create descriptor set layout (vkCreateDescriptorSetLayout didn't return success).")
		return nil, errors.Wrap(err, "create descriptor set layout")
	}

	m.layout, err = device.CreatePipelineLayout([]gpu.DescriptorSetLayout{m.setLayout}, []core1_0.PushConstantRange{
		{
			StageFlags: core1_0.StageVertex,
			Offset:     0,
			Size:       int(unsafe.Sizeof(mgl32.Mat4{})),
		},
	})
	if err != nil {
		m.Destroy()
		log.Error("Vulkan Renderer | Failed to create pipeline layout (vkCreatePipelineLayout didn't return success).")
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	m.computeLayout, err = device.CreatePipelineLayout(nil, nil)
	if err != nil {
		m.Destroy()
		log.Error("Vulkan Renderer | Failed to create compute pipeline layout (vkCreatePipelineLayout didn't return success).")
		return nil, errors.Wrap(err, "create compute pipeline layout")
	}

	m.descriptors, err = device.CreateDescriptorPool(descriptorSets, []core1_0.DescriptorPoolSize{
		{
			Type:            core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: descriptorSets,
		},
	})
	if err != nil {
		m.Destroy()
		log.Error("Vulkan Renderer | Failed to create descriptor pool (vkCreateDescriptorPool didn't return success).")
		return nil, errors.Wrap(err, "create descriptor pool")
	}

	return m, nil
}

func (m *ShaderManager) Layout() gpu.PipelineLayout {
	return m.layout
}

// SetDefaultTexture sets the texture bound to every graphics shader created
// afterwards, until UseTexture replaces it.
func (m *ShaderManager) SetDefaultTexture(view gpu.ImageView, sampler gpu.Sampler) {
	m.defaultView = view
	m.defaultSampler = sampler
}

// CreateGraphics compiles a batch of graphics shaders in parallel. A shader
// that fails to compile or link is logged and left out of the result, so
// the returned keys may be fewer than infos.
func (m *ShaderManager) CreateGraphics(infos []GraphicsShaderCreateInfo) []ident.Key {
	pipelines := make([]gpu.Pipeline, len(infos))
	tasks := make([]func() error, len(infos))
	for i, info := range infos {
		i, info := i, info
		tasks[i] = func() error {
			pipeline, err := m.linkGraphics(info)
			pipelines[i] = pipeline
			return err
		}
	}

	var keys []ident.Key
	for i, err := range m.workers.Run(tasks...) {
		if err != nil {
			log.WithError(err).Warnf("Vulkan Renderer | Failed to build graphics shader %d (vkCreateGraphicsPipelines didn't return success).", i)
			continue
		}

		set, err := m.device.AllocateDescriptorSet(m.descriptors, m.setLayout)
		if err != nil {
			pipelines[i].Destroy()
			log.WithError(err).Warnf("Vulkan Renderer | Failed to allocate descriptor set for shader %d (vkAllocateDescriptorSets didn't return success).", i)
			continue
		}

		var view gpu.ImageView
		if m.defaultView != nil {
			if err := m.device.WriteImageDescriptor(set, DiffuseBinding, m.defaultView, m.defaultSampler); err != nil {
				log.WithError(err).Warnf("Vulkan Renderer | Failed to bind default texture to shader %d.", i)
			} else {
				view = m.defaultView
			}
		}

		keys = append(keys, m.shaders.Insert(&shader{
			id:       ident.Next(),
			kind:     ShaderGraphics,
			pipeline: pipelines[i],
			set:      set,
			view:     view,
		}))
	}
	return keys
}

// CreateCompute compiles a batch of compute shaders in parallel, dropping
// the ones that fail the same way CreateGraphics does.
func (m *ShaderManager) CreateCompute(infos []ComputeShaderCreateInfo) []ident.Key {
	pipelines := make([]gpu.Pipeline, len(infos))
	tasks := make([]func() error, len(infos))
	for i, info := range infos {
		i, info := i, info
		tasks[i] = func() error {
			pipeline, err := m.linkCompute(info)
			pipelines[i] = pipeline
			return err
		}
	}

	var keys []ident.Key
	for i, err := range m.workers.Run(tasks...) {
		if err != nil {
			log.WithError(err).Warnf("Vulkan Renderer | Failed to build compute shader %d (vkCreateComputePipelines didn't return success).", i)
			continue
		}
		keys = append(keys, m.shaders.Insert(&shader{
			id:       ident.Next(),
			kind:     ShaderCompute,
			pipeline: pipelines[i],
		}))
	}
	return keys
}

func (m *ShaderManager) linkGraphics(info GraphicsShaderCreateInfo) (gpu.Pipeline, error) {
	vertex, err := m.module(info.VertexCode)
	if err != nil {
		return nil, errors.Wrap(err, "vertex stage")
	}
	defer vertex.Destroy()

	fragment, err := m.module(info.FragmentCode)
	if err != nil {
		return nil, errors.Wrap(err, "fragment stage")
	}
	defer fragment.Destroy()

	return m.device.CreateGraphicsPipeline(gpu.GraphicsPipelineOptions{
		Vertex:     vertex,
		Fragment:   fragment,
		Layout:     m.layout,
		RenderPass: m.renderPass,
		Bindings:   vertexBindingDescriptions(),
		Attributes: vertexAttributeDescriptions(),
	})
}

func (m *ShaderManager) linkCompute(info ComputeShaderCreateInfo) (gpu.Pipeline, error) {
	module, err := m.module(info.Code)
	if err != nil {
		return nil, errors.Wrap(err, "compute stage")
	}
	defer module.Destroy()

	return m.device.CreateComputePipeline(module, m.computeLayout)
}

func (m *ShaderManager) module(code []byte) (gpu.ShaderModule, error) {
	words, err := bytesToBytecode(code)
	if err != nil {
		return nil, err
	}
	module, err := m.device.CreateShaderModule(words)
	if err != nil {
		return nil, errors.Wrap(err, "create shader module")
	}
	return module, nil
}

// TryGet resolves a shader key. Keys of destroyed shaders resolve to
// nothing.
func (m *ShaderManager) TryGet(key ident.Key) (*shader, bool) {
	return m.shaders.Get(key)
}

// UseTexture binds a texture to a graphics shader's diffuse slot. The
// device is idled first since the descriptor set may be in use by frames
// in flight.
func (m *ShaderManager) UseTexture(key ident.Key, view gpu.ImageView, sampler gpu.Sampler) error {
	s, ok := m.shaders.Get(key)
	if !ok {
		return ErrStaleHandle
	}
	if s.kind != ShaderGraphics {
		panic(errors.AssertionFailedf("render: UseTexture on a compute shader"))
	}

	if err := m.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device before descriptor update")
	}
	if err := m.device.WriteImageDescriptor(s.set, DiffuseBinding, view, sampler); err != nil {
		return errors.Wrap(err, "update descriptor set")
	}
	s.view = view
	return nil
}

// ReleaseTexture rebinds every graphics shader sampling view to the default
// texture and returns their keys. The caller must have idled the device.
func (m *ShaderManager) ReleaseTexture(view gpu.ImageView) ([]ident.Key, error) {
	if view == nil {
		return nil, nil
	}

	var keys []ident.Key
	var err error
	m.shaders.Each(func(key ident.Key, s *shader) {
		if s.kind != ShaderGraphics || s.view != view {
			return
		}
		keys = append(keys, key)
		if m.defaultView == nil {
			s.view = nil
			return
		}
		if werr := m.device.WriteImageDescriptor(s.set, DiffuseBinding, m.defaultView, m.defaultSampler); werr != nil {
			err = errors.CombineErrors(err, errors.Wrap(werr, "rebind default texture"))
			return
		}
		s.view = m.defaultView
	})
	return keys, err
}

func (m *ShaderManager) Len() int {
	return m.shaders.Len()
}

func (m *ShaderManager) Destroy() {
	m.shaders.Each(func(_ ident.Key, s *shader) {
		s.pipeline.Destroy()
	})
	m.shaders = ident.Arena[*shader]{}

	if m.descriptors != nil {
		m.descriptors.Destroy()
		m.descriptors = nil
	}
	if m.computeLayout != nil {
		m.computeLayout.Destroy()
		m.computeLayout = nil
	}
	if m.layout != nil {
		m.layout.Destroy()
		m.layout = nil
	}
	if m.setLayout != nil {
		m.setLayout.Destroy()
		m.setLayout = nil
	}
}

func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("SPIR-V length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	if byteCode[0] != spirvMagic {
		return nil, errors.Newf("bad SPIR-V magic %#x", byteCode[0])
	}
	return byteCode, nil
}
