package render

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/ident"
	"github.com/vkngwrapper/core/core1_0"
)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

func vertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Normal)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

type mesh struct {
	id          uint64
	vertices    *Buffer
	indices     *Buffer
	vertexCount int
	indexCount  int
	shader      ident.Key
	transform   mgl32.Mat4
	// dirty is set whenever the recorded secondary buffer no longer
	// matches the mesh. Transform changes do not set it.
	dirty    bool
	commands gpu.CommandBuffer
}

// ObjectManager owns the drawable meshes and one secondary command buffer
// per mesh. Buffers are re-recorded lazily, only for meshes that changed.
type ObjectManager struct {
	device    gpu.Device
	swapchain *Swapchain
	buffers   *BufferManager
	shaders   *ShaderManager

	pool        gpu.CommandPool
	secondaries []gpu.CommandBuffer

	meshes ident.Arena[*mesh]
	// order holds mesh keys in creation order. order[i] records into
	// secondaries[i].
	order []ident.Key

	rebuilt      bool
	rebuildCount int
}

func NewObjectManager(device gpu.Device, queueFamily int, swapchain *Swapchain, buffers *BufferManager, shaders *ShaderManager) (*ObjectManager, error) {
	pool, err := device.CreateCommandPool(queueFamily)
	if err != nil {
		log.Error("Vulkan Renderer | Failed to create secondary command pool (vkCreateCommandPool didn't return success).")
		return nil, errors.Wrap(err, "create secondary command pool")
	}

	return &ObjectManager{
		device:    device,
		swapchain: swapchain,
		buffers:   buffers,
		shaders:   shaders,
		pool:      pool,
	}, nil
}

// CreateMesh uploads vertices and indices into new static buffers. The
// mesh starts dirty so the next Update records it.
func (m *ObjectManager) CreateMesh(vertices []Vertex, indices []uint32, shader ident.Key) (ident.Key, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		panic(errors.AssertionFailedf("render: CreateMesh with %d vertices and %d indices", len(vertices), len(indices)))
	}

	vertexBuffer, err := m.staticBuffer(VertexBuffer, vertices)
	if err != nil {
		return ident.Key{}, err
	}
	indexBuffer, err := m.staticBuffer(IndexBuffer, indices)
	if err != nil {
		vertexBuffer.Destroy()
		return ident.Key{}, err
	}

	key := m.meshes.Insert(&mesh{
		id:          ident.Next(),
		vertices:    vertexBuffer,
		indices:     indexBuffer,
		vertexCount: len(vertices),
		indexCount:  len(indices),
		shader:      shader,
		transform:   mgl32.Ident4(),
		dirty:       true,
	})
	m.order = append(m.order, key)
	return key, nil
}

func (m *ObjectManager) staticBuffer(bufferType BufferType, data any) (*Buffer, error) {
	encoded, err := encode(data)
	if err != nil {
		return nil, err
	}
	return m.buffers.CreateBuffer(BufferCreateInfo{
		Type:   bufferType,
		Memory: GpuStatic,
		Data:   encoded,
		Size:   len(encoded),
	})
}

func (m *ObjectManager) get(key ident.Key) (*mesh, error) {
	msh, ok := m.meshes.Get(key)
	if !ok {
		return nil, ErrStaleHandle
	}
	return msh, nil
}

// SetVertices replaces a mesh's vertices and marks it dirty.
func (m *ObjectManager) SetVertices(key ident.Key, vertices []Vertex) error {
	msh, err := m.get(key)
	if err != nil {
		return err
	}
	if err := m.replace(msh.vertices, vertices); err != nil {
		return err
	}
	msh.vertexCount = len(vertices)
	msh.dirty = true
	return nil
}

// SetIndices replaces a mesh's indices and marks it dirty.
func (m *ObjectManager) SetIndices(key ident.Key, indices []uint32) error {
	msh, err := m.get(key)
	if err != nil {
		return err
	}
	if err := m.replace(msh.indices, indices); err != nil {
		return err
	}
	msh.indexCount = len(indices)
	msh.dirty = true
	return nil
}

func (m *ObjectManager) replace(buffer *Buffer, data any) error {
	encoded, err := encode(data)
	if err != nil {
		return err
	}
	// Frames in flight may still be reading the old contents.
	if err := m.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device before mesh update")
	}
	return buffer.Update(encoded)
}

// SetTransform changes the matrix pushed when the mesh is next recorded.
// It does not mark the mesh dirty.
func (m *ObjectManager) SetTransform(key ident.Key, transform mgl32.Mat4) error {
	msh, err := m.get(key)
	if err != nil {
		return err
	}
	msh.transform = transform
	return nil
}

func (m *ObjectManager) Transform(key ident.Key) (mgl32.Mat4, error) {
	msh, err := m.get(key)
	if err != nil {
		return mgl32.Mat4{}, err
	}
	return msh.transform, nil
}

// Invalidate marks the mesh dirty so its current transform is recorded on
// the next Update.
func (m *ObjectManager) Invalidate(key ident.Key) error {
	msh, err := m.get(key)
	if err != nil {
		return err
	}
	msh.dirty = true
	return nil
}

// MarkShaderDirty marks every mesh drawn with shader dirty.
func (m *ObjectManager) MarkShaderDirty(shader ident.Key) {
	m.meshes.Each(func(_ ident.Key, msh *mesh) {
		if msh.shader == shader {
			msh.dirty = true
		}
	})
}

// HandleResize marks every mesh dirty. Viewport and scissor are recorded
// into the secondary buffers.
func (m *ObjectManager) HandleResize() {
	m.meshes.Each(func(_ ident.Key, msh *mesh) {
		msh.dirty = true
	})
}

// Pending reports whether the next Update will record anything.
func (m *ObjectManager) Pending() bool {
	if len(m.secondaries) != len(m.order) {
		return true
	}

	dirty := false
	m.meshes.Each(func(_ ident.Key, msh *mesh) {
		dirty = dirty || msh.dirty
	})
	return dirty
}

// Update allocates secondary buffers for new meshes and re-records the
// buffers of dirty meshes. Callers must make sure no submitted frame still
// uses the buffers when Pending is true.
func (m *ObjectManager) Update() error {
	force := false

	if shortfall := len(m.order) - len(m.secondaries); shortfall != 0 {
		buffers, err := m.device.AllocateCommandBuffers(m.pool, core1_0.CommandBufferLevelSecondary, shortfall)
		if err != nil {
			log.Error("Vulkan Renderer | Failed to allocate secondary command buffers (vkAllocateCommandBuffers didn't return success).")
			return errors.Wrap(err, "allocate secondary command buffers")
		}

		first := len(m.secondaries)
		m.secondaries = append(m.secondaries, buffers...)
		for i := first; i < len(m.order); i++ {
			msh, _ := m.meshes.Get(m.order[i])
			msh.commands = m.secondaries[i]
		}
		force = true
	} else {
		force = m.Pending()
	}

	if force {
		return m.RebuildCmdBuffers()
	}
	return nil
}

// RebuildCmdBuffers re-records the secondary buffer of every dirty mesh.
func (m *ObjectManager) RebuildCmdBuffers() error {
	for _, key := range m.order {
		msh, _ := m.meshes.Get(key)
		if !msh.dirty || msh.commands == nil {
			continue
		}

		if err := m.record(msh); err != nil {
			return err
		}
		msh.dirty = false
		m.rebuildCount++
		m.rebuilt = true
	}
	return nil
}

func (m *ObjectManager) record(msh *mesh) error {
	cb := msh.commands
	err := cb.Begin(gpu.BeginInfo{
		Flags: core1_0.CommandBufferUsageRenderPassContinue | core1_0.CommandBufferUsageSimultaneousUse,
		Inheritance: &gpu.Inheritance{
			RenderPass: m.swapchain.RenderPass(),
			Subpass:    0,
		},
	})
	if err != nil {
		log.Error("Vulkan Renderer | Failed to begin secondary command buffer (vkBeginCommandBuffer didn't return success).")
		return errors.Wrap(err, "begin secondary command buffer")
	}

	// End runs even when the draw failed.
	drawErr := m.recordDraw(cb, msh)

	if err := cb.End(); err != nil {
		log.Error("Vulkan Renderer | Failed to record secondary command buffer (vkEndCommandBuffer didn't return success).")
		return errors.Wrap(errors.CombineErrors(drawErr, err), "end secondary command buffer")
	}
	return drawErr
}

func (m *ObjectManager) recordDraw(cb gpu.CommandBuffer, msh *mesh) error {
	s, ok := m.shaders.TryGet(msh.shader)
	if !ok || s.kind != ShaderGraphics {
		log.Warnf("Vulkan Renderer | Mesh %d has no usable graphics shader, recording it empty.", msh.id)
		return nil
	}

	transform, err := encode(msh.transform)
	if err != nil {
		return err
	}

	cb.BindPipeline(core1_0.PipelineBindPointGraphics, s.pipeline)
	cb.BindDescriptorSet(core1_0.PipelineBindPointGraphics, m.shaders.Layout(), s.set)
	if err := cb.PushConstants(m.shaders.Layout(), core1_0.StageVertex, 0, transform); err != nil {
		return errors.Wrap(err, "push transform")
	}
	cb.SetViewport(m.swapchain.Viewport())
	cb.SetScissor(m.swapchain.Scissor())
	cb.BindVertexBuffer(msh.vertices.Handle())
	cb.BindIndexBuffer(msh.indices.Handle(), core1_0.IndexTypeUInt32)
	cb.DrawIndexed(msh.indexCount)
	return nil
}

// CmdBuffersNeedRebuilding reports whether any secondary buffer was
// re-recorded since the last call, and resets the flag.
func (m *ObjectManager) CmdBuffersNeedRebuilding() bool {
	rebuilt := m.rebuilt
	m.rebuilt = false
	return rebuilt
}

// MeshCommands returns the recorded secondary buffers in mesh creation
// order.
func (m *ObjectManager) MeshCommands() []gpu.CommandBuffer {
	return m.secondaries
}

// RebuildCount is the number of secondary buffer recordings so far.
func (m *ObjectManager) RebuildCount() int {
	return m.rebuildCount
}

func (m *ObjectManager) Len() int {
	return len(m.order)
}

func (m *ObjectManager) Destroy() {
	if len(m.secondaries) > 0 {
		m.device.FreeCommandBuffers(m.secondaries)
		m.secondaries = nil
	}
	m.pool.Destroy()

	for _, key := range m.order {
		msh, _ := m.meshes.Get(key)
		msh.vertices.Destroy()
		msh.indices.Destroy()
	}
	m.order = nil
	m.meshes = ident.Arena[*mesh]{}
}
