package render

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lunarengine/lunar/internal/gpu"
	"github.com/lunarengine/lunar/internal/ident"
	"github.com/lunarengine/lunar/internal/workers"
)

// ErrStaleHandle is returned when a handle refers to a resource that has
// been destroyed.
var ErrStaleHandle = errors.New("stale handle")

// Window is the surface a Renderer presents to. OnResize callbacks run on
// the thread that drives the renderer; a 0x0 size means minimized.
type Window interface {
	Width() int
	Height() int
	CreateSurface(instance gpu.Instance) (gpu.Surface, error)
	OnResize(func(width, height int))
}

type Options struct {
	FramesInFlight int
	DescriptorSets int
}

// Defaults owns the resources the renderer falls back on. They live as long
// as the renderer and cannot be destroyed through a handle.
type Defaults struct {
	textures *TextureManager
	White    ident.Key
}

func newDefaults(textures *TextureManager, shaders *ShaderManager) (*Defaults, error) {
	white, err := textures.CreateTexture(TextureCreateInfo{
		Width:    1,
		Height:   1,
		Channels: 4,
		Pixels:   []byte{0xff, 0xff, 0xff, 0xff},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create default texture")
	}

	t, _ := textures.get(white)
	shaders.SetDefaultTexture(t.view, textures.Sampler())
	return &Defaults{textures: textures, White: white}, nil
}

func (d *Defaults) destroy() {
	d.textures.DestroyTexture(d.White)
}

// Renderer draws meshes to one window.
type Renderer struct {
	ctx      *Context
	window   Window
	surface  gpu.Surface
	device   gpu.Device
	acquired bool

	swapchain *Swapchain
	submitter *Submitter
	buffers   *BufferManager
	textures  *TextureManager
	shaders   *ShaderManager
	objects   *ObjectManager
	calls     *RenderCallManager
	defaults  *Defaults

	minimized bool
	// err holds a failure from a resize callback until the next Draw.
	err error
}

func NewRenderer(ctx *Context, window Window, pool *workers.Pool, options Options) (*Renderer, error) {
	r := &Renderer{ctx: ctx, window: window}
	if err := r.init(pool, options); err != nil {
		r.Destroy()
		return nil, err
	}

	window.OnResize(r.handleResize)
	return r, nil
}

func (r *Renderer) init(pool *workers.Pool, options Options) error {
	var err error
	r.surface, err = r.window.CreateSurface(r.ctx.Instance())
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}

	r.device, err = r.ctx.Acquire(r.surface)
	if err != nil {
		return err
	}
	r.acquired = true

	families := r.ctx.QueueFamilies()
	graphicsFamily := *families.GraphicsFamily

	// A minimized surface reports a 0x0 extent, so the swapchain waits for
	// the first non-zero resize.
	r.swapchain = NewSwapchain(r.device, r.ctx.PhysicalDevice(), r.surface, families)
	r.minimized = r.window.Width() == 0 || r.window.Height() == 0
	if r.minimized {
		err = r.swapchain.CreateRenderPass()
	} else {
		err = r.swapchain.Create(r.window.Width(), r.window.Height())
	}
	if err != nil {
		return err
	}

	r.submitter, err = NewSubmitter(r.device, graphicsFamily)
	if err != nil {
		return err
	}
	r.buffers = NewBufferManager(r.device, r.submitter)

	r.textures, err = NewTextureManager(r.device, r.ctx.PhysicalDevice(), r.buffers, r.submitter)
	if err != nil {
		return err
	}

	r.shaders, err = NewShaderManager(r.device, r.swapchain.RenderPass(), pool, options.DescriptorSets)
	if err != nil {
		return err
	}

	r.defaults, err = newDefaults(r.textures, r.shaders)
	if err != nil {
		return err
	}

	r.objects, err = NewObjectManager(r.device, graphicsFamily, r.swapchain, r.buffers, r.shaders)
	if err != nil {
		return err
	}

	r.calls, err = NewRenderCallManager(r.device, graphicsFamily, r.swapchain, r.objects, options.FramesInFlight)
	return err
}

func (r *Renderer) handleResize(width, height int) {
	if r.err != nil {
		return
	}
	if err := r.resize(width, height); err != nil {
		log.WithError(err).Error("Vulkan Renderer | Failed to resize swapchain.")
		r.err = err
	}
}

func (r *Renderer) resize(width, height int) error {
	if width == 0 || height == 0 {
		r.minimized = true
		return nil
	}
	r.minimized = false

	var err error
	if r.swapchain.State() == SwapchainUninitialized {
		err = r.swapchain.Create(width, height)
	} else {
		err = r.swapchain.Resize(width, height)
	}
	if err != nil {
		return err
	}
	r.objects.HandleResize()
	return r.calls.HandleResize()
}

// Minimized reports whether drawing is suspended.
func (r *Renderer) Minimized() bool {
	return r.minimized
}

// Draw renders one frame. Frames are skipped while the window is
// minimized. An out of date swapchain is rebuilt at the window's current
// size.
func (r *Renderer) Draw() error {
	if r.err != nil {
		return r.err
	}
	if r.minimized {
		return nil
	}

	err := r.calls.Draw()
	if errors.Is(err, gpu.ErrOutOfDate) {
		log.Debug("Vulkan Renderer | Swapchain out of date, rebuilding.")
		return r.resize(r.window.Width(), r.window.Height())
	}
	return err
}

func (r *Renderer) Swapchain() *Swapchain {
	return r.swapchain
}

func (r *Renderer) Objects() *ObjectManager {
	return r.objects
}

func (r *Renderer) Calls() *RenderCallManager {
	return r.calls
}

func (r *Renderer) Submitter() *Submitter {
	return r.submitter
}

// Destroy waits for the GPU and frees everything the renderer created, in
// reverse order. It releases the renderer's hold on the context last.
func (r *Renderer) Destroy() {
	if r.device != nil {
		if err := r.device.WaitIdle(); err != nil {
			log.WithError(err).Warn("Vulkan Renderer | Failed to wait for device idle (vkDeviceWaitIdle didn't return success).")
		}
	}

	if r.calls != nil {
		r.calls.Destroy()
		r.calls = nil
	}
	if r.objects != nil {
		r.objects.Destroy()
		r.objects = nil
	}
	if r.shaders != nil {
		r.shaders.Destroy()
		r.shaders = nil
	}
	if r.defaults != nil {
		r.defaults.destroy()
		r.defaults = nil
	}
	if r.textures != nil {
		r.textures.Destroy()
		r.textures = nil
	}
	if r.buffers != nil {
		r.buffers.Destroy()
		r.buffers = nil
	}
	if r.submitter != nil {
		r.submitter.Close()
		r.submitter = nil
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
	if r.surface != nil {
		r.surface.Destroy()
		r.surface = nil
	}
	if r.acquired {
		r.ctx.Release()
		r.acquired = false
	}
	r.device = nil
}

// CreateObject creates a mesh drawn with shader.
func (r *Renderer) CreateObject(vertices []Vertex, indices []uint32, shader *Shader) (*Mesh, error) {
	key, err := r.objects.CreateMesh(vertices, indices, shader.key)
	if err != nil {
		return nil, err
	}
	return &Mesh{renderer: r, key: key}, nil
}

// CreateShaders builds graphics shaders. Shaders that fail to build are
// logged and left out.
func (r *Renderer) CreateShaders(infos ...GraphicsShaderCreateInfo) []*Shader {
	var shaders []*Shader
	for _, key := range r.shaders.CreateGraphics(infos) {
		shaders = append(shaders, &Shader{renderer: r, key: key, Type: ShaderGraphics})
	}
	return shaders
}

func (r *Renderer) CreateComputeShaders(infos ...ComputeShaderCreateInfo) []*Shader {
	var shaders []*Shader
	for _, key := range r.shaders.CreateCompute(infos) {
		shaders = append(shaders, &Shader{renderer: r, key: key, Type: ShaderCompute})
	}
	return shaders
}

func (r *Renderer) CreateTexture(info TextureCreateInfo) (*Texture, error) {
	key, err := r.textures.CreateTexture(info)
	if err != nil {
		return nil, err
	}
	return &Texture{renderer: r, key: key, Width: info.Width, Height: info.Height}, nil
}

// DefaultTexture is the 1x1 white texture new shaders sample until they
// are given one.
func (r *Renderer) DefaultTexture() *Texture {
	return &Texture{renderer: r, key: r.defaults.White, Width: 1, Height: 1}
}

type Mesh struct {
	renderer *Renderer
	key      ident.Key
}

func (m *Mesh) Key() ident.Key {
	return m.key
}

func (m *Mesh) SetVertices(vertices []Vertex) error {
	return m.renderer.objects.SetVertices(m.key, vertices)
}

func (m *Mesh) SetIndices(indices []uint32) error {
	return m.renderer.objects.SetIndices(m.key, indices)
}

// SetTransform updates the model matrix. It shows up once the mesh is next
// recorded.
func (m *Mesh) SetTransform(transform mgl32.Mat4) error {
	return m.renderer.objects.SetTransform(m.key, transform)
}

// Invalidate re-records the mesh before the next frame.
func (m *Mesh) Invalidate() error {
	return m.renderer.objects.Invalidate(m.key)
}

func (m *Mesh) Transform() (mgl32.Mat4, error) {
	return m.renderer.objects.Transform(m.key)
}

type Shader struct {
	renderer *Renderer
	key      ident.Key
	Type     ShaderType
}

func (s *Shader) Key() ident.Key {
	return s.key
}

// UseTexture binds texture to the shader and marks every mesh drawn with it
// for re-recording.
func (s *Shader) UseTexture(texture *Texture) error {
	t, ok := s.renderer.textures.get(texture.key)
	if !ok {
		return ErrStaleHandle
	}

	if err := s.renderer.shaders.UseTexture(s.key, t.view, s.renderer.textures.Sampler()); err != nil {
		return err
	}
	s.renderer.objects.MarkShaderDirty(s.key)
	return nil
}

type Texture struct {
	renderer *Renderer
	key      ident.Key
	Width    int
	Height   int
}

func (t *Texture) Key() ident.Key {
	return t.key
}

// Destroy frees the texture. Shaders still sampling it fall back to the
// default texture and their meshes are re-recorded before the next frame.
// The default texture is never destroyed.
func (t *Texture) Destroy() bool {
	r := t.renderer
	if t.key == r.defaults.White {
		return false
	}
	tex, ok := r.textures.get(t.key)
	if !ok {
		return false
	}

	if err := r.device.WaitIdle(); err != nil {
		log.WithError(err).Warn("Vulkan Renderer | Failed to wait for device idle (vkDeviceWaitIdle didn't return success).")
	}

	shaders, err := r.shaders.ReleaseTexture(tex.view)
	if err != nil {
		log.WithError(err).Error("Vulkan Renderer | Failed to rebind default texture (vkUpdateDescriptorSets didn't return success).")
	}
	for _, key := range shaders {
		r.objects.MarkShaderDirty(key)
	}
	return r.textures.DestroyTexture(t.key)
}
