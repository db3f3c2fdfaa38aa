package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lunarengine/lunar/internal/gpu/gputest"
	"github.com/lunarengine/lunar/internal/ident"
	"github.com/vkngwrapper/core/core1_0"
)

func TestMeshDirtyLifecycle(t *testing.T) {
	c := qt.New(t)
	f := newRendererFixture(c)
	r := f.renderer
	objects := r.Objects()

	shaders := r.CreateShaders(validShader())
	c.Assert(shaders, qt.HasLen, 1)

	vertices, indices := cube()
	mesh, err := r.CreateObject(vertices, indices, shaders[0])
	c.Assert(err, qt.IsNil)
	c.Assert(objects.Pending(), qt.IsTrue)

	c.Assert(objects.Update(), qt.IsNil)
	c.Assert(objects.RebuildCount(), qt.Equals, 1)
	c.Assert(objects.MeshCommands(), qt.HasLen, 1)
	c.Assert(objects.CmdBuffersNeedRebuilding(), qt.IsTrue)
	c.Assert(objects.CmdBuffersNeedRebuilding(), qt.IsFalse)

	c.Assert(objects.Pending(), qt.IsFalse)
	c.Assert(objects.Update(), qt.IsNil)
	c.Assert(objects.RebuildCount(), qt.Equals, 1)
	c.Assert(objects.CmdBuffersNeedRebuilding(), qt.IsFalse)

	c.Assert(mesh.SetTransform(mgl32.Translate3D(1, 2, 3)), qt.IsNil)
	c.Assert(objects.Pending(), qt.IsFalse)

	c.Assert(mesh.SetVertices(vertices), qt.IsNil)
	c.Assert(objects.Pending(), qt.IsTrue)
	c.Assert(objects.Update(), qt.IsNil)
	c.Assert(objects.RebuildCount(), qt.Equals, 2)

	// A new mesh records only itself.
	_, err = r.CreateObject(vertices, indices, shaders[0])
	c.Assert(err, qt.IsNil)
	c.Assert(objects.Update(), qt.IsNil)
	c.Assert(objects.RebuildCount(), qt.Equals, 3)
	c.Assert(objects.MeshCommands(), qt.HasLen, 2)
	c.Assert(objects.MeshCommands()[0].(*gputest.CommandBuffer).BeginCount(), qt.Equals, 2)
	c.Assert(objects.MeshCommands()[1].(*gputest.CommandBuffer).BeginCount(), qt.Equals, 1)

	objects.HandleResize()
	c.Assert(objects.Update(), qt.IsNil)
	c.Assert(objects.RebuildCount(), qt.Equals, 5)

	c.Assert(mesh.Invalidate(), qt.IsNil)
	c.Assert(objects.Pending(), qt.IsTrue)
	c.Assert(objects.Update(), qt.IsNil)
	c.Assert(objects.RebuildCount(), qt.Equals, 6)
}

func TestSecondaryRecording(t *testing.T) {
	c := qt.New(t)
	f := newRendererFixture(c)
	r := f.renderer

	shaders := r.CreateShaders(validShader())
	vertices, indices := cube()
	mesh, err := r.CreateObject(vertices, indices, shaders[0])
	c.Assert(err, qt.IsNil)
	transform := mgl32.Scale3D(2, 2, 2)
	c.Assert(mesh.SetTransform(transform), qt.IsNil)
	c.Assert(r.Objects().Update(), qt.IsNil)

	cb := r.Objects().MeshCommands()[0].(*gputest.CommandBuffer)
	c.Assert(cb.Level, qt.Equals, core1_0.CommandBufferLevelSecondary)
	c.Assert(cb.Ops(), qt.DeepEquals, []string{
		"BindPipeline",
		"BindDescriptorSet",
		"PushConstants",
		"SetViewport",
		"SetScissor",
		"BindVertexBuffer",
		"BindIndexBuffer",
		"DrawIndexed",
	})
	c.Assert(cb.Info.Flags, qt.Equals, core1_0.CommandBufferUsageRenderPassContinue|core1_0.CommandBufferUsageSimultaneousUse)
	c.Assert(cb.Info.Inheritance.RenderPass, qt.Equals, r.Swapchain().RenderPass())

	encoded, err := encode(transform)
	c.Assert(err, qt.IsNil)
	c.Assert(cb.Commands[2].Data, qt.DeepEquals, encoded)
	c.Assert(cb.Commands[2].Data, qt.HasLen, 64)
	c.Assert(cb.Commands[3].Viewport, qt.Equals, r.Swapchain().Viewport())
	c.Assert(cb.Commands[7].Count, qt.Equals, 36)
}

func TestSecondaryEndedOnRecordFailure(t *testing.T) {
	c := qt.New(t)
	f := newRendererFixture(c)
	r := f.renderer

	shaders := r.CreateShaders(validShader())
	vertices, indices := cube()
	mesh, err := r.CreateObject(vertices, indices, shaders[0])
	c.Assert(err, qt.IsNil)
	c.Assert(r.Objects().Update(), qt.IsNil)

	cb := r.Objects().MeshCommands()[0].(*gputest.CommandBuffer)
	cb.FailPushConstants = true
	c.Assert(mesh.Invalidate(), qt.IsNil)
	c.Assert(r.Objects().Update(), qt.ErrorMatches, "push transform: .*")
	c.Assert(cb.Recording(), qt.IsFalse)
	c.Assert(r.Objects().Pending(), qt.IsTrue)

	c.Assert(r.Objects().Update(), qt.IsNil)
	c.Assert(cb.Ops(), qt.HasLen, 8)
}

func TestMeshWithStaleShaderRecordsNothing(t *testing.T) {
	c := qt.New(t)
	f := newRendererFixture(c)
	objects := f.renderer.Objects()

	vertices, indices := cube()
	_, err := objects.CreateMesh(vertices, indices, ident.Key{})
	c.Assert(err, qt.IsNil)
	c.Assert(objects.Update(), qt.IsNil)

	cb := objects.MeshCommands()[0].(*gputest.CommandBuffer)
	c.Assert(cb.BeginCount(), qt.Equals, 1)
	c.Assert(cb.Ops(), qt.HasLen, 0)
	c.Assert(objects.RebuildCount(), qt.Equals, 1)
}

func TestMeshIndicesGrow(t *testing.T) {
	c := qt.New(t)
	f := newRendererFixture(c)
	r := f.renderer

	shaders := r.CreateShaders(validShader())
	vertices, indices := cube()
	mesh, err := r.CreateObject(vertices, indices[:6], shaders[0])
	c.Assert(err, qt.IsNil)

	c.Assert(mesh.SetIndices(indices), qt.IsNil)
	c.Assert(r.Objects().Update(), qt.IsNil)

	cb := r.Objects().MeshCommands()[0].(*gputest.CommandBuffer)
	c.Assert(cb.Commands[len(cb.Commands)-1].Count, qt.Equals, 36)

	encoded, err := encode(indices)
	c.Assert(err, qt.IsNil)
	indexBuffer := cb.Commands[6].Buffer.(*gputest.Buffer)
	c.Assert(indexBuffer.Contents(), qt.DeepEquals, encoded)
}

func TestMeshStaleHandle(t *testing.T) {
	c := qt.New(t)
	f := newRendererFixture(c)
	objects := f.renderer.Objects()

	err := objects.SetVertices(ident.Key{}, nil)
	c.Assert(errors.Is(err, ErrStaleHandle), qt.IsTrue)
	err = objects.SetTransform(ident.Key{}, mgl32.Ident4())
	c.Assert(errors.Is(err, ErrStaleHandle), qt.IsTrue)
	_, err = objects.Transform(ident.Key{})
	c.Assert(errors.Is(err, ErrStaleHandle), qt.IsTrue)
	err = objects.Invalidate(ident.Key{})
	c.Assert(errors.Is(err, ErrStaleHandle), qt.IsTrue)

	c.Assert(func() { objects.CreateMesh(nil, nil, ident.Key{}) }, qt.PanicMatches, ".*CreateMesh with 0 vertices.*")
}

func TestVertexLayout(t *testing.T) {
	c := qt.New(t)

	attributes := vertexAttributeDescriptions()
	c.Assert(attributes, qt.HasLen, 3)
	c.Assert(attributes[0].Format, qt.Equals, core1_0.FormatR32G32B32SignedFloat)
	c.Assert(attributes[1].Format, qt.Equals, core1_0.FormatR32G32B32SignedFloat)
	c.Assert(attributes[2].Format, qt.Equals, core1_0.FormatR32G32SignedFloat)
	c.Assert(attributes[1].Offset, qt.Equals, 12)
	c.Assert(attributes[2].Offset, qt.Equals, 24)
	c.Assert(vertexBindingDescriptions()[0].Stride, qt.Equals, 32)
}
