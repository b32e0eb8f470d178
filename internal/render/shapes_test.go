package render

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func newShapeFixture(t *testing.T) (*fakeDevice, *ShapeResources) {
	t.Helper()
	dev := newFakeDevice()
	proj, err := NewProjection(dev, 800, 600)
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}
	return dev, NewShapeResources(dev, NewPipelineCache(dev), proj)
}

func triangle() *Mesh {
	return NewMesh([]mgl32.Vec2{{0, 0}, {10, 0}, {5, 10}})
}

func shapeCmd(id EntityID, mesh *Mesh) RenderCommand {
	return RenderCommand{
		Entity:     id,
		Transform:  mgl32.Ident4(),
		Mesh:       mesh,
		VertShader: "shape.vert.spv",
		FragShader: "shape.frag.spv",
	}
}

func TestPrepareCreatesResourcesOnce(t *testing.T) {
	dev, shapes := newShapeFixture(t)
	base := dev.buffersCreated

	mesh := triangle()
	cmds := []RenderCommand{shapeCmd(1, mesh)}

	draws, err := shapes.Prepare(cmds)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(draws))
	}
	if draws[0].VertexCount != 3 {
		t.Errorf("vertex count = %d, want 3", draws[0].VertexCount)
	}
	created := dev.buffersCreated - base
	if created != 2 {
		t.Errorf("buffers created = %d, want 2 (vertex + transform)", created)
	}
	if dev.vertexWrites() != 1 {
		t.Errorf("vertex writes = %d, want 1", dev.vertexWrites())
	}

	// Same commands again: cache hit, nothing new allocated or uploaded.
	again, err := shapes.Prepare(cmds)
	if err != nil {
		t.Fatalf("Prepare second frame: %v", err)
	}
	if dev.buffersCreated-base != 2 {
		t.Errorf("second frame allocated %d new buffers", dev.buffersCreated-base-2)
	}
	if dev.vertexWrites() != 1 {
		t.Errorf("second frame re-uploaded vertices: writes = %d", dev.vertexWrites())
	}
	if again[0].VertexBuffer != draws[0].VertexBuffer {
		t.Error("vertex buffer identity changed on cache hit")
	}
	if again[0].Set != draws[0].Set {
		t.Error("descriptor set identity changed on cache hit")
	}
}

func TestTransformOnlyChangeTouchesNoVertexData(t *testing.T) {
	dev, shapes := newShapeFixture(t)
	mesh := triangle()

	first := []RenderCommand{shapeCmd(1, mesh)}
	if _, err := shapes.Prepare(first); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	base := dev.buffersCreated
	writes := dev.vertexWrites()

	moved := shapeCmd(1, mesh)
	moved.Transform = mgl32.Translate3D(40, 20, 0)
	if _, err := shapes.Prepare([]RenderCommand{moved}); err != nil {
		t.Fatalf("Prepare moved: %v", err)
	}
	if dev.buffersCreated != base {
		t.Error("transform-only change allocated buffers")
	}
	if dev.vertexWrites() != writes {
		t.Error("transform-only change re-uploaded vertex data")
	}
}

func TestVertexEditSameLengthReusesBuffer(t *testing.T) {
	dev, shapes := newShapeFixture(t)

	if _, err := shapes.Prepare([]RenderCommand{shapeCmd(1, triangle())}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	base := dev.buffersCreated

	edited := shapeCmd(1, NewMesh([]mgl32.Vec2{{0, 0}, {20, 0}, {10, 20}}))
	edited.VerticesChanged = true
	draws, err := shapes.Prepare([]RenderCommand{edited})
	if err != nil {
		t.Fatalf("Prepare edit: %v", err)
	}
	if dev.buffersCreated != base {
		t.Error("same-length edit reallocated the vertex buffer")
	}
	if draws[0].VertexCount != 3 {
		t.Errorf("vertex count = %d, want 3", draws[0].VertexCount)
	}
	if dev.vertexWrites() != 2 {
		t.Errorf("vertex writes = %d, want 2", dev.vertexWrites())
	}
}

func TestVertexEditDifferentLengthReallocates(t *testing.T) {
	dev, shapes := newShapeFixture(t)

	big := NewMesh([]mgl32.Vec2{{0, 0}, {10, 0}, {5, 10}, {0, 0}, {5, 10}, {0, 10}})
	if _, err := shapes.Prepare([]RenderCommand{shapeCmd(1, big)}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	base := dev.buffersCreated
	freed := dev.buffersFreed

	smaller := shapeCmd(1, triangle())
	smaller.VerticesChanged = true
	draws, err := shapes.Prepare([]RenderCommand{smaller})
	if err != nil {
		t.Fatalf("Prepare edit: %v", err)
	}
	if dev.buffersCreated != base+1 {
		t.Errorf("length change created %d buffers, want 1", dev.buffersCreated-base)
	}
	if dev.buffersFreed != freed+1 {
		t.Error("old vertex buffer not released on length change")
	}
	if draws[0].VertexCount != 3 {
		t.Errorf("vertex count = %d, want 3", draws[0].VertexCount)
	}
}

func TestVertexEditGrowsBuffer(t *testing.T) {
	dev, shapes := newShapeFixture(t)

	if _, err := shapes.Prepare([]RenderCommand{shapeCmd(1, triangle())}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	base := dev.buffersCreated
	freed := dev.buffersFreed

	bigger := shapeCmd(1, NewMesh([]mgl32.Vec2{
		{0, 0}, {10, 0}, {5, 10}, {0, 0}, {5, 10}, {0, 10},
	}))
	bigger.VerticesChanged = true
	draws, err := shapes.Prepare([]RenderCommand{bigger})
	if err != nil {
		t.Fatalf("Prepare grow: %v", err)
	}
	if dev.buffersCreated != base+1 {
		t.Errorf("growing edit created %d buffers, want 1", dev.buffersCreated-base)
	}
	if dev.buffersFreed != freed+1 {
		t.Error("old vertex buffer was not freed after growth")
	}
	if draws[0].VertexCount != 6 {
		t.Errorf("vertex count = %d, want 6", draws[0].VertexCount)
	}
}

func TestPipelineDeduplication(t *testing.T) {
	dev, shapes := newShapeFixture(t)

	cmds := []RenderCommand{shapeCmd(1, triangle()), shapeCmd(2, triangle())}
	draws, err := shapes.Prepare(cmds)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if dev.pipelinesBuilt != 1 {
		t.Errorf("pipelines built = %d, want 1", dev.pipelinesBuilt)
	}
	if draws[0].Pipeline != draws[1].Pipeline {
		t.Error("entities with the same shaders got different pipelines")
	}

	other := shapeCmd(3, triangle())
	other.FragShader = "glow.frag.spv"
	if _, err := shapes.Prepare(append(cmds, other)); err != nil {
		t.Fatalf("Prepare with second shader pair: %v", err)
	}
	if dev.pipelinesBuilt != 2 {
		t.Errorf("pipelines built = %d, want 2", dev.pipelinesBuilt)
	}
}

func TestShaderSwapKeepsVertexBuffer(t *testing.T) {
	dev, shapes := newShapeFixture(t)

	mesh := triangle()
	draws, err := shapes.Prepare([]RenderCommand{shapeCmd(1, mesh)})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	base := dev.buffersCreated

	swapped := shapeCmd(1, mesh)
	swapped.FragShader = "glow.frag.spv"
	after, err := shapes.Prepare([]RenderCommand{swapped})
	if err != nil {
		t.Fatalf("Prepare swapped: %v", err)
	}
	if after[0].Pipeline == draws[0].Pipeline {
		t.Error("shader swap did not change the pipeline")
	}
	if after[0].VertexBuffer != draws[0].VertexBuffer {
		t.Error("shader swap reallocated the vertex buffer")
	}
	if dev.buffersCreated != base {
		t.Error("shader swap allocated buffers")
	}
}

func TestDespawnEvictsResources(t *testing.T) {
	dev, shapes := newShapeFixture(t)

	cmds := []RenderCommand{shapeCmd(1, triangle()), shapeCmd(2, triangle())}
	if _, err := shapes.Prepare(cmds); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if shapes.Len() != 2 {
		t.Fatalf("cached entities = %d, want 2", shapes.Len())
	}
	freed := dev.buffersFreed
	setsFreed := dev.setsFreed

	// Entity 2 despawns.
	if _, err := shapes.Prepare(cmds[:1]); err != nil {
		t.Fatalf("Prepare after despawn: %v", err)
	}
	if shapes.Len() != 1 {
		t.Errorf("cached entities = %d, want 1", shapes.Len())
	}
	if dev.buffersFreed != freed+2 {
		t.Errorf("freed %d buffers on despawn, want 2", dev.buffersFreed-freed)
	}
	if dev.setsFreed != setsFreed+1 {
		t.Errorf("freed %d descriptor sets on despawn, want 1", dev.setsFreed-setsFreed)
	}

	// Respawning the same id allocates fresh resources.
	created := dev.buffersCreated
	if _, err := shapes.Prepare(cmds); err != nil {
		t.Fatalf("Prepare respawn: %v", err)
	}
	if dev.buffersCreated != created+2 {
		t.Errorf("respawn created %d buffers, want 2", dev.buffersCreated-created)
	}
}

func TestDuplicateEntityRejected(t *testing.T) {
	_, shapes := newShapeFixture(t)

	cmds := []RenderCommand{shapeCmd(1, triangle()), shapeCmd(1, triangle())}
	if _, err := shapes.Prepare(cmds); err == nil {
		t.Fatal("duplicate entity in one frame not rejected")
	}
}

func TestEmptySceneEvictsEverything(t *testing.T) {
	dev, shapes := newShapeFixture(t)

	cmds := []RenderCommand{shapeCmd(1, triangle()), shapeCmd(2, triangle())}
	if _, err := shapes.Prepare(cmds); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	draws, err := shapes.Prepare(nil)
	if err != nil {
		t.Fatalf("Prepare empty: %v", err)
	}
	if len(draws) != 0 {
		t.Errorf("draws = %d, want 0", len(draws))
	}
	if shapes.Len() != 0 {
		t.Errorf("cached entities = %d, want 0", shapes.Len())
	}
	if dev.setsFreed != 2 {
		t.Errorf("sets freed = %d, want 2", dev.setsFreed)
	}
}
