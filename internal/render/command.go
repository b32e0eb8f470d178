package render

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"atelier/internal/text"
)

// EntityID identifies a scene entity across frames. The resource managers key
// their GPU-side caches by it.
type EntityID uint64

// Mesh is an immutable list of 2D vertices. Entities sharing geometry hold
// the same *Mesh; the renderer never copies vertex data per entity.
type Mesh struct {
	verts []mgl32.Vec2
}

// NewMesh copies verts into a new immutable mesh.
func NewMesh(verts []mgl32.Vec2) *Mesh {
	m := &Mesh{verts: make([]mgl32.Vec2, len(verts))}
	copy(m.verts, verts)
	return m
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int {
	return len(m.verts)
}

// bytes returns the raw vertex data without copying. The mesh is immutable,
// so the view stays valid for the mesh's lifetime.
func (m *Mesh) bytes() []byte {
	if len(m.verts) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.verts[0])), len(m.verts)*int(unsafe.Sizeof(m.verts[0])))
}

// RenderCommand describes one shape to draw this frame. The scene produces a
// fresh, depth-sorted list every frame; the renderer does not re-sort.
type RenderCommand struct {
	Entity    EntityID
	Transform mgl32.Mat4
	Mesh      *Mesh
	// VertShader and FragShader are paths to compiled SPIR-V modules.
	// Entities with identical path pairs share one pipeline.
	VertShader string
	FragShader string
	Depth      float32
	// VerticesChanged is set by the scene when the shape's geometry was
	// edited since the previous frame. A transform-only change leaves it
	// false and the vertex buffer untouched.
	VerticesChanged bool
}

// TextCommand describes one text entity to draw this frame.
type TextCommand struct {
	Entity    EntityID
	Layout    *text.Layout
	Transform mgl32.Mat4
	Depth     float32
	// Changed is set when the laid-out content differs from the previous
	// frame, forcing a vertex buffer rebuild.
	Changed bool
}

// PreparedDraw is the record-ready output of the shape resource manager:
// everything command recording needs, in submission order.
type PreparedDraw struct {
	Pipeline     *Pipeline
	VertexBuffer *Buffer
	VertexCount  uint32
	Set          *DescriptorSet
}

// TextDraw is the record-ready output of the text resource manager.
type TextDraw struct {
	VertexBuffer *Buffer
	VertexCount  uint32
	Set          *DescriptorSet
}

func matBytes(m *mgl32.Mat4) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&m[0])), 64)
}
