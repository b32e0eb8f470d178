package scene

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"atelier/internal/render"
	"atelier/internal/text"
)

// Transform positions an entity in the document, in logical pixels with the
// origin at the bottom left.
type Transform struct {
	Position mgl32.Vec2
	Rotation float32
	Scale    mgl32.Vec2
}

// Matrix expands the transform into the model matrix shaders consume.
func (t Transform) Matrix() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Position.X(), t.Position.Y(), 0)
	if t.Rotation != 0 {
		m = m.Mul4(mgl32.HomogRotate3DZ(t.Rotation))
	}
	sx, sy := t.Scale.X(), t.Scale.Y()
	if sx == 0 && sy == 0 {
		sx, sy = 1, 1
	}
	return m.Mul4(mgl32.Scale3D(sx, sy, 1))
}

type shape struct {
	transform  Transform
	mesh       *render.Mesh
	vertShader string
	fragShader string
	depth      float32
	meshDirty  bool
}

type textEntity struct {
	transform Transform
	face      *text.Face
	content   string
	layout    *text.Layout
	depth     float32
	dirty     bool
}

// Scene is the document-side entity store. It owns no GPU state; every frame
// it emits depth-sorted command lists the renderer consumes. Entities removed
// from the scene simply stop appearing in the lists, which is what triggers
// GPU-side eviction.
type Scene struct {
	nextID render.EntityID
	shapes map[render.EntityID]*shape
	texts  map[render.EntityID]*textEntity
}

func New() *Scene {
	return &Scene{
		shapes: make(map[render.EntityID]*shape),
		texts:  make(map[render.EntityID]*textEntity),
	}
}

func (s *Scene) allocID() render.EntityID {
	s.nextID++
	return s.nextID
}

// AddShape inserts a shape entity and returns its id. The mesh is shared,
// not copied; several entities may reference the same mesh.
func (s *Scene) AddShape(mesh *render.Mesh, t Transform, depth float32, vertShader, fragShader string) render.EntityID {
	id := s.allocID()
	s.shapes[id] = &shape{
		transform:  t,
		mesh:       mesh,
		vertShader: vertShader,
		fragShader: fragShader,
		depth:      depth,
		meshDirty:  true,
	}
	return id
}

// SetShapeTransform moves, rotates or scales a shape. This is the cheap edit
// path: the renderer rewrites one small uniform and touches nothing else.
func (s *Scene) SetShapeTransform(id render.EntityID, t Transform) bool {
	sh, ok := s.shapes[id]
	if !ok {
		return false
	}
	sh.transform = t
	return true
}

// SetShapeMesh replaces a shape's geometry and marks it for re-upload.
func (s *Scene) SetShapeMesh(id render.EntityID, mesh *render.Mesh) bool {
	sh, ok := s.shapes[id]
	if !ok {
		return false
	}
	sh.mesh = mesh
	sh.meshDirty = true
	return true
}

// SetShapeShaders swaps the shader pair a shape is drawn with.
func (s *Scene) SetShapeShaders(id render.EntityID, vertShader, fragShader string) bool {
	sh, ok := s.shapes[id]
	if !ok {
		return false
	}
	sh.vertShader = vertShader
	sh.fragShader = fragShader
	return true
}

// SetShapeDepth changes a shape's draw layer.
func (s *Scene) SetShapeDepth(id render.EntityID, depth float32) bool {
	sh, ok := s.shapes[id]
	if !ok {
		return false
	}
	sh.depth = depth
	return true
}

// AddText inserts a text entity and returns its id.
func (s *Scene) AddText(face *text.Face, content string, t Transform, depth float32) render.EntityID {
	id := s.allocID()
	s.texts[id] = &textEntity{
		transform: t,
		face:      face,
		content:   content,
		layout:    text.LayoutString(face, content),
		depth:     depth,
		dirty:     true,
	}
	return id
}

// SetTextContent replaces the string of a text entity, re-laying it out.
func (s *Scene) SetTextContent(id render.EntityID, content string) bool {
	te, ok := s.texts[id]
	if !ok {
		return false
	}
	if te.content == content {
		return true
	}
	te.content = content
	te.layout = text.LayoutString(te.face, content)
	te.dirty = true
	return true
}

// SetTextTransform moves a text entity without re-layout.
func (s *Scene) SetTextTransform(id render.EntityID, t Transform) bool {
	te, ok := s.texts[id]
	if !ok {
		return false
	}
	te.transform = t
	return true
}

// Remove deletes an entity of either kind. The renderer frees its GPU
// resources on the next frame.
func (s *Scene) Remove(id render.EntityID) bool {
	if _, ok := s.shapes[id]; ok {
		delete(s.shapes, id)
		return true
	}
	if _, ok := s.texts[id]; ok {
		delete(s.texts, id)
		return true
	}
	return false
}

// Len returns the number of live entities.
func (s *Scene) Len() int { return len(s.shapes) + len(s.texts) }

// FrameCommands emits this frame's command lists, each sorted far-to-near so
// alpha blending composes correctly. Dirty flags are consumed: the next call
// reports no changes unless entities were edited in between.
func (s *Scene) FrameCommands() ([]render.RenderCommand, []render.TextCommand) {
	shapeCmds := make([]render.RenderCommand, 0, len(s.shapes))
	for id, sh := range s.shapes {
		shapeCmds = append(shapeCmds, render.RenderCommand{
			Entity:          id,
			Transform:       sh.transform.Matrix(),
			Mesh:            sh.mesh,
			VertShader:      sh.vertShader,
			FragShader:      sh.fragShader,
			Depth:           sh.depth,
			VerticesChanged: sh.meshDirty,
		})
		sh.meshDirty = false
	}
	sort.SliceStable(shapeCmds, func(i, j int) bool {
		if shapeCmds[i].Depth != shapeCmds[j].Depth {
			return shapeCmds[i].Depth < shapeCmds[j].Depth
		}
		return shapeCmds[i].Entity < shapeCmds[j].Entity
	})

	textCmds := make([]render.TextCommand, 0, len(s.texts))
	for id, te := range s.texts {
		textCmds = append(textCmds, render.TextCommand{
			Entity:    id,
			Layout:    te.layout,
			Transform: te.transform.Matrix(),
			Depth:     te.depth,
			Changed:   te.dirty,
		})
		te.dirty = false
	}
	sort.SliceStable(textCmds, func(i, j int) bool {
		if textCmds[i].Depth != textCmds[j].Depth {
			return textCmds[i].Depth < textCmds[j].Depth
		}
		return textCmds[i].Entity < textCmds[j].Entity
	})

	return shapeCmds, textCmds
}
