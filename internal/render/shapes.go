package render

import (
	"fmt"
)

// shapeEntry holds the GPU-side state cached for one shape entity.
type shapeEntry struct {
	vertexBuffer *Buffer
	vertexCount  uint32
	transform    *Buffer
	set          *DescriptorSet
	pipeline     *Pipeline
	vertShader   string
	fragShader   string
}

// ShapeResources caches per-entity vertex buffers, transform uniforms and
// descriptor sets across frames, keyed by entity id. Pipelines come from the
// shared cache and are never owned here.
type ShapeResources struct {
	dev       deviceOps
	pipelines *PipelineCache
	proj      *Projection
	entries   map[EntityID]*shapeEntry

	// scratch set reused each frame for eviction.
	seen map[EntityID]struct{}
}

func NewShapeResources(dev deviceOps, pipelines *PipelineCache, proj *Projection) *ShapeResources {
	return &ShapeResources{
		dev:       dev,
		pipelines: pipelines,
		proj:      proj,
		entries:   make(map[EntityID]*shapeEntry),
		seen:      make(map[EntityID]struct{}),
	}
}

// Prepare brings the cache in line with this frame's command list and returns
// draws in command order. Entities absent from the list are evicted and their
// resources freed. The caller guarantees the GPU is idle on every buffer
// touched here; the frame fence has already been waited on.
func (s *ShapeResources) Prepare(cmds []RenderCommand) ([]PreparedDraw, error) {
	clear(s.seen)
	draws := make([]PreparedDraw, 0, len(cmds))

	for i := range cmds {
		cmd := &cmds[i]
		if _, dup := s.seen[cmd.Entity]; dup {
			return nil, fmt.Errorf("entity %d appears twice in one frame", cmd.Entity)
		}
		s.seen[cmd.Entity] = struct{}{}

		entry, err := s.prepareEntity(cmd)
		if err != nil {
			return nil, fmt.Errorf("prepare entity %d: %w", cmd.Entity, err)
		}
		draws = append(draws, PreparedDraw{
			Pipeline:     entry.pipeline,
			VertexBuffer: entry.vertexBuffer,
			VertexCount:  entry.vertexCount,
			Set:          entry.set,
		})
	}

	s.evict()
	return draws, nil
}

func (s *ShapeResources) prepareEntity(cmd *RenderCommand) (*shapeEntry, error) {
	entry, ok := s.entries[cmd.Entity]
	if !ok {
		var err error
		entry, err = s.createEntry(cmd)
		if err != nil {
			return nil, err
		}
		s.entries[cmd.Entity] = entry
	} else {
		if cmd.VerticesChanged {
			if err := s.updateVertices(entry, cmd); err != nil {
				return nil, err
			}
		}
		if cmd.VertShader != entry.vertShader || cmd.FragShader != entry.fragShader {
			p, err := s.pipelines.Get(kindShape, cmd.VertShader, cmd.FragShader)
			if err != nil {
				return nil, err
			}
			entry.pipeline = p
			entry.vertShader = cmd.VertShader
			entry.fragShader = cmd.FragShader
		}
	}

	// The transform uniform is persistently mapped; rewriting it every
	// frame is cheaper than tracking whether it moved.
	if err := s.dev.writeBuffer(entry.transform, matBytes(&cmd.Transform)); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *ShapeResources) createEntry(cmd *RenderCommand) (*shapeEntry, error) {
	data := cmd.Mesh.bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("empty mesh")
	}

	entry := &shapeEntry{}
	fail := func(err error) (*shapeEntry, error) {
		s.freeEntry(entry)
		return nil, err
	}

	vb, err := s.dev.createVertexBuffer(len(data))
	if err != nil {
		return fail(err)
	}
	entry.vertexBuffer = vb
	if err := s.dev.writeBuffer(vb, data); err != nil {
		return fail(err)
	}
	entry.vertexCount = uint32(cmd.Mesh.VertexCount())

	tb, err := s.dev.createUniformBuffer(64)
	if err != nil {
		return fail(err)
	}
	entry.transform = tb

	p, err := s.pipelines.Get(kindShape, cmd.VertShader, cmd.FragShader)
	if err != nil {
		return fail(err)
	}
	entry.pipeline = p
	entry.vertShader = cmd.VertShader
	entry.fragShader = cmd.FragShader

	set, err := s.dev.allocEntitySet()
	if err != nil {
		return fail(err)
	}
	entry.set = set
	s.dev.writeUniformDescriptors(set, s.proj.Buffer(), tb)

	return entry, nil
}

// updateVertices re-uploads edited geometry. A length change replaces the
// vertex buffer; pipeline, descriptor set and transform buffer are preserved.
func (s *ShapeResources) updateVertices(entry *shapeEntry, cmd *RenderCommand) error {
	data := cmd.Mesh.bytes()
	if len(data) == 0 {
		return fmt.Errorf("empty mesh")
	}
	if len(data) != entry.vertexBuffer.Size() {
		vb, err := s.dev.createVertexBuffer(len(data))
		if err != nil {
			return err
		}
		s.dev.destroyBuffer(entry.vertexBuffer)
		entry.vertexBuffer = vb
	}
	if err := s.dev.writeBuffer(entry.vertexBuffer, data); err != nil {
		return err
	}
	entry.vertexCount = uint32(cmd.Mesh.VertexCount())
	return nil
}

// evict frees resources of entities that were cached but absent from the
// frame just prepared.
func (s *ShapeResources) evict() {
	for id, entry := range s.entries {
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.freeEntry(entry)
		delete(s.entries, id)
		logger().Debug("shape entity evicted", "entity", uint64(id))
	}
}

func (s *ShapeResources) freeEntry(entry *shapeEntry) {
	if entry.set != nil {
		s.dev.freeSet(entry.set)
		entry.set = nil
	}
	if entry.vertexBuffer != nil {
		s.dev.destroyBuffer(entry.vertexBuffer)
		entry.vertexBuffer = nil
	}
	if entry.transform != nil {
		s.dev.destroyBuffer(entry.transform)
		entry.transform = nil
	}
}

// Len reports how many entities currently hold cached resources.
func (s *ShapeResources) Len() int { return len(s.entries) }

// Destroy frees every cached entry.
func (s *ShapeResources) Destroy() {
	for id, entry := range s.entries {
		s.freeEntry(entry)
		delete(s.entries, id)
	}
}
