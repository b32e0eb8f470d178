package render

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Projection owns the shared orthographic projection matrix and the uniform
// buffer every entity descriptor set binds at slot 0. Coordinates are logical
// pixels with the origin at the bottom left and y growing upward; the matrix
// folds in the flip to Vulkan's downward clip-space y.
type Projection struct {
	dev deviceOps
	buf *Buffer
	mat mgl32.Mat4
}

// NewProjection allocates the uniform buffer and writes the matrix for the
// initial logical size.
func NewProjection(dev deviceOps, width, height float32) (*Projection, error) {
	buf, err := dev.createUniformBuffer(64)
	if err != nil {
		return nil, err
	}
	p := &Projection{dev: dev, buf: buf}
	if err := p.Update(width, height); err != nil {
		dev.destroyBuffer(buf)
		return nil, err
	}
	return p, nil
}

// Update recomputes the matrix for a new logical size and rewrites the
// uniform buffer. Existing descriptor sets keep pointing at the same buffer,
// so no per-entity work is needed on resize.
func (p *Projection) Update(width, height float32) error {
	m := mgl32.Ortho(0, width, 0, height, -1000, 1000)
	m.Set(1, 1, -m.At(1, 1))
	m.Set(1, 3, -m.At(1, 3))
	p.mat = m
	return p.dev.writeBuffer(p.buf, matBytes(&p.mat))
}

// Matrix returns the current projection matrix.
func (p *Projection) Matrix() mgl32.Mat4 { return p.mat }

// Buffer returns the uniform buffer descriptor sets bind.
func (p *Projection) Buffer() *Buffer { return p.buf }

// Destroy frees the uniform buffer.
func (p *Projection) Destroy() {
	if p.buf != nil {
		p.dev.destroyBuffer(p.buf)
		p.buf = nil
	}
}
