package render

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// fakeDevice satisfies deviceOps without a GPU. Every resource is a distinct
// heap object, so pointer identity checks work, and every call is counted.
type fakeDevice struct {
	buffersCreated int
	buffersFreed   int
	writes         map[*Buffer][][]byte
	pipelinesBuilt int
	setsAlloced    int
	setsFreed      int
	texturesMade   int
	uploads        [][4]int

	failUploads bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{writes: make(map[*Buffer][][]byte)}
}

func (f *fakeDevice) createVertexBuffer(size int) (*Buffer, error) {
	f.buffersCreated++
	return &Buffer{size: vk.DeviceSize(size)}, nil
}

func (f *fakeDevice) createUniformBuffer(size int) (*Buffer, error) {
	f.buffersCreated++
	return &Buffer{size: vk.DeviceSize(size)}, nil
}

func (f *fakeDevice) destroyBuffer(b *Buffer) {
	f.buffersFreed++
}

func (f *fakeDevice) writeBuffer(b *Buffer, data []byte) error {
	if len(data) > int(b.size) {
		return fmt.Errorf("write of %d bytes into %d byte buffer", len(data), b.size)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes[b] = append(f.writes[b], cp)
	return nil
}

func (f *fakeDevice) createPipeline(kind pipelineKind, vertPath, fragPath string) (*Pipeline, error) {
	f.pipelinesBuilt++
	return &Pipeline{kind: kind}, nil
}

func (f *fakeDevice) destroyPipeline(p *Pipeline) {}

func (f *fakeDevice) allocEntitySet() (*DescriptorSet, error) {
	f.setsAlloced++
	return &DescriptorSet{}, nil
}

func (f *fakeDevice) allocAtlasSet() (*DescriptorSet, error) {
	f.setsAlloced++
	return &DescriptorSet{}, nil
}

func (f *fakeDevice) freeSet(set *DescriptorSet) {
	f.setsFreed++
}

func (f *fakeDevice) writeUniformDescriptors(set *DescriptorSet, proj, transform *Buffer) {}

func (f *fakeDevice) writeAtlasDescriptor(set *DescriptorSet, tex *AtlasTexture) {}

func (f *fakeDevice) createAtlasTexture(width, height int) (*AtlasTexture, error) {
	f.texturesMade++
	return &AtlasTexture{width: width, height: height}, nil
}

func (f *fakeDevice) destroyAtlasTexture(tex *AtlasTexture) {}

func (f *fakeDevice) uploadAtlasRegion(tex *AtlasTexture, x, y, w, h int, pixels []byte) error {
	if f.failUploads {
		return fmt.Errorf("upload failure injected")
	}
	f.uploads = append(f.uploads, [4]int{x, y, w, h})
	return nil
}

// vertexWrites counts vertex data writes across all buffers, ignoring the
// 64-byte uniform writes the managers do every frame.
func (f *fakeDevice) vertexWrites() int {
	n := 0
	for _, ws := range f.writes {
		for _, w := range ws {
			if len(w) != 64 {
				n++
			}
		}
	}
	return n
}
