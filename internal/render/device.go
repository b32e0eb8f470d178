package render

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// deviceOps is the narrow device surface the resource managers allocate
// through. The real implementation talks to Vulkan; tests substitute a fake
// that hands out distinct placeholder resources and counts calls.
type deviceOps interface {
	createVertexBuffer(size int) (*Buffer, error)
	createUniformBuffer(size int) (*Buffer, error)
	destroyBuffer(b *Buffer)
	writeBuffer(b *Buffer, data []byte) error

	createPipeline(kind pipelineKind, vertPath, fragPath string) (*Pipeline, error)
	destroyPipeline(p *Pipeline)

	allocEntitySet() (*DescriptorSet, error)
	allocAtlasSet() (*DescriptorSet, error)
	freeSet(set *DescriptorSet)
	writeUniformDescriptors(set *DescriptorSet, proj, transform *Buffer)
	writeAtlasDescriptor(set *DescriptorSet, tex *AtlasTexture)

	createAtlasTexture(width, height int) (*AtlasTexture, error)
	destroyAtlasTexture(tex *AtlasTexture)
	uploadAtlasRegion(tex *AtlasTexture, x, y, w, h int, pixels []byte) error
}

// AtlasTexture is a single-channel sampled image plus the sampler text
// pipelines read it through.
type AtlasTexture struct {
	image   vk.Image
	memory  vk.DeviceMemory
	view    vk.ImageView
	sampler vk.Sampler
	width   int
	height  int
	// sampled is set once the image has left its initial undefined layout.
	sampled bool
}

// vkDevice is the production deviceOps backed by the context, swapchain and
// pipeline factory.
type vkDevice struct {
	ctx     *Context
	swap    *Swapchain
	factory *PipelineFactory
}

func (d *vkDevice) createVertexBuffer(size int) (*Buffer, error) {
	return d.ctx.createBuffer(vk.DeviceSize(size),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), true)
}

func (d *vkDevice) createUniformBuffer(size int) (*Buffer, error) {
	return d.ctx.createBuffer(vk.DeviceSize(size),
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), true)
}

func (d *vkDevice) destroyBuffer(b *Buffer) { d.ctx.destroyBuffer(b) }

func (d *vkDevice) writeBuffer(b *Buffer, data []byte) error {
	return d.ctx.writeBuffer(b, data)
}

func (d *vkDevice) createPipeline(kind pipelineKind, vertPath, fragPath string) (*Pipeline, error) {
	return d.factory.buildPipeline(kind, vertPath, fragPath, d.swap.RenderPass())
}

func (d *vkDevice) destroyPipeline(p *Pipeline) { d.factory.destroyPipeline(p) }

func (d *vkDevice) allocEntitySet() (*DescriptorSet, error) {
	return d.factory.allocSet(d.factory.entitySetLayout)
}

func (d *vkDevice) allocAtlasSet() (*DescriptorSet, error) {
	return d.factory.allocSet(d.factory.atlasSetLayout)
}

func (d *vkDevice) freeSet(set *DescriptorSet) { d.factory.freeSet(set) }

func (d *vkDevice) writeUniformDescriptors(set *DescriptorSet, proj, transform *Buffer) {
	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: proj.handle,
				Offset: 0,
				Range:  proj.size,
			}},
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      1,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: transform.handle,
				Offset: 0,
				Range:  transform.size,
			}},
		},
	}
	vk.UpdateDescriptorSets(d.ctx.device, uint32(len(writes)), writes, 0, nil)
}

func (d *vkDevice) writeAtlasDescriptor(set *DescriptorSet, tex *AtlasTexture) {
	writes := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set.handle,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     tex.sampler,
			ImageView:   tex.view,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}}
	vk.UpdateDescriptorSets(d.ctx.device, uint32(len(writes)), writes, 0, nil)
}

func (d *vkDevice) createAtlasTexture(width, height int) (*AtlasTexture, error) {
	c := d.ctx
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.FormatR8Unorm,
		Extent: vk.Extent3D{
			Width:  uint32(width),
			Height: uint32(height),
			Depth:  1,
		},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage: vk.ImageUsageFlags(vk.ImageUsageTransferDstBit |
			vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if res := vk.CreateImage(c.device, &info, nil, &image); res != vk.Success {
		return nil, vkCheck(res, "create atlas image")
	}

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(c.device, image, &memReq)
	memReq.Deref()
	memIdx, err := c.findMemoryType(memReq.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(c.device, image, nil)
		return nil, err
	}
	var memory vk.DeviceMemory
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: memIdx,
	}
	if res := vk.AllocateMemory(c.device, &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyImage(c.device, image, nil)
		return nil, vkCheck(res, "allocate atlas image memory")
	}
	if res := vk.BindImageMemory(c.device, image, memory, 0); res != vk.Success {
		vk.FreeMemory(c.device, memory, nil)
		vk.DestroyImage(c.device, image, nil)
		return nil, vkCheck(res, "bind atlas image memory")
	}

	tex := &AtlasTexture{image: image, memory: memory, width: width, height: height}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.FormatR8Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	if res := vk.CreateImageView(c.device, &viewInfo, nil, &tex.view); res != vk.Success {
		d.destroyAtlasTexture(tex)
		return nil, vkCheck(res, "create atlas image view")
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		BorderColor:  vk.BorderColorFloatTransparentBlack,
		MipmapMode:   vk.SamplerMipmapModeNearest,
	}
	if res := vk.CreateSampler(c.device, &samplerInfo, nil, &tex.sampler); res != vk.Success {
		d.destroyAtlasTexture(tex)
		return nil, vkCheck(res, "create atlas sampler")
	}

	// Move the whole image to shader-read layout up front so sampling is
	// valid even before any glyph lands in it.
	if err := d.transitionAtlas(tex, vk.ImageLayoutUndefined, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		d.destroyAtlasTexture(tex)
		return nil, err
	}
	tex.sampled = true
	return tex, nil
}

func (d *vkDevice) destroyAtlasTexture(tex *AtlasTexture) {
	if tex == nil {
		return
	}
	c := d.ctx
	if tex.sampler != vk.NullSampler {
		vk.DestroySampler(c.device, tex.sampler, nil)
		tex.sampler = vk.NullSampler
	}
	if tex.view != vk.NullImageView {
		vk.DestroyImageView(c.device, tex.view, nil)
		tex.view = vk.NullImageView
	}
	if tex.image != vk.NullImage {
		vk.DestroyImage(c.device, tex.image, nil)
		tex.image = vk.NullImage
	}
	if tex.memory != vk.NullDeviceMemory {
		vk.FreeMemory(c.device, tex.memory, nil)
		tex.memory = vk.NullDeviceMemory
	}
}

func (d *vkDevice) transitionAtlas(tex *AtlasTexture, from, to vk.ImageLayout) error {
	cmdBufs, err := d.ctx.beginSingleTimeCommands()
	if err != nil {
		return err
	}
	recordAtlasBarrier(cmdBufs[0], tex.image, from, to)
	return d.ctx.endSingleTimeCommands(cmdBufs)
}

func recordAtlasBarrier(cmd vk.CommandBuffer, image vk.Image, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	srcStage := vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	dstStage := vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	switch {
	case to == vk.ImageLayoutTransferDstOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		if from == vk.ImageLayoutShaderReadOnlyOptimal {
			barrier.SrcAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
			srcStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
		}
	case to == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
		if from == vk.ImageLayoutTransferDstOptimal {
			barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
			srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		}
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// uploadAtlasRegion stages pixels through a transient host-visible buffer and
// copies them into a sub-rectangle of the atlas image.
func (d *vkDevice) uploadAtlasRegion(tex *AtlasTexture, x, y, w, h int, pixels []byte) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	if len(pixels) < w*h {
		return fmt.Errorf("atlas upload: %d pixels for %dx%d region", len(pixels), w, h)
	}
	staging, err := d.ctx.createBuffer(vk.DeviceSize(w*h),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), true)
	if err != nil {
		return err
	}
	defer d.ctx.destroyBuffer(staging)
	if err := d.ctx.writeBuffer(staging, pixels[:w*h]); err != nil {
		return err
	}

	cmdBufs, err := d.ctx.beginSingleTimeCommands()
	if err != nil {
		return err
	}
	from := vk.ImageLayoutUndefined
	if tex.sampled {
		from = vk.ImageLayoutShaderReadOnlyOptimal
	}
	recordAtlasBarrier(cmdBufs[0], tex.image, from, vk.ImageLayoutTransferDstOptimal)
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageOffset: vk.Offset3D{X: int32(x), Y: int32(y)},
		ImageExtent: vk.Extent3D{Width: uint32(w), Height: uint32(h), Depth: 1},
	}
	vk.CmdCopyBufferToImage(cmdBufs[0], staging.handle, tex.image,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
	recordAtlasBarrier(cmdBufs[0], tex.image,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	if err := d.ctx.endSingleTimeCommands(cmdBufs); err != nil {
		return err
	}
	tex.sampled = true
	return nil
}

// pipelineKey identifies a pipeline by what makes it distinct: the vertex
// layout it expects and the shader pair it runs.
type pipelineKey struct {
	kind pipelineKind
	vert string
	frag string
}

// PipelineCache deduplicates pipelines by shader pair. Two entities naming
// the same SPIR-V paths get the same *Pipeline back.
type PipelineCache struct {
	dev       deviceOps
	pipelines map[pipelineKey]*Pipeline
}

func NewPipelineCache(dev deviceOps) *PipelineCache {
	return &PipelineCache{dev: dev, pipelines: make(map[pipelineKey]*Pipeline)}
}

// Get returns the cached pipeline for the shader pair, building it on first
// request.
func (pc *PipelineCache) Get(kind pipelineKind, vertPath, fragPath string) (*Pipeline, error) {
	key := pipelineKey{kind: kind, vert: vertPath, frag: fragPath}
	if p, ok := pc.pipelines[key]; ok {
		return p, nil
	}
	p, err := pc.dev.createPipeline(kind, vertPath, fragPath)
	if err != nil {
		return nil, err
	}
	pc.pipelines[key] = p
	logger().Debug("pipeline built", "vert", vertPath, "frag", fragPath)
	return p, nil
}

// Len reports how many distinct pipelines have been built.
func (pc *PipelineCache) Len() int { return len(pc.pipelines) }

// Destroy releases every cached pipeline.
func (pc *PipelineCache) Destroy() {
	for key, p := range pc.pipelines {
		pc.dev.destroyPipeline(p)
		delete(pc.pipelines, key)
	}
}
