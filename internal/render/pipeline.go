package render

import (
	"fmt"
	"os"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// pipelineKind selects the vertex layout and pipeline layout a pipeline is
// built with.
type pipelineKind int

const (
	kindShape pipelineKind = iota // vec2 position
	kindText                      // vec2 position + vec2 uv
)

// Pipeline bundles a graphics pipeline with the layout it was created
// against. Entities sharing a shader pair share one Pipeline instance.
type Pipeline struct {
	handle vk.Pipeline
	layout vk.PipelineLayout
	kind   pipelineKind
}

// DescriptorSet wraps a descriptor set allocated from the shared pool.
type DescriptorSet struct {
	handle vk.DescriptorSet
}

// PipelineFactory performs the one-time construction of descriptor-set
// layouts, pipeline layouts and the shared descriptor pool, and builds
// graphics pipelines on demand. Shader modules are cached by path, so two
// pipelines referencing the same SPIR-V file share one module.
type PipelineFactory struct {
	ctx *Context

	// entitySetLayout is set 0 for both shape and text pipelines:
	// binding 0 the shared projection buffer, binding 1 the per-entity
	// transform buffer.
	entitySetLayout vk.DescriptorSetLayout
	// atlasSetLayout is set 1 for text pipelines: binding 0 the glyph
	// atlas combined image sampler.
	atlasSetLayout vk.DescriptorSetLayout

	shapeLayout vk.PipelineLayout
	textLayout  vk.PipelineLayout

	pool vk.DescriptorPool

	shaderModules map[string]vk.ShaderModule
}

// NewPipelineFactory builds the layouts and a descriptor pool sized for
// maxEntities concurrent shape and text entities.
func NewPipelineFactory(ctx *Context, maxEntities uint32) (*PipelineFactory, error) {
	f := &PipelineFactory{
		ctx:           ctx,
		shaderModules: make(map[string]vk.ShaderModule),
	}
	if err := f.createSetLayouts(); err != nil {
		f.Destroy()
		return nil, err
	}
	if err := f.createPipelineLayouts(); err != nil {
		f.Destroy()
		return nil, err
	}
	if err := f.createDescriptorPool(maxEntities); err != nil {
		f.Destroy()
		return nil, err
	}
	return f, nil
}

func (f *PipelineFactory) createSetLayouts() error {
	c := f.ctx

	entityBindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
		{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
	}
	entityInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(entityBindings)),
		PBindings:    entityBindings,
	}
	if res := vk.CreateDescriptorSetLayout(c.device, &entityInfo, nil, &f.entitySetLayout); res != vk.Success {
		return vkCheck(res, "create entity descriptor set layout")
	}

	atlasBindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}}
	atlasInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(atlasBindings)),
		PBindings:    atlasBindings,
	}
	if res := vk.CreateDescriptorSetLayout(c.device, &atlasInfo, nil, &f.atlasSetLayout); res != vk.Success {
		return vkCheck(res, "create atlas descriptor set layout")
	}
	return nil
}

func (f *PipelineFactory) createPipelineLayouts() error {
	c := f.ctx

	shapeInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{f.entitySetLayout},
	}
	if res := vk.CreatePipelineLayout(c.device, &shapeInfo, nil, &f.shapeLayout); res != vk.Success {
		return vkCheck(res, "create shape pipeline layout")
	}

	textInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 2,
		PSetLayouts:    []vk.DescriptorSetLayout{f.entitySetLayout, f.atlasSetLayout},
	}
	if res := vk.CreatePipelineLayout(c.device, &textInfo, nil, &f.textLayout); res != vk.Success {
		return vkCheck(res, "create text pipeline layout")
	}
	return nil
}

func (f *PipelineFactory) createDescriptorPool(maxEntities uint32) error {
	// Two uniform bindings per entity set, one set per shape entity and
	// one per text entity, plus the single shared atlas sampler set.
	poolSizes := []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 4 * maxEntities,
		},
		{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 4,
		},
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       2*maxEntities + 4,
	}
	if res := vk.CreateDescriptorPool(f.ctx.device, &info, nil, &f.pool); res != vk.Success {
		return vkCheck(res, "create descriptor pool")
	}
	return nil
}

func (f *PipelineFactory) allocSet(layout vk.DescriptorSetLayout) (*DescriptorSet, error) {
	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(f.ctx.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     f.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &set)
	if res != vk.Success {
		return nil, vkCheck(res, "allocate descriptor set")
	}
	return &DescriptorSet{handle: set}, nil
}

func (f *PipelineFactory) freeSet(set *DescriptorSet) {
	if set == nil || set.handle == vk.NullDescriptorSet {
		return
	}
	vk.FreeDescriptorSets(f.ctx.device, f.pool, 1, []vk.DescriptorSet{set.handle})
	set.handle = vk.NullDescriptorSet
}

// shaderModule loads a compiled SPIR-V file and caches the resulting module
// by path. An unreadable or invalid shader file is fatal at first use.
func (f *PipelineFactory) shaderModule(path string) (vk.ShaderModule, error) {
	if module, ok := f.shaderModules[path]; ok {
		return module, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return vk.NullShaderModule, fmt.Errorf("read shader %s: %w", path, err)
	}
	var module vk.ShaderModule
	res := vk.CreateShaderModule(f.ctx.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    sliceUint32(data),
	}, nil, &module)
	if res != vk.Success {
		return vk.NullShaderModule, vkCheck(res, "create shader module "+path)
	}
	f.shaderModules[path] = module
	logger().Debug("shader module loaded", "path", path)
	return module, nil
}

// buildPipeline creates a graphics pipeline for the given shader pair.
// Viewport and scissor are dynamic, so swapchain recreation does not require
// rebuilding pipelines.
func (f *PipelineFactory) buildPipeline(kind pipelineKind, vertPath, fragPath string, renderPass vk.RenderPass) (*Pipeline, error) {
	vertModule, err := f.shaderModule(vertPath)
	if err != nil {
		return nil, err
	}
	fragModule, err := f.shaderModule(fragPath)
	if err != nil {
		return nil, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  safeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  safeString("main"),
		},
	}

	var binding vk.VertexInputBindingDescription
	var attrs []vk.VertexInputAttributeDescription
	layout := f.shapeLayout
	switch kind {
	case kindShape:
		binding = vk.VertexInputBindingDescription{
			Binding:   0,
			Stride:    8, // vec2 position
			InputRate: vk.VertexInputRateVertex,
		}
		attrs = []vk.VertexInputAttributeDescription{{
			Location: 0,
			Binding:  0,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   0,
		}}
	case kindText:
		layout = f.textLayout
		binding = vk.VertexInputBindingDescription{
			Binding:   0,
			Stride:    16, // vec2 position + vec2 uv
			InputRate: vk.VertexInputRateVertex,
		}
		attrs = []vk.VertexInputAttributeDescription{
			{
				Location: 0,
				Binding:  0,
				Format:   vk.FormatR32g32Sfloat,
				Offset:   0,
			},
			{
				Location: 1,
				Binding:  0,
				Format:   vk.FormatR32g32Sfloat,
				Offset:   8,
			},
		}
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{binding},
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Placeholder viewport/scissor; both are dynamic state.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vk.True,
		DepthWriteEnable: vk.True,
		DepthCompareOp:   vk.CompareOpLessOrEqual,
	}

	blendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit |
			vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
	}
	blending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: 2,
		PDynamicStates:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &blending,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(f.ctx.device, nil, 1,
		[]vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if res != vk.Success {
		return nil, vkCheck(res, "create graphics pipeline")
	}
	return &Pipeline{handle: pipelines[0], layout: layout, kind: kind}, nil
}

func (f *PipelineFactory) destroyPipeline(p *Pipeline) {
	if p == nil || p.handle == vk.NullPipeline {
		return
	}
	vk.DestroyPipeline(f.ctx.device, p.handle, nil)
	p.handle = vk.NullPipeline
}

// Destroy releases the pool, layouts and cached shader modules. Pipelines
// built by the factory are owned by the pipeline cache and destroyed there.
func (f *PipelineFactory) Destroy() {
	c := f.ctx
	for path, module := range f.shaderModules {
		vk.DestroyShaderModule(c.device, module, nil)
		delete(f.shaderModules, path)
	}
	if f.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(c.device, f.pool, nil)
		f.pool = vk.NullDescriptorPool
	}
	if f.shapeLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(c.device, f.shapeLayout, nil)
		f.shapeLayout = vk.NullPipelineLayout
	}
	if f.textLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(c.device, f.textLayout, nil)
		f.textLayout = vk.NullPipelineLayout
	}
	if f.entitySetLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(c.device, f.entitySetLayout, nil)
		f.entitySetLayout = vk.NullDescriptorSetLayout
	}
	if f.atlasSetLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(c.device, f.atlasSetLayout, nil)
		f.atlasSetLayout = vk.NullDescriptorSetLayout
	}
}

// sliceUint32 reinterprets SPIR-V bytes as the uint32 words Vulkan expects.
func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
