package render

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// RendererOptions tune renderer construction.
type RendererOptions struct {
	// TextVertShader and TextFragShader are the SPIR-V paths for the one
	// pipeline all text entities share.
	TextVertShader string
	TextFragShader string
	// AtlasSize is the width and height of the square glyph atlas.
	AtlasSize int
	// MaxEntities bounds the descriptor pool.
	MaxEntities uint32
	ClearColor  [4]float32
}

// Renderer drives the per-frame loop: synchronize, prepare resources, record
// and submit one command buffer, present. A single frame is in flight at a
// time; the frame fence is the only point the CPU blocks on the GPU, and
// once it has signaled every cached buffer is safe to rewrite.
type Renderer struct {
	ctx     *Context
	swap    *Swapchain
	factory *PipelineFactory
	dev     *vkDevice

	pipelines *PipelineCache
	proj      *Projection
	shapes    *ShapeResources
	texts     *TextResources
	atlas     *GlyphAtlas

	textPipeline *Pipeline

	cmdBuf         vk.CommandBuffer
	inFlight       vk.Fence
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore

	opts RendererOptions

	// physical framebuffer size tracked for swapchain recreation, logical
	// size for the projection.
	physW, physH uint32
	logW, logH   float32
	resizeWanted bool
}

// NewRenderer builds the swapchain, pipeline factory, resource managers and
// synchronization objects for the given window sizes. Physical size is in
// framebuffer pixels, logical size in window points.
func NewRenderer(ctx *Context, physW, physH int, logW, logH float32, opts RendererOptions) (*Renderer, error) {
	if opts.AtlasSize == 0 {
		opts.AtlasSize = 1024
	}
	if opts.MaxEntities == 0 {
		opts.MaxEntities = 4096
	}

	r := &Renderer{
		ctx:   ctx,
		opts:  opts,
		physW: uint32(physW), physH: uint32(physH),
		logW: logW, logH: logH,
	}
	fail := func(err error) (*Renderer, error) {
		r.Destroy()
		return nil, err
	}

	var err error
	if r.swap, err = NewSwapchain(ctx, uint32(physW), uint32(physH)); err != nil {
		return fail(err)
	}
	if r.factory, err = NewPipelineFactory(ctx, opts.MaxEntities); err != nil {
		return fail(err)
	}
	r.dev = &vkDevice{ctx: ctx, swap: r.swap, factory: r.factory}
	r.pipelines = NewPipelineCache(r.dev)

	if r.proj, err = NewProjection(r.dev, logW, logH); err != nil {
		return fail(err)
	}
	if r.atlas, err = NewGlyphAtlas(r.dev, opts.AtlasSize, opts.AtlasSize); err != nil {
		return fail(err)
	}
	r.shapes = NewShapeResources(r.dev, r.pipelines, r.proj)
	r.texts = NewTextResources(r.dev, r.atlas, r.proj)

	if err := r.createCommandBuffer(); err != nil {
		return fail(err)
	}
	if err := r.createSyncObjects(); err != nil {
		return fail(err)
	}

	logger().Info("renderer ready",
		"physical", fmt.Sprintf("%dx%d", physW, physH),
		"logical", fmt.Sprintf("%gx%g", logW, logH),
		"images", r.swap.ImageCount())
	return r, nil
}

func (r *Renderer) createCommandBuffer() error {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        r.ctx.cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmdBufs := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(r.ctx.device, &allocInfo, cmdBufs); res != vk.Success {
		return vkCheck(res, "allocate frame command buffer")
	}
	r.cmdBuf = cmdBufs[0]
	return nil
}

func (r *Renderer) createSyncObjects() error {
	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if res := vk.CreateSemaphore(r.ctx.device, &semInfo, nil, &r.imageAvailable); res != vk.Success {
		return vkCheck(res, "create image-available semaphore")
	}
	if res := vk.CreateSemaphore(r.ctx.device, &semInfo, nil, &r.renderFinished); res != vk.Success {
		return vkCheck(res, "create render-finished semaphore")
	}
	// Signaled so the first frame does not wait forever.
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}
	if res := vk.CreateFence(r.ctx.device, &fenceInfo, nil, &r.inFlight); res != vk.Success {
		return vkCheck(res, "create in-flight fence")
	}
	return nil
}

// Resize records new window sizes. The swapchain is rebuilt lazily on the
// next frame, folding resize and out-of-date handling into one path.
func (r *Renderer) Resize(physW, physH int, logW, logH float32) {
	r.physW, r.physH = uint32(physW), uint32(physH)
	r.logW, r.logH = logW, logH
	r.resizeWanted = true
}

// Projection exposes the projection state, mainly for picking math.
func (r *Renderer) Projection() *Projection { return r.proj }

// recreateSwapchain rebuilds the swapchain at the current physical size and
// updates the projection for the logical size. Pipelines survive: viewport
// and scissor are dynamic and the new render pass is compatible.
func (r *Renderer) recreateSwapchain() error {
	if r.physW == 0 || r.physH == 0 {
		// minimized; keep skipping frames until a real size arrives
		return nil
	}
	if err := r.swap.Recreate(r.physW, r.physH); err != nil {
		return err
	}
	if err := r.proj.Update(r.logW, r.logH); err != nil {
		return err
	}
	r.resizeWanted = false
	return nil
}

// RenderFrame renders one frame from depth-sorted command lists. A stale
// swapchain is recovered by recreating it and skipping the frame; any other
// failure is returned and the caller should treat it as fatal.
func (r *Renderer) RenderFrame(shapeCmds []RenderCommand, textCmds []TextCommand) error {
	fences := []vk.Fence{r.inFlight}
	vk.WaitForFences(r.ctx.device, 1, fences, vk.True, vk.MaxUint64)

	if r.resizeWanted {
		if err := r.recreateSwapchain(); err != nil {
			return err
		}
		if r.resizeWanted {
			// still minimized
			return nil
		}
	}

	var imageIdx uint32
	res := vk.AcquireNextImage(r.ctx.device, r.swap.handle, vk.MaxUint64,
		r.imageAvailable, vk.NullFence, &imageIdx)
	switch {
	case res == vk.ErrorOutOfDate:
		return r.recreateSwapchain()
	case res == vk.ErrorDeviceLost:
		return fmt.Errorf("acquire image: %w", vk.Error(res))
	case res != vk.Success && res != vk.Suboptimal:
		return vkCheck(res, "acquire swapchain image")
	}

	// The fence has signaled, so the GPU is done with every buffer the
	// managers may now rewrite.
	shapeDraws, err := r.shapes.Prepare(shapeCmds)
	if err != nil {
		return err
	}
	textDraws, err := r.texts.Prepare(textCmds)
	if err != nil {
		return err
	}

	if err := r.record(imageIdx, shapeDraws, textDraws); err != nil {
		return err
	}

	vk.ResetFences(r.ctx.device, 1, fences)
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{r.imageAvailable},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{r.cmdBuf},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{r.renderFinished},
	}
	if res := vk.QueueSubmit(r.ctx.queue, 1, []vk.SubmitInfo{submit}, r.inFlight); res != vk.Success {
		return vkCheck(res, "submit frame")
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{r.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{r.swap.handle},
		PImageIndices:      []uint32{imageIdx},
	}
	res = vk.QueuePresent(r.ctx.presentQ, &presentInfo)
	switch {
	case res == vk.ErrorOutOfDate || res == vk.Suboptimal:
		return r.recreateSwapchain()
	case res != vk.Success:
		return vkCheck(res, "present frame")
	}
	return nil
}

func (r *Renderer) record(imageIdx uint32, shapeDraws []PreparedDraw, textDraws []TextDraw) error {
	if res := vk.ResetCommandBuffer(r.cmdBuf, 0); res != vk.Success {
		return vkCheck(res, "reset frame command buffer")
	}
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if res := vk.BeginCommandBuffer(r.cmdBuf, &beginInfo); res != vk.Success {
		return vkCheck(res, "begin frame command buffer")
	}

	extent := r.swap.Extent()
	clearValues := []vk.ClearValue{
		vk.NewClearValue([]float32{
			r.opts.ClearColor[0], r.opts.ClearColor[1],
			r.opts.ClearColor[2], r.opts.ClearColor[3],
		}),
		vk.NewClearDepthStencil(1, 0),
	}
	passInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  r.swap.RenderPass(),
		Framebuffer: r.swap.Framebuffer(imageIdx),
		RenderArea: vk.Rect2D{
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(r.cmdBuf, &passInfo, vk.SubpassContentsInline)

	viewport := vk.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(r.cmdBuf, 0, 1, []vk.Viewport{viewport})
	scissor := vk.Rect2D{Extent: extent}
	vk.CmdSetScissor(r.cmdBuf, 0, 1, []vk.Rect2D{scissor})

	var bound *Pipeline
	for i := range shapeDraws {
		d := &shapeDraws[i]
		if d.Pipeline != bound {
			vk.CmdBindPipeline(r.cmdBuf, vk.PipelineBindPointGraphics, d.Pipeline.handle)
			bound = d.Pipeline
		}
		vk.CmdBindDescriptorSets(r.cmdBuf, vk.PipelineBindPointGraphics,
			d.Pipeline.layout, 0, 1, []vk.DescriptorSet{d.Set.handle}, 0, nil)
		vk.CmdBindVertexBuffers(r.cmdBuf, 0, 1,
			[]vk.Buffer{d.VertexBuffer.handle}, []vk.DeviceSize{0})
		vk.CmdDraw(r.cmdBuf, d.VertexCount, 1, 0, 0)
	}

	if len(textDraws) > 0 {
		p, err := r.textPipelineFor()
		if err != nil {
			return err
		}
		vk.CmdBindPipeline(r.cmdBuf, vk.PipelineBindPointGraphics, p.handle)
		vk.CmdBindDescriptorSets(r.cmdBuf, vk.PipelineBindPointGraphics,
			p.layout, 1, 1, []vk.DescriptorSet{r.texts.AtlasSet().handle}, 0, nil)
		for i := range textDraws {
			d := &textDraws[i]
			vk.CmdBindDescriptorSets(r.cmdBuf, vk.PipelineBindPointGraphics,
				p.layout, 0, 1, []vk.DescriptorSet{d.Set.handle}, 0, nil)
			vk.CmdBindVertexBuffers(r.cmdBuf, 0, 1,
				[]vk.Buffer{d.VertexBuffer.handle}, []vk.DeviceSize{0})
			vk.CmdDraw(r.cmdBuf, d.VertexCount, 1, 0, 0)
		}
	}

	vk.CmdEndRenderPass(r.cmdBuf)
	if res := vk.EndCommandBuffer(r.cmdBuf); res != vk.Success {
		return vkCheck(res, "end frame command buffer")
	}
	return nil
}

func (r *Renderer) textPipelineFor() (*Pipeline, error) {
	if r.textPipeline != nil {
		return r.textPipeline, nil
	}
	if r.opts.TextVertShader == "" || r.opts.TextFragShader == "" {
		return nil, errors.New("text shaders not configured")
	}
	p, err := r.pipelines.Get(kindText, r.opts.TextVertShader, r.opts.TextFragShader)
	if err != nil {
		return nil, err
	}
	r.textPipeline = p
	return p, nil
}

// Destroy waits for the device to go idle and tears everything down in
// reverse construction order. Safe on a partially constructed renderer.
func (r *Renderer) Destroy() {
	r.ctx.WaitIdle()

	if r.inFlight != vk.NullFence {
		vk.DestroyFence(r.ctx.device, r.inFlight, nil)
		r.inFlight = vk.NullFence
	}
	if r.renderFinished != vk.NullSemaphore {
		vk.DestroySemaphore(r.ctx.device, r.renderFinished, nil)
		r.renderFinished = vk.NullSemaphore
	}
	if r.imageAvailable != vk.NullSemaphore {
		vk.DestroySemaphore(r.ctx.device, r.imageAvailable, nil)
		r.imageAvailable = vk.NullSemaphore
	}

	if r.texts != nil {
		r.texts.Destroy()
		r.texts = nil
	}
	if r.shapes != nil {
		r.shapes.Destroy()
		r.shapes = nil
	}
	if r.atlas != nil {
		r.atlas.Destroy()
		r.atlas = nil
	}
	if r.proj != nil {
		r.proj.Destroy()
		r.proj = nil
	}
	if r.pipelines != nil {
		r.pipelines.Destroy()
		r.pipelines = nil
	}
	if r.factory != nil {
		r.factory.Destroy()
		r.factory = nil
	}
	if r.swap != nil {
		r.swap.Destroy()
		r.swap = nil
	}
}
