package render

import (
	vk "github.com/vulkan-go/vulkan"
)

// depthFormat is the depth attachment format used by the render pass.
const depthFormat = vk.FormatD32Sfloat

// Swapchain owns the presentable image chain, the depth buffer, the render
// pass and one framebuffer per swapchain image. It is recreated wholesale on
// resize; pipelines survive recreation because they use dynamic viewport and
// scissor state and the recreated render pass is attachment-compatible with
// the original.
type Swapchain struct {
	ctx *Context

	handle     vk.Swapchain
	format     vk.Format
	colorSpace vk.ColorSpace
	extent     vk.Extent2D

	images     []vk.Image
	imageViews []vk.ImageView

	depthImage  vk.Image
	depthMemory vk.DeviceMemory
	depthView   vk.ImageView

	renderPass   vk.RenderPass
	framebuffers []vk.Framebuffer
}

// NewSwapchain creates the swapchain sized as close to the requested extent
// as the surface allows. The extent actually granted is retained and exposed
// via Extent; viewport and coordinate math must use it, not the request,
// because the windowing layer may clamp.
func NewSwapchain(ctx *Context, width, height uint32) (*Swapchain, error) {
	s := &Swapchain{ctx: ctx}
	if err := s.create(width, height); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(width, height uint32) error {
	c := s.ctx

	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(c.gpu, c.surface, &caps); res != vk.Success {
		return vkCheck(res, "query surface capabilities")
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	format, err := s.chooseSurfaceFormat()
	if err != nil {
		return err
	}
	presentMode, err := s.choosePresentMode()
	if err != nil {
		return err
	}
	extent := chooseExtent(caps, width, height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          c.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.Swapchain(vk.NullHandle),
	}
	if c.graphicsIdx != c.presentIdx {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{c.graphicsIdx, c.presentIdx}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchain vk.Swapchain
	if res := vk.CreateSwapchain(c.device, &createInfo, nil, &swapchain); res != vk.Success {
		return vkCheck(res, "create swapchain")
	}
	s.handle = swapchain
	s.format = format.Format
	s.colorSpace = format.ColorSpace
	s.extent = extent

	var numImages uint32
	vk.GetSwapchainImages(c.device, s.handle, &numImages, nil)
	s.images = make([]vk.Image, numImages)
	if res := vk.GetSwapchainImages(c.device, s.handle, &numImages, s.images); res != vk.Success {
		return vkCheck(res, "get swapchain images")
	}

	if err := s.createImageViews(); err != nil {
		return err
	}
	if err := s.createDepthBuffer(); err != nil {
		return err
	}
	if err := s.createRenderPass(); err != nil {
		return err
	}
	return s.createFramebuffers()
}

func (s *Swapchain) chooseSurfaceFormat() (vk.SurfaceFormat, error) {
	c := s.ctx
	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(c.gpu, c.surface, &count, nil)
	if count == 0 {
		return vk.SurfaceFormat{}, vkCheck(vk.ErrorSurfaceLost, "query surface formats")
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(c.gpu, c.surface, &count, formats)

	for i := range formats {
		formats[i].Deref()
	}
	if count == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{
			Format:     vk.FormatB8g8r8a8Unorm,
			ColorSpace: vk.ColorSpaceSrgbNonlinear,
		}, nil
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, nil
		}
	}
	return formats[0], nil
}

func (s *Swapchain) choosePresentMode() (vk.PresentMode, error) {
	c := s.ctx
	var count uint32
	vk.GetPhysicalDeviceSurfacePresentModes(c.gpu, c.surface, &count, nil)
	if count == 0 {
		return vk.PresentModeFifo, vkCheck(vk.ErrorSurfaceLost, "query present modes")
	}
	modes := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(c.gpu, c.surface, &count, modes)

	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m, nil
		}
	}
	// Fifo is always available.
	return vk.PresentModeFifo, nil
}

// chooseExtent resolves the extent actually granted by the surface: the
// surface's fixed current extent when it has one, otherwise the request
// clamped to the supported range.
func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clampU32(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clampU32(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Swapchain) createImageViews() error {
	c := s.ctx
	s.imageViews = make([]vk.ImageView, len(s.images))
	for i, image := range s.images {
		info := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		if res := vk.CreateImageView(c.device, &info, nil, &s.imageViews[i]); res != vk.Success {
			return vkCheck(res, "create swapchain image view")
		}
	}
	return nil
}

func (s *Swapchain) createDepthBuffer() error {
	c := s.ctx
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    depthFormat,
		Extent: vk.Extent3D{
			Width:  s.extent.Width,
			Height: s.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if res := vk.CreateImage(c.device, &imageInfo, nil, &image); res != vk.Success {
		return vkCheck(res, "create depth image")
	}
	s.depthImage = image

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(c.device, image, &memReq)
	memReq.Deref()
	memIdx, err := c.findMemoryType(memReq.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: memIdx,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(c.device, &allocInfo, nil, &memory); res != vk.Success {
		return vkCheck(res, "allocate depth image memory")
	}
	s.depthMemory = memory
	vk.BindImageMemory(c.device, image, memory, 0)

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   depthFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectDepthBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(c.device, &viewInfo, nil, &view); res != vk.Success {
		return vkCheck(res, "create depth image view")
	}
	s.depthView = view
	return nil
}

func (s *Swapchain) createRenderPass() error {
	colorAttachment := vk.AttachmentDescription{
		Format:         s.format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}
	depthAttachment := vk.AttachmentDescription{
		Format:         depthFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	colorRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}
	depthRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vk.AttachmentReference{colorRef},
		PDepthStencilAttachment: &depthRef,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 2,
		PAttachments:    []vk.AttachmentDescription{colorAttachment, depthAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(s.ctx.device, &info, nil, &renderPass); res != vk.Success {
		return vkCheck(res, "create render pass")
	}
	s.renderPass = renderPass
	return nil
}

func (s *Swapchain) createFramebuffers() error {
	c := s.ctx
	s.framebuffers = make([]vk.Framebuffer, len(s.imageViews))
	for i, view := range s.imageViews {
		attachments := []vk.ImageView{view, s.depthView}
		info := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      s.renderPass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           s.extent.Width,
			Height:          s.extent.Height,
			Layers:          1,
		}
		if res := vk.CreateFramebuffer(c.device, &info, nil, &s.framebuffers[i]); res != vk.Success {
			return vkCheck(res, "create framebuffer")
		}
	}
	return nil
}

// Recreate tears down the image chain and rebuilds it at the new extent.
// Called at resize and when acquire or present reports a stale swapchain.
func (s *Swapchain) Recreate(width, height uint32) error {
	vk.DeviceWaitIdle(s.ctx.device)
	s.destroyResources()
	if err := s.create(width, height); err != nil {
		return err
	}
	logger().Debug("swapchain recreated",
		"width", s.extent.Width, "height", s.extent.Height)
	return nil
}

// Extent returns the physical extent actually granted by the surface.
func (s *Swapchain) Extent() vk.Extent2D {
	return s.extent
}

// RenderPass returns the render pass framebuffers and pipelines target.
func (s *Swapchain) RenderPass() vk.RenderPass {
	return s.renderPass
}

// Framebuffer returns the framebuffer for one swapchain image.
func (s *Swapchain) Framebuffer(idx uint32) vk.Framebuffer {
	return s.framebuffers[idx]
}

// ImageCount returns the number of images in the chain.
func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

func (s *Swapchain) destroyResources() {
	c := s.ctx
	for _, fb := range s.framebuffers {
		vk.DestroyFramebuffer(c.device, fb, nil)
	}
	s.framebuffers = nil
	if s.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(c.device, s.renderPass, nil)
		s.renderPass = vk.NullRenderPass
	}
	if s.depthView != vk.NullImageView {
		vk.DestroyImageView(c.device, s.depthView, nil)
		s.depthView = vk.NullImageView
	}
	if s.depthImage != vk.NullImage {
		vk.DestroyImage(c.device, s.depthImage, nil)
		s.depthImage = vk.NullImage
	}
	if s.depthMemory != vk.NullDeviceMemory {
		vk.FreeMemory(c.device, s.depthMemory, nil)
		s.depthMemory = vk.NullDeviceMemory
	}
	for _, view := range s.imageViews {
		vk.DestroyImageView(c.device, view, nil)
	}
	s.imageViews = nil
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(c.device, s.handle, nil)
		s.handle = vk.NullSwapchain
	}
	s.images = nil
}

// Destroy releases every swapchain resource. The device must be idle.
func (s *Swapchain) Destroy() {
	vk.DeviceWaitIdle(s.ctx.device)
	s.destroyResources()
}
