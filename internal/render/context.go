package render

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// ContextOptions tune device context creation.
type ContextOptions struct {
	AppName string
	// Debug enables the validation layer and a debug report callback that
	// forwards API-layer messages to the package logger.
	Debug bool
}

// Context owns the Vulkan instance, surface, logical device, graphics queue
// and command pool. It is created once at startup and passed by reference to
// every other render component. Any failure here is fatal: the application
// cannot run without a GPU.
type Context struct {
	instance vk.Instance
	surface  vk.Surface
	gpu      vk.PhysicalDevice
	device   vk.Device

	graphicsIdx uint32
	presentIdx  uint32
	queue       vk.Queue
	presentQ    vk.Queue

	cmdPool vk.CommandPool

	debugCallback vk.DebugReportCallback

	memProps vk.PhysicalDeviceMemoryProperties
}

const validationLayer = "VK_LAYER_KHRONOS_validation"

// NewContext initializes the Vulkan loader, creates the instance and surface
// for the given window, selects a physical device with graphics and present
// support, and creates the logical device, queue and command pool.
func NewContext(window *glfw.Window, opts ContextOptions) (*Context, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("load vulkan library: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("init vulkan loader: %w", err)
	}

	c := &Context{}
	if err := c.createInstance(window, opts); err != nil {
		return nil, err
	}
	if opts.Debug {
		if err := c.installDebugCallback(); err != nil {
			// Validation is a diagnostic aid; run without it.
			logger().Warn("debug report callback unavailable", "err", err)
		}
	}

	surfPtr, err := window.CreateWindowSurface(c.instance, nil)
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("create window surface: %w", err)
	}
	c.surface = vk.SurfaceFromPointer(surfPtr)

	if err := c.selectPhysicalDevice(); err != nil {
		c.Destroy()
		return nil, err
	}
	if err := c.createDevice(); err != nil {
		c.Destroy()
		return nil, err
	}
	if err := c.createCommandPool(); err != nil {
		c.Destroy()
		return nil, err
	}

	vk.GetPhysicalDeviceMemoryProperties(c.gpu, &c.memProps)
	c.memProps.Deref()

	return c, nil
}

func (c *Context) createInstance(window *glfw.Window, opts ContextOptions) error {
	appName := opts.AppName
	if appName == "" {
		appName = "atelier"
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(appName),
		ApplicationVersion: vk.MakeVersion(0, 1, 0),
		PEngineName:        safeString("atelier"),
		EngineVersion:      vk.MakeVersion(0, 1, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	extensions := window.GetRequiredInstanceExtensions()
	var layers []string
	if opts.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = append(layers, validationLayer)
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return vkCheck(res, "create instance")
	}
	c.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return fmt.Errorf("init instance: %w", err)
	}
	return nil
}

func dbgReportCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, layerPrefix string,
	message string, userData unsafe.Pointer) vk.Bool32 {

	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		logger().Error("vulkan validation", "layer", layerPrefix, "msg", message)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		logger().Warn("vulkan validation", "layer", layerPrefix, "msg", message)
	default:
		logger().Debug("vulkan validation", "layer", layerPrefix, "msg", message)
	}
	return vk.Bool32(vk.False)
}

func (c *Context) installDebugCallback() error {
	var cb vk.DebugReportCallback
	res := vk.CreateDebugReportCallback(c.instance, &vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
		PfnCallback: dbgReportCallback,
	}, nil, &cb)
	if res != vk.Success {
		return vkCheck(res, "create debug report callback")
	}
	c.debugCallback = cb
	return nil
}

// selectPhysicalDevice picks the first GPU offering a graphics queue, present
// support for our surface and the swapchain extension.
func (c *Context) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(c.instance, &count, nil); res != vk.Success {
		return vkCheck(res, "enumerate physical devices")
	}
	if count == 0 {
		return errors.New("no vulkan-capable GPU found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(c.instance, &count, devices); res != vk.Success {
		return vkCheck(res, "enumerate physical devices")
	}

deviceLoop:
	for _, dev := range devices {
		var famCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &famCount, nil)
		if famCount == 0 {
			continue
		}
		families := make([]vk.QueueFamilyProperties, famCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &famCount, families)

		var graphicsOK, presentOK bool
		var graphicsIdx, presentIdx uint32
		for i, fam := range families {
			fam.Deref()
			if fam.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				graphicsOK = true
				graphicsIdx = uint32(i)
			}
			var supported vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(dev, uint32(i), c.surface, &supported)
			if supported.B() {
				presentOK = true
				presentIdx = uint32(i)
			}
		}
		if !graphicsOK || !presentOK {
			continue
		}

		var extCount uint32
		vk.EnumerateDeviceExtensionProperties(dev, "", &extCount, nil)
		if extCount == 0 {
			continue
		}
		exts := make([]vk.ExtensionProperties, extCount)
		vk.EnumerateDeviceExtensionProperties(dev, "", &extCount, exts)
		found := false
		for _, ext := range exts {
			ext.Deref()
			if vk.ToString(ext.ExtensionName[:]) == vk.KhrSwapchainExtensionName {
				found = true
				break
			}
		}
		if !found {
			continue deviceLoop
		}

		c.gpu = dev
		c.graphicsIdx = graphicsIdx
		c.presentIdx = presentIdx
		return nil
	}
	return errors.New("no suitable GPU with graphics and present support")
}

func (c *Context) createDevice() error {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: c.graphicsIdx,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	if c.graphicsIdx != c.presentIdx {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: c.presentIdx,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	var device vk.Device
	res := vk.CreateDevice(c.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}, nil, &device)
	if res != vk.Success {
		return vkCheck(res, "create logical device")
	}
	c.device = device

	vk.GetDeviceQueue(device, c.graphicsIdx, 0, &c.queue)
	vk.GetDeviceQueue(device, c.presentIdx, 0, &c.presentQ)
	return nil
}

func (c *Context) createCommandPool() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: c.graphicsIdx,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(c.device, &poolInfo, nil, &pool); res != vk.Success {
		return vkCheck(res, "create command pool")
	}
	c.cmdPool = pool
	return nil
}

// WaitIdle blocks until the device finishes all submitted work.
func (c *Context) WaitIdle() {
	if c.device != nil {
		vk.DeviceWaitIdle(c.device)
	}
}

// Destroy releases the command pool, device, surface and instance, in that
// order. Safe to call on a partially constructed context.
func (c *Context) Destroy() {
	if c.device != nil {
		vk.DeviceWaitIdle(c.device)
	}
	if c.cmdPool != vk.NullCommandPool {
		vk.DestroyCommandPool(c.device, c.cmdPool, nil)
		c.cmdPool = vk.NullCommandPool
	}
	if c.device != nil {
		vk.DestroyDevice(c.device, nil)
		c.device = nil
	}
	if c.surface != vk.NullSurface {
		vk.DestroySurface(c.instance, c.surface, nil)
		c.surface = vk.NullSurface
	}
	if c.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(c.instance, c.debugCallback, nil)
		c.debugCallback = vk.NullDebugReportCallback
	}
	if c.instance != nil {
		vk.DestroyInstance(c.instance, nil)
		c.instance = nil
	}
}

func safeString(s string) string {
	if len(s) == 0 {
		return "\x00"
	}
	if s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}
