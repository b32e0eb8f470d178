package render

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Buffer pairs a Vulkan buffer with its backing memory. Host-visible buffers
// are mapped once at creation and stay mapped for their lifetime; writes go
// straight through the mapped pointer with no map/unmap per frame.
type Buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   vk.DeviceSize
	mapped unsafe.Pointer
}

// Size returns the buffer's allocated size in bytes.
func (b *Buffer) Size() int {
	return int(b.size)
}

func (c *Context) findMemoryType(typeFilter uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < c.memProps.MemoryTypeCount; i++ {
		c.memProps.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && (c.memProps.MemoryTypes[i].PropertyFlags&props) == props {
			return i, nil
		}
	}
	return 0, errors.New("no suitable memory type")
}

// createBuffer allocates a buffer and binds fresh device memory to it. When
// hostVisible is set the memory is host-coherent and persistently mapped.
func (c *Context) createBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags, hostVisible bool) (*Buffer, error) {
	if size == 0 {
		return nil, errors.New("zero-size buffer")
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(c.device, &info, nil, &handle); res != vk.Success {
		return nil, vkCheck(res, "create buffer")
	}

	var memReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(c.device, handle, &memReq)
	memReq.Deref()

	props := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if hostVisible {
		props = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	memIdx, err := c.findMemoryType(memReq.MemoryTypeBits, props)
	if err != nil {
		vk.DestroyBuffer(c.device, handle, nil)
		return nil, err
	}

	var memory vk.DeviceMemory
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: memIdx,
	}
	if res := vk.AllocateMemory(c.device, &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyBuffer(c.device, handle, nil)
		return nil, vkCheck(res, "allocate buffer memory")
	}
	if res := vk.BindBufferMemory(c.device, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(c.device, memory, nil)
		vk.DestroyBuffer(c.device, handle, nil)
		return nil, vkCheck(res, "bind buffer memory")
	}

	b := &Buffer{handle: handle, memory: memory, size: size}
	if hostVisible {
		if res := vk.MapMemory(c.device, memory, 0, size, 0, &b.mapped); res != vk.Success {
			c.destroyBuffer(b)
			return nil, vkCheck(res, "map buffer memory")
		}
	}
	return b, nil
}

// writeBuffer copies data into a persistently mapped buffer. The caller is
// responsible for not writing while the GPU reads; the frame fence is the
// single synchronization point.
func (c *Context) writeBuffer(b *Buffer, data []byte) error {
	if b.mapped == nil {
		return errors.New("write to unmapped buffer")
	}
	if len(data) > int(b.size) {
		return fmt.Errorf("write of %d bytes exceeds buffer size %d", len(data), b.size)
	}
	if n := vk.Memcopy(b.mapped, data); n != len(data) {
		return errors.New("short buffer write")
	}
	return nil
}

func (c *Context) destroyBuffer(b *Buffer) {
	if b == nil {
		return
	}
	if b.mapped != nil {
		vk.UnmapMemory(c.device, b.memory)
		b.mapped = nil
	}
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(c.device, b.handle, nil)
		b.handle = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(c.device, b.memory, nil)
		b.memory = vk.NullDeviceMemory
	}
}

// beginSingleTimeCommands allocates and begins a one-shot command buffer for
// transfer work (staging copies, layout transitions).
func (c *Context) beginSingleTimeCommands() ([]vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        c.cmdPool,
		CommandBufferCount: 1,
	}
	cmdBufs := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(c.device, &allocInfo, cmdBufs); res != vk.Success {
		return nil, vkCheck(res, "allocate transfer command buffer")
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmdBufs[0], &beginInfo); res != vk.Success {
		vk.FreeCommandBuffers(c.device, c.cmdPool, 1, cmdBufs)
		return nil, vkCheck(res, "begin transfer command buffer")
	}
	return cmdBufs, nil
}

// endSingleTimeCommands submits the one-shot command buffer and waits for the
// queue to drain before freeing it.
func (c *Context) endSingleTimeCommands(cmdBufs []vk.CommandBuffer) error {
	if res := vk.EndCommandBuffer(cmdBufs[0]); res != vk.Success {
		return vkCheck(res, "end transfer command buffer")
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmdBufs,
	}
	if res := vk.QueueSubmit(c.queue, 1, []vk.SubmitInfo{submit}, vk.NullFence); res != vk.Success {
		return vkCheck(res, "submit transfer command buffer")
	}
	vk.QueueWaitIdle(c.queue)
	vk.FreeCommandBuffers(c.device, c.cmdPool, 1, cmdBufs)
	return nil
}
