package render

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestChooseExtentHonorsFixedCurrentExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent: vk.Extent2D{Width: 1920, Height: 1080},
	}
	got := chooseExtent(caps, 640, 480)
	if got.Width != 1920 || got.Height != 1080 {
		t.Errorf("extent = %dx%d, want 1920x1080", got.Width, got.Height)
	}
}

func TestChooseExtentClampsWhenSurfaceIsFlexible(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: vk.Extent2D{Width: 2000, Height: 2000},
	}

	got := chooseExtent(caps, 640, 480)
	if got.Width != 640 || got.Height != 480 {
		t.Errorf("extent = %dx%d, want 640x480", got.Width, got.Height)
	}

	got = chooseExtent(caps, 10, 9000)
	if got.Width != 100 || got.Height != 2000 {
		t.Errorf("clamped extent = %dx%d, want 100x2000", got.Width, got.Height)
	}
}
