package render

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func projectPoint(m mgl32.Mat4, x, y float32) (float32, float32) {
	v := m.Mul4x1(mgl32.Vec4{x, y, 0, 1})
	return v.X(), v.Y()
}

func TestProjectionMapsDocumentToClipSpace(t *testing.T) {
	dev := newFakeDevice()
	proj, err := NewProjection(dev, 800, 600)
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}
	m := proj.Matrix()

	// Bottom-left of the document lands at the bottom of clip space,
	// which in Vulkan is +1.
	x, y := projectPoint(m, 0, 0)
	if !mgl32.FloatEqualThreshold(x, -1, 1e-5) || !mgl32.FloatEqualThreshold(y, 1, 1e-5) {
		t.Errorf("(0,0) -> (%g,%g), want (-1,1)", x, y)
	}
	x, y = projectPoint(m, 800, 600)
	if !mgl32.FloatEqualThreshold(x, 1, 1e-5) || !mgl32.FloatEqualThreshold(y, -1, 1e-5) {
		t.Errorf("(800,600) -> (%g,%g), want (1,-1)", x, y)
	}
	x, y = projectPoint(m, 400, 300)
	if !mgl32.FloatEqualThreshold(x, 0, 1e-5) || !mgl32.FloatEqualThreshold(y, 0, 1e-5) {
		t.Errorf("center -> (%g,%g), want (0,0)", x, y)
	}
}

func TestProjectionResizeRescales(t *testing.T) {
	dev := newFakeDevice()
	proj, err := NewProjection(dev, 800, 600)
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}
	buf := proj.Buffer()
	writes := len(dev.writes[buf])

	if err := proj.Update(1600, 1200); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Same document point, twice the window: half the clip-space offset.
	x, y := projectPoint(proj.Matrix(), 400, 300)
	if !mgl32.FloatEqualThreshold(x, -0.5, 1e-5) || !mgl32.FloatEqualThreshold(y, 0.5, 1e-5) {
		t.Errorf("(400,300) -> (%g,%g), want (-0.5,0.5)", x, y)
	}

	// The same buffer is rewritten in place, so existing descriptor sets
	// keep working without updates.
	if proj.Buffer() != buf {
		t.Error("resize replaced the projection buffer")
	}
	if len(dev.writes[buf]) != writes+1 {
		t.Errorf("resize produced %d writes, want 1", len(dev.writes[buf])-writes)
	}
}
