package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"atelier/internal/render"
	"atelier/internal/text"
)

func triangle() *render.Mesh {
	return render.NewMesh([]mgl32.Vec2{{0, 0}, {10, 0}, {5, 10}})
}

func TestFrameCommandsSortByDepth(t *testing.T) {
	s := New()
	back := s.AddShape(triangle(), Transform{}, 1, "v", "f")
	front := s.AddShape(triangle(), Transform{}, 5, "v", "f")
	mid := s.AddShape(triangle(), Transform{}, 3, "v", "f")

	shapes, _ := s.FrameCommands()
	if len(shapes) != 3 {
		t.Fatalf("commands = %d, want 3", len(shapes))
	}
	want := []render.EntityID{back, mid, front}
	for i, id := range want {
		if shapes[i].Entity != id {
			t.Errorf("position %d has entity %d, want %d", i, shapes[i].Entity, id)
		}
	}
}

func TestDirtyFlagsAreConsumed(t *testing.T) {
	s := New()
	id := s.AddShape(triangle(), Transform{}, 0, "v", "f")

	shapes, _ := s.FrameCommands()
	if !shapes[0].VerticesChanged {
		t.Error("fresh shape not marked changed")
	}
	shapes, _ = s.FrameCommands()
	if shapes[0].VerticesChanged {
		t.Error("unedited shape still marked changed")
	}

	s.SetShapeMesh(id, triangle())
	shapes, _ = s.FrameCommands()
	if !shapes[0].VerticesChanged {
		t.Error("mesh edit not marked changed")
	}
}

func TestTransformEditDoesNotDirtyMesh(t *testing.T) {
	s := New()
	id := s.AddShape(triangle(), Transform{}, 0, "v", "f")
	s.FrameCommands()

	s.SetShapeTransform(id, Transform{Position: mgl32.Vec2{50, 10}})
	shapes, _ := s.FrameCommands()
	if shapes[0].VerticesChanged {
		t.Error("transform edit marked vertices changed")
	}
	wantX := shapes[0].Transform.At(0, 3)
	if wantX != 50 {
		t.Errorf("transform x = %g, want 50", wantX)
	}
}

func TestRemovedEntityStopsAppearing(t *testing.T) {
	s := New()
	keep := s.AddShape(triangle(), Transform{}, 0, "v", "f")
	gone := s.AddShape(triangle(), Transform{}, 1, "v", "f")
	s.FrameCommands()

	if !s.Remove(gone) {
		t.Fatal("Remove returned false for live entity")
	}
	shapes, _ := s.FrameCommands()
	if len(shapes) != 1 || shapes[0].Entity != keep {
		t.Errorf("commands after removal = %+v", shapes)
	}
	if s.Remove(gone) {
		t.Error("Remove returned true for dead entity")
	}
}

func TestTextContentEditMarksChanged(t *testing.T) {
	face, err := text.NewFace(text.BuiltinSource(), 14)
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	s := New()
	id := s.AddText(face, "one", Transform{}, 0)

	_, texts := s.FrameCommands()
	if !texts[0].Changed {
		t.Error("fresh text not marked changed")
	}
	_, texts = s.FrameCommands()
	if texts[0].Changed {
		t.Error("unedited text still marked changed")
	}

	s.SetTextContent(id, "two")
	_, texts = s.FrameCommands()
	if !texts[0].Changed {
		t.Error("content edit not marked changed")
	}

	// Setting identical content is a no-op.
	s.SetTextContent(id, "two")
	_, texts = s.FrameCommands()
	if texts[0].Changed {
		t.Error("no-op content edit marked changed")
	}
}

func TestTransformMatrixComposition(t *testing.T) {
	tr := Transform{Position: mgl32.Vec2{100, 50}, Scale: mgl32.Vec2{2, 2}}
	m := tr.Matrix()
	v := m.Mul4x1(mgl32.Vec4{10, 0, 0, 1})
	if v.X() != 120 || v.Y() != 50 {
		t.Errorf("transformed point = (%g,%g), want (120,50)", v.X(), v.Y())
	}

	// Zero scale means unset, not invisible.
	id := Transform{Position: mgl32.Vec2{5, 5}}
	v = id.Matrix().Mul4x1(mgl32.Vec4{1, 1, 0, 1})
	if v.X() != 6 || v.Y() != 6 {
		t.Errorf("default scale point = (%g,%g), want (6,6)", v.X(), v.Y())
	}
}
