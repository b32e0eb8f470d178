package text

import (
	"testing"
)

func testFace(t *testing.T, size int) *Face {
	t.Helper()
	face, err := NewFace(BuiltinSource(), size)
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	return face
}

func TestRasterizeProducesCoverage(t *testing.T) {
	face := testFace(t, 16)

	bm, ok := face.Rasterize('A')
	if !ok {
		t.Fatal("font has no 'A'")
	}
	if bm.Width <= 0 || bm.Height <= 0 {
		t.Fatalf("bitmap %dx%d, want positive size", bm.Width, bm.Height)
	}
	if len(bm.Pix) != bm.Width*bm.Height {
		t.Fatalf("pix length %d, want %d", len(bm.Pix), bm.Width*bm.Height)
	}
	var covered bool
	for _, p := range bm.Pix {
		if p > 0 {
			covered = true
			break
		}
	}
	if !covered {
		t.Error("bitmap has no coverage at all")
	}
}

func TestRasterizeSpaceIsEmpty(t *testing.T) {
	face := testFace(t, 16)

	bm, ok := face.Rasterize(' ')
	if !ok {
		t.Fatal("font has no space glyph")
	}
	if bm.Width != 0 || bm.Height != 0 {
		t.Errorf("space bitmap %dx%d, want empty", bm.Width, bm.Height)
	}
}

func TestRasterizeIsCached(t *testing.T) {
	face := testFace(t, 16)

	a, _ := face.Rasterize('g')
	b, _ := face.Rasterize('g')
	if a != b {
		t.Error("repeated rasterization returned a different bitmap")
	}
}

func TestFaceSizesAreIndependent(t *testing.T) {
	small := testFace(t, 12)
	large := testFace(t, 48)

	sb, _ := small.Rasterize('M')
	lb, _ := large.Rasterize('M')
	if lb.Height <= sb.Height {
		t.Errorf("48px glyph height %d not larger than 12px height %d", lb.Height, sb.Height)
	}
	if large.LineHeight() <= small.LineHeight() {
		t.Error("line height did not scale with size")
	}
}

func TestSourceCacheSharesParsedFonts(t *testing.T) {
	if BuiltinSource() != BuiltinSource() {
		t.Error("builtin source parsed twice")
	}
}
