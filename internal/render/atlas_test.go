package render

import (
	"errors"
	"testing"

	"atelier/internal/text"
)

func testBitmap(w, h int) *text.Bitmap {
	return &text.Bitmap{Width: w, Height: h, Pix: make([]byte, w*h)}
}

func newTestAtlas(t *testing.T, size int) (*fakeDevice, *GlyphAtlas) {
	t.Helper()
	dev := newFakeDevice()
	atlas, err := NewGlyphAtlas(dev, size, size)
	if err != nil {
		t.Fatalf("NewGlyphAtlas: %v", err)
	}
	return dev, atlas
}

func TestAddGlyphIsIdempotent(t *testing.T) {
	dev, atlas := newTestAtlas(t, 64)

	key := GlyphKey{Font: "go-regular", Glyph: 'A', Size: 16}
	first, err := atlas.AddGlyph(key, testBitmap(10, 12))
	if err != nil {
		t.Fatalf("AddGlyph: %v", err)
	}
	second, err := atlas.AddGlyph(key, testBitmap(10, 12))
	if err != nil {
		t.Fatalf("AddGlyph repeat: %v", err)
	}
	if first != second {
		t.Errorf("repeat placement %+v differs from first %+v", second, first)
	}
	if len(dev.uploads) != 1 {
		t.Errorf("uploads = %d, want 1", len(dev.uploads))
	}
}

func TestAddGlyphWrapsToNextRow(t *testing.T) {
	_, atlas := newTestAtlas(t, 32)

	// Three 12-wide glyphs: the third does not fit in a 32-wide row.
	var infos []GlyphInfo
	for _, r := range []rune{'a', 'b', 'c'} {
		info, err := atlas.AddGlyph(GlyphKey{Font: "f", Glyph: r, Size: 10}, testBitmap(12, 8))
		if err != nil {
			t.Fatalf("AddGlyph %c: %v", r, err)
		}
		infos = append(infos, info)
	}
	if infos[1].Y != infos[0].Y {
		t.Errorf("second glyph changed rows: y = %d", infos[1].Y)
	}
	if infos[2].Y <= infos[0].Y {
		t.Errorf("third glyph did not wrap: y = %d", infos[2].Y)
	}
	if infos[2].X != 0 {
		t.Errorf("wrapped glyph x = %d, want 0", infos[2].X)
	}
}

func TestAtlasFullLeavesStateUsable(t *testing.T) {
	dev, atlas := newTestAtlas(t, 16)

	if _, err := atlas.AddGlyph(GlyphKey{Font: "f", Glyph: 'a', Size: 10}, testBitmap(12, 12)); err != nil {
		t.Fatalf("AddGlyph: %v", err)
	}
	uploads := len(dev.uploads)

	// Too tall for the remaining space.
	_, err := atlas.AddGlyph(GlyphKey{Font: "f", Glyph: 'b', Size: 10}, testBitmap(12, 12))
	if !errors.Is(err, ErrAtlasFull) {
		t.Fatalf("err = %v, want ErrAtlasFull", err)
	}
	if len(dev.uploads) != uploads {
		t.Error("failed placement still uploaded")
	}
	if _, ok := atlas.Lookup(GlyphKey{Font: "f", Glyph: 'b', Size: 10}); ok {
		t.Error("failed glyph was recorded")
	}

	// A smaller glyph must still fit: the failed attempt moved nothing.
	info, err := atlas.AddGlyph(GlyphKey{Font: "f", Glyph: 'c', Size: 10}, testBitmap(3, 3))
	if err != nil {
		t.Fatalf("AddGlyph small after full: %v", err)
	}
	if info.W != 3 || info.H != 3 {
		t.Errorf("small glyph placement = %+v", info)
	}
}

func TestOversizedGlyphRejected(t *testing.T) {
	_, atlas := newTestAtlas(t, 16)
	_, err := atlas.AddGlyph(GlyphKey{Font: "f", Glyph: 'W', Size: 99}, testBitmap(20, 4))
	if !errors.Is(err, ErrAtlasFull) {
		t.Fatalf("err = %v, want ErrAtlasFull", err)
	}
}

func TestEmptyBitmapGetsZeroSizeEntry(t *testing.T) {
	dev, atlas := newTestAtlas(t, 32)

	key := GlyphKey{Font: "f", Glyph: ' ', Size: 12}
	info, err := atlas.AddGlyph(key, &text.Bitmap{})
	if err != nil {
		t.Fatalf("AddGlyph: %v", err)
	}
	if info.W != 0 || info.H != 0 {
		t.Errorf("placement = %+v, want zero size", info)
	}
	if len(dev.uploads) != 0 {
		t.Error("empty bitmap was uploaded")
	}
	if _, ok := atlas.Lookup(key); !ok {
		t.Error("zero-size entry not recorded")
	}
}

func TestGlyphUVsAreStable(t *testing.T) {
	_, atlas := newTestAtlas(t, 64)

	key := GlyphKey{Font: "f", Glyph: 'x', Size: 14}
	info, err := atlas.AddGlyph(key, testBitmap(8, 8))
	if err != nil {
		t.Fatalf("AddGlyph: %v", err)
	}

	// Later additions must not move existing glyphs.
	for _, r := range []rune{'y', 'z', 'q'} {
		if _, err := atlas.AddGlyph(GlyphKey{Font: "f", Glyph: r, Size: 14}, testBitmap(8, 8)); err != nil {
			t.Fatalf("AddGlyph %c: %v", r, err)
		}
	}
	after, _ := atlas.Lookup(key)
	if after != info {
		t.Errorf("placement moved from %+v to %+v", info, after)
	}
	if after.UVMin[0] < 0 || after.UVMax[0] > 1 || after.UVMin[1] < 0 || after.UVMax[1] > 1 {
		t.Errorf("uvs out of range: %+v", after)
	}
}

func TestGlyphKeyDistinguishesFontAndSize(t *testing.T) {
	dev, atlas := newTestAtlas(t, 64)

	a := GlyphKey{Font: "serif", Glyph: 'g', Size: 12}
	b := GlyphKey{Font: "serif", Glyph: 'g', Size: 24}
	c := GlyphKey{Font: "mono", Glyph: 'g', Size: 12}
	for _, key := range []GlyphKey{a, b, c} {
		if _, err := atlas.AddGlyph(key, testBitmap(6, 6)); err != nil {
			t.Fatalf("AddGlyph %+v: %v", key, err)
		}
	}
	if atlas.Len() != 3 {
		t.Errorf("atlas holds %d glyphs, want 3", atlas.Len())
	}
	if len(dev.uploads) != 3 {
		t.Errorf("uploads = %d, want 3", len(dev.uploads))
	}
}
