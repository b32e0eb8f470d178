package render

import (
	"atelier/internal/text"
)

// GlyphKey identifies one rasterized glyph: which font, which rune, at what
// pixel size.
type GlyphKey struct {
	Font  string
	Glyph rune
	Size  int
}

// GlyphInfo records where a glyph landed in the atlas. UVMin/UVMax are
// normalized texture coordinates; they stay valid for the atlas lifetime
// because placed glyphs never move.
type GlyphInfo struct {
	X, Y  int
	W, H  int
	UVMin [2]float32
	UVMax [2]float32
}

// GlyphAtlas packs rasterized glyph bitmaps into one single-channel texture
// using a simple row packer. Placement is append-only: a full atlas reports
// ErrAtlasFull and the caller degrades by skipping the glyph, never by
// repacking.
type GlyphAtlas struct {
	dev    deviceOps
	tex    *AtlasTexture
	set    *DescriptorSet
	width  int
	height int

	glyphs map[GlyphKey]GlyphInfo

	// row packer state
	cursorX int
	cursorY int
	rowH    int
}

const atlasPad = 1

// NewGlyphAtlas creates the atlas texture and its sampler descriptor set.
func NewGlyphAtlas(dev deviceOps, width, height int) (*GlyphAtlas, error) {
	tex, err := dev.createAtlasTexture(width, height)
	if err != nil {
		return nil, err
	}
	set, err := dev.allocAtlasSet()
	if err != nil {
		dev.destroyAtlasTexture(tex)
		return nil, err
	}
	dev.writeAtlasDescriptor(set, tex)
	return &GlyphAtlas{
		dev:    dev,
		tex:    tex,
		set:    set,
		width:  width,
		height: height,
		glyphs: make(map[GlyphKey]GlyphInfo),
	}, nil
}

// AddGlyph places the bitmap in the atlas and uploads it, or returns the
// existing placement if the key was added before. A glyph with no coverage
// (a space) gets a zero-size entry and no upload. When the bitmap does not
// fit, AddGlyph returns ErrAtlasFull and leaves the packer untouched, so a
// later smaller glyph may still succeed.
func (a *GlyphAtlas) AddGlyph(key GlyphKey, bm *text.Bitmap) (GlyphInfo, error) {
	if info, ok := a.glyphs[key]; ok {
		return info, nil
	}

	if bm == nil || bm.Width == 0 || bm.Height == 0 {
		info := GlyphInfo{}
		a.glyphs[key] = info
		return info, nil
	}

	x, y, rowH, ok := a.place(bm.Width, bm.Height)
	if !ok {
		return GlyphInfo{}, ErrAtlasFull
	}
	if err := a.dev.uploadAtlasRegion(a.tex, x, y, bm.Width, bm.Height, bm.Pix); err != nil {
		return GlyphInfo{}, err
	}

	a.cursorX = x + bm.Width + atlasPad
	a.cursorY = y
	a.rowH = rowH

	info := GlyphInfo{
		X: x, Y: y,
		W: bm.Width, H: bm.Height,
		UVMin: [2]float32{
			float32(x) / float32(a.width),
			float32(y) / float32(a.height),
		},
		UVMax: [2]float32{
			float32(x+bm.Width) / float32(a.width),
			float32(y+bm.Height) / float32(a.height),
		},
	}
	a.glyphs[key] = info
	return info, nil
}

// place computes a tentative position for a w*h rectangle without mutating
// packer state. It returns the position, the updated row height, and whether
// the rectangle fits.
func (a *GlyphAtlas) place(w, h int) (x, y, rowH int, ok bool) {
	if w > a.width || h > a.height {
		return 0, 0, 0, false
	}
	x, y, rowH = a.cursorX, a.cursorY, a.rowH
	if x+w > a.width {
		// wrap to the next row
		y += rowH + atlasPad
		x = 0
		rowH = 0
	}
	if y+h > a.height {
		return 0, 0, 0, false
	}
	if h > rowH {
		rowH = h
	}
	return x, y, rowH, true
}

// Lookup returns the placement for a previously added glyph.
func (a *GlyphAtlas) Lookup(key GlyphKey) (GlyphInfo, bool) {
	info, ok := a.glyphs[key]
	return info, ok
}

// Len reports how many glyphs the atlas holds, zero-size entries included.
func (a *GlyphAtlas) Len() int { return len(a.glyphs) }

// Set returns the descriptor set binding the atlas sampler.
func (a *GlyphAtlas) Set() *DescriptorSet { return a.set }

// Destroy frees the descriptor set and texture.
func (a *GlyphAtlas) Destroy() {
	if a.set != nil {
		a.dev.freeSet(a.set)
		a.set = nil
	}
	if a.tex != nil {
		a.dev.destroyAtlasTexture(a.tex)
		a.tex = nil
	}
}
