package text

// PlacedGlyph is one glyph positioned in layout-local space. X and Y are the
// bottom-left corner of the glyph quad; the coordinate system is y-up with
// the first baseline at y=0. W and H match the glyph's coverage bitmap.
type PlacedGlyph struct {
	Rune rune
	X    float32
	Y    float32
	W    int
	H    int
}

// Layout is the positioned form of a string at one face. It is immutable
// once built; the renderer turns it into quads without re-measuring.
type Layout struct {
	face   *Face
	text   string
	glyphs []PlacedGlyph
	width  float32
	lines  int
}

// LayoutString walks the string with the face's metrics and places a quad
// per visible glyph. Newlines start a fresh line one line-height down.
// Runes the font cannot render are skipped.
func LayoutString(face *Face, s string) *Layout {
	l := &Layout{face: face, text: s, lines: 1}

	var penX, penY float32
	for _, r := range s {
		if r == '\n' {
			penX = 0
			penY -= face.LineHeight()
			l.lines++
			continue
		}
		g := face.glyph(r)
		if !g.ok {
			continue
		}
		if g.bitmap.Width > 0 && g.bitmap.Height > 0 {
			l.glyphs = append(l.glyphs, PlacedGlyph{
				Rune: r,
				X:    penX + g.left,
				Y:    penY + g.top - float32(g.bitmap.Height),
				W:    g.bitmap.Width,
				H:    g.bitmap.Height,
			})
		}
		penX += g.advance
		if penX > l.width {
			l.width = penX
		}
	}
	return l
}

// Face returns the face the layout was built with.
func (l *Layout) Face() *Face { return l.face }

// Text returns the source string.
func (l *Layout) Text() string { return l.text }

// Glyphs returns the placed glyphs in string order.
func (l *Layout) Glyphs() []PlacedGlyph { return l.glyphs }

// Width returns the widest line's advance width.
func (l *Layout) Width() float32 { return l.width }

// Lines returns the number of lines, counting the last even if empty.
func (l *Layout) Lines() int { return l.lines }
