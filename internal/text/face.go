package text

import (
	"fmt"
	"image"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Bitmap is a tightly packed single-channel coverage image for one glyph.
type Bitmap struct {
	Width  int
	Height int
	Pix    []byte
}

// Source is a parsed font file. Faces at different sizes share one source.
type Source struct {
	font *opentype.Font
	name string
}

var (
	sourceMu    sync.Mutex
	sourceCache = map[string]*Source{}
)

// LoadSource parses a TTF/OTF file, caching by path.
func LoadSource(path string) (*Source, error) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	if src, ok := sourceCache[path]; ok {
		return src, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	src := &Source{font: f, name: path}
	sourceCache[path] = src
	return src, nil
}

// BuiltinSource returns the embedded Go Regular font, used when no font file
// is configured.
func BuiltinSource() *Source {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	const name = "builtin:goregular"
	if src, ok := sourceCache[name]; ok {
		return src
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		// The embedded font is known good.
		panic("parse embedded font: " + err.Error())
	}
	src := &Source{font: f, name: name}
	sourceCache[name] = src
	return src
}

// Name returns the identifier the source was loaded under.
func (s *Source) Name() string { return s.name }

type glyphData struct {
	bitmap  *Bitmap
	advance float32
	// left and top place the bitmap relative to the pen position, in a
	// y-up coordinate system with the baseline at y=0.
	left float32
	top  float32
	ok   bool
}

// Face is a font source fixed at one pixel size. Rasterization results are
// cached per rune. Methods are safe for concurrent use.
type Face struct {
	src  *Source
	size int

	mu     sync.Mutex
	face   font.Face
	glyphs map[rune]*glyphData

	ascent     float32
	descent    float32
	lineHeight float32
}

// NewFace creates a face at the given pixel size.
func NewFace(src *Source, size int) (*Face, error) {
	face, err := opentype.NewFace(src.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face %s@%d: %w", src.name, size, err)
	}
	m := face.Metrics()
	return &Face{
		src:        src,
		size:       size,
		face:       face,
		glyphs:     make(map[rune]*glyphData),
		ascent:     fixedToFloat(m.Ascent),
		descent:    fixedToFloat(m.Descent),
		lineHeight: fixedToFloat(m.Height),
	}, nil
}

// FontName returns the name of the underlying source.
func (f *Face) FontName() string { return f.src.name }

// Size returns the pixel size the face was created at.
func (f *Face) Size() int { return f.size }

// LineHeight returns the recommended baseline-to-baseline distance.
func (f *Face) LineHeight() float32 { return f.lineHeight }

// Ascent returns the distance from the baseline to the top of a line.
func (f *Face) Ascent() float32 { return f.ascent }

// Rasterize returns the coverage bitmap for a rune, or ok=false if the font
// has no glyph for it. Glyphs without coverage, like spaces, return a
// zero-size bitmap.
func (f *Face) Rasterize(r rune) (*Bitmap, bool) {
	g := f.glyph(r)
	return g.bitmap, g.ok
}

func (f *Face) glyph(r rune) *glyphData {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.glyphs[r]; ok {
		return g
	}

	dr, mask, maskp, advance, ok := f.face.Glyph(fixed.P(0, 0), r)
	g := &glyphData{ok: ok}
	if ok {
		g.advance = fixedToFloat(advance)
		g.left = float32(dr.Min.X)
		g.top = float32(-dr.Min.Y)
		g.bitmap = copyMask(mask, maskp, dr.Dx(), dr.Dy())
	} else {
		g.bitmap = &Bitmap{}
	}
	f.glyphs[r] = g
	return g
}

// copyMask lifts the glyph coverage out of the rasterizer's reusable mask
// into a tight standalone bitmap.
func copyMask(mask image.Image, maskp image.Point, w, h int) *Bitmap {
	bm := &Bitmap{Width: w, Height: h}
	if w == 0 || h == 0 {
		bm.Width, bm.Height = 0, 0
		return bm
	}
	bm.Pix = make([]byte, w*h)
	if a, ok := mask.(*image.Alpha); ok {
		for y := 0; y < h; y++ {
			off := (maskp.Y+y-a.Rect.Min.Y)*a.Stride + (maskp.X - a.Rect.Min.X)
			copy(bm.Pix[y*w:(y+1)*w], a.Pix[off:off+w])
		}
		return bm
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			_, _, _, alpha := mask.At(maskp.X+x, maskp.Y+y).RGBA()
			bm.Pix[y*w+x] = byte(alpha >> 8)
		}
	}
	return bm
}

func fixedToFloat(v fixed.Int26_6) float32 {
	return float32(v) / 64
}
