// Package textfield builds extruded text fields from TrueType fonts.
package textfield

import (
	"errors"
	"fmt"

	"github.com/golang/freetype/truetype"
	"github.com/soypat/glgl/math/ms2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

const firstBasic = '!'
const lastBasic = '~'

type FontConfig struct {
	// RelativeGlyphTolerance sets the permissible curve tolerance for glyphs. Must be between 0..1. If zero a reasonable value is chosen.
	RelativeGlyphTolerance float32
}

// Font implements font parsing and glyph outline generation.
// A Font is not safe for concurrent use; the fields it returns are.
type Font struct {
	ttf truetype.Font
	gb  truetype.GlyphBuf
	// basicGlyphs optimized array access for common ASCII glyphs.
	basicGlyphs [lastBasic - firstBasic + 1]*glyph
	// Other kinds of glyphs.
	otherGlyphs map[rune]*glyph
	reltol      float32 // Set by config or reset call if zeroed.
	loaded      bool
}

// GoRegular returns a Font loaded with the Go Regular typeface.
func GoRegular() (*Font, error) {
	var f Font
	if err := f.LoadTTFBytes(goregular.TTF); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Font) Configure(cfg FontConfig) error {
	if cfg.RelativeGlyphTolerance < 0 || cfg.RelativeGlyphTolerance >= 1 {
		return errors.New("invalid RelativeGlyphTolerance")
	}
	f.reltol = cfg.RelativeGlyphTolerance
	f.reset()
	return nil
}

// LoadTTFBytes loads a TTF file blob into f. After calling Load the Font is ready to generate text fields.
func (f *Font) LoadTTFBytes(ttf []byte) error {
	font, err := truetype.Parse(ttf)
	if err != nil {
		return fmt.Errorf("parsing font: %w", err)
	}
	f.reset()
	f.ttf = *font
	f.loaded = true
	return nil
}

// reset resets most internal state of Font without removing underlying assigned font.
func (f *Font) reset() {
	for i := range f.basicGlyphs {
		f.basicGlyphs[i] = nil
	}
	if f.otherGlyphs == nil {
		f.otherGlyphs = make(map[rune]*glyph)
	} else {
		clear(f.otherGlyphs)
	}
	if f.reltol == 0 {
		f.reltol = 0.15
	}
}

// glyph is a character outline in font units. Contours are closed polylines.
type glyph struct {
	contours [][]ms2.Vec
	bounds   ms2.Box
}

// Kern returns the horizontal adjustment for the given glyph pair. A positive kern means to move the glyphs further apart.
func (f *Font) Kern(c0, c1 rune) float32 {
	return float32(f.ttf.Kern(f.scale(), f.ttf.Index(c0), f.ttf.Index(c1)))
}

// AdvanceWidth returns the horizontal distance from the start of c to the start of the next glyph.
func (f *Font) AdvanceWidth(c rune) float32 {
	return float32(f.ttf.HMetric(f.scale(), f.ttf.Index(c)).AdvanceWidth)
}

// lineHeight returns the baseline to baseline distance in font units.
func (f *Font) lineHeight() float32 {
	face := truetype.NewFace(&f.ttf, &truetype.Options{
		Size:    float64(f.scale()) / 64,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	defer face.Close()
	return float32(face.Metrics().Height)
}

// glyph returns the outline of c, creating and caching it on first use.
func (f *Font) glyph(c rune) (g *glyph, err error) {
	if c >= firstBasic && c <= lastBasic {
		// Basic ASCII glyph case.
		g = f.basicGlyphs[c-firstBasic]
		if g == nil {
			g, err = f.makeGlyph(c)
			if err != nil {
				return nil, err
			}
			f.basicGlyphs[c-firstBasic] = g
		}
		return g, nil
	}
	// Unicode or other glyph.
	g, ok := f.otherGlyphs[c]
	if !ok {
		g, err = f.makeGlyph(c)
		if err != nil {
			return nil, err
		}
		f.otherGlyphs[c] = g
	}
	return g, nil
}

func (f *Font) scale() fixed.Int26_6 {
	return fixed.Int26_6(f.ttf.FUnitsPerEm())
}

func (f *Font) makeGlyph(char rune) (*glyph, error) {
	g := &f.gb
	idx := f.ttf.Index(char)
	err := g.Load(&f.ttf, f.scale(), idx, font.HintingNone)
	if err != nil {
		return nil, err
	} else if len(g.Ends) == 0 {
		return nil, errors.New("glyph has no outline")
	}
	// Tolerance is relative to the font's smallest bounding dimension.
	bb := f.ttf.Bounds(f.scale())
	tol := f.reltol * float32(min(bb.Max.X-bb.Min.X, bb.Max.Y-bb.Min.Y))
	out := &glyph{}
	start := 0
	for _, end := range g.Ends {
		poly := glyphCurve(g.Points, start, end, tol)
		start = end
		if len(poly) < 3 {
			continue
		}
		out.contours = append(out.contours, poly)
	}
	if len(out.contours) == 0 {
		return nil, errors.New("glyph has no closed contours")
	}
	out.bounds = ms2.Box{Min: out.contours[0][0], Max: out.contours[0][0]}
	for _, c := range out.contours {
		for _, v := range c {
			out.bounds.Min = ms2.MinElem(out.bounds.Min, v)
			out.bounds.Max = ms2.MaxElem(out.bounds.Max, v)
		}
	}
	return out, nil
}

// glyphCurve samples a TrueType contour into a polyline. Off curve points are
// quadratic bezier controls, consecutive off curve points have an implicit on curve midpoint.
func glyphCurve(points []truetype.Point, start, end int, tol float32) []ms2.Vec {
	sampler := ms2.Spline3Sampler{Spline: quadBezier, Tolerance: tol}
	points = points[start:end]
	n := len(points)
	i := 0
	var poly []ms2.Vec
	for i < n {
		p0, p1, p2 := points[i], points[(i+1)%n], points[(i+2)%n]
		onBits := onbits3(points, 0, n, i)
		v0, v1, v2 := p2v(p0), p2v(p1), p2v(p2)
		implicit0 := ms2.Scale(0.5, ms2.Add(v0, v1))
		implicit1 := ms2.Scale(0.5, ms2.Add(v1, v2))
		switch onBits {
		case 0b010, 0b110, 0b011, 0b111:
			// Straight line.
			poly = append(poly, v0)
			i += 1
			continue

		case 0b000:
			// implicit-off-implicit.
			sampler.SetSplinePoints(implicit0, v1, implicit1, ms2.Vec{})
			v0 = implicit0
			i += 1

		case 0b001:
			// on-off-implicit.
			sampler.SetSplinePoints(v0, v1, implicit1, ms2.Vec{})
			i += 1

		case 0b100:
			// implicit-off-on.
			sampler.SetSplinePoints(implicit0, v1, v2, ms2.Vec{})
			v0 = implicit0
			i += 2

		case 0b101:
			// On-off-on.
			sampler.SetSplinePoints(v0, v1, v2, ms2.Vec{})
			i += 2
		}
		poly = append(poly, v0)
		poly = sampler.SampleBisect(poly, 4)
	}
	return poly
}

func p2v(p truetype.Point) ms2.Vec {
	return ms2.Vec{X: float32(p.X), Y: float32(p.Y)}
}

var quadBezier = ms2.NewSpline3([]float32{
	1, 0, 0, 0,
	-2, 2, 0, 0,
	1, -2, 1, 0,
	0, 0, 0, 0,
})

func onbits3(points []truetype.Point, start, end, i int) uint32 {
	n := end - start
	p0, p1, p2 := points[i], points[start+(i+1)%n], points[start+(i+2)%n]
	return p0.Flags&1 |
		(p1.Flags&1)<<1 |
		(p2.Flags&1)<<2
}
