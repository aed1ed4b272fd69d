package textfield

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
	"golang.org/x/text/unicode/norm"
)

// Align is the horizontal alignment of text lines.
type Align uint8

const (
	AlignCenter Align = iota
	AlignLeft
	AlignRight
)

// TextConfig configures [Font.TextField].
type TextConfig struct {
	// Size of the box centered at the origin the text is fitted into while
	// keeping its aspect ratio. Z is the extrusion thickness.
	Size md3.Vec
	// Mode of the returned field.
	Mode fieldeval.Mode
	// Align sets the horizontal alignment of multi line text.
	Align Align
	// LineSpacing multiplies the font's line height. Zero means 1.
	LineSpacing float64
}

// TextField returns an extruded field of text. Lines are separated by '\n'
// and text is NFC normalized before glyph lookup. Kerning and advance widths
// set letter spacing.
func (f *Font) TextField(text string, cfg TextConfig) (fieldeval.Field, error) {
	if !f.loaded {
		return nil, errors.New("font not loaded")
	}
	if cfg.Size.X <= 0 || cfg.Size.Y <= 0 || cfg.Size.Z <= 0 {
		return nil, errors.New("text size must be positive")
	}
	if cfg.LineSpacing < 0 {
		return nil, errors.New("negative line spacing")
	}
	if cfg.Mode != fieldeval.ModeDistance && cfg.Mode != fieldeval.ModeDensity {
		return nil, fmt.Errorf("invalid mode %d", cfg.Mode)
	}
	spacing := cfg.LineSpacing
	if spacing == 0 {
		spacing = 1
	}
	text = norm.NFC.String(text)
	lineHeight := float64(f.lineHeight()) * spacing

	tf := &textField{mode: cfg.Mode, size: cfg.Size}
	for iline, line := range strings.Split(text, "\n") {
		glyphs, width, err := f.layoutLine(line)
		if err != nil {
			return nil, err
		}
		var xofs float64
		switch cfg.Align {
		case AlignRight:
			xofs = -width
		case AlignCenter:
			xofs = -width / 2
		}
		yofs := -float64(iline) * lineHeight
		for i := range glyphs {
			glyphs[i].translate(xofs, yofs)
		}
		tf.glyphs = append(tf.glyphs, glyphs...)
	}
	if len(tf.glyphs) == 0 {
		return nil, errors.New("no text provided")
	}
	tf.fit()
	return tf, nil
}

// layoutLine places the glyphs of a single line starting at x=0 on the baseline.
func (f *Font) layoutLine(s string) (placed []placedGlyph, width float64, err error) {
	var xOfs float64
	var prev rune
	first := true
	for _, c := range s {
		if c == '\t' {
			xOfs += 4 * float64(f.AdvanceWidth(' '))
			continue
		} else if unicode.IsSpace(c) {
			xOfs += float64(f.AdvanceWidth(c))
			continue
		} else if !unicode.IsGraphic(c) {
			return nil, 0, fmt.Errorf("char %q not graphic", c)
		}
		g, err := f.glyph(c)
		if err != nil {
			return nil, 0, fmt.Errorf("char %q: %w", c, err)
		}
		if !first {
			xOfs += float64(f.Kern(prev, c))
		}
		placed = append(placed, newPlacedGlyph(g, xOfs))
		xOfs += float64(f.AdvanceWidth(c))
		prev = c
		first = false
	}
	return placed, xOfs, nil
}

type segment struct {
	a, b [2]float64
}

// placedGlyph is a glyph outline positioned in the text's font unit frame.
type placedGlyph struct {
	segs     []segment
	min, max [2]float64
}

func newPlacedGlyph(g *glyph, xofs float64) placedGlyph {
	var pg placedGlyph
	for _, c := range g.contours {
		n := len(c)
		for i := range c {
			a, b := c[i], c[(i+1)%n]
			pg.segs = append(pg.segs, segment{
				a: [2]float64{float64(a.X) + xofs, float64(a.Y)},
				b: [2]float64{float64(b.X) + xofs, float64(b.Y)},
			})
		}
	}
	pg.min = [2]float64{float64(g.bounds.Min.X) + xofs, float64(g.bounds.Min.Y)}
	pg.max = [2]float64{float64(g.bounds.Max.X) + xofs, float64(g.bounds.Max.Y)}
	return pg
}

func (pg *placedGlyph) translate(x, y float64) {
	for i := range pg.segs {
		pg.segs[i].a[0] += x
		pg.segs[i].a[1] += y
		pg.segs[i].b[0] += x
		pg.segs[i].b[1] += y
	}
	pg.min[0] += x
	pg.min[1] += y
	pg.max[0] += x
	pg.max[1] += y
}

// distance returns the unsigned distance from p to the glyph outline and the
// glyph's winding number around p.
func (pg *placedGlyph) distance(p [2]float64, best float64) (d float64, winding int) {
	d = best
	for _, s := range pg.segs {
		d = math.Min(d, segmentDistance(p, s))
		a, b := s.a, s.b
		cross := (b[0]-a[0])*(p[1]-a[1]) - (p[0]-a[0])*(b[1]-a[1])
		if a[1] <= p[1] {
			if b[1] > p[1] && cross > 0 {
				winding++
			}
		} else if b[1] <= p[1] && cross < 0 {
			winding--
		}
	}
	return d, winding
}

// boxDistance is the distance from p to the glyph's bounding box, zero inside it.
func (pg *placedGlyph) boxDistance(p [2]float64) float64 {
	dx := math.Max(0, math.Max(pg.min[0]-p[0], p[0]-pg.max[0]))
	dy := math.Max(0, math.Max(pg.min[1]-p[1], p[1]-pg.max[1]))
	return math.Hypot(dx, dy)
}

func segmentDistance(p [2]float64, s segment) float64 {
	ex, ey := s.b[0]-s.a[0], s.b[1]-s.a[1]
	wx, wy := p[0]-s.a[0], p[1]-s.a[1]
	l2 := ex*ex + ey*ey
	t := 0.0
	if l2 > 0 {
		t = math.Max(0, math.Min(1, (wx*ex+wy*ey)/l2))
	}
	return math.Hypot(wx-t*ex, wy-t*ey)
}

type textField struct {
	fieldeval.InitFlag
	mode   fieldeval.Mode
	size   md3.Vec
	glyphs []placedGlyph
	// Font unit frame to field frame: p = (raw - center) * scale.
	center [2]float64
	scale  float64
}

// fit centers the text outline bounds at the origin and scales them to fit the configured size.
func (tf *textField) fit() {
	lo, hi := tf.glyphs[0].min, tf.glyphs[0].max
	for _, g := range tf.glyphs[1:] {
		lo[0], lo[1] = math.Min(lo[0], g.min[0]), math.Min(lo[1], g.min[1])
		hi[0], hi[1] = math.Max(hi[0], g.max[0]), math.Max(hi[1], g.max[1])
	}
	tf.center = [2]float64{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2}
	w, h := hi[0]-lo[0], hi[1]-lo[1]
	tf.scale = math.Min(tf.size.X/w, tf.size.Y/h)
}

func (tf *textField) Initialize() error {
	tf.MarkInitialized()
	return nil
}

func (tf *textField) Mode() fieldeval.Mode { return tf.mode }

func (tf *textField) Channels() int { return 1 }

func (tf *textField) Bounds() md3.Box {
	half := md3.Scale(0.5, tf.size)
	return md3.Box{Min: md3.Scale(-1, half), Max: half}
}

func (tf *textField) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	tf.MustBeInitialized("text")
	if err := fieldeval.CheckBuffers(samples, dst); err != nil {
		return err
	}
	halfZ := tf.size.Z / 2
	for i, s := range samples {
		d2 := tf.distance2D(s.Pos.X, s.Pos.Y)
		dz := math.Abs(s.Pos.Z) - halfZ
		d := math.Min(math.Max(d2, dz), 0) + math.Hypot(math.Max(d2, 0), math.Max(dz, 0))
		dst[i] = fieldeval.Value{}
		if tf.mode == fieldeval.ModeDensity {
			d = fieldeval.Density(d, s.Scale)
		}
		dst[i].V[0] = d
	}
	return nil
}

// distance2D returns the signed distance to the text outlines in the xy plane.
// Overlapping glyphs are combined by nonzero winding.
func (tf *textField) distance2D(x, y float64) float64 {
	p := [2]float64{x/tf.scale + tf.center[0], y/tf.scale + tf.center[1]}
	best := math.Inf(1)
	winding := 0
	for k := range tf.glyphs {
		g := &tf.glyphs[k]
		if bd := g.boxDistance(p); bd > 0 && bd >= best {
			// Outside the box the glyph does not wind around p.
			continue
		}
		d, w := g.distance(p, best)
		best = d
		winding += w
	}
	if winding != 0 {
		best = -best
	}
	return best * tf.scale
}
