package fabfield

import (
	"errors"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/grid"
	"github.com/soypat/geometry/md3"
)

// NewGridField creates a field that samples channel ch of a frozen grid with trilinear interpolation.
// The channel's kind must match the builder's mode. Color channels of the grid's layout are
// emitted as color. Samples outside the grid's bounds are out of range.
func (bld *Builder) NewGridField(g grid.AttributeGrid, ch int) fieldeval.Field {
	if g == nil {
		bld.shapeErrorf("nil grid")
		return bld.NewConstant(fieldeval.NoContribution(bld.mode))
	}
	l := g.Layout()
	if ch < 0 || ch >= len(l.Channels) {
		bld.shapeErrorf("grid channel %d out of range [0,%d)", ch, len(l.Channels))
		ch = 0
	}
	kind := l.Channels[ch].Kind
	switch {
	case kind == grid.KindDistance && bld.mode == fieldeval.ModeDistance:
	case kind == grid.KindDensity && bld.mode == fieldeval.ModeDensity:
	default:
		bld.shapeErrorf("grid channel of kind %s can not be sampled in %s mode", kind, bld.mode)
	}
	gf := &gridField{g: g, ch: ch, colorCh: [3]int{-1, -1, -1}}
	for i, k := range [3]grid.Kind{grid.KindColorRed, grid.KindColorGreen, grid.KindColorBlue} {
		if idx, ok := l.Find(k); ok {
			gf.colorCh[i] = idx
			gf.hasColor = true
		}
	}
	gf.mode = bld.mode
	return gf
}

type gridField struct {
	node
	g        grid.AttributeGrid
	ch       int
	colorCh  [3]int
	hasColor bool
}

func (gf *gridField) Initialize() error {
	if gf.Initialized() {
		return nil
	}
	if !gf.g.Frozen() {
		return errors.New("grid field requires a frozen grid")
	}
	gf.MarkInitialized()
	return nil
}

func (gf *gridField) Channels() int {
	if gf.hasColor {
		return fieldeval.MaxChannels
	}
	return 1
}

func (gf *gridField) Bounds() md3.Box { return gf.g.Bounds().Box }

func (gf *gridField) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	gf.MustBeInitialized("gridfield")
	bb := gf.g.Bounds().Box
	for i, s := range samples {
		p := s.Pos
		if p.X < bb.Min.X || p.Y < bb.Min.Y || p.Z < bb.Min.Z || p.X > bb.Max.X || p.Y > bb.Max.Y || p.Z > bb.Max.Z {
			fieldeval.SetNoContribution(&dst[i], gf.mode)
			continue
		}
		dst[i] = fieldeval.Value{}
		dst[i].V[0] = grid.SampleTrilinear(gf.g, gf.ch, p)
		if gf.hasColor {
			for c, idx := range gf.colorCh {
				if idx >= 0 {
					dst[i].V[fieldeval.ChanRed+c] = grid.SampleTrilinear(gf.g, idx, p)
				}
			}
			dst[i].V[fieldeval.ChanAlpha] = 1
		}
	}
	return nil
}
