package fabfield

import (
	"math"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
)

type tpmsKind uint8

const (
	tpmsGyroid tpmsKind = iota
	tpmsSchwarzP
	tpmsSchwarzD
)

// tpms is a triply periodic minimal surface thickened into a shell.
type tpms struct {
	prim
	kind   tpmsKind
	factor float64
	thick  float64
	level  float64
}

// NewGyroid creates an infinite gyroid shell with the given period, half thickness and level set value.
func (bld *Builder) NewGyroid(period, thickness, level float64) fieldeval.Field {
	return bld.newTPMS(tpmsGyroid, period, thickness, level)
}

// NewSchwarzP creates an infinite Schwarz P surface shell.
func (bld *Builder) NewSchwarzP(period, thickness, level float64) fieldeval.Field {
	return bld.newTPMS(tpmsSchwarzP, period, thickness, level)
}

// NewSchwarzD creates an infinite Schwarz D (diamond) surface shell.
func (bld *Builder) NewSchwarzD(period, thickness, level float64) fieldeval.Field {
	return bld.newTPMS(tpmsSchwarzD, period, thickness, level)
}

func (bld *Builder) newTPMS(kind tpmsKind, period, thickness, level float64) fieldeval.Field {
	if period <= 0 {
		bld.shapeErrorf("zero or negative pattern period")
		period = 1
	}
	if thickness < 0 {
		bld.shapeErrorf("negative pattern thickness")
	}
	t := &tpms{kind: kind, factor: 2 * math.Pi / period, thick: thickness, level: level}
	t.mode = bld.mode
	return t
}

func (t *tpms) Bounds() md3.Box { return infiniteBox }

func (t *tpms) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	t.MustBeInitialized("pattern")
	f := t.factor
	for i, s := range samples {
		x, y, z := s.Pos.X*f, s.Pos.Y*f, s.Pos.Z*f
		var v float64
		switch t.kind {
		case tpmsGyroid:
			v = math.Sin(x)*math.Cos(y) + math.Sin(y)*math.Cos(z) + math.Sin(z)*math.Cos(x)
		case tpmsSchwarzP:
			v = math.Cos(x) + math.Cos(y) + math.Cos(z)
		case tpmsSchwarzD:
			sx, cx := math.Sincos(x)
			sy, cy := math.Sincos(y)
			sz, cz := math.Sincos(z)
			v = sx*sy*sz + sx*cy*cz + cx*sy*cz + cx*cy*sz
		}
		t.set(&dst[i], math.Abs(v-t.level)/f-t.thick, s.Scale)
	}
	return nil
}
