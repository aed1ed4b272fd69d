package fabfield

import (
	"fmt"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
)

// Colored attaches a constant color to f. Color components are in [0,1].
// The resulting field has [fieldeval.MaxChannels] channels with alpha set to 1.
func (bld *Builder) Colored(f fieldeval.Field, r, g, b float64) fieldeval.Field {
	if f == nil {
		bld.nilfield("Colored")
	}
	for _, c := range [3]float64{r, g, b} {
		if !(c >= 0 && c <= 1) {
			bld.shapeErrorf("color component %g outside [0,1]", c)
		}
	}
	c := &colored{f: f, rgb: [3]float64{r, g, b}}
	c.mode = f.Mode()
	return c
}

type colored struct {
	node
	f   fieldeval.Field
	rgb [3]float64
}

func (c *colored) Initialize() error {
	if c.Initialized() {
		return nil
	}
	if err := c.f.Initialize(); err != nil {
		return err
	}
	c.MarkInitialized()
	return nil
}

func (c *colored) Channels() int   { return fieldeval.MaxChannels }
func (c *colored) Bounds() md3.Box { return c.f.Bounds() }

func (c *colored) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	c.MustBeInitialized("colored")
	err := c.f.Evaluate(samples, dst, userData)
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i].V[fieldeval.ChanRed] = c.rgb[0]
		dst[i].V[fieldeval.ChanGreen] = c.rgb[1]
		dst[i].V[fieldeval.ChanBlue] = c.rgb[2]
		dst[i].V[fieldeval.ChanAlpha] = 1
	}
	return nil
}

// ComposeOp is a Porter-Duff compositing operator applied to density and color.
type ComposeOp uint8

const (
	ComposeA      ComposeOp = iota + 1 // A only.
	ComposeB                           // B only.
	ComposeBoverA                      // Union, B's material wins.
	ComposeAoverB                      // Union, A's material wins.
	ComposeAinB                        // A clipped to B.
	ComposeBinA                        // B clipped to A.
	ComposeAoutB                       // A minus B.
	ComposeBoutA                       // B minus A.
	ComposeAatopB                      // B's shape, A's material where present.
	ComposeBatopA                      // A's shape, B's material where present.
	ComposeAxorB                       // Exclusive union.
)

func (op ComposeOp) String() string {
	switch op {
	case ComposeA:
		return "A"
	case ComposeB:
		return "B"
	case ComposeBoverA:
		return "BoverA"
	case ComposeAoverB:
		return "AoverB"
	case ComposeAinB:
		return "AinB"
	case ComposeBinA:
		return "BinA"
	case ComposeAoutB:
		return "AoutB"
	case ComposeBoutA:
		return "BoutA"
	case ComposeAatopB:
		return "AatopB"
	case ComposeBatopA:
		return "BatopA"
	case ComposeAxorB:
		return "AxorB"
	}
	return fmt.Sprintf("ComposeOp(%d)", uint8(op))
}

// factors returns the Porter-Duff weights of a and b given their coverages.
func (op ComposeOp) factors(Da, Db float64) (fa, fb float64) {
	switch op {
	case ComposeA:
		return 1, 0
	case ComposeB:
		return 0, 1
	case ComposeBoverA:
		return 1 - Db, 1
	case ComposeAoverB:
		return 1, 1 - Da
	case ComposeAinB:
		return Db, 0
	case ComposeBinA:
		return 0, Da
	case ComposeAoutB:
		return 1 - Db, 0
	case ComposeBoutA:
		return 0, 1 - Da
	case ComposeAatopB:
		return Db, 1 - Da
	case ComposeBatopA:
		return 1 - Db, Da
	case ComposeAxorB:
		return 1 - Db, 1 - Da
	}
	return 0, 0
}

// Compose composites density fields a and b with op. Colors are composed premultiplied by density.
// Only valid in density mode.
func (bld *Builder) Compose(op ComposeOp, a, b fieldeval.Field) fieldeval.Field {
	if a == nil || b == nil {
		bld.nilfield("Compose")
	}
	if op < ComposeA || op > ComposeAxorB {
		bld.shapeErrorf("invalid compose operator %s", op)
	}
	if bld.mode != fieldeval.ModeDensity {
		bld.shapeErrorf("Compose requires density mode")
	}
	bld.checkMode("Compose", fieldeval.ModeDensity, a, b)
	c := &compose{op: op, a: a, b: b}
	c.mode = fieldeval.ModeDensity
	return c
}

type compose struct {
	node
	op   ComposeOp
	a, b fieldeval.Field
}

func (c *compose) Initialize() error {
	if c.Initialized() {
		return nil
	}
	if err := initAll(c.a, c.b); err != nil {
		return err
	}
	c.MarkInitialized()
	return nil
}

func (c *compose) Channels() int { return maxChannels(c.a, c.b) }

func (c *compose) Bounds() md3.Box {
	switch c.op {
	case ComposeA, ComposeAoutB:
		return c.a.Bounds()
	case ComposeB, ComposeBoutA:
		return c.b.Bounds()
	case ComposeAinB, ComposeBinA:
		return boxIntersect(c.a.Bounds(), c.b.Bounds())
	case ComposeAatopB:
		return c.b.Bounds()
	case ComposeBatopA:
		return c.a.Bounds()
	}
	return boxUnion(c.a.Bounds(), c.b.Bounds())
}

func (c *compose) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	c.MustBeInitialized("compose")
	vp, err := fieldeval.GetVecPool(userData)
	if err != nil {
		return err
	}
	aux := vp.Values.Acquire(len(dst))
	defer vp.Values.Release(aux)
	err = c.a.Evaluate(samples, dst, userData)
	if err != nil {
		return err
	}
	err = c.b.Evaluate(samples, aux, userData)
	if err != nil {
		return err
	}
	sanitize(dst, fieldeval.ModeDensity)
	sanitize(aux, fieldeval.ModeDensity)
	for i := range dst {
		va, vb := &dst[i], &aux[i]
		Da, Db := va.V[0], vb.V[0]
		fa, fb := c.op.factors(Da, Db)
		D := Da*fa + Db*fb
		for ch := 1; ch < fieldeval.MaxChannels; ch++ {
			// Premultiplied composition.
			v := Da*va.V[ch]*fa + Db*vb.V[ch]*fb
			if D > 0 {
				v = clampf(v/D, 0, 1)
			} else {
				v = 0
			}
			va.V[ch] = v
		}
		va.V[0] = D
		if vb.Code == fieldeval.ResultOK {
			va.Code = fieldeval.ResultOK
		}
	}
	return nil
}
