package fabfield

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
)

const (
	// For an equilateral triangle of side length L the length of bisector is L multiplied this number which is sqrt(1-0.25).
	tribisect = 0.8660254037844386467637231707529361834714026269051903140279034897
	sqrt3     = 1.7320508075688772935274463415058723669428052538103806280558069794
	largenum  = fieldeval.LargeDistance
	// epstol is used to check for badly conditioned denominators
	// such as lengths used for normalization or transformation matrix determinants.
	epstol = 1e-12
)

// Flags modify the behaviour of a [Builder].
type Flags uint64

const (
	// FlagNoDimensionPanic makes the Builder accumulate construction errors
	// instead of panicking. Errors are retrieved with [Builder.Err].
	FlagNoDimensionPanic Flags = 1 << iota
)

// Builder wraps all field primitive and operation construction.
// Provides error handling strategies with panics or error accumulation during shape generation.
// Fields are created in the Builder's current mode, see [Builder.SetMode].
type Builder struct {
	flags     Flags
	mode      fieldeval.Mode
	accumErrs []error
}

// SetFlags sets the Builder's flags.
func (bld *Builder) SetFlags(flags Flags) error {
	bld.flags = flags
	return nil
}

// Flags returns the Builder's flags.
func (bld *Builder) Flags() Flags { return bld.flags }

// SetMode sets the mode of fields created from now on.
func (bld *Builder) SetMode(m fieldeval.Mode) {
	if m != fieldeval.ModeDistance && m != fieldeval.ModeDensity {
		bld.shapeErrorf("invalid mode %d", m)
		return
	}
	bld.mode = m
}

// Mode returns the mode new fields are created in.
func (bld *Builder) Mode() fieldeval.Mode { return bld.mode }

// Err returns accumulated construction errors joined. Returns nil if no errors occurred.
func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

// ClearErrors discards accumulated errors.
func (bld *Builder) ClearErrors() {
	bld.accumErrs = bld.accumErrs[:0]
}

func (bld *Builder) shapeErrorf(msg string, args ...any) {
	if bld.flags&FlagNoDimensionPanic == 0 {
		panic(fmt.Sprintf(msg, args...))
	}
	bld.accumErrs = append(bld.accumErrs, fmt.Errorf(msg, args...))
}

func (*Builder) nilfield(msg string) {
	panic("nil field argument: " + msg)
}

// checkMode registers a construction error if any operand's mode differs from want.
func (bld *Builder) checkMode(op string, want fieldeval.Mode, fields ...fieldeval.Field) {
	for i, f := range fields {
		if f.Mode() != want {
			bld.shapeErrorf("%s: operand %d in %s mode, want %s", op, i, f.Mode(), want)
		}
	}
}

// node is embedded by every field implementation in this package.
type node struct {
	fieldeval.InitFlag
	mode fieldeval.Mode
}

// Mode implements [fieldeval.Field].
func (n *node) Mode() fieldeval.Mode { return n.mode }

// prim is embedded by single channel leaf fields.
type prim struct {
	node
}

// Initialize implements [fieldeval.Field].
func (p *prim) Initialize() error {
	p.MarkInitialized()
	return nil
}

// Channels implements [fieldeval.Field].
func (p *prim) Channels() int { return 1 }

// set stores distance d in v converting to density if the field is in density mode.
func (p *prim) set(v *fieldeval.Value, d, scale float64) {
	*v = fieldeval.Value{}
	if p.mode == fieldeval.ModeDensity {
		v.V[0] = fieldeval.Density(d, scale)
	} else {
		v.V[0] = d
	}
}

// initAll initializes all fields in order, stopping at the first error.
func initAll(fields ...fieldeval.Field) error {
	for _, f := range fields {
		if err := f.Initialize(); err != nil {
			return err
		}
	}
	return nil
}

func maxChannels(fields ...fieldeval.Field) int {
	n := 1
	for _, f := range fields {
		n = max(n, f.Channels())
	}
	return n
}

func clampf(v, Min, Max float64) float64 {
	if v < Min {
		return Min
	} else if v > Max {
		return Max
	}
	return v
}

func signf(a float64) float64 {
	if a == 0 {
		return 0
	}
	return math.Copysign(1, a)
}

func mixf(x, y, a float64) float64 {
	return x*(1-a) + y*a
}

func validVec(v md3.Vec) bool {
	return fieldeval.IsFinite(v.X) && fieldeval.IsFinite(v.Y) && fieldeval.IsFinite(v.Z)
}

func boxUnion(a, b md3.Box) md3.Box {
	return md3.Box{
		Min: md3.MinElem(a.Min, b.Min),
		Max: md3.MaxElem(a.Max, b.Max),
	}
}

func boxIntersect(a, b md3.Box) md3.Box {
	bb := md3.Box{
		Min: md3.MaxElem(a.Min, b.Min),
		Max: md3.MinElem(a.Max, b.Max),
	}
	// Disjoint boxes collapse to a degenerate box instead of an inverted one.
	bb.Max = md3.MaxElem(bb.Min, bb.Max)
	return bb
}

func boxVertices(bb md3.Box) [8]md3.Vec {
	return [8]md3.Vec{
		bb.Min,
		{X: bb.Max.X, Y: bb.Min.Y, Z: bb.Min.Z},
		{X: bb.Max.X, Y: bb.Max.Y, Z: bb.Min.Z},
		{X: bb.Min.X, Y: bb.Max.Y, Z: bb.Min.Z},
		{X: bb.Min.X, Y: bb.Min.Y, Z: bb.Max.Z},
		{X: bb.Max.X, Y: bb.Min.Y, Z: bb.Max.Z},
		bb.Max,
		{X: bb.Min.X, Y: bb.Max.Y, Z: bb.Max.Z},
	}
}

func centeredBox(center, size md3.Vec) md3.Box {
	half := md3.Scale(0.5, size)
	return md3.Box{Min: md3.Sub(center, half), Max: md3.Add(center, half)}
}

// infiniteBox is the bounds of fields without finite extent, such as planes and periodic surfaces.
var infiniteBox = md3.Box{
	Min: md3.Vec{X: -largenum, Y: -largenum, Z: -largenum},
	Max: md3.Vec{X: largenum, Y: largenum, Z: largenum},
}
