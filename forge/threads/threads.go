// Package threads builds screw threads, knurls and bolts as implicit fields.
//
// Thread profiles are 2D polygons where X is the position along the screw axis
// and Y is the distance from it. A profile spans at least one pitch centered
// at X=0.
package threads

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/soypat/fabfield"
	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/glgl/math/ms2"
)

// Threader is implemented by thread standards.
type Threader interface {
	// Thread returns the vertices of the thread's 2D profile.
	Thread() ([]ms2.Vec, error)
	ThreadParams() Parameters
}

// Parameters holds the dimensions shared by all threads.
type Parameters struct {
	Radius float32
	Pitch  float32
	// Starts is the number of thread starts. Negative values give a left hand thread.
	Starts       int
	HexFlat2Flat float32
}

// HexRadius returns the hex head corner radius.
func (p Parameters) HexRadius() float32 {
	return p.HexFlat2Flat / (2 * cos30)
}

// HexHeight returns the hex head height.
func (p Parameters) HexHeight() float32 {
	return 2 * p.HexRadius() * (5. / 12.)
}

const cos30 = sqrt3 / 2

// basic is a thread described only by diameter and pitch.
type basic struct {
	D float32
	P float32
}

func (b basic) ThreadParams() Parameters {
	return Parameters{
		Radius:       b.D / 2,
		Pitch:        b.P,
		Starts:       1,
		HexFlat2Flat: 1.6 * b.D,
	}
}

// NutStyle selects the head of a bolt.
type NutStyle uint8

const (
	_ NutStyle = iota
	NutHex
	NutKnurl
)

func (n NutStyle) String() string {
	switch n {
	case NutHex:
		return "hex"
	case NutKnurl:
		return "knurl"
	}
	return fmt.Sprintf("NutStyle(%d)", uint8(n))
}

// Screw returns a threaded field of the given length centered at the origin
// with its axis along z. The field is created in the builder's mode.
func Screw(bld *fabfield.Builder, length float32, thread Threader) (fieldeval.Field, error) {
	if thread == nil {
		return nil, errors.New("nil Threader")
	} else if length <= 0 {
		return nil, errors.New("zero or negative screw length")
	}
	params := thread.ThreadParams()
	if params.Pitch <= 0 {
		return nil, errors.New("zero or negative thread pitch")
	}
	verts, err := thread.Thread()
	if err != nil {
		return nil, err
	}
	var radius float64
	for _, v := range verts {
		radius = math.Max(radius, float64(v.Y))
	}
	profile := make([]v2.Vec, len(verts))
	for i, v := range verts {
		profile[i] = v2.Vec{X: float64(v.X), Y: float64(v.Y)}
		if v.Y <= 0 {
			// Push the profile base past the axis so the core has no zero set on it.
			profile[i].Y = -radius
		}
	}
	poly, err := sdf.Polygon2D(profile)
	if err != nil {
		return nil, fmt.Errorf("thread profile: %w", err)
	}
	pitch := float64(params.Pitch)
	return &screw{
		mode:    bld.Mode(),
		profile: poly,
		halfLen: float64(length) / 2,
		pitch:   pitch,
		lead:    -pitch * float64(params.Starts),
		radius:  radius,
	}, nil
}

type screw struct {
	fieldeval.InitFlag
	mode    fieldeval.Mode
	profile sdf.SDF2
	halfLen float64
	pitch   float64
	lead    float64
	radius  float64
}

func (s *screw) Initialize() error {
	s.MarkInitialized()
	return nil
}

func (s *screw) Mode() fieldeval.Mode { return s.mode }

func (s *screw) Channels() int { return 1 }

func (s *screw) Bounds() md3.Box {
	return md3.Box{
		Min: md3.Vec{X: -s.radius, Y: -s.radius, Z: -s.halfLen},
		Max: md3.Vec{X: s.radius, Y: s.radius, Z: s.halfLen},
	}
}

func (s *screw) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	s.MustBeInitialized("screw")
	if err := fieldeval.CheckBuffers(samples, dst); err != nil {
		return err
	}
	for i, smp := range samples {
		p := smp.Pos
		// Radial distance maps to profile Y. Angle and height map to the
		// position along the pitch.
		theta := math.Atan2(p.Y, p.X)
		z := p.Z + s.lead*theta/(2*math.Pi)
		p0 := v2.Vec{X: sawTooth(z, s.pitch), Y: math.Hypot(p.X, p.Y)}
		d := math.Max(s.profile.Evaluate(p0), math.Abs(p.Z)-s.halfLen)
		if s.mode == fieldeval.ModeDensity {
			d = fieldeval.Density(d, smp.Scale)
		}
		dst[i] = fieldeval.Value{}
		dst[i].V[0] = d
	}
	return nil
}

// sawTooth maps x to [-period/2, period/2).
func sawTooth(x, period float64) float64 {
	x += period / 2
	t := x - period*math.Floor(x/period)
	return t - period/2
}
