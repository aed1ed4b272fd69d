package threads

import (
	"errors"

	math "github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms2"
)

// Buttress is an asymmetric thread: a steep flank takes the axial load and a
// shallow flank trails it.
type Buttress struct {
	// D is the thread nominal diameter.
	D float32
	// P is the thread pitch.
	P float32
	// LoadAngle and TrailAngle are flank angles measured from the radial direction [radians].
	LoadAngle  float32
	TrailAngle float32
	// Engagement is the fraction of the pitch engaged with the mating thread.
	Engagement float32
}

var _ Threader = Buttress{}

// PlasticButtress returns the screw top style thread used by bottle caps and
// jars. Similar to ANSI 45/7 but with more corner rounding.
func PlasticButtress(d, p float32) Buttress {
	return Buttress{
		D:          d,
		P:          p,
		LoadAngle:  45 * math.Pi / 180,
		TrailAngle: 7 * math.Pi / 180,
		Engagement: 0.6,
	}
}

func (b Buttress) ThreadParams() Parameters {
	return basic{D: b.D, P: b.P}.ThreadParams()
}

// Thread returns the external buttress profile with rounded crest and root.
func (b Buttress) Thread() ([]ms2.Vec, error) {
	if b.LoadAngle <= 0 || b.TrailAngle < 0 || b.LoadAngle+b.TrailAngle >= math.Pi/2 {
		return nil, errors.New("bad buttress flank angles")
	} else if b.Engagement <= 0 || b.Engagement >= 1 {
		return nil, errors.New("buttress engagement must be in (0,1)")
	}
	radius := b.D / 2
	tl, tt := math.Tan(b.LoadAngle), math.Tan(b.TrailAngle)
	p := b.P
	hp := p / 2
	depth := p / (tl + tt) // Depth of the sharp V.
	h := (b.Engagement/2)*p + depth/2

	var prof ms2.PolygonBuilder
	prof.AddXY(p, 0)
	prof.AddXY(p, radius)
	prof.AddXY(hp-(depth-h)*tt, radius).Smooth(0.05*p, 5)
	prof.AddXY(tl*depth-hp, radius-h).Smooth(0.15*p, 5)
	prof.AddXY((depth-h)*tl-hp, radius).Smooth(0.15*p, 5)
	prof.AddXY(-p, radius)
	prof.AddXY(-p, 0)
	return prof.AppendVecs(nil)
}
