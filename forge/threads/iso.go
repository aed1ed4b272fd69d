package threads

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/soypat/glgl/math/ms2"
)

const sqrt3 = 1.7320508075688772935274463415058723669428052538103806280558069794

// ISO is a standardized thread.
// Pitch is usually the number following the diameter
// i.e: for M16x2 the pitch is 2mm
type ISO struct {
	// D is the thread nominal diameter [mm].
	D float32
	// P is the thread pitch [mm].
	P float32
	// Is external or internal thread. Ext set to true means external thread
	// which is for screws. Internal threads refer to tapped holes.
	Ext bool
}

var _ Threader = ISO{} // Compile time check of interface implementation.

func (iso ISO) ThreadParams() Parameters {
	b := basic{D: iso.D, P: iso.P}
	return b.ThreadParams()
}

// Thread returns the ISO 68-1 profile: a 60 degree thread with a flat crest
// and a rounded root.
func (iso ISO) Thread() ([]ms2.Vec, error) {
	radius := iso.D / 2
	// Trig functions for 30 degrees, the thread angle of ISO.
	const (
		cosTheta = sqrt3 / 2
		sinTheta = 0.5
		tanTheta = sinTheta / cosTheta
	)
	h := iso.P / (2.0 * tanTheta)
	rMajor := radius
	r0 := rMajor - (7.0/8.0)*h
	var poly ms2.PolygonBuilder
	if iso.Ext {
		// External threading.
		rRoot := (iso.P / 8.0) / cosTheta
		xOfs := (1.0 / 16.0) * iso.P
		poly.AddXY(iso.P, 0)
		poly.AddXY(iso.P, r0+h)
		poly.AddXY(iso.P/2.0, r0).Smooth(rRoot, 5)
		poly.AddXY(xOfs, rMajor)
		poly.AddXY(-xOfs, rMajor)
		poly.AddXY(-iso.P/2.0, r0).Smooth(rRoot, 5)
		poly.AddXY(-iso.P, r0+h)
		poly.AddXY(-iso.P, 0)
	} else {
		// Internal threading.
		rMinor := r0 + (1.0/4.0)*h
		rCrest := (iso.P / 16.0) / cosTheta
		xOfs := (1.0 / 8.0) * iso.P
		poly.AddXY(iso.P, 0)
		poly.AddXY(iso.P, rMinor)
		poly.AddXY(iso.P/2-xOfs, rMinor)
		poly.AddXY(0, r0+h).Smooth(rCrest, 5)
		poly.AddXY(-iso.P/2+xOfs, rMinor)
		poly.AddXY(-iso.P, rMinor)
		poly.AddXY(-iso.P, 0)
	}
	return poly.AppendVecs(nil)
}

// isoCoarse maps nominal diameters to ISO 261 coarse pitches.
var isoCoarse = map[float32]float32{
	1: 0.25, 1.2: 0.25, 1.6: 0.35, 2: 0.4, 2.5: 0.45, 3: 0.5, 4: 0.7, 5: 0.8,
	6: 1, 8: 1.25, 10: 1.5, 12: 1.75, 14: 2, 16: 2, 20: 2.5, 24: 3, 30: 3.5, 36: 4,
}

// LookupISO parses a metric designation such as "M8" or "M8x1" into an external
// ISO thread. Designations without a pitch use the coarse pitch.
func LookupISO(name string) (ISO, error) {
	s, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(name)), "M")
	if !ok {
		return ISO{}, fmt.Errorf("metric thread %q must start with M", name)
	}
	ds, ps, hasPitch := strings.Cut(s, "X")
	d, err := strconv.ParseFloat(ds, 32)
	if err != nil || d <= 0 {
		return ISO{}, fmt.Errorf("bad diameter in thread %q", name)
	}
	iso := ISO{D: float32(d), Ext: true}
	if hasPitch {
		p, err := strconv.ParseFloat(ps, 32)
		if err != nil || p <= 0 || p >= d {
			return ISO{}, fmt.Errorf("bad pitch in thread %q", name)
		}
		iso.P = float32(p)
	} else if iso.P, ok = isoCoarse[iso.D]; !ok {
		return ISO{}, fmt.Errorf("no coarse pitch for %q, specify one as in M%sx1", name, ds)
	}
	return iso, nil
}
