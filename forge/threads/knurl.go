package threads

import (
	"errors"
	"fmt"

	math "github.com/chewxy/math32"
	"github.com/soypat/fabfield"
	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/glgl/math/ms2"
)

// KnurlParams specifies a straight knurled cylinder.
// See https://en.wikipedia.org/wiki/Knurling.
type KnurlParams struct {
	Length float32
	Radius float32
	Pitch  float32
	// Height of the knurl ridges over Radius.
	Height float32
	// Theta is the helix angle of the ridges [radians].
	Theta  float32
	starts int
}

var _ Threader = KnurlParams{}

func (k KnurlParams) validate() error {
	for _, v := range []struct {
		name string
		val  float32
	}{{"length", k.Length}, {"radius", k.Radius}, {"pitch", k.Pitch}, {"height", k.Height}} {
		if v.val <= 0 {
			return fmt.Errorf("knurl %s must be positive, got %g", v.name, v.val)
		}
	}
	if k.Theta < 0 || k.Theta >= math.Pi/2 {
		return errors.New("knurl helix angle must be in [0, pi/2)")
	}
	return nil
}

// Thread returns a triangular ridge profile.
func (k KnurlParams) Thread() ([]ms2.Vec, error) {
	var ridge ms2.PolygonBuilder
	hp := k.Pitch / 2
	ridge.AddXY(k.Pitch, 0)
	ridge.AddXY(k.Pitch, k.Radius)
	ridge.AddXY(hp, k.Radius)
	ridge.AddXY(0, k.Radius+k.Height)
	ridge.AddXY(-hp, k.Radius)
	ridge.AddXY(-k.Pitch, k.Radius)
	ridge.AddXY(-k.Pitch, 0)
	return ridge.AppendVecs(nil)
}

// ThreadParams implements the Threader interface.
func (k KnurlParams) ThreadParams() Parameters {
	p := basic{D: k.Radius * 2, P: k.Pitch}.ThreadParams()
	p.Starts = k.starts
	return p
}

// Knurl returns a knurled cylinder centered at the origin: the intersection of
// a left and a right hand multistart thread whose start count follows from Theta.
func Knurl(bld *fabfield.Builder, k KnurlParams) (fieldeval.Field, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	k.starts = int(2 * math.Pi * k.Radius * math.Tan(k.Theta) / k.Pitch)
	hands := make([]fieldeval.Field, 2)
	for i := range hands {
		f, err := Screw(bld, k.Length, k)
		if err != nil {
			return nil, err
		}
		hands[i] = f
		k.starts = -k.starts
	}
	return bld.Intersection(hands...), nil
}

// KnurledHead returns a cylindrical head centered at the origin with a 45
// degree knurl of the given pitch on its side.
func KnurledHead(bld *fabfield.Builder, radius, height, pitch float32) (fieldeval.Field, error) {
	round := radius * 0.05
	knurl, err := Knurl(bld, KnurlParams{
		Length: pitch * math.Floor((height-round)/pitch),
		Radius: radius,
		Pitch:  pitch,
		Height: pitch * 0.3,
		Theta:  math.Pi / 4,
	})
	if err != nil {
		return nil, err
	}
	body := bld.NewCylinder(float64(radius), float64(height), float64(round))
	return bld.Union(body, knurl), nil
}
