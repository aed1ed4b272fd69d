package threads

import (
	"errors"

	"github.com/soypat/fabfield"
	"github.com/soypat/fabfield/fieldeval"
)

// BoltParams defines the parameters for a bolt.
type BoltParams struct {
	Thread      Threader
	Style       NutStyle
	Tolerance   float32 // subtracted from the thread radius, distance mode only
	TotalLength float32 // threaded length + shank length
	ShankLength float32 // non threaded length
}

// Bolt returns a simple bolt suitable for 3d printing. The head is centered at
// the origin and the shank extends along +z.
func Bolt(bld *fabfield.Builder, k BoltParams) (fieldeval.Field, error) {
	var err error
	switch {
	case k.Thread == nil:
		err = errors.New("nil Threader")
	case k.TotalLength <= 0:
		err = errors.New("total length <= 0")
	case k.ShankLength >= k.TotalLength:
		err = errors.New("shank length must be less than total length")
	case k.ShankLength <= 0:
		err = errors.New("shank length <= 0")
	case k.Tolerance < 0:
		err = errors.New("tolerance < 0")
	case k.Tolerance > 0 && bld.Mode() != fieldeval.ModeDistance:
		err = errors.New("thread tolerance requires distance mode")
	}
	if err != nil {
		return nil, err
	}
	param := k.Thread.ThreadParams()

	var head fieldeval.Field
	hr := param.HexRadius()
	hh := param.HexHeight()
	if hr <= 0 || hh <= 0 {
		return nil, errors.New("bad hex head dimension")
	}
	switch k.Style {
	case NutHex:
		head, err = HexHead(bld, hr, hh, false, true) // Round top side only.
	case NutKnurl:
		head, err = KnurledHead(bld, hr, hh, hr*0.25)
	default:
		return nil, errors.New("unknown style for bolt: " + k.Style.String())
	}
	if err != nil {
		return nil, err
	}
	screwLen := k.TotalLength - k.ShankLength
	screw, err := Screw(bld, screwLen, k.Thread)
	if err != nil {
		return nil, err
	}
	if k.Tolerance > 0 {
		screw = bld.Offset(screw, float64(k.Tolerance))
	}
	shank := bld.NewCylinder(float64(param.Radius), float64(k.ShankLength), float64(hh*0.08))
	shankOff := float64(k.ShankLength/2 + hh/2)
	screwOff := float64(screwLen/2 + k.ShankLength + hh/2)
	shank = bld.Translate(shank, 0, 0, shankOff)
	screw = bld.Translate(screw, 0, 0, screwOff)
	return bld.Union(screw, bld.SmoothUnion(float64(hh*0.12), shank, head)), nil
}
