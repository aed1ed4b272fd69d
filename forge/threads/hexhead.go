package threads

import (
	"errors"

	math "github.com/chewxy/math32"
	"github.com/soypat/fabfield"
	"github.com/soypat/fabfield/fieldeval"
)

// Hex Heads for nuts and bolts.

// HexHead returns the hex head for a nut or bolt centered at the origin. radius is
// the corner radius. The top and bottom faces are optionally rounded by
// intersecting with large spheres. Vertical edges are rounded in distance mode.
func HexHead(bld *fabfield.Builder, radius, height float32, roundTop, roundBottom bool) (fieldeval.Field, error) {
	if radius <= 0 || height <= 0 {
		return nil, errors.New("zero or negative hex head dimension")
	}
	var hex fieldeval.Field
	if bld.Mode() == fieldeval.ModeDistance {
		cornerRound := radius * 0.08
		apothem := (radius - cornerRound) * cos30
		hex = bld.NewHexagonalPrism(float64(apothem), float64(height/2-cornerRound))
		hex = bld.Offset(hex, -float64(cornerRound))
	} else {
		hex = bld.NewHexagonalPrism(float64(radius*cos30), float64(height/2))
	}

	if roundTop || roundBottom {
		topRound := radius * 1.6
		d := radius * cos30
		sphere := bld.NewSphere(float64(topRound))
		zOfs := float64(math.Sqrt(topRound*topRound-d*d) - height/2)
		if roundTop {
			hex = bld.Intersection(hex, bld.Translate(sphere, 0, 0, -zOfs))
		}
		if roundBottom {
			hex = bld.Intersection(hex, bld.Translate(sphere, 0, 0, zOfs))
		}
	}
	return hex, nil
}
