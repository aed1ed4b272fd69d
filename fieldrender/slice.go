package fieldrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/soypat/fabfield/grid"
	"github.com/soypat/geometry/md3"
)

type setImage = interface {
	image.Image
	Set(x, y int, c color.Color)
}

// SliceRenderer converts constant Z slices of grid channels to images.
type SliceRenderer struct {
	conv func(v float64) color.Color
}

// NewSliceRenderer returns a renderer using conversion to map decoded channel
// values to colors. A nil conversion picks a scheme from the channel kind:
// distance is black inside and white outside, density is a gray ramp with
// black solid, and other kinds map [0,1] to a gray level.
func NewSliceRenderer(conversion func(v float64) color.Color) *SliceRenderer {
	return &SliceRenderer{conv: conversion}
}

// Render samples channel ch of g on the plane z at the image's resolution and
// draws it into img. The grid's XY footprint is stretched over the whole image;
// image rows grow towards -Y.
func (sr *SliceRenderer) Render(g grid.AttributeGrid, ch int, z float64, img setImage) error {
	if g == nil || img == nil {
		return errors.New("nil grid or image")
	}
	l := g.Layout()
	if ch < 0 || ch >= len(l.Channels) {
		return fmt.Errorf("slice channel %d out of range [0,%d)", ch, len(l.Channels))
	}
	bb := g.Bounds().Box
	if z < bb.Min.Z || z > bb.Max.Z {
		return fmt.Errorf("slice z=%g outside grid [%g,%g]", z, bb.Min.Z, bb.Max.Z)
	}
	conv := sr.conv
	if conv == nil {
		conv = defaultConversion(l.Channels[ch].Kind)
	}
	imgBB := img.Bounds()
	dxi, dyi := imgBB.Dx(), imgBB.Dy()
	if dxi == 0 || dyi == 0 {
		return errors.New("empty image")
	}
	dx := (bb.Max.X - bb.Min.X) / float64(dxi)
	dy := (bb.Max.Y - bb.Min.Y) / float64(dyi)
	for j := 0; j < dyi; j++ {
		y := bb.Max.Y - (float64(j)+0.5)*dy
		for i := 0; i < dxi; i++ {
			p := md3.Vec{X: bb.Min.X + (float64(i)+0.5)*dx, Y: y, Z: z}
			img.Set(imgBB.Min.X+i, imgBB.Min.Y+j, conv(grid.SampleTrilinear(g, ch, p)))
		}
	}
	return nil
}

// RenderMidSlice renders the slice through the middle of the grid into a new
// image with one pixel per voxel.
func (sr *SliceRenderer) RenderMidSlice(g grid.AttributeGrid, ch int) (*image.RGBA, error) {
	nx, ny, _ := g.Dims()
	img := image.NewRGBA(image.Rect(0, 0, nx, ny))
	bb := g.Bounds().Box
	err := sr.Render(g, ch, 0.5*(bb.Min.Z+bb.Max.Z), img)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func defaultConversion(k grid.Kind) func(float64) color.Color {
	switch k {
	case grid.KindDistance:
		return func(v float64) color.Color {
			switch {
			case math.IsNaN(v) || math.IsInf(v, 0):
				return color.RGBA{R: 255, A: 255}
			case v > 0:
				return color.White
			default:
				return color.Black
			}
		}
	case grid.KindDensity:
		return func(v float64) color.Color {
			return color.Gray{Y: gray8(1 - v)}
		}
	}
	return func(v float64) color.Color {
		return color.Gray{Y: gray8(v)}
	}
}

func gray8(v float64) uint8 {
	if !(v > 0) {
		return 0
	} else if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
