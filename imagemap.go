package fabfield

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageMapConfig configures image backed fields, see [Builder.NewImageMap] and [Builder.NewImageColorMap].
type ImageMapConfig struct {
	// Path to an image file. Used when Image is nil. Supported formats are
	// png, jpeg, gif, bmp, tiff and webp.
	Path string
	// Image is used directly when not nil.
	Image image.Image
	// Size of the box centered at the origin the image is mapped onto.
	// The image spans the xy footprint; z is the height direction.
	Size md3.Vec
	// BaseThickness is the solid slab height below the relief.
	BaseThickness float64
	// TileX and TileY repeat the image outside the footprint. A non tiled axis
	// reports out of range outside the footprint.
	TileX, TileY bool
	// Invert maps dark pixels to high relief instead of bright ones.
	Invert bool
	// MaxPixels resamples images with more pixels than MaxPixels down. Zero disables resampling.
	MaxPixels int
}

// NewImageMap creates a height field from an image. Pixel luminance in [0,1]
// maps linearly to relief height above the base. The image is loaded during Initialize.
// The distance returned is vertical distance to the relief, which is a bound near steep slopes.
func (bld *Builder) NewImageMap(cfg ImageMapConfig) fieldeval.Field {
	return bld.newImageMap(cfg, false)
}

// NewImageColorMap creates a field of the box footprint colored by the image's pixels.
func (bld *Builder) NewImageColorMap(cfg ImageMapConfig) fieldeval.Field {
	return bld.newImageMap(cfg, true)
}

func (bld *Builder) newImageMap(cfg ImageMapConfig, colorMap bool) fieldeval.Field {
	if cfg.Image == nil && cfg.Path == "" {
		bld.shapeErrorf("image map without image or path")
	}
	if cfg.Size.X <= 0 || cfg.Size.Y <= 0 || cfg.Size.Z <= 0 {
		bld.shapeErrorf("zero or negative image map size")
	}
	if cfg.BaseThickness < 0 || cfg.BaseThickness > cfg.Size.Z {
		bld.shapeErrorf("image map base thickness outside [0, size.Z]")
	}
	if cfg.MaxPixels < 0 {
		bld.shapeErrorf("negative image map pixel limit")
	}
	im := &imageMap{cfg: cfg, colorMap: colorMap}
	im.mode = bld.mode
	return im
}

type imageMap struct {
	node
	cfg      ImageMapConfig
	colorMap bool
	w, h     int
	// lum holds per pixel luminance, rgb holds per pixel color for color maps. Rows are top to bottom.
	lum []float64
	rgb [][3]float64
}

func (im *imageMap) Channels() int {
	if im.colorMap {
		return fieldeval.MaxChannels
	}
	return 1
}

func (im *imageMap) Bounds() md3.Box {
	bb := centeredBox(md3.Vec{}, im.cfg.Size)
	if im.cfg.TileX {
		bb.Min.X, bb.Max.X = -largenum, largenum
	}
	if im.cfg.TileY {
		bb.Min.Y, bb.Max.Y = -largenum, largenum
	}
	return bb
}

func (im *imageMap) Initialize() error {
	if im.Initialized() {
		return nil
	}
	img := im.cfg.Image
	if img == nil {
		var err error
		img, err = loadImage(im.cfg.Path)
		if err != nil {
			return err
		}
	}
	img = resampleImage(img, im.cfg.MaxPixels)
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return errors.New("empty image in image map")
	}
	im.w, im.h = b.Dx(), b.Dy()
	im.lum = make([]float64, im.w*im.h)
	if im.colorMap {
		im.rgb = make([][3]float64, im.w*im.h)
	}
	for j := 0; j < im.h; j++ {
		for i := 0; i < im.w; i++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+i, b.Min.Y+j)).(color.NRGBA64)
			r, g, bl := float64(c.R)/0xffff, float64(c.G)/0xffff, float64(c.B)/0xffff
			l := 0.299*r + 0.587*g + 0.114*bl
			if im.cfg.Invert {
				l = 1 - l
			}
			im.lum[j*im.w+i] = l
			if im.colorMap {
				im.rgb[j*im.w+i] = [3]float64{r, g, bl}
			}
		}
	}
	im.MarkInitialized()
	return nil
}

func loadImage(path string) (image.Image, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	img, _, err := image.Decode(fp)
	if err != nil {
		return nil, fmt.Errorf("decoding image %q: %w", path, err)
	}
	return img, nil
}

// resampleImage scales img down so it has at most maxPixels pixels.
func resampleImage(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if maxPixels <= 0 || n <= maxPixels {
		return img
	}
	f := math.Sqrt(float64(maxPixels) / float64(n))
	w := max(1, int(float64(b.Dx())*f))
	h := max(1, int(float64(b.Dy())*f))
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// pixelCoords maps p's xy into continuous pixel coordinates. ok is false outside a non tiled footprint.
func (im *imageMap) pixelCoords(p md3.Vec) (u, v float64, ok bool) {
	sz := im.cfg.Size
	fx := p.X/sz.X + 0.5
	fy := 0.5 - p.Y/sz.Y // Image rows grow downwards.
	if im.cfg.TileX {
		fx -= math.Floor(fx)
	} else if fx < 0 || fx > 1 {
		return 0, 0, false
	}
	if im.cfg.TileY {
		fy -= math.Floor(fy)
	} else if fy < 0 || fy > 1 {
		return 0, 0, false
	}
	return fx*float64(im.w) - 0.5, fy*float64(im.h) - 0.5, true
}

// bilinear interpolation weights and clamped pixel indices.
func (im *imageMap) bilinear(u, v float64) (i0, j0, i1, j1 int, tx, ty float64) {
	u = clampf(u, 0, float64(im.w-1))
	v = clampf(v, 0, float64(im.h-1))
	i0, j0 = int(u), int(v)
	i1, j1 = min(i0+1, im.w-1), min(j0+1, im.h-1)
	return i0, j0, i1, j1, u - float64(i0), v - float64(j0)
}

func (im *imageMap) luminance(u, v float64) float64 {
	i0, j0, i1, j1, tx, ty := im.bilinear(u, v)
	w := im.w
	a := mixf(im.lum[j0*w+i0], im.lum[j0*w+i1], tx)
	b := mixf(im.lum[j1*w+i0], im.lum[j1*w+i1], tx)
	return mixf(a, b, ty)
}

func (im *imageMap) rgbAt(u, v float64) (c [3]float64) {
	i0, j0, i1, j1, tx, ty := im.bilinear(u, v)
	w := im.w
	for k := range c {
		a := mixf(im.rgb[j0*w+i0][k], im.rgb[j0*w+i1][k], tx)
		b := mixf(im.rgb[j1*w+i0][k], im.rgb[j1*w+i1][k], tx)
		c[k] = mixf(a, b, ty)
	}
	return c
}

func (im *imageMap) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	im.MustBeInitialized("imagemap")
	sz := im.cfg.Size
	zmin := -sz.Z / 2
	base := im.cfg.BaseThickness
	for i, s := range samples {
		p := s.Pos
		u, v, ok := im.pixelCoords(p)
		if !ok {
			fieldeval.SetNoContribution(&dst[i], im.mode)
			continue
		}
		var top float64
		if im.colorMap {
			top = sz.Z / 2
		} else {
			top = zmin + base + (sz.Z-base)*im.luminance(u, v)
		}
		d := math.Max(p.Z-top, zmin-p.Z)
		v0 := d
		if im.mode == fieldeval.ModeDensity {
			v0 = fieldeval.Density(d, s.Scale)
		}
		dst[i] = fieldeval.Value{}
		dst[i].V[0] = v0
		if im.colorMap {
			c := im.rgbAt(u, v)
			dst[i].V[fieldeval.ChanRed] = c[0]
			dst[i].V[fieldeval.ChanGreen] = c[1]
			dst[i].V[fieldeval.ChanBlue] = c[2]
			dst[i].V[fieldeval.ChanAlpha] = 1
		}
	}
	return nil
}
