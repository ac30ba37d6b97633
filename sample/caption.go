package sample

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi        = 144.0
	fontsize   = 12.0
	lineheight = 1.2
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// Captioner draws sample grids on a white canvas with lines of text under
// them. A Captioner is not safe for concurrent use.
type Captioner struct {
	font.Drawer
	padH, padW int
}

// NewCaptioner makes a Captioner with the default monospace face.
func NewCaptioner() *Captioner {
	return &Captioner{
		padH: 10,
		padW: 10,
		Drawer: font.Drawer{
			Src: image.Black,
			Face: truetype.NewFace(regular, &truetype.Options{
				Size:    fontsize,
				DPI:     dpi,
				Hinting: font.HintingFull,
			}),
		},
	}
}

// Lines are the default caption lines of a meta state.
func Lines(ms MetaState) []string {
	return []string{
		ms.Name(),
		fmt.Sprintf("Epoch %d, Iteration: %d", ms.Epoch(), ms.Iteration()),
	}
}

// Draw returns a new image holding im followed by the given lines.
func (c *Captioner) Draw(im image.Image, lines ...string) *image.RGBA {
	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))
	b := im.Bounds()
	w := b.Dx()
	for _, l := range lines {
		if lw := font.MeasureString(c.Face, l).Ceil(); lw > w {
			w = lw
		}
	}
	w += 2 * c.padW
	h := b.Dy() + len(lines)*dy + 2*c.padH

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(c.padW, c.padH, c.padW+b.Dx(), c.padH+b.Dy()), im, b.Min, draw.Src)

	c.Dst = dst
	y := c.padH + b.Dy()
	for _, l := range lines {
		y += dy
		c.Dot = fixed.P(c.padW, y)
		c.DrawString(l)
	}
	return dst
}
