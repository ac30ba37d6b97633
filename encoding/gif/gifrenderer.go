package gif

import (
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"

	"github.com/gorgonia/began/sample"
)

// Encoder collects captioned sample grids into an animated GIF. It implements
// the began.OutputEncoder interface.
type Encoder struct {
	io.Writer
	Delay int // per frame, in 100ths of a second

	c   *sample.Captioner
	out *gif.GIF
}

// NewGifEncoder creates an encoder that writes the animation into w on Flush.
func NewGifEncoder(w io.Writer) *Encoder {
	return &Encoder{
		Writer: w,
		Delay:  50,
		c:      sample.NewCaptioner(),
		out:    &gif.GIF{LoopCount: 0},
	}
}

// Encode appends a frame of the samples in ms.
func (enc *Encoder) Encode(ms sample.MetaState) error {
	src := enc.c.Draw(ms.Samples(), sample.Lines(ms)...)
	if len(enc.out.Image) > 0 {
		// frames must share the size of the first one
		first := enc.out.Image[0].Bounds()
		if !src.Bounds().Eq(first) {
			resized := image.NewRGBA(first)
			draw.Draw(resized, first, image.White, image.Point{}, draw.Src)
			draw.Draw(resized, first, src, image.Point{}, draw.Src)
			src = resized
		}
	}
	im := image.NewPaletted(src.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(im, im.Bounds(), src, image.Point{})

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, enc.Delay)
	return nil
}

// Frames is the number of frames encoded so far.
func (enc *Encoder) Frames() int { return len(enc.out.Image) }

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error {
	if len(enc.out.Image) == 0 {
		return nil
	}
	return gif.EncodeAll(enc.Writer, enc.out)
}
