// Package sample turns generated image batches into pictures that output
// encoders can write out.
package sample

import (
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// MetaState is the state of a training run at the time samples were taken.
type MetaState interface {
	Name() string
	Epoch() int
	Iteration() int
	Samples() image.Image
}

// Grid tiles a (K, C, H, W) batch of images into cols columns. Channel
// counts of 1 and 3 are supported. Values are expected in [0, 1]; anything
// outside is clamped.
func Grid(t tensor.Tensor, cols int) (*image.RGBA, error) {
	shp := t.Shape()
	if shp.Dims() != 4 {
		return nil, errors.Errorf("expected a (K, C, H, W) batch, got %v", shp)
	}
	k, c, h, w := shp[0], shp[1], shp[2], shp[3]
	if c != 1 && c != 3 {
		return nil, errors.Errorf("unsupported channel count %d", c)
	}
	if cols < 1 {
		return nil, errors.Errorf("invalid column count %d", cols)
	}
	raw, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("expected float32 images, got %v", t.Dtype())
	}
	data := make([]float32, len(raw))
	copy(data, raw)
	vecf32.Scale(data, 255)

	if cols > k {
		cols = k
	}
	rows := (k + cols - 1) / cols
	im := image.NewRGBA(image.Rect(0, 0, cols*w, rows*h))
	plane := h * w
	for i := 0; i < k; i++ {
		ox, oy := (i%cols)*w, (i/cols)*h
		img := data[i*c*plane : (i+1)*c*plane]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := y*w + x
				var px color.RGBA
				if c == 1 {
					v := toByte(img[p])
					px = color.RGBA{v, v, v, 255}
				} else {
					px = color.RGBA{toByte(img[p]), toByte(img[plane+p]), toByte(img[2*plane+p]), 255}
				}
				im.SetRGBA(ox+x, oy+y, px)
			}
		}
	}
	return im, nil
}

func toByte(v float32) uint8 {
	if math32.IsNaN(v) {
		return 0
	}
	return uint8(math32.Max(0, math32.Min(255, v)) + 0.5)
}
