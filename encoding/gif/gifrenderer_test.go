package gif

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state struct {
	iter int
	im   image.Image
}

func (s state) Name() string         { return "test" }
func (s state) Epoch() int           { return s.iter / 10 }
func (s state) Iteration() int       { return s.iter }
func (s state) Samples() image.Image { return s.im }

func grid(w, h int) image.Image {
	im := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			im.SetRGBA(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	return im
}

func TestEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewGifEncoder(&buf)
	require.NoError(t, enc.Flush())
	assert.Equal(t, 0, buf.Len(), "nothing to write without frames")

	require.NoError(t, enc.Encode(state{10, grid(16, 16)}))
	require.NoError(t, enc.Encode(state{100000, grid(16, 16)}))
	assert.Equal(t, 2, enc.Frames())
	require.NoError(t, enc.Flush())

	g, err := gif.DecodeAll(&buf)
	require.NoError(t, err)
	require.Len(t, g.Image, 2)
	assert.Equal(t, g.Image[0].Bounds(), g.Image[1].Bounds(), "frames share a size")
	assert.Equal(t, []int{50, 50}, g.Delay)
}
