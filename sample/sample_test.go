package sample

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

type state struct{ im image.Image }

func (s state) Name() string         { return "began" }
func (s state) Epoch() int           { return 3 }
func (s state) Iteration() int       { return 1200 }
func (s state) Samples() image.Image { return s.im }

func TestGrid(t *testing.T) {
	// three 2x2 RGB images: red, green, out of range blue
	data := []float32{
		1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 0, 0,
		-1, -1, -1, -1, 0, 0, 0, 0, 2, 2, 2, 2,
	}
	batch := tensor.New(tensor.WithShape(3, 3, 2, 2), tensor.WithBacking(data))
	im, err := Grid(batch, 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), im.Bounds())
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, im.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, im.RGBAAt(3, 1))
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, im.RGBAAt(1, 3))
	assert.Equal(t, color.RGBA{}, im.RGBAAt(3, 3), "the empty cell stays transparent")

	// the batch is left untouched
	assert.Equal(t, float32(1), data[0])

	gray := tensor.New(tensor.WithShape(1, 1, 1, 2), tensor.WithBacking([]float32{0.5, 0}))
	im, err = Grid(gray, 4)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), im.Bounds())
	assert.Equal(t, color.RGBA{128, 128, 128, 255}, im.RGBAAt(0, 0))
}

func TestGridErrors(t *testing.T) {
	cases := []struct {
		name string
		t    tensor.Tensor
		cols int
	}{
		{"dims", tensor.New(tensor.WithShape(2, 2), tensor.Of(tensor.Float32)), 1},
		{"channels", tensor.New(tensor.WithShape(1, 2, 2, 2), tensor.Of(tensor.Float32)), 1},
		{"cols", tensor.New(tensor.WithShape(1, 3, 2, 2), tensor.Of(tensor.Float32)), 0},
		{"dtype", tensor.New(tensor.WithShape(1, 3, 2, 2), tensor.Of(tensor.Float64)), 1},
	}
	for _, c := range cases {
		_, err := Grid(c.t, c.cols)
		assert.Error(t, err, c.name)
	}
}

func TestCaptioner(t *testing.T) {
	im := image.NewRGBA(image.Rect(0, 0, 8, 8))
	ms := state{im}
	lines := Lines(ms)
	assert.Equal(t, []string{"began", "Epoch 3, Iteration: 1200"}, lines)

	c := NewCaptioner()
	out := c.Draw(ms.Samples(), lines...)
	assert.True(t, out.Bounds().Dx() > 8+20, "width fits the caption")
	assert.True(t, out.Bounds().Dy() > 8+20, "height fits the caption")
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(10, 10), "sample is drawn inside the padding")
}
