// Package dataset provides image datasets and the iterators that batch them
// for training.
//
// Images are stored in CHW order as float32 values in [0, 255].
package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Dataset is an indexable collection of same-sized images.
type Dataset interface {
	Len() int
	// Get returns image i, CHW, with values in [0, 255].
	Get(i int) ([]float32, error)
	Shape() Shape
}

// Shape is the shape of a single image.
type Shape struct {
	Channels, Height, Width int
}

// Size is the number of values in an image of this shape.
func (s Shape) Size() int { return s.Channels * s.Height * s.Width }

// Memory is a Dataset held entirely in memory.
type Memory struct {
	shape  Shape
	images [][]float32
}

// NewMemory makes a dataset of the given images. All images must have the size of shape.
func NewMemory(shape Shape, images [][]float32) (*Memory, error) {
	for i, im := range images {
		if len(im) != shape.Size() {
			return nil, errors.Errorf("image %d has %d values, expected %d", i, len(im), shape.Size())
		}
	}
	return &Memory{shape: shape, images: images}, nil
}

// Random makes a dataset of n images of uniform noise.
func Random(r *rand.Rand, n int, shape Shape) *Memory {
	images := make([][]float32, n)
	for i := range images {
		im := make([]float32, shape.Size())
		for j := range im {
			im[j] = float32(r.Intn(256))
		}
		images[i] = im
	}
	return &Memory{shape: shape, images: images}
}

func (m *Memory) Len() int     { return len(m.images) }
func (m *Memory) Shape() Shape { return m.shape }

func (m *Memory) Get(i int) ([]float32, error) {
	if i < 0 || i >= len(m.images) {
		return nil, errors.Errorf("index %d out of range [0, %d)", i, len(m.images))
	}
	return m.images[i], nil
}
