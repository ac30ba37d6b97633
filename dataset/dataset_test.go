package dataset

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

var tiny = Shape{Channels: 1, Height: 2, Width: 2}

func counting(n int) *Memory {
	images := make([][]float32, n)
	for i := range images {
		images[i] = []float32{float32(i), float32(i), float32(i), float32(i)}
	}
	m, err := NewMemory(tiny, images)
	if err != nil {
		panic(err)
	}
	return m
}

func TestMemory(t *testing.T) {
	_, err := NewMemory(tiny, [][]float32{{1, 2, 3}})
	assert.Error(t, err)

	m := counting(3)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, tiny, m.Shape())
	im, err := m.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2, 2, 2}, im)

	_, err = m.Get(3)
	assert.Error(t, err)
	_, err = m.Get(-1)
	assert.Error(t, err)
}

func TestRandom(t *testing.T) {
	shape := Shape{3, 4, 4}
	m := Random(rand.New(rand.NewSource(1)), 5, shape)
	assert.Equal(t, 5, m.Len())
	for i := 0; i < m.Len(); i++ {
		im, err := m.Get(i)
		require.NoError(t, err)
		assert.Len(t, im, shape.Size())
		for _, v := range im {
			assert.True(t, v >= 0 && v <= 255, "%v out of range", v)
		}
	}
}

func TestSerialIterator(t *testing.T) {
	_, err := NewSerialIterator(counting(2), 3, false, 1)
	assert.Error(t, err)
	_, err = NewSerialIterator(counting(2), 0, false, 1)
	assert.Error(t, err)

	// 7 images in batches of 3: 2 batches an epoch, the 7th is dropped
	it, err := NewSerialIterator(counting(7), 3, false, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, it.BatchesPerEpoch())

	b, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1, 2, 2}, b.Shape())
	assert.Equal(t, []float32{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2}, b.Data())
	assert.False(t, it.IsNewEpoch())
	assert.Equal(t, 0, it.Epoch())

	_, err = it.Next()
	require.NoError(t, err)
	assert.True(t, it.IsNewEpoch())
	assert.Equal(t, 1, it.Epoch())

	b, err = it.Next()
	require.NoError(t, err)
	assert.False(t, it.IsNewEpoch())
	assert.Equal(t, float32(0), b.Data().([]float32)[0], "a new epoch restarts from the first image")
	assert.Equal(t, 3, it.Iteration())
}

func TestSerialIteratorShuffle(t *testing.T) {
	it, err := NewSerialIterator(counting(8), 8, true, 42)
	require.NoError(t, err)

	seen := func() map[float32]bool {
		b, err := it.Next()
		require.NoError(t, err)
		data := b.Data().([]float32)
		m := make(map[float32]bool)
		for i := 0; i < len(data); i += tiny.Size() {
			m[data[i]] = true
		}
		return m
	}
	// every image exactly once per epoch
	assert.Len(t, seen(), 8)
	assert.True(t, it.IsNewEpoch())
	assert.Len(t, seen(), 8)
	assert.Equal(t, 2, it.Epoch())
}

func firstImages(t *testing.T, it Iterator, batches int) (firsts []float32, epochs []bool) {
	t.Helper()
	for i := 0; i < batches; i++ {
		b, err := it.Next()
		require.NoError(t, err)
		firsts = append(firsts, b.Data().([]float32)[0])
		epochs = append(epochs, it.IsNewEpoch())
	}
	return firsts, epochs
}

func TestSerialIteratorSeek(t *testing.T) {
	// 7 images in batches of 2: 3 batches an epoch
	it, err := NewSerialIterator(counting(7), 2, true, 3)
	require.NoError(t, err)
	firstImages(t, it, 5)
	pos := it.Position()
	assert.Equal(t, Position{Len: 7, Seed: 3, Orders: 2, Pos: 4, Epoch: 1, Iteration: 5}, pos)

	resumed, err := NewSerialIterator(counting(7), 2, true, 99)
	require.NoError(t, err)
	require.NoError(t, resumed.Seek(pos))
	assert.Equal(t, pos, resumed.Position())

	wantFirsts, wantEpochs := firstImages(t, it, 7)
	firsts, epochs := firstImages(t, resumed, 7)
	assert.Equal(t, wantFirsts, firsts)
	assert.Equal(t, wantEpochs, epochs)
	assert.Equal(t, it.Position(), resumed.Position())

	tests := []struct {
		name string
		pos  Position
	}{
		{"other dataset", Position{Len: 8, Orders: 1}},
		{"no order", Position{Len: 7}},
		{"past the last batch", Position{Len: 7, Orders: 1, Pos: 6}},
		{"inside a batch", Position{Len: 7, Orders: 1, Pos: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, resumed.Seek(tt.pos))
		})
	}
}

func TestPrefetcherSeek(t *testing.T) {
	ref, err := NewSerialIterator(counting(6), 2, true, 5)
	require.NoError(t, err)
	it, err := NewSerialIterator(counting(6), 2, true, 5)
	require.NoError(t, err)
	p := NewPrefetcher(context.Background(), it, 4)
	defer p.Close()

	assert.Equal(t, ref.Position(), p.Position())
	firstImages(t, ref, 2)
	firstImages(t, p, 2)
	pos := p.Position()
	assert.Equal(t, ref.Position(), pos, "the position follows the batches handed out")

	// read ahead, then go back
	firstImages(t, p, 3)
	require.NoError(t, p.Seek(pos))
	assert.Equal(t, pos, p.Position())
	wantFirsts, wantEpochs := firstImages(t, ref, 4)
	firsts, epochs := firstImages(t, p, 4)
	assert.Equal(t, wantFirsts, firsts)
	assert.Equal(t, wantEpochs, epochs)

	assert.Error(t, p.Seek(Position{Len: 5, Orders: 1}))
	_, err = p.Next()
	assert.NoError(t, err, "a rejected position leaves the prefetcher running")

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Error(t, p.Seek(pos))
}

type failing struct{ *Memory }

func (f failing) Get(i int) ([]float32, error) { return nil, errors.New("broken") }

func TestPrefetcher(t *testing.T) {
	it, err := NewSerialIterator(counting(4), 2, false, 1)
	require.NoError(t, err)
	p := NewPrefetcher(context.Background(), it, 3)

	var epochs []bool
	for i := 0; i < 4; i++ {
		b, err := p.Next()
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, 1, 2, 2}, b.Shape())
		epochs = append(epochs, p.IsNewEpoch())
	}
	assert.Equal(t, []bool{false, true, false, true}, epochs)
	assert.Equal(t, 2, p.Epoch())
	require.NoError(t, p.Close())

	_, err = p.Next()
	assert.Error(t, err)
}

func TestPrefetcherError(t *testing.T) {
	it, err := NewSerialIterator(failing{counting(4)}, 2, false, 1)
	require.NoError(t, err)
	p := NewPrefetcher(context.Background(), it, 2)
	defer p.Close()

	_, err = p.Next()
	assert.EqualError(t, err, "broken")
	_, err = p.Next()
	assert.Error(t, err)
}

func TestLoadImageFolder(t *testing.T) {
	dir := t.TempDir()
	colors := []color.RGBA{{255, 0, 0, 255}, {0, 0, 255, 255}}
	for i, c := range colors {
		im := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				im.SetRGBA(x, y, c)
			}
		}
		f, err := os.Create(filepath.Join(dir, []string{"a.png", "b.PNG"}[i]))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, im))
		require.NoError(t, f.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644))

	shape := Shape{3, 4, 4}
	ds, err := LoadImageFolder(context.Background(), dir, shape)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Len(t, ds.Files, 2)

	red, err := ds.Get(0)
	require.NoError(t, err)
	assert.Len(t, red, shape.Size())
	assert.InDelta(t, 255, red[0], 1)
	assert.InDelta(t, 0, red[16], 1)
	assert.InDelta(t, 0, red[32], 1)

	blue, err := ds.Get(1)
	require.NoError(t, err)
	assert.InDelta(t, 255, blue[32], 1)

	gray, err := LoadImageFolder(context.Background(), dir, Shape{1, 4, 4})
	require.NoError(t, err)
	g, _ := gray.Get(0)
	assert.InDelta(t, 0.299*255, g[0], 1)

	_, err = LoadImageFolder(context.Background(), dir, Shape{2, 4, 4})
	assert.Error(t, err)
	_, err = LoadImageFolder(context.Background(), t.TempDir(), shape)
	assert.Error(t, err)
}
