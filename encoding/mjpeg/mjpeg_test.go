package mjpeg

import (
	"image"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type state struct{ im image.Image }

func (s state) Name() string         { return "test" }
func (s state) Epoch() int           { return 1 }
func (s state) Iteration() int       { return 20 }
func (s state) Samples() image.Image { return s.im }

func TestEncoder(t *testing.T) {
	enc := NewEncoder()
	var _ http.Handler = enc

	assert.NoError(t, enc.Encode(state{image.NewRGBA(image.Rect(0, 0, 16, 16))}))
	assert.NoError(t, enc.Encode(state{image.NewGray(image.Rect(0, 0, 8, 8))}))
	assert.NoError(t, enc.Flush())
}
