package mjpeg

import (
	"bytes"
	"image/jpeg"
	"log"
	"net/http"

	"github.com/gorgonia/began/sample"
	"github.com/mattn/go-mjpeg"
)

// Encoder publishes captioned sample grids as a motion JPEG stream. It
// implements the began.OutputEncoder interface and http.Handler.
type Encoder struct {
	Quality int

	c      *sample.Captioner
	stream *mjpeg.Stream
}

func (e *Encoder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.stream.ServeHTTP(w, r)
}

// NewEncoder creates a stream with no frames yet.
func NewEncoder() *Encoder {
	return &Encoder{
		Quality: jpeg.DefaultQuality,
		c:       sample.NewCaptioner(),
		stream:  mjpeg.NewStream(),
	}
}

// Encode publishes the samples in ms as the current frame.
func (enc *Encoder) Encode(ms sample.MetaState) error {
	im := enc.c.Draw(ms.Samples(), sample.Lines(ms)...)
	var b bytes.Buffer
	err := jpeg.Encode(&b, im, &jpeg.Options{Quality: enc.Quality})
	if err != nil {
		log.Println(err)
		return err
	}
	err = enc.stream.Update(b.Bytes())
	if err != nil {
		log.Println(err)
		return err
	}
	return nil
}

func (enc *Encoder) Flush() error { return nil }
