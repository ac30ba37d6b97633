package ae

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

type paramRecord struct {
	Name  string
	Shape []int
	Data  []float32
}

func encodeParams(w io.Writer, nodes G.Nodes) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(len(nodes)); err != nil {
		return errors.WithStack(err)
	}
	for _, n := range nodes {
		rec := paramRecord{
			Name:  n.Name(),
			Shape: n.Shape().Clone(),
			Data:  n.Value().Data().([]float32),
		}
		if err := enc.Encode(&rec); err != nil {
			return errors.Wrapf(err, "encoding %v", n.Name())
		}
	}
	return nil
}

// decodeParams overwrites the values of already-built nodes. Names are not
// compared, so that a checkpoint of one network can be loaded into a copy
// built under another prefix.
func decodeParams(r io.Reader, nodes G.Nodes) error {
	dec := gob.NewDecoder(r)
	var count int
	if err := dec.Decode(&count); err != nil {
		return errors.WithStack(err)
	}
	if count != len(nodes) {
		return errors.Errorf("checkpoint holds %d parameters, network has %d", count, len(nodes))
	}
	for _, n := range nodes {
		var rec paramRecord
		if err := dec.Decode(&rec); err != nil {
			return errors.Wrapf(err, "decoding %v", n.Name())
		}
		if !n.Shape().Eq(rec.Shape) {
			return errors.Errorf("parameter %v has shape %v, checkpoint %v has %v", n.Name(), n.Shape(), rec.Name, rec.Shape)
		}
		copy(n.Value().Data().([]float32), rec.Data)
	}
	return nil
}

func (e *Encoder) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := encodeParams(&buf, e.Params())
	return buf.Bytes(), err
}

// GobDecode loads parameters into an encoder that has already been built.
func (e *Encoder) GobDecode(p []byte) error {
	if e.fc == nil {
		return errors.New("encoder has not been built")
	}
	return decodeParams(bytes.NewReader(p), e.Params())
}

func (d *Decoder) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := encodeParams(&buf, d.Params())
	return buf.Bytes(), err
}

// GobDecode loads parameters into a decoder that has already been built.
func (d *Decoder) GobDecode(p []byte) error {
	if d.fc == nil {
		return errors.New("decoder has not been built")
	}
	return decodeParams(bytes.NewReader(p), d.Params())
}

func (a *AutoEncoder) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := encodeParams(&buf, a.Params())
	return buf.Bytes(), err
}

// GobDecode loads parameters into an autoencoder that has already been built.
func (a *AutoEncoder) GobDecode(p []byte) error {
	if a.Encoder == nil || a.Decoder == nil {
		return errors.New("autoencoder has not been built")
	}
	return decodeParams(bytes.NewReader(p), a.Params())
}
