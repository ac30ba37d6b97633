package ae

import (
	"bytes"
	"encoding/gob"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestEncodeDecode(t *testing.T) {
	assert := assert.New(t)
	conf := tinyConf(2)
	a := NewAutoEncoder(G.NewGraph(), conf, "dis")

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(a); err != nil {
		t.Fatalf("Encoding Failure %v", err)
	}

	// a different prefix on a different graph still loads
	a2 := NewAutoEncoder(G.NewGraph(), conf, "frozen")
	dec := gob.NewDecoder(&buf)
	if err := dec.Decode(a2); err != nil {
		t.Fatalf("Decoding Failure %v", err)
	}

	amodel := a.Params()
	a2model := a2.Params()
	for i, n := range amodel {
		assert.Equal(n.Value().Data(), a2model[i].Value().Data(), "%d - %v vs %v should have the same data", i, amodel[i], a2model[i])
	}
}

func TestDecodeMismatch(t *testing.T) {
	small := NewDecoder(G.NewGraph(), tinyConf(1), "gen")
	p, err := small.GobEncode()
	require.NoError(t, err)

	wider := tinyConf(1)
	wider.N = 3
	big := NewDecoder(G.NewGraph(), wider, "gen")
	assert.Error(t, big.GobDecode(p))

	var unbuilt Decoder
	assert.Error(t, unbuilt.GobDecode(p))

	// an encoder checkpoint does not fit a decoder
	e := NewEncoder(G.NewGraph(), tinyConf(1), "enc")
	pe, err := e.GobEncode()
	require.NoError(t, err)
	assert.Error(t, small.GobDecode(pe))
}

func TestSampler(t *testing.T) {
	conf := tinyConf(2)
	gen := NewDecoder(G.NewGraph(), conf, "gen")

	s, err := NewSampler(conf, 3, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer s.Close()
	require.NoError(t, s.CopyFrom(gen))
	for i, n := range gen.Params() {
		assert.Equal(t, n.Value().Data(), s.Decoder().Params()[i].Value().Data())
	}

	z := tensor.New(tensor.WithShape(3, conf.H), tensor.WithBacking(make([]float32, 3*conf.H)))
	first, err := s.Generate(z)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{3, 3, 64, 64}, first.Shape())

	// same latent, same images; results are copies
	second, err := s.Generate(z)
	require.NoError(t, err)
	assert.Equal(t, first.Data(), second.Data())
	assert.NotSame(t, first, second)

	random, err := s.Random(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 3, 64, 64}, random.Shape())
	assert.Equal(t, "", s.ExecLog(), "Should not have any logs")

	_, err = s.Generate(tensor.New(tensor.WithShape(2, conf.H), tensor.Of(Float)))
	assert.Error(t, err)
}
