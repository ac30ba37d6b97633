package ae

import (
	"strings"
	"testing"

	"github.com/awalterschulze/gographviz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func TestArchitectureMatchesGraph(t *testing.T) {
	conf := tinyConf(2)
	gen, dis := Architecture(conf)

	g := G.NewGraph()
	a := NewAutoEncoder(g, conf, "dis")
	x := randomImages(g, conf, "x")
	h, err := a.Encode(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	out, err := a.Decode(h)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	lastEnc := encoderLayers(conf, "discriminator")
	assert.Equal(t, []int(h.Shape()), lastEnc[len(lastEnc)-1].Out)
	assert.Equal(t, []int(out.Shape()), dis[len(dis)-1].Out)
	assert.Equal(t, []int(out.Shape()), gen[len(gen)-1].Out)

	var params int
	for _, l := range dis {
		params += l.Params
	}
	var fromGraph int
	for _, n := range a.Params() {
		fromGraph += n.Shape().TotalSize()
	}
	assert.Equal(t, fromGraph, params)
}

func TestToDot(t *testing.T) {
	gen, dis := Architecture(tinyConf(1))
	dot, err := ToDot(gen, dis)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(dot), "digraph"), dot)
	assert.Contains(t, dot, "cluster_0")
	assert.Contains(t, dot, "cluster_1")
	assert.Contains(t, dot, "d_conv_9")
	assert.Contains(t, dot, "e_fc")

	parsed, err := gographviz.ParseString(dot)
	require.NoError(t, err, "output is valid dot")
	assert.NotNil(t, parsed)

	empty, err := ToDot()
	require.NoError(t, err)
	assert.Contains(t, empty, "digraph")
}
