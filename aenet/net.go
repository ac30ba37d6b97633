package ae

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var Float = G.Float32

// poolAfter lists the encoder convolutions followed by 2× average pooling.
var poolAfter = map[int]bool{0: true, 2: true, 4: true, 6: true}

// upsampleAfter lists the decoder convolutions followed by 2× upsampling.
var upsampleAfter = map[int]bool{2: true, 4: true, 6: true}

func encoderWidths(n, channels int) []int {
	return []int{channels, n, n, 2 * n, 2 * n, 3 * n, 3 * n, 4 * n, 4 * n, 4 * n}
}

// Encoder maps a BCHW image batch to a (B, H) latent batch.
//
// Nine 3×3 convolutions with ELU activations; convolutions 0, 2, 4 and 6
// are followed by 2× average pooling. The last feature map is flattened and
// projected by a fully connected layer without activation.
type Encoder struct {
	Config
	convs []*convLayer
	fc    *linearLayer
}

// NewEncoder creates the parameters of an encoder on g. Parameter names are
// prefixed with name.
func NewEncoder(g *G.ExprGraph, conf Config, name string) *Encoder {
	widths := encoderWidths(conf.N, conf.Channels)
	e := &Encoder{Config: conf}
	for i := 0; i < len(widths)-1; i++ {
		e.convs = append(e.convs, newConv(g, widths[i], widths[i+1], fmt.Sprintf("%s_conv_%d", name, i)))
	}
	eh, ew := conf.encoded()
	e.fc = newLinear(g, widths[len(widths)-1]*eh*ew, conf.H, name+"_fc")
	return e
}

func (e *Encoder) blocks() []convBlock {
	retVal := make([]convBlock, len(e.convs))
	for i, c := range e.convs {
		retVal[i] = convBlock{conv: c, act: true}
		if poolAfter[i] {
			retVal[i].scale = halve
		}
	}
	return retVal
}

// Encode applies the encoder to x. It may be called more than once on the
// same graph; every call shares the encoder's parameters.
func (e *Encoder) Encode(x *G.Node) (*G.Node, error) {
	var m maebe
	out := m.stack(x, e.blocks())
	out = m.flatten(out)
	out = m.linear(out, e.fc)
	if m.err != nil {
		return nil, errors.Wrap(m.err, "encoder")
	}
	return out, nil
}

// Params returns the learnable nodes in construction order.
func (e *Encoder) Params() G.Nodes {
	var retVal G.Nodes
	for _, c := range e.convs {
		retVal = append(retVal, c.params()...)
	}
	return append(retVal, e.fc.params()...)
}

// Decoder maps a (B, H) latent batch to a BCHW image batch. It is also the
// BEGAN generator.
//
// A fully connected layer projects the latent to an N×(H/8)×(W/8) feature map,
// followed by nine 3×3 convolutions. Convolutions 2, 4 and 6 are followed by
// 2× nearest upsampling. The last convolution has no activation.
type Decoder struct {
	Config
	fc    *linearLayer
	convs []*convLayer // convs[i] is conv_{i+1}
}

// NewDecoder creates the parameters of a decoder on g.
func NewDecoder(g *G.ExprGraph, conf Config, name string) *Decoder {
	sh, sw := conf.seed()
	d := &Decoder{
		Config: conf,
		fc:     newLinear(g, conf.H, conf.N*sh*sw, name+"_fc"),
	}
	for i := 1; i <= 8; i++ {
		d.convs = append(d.convs, newConv(g, conf.N, conf.N, fmt.Sprintf("%s_conv_%d", name, i)))
	}
	d.convs = append(d.convs, newConv(g, conf.N, conf.Channels, name+"_conv_9"))
	return d
}

func (d *Decoder) blocks() []convBlock {
	retVal := make([]convBlock, len(d.convs))
	last := len(d.convs) - 1
	for i, c := range d.convs {
		retVal[i] = convBlock{conv: c, act: i != last}
		if upsampleAfter[i+1] {
			retVal[i].scale = double
		}
	}
	return retVal
}

// Decode applies the decoder to h.
func (d *Decoder) Decode(h *G.Node) (*G.Node, error) {
	var m maebe
	sh, sw := d.seed()
	fv := m.linear(h, d.fc)
	fv = m.elu(fv)
	if m.err == nil {
		fv = m.reshape(fv, tensor.Shape{h.Shape()[0], d.N, sh, sw})
	}
	out := m.stack(fv, d.blocks())
	if m.err != nil {
		return nil, errors.Wrap(m.err, "decoder")
	}
	return out, nil
}

// Params returns the learnable nodes in construction order.
func (d *Decoder) Params() G.Nodes {
	retVal := append(G.Nodes{}, d.fc.params()...)
	for _, c := range d.convs {
		retVal = append(retVal, c.params()...)
	}
	return retVal
}

// AutoEncoder is the BEGAN discriminator: an Encoder followed by a Decoder.
// Its output is a reconstruction of its input.
type AutoEncoder struct {
	*Encoder
	*Decoder
}

// NewAutoEncoder creates the parameters of an autoencoder on g.
func NewAutoEncoder(g *G.ExprGraph, conf Config, name string) *AutoEncoder {
	return &AutoEncoder{
		Encoder: NewEncoder(g, conf, name+"_e"),
		Decoder: NewDecoder(g, conf, name+"_d"),
	}
}

// Discriminate reconstructs x.
func (a *AutoEncoder) Discriminate(x *G.Node) (*G.Node, error) {
	h, err := a.Encode(x)
	if err != nil {
		return nil, err
	}
	return a.Decode(h)
}

// Params returns the encoder's parameters followed by the decoder's.
func (a *AutoEncoder) Params() G.Nodes {
	return append(a.Encoder.Params(), a.Decoder.Params()...)
}

// Conf returns the shared configuration.
func (a *AutoEncoder) Conf() Config { return a.Encoder.Config }
