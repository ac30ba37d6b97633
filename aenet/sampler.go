package ae

import (
	"bytes"
	"log"
	"math/rand"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Sampler holds a forward only generator and a VM. By using a Sampler there
// is no need to build a graph every time images are generated.
type Sampler struct {
	d *Decoder
	g *G.ExprGraph
	m G.VM

	z   *G.Node
	out G.Value

	input *tensor.Dense
	buf   *bytes.Buffer
}

// NewSampler creates a fwd only generator producing count images per call.
func NewSampler(conf Config, count int, toLog bool) (*Sampler, error) {
	conf.FwdOnly = true
	conf.BatchSize = count
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid sampler config %+v", conf)
	}
	retVal := &Sampler{
		g:     G.NewGraph(),
		input: tensor.New(tensor.WithShape(count, conf.H), tensor.Of(Float)),
		buf:   new(bytes.Buffer),
	}
	retVal.d = NewDecoder(retVal.g, conf, "gen")
	retVal.z = G.NewMatrix(retVal.g, Float, G.WithShape(count, conf.H), G.WithName("z"))
	out, err := retVal.d.Decode(retVal.z)
	if err != nil {
		return nil, err
	}
	G.Read(out, &retVal.out)

	if toLog {
		logger := log.New(retVal.buf, "", 0)
		retVal.m = G.NewTapeMachine(retVal.g,
			G.WithLogger(logger),
			G.WithWatchlist(),
			G.TraceExec(),
			G.WithValueFmt("%+1.1v"),
			G.WithNaNWatch(),
		)
	} else {
		retVal.m = G.NewTapeMachine(retVal.g)
	}
	return retVal, nil
}

// CopyFrom loads the current parameters of a trained generator.
func (s *Sampler) CopyFrom(d *Decoder) error { return copyParams(s.d.Params(), d.Params()) }

// Decoder returns the sampler's own generator, e.g. for GobDecode.
func (s *Sampler) Decoder() *Decoder { return s.d }

// Generate decodes z, a (count, H) latent batch, into images. The returned
// tensor is a copy and stays valid across calls.
func (s *Sampler) Generate(z *tensor.Dense) (*tensor.Dense, error) {
	if !z.Shape().Eq(s.input.Shape()) {
		return nil, errors.Errorf("latent batch has shape %v, expected %v", z.Shape(), s.input.Shape())
	}
	copy(s.input.Data().([]float32), z.Data().([]float32))
	return s.run()
}

// Random decodes a latent batch drawn uniformly from [-1, 1).
func (s *Sampler) Random(r *rand.Rand) (*tensor.Dense, error) {
	uniform(r, s.input)
	return s.run()
}

func (s *Sampler) run() (*tensor.Dense, error) {
	s.buf.Reset()
	s.m.Reset()
	if err := G.Let(s.z, s.input); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := s.m.RunAll(); err != nil {
		return nil, err
	}
	return s.out.(tensor.Tensor).Clone().(*tensor.Dense), nil
}

// ExecLog returns the execution log. If the sampler was created with
// toLog = false, then it will return an empty string
func (s *Sampler) ExecLog() string { return s.buf.String() }

// Close implements a closer, because well, a gorgonia VM is a resource.
func (s *Sampler) Close() error { return s.m.Close() }
