package ae

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

const kernel = 3

type maebe struct {
	err error
}

// generic monad... may be useful
func (m *maebe) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// convLayer is a 3×3 convolution with a per-channel bias.
type convLayer struct {
	w, b *G.Node
}

func newConv(g *G.ExprGraph, in, out int, name string) *convLayer {
	return &convLayer{
		w: G.NewTensor(g, Float, 4, G.WithShape(out, in, kernel, kernel), G.WithName(name+"_w"), G.WithInit(heN(in*kernel*kernel))),
		b: G.NewTensor(g, Float, 4, G.WithShape(1, out, 1, 1), G.WithName(name+"_b"), G.WithInit(G.Zeroes())),
	}
}

// heN draws weights from N(0, 2/fanIn).
func heN(fanIn int) G.InitWFn { return G.Gaussian(0, math.Sqrt(2/float64(fanIn))) }

func (l *convLayer) params() G.Nodes { return G.Nodes{l.w, l.b} }

type linearLayer struct {
	w, b *G.Node
}

func newLinear(g *G.ExprGraph, in, out int, name string) *linearLayer {
	return &linearLayer{
		w: G.NewMatrix(g, Float, G.WithShape(in, out), G.WithName(name+"_w"), G.WithInit(G.GlorotN(1.0))),
		b: G.NewMatrix(g, Float, G.WithShape(1, out), G.WithName(name+"_b"), G.WithInit(G.Zeroes())),
	}
}

func (l *linearLayer) params() G.Nodes { return G.Nodes{l.w, l.b} }

// resize is the spatial rescaling applied after a conv block.
type resize int

const (
	keep resize = iota
	halve
	double
)

func (r resize) apply(size int) int {
	switch r {
	case halve:
		return size / 2
	case double:
		return size * 2
	}
	return size
}

// convBlock is conv + optional ELU + optional resize.
type convBlock struct {
	conv  *convLayer
	act   bool
	scale resize
}

// stack runs the blocks in order.
func (m *maebe) stack(input *G.Node, blocks []convBlock) *G.Node {
	out := input
	for _, b := range blocks {
		out = m.conv(out, b.conv)
		if b.act {
			out = m.elu(out)
		}
		out = m.resize(out, b.scale)
	}
	return out
}

func (m *maebe) conv(input *G.Node, l *convLayer) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	padding := findPadding(input.Shape()[2], input.Shape()[3], kernel, kernel)
	convolved := m.do(func() (*G.Node, error) {
		return nnops.Conv2d(input, l.w, tensor.Shape{kernel, kernel}, padding, []int{1, 1}, []int{1, 1})
	})
	return m.do(func() (*G.Node, error) { return G.BroadcastAdd(convolved, l.b, nil, []byte{0, 2, 3}) })
}

func (m *maebe) linear(input *G.Node, l *linearLayer) *G.Node {
	xw := m.do(func() (*G.Node, error) { return G.Mul(input, l.w) })
	return m.do(func() (*G.Node, error) { return G.BroadcastAdd(xw, l.b, nil, []byte{0}) })
}

func (m *maebe) rectify(input *G.Node) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = nnops.Rectify(input); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// elu computes relu(x) + exp(-relu(-x)) - 1.
func (m *maebe) elu(input *G.Node) *G.Node {
	pos := m.rectify(input)
	neg := m.do(func() (*G.Node, error) { return G.Neg(input) })
	neg = m.rectify(neg)
	neg = m.do(func() (*G.Node, error) { return G.Neg(neg) })
	neg = m.do(func() (*G.Node, error) { return G.Exp(neg) })
	neg = m.do(func() (*G.Node, error) { return G.Sub(neg, one()) })
	return m.do(func() (*G.Node, error) { return G.Add(pos, neg) })
}

func (m *maebe) reshape(input *G.Node, to tensor.Shape) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Reshape(input, to); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) flatten(input *G.Node) *G.Node {
	if m.err != nil {
		return nil
	}
	s := input.Shape()
	return m.reshape(input, tensor.Shape{s[0], s.TotalSize() / s[0]})
}

// resize scales the spatial dimensions of a BCHW node by 2. Halving averages
// 2×2 cells, doubling repeats each pixel. Both are separable, so the node is
// multiplied by a fixed matrix along the width and then along the height.
func (m *maebe) resize(input *G.Node, r resize) *G.Node {
	if m.err != nil {
		return nil
	}
	if r == keep {
		return input
	}
	s := input.Shape()
	b, c, h, w := s[0], s[1], s[2], s[3]
	h2, w2 := r.apply(h), r.apply(w)
	g := input.Graph()
	cols := resampler(g, w, w2)
	rows := resampler(g, h, h2)

	x := m.reshape(input, tensor.Shape{b * c * h, w})
	x = m.do(func() (*G.Node, error) { return G.Mul(x, cols) })
	x = m.reshape(x, tensor.Shape{b * c, h, w2})
	x = m.do(func() (*G.Node, error) { return G.Transpose(x, 0, 2, 1) })
	x = m.reshape(x, tensor.Shape{b * c * w2, h})
	x = m.do(func() (*G.Node, error) { return G.Mul(x, rows) })
	x = m.reshape(x, tensor.Shape{b * c, w2, h2})
	x = m.do(func() (*G.Node, error) { return G.Transpose(x, 0, 2, 1) })
	return m.reshape(x, tensor.Shape{b, c, h2, w2})
}

// l1 is the mean absolute error between output and target.
func (m *maebe) l1(output, target *G.Node) *G.Node {
	diff := m.do(func() (*G.Node, error) { return G.Sub(output, target) })
	abs := m.do(func() (*G.Node, error) { return G.Abs(diff) })
	return m.do(func() (*G.Node, error) { return G.Mean(abs) })
}

// resampler returns the (from, to) matrix mapping a row of length from onto
// a row of length to. Nodes are named by size so that the graph reuses them.
func resampler(g *G.ExprGraph, from, to int) *G.Node {
	return G.NewMatrix(g, Float,
		G.WithShape(from, to),
		G.WithName(fmt.Sprintf("resample_%d_%d", from, to)),
		G.WithValue(resampleMatrix(from, to)))
}

func resampleMatrix(from, to int) *tensor.Dense {
	backing := make([]float32, from*to)
	switch {
	case to < from:
		// average pairs
		for i := 0; i < from; i++ {
			backing[i*to+i/2] = 0.5
		}
	default:
		// nearest neighbour
		for j := 0; j < to; j++ {
			backing[(j/2)*to+j] = 1
		}
	}
	return tensor.New(tensor.WithShape(from, to), tensor.WithBacking(backing))
}

func one() *G.Node {
	switch Float {
	case G.Float64:
		return G.NewConstant(float64(1))
	}
	return G.NewConstant(float32(1))
}

func findPadding(inputX, inputY, kernelX, kernelY int) []int {
	return []int{
		(inputX - 1 - inputX + kernelX) / 2,
		(inputY - 1 - inputY + kernelY) / 2,
	}
}
