package ae

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"
)

// Layer describes one layer of a network, for display.
type Layer struct {
	Network string
	Name    string
	Kind    string
	In, Out []int
	Params  int
}

// Architecture lists the layers of the generator and of the discriminator,
// with their output shapes, computed from conf without building a graph.
func Architecture(conf Config) (gen, dis []Layer) {
	gen = decoderLayers(conf, "generator")
	dis = append(encoderLayers(conf, "discriminator"), decoderLayers(conf, "discriminator")...)
	return gen, dis
}

func encoderLayers(conf Config, network string) []Layer {
	var retVal []Layer
	b := conf.BatchSize
	widths := encoderWidths(conf.N, conf.Channels)
	h, w := conf.Height, conf.Width
	for i := 0; i < len(widths)-1; i++ {
		in := []int{b, widths[i], h, w}
		retVal = append(retVal, Layer{
			Network: network,
			Name:    fmt.Sprintf("e_conv_%d", i),
			Kind:    "conv3x3+elu",
			In:      in,
			Out:     []int{b, widths[i+1], h, w},
			Params:  widths[i+1]*widths[i]*kernel*kernel + widths[i+1],
		})
		if poolAfter[i] {
			retVal = append(retVal, Layer{
				Network: network,
				Name:    fmt.Sprintf("e_pool_%d", i),
				Kind:    "avgpool2x2",
				In:      []int{b, widths[i+1], h, w},
				Out:     []int{b, widths[i+1], h / 2, w / 2},
			})
			h, w = h/2, w/2
		}
	}
	last := widths[len(widths)-1]
	retVal = append(retVal, Layer{
		Network: network,
		Name:    "e_fc",
		Kind:    "linear",
		In:      []int{b, last * h * w},
		Out:     []int{b, conf.H},
		Params:  last*h*w*conf.H + conf.H,
	})
	return retVal
}

func decoderLayers(conf Config, network string) []Layer {
	b := conf.BatchSize
	h, w := conf.seed()
	retVal := []Layer{{
		Network: network,
		Name:    "d_fc",
		Kind:    "linear+elu",
		In:      []int{b, conf.H},
		Out:     []int{b, conf.N * h * w},
		Params:  conf.H*conf.N*h*w + conf.N*h*w,
	}}
	for i := 1; i <= 9; i++ {
		out, kind := conf.N, "conv3x3+elu"
		if i == 9 {
			out, kind = conf.Channels, "conv3x3"
		}
		retVal = append(retVal, Layer{
			Network: network,
			Name:    fmt.Sprintf("d_conv_%d", i),
			Kind:    kind,
			In:      []int{b, conf.N, h, w},
			Out:     []int{b, out, h, w},
			Params:  out*conf.N*kernel*kernel + out,
		})
		if upsampleAfter[i] {
			retVal = append(retVal, Layer{
				Network: network,
				Name:    fmt.Sprintf("d_upsample_%d", i),
				Kind:    "nearest2x",
				In:      []int{b, conf.N, h, w},
				Out:     []int{b, conf.N, h * 2, w * 2},
			})
			h, w = h*2, w*2
		}
	}
	return retVal
}

// ToDot renders the layers as a graphviz digraph, one cluster per network.
func ToDot(networks ...[]Layer) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		return "", errors.WithStack(err)
	}
	if err := g.SetDir(true); err != nil {
		return "", errors.WithStack(err)
	}

	var buf bytes.Buffer
	for ni, layers := range networks {
		if len(layers) == 0 {
			continue
		}
		cluster := fmt.Sprintf("cluster_%d", ni)
		if err := g.AddSubGraph("G", cluster, map[string]string{"label": fmt.Sprintf("%q", layers[0].Network)}); err != nil {
			return "", errors.Wrapf(err, "cluster %v", cluster)
		}
		var prev string
		for li, l := range layers {
			id := fmt.Sprintf("n%d_%d", ni, li)
			if err := tmpl.Execute(&buf, l); err != nil {
				return "", errors.Wrapf(err, "layer %v", l.Name)
			}
			attrs := map[string]string{
				"fontname": "Monaco",
				"shape":    "none",
				"label":    buf.String(),
			}
			buf.Reset()
			if err := g.AddNode(cluster, id, attrs); err != nil {
				return "", errors.Wrapf(err, "layer %v", l.Name)
			}
			if prev != "" {
				if err := g.AddEdge(prev, id, true, nil); err != nil {
					return "", errors.Wrapf(err, "edge %v -> %v", prev, id)
				}
			}
			prev = id
		}
	}
	return g.String(), nil
}

const tmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD>Name</TD><TD>{{.Name}}</TD></TR>
<TR><TD>Kind</TD><TD>{{.Kind}}</TD></TR>
<TR><TD>Out</TD><TD>{{.Out}}</TD></TR>
<TR><TD>Params</TD><TD>{{.Params}}</TD></TR>
</TABLE>
>
`

var tmpl *template.Template

func init() {
	tmpl = template.Must(template.New("layer").Parse(tmplRaw))
}
