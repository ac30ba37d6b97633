package ae

import (
	"bytes"
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type manyErr []error

func (err manyErr) Error() string {
	var buf bytes.Buffer
	for _, e := range err {
		fmt.Fprintln(&buf, e.Error())
	}
	return buf.String()
}

// copyParams copies the values of src into dst. Both must come from networks
// built with the same Config.
func copyParams(dst, src G.Nodes) error {
	if len(dst) != len(src) {
		return errors.Errorf("cannot copy %d parameters into %d", len(src), len(dst))
	}
	for i, n := range src {
		original, ok := n.Value().Data().([]float32)
		if !ok {
			return errors.Errorf("parameter %v is not float32", n.Name())
		}
		cloned := dst[i].Value().Data().([]float32)
		if len(cloned) != len(original) {
			return errors.Errorf("parameter %v has %d values, %v has %d", n.Name(), len(original), dst[i].Name(), len(cloned))
		}
		copy(cloned, original)
	}
	return nil
}

// scalar extracts the float32 held by a scalar value.
func scalar(v G.Value) float32 {
	if v == nil {
		return 0
	}
	switch d := v.Data().(type) {
	case float32:
		return d
	case []float32:
		if len(d) > 0 {
			return d[0]
		}
	case float64:
		return float32(d)
	}
	return 0
}

// uniform fills t with values drawn from U[-1, 1).
func uniform(r *rand.Rand, t *tensor.Dense) {
	data := t.Data().([]float32)
	for i := range data {
		data[i] = 2*r.Float32() - 1
	}
}
