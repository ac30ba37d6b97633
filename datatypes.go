package began

import (
	ae "github.com/gorgonia/began/aenet"
	"github.com/gorgonia/began/dataset"
	"github.com/gorgonia/began/sample"
	"github.com/pkg/errors"
)

// ErrNonFinite is returned by Trainer.Run when a loss becomes NaN or infinite.
var ErrNonFinite = errors.New("non-finite loss")

// OutputEncoder encodes the samples of a meta state as whatever.
//
// Examples are the GIF encoder and the MJPEG stream.
type OutputEncoder interface {
	Encode(ms sample.MetaState) error
	Flush() error
}

// Snapshot is everything needed to resume a training run.
type Snapshot struct {
	RunID         string
	Conf          Config
	State         ae.State
	Generator     []byte // gob encoded generator parameters
	Discriminator []byte // gob encoded discriminator parameters

	Iterator *dataset.Position // nil if the iterator cannot be resumed
}
