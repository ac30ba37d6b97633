package began

import (
	"context"
	"math/rand"
	"strconv"
	"strings"

	ae "github.com/gorgonia/began/aenet"
	"github.com/gorgonia/began/dataset"
	"github.com/pkg/errors"
)

// randomPrefix selects a synthetic dataset of uniform noise, e.g. "random:256".
const randomPrefix = "random:"

// OpenDataset loads the dataset named in conf: either a directory of images
// or "random:N" for N images of noise.
func OpenDataset(ctx context.Context, conf Config) (dataset.Dataset, error) {
	nc := conf.NetConf()
	shape := dataset.Shape{Channels: nc.Channels, Height: nc.Height, Width: nc.Width}
	if strings.HasPrefix(conf.Dataset, randomPrefix) {
		n, err := strconv.Atoi(strings.TrimPrefix(conf.Dataset, randomPrefix))
		if err != nil || n < 1 {
			return nil, errors.Errorf("invalid random dataset %q", conf.Dataset)
		}
		return dataset.Random(rand.New(rand.NewSource(conf.Seed)), n, shape), nil
	}
	return dataset.LoadImageFolder(ctx, conf.Dataset, shape)
}

// NewIterator batches ds as configured. With conf.Parallel > 0 batches are
// prepared in the background by a *dataset.Prefetcher, which the Trainer
// closes.
func NewIterator(ctx context.Context, conf Config, ds dataset.Dataset) (ae.Iterator, error) {
	it, err := dataset.NewSerialIterator(ds, conf.BatchSize, true, conf.Seed)
	if err != nil {
		return nil, err
	}
	if conf.Parallel == 0 {
		return it, nil
	}
	return dataset.NewPrefetcher(ctx, it, conf.Parallel), nil
}
