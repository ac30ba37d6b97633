package dataset

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Iterator yields fixed-size batches of a dataset, epoch after epoch.
type Iterator interface {
	// Next returns a (batchSize, C, H, W) batch.
	Next() (*tensor.Dense, error)
	// IsNewEpoch reports whether the last batch returned by Next completed an epoch.
	IsNewEpoch() bool
	// Epoch is the number of completed epochs.
	Epoch() int
}

// Resumable is an Iterator whose position can be saved and restored.
type Resumable interface {
	Iterator
	Position() Position
	Seek(Position) error
}

// Position is where a SerialIterator stands. The visiting order is not
// stored; it is replayed from Seed and the number of orders drawn.
type Position struct {
	Len       int // dataset length
	Seed      int64
	Orders    int // orders drawn so far, including the current one
	Pos       int // offset of the next batch in the current order
	Epoch     int
	Iteration int
	NewEpoch  bool
}

// SerialIterator batches a dataset in the caller's goroutine. Each epoch
// visits every full batch once; a trailing partial batch is dropped.
type SerialIterator struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	seed      int64
	r         *rand.Rand
	orders    int

	order     []int
	pos       int
	epoch     int
	newEpoch  bool
	iteration int
}

// NewSerialIterator makes an iterator over ds. With shuffle set, every epoch
// is visited in a fresh order drawn from a rng seeded with seed.
func NewSerialIterator(ds Dataset, batchSize int, shuffle bool, seed int64) (*SerialIterator, error) {
	if batchSize < 1 {
		return nil, errors.Errorf("invalid batch size %d", batchSize)
	}
	if ds.Len() < batchSize {
		return nil, errors.Errorf("dataset of %d images is smaller than a batch of %d", ds.Len(), batchSize)
	}
	it := &SerialIterator{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		seed:      seed,
		r:         rand.New(rand.NewSource(seed)),
		order:     make([]int, ds.Len()),
	}
	it.reorder()
	return it, nil
}

func (it *SerialIterator) reorder() {
	for i := range it.order {
		it.order[i] = i
	}
	if it.shuffle {
		it.r.Shuffle(len(it.order), func(i, j int) { it.order[i], it.order[j] = it.order[j], it.order[i] })
	}
	it.pos = 0
	it.orders++
}

// BatchesPerEpoch is the number of batches in an epoch.
func (it *SerialIterator) BatchesPerEpoch() int { return it.ds.Len() / it.batchSize }

func (it *SerialIterator) Next() (*tensor.Dense, error) {
	shape := it.ds.Shape()
	size := shape.Size()
	backing := make([]float32, it.batchSize*size)
	for b := 0; b < it.batchSize; b++ {
		im, err := it.ds.Get(it.order[it.pos+b])
		if err != nil {
			return nil, err
		}
		copy(backing[b*size:], im)
	}
	it.pos += it.batchSize
	it.iteration++

	it.newEpoch = it.pos+it.batchSize > len(it.order)
	if it.newEpoch {
		it.epoch++
		it.reorder()
	}
	return tensor.New(tensor.WithShape(it.batchSize, shape.Channels, shape.Height, shape.Width), tensor.WithBacking(backing)), nil
}

// Position returns the state needed to continue from here with Seek.
func (it *SerialIterator) Position() Position {
	return Position{
		Len:       len(it.order),
		Seed:      it.seed,
		Orders:    it.orders,
		Pos:       it.pos,
		Epoch:     it.epoch,
		Iteration: it.iteration,
		NewEpoch:  it.newEpoch,
	}
}

// Seek moves the iterator to pos, which must come from an iterator over a
// dataset of the same length and batch size.
func (it *SerialIterator) Seek(pos Position) error {
	switch {
	case pos.Len != len(it.order):
		return errors.Errorf("position is for a dataset of %d images, have %d", pos.Len, len(it.order))
	case pos.Orders < 1:
		return errors.Errorf("position has drawn %d orders", pos.Orders)
	case pos.Pos < 0 || pos.Pos%it.batchSize != 0 || pos.Pos+it.batchSize > pos.Len:
		return errors.Errorf("position %d is not the start of a batch of %d in %d images", pos.Pos, it.batchSize, pos.Len)
	}
	it.seed = pos.Seed
	it.r = rand.New(rand.NewSource(pos.Seed))
	it.orders = 0
	for i := 0; i < pos.Orders; i++ {
		it.reorder()
	}
	it.pos = pos.Pos
	it.epoch = pos.Epoch
	it.iteration = pos.Iteration
	it.newEpoch = pos.NewEpoch
	return nil
}

func (it *SerialIterator) IsNewEpoch() bool { return it.newEpoch }
func (it *SerialIterator) Epoch() int       { return it.epoch }
func (it *SerialIterator) Iteration() int   { return it.iteration }

type prefetched struct {
	batch *tensor.Dense
	pos   Position
	err   error
}

// Prefetcher runs a Resumable in its own goroutine, keeping up to depth
// batches ready. Epoch bookkeeping and Position follow the batches handed
// out, not the ones fetched ahead.
type Prefetcher struct {
	parent context.Context
	it     Resumable
	depth  int

	ch     chan prefetched
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	pos Position
	err error
}

// NewPrefetcher starts fetching from it. The goroutine stops when ctx is
// cancelled, when Close is called or after the first error.
func NewPrefetcher(ctx context.Context, it Resumable, depth int) *Prefetcher {
	if depth < 1 {
		depth = 1
	}
	p := &Prefetcher{
		parent: ctx,
		it:     it,
		depth:  depth,
		pos:    it.Position(),
	}
	p.start()
	return p
}

func (p *Prefetcher) start() {
	ctx, cancel := context.WithCancel(p.parent)
	p.ch = make(chan prefetched, p.depth)
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx, p.ch)
}

// stop cancels the goroutine and waits for it. Batches fetched ahead are dropped.
func (p *Prefetcher) stop() {
	p.cancel()
	for range p.ch {
	}
	p.wg.Wait()
}

func (p *Prefetcher) run(ctx context.Context, ch chan<- prefetched) {
	defer p.wg.Done()
	defer close(ch)
	for {
		batch, err := p.it.Next()
		item := prefetched{batch: batch, pos: p.it.Position(), err: err}
		select {
		case ch <- item:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (p *Prefetcher) Next() (*tensor.Dense, error) {
	if p.err != nil {
		return nil, p.err
	}
	item, ok := <-p.ch
	if !ok {
		p.err = errors.New("prefetcher closed")
		return nil, p.err
	}
	if item.err != nil {
		p.err = item.err
		return nil, p.err
	}
	p.pos = item.pos
	return item.batch, nil
}

func (p *Prefetcher) IsNewEpoch() bool { return p.pos.NewEpoch }
func (p *Prefetcher) Epoch() int       { return p.pos.Epoch }

// Position is the position after the last batch returned by Next.
func (p *Prefetcher) Position() Position { return p.pos }

// Seek drops the batches fetched ahead and continues fetching from pos. If
// pos is rejected, fetching continues from the current position.
func (p *Prefetcher) Seek(pos Position) error {
	if p.closed {
		return errors.New("prefetcher closed")
	}
	p.stop()
	err := p.it.Seek(pos)
	if err != nil {
		// the current position has been accepted before
		_ = p.it.Seek(p.pos)
	} else {
		p.pos = pos
		p.err = nil
	}
	p.start()
	return err
}

// Close stops the fetching goroutine and waits for it. It may be called more than once.
func (p *Prefetcher) Close() error {
	p.closed = true
	p.stop()
	return nil
}
