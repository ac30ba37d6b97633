package began

import (
	"context"
	"encoding/gob"
	"fmt"
	"image"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	ae "github.com/gorgonia/began/aenet"
	"github.com/gorgonia/began/dataset"
	"github.com/gorgonia/began/sample"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Trainer is the top level structure and the entry point of the API. It
// drives an Updater for the configured number of epochs, taking snapshots,
// reporting losses and rendering samples along the way.
type Trainer struct {
	Statistics
	Logger *log.Logger

	conf  Config
	runID string

	u       *ae.Updater
	it      ae.Iterator
	sampler *ae.Sampler
	z       *tensor.Dense // fixed latent batch, so successive samples are comparable
	cols    int

	report *LogReport
	outEnc []OutputEncoder

	mu      sync.Mutex
	last    ae.Report
	samples image.Image
}

// NewTrainer builds the networks for conf and, if conf.Resume is set,
// restores the snapshot it names.
func NewTrainer(conf Config, it ae.Iterator, outEnc ...OutputEncoder) (*Trainer, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	u, err := ae.NewUpdater(conf.NetConf(), conf.TrainConf(), it)
	if err != nil {
		return nil, err
	}
	s, err := ae.NewSampler(conf.NetConf(), conf.Samples, false)
	if err != nil {
		u.Close()
		return nil, err
	}

	t := &Trainer{
		Statistics: makeStatistics(),
		Logger:     log.New(os.Stderr, "", log.Ltime),
		conf:       conf,
		runID:      uuid.NewString(),
		u:          u,
		it:         it,
		sampler:    s,
		z:          latent(conf.Seed, conf.Samples, conf.H),
		cols:       int(math.Ceil(math.Sqrt(float64(conf.Samples)))),
		report:     newLogReport(),
		outEnc:     outEnc,
	}
	if conf.Resume != "" {
		if err = t.Restore(conf.Resume); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

func latent(seed int64, count, h int) *tensor.Dense {
	r := rand.New(rand.NewSource(seed))
	backing := make([]float32, count*h)
	for i := range backing {
		backing[i] = r.Float32()*2 - 1
	}
	return tensor.New(tensor.WithShape(count, h), tensor.WithBacking(backing))
}

// Run trains until the configured number of epochs is done, the context is
// cancelled or an error occurs. Reports, statistics and encoders are flushed
// on the way out in every case.
func (t *Trainer) Run(ctx context.Context) (err error) {
	if err = os.MkdirAll(t.conf.Out, 0755); err != nil {
		return errors.WithStack(err)
	}
	t.Logger.Printf("Run %v: %d epochs, batches of %d, k_t %v, output in %v", t.runID, t.conf.Epochs, t.conf.BatchSize, t.u.Kt, t.conf.Out)
	defer func() {
		if ferr := t.finish(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	for t.u.EpochsDone() < t.conf.Epochs {
		if err = ctx.Err(); err != nil {
			t.Logger.Printf("Stopping at iteration %d: %v", t.u.Iteration, err)
			return err
		}
		var r ae.Report
		if r, err = t.u.Update(); err != nil {
			return errors.WithMessage(err, fmt.Sprintf("iteration %d", t.u.Iteration+1))
		}
		if err = checkFinite(r); err != nil {
			return err
		}
		t.record(r)

		if every(t.conf.DisplayInterval, r.Iteration) {
			t.display()
		}
		if every(t.conf.SnapshotInterval, r.Iteration) {
			if err = t.Snapshot(); err != nil {
				return err
			}
		}
		if every(t.conf.SampleInterval, r.Iteration) {
			if err = t.Sample(); err != nil {
				return err
			}
		}
		if t.u.EpochEnded {
			t.summarize(r.Epoch)
		}
	}
	return nil
}

func every(interval, iteration int) bool { return interval > 0 && iteration%interval == 0 }

func checkFinite(r ae.Report) error {
	if r.Finite() {
		return nil
	}
	return errors.Wrapf(ErrNonFinite, "iteration %d: dis/loss %v, gen/loss %v, convergence %v", r.Iteration, r.LossD, r.LossG, r.Convergence)
}

func (t *Trainer) record(r ae.Report) {
	t.update(r)
	t.report.add(r)
	t.mu.Lock()
	t.last = r
	t.mu.Unlock()
}

func (t *Trainer) display() {
	e, ok := t.report.flush()
	if !ok {
		return
	}
	t.Logger.Printf("epoch %d\titeration %d\tdis/loss %.5f\tgen/loss %.5f\tconvergence %.5f", e.Epoch, e.Iteration, e.LossD, e.LossG, e.Convergence)
}

func (t *Trainer) summarize(epoch int) {
	s, ok := t.EpochSummary(epoch)
	if !ok {
		return
	}
	t.Logger.Printf("Epoch %d done after %d iterations. dis/loss %.5f±%.5f gen/loss %.5f±%.5f convergence %.5f. k_t %.5f",
		epoch, s.Iterations, s.MeanD, s.StdD, s.MeanG, s.StdG, s.MeanM, t.u.Kt)
}

// Snapshot writes the trainer state and both networks into the output
// directory, named by the current iteration.
func (t *Trainer) Snapshot() error {
	gen, err := t.u.Generator().GobEncode()
	if err != nil {
		return err
	}
	dis, err := t.u.Discriminator().GobEncode()
	if err != nil {
		return err
	}
	snap := Snapshot{
		RunID:         t.runID,
		Conf:          t.conf,
		State:         t.u.State,
		Generator:     gen,
		Discriminator: dis,
	}
	if r, ok := t.it.(dataset.Resumable); ok {
		pos := r.Position()
		snap.Iterator = &pos
	}
	iter := t.u.Iteration
	files := []struct {
		name string
		v    interface{}
	}{
		{"snapshot", snap},
		{"generator", t.u.Generator()},
		{"discriminator", t.u.Discriminator()},
	}
	for _, f := range files {
		if err := saveGob(filepath.Join(t.conf.Out, fmt.Sprintf("%s_iter_%d.gob", f.name, iter)), f.v); err != nil {
			return err
		}
	}
	t.Logger.Printf("Snapshot of iteration %d written to %v", iter, t.conf.Out)
	return nil
}

// Restore loads a snapshot written by Snapshot, including the iterator
// position when the iterator is resumable. The optimizer moments are not
// part of a snapshot and restart from zero.
func (t *Trainer) Restore(filename string) error {
	snap, err := LoadSnapshot(filename)
	if err != nil {
		return err
	}
	if snap.Conf.N != t.conf.N || snap.Conf.H != t.conf.H {
		return errors.Errorf("snapshot %v has n=%d h=%d, configured n=%d h=%d", filename, snap.Conf.N, snap.Conf.H, t.conf.N, t.conf.H)
	}
	if err = t.u.Generator().GobDecode(snap.Generator); err != nil {
		return errors.WithMessage(err, "generator")
	}
	if err = t.u.Discriminator().GobDecode(snap.Discriminator); err != nil {
		return errors.WithMessage(err, "discriminator")
	}
	if r, ok := t.it.(dataset.Resumable); ok {
		if snap.Iterator == nil {
			t.Logger.Printf("Snapshot %v has no iterator position, the dataset is read from the start", filename)
		} else if err = r.Seek(*snap.Iterator); err != nil {
			return errors.WithMessage(err, "iterator")
		}
	}
	t.u.State = snap.State
	t.runID = snap.RunID
	t.Logger.Printf("Resumed run %v at epoch %d, iteration %d, k_t %v", t.runID, t.u.Epoch, t.u.Iteration, t.u.Kt)
	return nil
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(filename string) (snap Snapshot, err error) {
	err = loadGob(filename, &snap)
	return
}

// Sample renders the generator's images for the fixed latent batch and hands
// them to every output encoder.
func (t *Trainer) Sample() error {
	if err := t.sampler.CopyFrom(t.u.Generator()); err != nil {
		return err
	}
	imgs, err := t.sampler.Generate(t.z)
	if err != nil {
		return errors.WithMessage(err, "sampling")
	}
	grid, err := sample.Grid(imgs, t.cols)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.samples = grid
	t.mu.Unlock()
	for _, enc := range t.outEnc {
		if err = enc.Encode(t); err != nil {
			return errors.WithMessage(err, "encoding samples")
		}
	}
	return nil
}

func (t *Trainer) finish() error {
	var allErrs manyErr
	t.display()
	if err := t.report.Write(filepath.Join(t.conf.Out, "log")); err != nil {
		allErrs = append(allErrs, err)
	}
	if t.conf.Stats != "" {
		if err := t.Dump(filepath.Join(t.conf.Out, t.conf.Stats)); err != nil {
			allErrs = append(allErrs, err)
		}
	}
	for _, enc := range t.outEnc {
		if err := enc.Flush(); err != nil {
			allErrs = append(allErrs, err)
		}
	}
	if len(allErrs) > 0 {
		return allErrs
	}
	return nil
}

// Name implements sample.MetaState.
func (t *Trainer) Name() string { return "BEGAN " + t.runID[:8] }

// Epoch implements sample.MetaState.
func (t *Trainer) Epoch() int { return t.u.Epoch }

// Iteration implements sample.MetaState.
func (t *Trainer) Iteration() int { return t.u.Iteration }

// Samples implements sample.MetaState. It is nil until the first call to Sample.
func (t *Trainer) Samples() image.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}

// RunID identifies the run across resumes.
func (t *Trainer) RunID() string { return t.runID }

// Status is a summary of a running Trainer, safe to take from other goroutines.
type Status struct {
	RunID  string    `json:"run_id"`
	Epochs int       `json:"epochs"`
	Last   ae.Report `json:"last"`
}

func (t *Trainer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{RunID: t.runID, Epochs: t.conf.Epochs, Last: t.last}
}

// Close releases the machines and stops background batch loading.
func (t *Trainer) Close() error {
	var allErrs manyErr
	if err := t.u.Close(); err != nil {
		allErrs = append(allErrs, err)
	}
	if err := t.sampler.Close(); err != nil {
		allErrs = append(allErrs, err)
	}
	if c, ok := t.it.(io.Closer); ok {
		if err := c.Close(); err != nil {
			allErrs = append(allErrs, err)
		}
	}
	if len(allErrs) > 0 {
		return allErrs
	}
	return nil
}

func saveGob(filename string, v interface{}) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %v", filename)
	}
	return errors.WithStack(f.Close())
}

func loadGob(filename string, v interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if err = gob.NewDecoder(f).Decode(v); err != nil {
		return errors.Wrapf(err, "decoding %v", filename)
	}
	return nil
}

type manyErr []error

func (err manyErr) Error() string {
	var buf strings.Builder
	for _, e := range err {
		buf.WriteString(e.Error())
		buf.WriteString("\n")
	}
	return buf.String()
}
