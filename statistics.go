package began

import (
	"encoding/csv"
	"os"
	"strconv"

	ae "github.com/gorgonia/began/aenet"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Statistics records every training report of a run.
type Statistics struct {
	Reports []ae.Report
}

func makeStatistics() Statistics {
	return Statistics{Reports: make([]ae.Report, 0, 1024)}
}

func (s *Statistics) update(r ae.Report) { s.Reports = append(s.Reports, r) }

// Summary describes the losses of one epoch.
type Summary struct {
	Epoch      int
	Iterations int
	MeanD      float64
	StdD       float64
	MeanG      float64
	StdG       float64
	MeanM      float64
}

// EpochSummary summarizes the recorded reports of epoch. ok is false if
// nothing was recorded for it.
func (s *Statistics) EpochSummary(epoch int) (sum Summary, ok bool) {
	var d, g, m []float64
	for _, r := range s.Reports {
		if r.Epoch != epoch {
			continue
		}
		d = append(d, float64(r.LossD))
		g = append(g, float64(r.LossG))
		m = append(m, float64(r.Convergence))
	}
	if len(d) == 0 {
		return Summary{Epoch: epoch}, false
	}
	sum = Summary{Epoch: epoch, Iterations: len(d)}
	sum.MeanD, sum.StdD = stat.MeanStdDev(d, nil)
	sum.MeanG, sum.StdG = stat.MeanStdDev(g, nil)
	sum.MeanM = stat.Mean(m, nil)
	return sum, true
}

var statsHeader = []string{"iteration", "epoch", "dis/loss", "gen/loss", "loss_real", "loss_fake", "k_t", "convergence"}

// Dump writes the reports as CSV, one row per iteration.
func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(statsHeader); err != nil {
		return err
	}
	f32 := func(v float32) string { return strconv.FormatFloat(float64(v), 'g', 6, 32) }
	records := make([][]string, 0, len(s.Reports))
	for _, r := range s.Reports {
		records = append(records, []string{
			strconv.Itoa(r.Iteration),
			strconv.Itoa(r.Epoch),
			f32(r.LossD),
			f32(r.LossG),
			f32(r.LossReal),
			f32(r.LossFake),
			f32(r.Kt),
			f32(r.Convergence),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
