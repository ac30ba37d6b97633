package began

import (
	"encoding/json"
	"os"
	"time"

	ae "github.com/gorgonia/began/aenet"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// LogEntry is the mean of the reports of one display interval.
type LogEntry struct {
	Epoch       int     `json:"epoch"`
	Iteration   int     `json:"iteration"`
	LossD       float64 `json:"dis/loss"`
	LossG       float64 `json:"gen/loss"`
	Kt          float64 `json:"k_t"`
	Convergence float64 `json:"convergence"`
	Elapsed     float64 `json:"elapsed_time"`
}

// LogReport aggregates reports between display intervals and keeps the
// aggregated entries for the JSON log.
type LogReport struct {
	Entries []LogEntry

	start   time.Time
	pending []ae.Report
}

func newLogReport() *LogReport { return &LogReport{Entries: []LogEntry{}, start: time.Now()} }

func (l *LogReport) add(r ae.Report) { l.pending = append(l.pending, r) }

// flush closes the current interval. ok is false if no report was added since the last flush.
func (l *LogReport) flush() (e LogEntry, ok bool) {
	if len(l.pending) == 0 {
		return e, false
	}
	mean := func(f func(ae.Report) float32) float64 {
		xs := make([]float64, len(l.pending))
		for i, r := range l.pending {
			xs[i] = float64(f(r))
		}
		return stat.Mean(xs, nil)
	}
	last := l.pending[len(l.pending)-1]
	e = LogEntry{
		Epoch:       last.Epoch,
		Iteration:   last.Iteration,
		LossD:       mean(func(r ae.Report) float32 { return r.LossD }),
		LossG:       mean(func(r ae.Report) float32 { return r.LossG }),
		Kt:          mean(func(r ae.Report) float32 { return r.Kt }),
		Convergence: mean(func(r ae.Report) float32 { return r.Convergence }),
		Elapsed:     time.Since(l.start).Seconds(),
	}
	l.Entries = append(l.Entries, e)
	l.pending = l.pending[:0]
	return e, true
}

// Write saves the entries as a JSON list.
func (l *LogReport) Write(filename string) error {
	p, err := json.MarshalIndent(l.Entries, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(filename, p, 0644))
}
