package began

import (
	"bytes"
	"io"
	"os"

	ae "github.com/gorgonia/began/aenet"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the training configuration, usually read from a YAML file.
type Config struct {
	N         int     `yaml:"n"`
	H         int     `yaml:"h"`
	Lambda    float64 `yaml:"lambda"`
	Gamma     float64 `yaml:"gamma"`
	BatchSize int     `yaml:"batchsize"`
	GPU       int     `yaml:"gpu"`
	Epochs    int     `yaml:"epoch"`

	SnapshotInterval int `yaml:"snapshot_interval"`
	DisplayInterval  int `yaml:"display_interval"`
	SampleInterval   int `yaml:"sample_interval"`

	Dataset  string `yaml:"dataset"`
	Resume   string `yaml:"resume"`
	Out      string `yaml:"out"`
	Parallel int    `yaml:"parallel"` // batches prefetched ahead, 0 loads batches inline

	LearnRate float64 `yaml:"learning_rate"`
	Beta1     float64 `yaml:"beta1"`
	Beta2     float64 `yaml:"beta2"`
	KUpdate   string  `yaml:"k_update"`
	Seed      int64   `yaml:"seed"`

	Samples     int    `yaml:"samples"` // images per sample grid
	GIF         string `yaml:"gif"`     // animation of sample grids, in Out
	Stats       string `yaml:"stats"`   // CSV statistics, in Out
	MonitorAddr string `yaml:"monitor_addr"`
}

// DefaultConfig returns the configuration used when a key is absent from the file.
func DefaultConfig() Config {
	tc := ae.DefaultTrainConf()
	return Config{
		N:                64,
		H:                64,
		Lambda:           tc.Lambda,
		Gamma:            tc.Gamma,
		BatchSize:        16,
		GPU:              -1,
		Epochs:           100,
		SnapshotInterval: 1000,
		DisplayInterval:  100,
		SampleInterval:   1000,
		Out:              "result",
		LearnRate:        tc.LearnRate,
		Beta1:            tc.Beta1,
		Beta2:            tc.Beta2,
		KUpdate:          string(tc.KUpdate),
		Seed:             tc.Seed,
		Samples:          16,
		GIF:              "samples.gif",
		Stats:            "stats.csv",
	}
}

// ParseConfig reads a YAML configuration over the defaults and validates it.
func ParseConfig(p []byte) (Config, error) {
	conf := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(p))
	dec.KnownFields(true)
	var raw struct {
		Config `yaml:",inline"`
		// misspelling of batchsize found in older configuration files
		LegacyBatchSize int `yaml:"bastchsize"`
	}
	raw.Config = conf
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	conf = raw.Config
	if raw.LegacyBatchSize > 0 {
		conf.BatchSize = raw.LegacyBatchSize
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}
	conf, err := ParseConfig(p)
	if err != nil {
		return Config{}, errors.WithMessagef(err, "%v", path)
	}
	return conf, nil
}

// Validate reports the first problem with the configuration.
func (c Config) Validate() error {
	switch {
	case c.GPU >= 0:
		return errors.Errorf("gpu %d requested, but this build only runs on the CPU (use gpu: -1)", c.GPU)
	case c.Epochs < 1:
		return errors.Errorf("epoch must be positive, got %d", c.Epochs)
	case c.Dataset == "":
		return errors.New("no dataset given")
	case c.Out == "":
		return errors.New("no output directory given")
	case c.SnapshotInterval < 0 || c.DisplayInterval < 0 || c.SampleInterval < 0:
		return errors.New("intervals cannot be negative")
	case c.Parallel < 0:
		return errors.Errorf("parallel cannot be negative, got %d", c.Parallel)
	case c.Samples < 1:
		return errors.Errorf("samples must be positive, got %d", c.Samples)
	}
	if nc := c.NetConf(); !nc.IsValid() {
		return errors.Errorf("invalid network config %+v", nc)
	}
	if tc := c.TrainConf(); !tc.IsValid() {
		return errors.Errorf("invalid training config %+v", tc)
	}
	return nil
}

// NetConf is the network part of the configuration.
func (c Config) NetConf() ae.Config {
	conf := ae.DefaultConf(c.N, c.H)
	conf.BatchSize = c.BatchSize
	return conf
}

// TrainConf is the optimization part of the configuration.
func (c Config) TrainConf() ae.TrainConf {
	return ae.TrainConf{
		Lambda:    c.Lambda,
		Gamma:     c.Gamma,
		LearnRate: c.LearnRate,
		Beta1:     c.Beta1,
		Beta2:     c.Beta2,
		KUpdate:   ae.KUpdate(c.KUpdate),
		Seed:      c.Seed,
	}
}
