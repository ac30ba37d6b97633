package main

import (
	"encoding/gob"
	"image/png"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/gorgonia/began"
	ae "github.com/gorgonia/began/aenet"
	"github.com/gorgonia/began/sample"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render images from a trained generator",
		Args:  cobra.NoArgs,
		RunE:  generateHandler,
	}
	cmd.Flags().StringP("config", "c", "train_conf.yml", "training configuration")
	cmd.Flags().StringP("model", "m", "", "generator checkpoint (generator_iter_N.gob)")
	cmd.Flags().StringP("out", "o", "generated.png", "output PNG")
	cmd.Flags().Int("count", 16, "number of images")
	cmd.Flags().Int64("seed", 0, "latent seed")
	cmd.MarkFlagRequired("model")
	return cmd
}

func generateHandler(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	model, _ := cmd.Flags().GetString("model")
	out, _ := cmd.Flags().GetString("out")
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetInt64("seed")

	conf, err := began.LoadConfig(path)
	if err != nil {
		return err
	}
	return generate(conf.NetConf(), model, out, count, seed)
}

func generate(conf ae.Config, model, out string, count int, seed int64) error {
	if count < 1 {
		return errors.Errorf("invalid count %d", count)
	}
	s, err := ae.NewSampler(conf, count, false)
	if err != nil {
		return err
	}
	defer s.Close()

	f, err := os.Open(model)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if err = gob.NewDecoder(f).Decode(s.Decoder()); err != nil {
		return errors.Wrapf(err, "loading %v", model)
	}

	imgs, err := s.Random(rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}
	grid, err := sample.Grid(imgs, int(math.Ceil(math.Sqrt(float64(count)))))
	if err != nil {
		return err
	}

	w, err := os.Create(out)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = png.Encode(w, grid); err != nil {
		w.Close()
		return errors.WithStack(err)
	}
	log.Printf("%d images written to %v", count, out)
	return errors.WithStack(w.Close())
}
