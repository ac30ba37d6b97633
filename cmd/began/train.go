package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gorgonia/began"
	"github.com/gorgonia/began/encoding/gif"
	"github.com/gorgonia/began/encoding/mjpeg"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a generator and a discriminator",
		Args:  cobra.NoArgs,
		RunE:  trainHandler,
	}
	cmd.Flags().StringP("config", "c", "train_conf.yml", "training configuration")
	return cmd
}

func trainHandler(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	conf, err := began.LoadConfig(path)
	if err != nil {
		return err
	}
	p, _ := json.MarshalIndent(conf, "", "  ")
	log.Printf("# training config\n%s", p)
	return train(cmd.Context(), conf)
}

func train(ctx context.Context, conf began.Config) error {
	ds, err := began.OpenDataset(ctx, conf)
	if err != nil {
		return err
	}
	log.Printf("%d images in %v", ds.Len(), conf.Dataset)
	it, err := began.NewIterator(ctx, conf, ds)
	if err != nil {
		return err
	}
	if c, ok := it.(io.Closer); ok {
		defer c.Close()
	}
	if err = os.MkdirAll(conf.Out, 0755); err != nil {
		return errors.WithStack(err)
	}

	var encs []began.OutputEncoder
	if conf.GIF != "" {
		f, err := os.Create(filepath.Join(conf.Out, conf.GIF))
		if err != nil {
			return errors.WithStack(err)
		}
		defer f.Close()
		encs = append(encs, gif.NewGifEncoder(f))
	}
	var stream *mjpeg.Encoder
	if conf.MonitorAddr != "" {
		stream = mjpeg.NewEncoder()
		encs = append(encs, stream)
	}

	t, err := began.NewTrainer(conf, it, encs...)
	if err != nil {
		return err
	}
	defer t.Close()

	if stream != nil {
		stop := serveMonitor(ctx, conf.MonitorAddr, t, stream)
		defer stop()
	}
	return t.Run(ctx)
}
