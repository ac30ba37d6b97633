package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gorgonia/began"
	ae "github.com/gorgonia/began/aenet"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newArchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arch",
		Short: "Show the generator and discriminator layers",
		Args:  cobra.NoArgs,
		RunE:  archHandler,
	}
	cmd.Flags().StringP("config", "c", "train_conf.yml", "training configuration")
	cmd.Flags().String("dot", "", "also write a graphviz file")
	return cmd
}

func archHandler(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	dot, _ := cmd.Flags().GetString("dot")

	conf, err := began.LoadConfig(path)
	if err != nil {
		return err
	}
	gen, dis := ae.Architecture(conf.NetConf())
	archTable(os.Stdout, gen, dis)
	if dot == "" {
		return nil
	}
	g, err := ae.ToDot(gen, dis)
	if err != nil {
		return err
	}
	return errors.WithStack(os.WriteFile(dot, []byte(g), 0644))
}

func archTable(w io.Writer, networks ...[]ae.Layer) {
	var data [][]string
	for _, layers := range networks {
		var total int
		for _, l := range layers {
			data = append(data, []string{l.Network, l.Name, l.Kind, fmt.Sprint(l.In), fmt.Sprint(l.Out), strconv.Itoa(l.Params)})
			total += l.Params
		}
		if len(layers) > 0 {
			data = append(data, []string{layers[0].Network, "total", "", "", "", strconv.Itoa(total)})
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NETWORK", "LAYER", "KIND", "IN", "OUT", "PARAMS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
