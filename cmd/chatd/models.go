package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chatcore/internal/registry"
	"chatcore/pkg/types"
)

func newModelsCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model files in the models directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			paths, err := resolvePaths(cfg)
			if err != nil {
				return err
			}
			models, err := registry.LoadDir(modelsDir(cfg, paths))
			if err != nil {
				return err
			}
			printModels(cmd.OutOrStdout(), models, "")
			return nil
		},
	}
}

// printModels writes one row per model; current is marked with "*".
func printModels(out io.Writer, models []types.Model, current string) {
	if len(models) == 0 {
		fmt.Fprintln(out, "(no models)")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tMODEL\tQUANT\tSIZE")
	for _, m := range models {
		mark := ""
		if m.ID == current {
			mark = "*"
		}
		quant := m.Quant
		if quant == "" {
			quant = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, m.ID, quant, humanize.Bytes(uint64(m.SizeBytes)))
	}
	tw.Flush()
}
