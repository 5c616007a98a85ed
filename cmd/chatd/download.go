package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chatcore/internal/download"
)

func newDownloadCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "download <url> [name]",
		Short: "Download a GGUF model into the models directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			paths, err := resolvePaths(cfg)
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			d := download.New(modelsDir(cfg, paths), download.WithLogger(newLogger(cfg.LogLevel, true, os.Stderr)))
			dest, err := d.Download(ctx, args[0], name, func(p download.Progress) {
				fmt.Fprintf(out, "\r%s", progressLine(p))
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "saved", dest)
			return nil
		},
	}
}

func progressLine(p download.Progress) string {
	if p.Total <= 0 {
		return fmt.Sprintf("%s: %s", p.Name, humanize.Bytes(uint64(p.Downloaded)))
	}
	return fmt.Sprintf("%s: %s / %s (%.0f%%)", p.Name,
		humanize.Bytes(uint64(p.Downloaded)), humanize.Bytes(uint64(p.Total)), p.Fraction()*100)
}
