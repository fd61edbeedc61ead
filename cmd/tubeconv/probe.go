package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tinoosan/tubeconv/internal/source"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <source>",
		Short: "Print a source's title and available qualities as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := ctx.ensure()
			if err != nil {
				return err
			}
			src, err := source.Normalize(args[0])
			if err != nil {
				return err
			}
			yt := source.NewYTDLP(l)
			yt.SetTimeout(cfg.ProbeTimeout())
			md, err := source.NewFetcher(yt, nil, l).Metadata(cmd.Context(), src)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(md)
		},
	}
}
