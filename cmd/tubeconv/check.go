package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinoosan/tubeconv/internal/deps"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether ffmpeg and yt-dlp are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(deps.Requirements(cfg.Conversion.FFmpegPath))
			out := cmd.OutOrStdout()
			for _, s := range statuses {
				mark := "ok"
				if !s.Available {
					mark = "missing"
				}
				fmt.Fprintf(out, "%-8s %-8s %s", s.Name, mark, s.Command)
				if s.Detail != "" {
					fmt.Fprintf(out, " (%s)", s.Detail)
				}
				fmt.Fprintln(out)
			}
			return deps.Missing(statuses)
		},
	}
}
