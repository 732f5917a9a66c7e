package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/scriptvideo/internal/system"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify ffmpeg and ffprobe are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			deps := system.CheckDeps(cmd.Context(), cfg.Encoder.FFmpegPath, cfg.Encoder.FFprobePath)
			rows := make([][]string, 0, len(deps))
			missing := 0
			for _, d := range deps {
				status, detail := "ok", d.Version
				if !d.OK() {
					status, detail = "missing", d.Err.Error()
					missing++
				}
				rows = append(rows, []string{d.Name, status, d.Path, detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Tool", "Status", "Path", "Details"}, rows, nil))

			if missing > 0 {
				return errors.New("required tools are missing")
			}
			encoder := system.GetBestH264Encoder(cmd.Context(), cfg.Encoder.FFmpegPath)
			if encoder != "libx264" {
				fmt.Fprintf(out, "[*] Hardware acceleration available: %s (use --codec auto)\n", encoder)
			} else {
				fmt.Fprintln(out, "[*] Using software encoder libx264")
			}
			return nil
		},
	}
}
