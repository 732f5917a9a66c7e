package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivlev/scriptvideo/internal/bridge"
	"github.com/ivlev/scriptvideo/internal/system"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var url, prefix string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept render jobs over NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("nats-url") {
				cfg.NATS.URL = url
			}
			if cmd.Flags().Changed("subject-prefix") {
				cfg.NATS.SubjectPrefix = prefix
			}

			system.InitResourceLimits(logger)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			nc, err := bridge.Connect(cfg.NATS.URL, logger)
			if err != nil {
				return err
			}
			defer nc.Close()

			svc := ctx.newService(cfg, logger)
			defer svc.Close()

			b := bridge.New(nc, bridge.Adapt(svc), cfg.NATS.SubjectPrefix, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "[*] Listening on %s (%s.*)\n", cfg.NATS.URL, cfg.NATS.SubjectPrefix)
			return b.Run(runCtx)
		},
	}
	cmd.Flags().StringVar(&url, "nats-url", "", "NATS server URL")
	cmd.Flags().StringVar(&prefix, "subject-prefix", "", "Subject prefix for create, cancel and progress")
	return cmd
}
