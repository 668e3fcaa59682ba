package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"partsim/internal/config"
	"partsim/internal/remote"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	var natsURL, subject string

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve evaluation tasks dispatched over NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := nats.Connect(natsURL, nats.Name("partsim-worker"), nats.MaxReconnects(-1))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
			}
			defer nc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return remote.NewWorker(nc, subject).Serve(ctx)
		},
	}
	workerCmd.Flags().StringVar(&natsURL, "nats-url", envOrDefault("PARTSIM_NATS_URL", nats.DefaultURL), "NATS server to receive tasks from")
	workerCmd.Flags().StringVar(&subject, "subject", config.DefaultNATSSubject, "Subject tasks are published on")
	return workerCmd
}
