package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/BroWo1/fact-check/internal/mockapi"
)

func mockAPICMD() *cobra.Command {
	var (
		addr      string
		stepDelay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mock-api",
		Short: "Run a simulated backend for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := mockapi.New(nil, mockapi.WithStepDelay(stepDelay))
			return srv.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8085", "listen address")
	cmd.Flags().DurationVar(&stepDelay, "step-delay", 800*time.Millisecond, "pause between simulated steps")
	return cmd
}
