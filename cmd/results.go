package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/BroWo1/fact-check/internal/client"
)

func resultsCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "results [session-id]",
		Short: "Fetch the final verdict of a completed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}
			api := client.New(d.cfg.Backend, d.logger)
			res, err := api.GetResults(context.Background(), args[0])
			if err != nil {
				return err
			}
			printResults(&res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return cmd
}
