package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BroWo1/fact-check/internal/recovery"
	"github.com/BroWo1/fact-check/internal/session"
	"github.com/BroWo1/fact-check/internal/store"
)

func resumeCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "resume [session-id]",
		Short: "Re-attach to an interrupted session and follow it to completion",
		Long: "Without arguments, resume consumes the pending-restore marker (set when a\n" +
			"previous run was interrupted deliberately) or falls back to the most recent\n" +
			"recoverable session.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coord := recovery.NewCoordinator(d.store, d.cfg.Recovery, d.logger)
			rec, err := pickSession(ctx, coord, args)
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Println("Nothing to resume.")
				return nil
			}

			ctrl := newController(d)
			if err := ctrl.Resume(ctx, *rec); err != nil {
				return err
			}
			fmt.Printf("Resuming: %s\n", rec.OriginalClaim)

			followProgress(ctx, d, ctrl)

			snap := ctrl.Snapshot()
			switch snap.State {
			case session.StateCompleted:
				printResults(snap.Results)
				return nil
			case session.StateCancelled, session.StateIdle:
				fmt.Println("Analysis cancelled.")
				return nil
			default:
				if snap.Err != nil {
					return snap.Err
				}
				return fmt.Errorf("analysis did not complete")
			}
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return cmd
}

func pickSession(ctx context.Context, coord *recovery.Coordinator, args []string) (*store.SessionRecord, error) {
	views, err := coord.Discover(ctx)
	if err != nil {
		return nil, err
	}

	if len(args) == 1 {
		for _, v := range views {
			if v.Record.SessionID == args[0] {
				rec := v.Record
				return &rec, nil
			}
		}
		return nil, fmt.Errorf("session %s is not recoverable", args[0])
	}

	if marked, err := coord.CheckAndAutoResume(ctx); err != nil {
		return nil, err
	} else if marked != nil {
		rec := marked.Record
		return &rec, nil
	}

	if len(views) == 0 {
		return nil, nil
	}
	// most recent first feels right when the user gave no id
	rec := views[len(views)-1].Record
	return &rec, nil
}
