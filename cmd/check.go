package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BroWo1/fact-check/internal/client"
	"github.com/BroWo1/fact-check/internal/session"
	"github.com/BroWo1/fact-check/internal/transport"
	"github.com/BroWo1/fact-check/models"
)

func checkCMD() *cobra.Command {
	var (
		cfgPath  string
		mode     string
		style    string
		filePath string
	)
	cmd := &cobra.Command{
		Use:   "check [claim]",
		Short: "Submit a claim and follow the analysis to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}

			req := client.CreateRequest{
				Input: args[0],
				Mode:  models.Mode(mode),
				Style: style,
			}
			if filePath != "" {
				f, err := os.Open(filePath)
				if err != nil {
					return fmt.Errorf("opening attachment: %w", err)
				}
				defer f.Close()
				req.Attachment = &client.Attachment{Name: f.Name(), Reader: f}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ctrl := newController(d)
			sessionID, err := ctrl.Start(ctx, req)
			if err != nil {
				return err
			}
			d.logger.Printf("session %s started", sessionID)

			followProgress(ctx, d, ctrl)

			snap := ctrl.Snapshot()
			switch snap.State {
			case session.StateCompleted:
				printResults(snap.Results)
				return nil
			case session.StateCancelled, session.StateIdle:
				// idle with a nil error means a local cancel reset the
				// controller; StateCancelled means the backend said so
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
	cmd.Flags().StringVar(&mode, "mode", string(models.ModeFactCheck), "analysis mode (fact_check or research)")
	cmd.Flags().StringVar(&style, "style", "", "report style (research mode only)")
	cmd.Flags().StringVar(&filePath, "file", "", "attach a file to the claim")
	return cmd
}

func newController(d *deps) *session.Controller {
	api := client.New(d.cfg.Backend, d.logger)
	opts := []session.Option{}
	if d.cfg.Transport.PushEnabled {
		opts = append(opts, session.WithPush(
			transport.NewPushListener(d.cfg.Backend, d.cfg.Transport, d.logger)))
	}
	return session.New(api, d.store, d.cfg.Transport, d.logger, opts...)
}

// followProgress prints progress lines until the session reaches a
// terminal state. An interrupt marks the live session for restore so the
// next invocation offers to pick it up, then shuts down without touching
// the persisted record.
func followProgress(ctx context.Context, d *deps, ctrl *session.Controller) {
	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var lastLine string
	for {
		select {
		case <-ticker.C:
			snap := ctrl.Snapshot()
			line := fmt.Sprintf("%3.0f%%  %s", snap.Progress.Percentage, snap.Progress.CurrentStep)
			if line != lastLine {
				fmt.Println(line)
				lastLine = line
			}
		case <-ctx.Done():
			snap := ctrl.Snapshot()
			if snap.State == session.StateInProgress && snap.SessionID != "" {
				if err := d.store.MarkForRestore(context.Background(), snap.SessionID); err != nil {
					d.logger.Printf("marking session for restore failed: %v", err)
				}
			}
			ctrl.Shutdown()
			return
		case <-done:
			return
		}
	}
}

func printResults(r *models.Results) {
	if r == nil {
		return
	}
	fmt.Println()
	fmt.Printf("Claim:      %s\n", r.OriginalClaim)
	fmt.Printf("Verdict:    %s\n", r.Verdict)
	fmt.Printf("Confidence: %.0f%%\n", r.ConfidenceScore*100)
	if r.Summary != "" {
		fmt.Printf("\n%s\n", r.Summary)
	}
	if len(r.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range r.Sources {
			title := src.Title
			if title == "" {
				title = src.Domain
			}
			fmt.Printf("  - %s (%s)\n", title, src.URL)
		}
	}
}
