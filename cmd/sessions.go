package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BroWo1/fact-check/internal/client"
	"github.com/BroWo1/fact-check/internal/recovery"
)

func sessionsCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage locally tracked and recoverable sessions",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")

	list := &cobra.Command{
		Use:   "list",
		Short: "Show sessions that can be recovered",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}
			coord := recovery.NewCoordinator(d.store, d.cfg.Recovery, d.logger)
			views, err := coord.Discover(context.Background())
			if err != nil {
				return err
			}
			if len(views) == 0 {
				fmt.Println("No recoverable sessions.")
				return nil
			}
			for _, v := range views {
				fmt.Printf("%s  [%s]  %s\n", v.Record.SessionID, v.ModeLabel, v.DisplayClaim)
				fmt.Printf("    %s, %s\n", v.ProgressText, v.TimeAgo)
			}
			return nil
		},
	}

	dismiss := &cobra.Command{
		Use:   "dismiss [session-id | --all]",
		Short: "Drop recoverable sessions from the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}
			coord := recovery.NewCoordinator(d.store, d.cfg.Recovery, d.logger)
			if all {
				return coord.DismissAll(context.Background())
			}
			if len(args) != 1 {
				return fmt.Errorf("pass a session id or --all")
			}
			return coord.Dismiss(context.Background(), args[0])
		},
	}
	dismiss.Flags().Bool("all", false, "dismiss every recoverable session")

	remote := &cobra.Command{
		Use:   "remote",
		Short: "List sessions known to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			pageSize, _ := cmd.Flags().GetInt("page-size")
			offset, _ := cmd.Flags().GetInt("offset")
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}
			api := client.New(d.cfg.Backend, d.logger)
			res, err := api.ListSessions(context.Background(), pageSize, offset)
			if err != nil {
				return err
			}
			for _, s := range res.Sessions {
				fmt.Printf("%s  [%s]  %-12s  %s\n", s.SessionID, s.Mode, s.Status, s.Claim)
			}
			fmt.Printf("%d of %d sessions\n", len(res.Sessions), res.Total)
			return nil
		},
	}
	remote.Flags().Int("page-size", 20, "page size")
	remote.Flags().Int("offset", 0, "page offset")

	deleteCmd := &cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete a session on the backend and locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}
			api := client.New(d.cfg.Backend, d.logger)
			ctx := context.Background()
			if err := api.DeleteSession(ctx, args[0]); err != nil && !client.IsSessionNotFound(err) {
				return err
			}
			return d.store.RemoveSession(ctx, args[0])
		},
	}

	notifications := &cobra.Command{
		Use:   "notifications [on|off]",
		Short: "Show or set the completion-notification preference",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			if len(args) == 1 {
				switch args[0] {
				case "on":
					return d.store.SetNotificationPermission(ctx, true)
				case "off":
					return d.store.SetNotificationPermission(ctx, false)
				default:
					return fmt.Errorf("expected on or off, got %q", args[0])
				}
			}
			granted, err := d.store.NotificationPermission(ctx)
			if err != nil {
				return err
			}
			if granted {
				fmt.Println("notifications: on")
			} else {
				fmt.Println("notifications: off")
			}
			return nil
		},
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Monitor tracked sessions and prune finished or vanished ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cfgPath)
			if err != nil {
				return err
			}
			api := client.New(d.cfg.Backend, d.logger)
			w := recovery.NewWatcher(d.store, api, d.cfg.Recovery, d.logger)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			d.logger.Printf("watching tracked sessions every %s", d.cfg.Recovery.WatchInterval)
			w.Run(ctx)
			return nil
		},
	}

	cmd.AddCommand(list, dismiss, remote, deleteCmd, notifications, watch)
	return cmd
}
