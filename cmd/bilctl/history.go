package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"bil/internal/services"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and restore project snapshots",
		Long: `Every project directory is versioned. With the file backend, snapshots
cover the project's paygroups, payments and attachments. With the sqlite
backend, paygroups and payments live in the database, so snapshots only
cover attachments and restore is refused. The project's name and deleted
flag are never part of its history.`,
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historySnapshotCmd())
	cmd.AddCommand(historyRestoreCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list ID",
		Short: "List a project's snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd, func(ctx context.Context, svc *services.LedgerService) error {
				snaps, err := svc.Snapshots(ctx, id)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SNAPSHOT\tTIME\tMESSAGE")
				for _, s := range snaps {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", short(s.ID), s.Time.Format(time.RFC3339), s.Message)
				}
				return tw.Flush()
			})
		},
	}
}

func historySnapshotCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "snapshot ID",
		Short: "Record the project's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd, func(ctx context.Context, svc *services.LedgerService) error {
				snap, created, err := svc.Snapshot(ctx, id, message)
				if err != nil {
					return err
				}
				if !created {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing changed")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), snap.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "manual snapshot", "Snapshot message")
	return cmd
}

func historyRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore ID SNAPSHOT",
		Short: "Put a project back to an earlier snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd, func(ctx context.Context, svc *services.LedgerService) error {
				snap, err := svc.RestoreSnapshot(ctx, id, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s as %s\n", short(args[1]), short(snap.ID))
				return nil
			})
		},
	}
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
