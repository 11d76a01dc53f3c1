package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bil/internal/services"
)

func projectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "p"},
		Short:   "List and manage projects",
	}
	cmd.AddCommand(projectsListCmd())
	cmd.AddCommand(projectsCreateCmd())
	cmd.AddCommand(projectsRenameCmd())
	cmd.AddCommand(projectsDeleteCmd())
	cmd.AddCommand(projectsRestoreCmd())
	return cmd
}

func projectsListCmd() *cobra.Command {
	var all, asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(ctx context.Context, svc *services.LedgerService) error {
				projects, err := svc.ListProjects(ctx, all)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "    ")
					return enc.Encode(projects)
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSTATUS")
				for _, p := range projects {
					status := "live"
					if p.IsDeleted {
						status = "deleted"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, status)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include soft-deleted projects")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func projectsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME...",
		Short: "Create a project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return withLedger(cmd, func(ctx context.Context, svc *services.LedgerService) error {
				id, err := svc.CreateProject(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", id)
				return nil
			})
		},
	}
}

func projectsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME...",
		Short: "Rename a live project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			name := strings.Join(args[1:], " ")
			return withLedger(cmd, func(ctx context.Context, svc *services.LedgerService) error {
				return svc.RenameProject(ctx, id, name)
			})
		},
	}
}

func projectsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Soft-delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd, func(ctx context.Context, svc *services.LedgerService) error {
				return svc.DeleteProject(ctx, id)
			})
		},
	}
}

func projectsRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore ID",
		Short: "Restore a soft-deleted project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd, func(ctx context.Context, svc *services.LedgerService) error {
				return svc.RestoreProject(ctx, id)
			})
		},
	}
}
