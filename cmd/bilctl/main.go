package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bil/internal/cli"
)

var Version = "dev"

func main() {
	cli.LoadEnvFile()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bilctl",
		Short:         "Administer bil projects and their history",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(historyCmd())
	return rootCmd
}
