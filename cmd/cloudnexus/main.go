package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pysugar/cloud-nexus/internal/config"
	"github.com/pysugar/cloud-nexus/internal/version"
	"github.com/spf13/cobra"
)

var flagConfigPath string

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cloudnexus",
		Short:         "Unified gateway over Google Drive, OneDrive and Dropbox",
		Version:       version.Get().String(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: search standard locations)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newPurgeCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfigPath != "" {
		cfg, err = config.LoadFile(flagConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}
