package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sydlexius/camwatch/internal/version"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "camwatch",
		Short: "Public camera directory with status scanning and live image relay",
		// Running without a subcommand starts the server.
		RunE:          func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context()) },
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("CW_CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "/data/config.yaml"
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultPath, "path to the YAML config file (env CW_CONFIG_PATH)")

	root.AddCommand(newServeCmd(), newImportCmd(), newHashTokenCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the scan scheduler",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context()) },
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "camwatch %s (%s, built %s)\n", version.Version, version.Commit, version.BuildDate)
		},
	}
}
