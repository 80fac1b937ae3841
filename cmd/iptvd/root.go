package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlcy/iptv-hunan/internal/app"
	"github.com/dlcy/iptv-hunan/internal/config"
	"github.com/dlcy/iptv-hunan/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "iptvd",
		Short:         "Hunan IPTV player daemon",
		Long:          "iptvd plays Hunan Telecom IPTV channels through VLC and exposes a local HTTP control API.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(newServeCmd(), newTemplatizeCmd(), newResolveCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the player daemon and its HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := app.New(config.Load())
	if err != nil {
		return err
	}
	return a.Run()
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ iptvd: %v\n", err)
		os.Exit(1)
	}
}
