package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/pool"
	"github.com/dlcy/iptv-hunan/internal/store/state"
	"github.com/dlcy/iptv-hunan/internal/urltemplate"
)

func newTemplatizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templatize <url>",
		Short: "Print the channel template for a concrete stream URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), urltemplate.Templatize(args[0]))
			return err
		},
	}
}

type resolveFlags struct {
	stateFile string
	servers   []string
	sync      bool
	timeout   time.Duration
}

func newResolveCmd() *cobra.Command {
	var f resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve <template>",
		Short: "Resolve a channel template once and print the playable URL",
		Long: "Resolve picks a server from the state file (or --server) and substitutes\n" +
			"the current time token. With --sync the clock offset is measured first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.stateFile, "state", "./iptv-state.yaml", "state file providing servers and clock sources")
	cmd.Flags().StringSliceVar(&f.servers, "server", nil, "server host:port to use instead of the state file pool")
	cmd.Flags().BoolVar(&f.sync, "sync", false, "query the current clock source before resolving")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 3*time.Second, "clock sync timeout")
	return cmd
}

func runResolve(cmd *cobra.Command, template string, f resolveFlags) error {
	log := logger.Nop()

	st := state.Defaults()
	if f.stateFile != "" {
		loaded, err := readState(f.stateFile, log)
		if err != nil {
			return err
		}
		st = loaded
	}
	if len(f.servers) > 0 {
		st.Servers = f.servers
	}

	clk := clock.NewService(clock.NTPQuerier{Timeout: f.timeout}, st.Clock, log)
	if f.sync {
		ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
		defer cancel()
		if _, err := clk.Sync(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "clock sync failed, using local time: %v\n", err)
		}
	}

	res, err := urltemplate.Resolve(template, pool.New(st.Servers), clk)
	fmt.Fprintln(cmd.OutOrStdout(), res.URL)
	return err
}

// readState reads the state file without creating it.
func readState(path string, log logger.Logger) (state.State, error) {
	st, err := state.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("state file missing, using defaults", logger.String("path", path))
		return state.Defaults(), nil
	}
	return st, err
}
