// Package cmd implements the pyscout subcommands.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/finder"
)

const defaultTimeout = 60 * time.Second

// newDiscoveryFinder builds a finder from the command's configuration. The
// caller owns the finder and must dispose it.
func newDiscoveryFinder(cmd *cobra.Command) (*finder.Finder, error) {
	settings, err := cli.LoadSettings(cmd)
	if err != nil {
		return nil, err
	}
	return finder.New(finder.Options{Settings: settings})
}

func timeoutFlag(cmd *cobra.Command) time.Duration {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		return defaultTimeout
	}
	return timeout
}
