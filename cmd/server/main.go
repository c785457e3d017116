// Command server runs the remoteconfig admin daemon: it loads the refresh
// engine against one or more App Configuration-style replicas, serves the
// admin HTTP surface, and optionally runs Kubernetes-based replica discovery
// and a Redis push-notification relay alongside it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	cfgFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "remoteconfig-server",
		Short: "remoteconfig provider admin daemon",
		Long:  "Runs the refresh/failover engine for a remote configuration provider and serves its admin HTTP surface.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file (defaults to env vars only)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "remoteconfig-server version %s\n", version)
			return nil
		},
	}
}
