package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	TenantKey  string
	Verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "civicrelay",
		Short: "Relay civic reports from a citizen portal to social channels",
		Long: `civicrelay syncs the reports of a citizen report portal against a local
baseline, queues new reports and follow-ups per channel, and publishes them
one at a time so that external rate limits are respected.`,
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.json", "path to the configuration file (JSON or YAML)")
	cmd.PersistentFlags().StringVarP(&opts.TenantKey, "tenant", "t", "", "key of the tenant to work on")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging, including full post texts")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(newFetchCommand(opts))
	cmd.AddCommand(newPublishCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newQueuesCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}
