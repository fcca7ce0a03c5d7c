package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"civicrelay/internal/archive"
	"civicrelay/internal/baseline"
	"civicrelay/internal/compose"
	"civicrelay/internal/config"
	"civicrelay/internal/dispatch"
	"civicrelay/internal/media"
	"civicrelay/internal/models"
	"civicrelay/internal/queue"
	"civicrelay/internal/receipts"
	"civicrelay/internal/retry"
	"civicrelay/internal/service"
	"civicrelay/internal/wire"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newFetchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Sync the tenant's reports and queue new entities and follow-ups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, ctx, err := newApp(cmd.Context(), opts, "fetch", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { a.close(ctx, err) }()

			report, err := runFetch(ctx, a)
			if err != nil {
				return err
			}
			printSyncReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newPublishCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <channel>",
		Short: "Publish the next queued item of one channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, ctx, err := newApp(cmd.Context(), opts, "publish-"+args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { a.close(ctx, err) }()

			outcome, err := runPublish(ctx, a, args[0])
			if outcome != nil || err == nil {
				printPublishOutcome(cmd.OutOrStdout(), args[0], outcome)
			}
			return err
		},
	}
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Render the periodic report and queue it on every channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, ctx, err := newApp(cmd.Context(), opts, "stats", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { a.close(ctx, err) }()

			stats := service.NewStatsService(a.tenant,
				baseline.New(a.store, a.tenant.Key),
				a.queue(),
				a.metrics,
				a.logger)
			text, enqueued, err := stats.Run(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, text)
			fmt.Fprintf(out, "\nqueued on %d channel(s)\n", enqueued)
			return nil
		},
	}
}

func newQueuesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show the occupancy of every queue of the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, ctx, err := newApp(cmd.Context(), opts, "queues", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { a.close(ctx, err) }()

			return printOccupancy(ctx, cmd.OutOrStdout(), a.tenant, a.queue())
		},
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run fetch and publish on every enabled channel at a fixed interval",
		Long: `watch keeps the process alive and runs one fetch followed by one publish
per enabled channel immediately and then on every interval, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, ctx, err := newApp(cmd.Context(), opts, "watch", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { a.close(ctx, err) }()

			scheduler := service.NewScheduler(watchJobs(a), interval, a.logger)
			scheduler.Start(ctx)
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "time between passes (default 15m)")
	return cmd
}

// watchJobs is one fetch followed by one publish per enabled channel.
func watchJobs(a *app) []service.Job {
	jobs := []service.Job{{
		Name: "fetch",
		Run: func(ctx context.Context) error {
			_, err := runFetch(ctx, a)
			return err
		},
	}}
	for _, ch := range a.tenant.EnabledChannels() {
		name := ch.Name
		jobs = append(jobs, service.Job{
			Name: "publish-" + name,
			Run: func(ctx context.Context) error {
				_, err := runPublish(ctx, a, name)
				return err
			},
		})
	}
	return jobs
}

func (a *app) queue() *queue.Queue {
	return queue.New(a.store, a.tenant.Key, a.tenant.MaxQueueSize, a.logger)
}

func (a *app) images() *media.Store {
	return media.New(a.store, a.tenant.Key, 0, a.logger)
}

// runFetch wires a SyncService against the app's backends and runs it once.
func runFetch(ctx context.Context, a *app) (*service.SyncReport, error) {
	recordStore, err := wire.OpenRecords(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	defer func() {
		if err := recordStore.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close record store")
		}
	}()

	scheduler := dispatch.NewTimerScheduler()
	defer scheduler.Stop()

	sync := service.NewSyncService(a.tenant, service.SyncDeps{
		Source:     wire.NewSource(a.tenant, a.logger),
		Baseline:   baseline.New(a.store, a.tenant.Key),
		Queue:      a.queue(),
		Images:     a.images(),
		Records:    recordStore,
		Archiver:   archive.New(a.store, a.tenant.Key, a.logger),
		Dispatcher: dispatch.New(scheduler, a.logger),
		Backoff:    retry.NewBackoff(retry.FromConfig(a.cfg.Retry)),
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
	return sync.Run(ctx)
}

// runPublish wires a PublishService for one channel and publishes at most one item.
func runPublish(ctx context.Context, a *app, channelName string) (*service.PublishOutcome, error) {
	ch, ok := a.tenant.Channel(channelName)
	if !ok {
		return nil, fmt.Errorf("channel %q is not configured or not enabled for tenant %s", channelName, a.tenant.Key)
	}
	if err := config.ValidateChannelCredentials(ch); err != nil {
		return nil, err
	}
	pub, err := wire.NewPublisher(ch, a.logger)
	if err != nil {
		return nil, err
	}
	loc, err := compose.LoadLocation(a.tenant.Timezone)
	if err != nil {
		return nil, err
	}

	worker := service.NewPublishService(a.tenant, ch, service.PublishDeps{
		Publisher: pub,
		Queue:     a.queue(),
		Receipts:  receipts.New(a.store, a.tenant.Key),
		Images:    a.images(),
		Composer:  compose.New(compose.BudgetFor(ch.Kind), loc, a.tenant.Source.TenantBaseURL(), a.tenant.ImageCredit),
		Metrics:   a.metrics,
		Logger:    a.logger,
	})
	outcome, err := worker.Run(ctx)
	if err != nil {
		return outcome, err
	}
	if outcome == nil {
		a.entry(ctx).WithField(service.LogFieldChannel, channelName).Info("Nothing to publish")
	}
	return outcome, nil
}

func printSyncReport(w io.Writer, r *service.SyncReport) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "fetched %d: %s new, %s updated, %d unchanged\n",
		r.Fetched, green(r.New), green(r.Updated), r.Unchanged)
	if r.Unmatched > 0 {
		fmt.Fprintf(w, "%s known entities absent from this fetch\n", yellow(r.Unmatched))
	}
	failed := r.NewBatch.Failed + r.UpdateBatch.Failed
	if failed > 0 {
		fmt.Fprintf(w, "%s entities failed\n", color.New(color.FgRed).Sprint(failed))
	}
	fmt.Fprintf(w, "queued %d item(s), dropped %d\n", r.Enqueued, r.Dropped)
	if len(r.Archived) > 0 {
		fmt.Fprintf(w, "archived %d entities\n", len(r.Archived))
	}
}

func printPublishOutcome(w io.Writer, channel string, o *service.PublishOutcome) {
	switch {
	case o == nil:
		fmt.Fprintf(w, "%s: nothing to publish\n", channel)
	case o.Published:
		fmt.Fprintf(w, "%s: published %s (%s)\n", channel, color.New(color.FgGreen).Sprint(o.Item), o.ReceiptID)
	case o.Kept:
		fmt.Fprintf(w, "%s: %s kept for the next run\n", channel, color.New(color.FgYellow).Sprint(o.Item))
	default:
		fmt.Fprintf(w, "%s: %s skipped\n", channel, color.New(color.FgRed).Sprint(o.Item))
	}
}

// printOccupancy writes one line per enabled channel and purpose.
func printOccupancy(ctx context.Context, w io.Writer, tenant models.TenantConfig, q *queue.Queue) error {
	bold := color.New(color.Bold).SprintFunc()
	for _, ch := range tenant.EnabledChannels() {
		fmt.Fprintln(w, bold(ch.Name))
		for _, purpose := range models.PublishPriority {
			n, err := q.Occupancy(ctx, ch.Name, purpose)
			if err != nil {
				return fmt.Errorf("failed to read queue %s/%s: %w", ch.Name, purpose, err)
			}
			c := color.New(color.FgGreen)
			if n > 0 {
				c = color.New(color.FgYellow)
			}
			fmt.Fprintf(w, "  %-18s %s\n", purpose, c.Sprint(n))
		}
	}
	return nil
}
