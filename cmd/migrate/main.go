// Command migrate backfills the record store from the detail records already
// kept in storage, for tenants that enable record mirroring after they have
// been running for a while.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"civicrelay/internal/baseline"
	"civicrelay/internal/config"
	"civicrelay/internal/models"
	"civicrelay/internal/wire"

	"github.com/sirupsen/logrus"
)

type options struct {
	configPath string
	tenantKey  string
	dryRun     bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", "config.json", "Path to the configuration file")
	flag.StringVar(&opts.tenantKey, "tenant", "", "Tenant to backfill (default: every active tenant)")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Count the records without writing them")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(context.Background(), opts, logger, os.Stdout); err != nil {
		logger.WithError(err).Fatal("Backfill failed")
	}
}

func run(ctx context.Context, opts options, logger *logrus.Logger, out io.Writer) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Records.Driver == "" && !opts.dryRun {
		return fmt.Errorf("records.driver is not configured, nothing to backfill into")
	}

	tenants, err := selectTenants(cfg, opts.tenantKey)
	if err != nil {
		return err
	}

	store, err := wire.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	sink, err := wire.OpenRecords(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer sink.Close()

	for _, tenant := range tenants {
		details, err := baseline.New(store, tenant.Key).Details(ctx)
		if err != nil {
			return fmt.Errorf("failed to load details of %s: %w", tenant.Key, err)
		}
		if opts.dryRun {
			fmt.Fprintf(out, "%s: %d record(s) would be written\n", tenant.Key, len(details))
			continue
		}

		written := 0
		for i := range details {
			if err := sink.Upsert(ctx, tenant.Key, &details[i]); err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"tenant":    tenant.Key,
					"entity_id": details[i].ID.String(),
				}).Warn("Failed to write record")
				continue
			}
			written++
		}
		fmt.Fprintf(out, "%s: %d/%d record(s) written\n", tenant.Key, written, len(details))
	}
	return nil
}

func selectTenants(cfg *models.Config, key string) ([]models.TenantConfig, error) {
	if key != "" {
		tenant, ok := cfg.Tenant(key)
		if !ok {
			return nil, fmt.Errorf("tenant %q is not configured or not active", key)
		}
		return []models.TenantConfig{tenant}, nil
	}

	var tenants []models.TenantConfig
	for _, t := range cfg.Tenants {
		if t.Active {
			tenants = append(tenants, t)
		}
	}
	return tenants, nil
}
