package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/provider"
	"github.com/sells-group/outreach-cli/internal/resilience"
	syncpkg "github.com/sells-group/outreach-cli/internal/sync"
	"github.com/sells-group/outreach-cli/pkg/apollo"
	"github.com/sells-group/outreach-cli/pkg/hunter"
	"github.com/sells-group/outreach-cli/pkg/notion"
	sfpkg "github.com/sells-group/outreach-cli/pkg/salesforce"
)

func initCache(ctx context.Context) (cache.Cache, error) {
	return cache.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN)
}

// buildOrchestrator wires the configured providers, rate limits, and retry
// policy into an enrichment orchestrator.
func buildOrchestrator(c cache.Cache) (*enrich.Orchestrator, error) {
	registry := provider.NewRegistry()

	if len(cfg.Providers.Hunter.Keys) > 0 {
		keys := make([]hunter.APIKey, len(cfg.Providers.Hunter.Keys))
		for i, k := range cfg.Providers.Hunter.Keys {
			keys[i] = hunter.APIKey{
				Key:     k.Key,
				Credits: k.Credits,
				Active:  k.Status != "disabled",
			}
		}
		var opts []hunter.Option
		if cfg.Providers.Hunter.BaseURL != "" {
			opts = append(opts, hunter.WithBaseURL(cfg.Providers.Hunter.BaseURL))
		}
		registry.Register(hunter.New(keys, opts...))
	}

	if cfg.Providers.Apollo.Key != "" {
		var opts []apollo.Option
		if cfg.Providers.Apollo.BaseURL != "" {
			opts = append(opts, apollo.WithBaseURL(cfg.Providers.Apollo.BaseURL))
		}
		registry.Register(apollo.New(cfg.Providers.Apollo.Key, opts...))
	}

	providers, err := registry.Resolve(cfg.Providers.Precedence)
	if err != nil {
		return nil, err
	}

	retry := resilience.FromConfig(
		cfg.Providers.Retry.MaxAttempts,
		cfg.Providers.Retry.InitialBackoffMs,
		cfg.Providers.Retry.MaxBackoffMs,
		cfg.Providers.Retry.Multiplier,
		cfg.Providers.Retry.JitterFraction,
	)
	client := provider.NewClient(retry, cfg.Providers.Concurrency)
	client.SetLimit("hunter", cfg.Providers.Hunter.RPS, cfg.Providers.Hunter.Burst)
	client.SetLimit("apollo", cfg.Providers.Apollo.RPS, cfg.Providers.Apollo.Burst)

	ttls := map[string]time.Duration{
		"hunter": time.Duration(cfg.Providers.Hunter.TTLHours) * time.Hour,
		"apollo": time.Duration(cfg.Providers.Apollo.TTLHours) * time.Hour,
	}

	return enrich.New(c, client, providers, ttls, enrich.Config{
		MaxBatchSize: cfg.Providers.MaxBatchSize,
		RunCap:       cfg.Providers.RunCap,
	}), nil
}

// initSyncers builds the enabled publish targets. The snapshot workbook is
// always on; Salesforce and Notion are opt-in.
func initSyncers() ([]syncpkg.Syncer, error) {
	targets := []syncpkg.Syncer{
		&syncpkg.XLSXSyncer{Path: cfg.Sync.SnapshotPath},
	}

	if cfg.Sync.Salesforce.Enabled {
		sfClient, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		targets = append(targets, &syncpkg.SalesforceSyncer{Client: sfClient})
	}

	if cfg.Sync.Notion.Enabled {
		if cfg.Sync.Notion.Token == "" || cfg.Sync.Notion.LeadDB == "" {
			return nil, eris.New("notion sync requires a token and lead database ID")
		}
		targets = append(targets, &syncpkg.NotionSyncer{
			Client:     notion.NewClient(cfg.Sync.Notion.Token, notion.WithRateLimit(cfg.Sync.Notion.RPS)),
			DatabaseID: cfg.Sync.Notion.LeadDB,
		})
	}

	return targets, nil
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Sync.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (OUTREACH_SYNC_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Sync.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Sync.Salesforce.LoginURL,
		Username:       cfg.Sync.Salesforce.Username,
		ConsumerKey:    cfg.Sync.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Sync.Salesforce.RPS)), nil
}
