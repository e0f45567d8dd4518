package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sluicehq/sluice/internal/budget"
	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/governor"
	"github.com/sluicehq/sluice/internal/secrets"
	"github.com/sluicehq/sluice/internal/snapshot"
	"github.com/sluicehq/sluice/internal/upstream"
)

// tokenKeyEnv names the env var holding the hex key that seals the upstream
// token in config. When unset the configured token is used as-is.
const tokenKeyEnv = "SLUICE_TOKEN_KEY"

// newUpstreamClient builds the ads API client from config; the API version
// becomes part of the base URL and the access token is unsealed if a token
// key is present.
func newUpstreamClient(cfg *config.Config) (*upstream.Client, error) {
	box, err := secrets.NewBox(os.Getenv(tokenKeyEnv))
	if err != nil {
		return nil, fmt.Errorf("loading token key: %w", err)
	}
	token, err := box.Open(cfg.Upstream.Token)
	if err != nil {
		return nil, fmt.Errorf("unsealing upstream token: %w", err)
	}

	base := strings.TrimRight(cfg.Upstream.BaseURL, "/")
	if cfg.Upstream.APIVersion != "" {
		base += "/" + cfg.Upstream.APIVersion
	}
	return upstream.New(base, token, cfg.Upstream.Timeout), nil
}

// newGovernor builds the shared upstream governor from config.
func newGovernor(cfg *config.Config) *governor.Governor {
	policy := governor.NewPolicy(cfg.Governor.DefaultAllow)
	return governor.New(policy, governor.Config{
		MinDelay:      cfg.Governor.MinDelay,
		DelayJitter:   cfg.Governor.DelayJitter,
		BackoffBase:   cfg.Governor.BackoffBase,
		BackoffSpread: cfg.Governor.BackoffSpread,
	})
}

// newCollector builds the snapshot store and collector from config.
func newCollector(cfg *config.Config, gov *governor.Governor, client *upstream.Client, loc *time.Location) (*snapshot.Store, *snapshot.Collector, error) {
	store, err := snapshot.NewStore(cfg.Snapshots.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	collector := snapshot.NewCollector(store, gov, client, snapshot.CollectorConfig{
		Location:      loc,
		Deadline:      cfg.Snapshots.Deadline,
		RetryInterval: cfg.Snapshots.RetryInterval,
		MinRows:       cfg.Snapshots.MinRows,
	})
	return store, collector, nil
}

// newEngine builds the budget engine over the shared governor and client.
func newEngine(gov *governor.Governor, client *upstream.Client, loc *time.Location) *budget.Engine {
	return budget.NewEngine(gov, client, loc)
}
