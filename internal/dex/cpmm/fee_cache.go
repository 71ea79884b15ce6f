// internal/dex/cpmm/fee_cache.go
package cpmm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/cluster"
)

// feeConfigFetcher loads the protocol fee tiers from the index service.
type feeConfigFetcher interface {
	FetchFeeConfigs(ctx context.Context) ([]FeeConfig, error)
}

type feeCacheEntry struct {
	configs   []FeeConfig
	fetchedAt time.Time
}

// FeeConfigCache caches fee tiers per cluster with a fixed TTL. The index
// service publishes mainnet config accounts; for other clusters the account
// ids are re-derived under that cluster's program before caching.
type FeeConfigCache struct {
	fetcher feeConfigFetcher
	ttl     time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[cluster.Cluster]feeCacheEntry

	// now is swapped out in tests.
	now func() time.Time
}

func NewFeeConfigCache(fetcher feeConfigFetcher, logger *zap.Logger) *FeeConfigCache {
	return &FeeConfigCache{
		fetcher: fetcher,
		ttl:     feeConfigTTL,
		logger:  logger.Named("fee-config-cache"),
		entries: make(map[cluster.Cluster]feeCacheEntry),
		now:     time.Now,
	}
}

// Get returns the fee tiers for a cluster, sorted by tier index. A fresh
// cache entry is served without a network call; an expired or missing entry
// triggers a refetch. Fetch failures leave any previous entry in place.
func (c *FeeConfigCache) Get(ctx context.Context, cl cluster.Cluster) ([]FeeConfig, error) {
	c.mu.RLock()
	entry, ok := c.entries[cl]
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		configs := entry.configs
		c.mu.RUnlock()
		return copyConfigs(configs), nil
	}
	c.mu.RUnlock()

	configs, err := c.fetcher.FetchFeeConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch fee configs: %w", err)
	}
	if cl != cluster.Mainnet {
		if configs, err = rederiveConfigIDs(configs, ProgramID(cl)); err != nil {
			return nil, err
		}
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Index < configs[j].Index })

	c.mu.Lock()
	c.entries[cl] = feeCacheEntry{configs: configs, fetchedAt: c.now()}
	c.mu.Unlock()

	c.logger.Debug("Fee configs refreshed",
		zap.String("cluster", cl.String()),
		zap.Int("count", len(configs)))
	return copyConfigs(configs), nil
}

// Invalidate drops the cached entry for a cluster.
func (c *FeeConfigCache) Invalidate(cl cluster.Cluster) {
	c.mu.Lock()
	delete(c.entries, cl)
	c.mu.Unlock()
}

func rederiveConfigIDs(configs []FeeConfig, programID solana.PublicKey) ([]FeeConfig, error) {
	out := make([]FeeConfig, len(configs))
	for i, cfg := range configs {
		id, err := deriveAmmConfig(programID, cfg.Index)
		if err != nil {
			return nil, err
		}
		cfg.ID = id
		out[i] = cfg
	}
	return out, nil
}

func copyConfigs(configs []FeeConfig) []FeeConfig {
	out := make([]FeeConfig, len(configs))
	copy(out, configs)
	return out
}
