// Package redis implements the key-value backed Store. Key names are
// stable on-disk contract shared with the operator tooling; do not rename
// them.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the redis connection behind the Store implementation.
type Client struct {
	rdb *redis.Client
}

// Config holds redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new redis client and verifies connectivity.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Persisted key names.
const (
	keyLedger         = "protocol_stats"
	keyHourly         = "protocol_stats_hourly"
	keyDaily          = "protocol_stats_daily"
	keyHourlyPending  = "protocol_stats_hourly_pending"
	keyDailyPending   = "protocol_stats_daily_pending"
	keyHeightAgg      = "height_aggregator"
	keyHeightPrices   = "height_prs"
	keyHeightTxs      = "height_txs"
	keyTSHourly       = "timestamp_aggregator_hourly"
	keyTSDaily        = "timestamp_aggregator_daily"
	keyBlockHashes    = "block_hashes"
	keyPricingRecords = "pricing_records"
	keyBlockRewards   = "block_rewards"
	keyTxs            = "txs"
	keyTxsByBlock     = "txs_by_block"
	keySnapshots      = "reserve_snapshots"
	keyLastSnapshot   = "reserve_snapshots:last_previous_height"
	keyMismatches     = "reserve_mismatch_heights"
	keyTotals         = "totals"
	keyScannerState   = "scanner_state"
	keyRollingBack    = "scanner_rolling_back"
	keyPaused         = "scanner_paused"
)
