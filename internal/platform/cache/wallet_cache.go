// Package cache keeps a read-through copy of active wallets in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wallet-ledger/internal/config"
	"github.com/wallet-ledger/internal/domain/wallet"
)

const walletKeyPrefix = "wallet:"

// tombstone marks a wallet evicted within the last tombstoneTTL. Reads that
// began before the eviction may not repopulate the key while it is present.
const (
	tombstone    = "evicted"
	tombstoneTTL = 5 * time.Second
)

// Client is the subset of redis.Cmdable the cache uses
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

var _ Client = (*redis.Client)(nil)

// NewRedisClient connects to the configured Redis and verifies it answers.
func NewRedisClient(ctx context.Context, logger *slog.Logger, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	logger.Info("Connected to Redis", "addr", cfg.Addr)
	return client, nil
}

// WalletCache stores wallets as JSON under wallet:<id>. Balances are only
// ever changed in Postgres and the engine evicts entries after every commit.
// Entries are only written into empty keys, so a read racing an eviction
// cannot put the pre-commit balance back.
type WalletCache struct {
	client Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewWalletCache(client Client, ttl time.Duration, logger *slog.Logger) *WalletCache {
	return &WalletCache{client: client, ttl: ttl, logger: logger}
}

func walletKey(id uuid.UUID) string {
	return walletKeyPrefix + id.String()
}

// Get returns the cached wallet, or nil without error on a miss.
func (c *WalletCache) Get(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	raw, err := c.client.Get(ctx, walletKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet %s from cache: %w", id, err)
	}
	if string(raw) == tombstone {
		return nil, nil
	}

	var w wallet.Wallet
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to decode cached wallet %s: %w", id, err)
	}
	return &w, nil
}

// Set stores w for the configured TTL unless the key is taken. A recent
// eviction holds the key, so w is dropped when it may predate that commit.
func (c *WalletCache) Set(ctx context.Context, w *wallet.Wallet) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode wallet %s: %w", w.ID, err)
	}
	stored, err := c.client.SetNX(ctx, walletKey(w.ID), raw, c.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to cache wallet %s: %w", w.ID, err)
	}
	if !stored {
		c.logger.Debug("Wallet not cached, key held", "wallet_id", w.ID.String())
	}
	return nil
}

// Invalidate replaces the given wallets with tombstones. Failures are logged,
// a stale entry expires with its TTL.
func (c *WalletCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	for _, id := range ids {
		if err := c.client.Set(ctx, walletKey(id), tombstone, tombstoneTTL).Err(); err != nil {
			c.logger.Warn("Failed to invalidate cached wallet", "error", err, "wallet_id", id.String())
		}
	}
}
