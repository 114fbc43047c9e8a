package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// EnsureSystemWallet creates the fee wallet on every shard where it is missing.
// Running it again is a no-op.
func EnsureSystemWallet(ctx context.Context, logger *slog.Logger, shards []*Shard, systemWalletID uuid.UUID) error {
	for _, shard := range shards {
		created, err := shard.Wallets.EnsureSystemWallet(ctx, systemWalletID)
		if err != nil {
			return fmt.Errorf("failed to ensure system wallet on shard %d: %w", shard.Index, err)
		}
		if created {
			logger.Info("Created system wallet", "shard", shard.Index, "wallet_id", systemWalletID.String())
		}
	}
	return nil
}
