package ledger

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/wallet-ledger/internal/data/postgres"
	"github.com/wallet-ledger/internal/domain/outbox"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
	"github.com/wallet-ledger/internal/platform/persistence"
)

// UnitOfWork runs fn in one all-or-nothing database transaction.
type UnitOfWork interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

var _ UnitOfWork = (*persistence.PostgresDB)(nil)

// Shard is one independent storage partition and the repositories bound to it.
type Shard struct {
	Index        int
	DB           UnitOfWork
	Wallets      wallet.Repository
	Transactions transaction.Repository
	Outbox       outbox.Repository
}

// NewShards wires the postgres repositories onto every opened shard, in shard order.
func NewShards(logger *slog.Logger, dbs []*persistence.PostgresDB) []*Shard {
	shards := make([]*Shard, 0, len(dbs))
	for i, db := range dbs {
		shardLogger := logger.With("shard", db.Name())
		shards = append(shards, &Shard{
			Index:        i,
			DB:           db,
			Wallets:      postgres.NewWalletRepository(shardLogger, db),
			Transactions: postgres.NewTransactionRepository(shardLogger, db),
			Outbox:       postgres.NewOutboxRepository(shardLogger, db),
		})
	}
	return shards
}

// Balances returns the Balance Store of the shard.
func (s *Shard) Balances() *BalanceStore {
	return NewBalanceStore(s.Wallets)
}
