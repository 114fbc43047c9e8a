package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wallet-ledger/internal/config"
	"github.com/wallet-ledger/internal/domain/shared"
)

// SQLSTATE codes the ledger reacts to.
const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
)

// Querier supports database operations for both pool and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Pool is the part of pgxpool.Pool a shard needs
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Ensure interfaces are satisfied (compile-time check)
var _ Querier = (*pgxpool.Pool)(nil)
var _ Querier = (pgx.Tx)(nil)
var _ Pool = (*pgxpool.Pool)(nil)

// PostgresDB is one shard: a connection pool plus the lock policy of its units of work.
type PostgresDB struct {
	pool        Pool
	logger      *slog.Logger
	name        string
	lockTimeout time.Duration
}

// NewPostgresShards migrates and connects every configured shard, in shard order.
func NewPostgresShards(ctx context.Context, logger *slog.Logger, cfg *config.Config) ([]*PostgresDB, error) {
	shards := make([]*PostgresDB, 0, len(cfg.Postgres.ShardURLs))
	for i, url := range cfg.Postgres.ShardURLs {
		name := fmt.Sprintf("ds%d", i)
		db, err := NewPostgresDB(ctx, logger.With("shard", name), &cfg.Postgres, url, cfg.Ledger.LockTimeout)
		if err != nil {
			for _, opened := range shards {
				opened.Close()
			}
			return nil, fmt.Errorf("failed to open shard %s: %w", name, err)
		}
		db.name = name
		shards = append(shards, db)
	}
	return shards, nil
}

func NewPostgresDB(ctx context.Context, logger *slog.Logger, cfg *config.PostgresConfig, url string, lockTimeout time.Duration) (*PostgresDB, error) {
	err := RunMigrations(url, cfg.MigrationsPath)
	if err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL")

	return &PostgresDB{
		pool:        pool,
		logger:      logger,
		lockTimeout: lockTimeout,
	}, nil
}

func (db *PostgresDB) Pool() Pool {
	return db.pool
}

// Name is the shard label, ds{i}.
func (db *PostgresDB) Name() string {
	return db.name
}

func (db *PostgresDB) Close() {
	db.pool.Close()
	db.logger.Info("Closed PostgreSQL connection")
}

// ExecuteTx runs fn in one unit of work. Row locks taken inside wait at most
// lockTimeout. The unit of work rolls back on error or panic.
func (db *PostgresDB) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", shared.ErrPersistence, TranslateError(err))
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if db.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", db.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to set lock timeout: %w: %w", shared.ErrPersistence, err)
		}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.logger.Error("Failed to roll back transaction", "error", rbErr, "cause", err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		translated := TranslateError(err)
		if errors.Is(translated, shared.ErrContended) {
			return fmt.Errorf("failed to commit transaction: %w", translated)
		}
		return fmt.Errorf("failed to commit transaction: %w: %w", shared.ErrPersistence, err)
	}
	return nil
}

// Savepoint runs fn inside a nested transaction of tx. A failing fn rolls back
// to the savepoint only, leaving the enclosing unit of work usable.
func Savepoint(ctx context.Context, tx pgx.Tx, fn func(tx pgx.Tx) error) error {
	nested, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to create savepoint: %w: %w", shared.ErrPersistence, TranslateError(err))
	}

	if err := fn(nested); err != nil {
		if rbErr := nested.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("failed to roll back savepoint: %w: %w", shared.ErrPersistence, rbErr)
		}
		return err
	}

	if err := nested.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w: %w", shared.ErrPersistence, TranslateError(err))
	}
	return nil
}

// TranslateError maps lock wait timeouts and deadlocks to shared.ErrContended
// and leaves every other error untouched.
func TranslateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure:
			return fmt.Errorf("%w: %w", shared.ErrContended, err)
		}
	}
	return err
}

// IsUniqueViolation reports a duplicate key error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// IsCheckViolation reports a CHECK constraint error, such as a negative balance.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation
}
