// Package ledger confirms and settles transactions against the sharded balance stores.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/outbox"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
	"github.com/wallet-ledger/internal/platform/metrics"
	"github.com/wallet-ledger/internal/platform/persistence"
	"github.com/wallet-ledger/internal/platform/sharding"
)

// WalletCache is evicted after every commit that changed a balance
type WalletCache interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// Engine drives transactions through PENDING -> PROCESSING -> {COMPLETED | FAILED}.
// Transactions live on the shard of their source wallet.
type Engine struct {
	router    *sharding.Router
	shards    []*Shard
	fees      transaction.FeeSchedule
	feeRouter *FeeRouter
	cache     WalletCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewEngine(
	logger *slog.Logger,
	router *sharding.Router,
	shards []*Shard,
	fees transaction.FeeSchedule,
	feeRouter *FeeRouter,
	cache WalletCache,
	m *metrics.Metrics,
) (*Engine, error) {
	if len(shards) != router.Count() {
		return nil, fmt.Errorf("router expects %d shards, got %d", router.Count(), len(shards))
	}
	return &Engine{
		router:    router,
		shards:    shards,
		fees:      fees,
		feeRouter: feeRouter,
		cache:     cache,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Initiate quotes a movement of amount. Nothing is stored.
func (e *Engine) Initiate(txType shared.TransactionType, amount decimal.Decimal) (*transaction.Quote, error) {
	return e.fees.NewQuote(uuid.New(), txType, amount)
}

// Register stores a PENDING transaction for ConfirmSynchronous. A nil id mints one,
// so the id of an earlier quote can be reused.
func (e *Engine) Register(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	t, shard, err := e.prepare(id, txType, req, shared.TransactionStatusPending)
	if err != nil {
		return nil, err
	}

	err = shard.DB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if _, err := e.checkWallets(ctx, shard.Wallets.WithTx(tx), t); err != nil {
			return err
		}
		if err := shard.Transactions.WithTx(tx).Create(ctx, t); err != nil {
			return err
		}
		return appendStatusChanged(ctx, shard.Outbox.WithTx(tx), t)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Transaction registered", "transaction_id", t.ID.String(), "type", string(t.Type))
	return t, nil
}

// ConfirmSynchronous executes a PENDING transaction in one unit of work. A
// business failure is recorded as FAILED and returned alongside the transaction.
// Lock contention and store failures leave it PENDING.
func (e *Engine) ConfirmSynchronous(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	start := time.Now()
	shard, _, err := e.locate(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		t         *transaction.Transaction
		outcome   settlement
		rejection error
	)
	err = shard.DB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txs := shard.Transactions.WithTx(tx)
		var err error
		t, err = txs.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if rejection = e.checkConfirmable(t); rejection != nil {
			t.Touch()
			return txs.Update(ctx, t)
		}
		if err := t.TransitionTo(shared.TransactionStatusProcessing); err != nil {
			return err
		}

		outcome, err = e.settle(ctx, tx, shard, t, isBusinessFailure)
		if err != nil {
			return err
		}
		return e.record(ctx, tx, shard, t, outcome.failure)
	})
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return nil, rejection
	}

	e.committed(ctx, t, outcome.written, start)
	return t, outcome.failure
}

// ConfirmAsynchronous creates a PROCESSING transaction. Deposits and withdrawals
// queue a settlement request for the payment rail and return; transfers settle
// inline and come back COMPLETED or FAILED. A nil id mints one. Retrying with
// the same id returns ErrAlreadyProcessed instead of queueing a second request.
func (e *Engine) ConfirmAsynchronous(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error) {
	start := time.Now()
	if id == uuid.Nil {
		id = uuid.New()
	}
	t, shard, err := e.prepare(id, txType, req, shared.TransactionStatusProcessing)
	if err != nil {
		return nil, err
	}

	var outcome settlement
	err = shard.DB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		source, err := e.checkWallets(ctx, shard.Wallets.WithTx(tx), t)
		if err != nil {
			return err
		}
		obs := shard.Outbox.WithTx(tx)
		if err := shard.Transactions.WithTx(tx).Create(ctx, t); err != nil {
			return err
		}
		if err := appendStatusChanged(ctx, obs, t); err != nil {
			return err
		}

		request, err := transaction.Dispatch[*outbox.Message](ctx, t, &settlementRequest{wallet: source})
		if err != nil {
			return fmt.Errorf("failed to build settlement request: %w", err)
		}
		if request != nil {
			return obs.Create(ctx, request)
		}

		outcome, err = e.settle(ctx, tx, shard, t, isBusinessFailure)
		if err != nil {
			return err
		}
		return e.record(ctx, tx, shard, t, outcome.failure)
	})
	if err != nil {
		return nil, err
	}

	e.committed(ctx, t, outcome.written, start)
	return t, nil
}

// OnSettlementCompleted credits a deposit once the rail has collected the funds.
// Redelivery for a terminal transaction is a no-op.
func (e *Engine) OnSettlementCompleted(ctx context.Context, id uuid.UUID, credited decimal.Decimal) error {
	if err := transaction.CheckAmount(credited); err != nil {
		return err
	}
	return e.finalize(ctx, id, func(tx pgx.Tx, shard *Shard, t *transaction.Transaction) ([]uuid.UUID, error) {
		if err := requireSettling(t, shared.TransactionTypeDeposit); err != nil {
			return nil, err
		}
		if !credited.Equal(t.Amount) {
			e.logger.Warn("Settled amount differs from requested amount",
				"transaction_id", t.ID.String(),
				"requested", t.Amount.String(),
				"credited", credited.String())
		}

		session := shard.Balances().Session(tx)
		if _, err := transaction.Dispatch[struct{}](ctx, t, &balanceMutation{session: session, fees: e.feeRouter, credited: &credited}); err != nil {
			return nil, err
		}
		if err := t.TransitionTo(shared.TransactionStatusCompleted); err != nil {
			return nil, err
		}
		return session.Written(), e.record(ctx, tx, shard, t, nil)
	})
}

// OnSettlementFailed marks a transaction FAILED with the rail's reason.
// Redelivery for a terminal transaction is a no-op.
func (e *Engine) OnSettlementFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if reason == "" {
		reason = string(shared.FailureReasonSettlementFailed)
	}
	return e.finalize(ctx, id, func(tx pgx.Tx, shard *Shard, t *transaction.Transaction) ([]uuid.UUID, error) {
		if err := t.Fail(reason); err != nil {
			return nil, err
		}
		return nil, e.record(ctx, tx, shard, t, nil)
	})
}

// OnWithdrawalSettled debits a withdrawal the rail has paid out. Insufficient
// funds fail the transaction; any other error is returned for redelivery.
func (e *Engine) OnWithdrawalSettled(ctx context.Context, id uuid.UUID) error {
	return e.finalize(ctx, id, func(tx pgx.Tx, shard *Shard, t *transaction.Transaction) ([]uuid.UUID, error) {
		if err := requireSettling(t, shared.TransactionTypeWithdrawal); err != nil {
			return nil, err
		}
		outcome, err := e.settle(ctx, tx, shard, t, isInsufficientFunds)
		if err != nil {
			return nil, err
		}
		return outcome.written, e.record(ctx, tx, shard, t, outcome.failure)
	})
}

// Cancel moves a PENDING or PROCESSING transaction to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	shard, _, err := e.locate(ctx, id)
	if err != nil {
		return nil, err
	}

	var t *transaction.Transaction
	err = shard.DB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		t, err = shard.Transactions.WithTx(tx).LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := t.TransitionTo(shared.TransactionStatusCancelled); err != nil {
			return err
		}
		return e.record(ctx, tx, shard, t, nil)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Transaction cancelled", "transaction_id", id.String())
	return t, nil
}

// Status reads a transaction from whichever shard holds it.
func (e *Engine) Status(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	_, t, err := e.locate(ctx, id)
	return t, err
}

// finalize runs a settlement step on a locked transaction. Terminal
// transactions are skipped so redelivered events are harmless.
func (e *Engine) finalize(ctx context.Context, id uuid.UUID, step func(tx pgx.Tx, shard *Shard, t *transaction.Transaction) ([]uuid.UUID, error)) error {
	shard, _, err := e.locate(ctx, id)
	if err != nil {
		return err
	}

	var (
		t       *transaction.Transaction
		written []uuid.UUID
		skipped bool
	)
	err = shard.DB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		t, err = shard.Transactions.WithTx(tx).LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status.IsTerminal() {
			skipped = true
			return nil
		}
		written, err = step(tx, shard, t)
		return err
	})
	if err != nil {
		return err
	}

	if skipped {
		e.logger.Info("Ignoring settlement for terminal transaction",
			"transaction_id", id.String(),
			"status", string(t.Status))
		return nil
	}
	e.evict(ctx, written)
	e.logger.Info("Transaction settled",
		"transaction_id", id.String(),
		"type", string(t.Type),
		"status", string(t.Status))
	return nil
}

// settlement is the outcome of applying a transaction's balance effect.
type settlement struct {
	written []uuid.UUID
	failure error
}

// settle applies the balance effect of t inside a savepoint. Errors accepted
// by recordable roll back to the savepoint and fail t. The rest abort the unit of work.
func (e *Engine) settle(ctx context.Context, tx pgx.Tx, shard *Shard, t *transaction.Transaction, recordable func(error) bool) (settlement, error) {
	var session *BalanceSession
	err := persistence.Savepoint(ctx, tx, func(sp pgx.Tx) error {
		session = shard.Balances().Session(sp)
		_, err := transaction.Dispatch[struct{}](ctx, t, &balanceMutation{session: session, fees: e.feeRouter})
		return err
	})
	if err != nil {
		if !recordable(err) {
			return settlement{}, err
		}
		if failErr := t.Fail(failureReason(err)); failErr != nil {
			return settlement{}, failErr
		}
		return settlement{failure: err}, nil
	}

	if err := t.TransitionTo(shared.TransactionStatusCompleted); err != nil {
		return settlement{}, err
	}
	return settlement{written: session.Written()}, nil
}

// record persists the status of t and its audit event. Losing a FAILED status
// is a persistence failure, never a business one.
func (e *Engine) record(ctx context.Context, tx pgx.Tx, shard *Shard, t *transaction.Transaction, failure error) error {
	err := shard.Transactions.WithTx(tx).Update(ctx, t)
	if err == nil {
		err = appendStatusChanged(ctx, shard.Outbox.WithTx(tx), t)
	}
	if err != nil && failure != nil {
		return fmt.Errorf("failed to record FAILED status of %s: %w: %w", t.ID, shared.ErrPersistence, err)
	}
	return err
}

func appendStatusChanged(ctx context.Context, obs outbox.Repository, t *transaction.Transaction) error {
	msg, err := outbox.NewStatusChangedMessage(t.StatusChanged())
	if err != nil {
		return fmt.Errorf("failed to encode status change: %w", err)
	}
	return obs.Create(ctx, msg)
}

// prepare builds a transaction and picks its shard.
func (e *Engine) prepare(id uuid.UUID, txType shared.TransactionType, req transaction.Request, status shared.TransactionStatus) (*transaction.Transaction, *Shard, error) {
	fee, err := e.fees.Fee(txType, req.Amount)
	if err != nil {
		return nil, nil, err
	}
	t, err := transaction.New(id, txType, req, fee, status)
	if err != nil {
		return nil, nil, err
	}
	if err := e.checkParties(t); err != nil {
		return nil, nil, err
	}
	return t, e.shards[e.router.Shard(t.WalletID)], nil
}

// checkParties keeps the system wallet out of user movements and both wallets
// of a transfer on one shard.
func (e *Engine) checkParties(t *transaction.Transaction) error {
	system := e.feeRouter.SystemWalletID()
	for _, id := range t.WalletIDs() {
		if id == system {
			return transaction.ErrSystemWallet
		}
	}
	if t.TargetWalletID != nil && e.router.Shard(*t.TargetWalletID) != e.router.Shard(t.WalletID) {
		return transaction.ErrCrossShardTransfer
	}
	return nil
}

// checkConfirmable lists the reasons a locked transaction cannot be confirmed.
func (e *Engine) checkConfirmable(t *transaction.Transaction) error {
	if t.Status != shared.TransactionStatusPending {
		return transaction.ErrAlreadyProcessed{TransactionID: t.ID, Status: t.Status}
	}
	if err := t.Validate(); err != nil {
		return err
	}
	return e.checkParties(t)
}

// checkWallets verifies the wallets of t exist, are active and share a
// currency. It returns the source wallet. No holds are taken.
func (e *Engine) checkWallets(ctx context.Context, wallets wallet.Repository, t *transaction.Transaction) (*wallet.Wallet, error) {
	source, err := activeWallet(ctx, wallets, t.WalletID)
	if err != nil {
		return nil, err
	}
	if t.TargetWalletID == nil {
		return source, nil
	}
	target, err := activeWallet(ctx, wallets, *t.TargetWalletID)
	if err != nil {
		return nil, err
	}
	if source.Currency != target.Currency {
		return nil, ErrCurrencyMismatch{From: source.Currency, To: target.Currency}
	}
	return source, nil
}

func activeWallet(ctx context.Context, wallets wallet.Repository, id uuid.UUID) (*wallet.Wallet, error) {
	w, err := wallets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.IsActive() {
		return nil, wallet.ErrWalletInactive{WalletID: id}
	}
	return w, nil
}

func requireSettling(t *transaction.Transaction, expected shared.TransactionType) error {
	if t.Type != expected {
		return ErrSettlementMismatch{TransactionID: t.ID, Expected: expected, Actual: t.Type}
	}
	if t.Status != shared.TransactionStatusProcessing {
		return transaction.ErrInvalidTransition{TransactionID: t.ID, From: t.Status, To: shared.TransactionStatusCompleted}
	}
	return nil
}

// locate probes the shards in order for the transaction.
func (e *Engine) locate(ctx context.Context, id uuid.UUID) (*Shard, *transaction.Transaction, error) {
	for _, shard := range e.shards {
		t, err := shard.Transactions.GetByID(ctx, id)
		if err == nil {
			return shard, t, nil
		}
		if !errors.Is(err, transaction.ErrTransactionNotFound{}) {
			return nil, nil, err
		}
	}
	return nil, nil, transaction.ErrTransactionNotFound{TransactionID: id}
}

func (e *Engine) evict(ctx context.Context, written []uuid.UUID) {
	if e.cache != nil && len(written) > 0 {
		e.cache.Invalidate(ctx, written...)
	}
}

func (e *Engine) committed(ctx context.Context, t *transaction.Transaction, written []uuid.UUID, start time.Time) {
	e.evict(ctx, written)
	e.metrics.TransactionsConfirmed.WithLabelValues(string(t.Type), string(t.Status)).Inc()
	e.metrics.ConfirmDuration.WithLabelValues(string(t.Type)).Observe(time.Since(start).Seconds())
	e.logger.Info("Transaction confirmed",
		"transaction_id", t.ID.String(),
		"type", string(t.Type),
		"status", string(t.Status),
		"reason", t.FailureReason)
}
