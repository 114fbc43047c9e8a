package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wallet-ledger/internal/domain/outbox"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
	"github.com/wallet-ledger/internal/platform/metrics"
	"github.com/wallet-ledger/internal/platform/sharding"
)

var systemWalletID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingCache struct {
	mu      sync.Mutex
	evicted []uuid.UUID
}

func (c *recordingCache) Invalidate(_ context.Context, ids ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evicted = append(c.evicted, ids...)
}

type testLedger struct {
	engine  *Engine
	router  *sharding.Router
	dbs     []*memDB
	shards  []*Shard
	cache   *recordingCache
	metrics *metrics.Metrics
	user    uuid.UUID
}

func newTestLedger(t *testing.T, shardCount int) *testLedger {
	t.Helper()
	router, err := sharding.NewRouter(shardCount)
	require.NoError(t, err)

	l := &testLedger{
		router:  router,
		cache:   &recordingCache{},
		metrics: metrics.New(prometheus.NewRegistry()),
		user:    uuid.New(),
	}
	for i := 0; i < shardCount; i++ {
		db := newMemDB()
		l.dbs = append(l.dbs, db)
		l.shards = append(l.shards, newMemShard(i, db))
	}
	logger := nopLogger()
	require.NoError(t, EnsureSystemWallet(context.Background(), logger, l.shards, systemWalletID))

	l.engine, err = NewEngine(logger, router, l.shards, transaction.DefaultFeeSchedule(), NewFeeRouter(systemWalletID), l.cache, l.metrics)
	require.NoError(t, err)
	return l
}

// wallet opens a USD wallet co-located with the test user.
func (l *testLedger) wallet(t *testing.T, balance string) uuid.UUID {
	t.Helper()
	id := l.router.Colocate(l.user)
	l.walletWithID(t, id, balance)
	return id
}

func (l *testLedger) walletWithID(t *testing.T, id uuid.UUID, balance string) {
	t.Helper()
	w, err := wallet.NewWallet(id, l.user, &wallet.WalletType{ID: uuid.New(), CurrencyCode: "USD"}, "", dec(balance))
	require.NoError(t, err)
	l.dbOf(id).putWallet(w)
}

func (l *testLedger) dbOf(walletID uuid.UUID) *memDB {
	return l.dbs[l.router.Shard(walletID)]
}

func (l *testLedger) balance(walletID uuid.UUID) decimal.Decimal {
	return l.dbOf(walletID).balance(walletID)
}

func (l *testLedger) systemBalance(walletID uuid.UUID) decimal.Decimal {
	return l.dbOf(walletID).balance(systemWalletID)
}

func (l *testLedger) stored(t *testing.T, walletID, id uuid.UUID) transaction.Transaction {
	t.Helper()
	stored, ok := l.dbOf(walletID).transaction(id)
	require.True(t, ok, "transaction %s not stored", id)
	return stored
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func transfer(from, to uuid.UUID, user uuid.UUID, amount string) transaction.Request {
	return transaction.Request{UserID: user, WalletID: from, TargetWalletID: &to, Amount: dec(amount)}
}

func TestEngine_Initiate(t *testing.T) {
	l := newTestLedger(t, 1)

	testCases := []struct {
		txType shared.TransactionType
		amount string
		fee    string
		total  string
	}{
		{shared.TransactionTypeDeposit, "50.00", "0.50", "50.50"},
		{shared.TransactionTypeWithdrawal, "100", "2", "102"},
		{shared.TransactionTypeTransfer, "30.00", "0.45", "30.45"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.txType), func(t *testing.T) {
			quote, err := l.engine.Initiate(tc.txType, dec(tc.amount))
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, quote.TransactionID)
			assertDecimal(t, tc.fee, quote.Fee)
			assertDecimal(t, tc.total, quote.TotalAmount)
		})
	}

	_, err := l.engine.Initiate(shared.TransactionTypeDeposit, dec("0"))
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestEngine_DepositScenario(t *testing.T) {
	l := newTestLedger(t, 1)
	ctx := context.Background()
	w1 := l.wallet(t, "100.00")

	txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeDeposit, uuid.Nil,
		transaction.Request{UserID: l.user, WalletID: w1, Amount: dec("50.00")})
	require.NoError(t, err)
	assert.Equal(t, shared.TransactionStatusProcessing, txn.Status)
	assertDecimal(t, "0.50", txn.Fee)
	assertDecimal(t, "100.00", l.balance(w1))

	requests := l.dbOf(w1).messages(outbox.EventTypeDepositRequested)
	require.Len(t, requests, 1)
	assert.Equal(t, txn.ID, requests[0].TransactionID)
	assert.Contains(t, string(requests[0].Payload), `"currency":"USD"`)

	require.NoError(t, l.engine.OnSettlementCompleted(ctx, txn.ID, dec("50.00")))

	assertDecimal(t, "150.00", l.balance(w1))
	assertDecimal(t, "0.50", l.systemBalance(w1))
	assert.Equal(t, shared.TransactionStatusCompleted, l.stored(t, w1, txn.ID).Status)
	assert.Contains(t, l.cache.evicted, w1)
	assert.Contains(t, l.cache.evicted, systemWalletID)

	t.Run("redelivery is a no-op", func(t *testing.T) {
		require.NoError(t, l.engine.OnSettlementCompleted(ctx, txn.ID, dec("50.00")))
		assertDecimal(t, "150.00", l.balance(w1))
		assertDecimal(t, "0.50", l.systemBalance(w1))
	})

	t.Run("audit trail", func(t *testing.T) {
		changes := l.dbOf(w1).messages(outbox.EventTypeStatusChanged)
		require.Len(t, changes, 2)
		first, err := (&changes[0]).StatusChanged()
		require.NoError(t, err)
		last, err := (&changes[1]).StatusChanged()
		require.NoError(t, err)
		assert.Equal(t, shared.TransactionStatusProcessing, first.Status)
		assert.Equal(t, shared.TransactionStatusCompleted, last.Status)
	})
}

func TestEngine_ConfirmSynchronous(t *testing.T) {
	ctx := context.Background()

	t.Run("deposit", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "100.00")

		registered, err := l.engine.Register(ctx, shared.TransactionTypeDeposit, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50.00")})
		require.NoError(t, err)
		assert.Equal(t, shared.TransactionStatusPending, registered.Status)

		txn, err := l.engine.ConfirmSynchronous(ctx, registered.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.TransactionStatusCompleted, txn.Status)
		assertDecimal(t, "150.00", l.balance(w))
		assertDecimal(t, "0.50", l.systemBalance(w))
		assert.Equal(t, float64(1), testutil.ToFloat64(l.metrics.TransactionsConfirmed.WithLabelValues("DEPOSIT", "COMPLETED")))
	})

	t.Run("withdrawal", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "100.00")

		registered, err := l.engine.Register(ctx, shared.TransactionTypeWithdrawal, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50.00")})
		require.NoError(t, err)

		_, err = l.engine.ConfirmSynchronous(ctx, registered.ID)
		require.NoError(t, err)
		assertDecimal(t, "49.00", l.balance(w))
		assertDecimal(t, "1.00", l.systemBalance(w))
	})

	t.Run("withdrawal without funds", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "50.00")

		registered, err := l.engine.Register(ctx, shared.TransactionTypeWithdrawal, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50.00")})
		require.NoError(t, err)

		txn, err := l.engine.ConfirmSynchronous(ctx, registered.ID)
		assert.ErrorIs(t, err, shared.ErrInsufficientFunds)
		require.NotNil(t, txn)
		assert.Equal(t, shared.TransactionStatusFailed, txn.Status)
		assertDecimal(t, "50.00", l.balance(w))
		assertDecimal(t, "0", l.systemBalance(w))

		stored := l.stored(t, w, registered.ID)
		assert.Equal(t, shared.TransactionStatusFailed, stored.Status)
		assert.Equal(t, string(shared.FailureReasonInsufficientFunds), stored.FailureReason)
	})

	t.Run("transfer", func(t *testing.T) {
		l := newTestLedger(t, 1)
		from := l.wallet(t, "100.00")
		to := l.wallet(t, "10.00")

		registered, err := l.engine.Register(ctx, shared.TransactionTypeTransfer, uuid.Nil, transfer(from, to, l.user, "30.00"))
		require.NoError(t, err)

		_, err = l.engine.ConfirmSynchronous(ctx, registered.ID)
		require.NoError(t, err)
		assertDecimal(t, "69.55", l.balance(from))
		assertDecimal(t, "40.00", l.balance(to))
		assertDecimal(t, "0.45", l.systemBalance(from))
		assertDecimal(t, "110.00", l.balance(from).Add(l.balance(to)).Add(l.systemBalance(from)))
	})

	t.Run("failed transfer scenario", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w1 := l.wallet(t, "20.00")
		w2 := l.wallet(t, "5.00")

		registered, err := l.engine.Register(ctx, shared.TransactionTypeTransfer, uuid.Nil, transfer(w1, w2, l.user, "30.00"))
		require.NoError(t, err)
		assertDecimal(t, "0.45", registered.Fee)

		_, err = l.engine.ConfirmSynchronous(ctx, registered.ID)
		assert.ErrorIs(t, err, shared.ErrInsufficientFunds)
		assertDecimal(t, "20.00", l.balance(w1))
		assertDecimal(t, "5.00", l.balance(w2))

		stored := l.stored(t, w1, registered.ID)
		assert.Equal(t, shared.TransactionStatusFailed, stored.Status)
		assert.Equal(t, "INSUFFICIENT_FUNDS", stored.FailureReason)
	})

	t.Run("already processed", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "100.00")

		registered, err := l.engine.Register(ctx, shared.TransactionTypeDeposit, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("10")})
		require.NoError(t, err)
		_, err = l.engine.ConfirmSynchronous(ctx, registered.ID)
		require.NoError(t, err)
		completedAt := l.stored(t, w, registered.ID).UpdatedAt

		time.Sleep(time.Millisecond)
		_, err = l.engine.ConfirmSynchronous(ctx, registered.ID)
		assert.ErrorIs(t, err, shared.ErrAlreadyProcessed)
		assert.ErrorIs(t, err, transaction.ErrAlreadyProcessed{TransactionID: registered.ID})
		assertDecimal(t, "110.00", l.balance(w))
		assertDecimal(t, "0.10", l.systemBalance(w))

		stored := l.stored(t, w, registered.ID)
		assert.Equal(t, shared.TransactionStatusCompleted, stored.Status)
		assert.True(t, stored.UpdatedAt.After(completedAt))
	})

	t.Run("unknown transaction", func(t *testing.T) {
		l := newTestLedger(t, 2)
		_, err := l.engine.ConfirmSynchronous(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("contended wallet stays pending", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "100.00")
		registered, err := l.engine.Register(ctx, shared.TransactionTypeDeposit, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("10")})
		require.NoError(t, err)

		db := l.dbOf(w)
		db.lockWait = 20 * time.Millisecond
		holder := newMemTx(db, nil)
		require.NoError(t, holder.lock(ctx, walletKey(w)))
		defer func() { _ = holder.Rollback(ctx) }()

		_, err = l.engine.ConfirmSynchronous(ctx, registered.ID)
		assert.ErrorIs(t, err, shared.ErrContended)
		assert.Equal(t, shared.TransactionStatusPending, l.stored(t, w, registered.ID).Status)
		assertDecimal(t, "100.00", l.balance(w))
	})

	t.Run("unrecorded failure is a persistence error", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "1.00")
		registered, err := l.engine.Register(ctx, shared.TransactionTypeWithdrawal, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("10")})
		require.NoError(t, err)

		l.dbOf(w).failTxUpdates = true
		_, err = l.engine.ConfirmSynchronous(ctx, registered.ID)
		assert.ErrorIs(t, err, shared.ErrPersistence)
		assert.Equal(t, shared.TransactionStatusPending, l.stored(t, w, registered.ID).Status)
	})
}

func TestEngine_ConfirmAsynchronousTransfer(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)
	w1 := l.wallet(t, "20.00")
	w2 := l.wallet(t, "0")

	txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeTransfer, uuid.Nil, transfer(w1, w2, l.user, "30.00"))
	require.NoError(t, err)
	assert.Equal(t, shared.TransactionStatusFailed, txn.Status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", txn.FailureReason)
	assertDecimal(t, "20.00", l.balance(w1))

	txn, err = l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeTransfer, uuid.Nil, transfer(w1, w2, l.user, "10.00"))
	require.NoError(t, err)
	assert.Equal(t, shared.TransactionStatusCompleted, txn.Status)
	assertDecimal(t, "9.85", l.balance(w1))
	assertDecimal(t, "10.00", l.balance(w2))
	assertDecimal(t, "0.15", l.systemBalance(w1))
	assert.Empty(t, l.dbOf(w1).messages(outbox.EventTypeDepositRequested))
}

func TestEngine_RejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 4)
	w := l.wallet(t, "10")

	var elsewhere uuid.UUID
	for {
		elsewhere = uuid.New()
		if l.router.Shard(elsewhere) != l.router.Shard(w) {
			break
		}
	}
	l.walletWithID(t, elsewhere, "0")

	eur := l.router.Colocate(l.user)
	eurWallet, err := wallet.NewWallet(eur, l.user, &wallet.WalletType{ID: uuid.New(), CurrencyCode: "EUR"}, "", decimal.Zero)
	require.NoError(t, err)
	l.dbOf(eur).putWallet(eurWallet)

	testCases := []struct {
		name   string
		txType shared.TransactionType
		req    transaction.Request
	}{
		{"zero amount", shared.TransactionTypeDeposit, transaction.Request{UserID: l.user, WalletID: w, Amount: decimal.Zero}},
		{"self transfer", shared.TransactionTypeTransfer, transfer(w, w, l.user, "1")},
		{"cross shard transfer", shared.TransactionTypeTransfer, transfer(w, elsewhere, l.user, "1")},
		{"currency mismatch", shared.TransactionTypeTransfer, transfer(w, eur, l.user, "1")},
		{"unknown type", shared.TransactionType("REFUND"), transaction.Request{UserID: l.user, WalletID: w, Amount: dec("1")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.engine.ConfirmAsynchronous(ctx, tc.txType, uuid.Nil, tc.req)
			assert.ErrorIs(t, err, shared.ErrInvalidArgument)
			_, err = l.engine.Register(ctx, tc.txType, uuid.Nil, tc.req)
			assert.ErrorIs(t, err, shared.ErrInvalidArgument)
		})
	}

	t.Run("unknown wallet", func(t *testing.T) {
		_, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeDeposit, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: uuid.New(), Amount: dec("1")})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestEngine_SystemWalletTakesNoUserMovements(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)
	w := l.wallet(t, "500")

	// seed some fees so a withdrawal would otherwise be payable
	_, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeTransfer, uuid.Nil, transfer(w, l.wallet(t, "0"), l.user, "100"))
	require.NoError(t, err)
	assertDecimal(t, "1.5", l.systemBalance(w))

	testCases := []struct {
		name   string
		txType shared.TransactionType
		req    transaction.Request
	}{
		{"deposit into", shared.TransactionTypeDeposit, transaction.Request{UserID: l.user, WalletID: systemWalletID, Amount: dec("100")}},
		{"withdrawal from", shared.TransactionTypeWithdrawal, transaction.Request{UserID: l.user, WalletID: systemWalletID, Amount: dec("1")}},
		{"transfer from", shared.TransactionTypeTransfer, transfer(systemWalletID, w, l.user, "1")},
		{"transfer to", shared.TransactionTypeTransfer, transfer(w, systemWalletID, l.user, "1")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.engine.ConfirmAsynchronous(ctx, tc.txType, uuid.Nil, tc.req)
			assert.ErrorIs(t, err, transaction.ErrSystemWallet)
			assert.ErrorIs(t, err, shared.ErrInvalidArgument)

			_, err = l.engine.Register(ctx, tc.txType, uuid.Nil, tc.req)
			assert.ErrorIs(t, err, transaction.ErrSystemWallet)
		})
	}

	assertDecimal(t, "1.5", l.systemBalance(w))
	assert.Empty(t, l.dbOf(w).messages(outbox.EventTypeDepositRequested))
	assert.Empty(t, l.dbOf(w).messages(outbox.EventTypeWithdrawalRequested))
}

func TestEngine_RejectsAmountsFinerThanStorage(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)
	w := l.wallet(t, "0.0001")

	_, err := l.engine.Initiate(shared.TransactionTypeDeposit, dec("0.00004"))
	assert.ErrorIs(t, err, transaction.ErrAmountPrecision)

	_, err = l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeWithdrawal, uuid.Nil,
		transaction.Request{UserID: l.user, WalletID: w, Amount: dec("0.00005")})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = l.engine.Register(ctx, shared.TransactionTypeDeposit, uuid.Nil,
		transaction.Request{UserID: l.user, WalletID: w, Amount: dec("0.00005")})
	assert.ErrorIs(t, err, transaction.ErrAmountPrecision)

	t.Run("settled amount", func(t *testing.T) {
		txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeDeposit, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("10")})
		require.NoError(t, err)

		err = l.engine.OnSettlementCompleted(ctx, txn.ID, dec("10.00001"))
		assert.ErrorIs(t, err, transaction.ErrAmountPrecision)
		assert.Equal(t, shared.TransactionStatusProcessing, l.stored(t, w, txn.ID).Status)
		assertDecimal(t, "0.0001", l.balance(w))
	})
}

func TestEngine_ConfirmAsynchronousRetry(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)
	w := l.wallet(t, "100")
	req := transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50")}

	quote, err := l.engine.Initiate(shared.TransactionTypeDeposit, req.Amount)
	require.NoError(t, err)

	txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeDeposit, quote.TransactionID, req)
	require.NoError(t, err)
	assert.Equal(t, quote.TransactionID, txn.ID)

	_, err = l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeDeposit, quote.TransactionID, req)
	assert.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	requests := l.dbOf(w).messages(outbox.EventTypeDepositRequested)
	require.Len(t, requests, 1)
	assert.Equal(t, quote.TransactionID, requests[0].TransactionID)
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.TransactionsConfirmed.WithLabelValues("DEPOSIT", "PROCESSING")))
}

func TestEngine_Withdrawal_Settlement(t *testing.T) {
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "100")
		txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeWithdrawal, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50")})
		require.NoError(t, err)
		require.Len(t, l.dbOf(w).messages(outbox.EventTypeWithdrawalRequested), 1)

		require.NoError(t, l.engine.OnWithdrawalSettled(ctx, txn.ID))
		require.NoError(t, l.engine.OnWithdrawalSettled(ctx, txn.ID))
		assertDecimal(t, "49", l.balance(w))
		assertDecimal(t, "1", l.systemBalance(w))
		assert.Equal(t, shared.TransactionStatusCompleted, l.stored(t, w, txn.ID).Status)
	})

	t.Run("completed without funds", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "10")
		txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeWithdrawal, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50")})
		require.NoError(t, err)

		require.NoError(t, l.engine.OnWithdrawalSettled(ctx, txn.ID))
		stored := l.stored(t, w, txn.ID)
		assert.Equal(t, shared.TransactionStatusFailed, stored.Status)
		assert.Equal(t, "INSUFFICIENT_FUNDS", stored.FailureReason)
		assertDecimal(t, "10", l.balance(w))
	})

	t.Run("failed", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "100")
		txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeWithdrawal, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50")})
		require.NoError(t, err)

		require.NoError(t, l.engine.OnSettlementFailed(ctx, txn.ID, ""))
		require.NoError(t, l.engine.OnSettlementFailed(ctx, txn.ID, "later reason"))
		stored := l.stored(t, w, txn.ID)
		assert.Equal(t, shared.TransactionStatusFailed, stored.Status)
		assert.Equal(t, string(shared.FailureReasonSettlementFailed), stored.FailureReason)
		assertDecimal(t, "100", l.balance(w))
	})

	t.Run("mismatched event", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "100")
		txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeWithdrawal, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50")})
		require.NoError(t, err)

		err = l.engine.OnSettlementCompleted(ctx, txn.ID, dec("50"))
		assert.ErrorIs(t, err, shared.ErrInvalidArgument)
		assert.Equal(t, shared.TransactionStatusProcessing, l.stored(t, w, txn.ID).Status)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		l := newTestLedger(t, 1)
		assert.ErrorIs(t, l.engine.OnSettlementCompleted(ctx, uuid.New(), dec("1")), shared.ErrNotFound)
		assert.ErrorIs(t, l.engine.OnSettlementFailed(ctx, uuid.New(), "x"), shared.ErrNotFound)
	})

	t.Run("settlement wallet missing is surfaced", func(t *testing.T) {
		l := newTestLedger(t, 1)
		w := l.wallet(t, "100")
		txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeDeposit, uuid.Nil,
			transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50")})
		require.NoError(t, err)

		inactive, err := l.shards[0].Wallets.GetByID(ctx, w)
		require.NoError(t, err)
		inactive.Status = shared.WalletStatusInactive
		l.dbOf(w).putWallet(inactive)

		err = l.engine.OnSettlementCompleted(ctx, txn.ID, dec("50"))
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Equal(t, shared.TransactionStatusProcessing, l.stored(t, w, txn.ID).Status)
	})
}

func TestEngine_Cancel(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)
	w := l.wallet(t, "100")

	txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeDeposit, uuid.Nil,
		transaction.Request{UserID: l.user, WalletID: w, Amount: dec("50")})
	require.NoError(t, err)

	cancelled, err := l.engine.Cancel(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.TransactionStatusCancelled, cancelled.Status)

	_, err = l.engine.Cancel(ctx, txn.ID)
	assert.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	require.NoError(t, l.engine.OnSettlementCompleted(ctx, txn.ID, dec("50")))
	assertDecimal(t, "100", l.balance(w))

	status, err := l.engine.Status(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.TransactionStatusCancelled, status.Status)
}

func TestEngine_ConcurrentOppositeTransfers(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)
	a := l.wallet(t, "100.00")
	b := l.wallet(t, "100.00")

	const n = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[shared.TransactionStatus]int{}
		errs     []error
	)
	for i := 0; i < n; i++ {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		wg.Add(1)
		go func(from, to uuid.UUID) {
			defer wg.Done()
			txn, err := l.engine.ConfirmAsynchronous(ctx, shared.TransactionTypeTransfer, uuid.Nil, transfer(from, to, l.user, "7.00"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			statuses[txn.Status]++
		}(from, to)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("opposite transfers did not finish")
	}

	assert.Empty(t, errs)
	assert.Equal(t, n, statuses[shared.TransactionStatusCompleted]+statuses[shared.TransactionStatusFailed])

	total := l.balance(a).Add(l.balance(b)).Add(l.systemBalance(a))
	assertDecimal(t, "200.00", total)
	assert.False(t, l.balance(a).IsNegative())
	assert.False(t, l.balance(b).IsNegative())
}

func TestEngine_ConcurrentConfirmOfOneTransaction(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)
	w := l.wallet(t, "0")

	registered, err := l.engine.Register(ctx, shared.TransactionTypeDeposit, uuid.Nil,
		transaction.Request{UserID: l.user, WalletID: w, Amount: dec("10")})
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		rejected  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.engine.ConfirmSynchronous(ctx, registered.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				completed++
			} else if assert.ErrorIs(t, err, shared.ErrAlreadyProcessed) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, completed)
	assert.Equal(t, n-1, rejected)
	assertDecimal(t, "10", l.balance(w))
}

func TestNewEngine_ShardCountMismatch(t *testing.T) {
	router, err := sharding.NewRouter(2)
	require.NoError(t, err)
	_, err = NewEngine(nopLogger(), router, []*Shard{newMemShard(0, newMemDB())},
		transaction.DefaultFeeSchedule(), NewFeeRouter(systemWalletID), nil, metrics.New(prometheus.NewRegistry()))
	assert.Error(t, err)
}
