package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/outbox"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
)

// balanceMutation applies the balance effect of a transaction through one session.
// Every hold, including the system wallet's, is taken up front in canonical order.
type balanceMutation struct {
	session *BalanceSession
	fees    *FeeRouter

	// credited overrides the deposit amount with what the rail reported
	credited *decimal.Decimal
}

var _ transaction.Cases[struct{}] = (*balanceMutation)(nil)

func (m *balanceMutation) Deposit(ctx context.Context, t *transaction.Transaction) (struct{}, error) {
	if err := m.session.LockAll(ctx, t.WalletID, m.fees.SystemWalletID()); err != nil {
		return struct{}{}, err
	}
	w, err := m.session.LockedRead(ctx, t.WalletID, true)
	if err != nil {
		return struct{}{}, err
	}

	amount := t.Amount
	if m.credited != nil {
		amount = *m.credited
	}
	if err := w.Credit(amount); err != nil {
		return struct{}{}, err
	}
	if err := m.session.Write(ctx, w); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, m.fees.Route(ctx, m.session, t.Fee)
}

func (m *balanceMutation) Withdrawal(ctx context.Context, t *transaction.Transaction) (struct{}, error) {
	if err := m.session.LockAll(ctx, t.WalletID, m.fees.SystemWalletID()); err != nil {
		return struct{}{}, err
	}
	w, err := m.session.LockedRead(ctx, t.WalletID, true)
	if err != nil {
		return struct{}{}, err
	}

	if err := w.Debit(t.Total()); err != nil {
		return struct{}{}, err
	}
	if err := m.session.Write(ctx, w); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, m.fees.Route(ctx, m.session, t.Fee)
}

func (m *balanceMutation) Transfer(ctx context.Context, t *transaction.Transaction) (struct{}, error) {
	if t.TargetWalletID == nil {
		return struct{}{}, transaction.ErrMissingTarget
	}
	if err := m.session.LockAll(ctx, t.WalletID, *t.TargetWalletID, m.fees.SystemWalletID()); err != nil {
		return struct{}{}, err
	}
	from, err := m.session.LockedRead(ctx, t.WalletID, true)
	if err != nil {
		return struct{}{}, err
	}
	to, err := m.session.LockedRead(ctx, *t.TargetWalletID, true)
	if err != nil {
		return struct{}{}, err
	}
	if from.Currency != to.Currency {
		return struct{}{}, ErrCurrencyMismatch{From: from.Currency, To: to.Currency}
	}

	if err := from.Debit(t.Total()); err != nil {
		return struct{}{}, err
	}
	if err := to.Credit(t.Amount); err != nil {
		return struct{}{}, err
	}
	if err := m.session.Write(ctx, from); err != nil {
		return struct{}{}, err
	}
	if err := m.session.Write(ctx, to); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, m.fees.Route(ctx, m.session, t.Fee)
}

// settlementRequest builds the outbox message asking the payment rail to
// settle t. Transfers are internal and produce none.
type settlementRequest struct {
	wallet *wallet.Wallet
}

var _ transaction.Cases[*outbox.Message] = (*settlementRequest)(nil)

func (r *settlementRequest) Deposit(_ context.Context, t *transaction.Transaction) (*outbox.Message, error) {
	return outbox.NewMessage(outbox.EventTypeDepositRequested, t.ID, t.WalletID, shared.DepositRequestedEvent{
		TransactionID: t.ID,
		UserID:        t.UserID,
		WalletID:      t.WalletID,
		Amount:        t.Amount,
		Currency:      r.wallet.Currency,
		Timestamp:     time.Now().UTC(),
	})
}

func (r *settlementRequest) Withdrawal(_ context.Context, t *transaction.Transaction) (*outbox.Message, error) {
	return outbox.NewMessage(outbox.EventTypeWithdrawalRequested, t.ID, t.WalletID, shared.WithdrawalRequestedEvent{
		TransactionID: t.ID,
		UserID:        t.UserID,
		WalletID:      t.WalletID,
		Amount:        t.Amount,
		Fee:           t.Fee,
		Currency:      r.wallet.Currency,
		Timestamp:     time.Now().UTC(),
	})
}

func (r *settlementRequest) Transfer(context.Context, *transaction.Transaction) (*outbox.Message, error) {
	return nil, nil
}
