package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeRouter credits fees to the system wallet.
type FeeRouter struct {
	systemWalletID uuid.UUID
}

func NewFeeRouter(systemWalletID uuid.UUID) *FeeRouter {
	return &FeeRouter{systemWalletID: systemWalletID}
}

// SystemWalletID is the wallet every fee lands in.
func (r *FeeRouter) SystemWalletID() uuid.UUID {
	return r.systemWalletID
}

// Route credits fee to the system wallet through session, so it commits or
// rolls back with the movement that charged it. A fee <= 0 is a no-op.
func (r *FeeRouter) Route(ctx context.Context, session *BalanceSession, fee decimal.Decimal) error {
	if !fee.IsPositive() {
		return nil
	}
	system, err := session.LockedRead(ctx, r.systemWalletID, false)
	if err != nil {
		return fmt.Errorf("failed to lock system wallet: %w", err)
	}
	if err := system.Credit(fee); err != nil {
		return err
	}
	return session.Write(ctx, system)
}
