package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wallet-ledger/internal/domain/wallet"
)

// ErrLockOrder is returned when a session is asked to take a hold out of
// canonical order. It always indicates a programming error.
var ErrLockOrder = errors.New("wallet locks must be acquired in ascending id order")

// ErrNotHeld is returned by Write for a wallet the session never locked.
var ErrNotHeld = errors.New("wallet is not held by this session")

// BalanceStore is the only mutator of wallet balances on one shard.
type BalanceStore struct {
	wallets wallet.Repository
}

func NewBalanceStore(wallets wallet.Repository) *BalanceStore {
	return &BalanceStore{wallets: wallets}
}

// Session binds the store to one unit of work. Holds taken through the
// session are row locks of tx and end with its commit or rollback.
func (s *BalanceStore) Session(tx pgx.Tx) *BalanceSession {
	return &BalanceSession{
		wallets: s.wallets.WithTx(tx),
		held:    make(map[uuid.UUID]*wallet.Wallet),
	}
}

// BalanceSession tracks the wallets held inside one unit of work.
type BalanceSession struct {
	wallets wallet.Repository
	held    map[uuid.UUID]*wallet.Wallet
	highest uuid.UUID
	written []uuid.UUID
}

// CanonicalOrder sorts ids ascending by their bytes and drops duplicates.
func CanonicalOrder(ids ...uuid.UUID) []uuid.UUID {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(ordered)
}

// LockAll takes a hold on every wallet in canonical order.
func (s *BalanceSession) LockAll(ctx context.Context, ids ...uuid.UUID) error {
	for _, id := range CanonicalOrder(ids...) {
		if _, err := s.LockedRead(ctx, id, false); err != nil {
			return err
		}
	}
	return nil
}

// LockedRead returns the wallet with its row held until the unit of work ends.
// A wallet already held is served from the session.
func (s *BalanceSession) LockedRead(ctx context.Context, id uuid.UUID, requireActive bool) (*wallet.Wallet, error) {
	w, ok := s.held[id]
	if !ok {
		if len(s.held) > 0 && bytes.Compare(id[:], s.highest[:]) < 0 {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockOrder, id, s.highest)
		}
		locked, err := s.wallets.LockForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		s.held[id] = locked
		s.highest = id
		w = locked
	}
	if requireActive && !w.IsActive() {
		return nil, wallet.ErrWalletInactive{WalletID: id}
	}
	return w, nil
}

// Write persists the balance of a held wallet.
func (s *BalanceSession) Write(ctx context.Context, w *wallet.Wallet) error {
	if _, ok := s.held[w.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, w.ID)
	}
	if err := s.wallets.UpdateBalance(ctx, w); err != nil {
		return err
	}
	if !slices.Contains(s.written, w.ID) {
		s.written = append(s.written, w.ID)
	}
	return nil
}

// Written lists the wallets whose balance the session changed.
func (s *BalanceSession) Written() []uuid.UUID {
	return slices.Clone(s.written)
}
