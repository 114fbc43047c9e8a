package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/outbox"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
)

// memDB is an in-memory shard with row locks that behave like SELECT ... FOR UPDATE
// under a lock_timeout: a second holder waits up to lockWait, then gets ErrContended.
type memDB struct {
	mu       sync.Mutex
	wallets  map[uuid.UUID]wallet.Wallet
	txs      map[uuid.UUID]transaction.Transaction
	outbox   []outbox.Message
	rowLocks map[string]chan struct{}
	lockWait time.Duration

	// failTxUpdates makes every transaction status write fail
	failTxUpdates bool
}

func newMemDB() *memDB {
	return &memDB{
		wallets:  make(map[uuid.UUID]wallet.Wallet),
		txs:      make(map[uuid.UUID]transaction.Transaction),
		rowLocks: make(map[string]chan struct{}),
		lockWait: 2 * time.Second,
	}
}

func (db *memDB) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx := newMemTx(db, nil)
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (db *memDB) rowLock(key string) chan struct{} {
	db.mu.Lock()
	defer db.mu.Unlock()
	ch, ok := db.rowLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		db.rowLocks[key] = ch
	}
	return ch
}

func (db *memDB) putWallet(w *wallet.Wallet) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.wallets[w.ID] = *w
}

func (db *memDB) balance(id uuid.UUID) decimal.Decimal {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.wallets[id].Balance
}

func (db *memDB) transaction(id uuid.UUID) (transaction.Transaction, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.txs[id]
	return t, ok
}

func (db *memDB) messages(eventType outbox.EventType) []outbox.Message {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []outbox.Message
	for _, m := range db.outbox {
		if m.EventType == eventType {
			out = append(out, m)
		}
	}
	return out
}

// memTx buffers writes until the root commits. A nested memTx is a savepoint.
type memTx struct {
	pgx.Tx
	db      *memDB
	parent  *memTx
	wallets map[uuid.UUID]wallet.Wallet
	txs     map[uuid.UUID]transaction.Transaction
	outbox  []outbox.Message
	held    []string
	closed  bool
}

func newMemTx(db *memDB, parent *memTx) *memTx {
	return &memTx{
		db:      db,
		parent:  parent,
		wallets: make(map[uuid.UUID]wallet.Wallet),
		txs:     make(map[uuid.UUID]transaction.Transaction),
	}
}

func (tx *memTx) root() *memTx {
	r := tx
	for r.parent != nil {
		r = r.parent
	}
	return r
}

func (tx *memTx) Begin(context.Context) (pgx.Tx, error) {
	if tx.closed {
		return nil, pgx.ErrTxClosed
	}
	return newMemTx(tx.db, tx), nil
}

func (tx *memTx) Commit(context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	if tx.parent != nil {
		for id, w := range tx.wallets {
			tx.parent.wallets[id] = w
		}
		for id, t := range tx.txs {
			tx.parent.txs[id] = t
		}
		tx.parent.outbox = append(tx.parent.outbox, tx.outbox...)
		return nil
	}

	tx.db.mu.Lock()
	for id, w := range tx.wallets {
		tx.db.wallets[id] = w
	}
	for id, t := range tx.txs {
		tx.db.txs[id] = t
	}
	for _, m := range tx.outbox {
		m.ID = int64(len(tx.db.outbox) + 1)
		tx.db.outbox = append(tx.db.outbox, m)
	}
	tx.db.mu.Unlock()
	tx.release()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	if tx.parent == nil {
		tx.release()
	}
	return nil
}

func (tx *memTx) release() {
	for _, key := range tx.held {
		<-tx.db.rowLock(key)
	}
	tx.held = nil
}

func (tx *memTx) holds(key string) bool {
	for _, k := range tx.root().held {
		if k == key {
			return true
		}
	}
	return false
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if tx.holds(key) {
		return nil
	}
	root := tx.root()
	select {
	case tx.db.rowLock(key) <- struct{}{}:
		root.held = append(root.held, key)
		return nil
	case <-time.After(tx.db.lockWait):
		return fmt.Errorf("%w: lock timeout on %s", shared.ErrContended, key)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tx *memTx) wallet(id uuid.UUID) (wallet.Wallet, bool) {
	for t := tx; t != nil; t = t.parent {
		if w, ok := t.wallets[id]; ok {
			return w, true
		}
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	w, ok := tx.db.wallets[id]
	return w, ok
}

func (tx *memTx) transaction(id uuid.UUID) (transaction.Transaction, bool) {
	for t := tx; t != nil; t = t.parent {
		if v, ok := t.txs[id]; ok {
			return v, true
		}
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	v, ok := tx.db.txs[id]
	return v, ok
}

func walletKey(id uuid.UUID) string { return "wallet:" + id.String() }

func transactionKey(id uuid.UUID) string { return "transaction:" + id.String() }

var errNoTx = errors.New("statement requires a unit of work")

// memWalletRepository implements wallet.Repository over memDB.
type memWalletRepository struct {
	db *memDB
	tx *memTx
}

func (r *memWalletRepository) WithTx(tx pgx.Tx) wallet.Repository {
	return &memWalletRepository{db: r.db, tx: tx.(*memTx)}
}

func (r *memWalletRepository) Create(_ context.Context, w *wallet.Wallet) error {
	if r.tx == nil {
		r.db.putWallet(w)
		return nil
	}
	r.tx.wallets[w.ID] = *w
	return nil
}

func (r *memWalletRepository) GetByID(_ context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	var (
		w  wallet.Wallet
		ok bool
	)
	if r.tx != nil {
		w, ok = r.tx.wallet(id)
	} else {
		r.db.mu.Lock()
		w, ok = r.db.wallets[id]
		r.db.mu.Unlock()
	}
	if !ok {
		return nil, wallet.ErrWalletNotFound{WalletID: id}
	}
	return &w, nil
}

func (r *memWalletRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	if r.tx == nil {
		return nil, errNoTx
	}
	if _, ok := r.tx.wallet(id); !ok {
		return nil, wallet.ErrWalletNotFound{WalletID: id}
	}
	if err := r.tx.lock(ctx, walletKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *memWalletRepository) UpdateBalance(_ context.Context, w *wallet.Wallet) error {
	if r.tx == nil {
		return errNoTx
	}
	if !r.tx.holds(walletKey(w.ID)) {
		return fmt.Errorf("balance of %s written without holding its row lock", w.ID)
	}
	if w.Balance.IsNegative() {
		return wallet.ErrInsufficientFunds{WalletID: w.ID, Balance: w.Balance}
	}
	r.tx.wallets[w.ID] = *w
	return nil
}

func (r *memWalletRepository) ExistsForUserAndType(_ context.Context, userID, walletTypeID uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, w := range r.db.wallets {
		if w.UserID == userID && w.WalletTypeID == walletTypeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memWalletRepository) GetActiveTypeByCurrency(_ context.Context, currency string) (*wallet.WalletType, error) {
	return &wallet.WalletType{ID: uuid.NewSHA1(uuid.Nil, []byte(currency)), Name: currency, CurrencyCode: currency, Status: shared.WalletStatusActive}, nil
}

func (r *memWalletRepository) EnsureSystemWallet(_ context.Context, id uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.wallets[id]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	r.db.wallets[id] = wallet.Wallet{
		ID: id, UserID: id, Name: "System wallet", Currency: "XXX",
		Status: shared.WalletStatusActive, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}
	return true, nil
}

// memTransactionRepository implements transaction.Repository over memDB.
type memTransactionRepository struct {
	db *memDB
	tx *memTx
}

func (r *memTransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &memTransactionRepository{db: r.db, tx: tx.(*memTx)}
}

func (r *memTransactionRepository) Create(_ context.Context, t *transaction.Transaction) error {
	if r.tx == nil {
		return errNoTx
	}
	if _, ok := r.tx.transaction(t.ID); ok {
		return transaction.ErrAlreadyProcessed{TransactionID: t.ID}
	}
	r.tx.txs[t.ID] = *t
	return nil
}

func (r *memTransactionRepository) GetByID(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	var (
		t  transaction.Transaction
		ok bool
	)
	if r.tx != nil {
		t, ok = r.tx.transaction(id)
	} else {
		t, ok = r.db.transaction(id)
	}
	if !ok {
		return nil, transaction.ErrTransactionNotFound{TransactionID: id}
	}
	return &t, nil
}

func (r *memTransactionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	if r.tx == nil {
		return nil, errNoTx
	}
	if _, ok := r.tx.transaction(id); !ok {
		return nil, transaction.ErrTransactionNotFound{TransactionID: id}
	}
	if err := r.tx.lock(ctx, transactionKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *memTransactionRepository) Update(_ context.Context, t *transaction.Transaction) error {
	if r.tx == nil {
		return errNoTx
	}
	if r.db.failTxUpdates {
		return errors.New("disk full")
	}
	if _, ok := r.tx.transaction(t.ID); !ok {
		return transaction.ErrTransactionNotFound{TransactionID: t.ID}
	}
	r.tx.txs[t.ID] = *t
	return nil
}

// memOutboxRepository implements outbox.Repository over memDB.
type memOutboxRepository struct {
	db *memDB
	tx *memTx
}

func (r *memOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &memOutboxRepository{db: r.db, tx: tx.(*memTx)}
}

func (r *memOutboxRepository) Create(_ context.Context, m *outbox.Message) error {
	if r.tx == nil {
		return errNoTx
	}
	r.tx.outbox = append(r.tx.outbox, *m)
	return nil
}

func (r *memOutboxRepository) GetPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*outbox.Message
	for i := range r.db.outbox {
		if r.db.outbox[i].Status == shared.OutboxStatusPending && len(out) < limit {
			m := r.db.outbox[i]
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memOutboxRepository) UpdateStatus(_ context.Context, id int64, status shared.OutboxStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.outbox {
		if r.db.outbox[i].ID == id {
			r.db.outbox[i].Status = status
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

func (r *memOutboxRepository) IncrementAttempts(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.outbox {
		if r.db.outbox[i].ID == id {
			r.db.outbox[i].Attempts++
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

func (r *memOutboxRepository) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.outbox[:0]
	var deleted int64
	for _, m := range r.db.outbox {
		if m.Status == shared.OutboxStatusProcessed && m.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	r.db.outbox = kept
	return deleted, nil
}

func newMemShard(index int, db *memDB) *Shard {
	return &Shard{
		Index:        index,
		DB:           db,
		Wallets:      &memWalletRepository{db: db},
		Transactions: &memTransactionRepository{db: db},
		Outbox:       &memOutboxRepository{db: db},
	}
}
