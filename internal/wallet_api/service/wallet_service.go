package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/audit"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/wallet"
	"github.com/wallet-ledger/internal/platform/metrics"
	"github.com/wallet-ledger/internal/platform/sharding"
)

// Labels of the wallet_create_errors_total counter.
const (
	ReasonInvalidCurrency     = "invalid_currency"
	ReasonUnsupportedCurrency = "unsupported_currency"
	ReasonAlreadyExists       = "already_exists"
	ReasonInvalidRequest      = "invalid_request"
	ReasonPersistence         = "persistence"
)

// Labels of the wallet_get_total counter.
const (
	ReadStatusOK       = "ok"
	ReadStatusNotFound = "not_found"
	ReadStatusSystem   = "system"
	ReadStatusError    = "error"
)

// WalletServiceImpl implements the WalletService interface over the sharded
// wallet repositories. repos[i] serves shard ds{i}.
type WalletServiceImpl struct {
	router         *sharding.Router
	repos          []wallet.Repository
	cache          WalletCache
	auditRepo      audit.Repository
	systemWalletID uuid.UUID
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

func NewWalletService(
	logger *slog.Logger,
	router *sharding.Router,
	repos []wallet.Repository,
	cache WalletCache,
	auditRepo audit.Repository,
	systemWalletID uuid.UUID,
	m *metrics.Metrics,
) (WalletService, error) {
	if len(repos) != router.Count() {
		return nil, fmt.Errorf("router expects %d shards, got %d wallet repositories", router.Count(), len(repos))
	}
	return &WalletServiceImpl{
		router:         router,
		repos:          repos,
		cache:          cache,
		auditRepo:      auditRepo,
		systemWalletID: systemWalletID,
		metrics:        m,
		logger:         logger,
	}, nil
}

// CreateWallet opens a wallet for the user in an active currency. Wallets are
// minted on their owner's shard, so the unique (user, type) index of that
// shard enforces one wallet per wallet type.
func (s *WalletServiceImpl) CreateWallet(ctx context.Context, params CreateWalletParams) (*wallet.Wallet, error) {
	currency, err := wallet.NormalizeCurrency(params.Currency)
	if err != nil {
		return nil, s.createFailed(ReasonInvalidCurrency, err)
	}
	if params.UserID == uuid.Nil {
		return nil, s.createFailed(ReasonInvalidRequest, fmt.Errorf("user id is required: %w", shared.ErrInvalidArgument))
	}

	id := s.router.Colocate(params.UserID)
	home := s.repos[s.router.Shard(id)]

	walletType, err := home.GetActiveTypeByCurrency(ctx, currency)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletTypeNotFound{}) {
			return nil, s.createFailed(ReasonUnsupportedCurrency, err)
		}
		return nil, s.createFailed(ReasonPersistence, err)
	}

	exists, err := home.ExistsForUserAndType(ctx, params.UserID, walletType.ID)
	if err != nil {
		return nil, s.createFailed(ReasonPersistence, err)
	}
	if exists {
		return nil, s.createFailed(ReasonAlreadyExists, wallet.ErrWalletAlreadyExists{UserID: params.UserID, Currency: currency})
	}

	w, err := wallet.NewWallet(id, params.UserID, walletType, params.Name, params.InitialBalance)
	if err != nil {
		return nil, s.createFailed(ReasonInvalidRequest, err)
	}

	if err := home.Create(ctx, w); err != nil {
		if errors.Is(err, wallet.ErrWalletAlreadyExists{}) {
			return nil, s.createFailed(ReasonAlreadyExists, err)
		}
		return nil, s.createFailed(ReasonPersistence, err)
	}

	s.metrics.WalletsCreated.WithLabelValues(currency).Inc()
	s.logger.Info("Wallet created",
		"wallet_id", w.ID.String(),
		"user_id", w.UserID.String(),
		"currency", currency,
		"shard", s.router.Name(s.router.Shard(id)),
	)
	return w, nil
}

func (s *WalletServiceImpl) createFailed(reason string, err error) error {
	s.metrics.WalletCreateErrors.WithLabelValues(reason).Inc()
	if reason == ReasonPersistence {
		s.logger.Error("Failed to create wallet", "error", err)
	} else {
		s.logger.Warn("Wallet creation rejected", "reason", reason, "error", err)
	}
	return err
}

// GetWallet returns an active wallet. The system wallet reports the fees
// collected on every shard.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	if id == s.systemWalletID {
		return s.systemWallet(ctx)
	}

	if w := s.cached(ctx, id); w != nil {
		s.metrics.WalletReads.WithLabelValues(ReadStatusOK).Inc()
		return w, nil
	}

	w, err := s.repos[s.router.Shard(id)].GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.metrics.WalletReads.WithLabelValues(ReadStatusNotFound).Inc()
			return nil, err
		}
		s.metrics.WalletReads.WithLabelValues(ReadStatusError).Inc()
		return nil, err
	}
	if !w.IsActive() {
		s.metrics.WalletReads.WithLabelValues(ReadStatusNotFound).Inc()
		return nil, wallet.ErrWalletNotFound{WalletID: id}
	}

	if err := s.cache.Set(ctx, w); err != nil {
		s.logger.Warn("Failed to cache wallet", "wallet_id", id.String(), "error", err)
	}
	s.metrics.WalletReads.WithLabelValues(ReadStatusOK).Inc()
	return w, nil
}

// cached returns the cached wallet or nil. Cache failures fall back to the shard.
func (s *WalletServiceImpl) cached(ctx context.Context, id uuid.UUID) *wallet.Wallet {
	w, err := s.cache.Get(ctx, id)
	switch {
	case err != nil:
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("Wallet cache lookup failed", "wallet_id", id.String(), "error", err)
		return nil
	case w == nil || !w.IsActive():
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	default:
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return w
	}
}

func (s *WalletServiceImpl) systemWallet(ctx context.Context) (*wallet.Wallet, error) {
	var (
		aggregate *wallet.Wallet
		total     = decimal.Zero
	)
	for i, repo := range s.repos {
		w, err := repo.GetByID(ctx, s.systemWalletID)
		if err != nil {
			s.metrics.WalletReads.WithLabelValues(ReadStatusError).Inc()
			return nil, fmt.Errorf("failed to read system wallet on %s: %w", s.router.Name(i), err)
		}
		total = total.Add(w.Balance)
		if aggregate == nil {
			aggregate = w
		}
	}
	aggregate.Balance = total
	s.metrics.WalletReads.WithLabelValues(ReadStatusSystem).Inc()
	return aggregate, nil
}

// GetWalletHistory pages through the audit trail of a wallet, newest first.
func (s *WalletServiceImpl) GetWalletHistory(ctx context.Context, id uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error) {
	if page < 1 || perPage < 1 {
		return nil, 0, fmt.Errorf("page and per_page must be positive: %w", shared.ErrInvalidArgument)
	}
	if _, err := s.repos[s.router.Shard(id)].GetByID(ctx, id); err != nil {
		return nil, 0, err
	}

	total, err := s.auditRepo.CountByWalletID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	entries, err := s.auditRepo.GetByWalletID(ctx, id, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
