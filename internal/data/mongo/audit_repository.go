package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wallet-ledger/internal/domain/audit"
)

const (
	// AuditCollectionName is the name of the audit trail collection in MongoDB
	AuditCollectionName = "audit_entries"
)

// AuditRepository implements the audit.Repository interface for MongoDB
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique (transaction_id, status) index that makes
// projection idempotent, plus the wallet history indexes.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(AuditCollectionName)

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("transaction_status_unique"),
		},
		{
			Keys:    bson.D{{Key: "wallet_id", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("wallet_history"),
		},
		{
			Keys:    bson.D{{Key: "target_wallet_id", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("target_wallet_history").SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}

// Create stores an audit entry. A second entry for the same transaction and
// status returns ErrDuplicateEntry.
func (r *AuditRepository) Create(ctx context.Context, entry *audit.Entry) error {
	collection := r.db.Collection(AuditCollectionName)

	if _, err := collection.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return audit.ErrDuplicateEntry{TransactionID: entry.TransactionID, Status: entry.Status}
		}
		r.logger.Error("Failed to create audit entry",
			"transaction_id", entry.TransactionID.String(),
			"status", string(entry.Status),
			"error", err)
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// GetByTransactionID returns the status history of one transaction, oldest first
func (r *AuditRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*audit.Entry, error) {
	collection := r.db.Collection(AuditCollectionName)

	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})
	cursor, err := collection.Find(ctx, bson.M{"transaction_id": transactionID}, opts)
	if err != nil {
		r.logger.Error("Failed to get audit entries",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*audit.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}
	return entries, nil
}

func walletFilter(walletID uuid.UUID) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"wallet_id": walletID},
		bson.M{"target_wallet_id": walletID},
	}}
}

// GetByWalletID retrieves paginated entries where the wallet is source or target,
// newest first.
func (r *AuditRepository) GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*audit.Entry, error) {
	collection := r.db.Collection(AuditCollectionName)

	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, walletFilter(walletID), opts)
	if err != nil {
		r.logger.Error("Failed to get wallet audit entries",
			"wallet_id", walletID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get wallet audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*audit.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode wallet audit entries",
			"wallet_id", walletID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode wallet audit entries: %w", err)
	}

	return entries, nil
}

// CountByWalletID counts the entries GetByWalletID pages over
func (r *AuditRepository) CountByWalletID(ctx context.Context, walletID uuid.UUID) (int64, error) {
	collection := r.db.Collection(AuditCollectionName)

	count, err := collection.CountDocuments(ctx, walletFilter(walletID))
	if err != nil {
		r.logger.Error("Failed to count wallet audit entries",
			"wallet_id", walletID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count wallet audit entries: %w", err)
	}

	return count, nil
}

// IsDuplicate reports whether err is an ErrDuplicateEntry.
func IsDuplicate(err error) bool {
	return errors.Is(err, audit.ErrDuplicateEntry{})
}
