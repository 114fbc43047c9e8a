package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wallet-ledger/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoDB is the audit trail store. Status events are acknowledged by a
// majority before the outbox row that produced them is marked processed.
type MongoDB struct {
	logger   *slog.Logger
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoDB dials the audit database and waits for the primary to answer.
func NewMongoDB(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, auditClientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB primary: %w", err)
	}

	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database, "app_name", cfg.Application.Name)
	return &MongoDB{
		logger:   logger,
		client:   client,
		database: client.Database(cfg.MongoDB.Database),
	}, nil
}

func auditClientOptions(cfg *config.Config) *options.ClientOptions {
	mc := cfg.MongoDB
	return options.Client().
		ApplyURI(mc.URI).
		SetAppName(cfg.Application.Name).
		SetMaxPoolSize(mc.MaxPoolSize).
		SetMinPoolSize(mc.MinPoolSize).
		SetMaxConnIdleTime(mc.MaxConnIdleTime).
		SetTimeout(mc.Timeout).
		SetWriteConcern(writeconcern.Majority()).
		SetReadPreference(readpref.Primary())
}

// Database is handed to the audit repository.
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Close disconnects, waiting for in-flight audit writes up to the deadline of ctx.
func (m *MongoDB) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	m.logger.Info("Closed MongoDB connection", "database", m.database.Name())
	return nil
}
