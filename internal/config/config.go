// Package config provides configuration structures and validation for the wallet ledger.
// It handles environment-based configuration for the HTTP surface, the Postgres shards,
// the settlement bus, the audit store, the wallet cache and the ledger engine itself.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration with settings for all components.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Ledger      LedgerConfig
	Metrics     MetricsConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration for the settlement bus.
// Outbound topics carry settlement requests to the payment rail, inbound
// topics carry its outcomes back.
type KafkaConfig struct {
	Brokers                  string
	DepositRequestedTopic    string
	WithdrawalRequestedTopic string
	DepositCompletedTopic    string
	WithdrawalFailedTopic    string
	WithdrawalCompletedTopic string
	NumPartitions            int // Number of partitions for topics
	ReplicationFactor        int // Replication factor for topics
	ConsumerGroup            string
	MinBytes                 int
	MaxBytes                 int
	MaxWait                  time.Duration
	StartOffset              int64
	DLQTopic                 string // Topic for Dead Letter Queue
}

// SettlementTopics returns the inbound topics the settlement processor subscribes to.
func (k KafkaConfig) SettlementTopics() []string {
	return []string{k.DepositCompletedTopic, k.WithdrawalFailedTopic, k.WithdrawalCompletedTopic}
}

// PostgresConfig contains PostgreSQL configuration.
// ShardURLs holds one connection string per shard, index i serving shard ds{i}.
type PostgresConfig struct {
	URL             string        // Single-shard connection string, used when ShardURLs is empty
	ShardURLs       []string      // One connection string per shard
	MaxConns        int32         // Maximum number of open connections per shard
	MinConns        int32         // Maximum number of idle connections per shard
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains the wallet read cache configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	WalletTTL time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int           // Maximum number of retry attempts for outbox messages
	Retention        time.Duration // Processed messages older than this are purged
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// LedgerConfig contains the ledger engine settings
type LedgerConfig struct {
	ShardCount        int
	SystemWalletID    uuid.UUID
	DepositFeeRate    decimal.Decimal
	WithdrawalFeeRate decimal.Decimal
	TransferFeeRate   decimal.Decimal
	LockTimeout       time.Duration // Bounded wait for a row lock before Contended
}

// MetricsConfig contains the prometheus endpoint settings
type MetricsConfig struct {
	Port int
	Path string
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.DepositRequestedTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DEPOSIT_REQUESTED_TOPIC is required")
	}
	if c.Kafka.WithdrawalRequestedTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_WITHDRAWAL_REQUESTED_TOPIC is required")
	}
	if c.Kafka.DepositCompletedTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DEPOSIT_COMPLETED_TOPIC is required")
	}
	if c.Kafka.WithdrawalFailedTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_WITHDRAWAL_FAILED_TOPIC is required")
	}
	if c.Kafka.WithdrawalCompletedTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_WITHDRAWAL_COMPLETED_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if len(c.Postgres.ShardURLs) == 0 {
		validationErrors = append(validationErrors, "POSTGRES_SHARD_URLS or POSTGRES_URL is required")
	}
	for i, url := range c.Postgres.ShardURLs {
		if strings.TrimSpace(url) == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("POSTGRES_SHARD_URLS entry %d is empty", i))
		}
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		validationErrors = append(validationErrors, "REDIS_ADDR is required")
	}
	if c.Redis.DB < 0 {
		validationErrors = append(validationErrors, "REDIS_DB must not be negative")
	}
	if c.Redis.WalletTTL <= 0 {
		validationErrors = append(validationErrors, "REDIS_WALLET_TTL must be greater than 0")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}
	if c.Outbox.Retention <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_RETENTION must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Ledger config
	if c.Ledger.ShardCount <= 0 {
		validationErrors = append(validationErrors, "LEDGER_SHARD_COUNT must be greater than 0")
	} else if len(c.Postgres.ShardURLs) > 0 && c.Ledger.ShardCount != len(c.Postgres.ShardURLs) {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"LEDGER_SHARD_COUNT (%d) must match the number of POSTGRES_SHARD_URLS (%d)",
			c.Ledger.ShardCount, len(c.Postgres.ShardURLs)))
	}
	if c.Ledger.SystemWalletID == uuid.Nil {
		validationErrors = append(validationErrors, "LEDGER_SYSTEM_WALLET_ID must be a non-nil UUID")
	}
	if c.Ledger.DepositFeeRate.IsNegative() {
		validationErrors = append(validationErrors, "LEDGER_FEE_RATE_DEPOSIT must not be negative")
	}
	if c.Ledger.WithdrawalFeeRate.IsNegative() {
		validationErrors = append(validationErrors, "LEDGER_FEE_RATE_WITHDRAWAL must not be negative")
	}
	if c.Ledger.TransferFeeRate.IsNegative() {
		validationErrors = append(validationErrors, "LEDGER_FEE_RATE_TRANSFER must not be negative")
	}
	if c.Ledger.LockTimeout <= 0 {
		validationErrors = append(validationErrors, "LEDGER_LOCK_TIMEOUT must be greater than 0")
	}

	// Validate Metrics config
	if c.Metrics.Port <= 0 {
		validationErrors = append(validationErrors, "METRICS_PORT must be greater than 0")
	}
	if c.Metrics.Path == "" {
		validationErrors = append(validationErrors, "METRICS_PATH is required")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
