package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessagePublisher writes a pre-encoded message to the named topic
type MessagePublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// DeadLetterPublisher parks messages that can never be applied
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, sourceTopic, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
