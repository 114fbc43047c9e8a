package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wallet-ledger/internal/domain/shared"
)

// EventType names what an outbox row asks the processor to publish
type EventType string

const (
	EventTypeDepositRequested    EventType = "deposit.requested"
	EventTypeWithdrawalRequested EventType = "withdrawal.requested"
	EventTypeStatusChanged       EventType = "transaction.status_changed"
)

// Message stores an event in the same unit of work as the state change it describes
type Message struct {
	ID            int64               `json:"id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	WalletID      uuid.UUID           `json:"wallet_id"`
	EventType     EventType           `json:"event_type"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewMessage encodes payload as JSON into a PENDING message.
func NewMessage(eventType EventType, transactionID, walletID uuid.UUID, payload any) (*Message, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		TransactionID: transactionID,
		WalletID:      walletID,
		EventType:     eventType,
		Payload:       encoded,
		Status:        shared.OutboxStatusPending,
		Attempts:      0,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// NewStatusChangedMessage records a persisted status change for the audit trail.
func NewStatusChangedMessage(event shared.StatusChangedEvent) (*Message, error) {
	return NewMessage(EventTypeStatusChanged, event.TransactionID, event.WalletID, event)
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// StatusChanged decodes a transaction.status_changed payload
func (m *Message) StatusChanged() (*shared.StatusChangedEvent, error) {
	var event shared.StatusChangedEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
