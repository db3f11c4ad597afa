package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventReceived  = "received"
	EventProcessed = "processed"
	EventIgnored   = "ignored"
	EventRejected  = "rejected"
)

// PaymentEvent is the raw log of one provider callback delivery.
type PaymentEvent struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Provider              string         `gorm:"size:50;not null;index" json:"provider"`
	ProviderTransactionID *string        `gorm:"size:255;index" json:"provider_transaction_id"`
	PaymentID             *uuid.UUID     `gorm:"type:uuid;index" json:"payment_id"`
	ReportedStatus        string         `gorm:"size:30" json:"reported_status"`
	Signature             *string        `gorm:"size:255" json:"-"`
	Payload               datatypes.JSON `json:"payload"`
	Status                string         `gorm:"size:20;not null;default:'received'" json:"status"`
	Error                 *string        `gorm:"type:text" json:"error,omitempty"`
	ReceivedAt            time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt           *time.Time     `json:"processed_at"`
}

func (e *PaymentEvent) BeforeCreate(tx *gorm.DB) error {
	assignID(&e.ID)
	return nil
}
