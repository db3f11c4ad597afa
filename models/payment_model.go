package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"
	PaymentCancelled  = "cancelled"
	PaymentRefunded   = "refunded"
)

const (
	MethodAirtelMoney  = "airtel_money"
	MethodMoovMoney    = "moov_money"
	MethodBankTransfer = "bank_transfer"
	MethodPrepaidCard  = "prepaid_card"
)

const (
	ItemTypeCourse  = "course"
	ItemTypeProduct = "product"
)

const (
	RefundRequested = "requested"
	RefundApproved  = "approved"
	RefundRejected  = "rejected"
)

type Payment struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID                uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	EnrollmentID          *uuid.UUID      `gorm:"type:uuid;index" json:"enrollment_id"`
	OrderID               *uuid.UUID      `gorm:"type:uuid;index" json:"order_id"`
	CourseID              *uuid.UUID      `gorm:"type:uuid" json:"course_id"`
	PrepaidCardID         *uuid.UUID      `gorm:"type:uuid" json:"-"`
	TransactionID         string          `gorm:"size:64;not null;unique" json:"transaction_id"`
	ProviderTransactionID *string         `gorm:"size:255;unique" json:"provider_transaction_id"`
	PaymentMethod         string          `gorm:"size:30;not null" json:"payment_method"`
	PaymentProvider       string          `gorm:"size:50;not null" json:"payment_provider"`
	PhoneNumber           *string         `gorm:"size:20" json:"phone_number,omitempty"`
	Amount                decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency              string          `gorm:"size:3;not null" json:"currency"`
	Status                string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	FailureReason         *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	ExpiresAt             time.Time       `gorm:"not null;index" json:"expires_at"`
	PaidAt                *time.Time      `json:"paid_at"`
	RefundStatus          *string         `gorm:"size:20" json:"refund_status,omitempty"`
	RefundReason          *string         `gorm:"type:text" json:"refund_reason,omitempty"`
	Metadata              datatypes.JSON  `json:"metadata,omitempty"`

	Items []PaymentItem `gorm:"foreignkey:PaymentID" json:"items,omitempty"`
	User  *User         `gorm:"foreignkey:UserID" json:"user,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

func (p *Payment) Terminal() bool { return IsTerminalPaymentStatus(p.Status) }

func (p *Payment) IsMobileMoney() bool {
	return p.PaymentMethod == MethodAirtelMoney || p.PaymentMethod == MethodMoovMoney
}

type PaymentItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	PaymentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"payment_id"`
	ItemType  string          `gorm:"size:20;not null" json:"type"`
	ItemID    uuid.UUID       `gorm:"type:uuid;not null" json:"item_id"`
	Name      string          `gorm:"size:255" json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity  int             `gorm:"not null;default:1" json:"quantity"`
	Subtotal  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
}

func (i *PaymentItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}
