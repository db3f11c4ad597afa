package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	CardActive   = "active"
	CardUsed     = "used"
	CardExpired  = "expired"
	CardDisabled = "disabled"
)

// PrepaidCard is a single-use bearer credential. Code is stored upper-case.
type PrepaidCard struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Code      string          `gorm:"size:32;not null;unique" json:"code"`
	Value     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"value"`
	Currency  string          `gorm:"size:3;not null;default:'XAF'" json:"currency"`
	Status    string          `gorm:"size:20;not null;default:'active';index" json:"status"`
	ExpiresAt *time.Time      `json:"expires_at"`
	BatchRef  string          `gorm:"size:64;index" json:"batch_ref"`
	CreatedBy *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	UsedBy    *uuid.UUID      `gorm:"type:uuid" json:"used_by"`
	UsedAt    *time.Time      `json:"used_at"`
	PaymentID *uuid.UUID      `gorm:"type:uuid" json:"payment_id"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *PrepaidCard) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (p *PrepaidCard) ExpiredAt(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}
