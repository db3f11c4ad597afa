package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Course is an enrollable item. MaxStudents <= 0 means the course has no seat limit.
type Course struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Title           string          `gorm:"size:255;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Currency        string          `gorm:"size:3;not null;default:'XAF'" json:"currency"`
	MaxStudents     int             `gorm:"not null;default:0" json:"max_students"`
	CurrentStudents int             `gorm:"not null;default:0" json:"current_students"`
	IsActive        bool            `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

func (c *Course) Limited() bool { return c.MaxStudents > 0 }

// HasSeat reports whether one more student fits.
func (c *Course) HasSeat() bool {
	return !c.Limited() || c.CurrentStudents < c.MaxStudents
}
