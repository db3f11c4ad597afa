package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
	OrderRefunded   = "refunded"

	OrderUnpaid        = "unpaid"
	OrderPaid          = "paid"
	OrderPaymentFailed = "failed"
	OrderPaymentRefund = "refunded"
)

type Order struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	OrderNumber     string          `gorm:"size:32;not null;unique" json:"order_number"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Status          string          `gorm:"size:20;not null;default:'pending'" json:"status"`
	Subtotal        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Total           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	ShippingAddress string          `gorm:"type:text" json:"shipping_address"`
	// StockReserved is set once the order holds stock, either from creation or
	// from settlement. Settlement skips reserved orders; cancellation and refund
	// give the held units back.
	StockReserved bool `gorm:"not null;default:false" json:"stock_reserved"`

	PaymentStatus string     `gorm:"size:20;not null;default:'unpaid'" json:"payment_status"`
	PaymentMethod string     `gorm:"size:30" json:"payment_method"`
	PaymentID     *uuid.UUID `gorm:"type:uuid" json:"payment_id"`
	PaidAt        *time.Time `json:"paid_at"`

	Items []OrderItem `gorm:"foreignkey:OrderID" json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem snapshots the product price at purchase time.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Subtotal  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	// StockTaken is how many units this line currently holds out of Product.Stock.
	StockTaken int `gorm:"not null;default:0" json:"-"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}
