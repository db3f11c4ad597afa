package services

import (
	"context"
	"log"
	"strings"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderLineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

type CreateOrderInput struct {
	UserID          uuid.UUID
	Items           []OrderLineInput
	ShippingAddress string
	PaymentMethod   string
}

// CreateOrder snapshots prices and reserves stock for every line. One short
// line rolls the whole order back.
func (c *Coordinator) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}
	quantities := map[uuid.UUID]int{}
	var productIDs []uuid.UUID
	for _, line := range in.Items {
		if line.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		if _, seen := quantities[line.ProductID]; !seen {
			productIDs = append(productIDs, line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}

	now := c.now()
	var order models.Order
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.OrderItem
		subtotal := decimal.Zero
		currency := ""
		for _, id := range productIDs {
			qty := quantities[id]
			var product models.Product
			if err := tx.First(&product, "id = ? AND is_active = ?", id, true).Error; err != nil {
				return notFound(err, ErrProductNotFound)
			}
			if currency == "" {
				currency = product.Currency
			} else if !strings.EqualFold(currency, product.Currency) {
				return ErrCurrencyMismatch
			}

			ok, err := reserveStock(tx, product.ID, qty)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInsufficientStock
			}

			lineTotal := product.Price.Mul(decimal.NewFromInt(int64(qty)))
			items = append(items, models.OrderItem{
				ProductID:  product.ID,
				Name:       product.Name,
				UnitPrice:  product.Price,
				Quantity:   qty,
				Subtotal:   lineTotal,
				StockTaken: qty,
			})
			subtotal = subtotal.Add(lineTotal)
		}

		orderNumber, err := utils.NewOrderNumber(now)
		if err != nil {
			return err
		}
		order = models.Order{
			OrderNumber:     orderNumber,
			UserID:          in.UserID,
			Status:          models.OrderPending,
			Subtotal:        subtotal,
			Total:           subtotal,
			Currency:        currency,
			ShippingAddress: in.ShippingAddress,
			StockReserved:   true,
			PaymentStatus:   models.OrderUnpaid,
			PaymentMethod:   in.PaymentMethod,
			Items:           items,
		}
		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Order %s created for user %s", order.OrderNumber, in.UserID)
	return &order, nil
}

func (c *Coordinator) GetOrder(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*models.Order, error) {
	var order models.Order
	if err := c.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	if !isAdmin && order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return &order, nil
}

// CancelOrder releases an unpaid order's stock. An order with a payment still
// in flight cannot be cancelled until that payment is resolved.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*models.Order, error) {
	order, err := c.GetOrder(ctx, orderID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending || order.PaymentStatus == models.OrderPaid {
		return nil, ErrInvalidTransition
	}

	now := c.now()
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if order.PaymentID != nil {
			if err := c.retireStaleAttempt(tx, *order.PaymentID, now); err != nil {
				return err
			}
		}
		var current models.Order
		if err := tx.Preload("Items").First(&current, "id = ?", order.ID).Error; err != nil {
			return err
		}
		if current.Status != models.OrderPending {
			// Retiring an expired payment already cancelled the order.
			return nil
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND payment_status <> ?", current.ID, models.OrderPending, models.OrderPaid).
			Update("status", models.OrderCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return releaseOrderStock(tx, &current)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Order %s cancelled", order.OrderNumber)
	return c.GetOrder(ctx, order.ID, userID, true)
}

var orderTransitions = map[string][]string{
	models.OrderProcessing: {models.OrderShipped, models.OrderCompleted},
	models.OrderShipped:    {models.OrderCompleted},
}

// UpdateOrderStatus moves a paid order along fulfilment.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	order, err := c.GetOrder(ctx, orderID, uuid.Nil, true)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, next := range orderTransitions[order.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}

	res := c.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}
	return c.GetOrder(ctx, order.ID, uuid.Nil, true)
}
