package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/payments"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome is what the provider, an admin or the prepaid path reported.
type Outcome struct {
	Success               bool
	ProviderTransactionID string
	FailureReason         string
	// Strict aborts on capacity, stock or card conflicts. Without it money has
	// already been captured, so conflicts are flagged for refund instead.
	Strict bool
}

var openStatuses = []string{models.PaymentPending, models.PaymentProcessing}

// claimPayment is the compare-and-set that makes settlement happen once.
func claimPayment(tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	res := tx.Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (c *Coordinator) markProcessing(db *gorm.DB, id uuid.UUID) error {
	return db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentPending).
		Update("status", models.PaymentProcessing).Error
}

// Settle finalizes a pending payment and everything it pays for in one
// transaction. A payment that is already terminal yields
// ErrPaymentAlreadyProcessed and nothing changes.
func (c *Coordinator) Settle(ctx context.Context, paymentID uuid.UUID, outcome Outcome) (*models.Payment, error) {
	now := c.now()
	var previous string
	var warnings []string

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.First(&p, "id = ?", paymentID).Error; err != nil {
			return notFound(err, ErrPaymentNotFound)
		}
		if p.Terminal() {
			return ErrPaymentAlreadyProcessed
		}
		previous = p.Status

		if outcome.Success {
			w, err := c.completeInTx(tx, &p, outcome, now)
			warnings = w
			return err
		}
		return c.failInTx(tx, &p, models.PaymentFailed, firstNonBlank(outcome.FailureReason, "payment failed"))
	})
	if err != nil {
		return nil, err
	}

	fresh, err := c.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if outcome.Success {
		log.Printf("✅ Payment %s completed", fresh.TransactionID)
	} else {
		log.Printf("⚠️ Payment %s failed: %s", fresh.TransactionID, outcome.FailureReason)
	}
	c.notify(Notice{Payment: *fresh, Previous: previous, Warnings: warnings})
	return fresh, nil
}

// settleQuietly treats losing the settlement race as success and returns the
// payment as the winner left it.
func (c *Coordinator) settleQuietly(ctx context.Context, id uuid.UUID, outcome Outcome) (*models.Payment, error) {
	p, err := c.Settle(ctx, id, outcome)
	if errors.Is(err, ErrPaymentAlreadyProcessed) {
		return c.loadPayment(ctx, id)
	}
	return p, err
}

func (c *Coordinator) completeInTx(tx *gorm.DB, p *models.Payment, outcome Outcome, now time.Time) ([]string, error) {
	updates := map[string]interface{}{
		"status":  models.PaymentCompleted,
		"paid_at": now,
	}
	if outcome.ProviderTransactionID != "" && p.ProviderTransactionID == nil {
		updates["provider_transaction_id"] = outcome.ProviderTransactionID
	}
	claimed, err := claimPayment(tx, p.ID, updates)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrPaymentAlreadyProcessed
	}
	p.Status = models.PaymentCompleted
	p.PaidAt = &now
	return c.applySuccess(tx, p, outcome.Strict, now)
}

func (c *Coordinator) applySuccess(tx *gorm.DB, p *models.Payment, strict bool, now time.Time) ([]string, error) {
	if p.PrepaidCardID != nil {
		if err := consumeCard(tx, *p.PrepaidCardID, p.UserID, p.ID, now); err != nil {
			return nil, err
		}
	}

	var items []models.PaymentItem
	if err := tx.Where("payment_id = ?", p.ID).Find(&items).Error; err != nil {
		return nil, err
	}

	var warnings []string
	for _, item := range items {
		if item.ItemType != models.ItemTypeCourse {
			continue
		}
		warning, err := c.enrollForPayment(tx, p, item, strict, now)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	if p.OrderID != nil {
		var order models.Order
		if err := tx.Preload("Items").First(&order, "id = ?", *p.OrderID).Error; err != nil {
			return nil, err
		}
		w, err := fulfilOrder(tx, &order, strict)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)

		updates := map[string]interface{}{
			"payment_status": models.OrderPaid,
			"payment_id":     p.ID,
			"paid_at":        now,
		}
		if order.Status == models.OrderPending {
			updates["status"] = models.OrderProcessing
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	if len(warnings) > 0 {
		reason := strings.Join(warnings, "; ")
		log.Printf("⚠️ Payment %s captured but could not be fully applied: %s", p.TransactionID, reason)
		if err := tx.Model(&models.Payment{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"refund_status": models.RefundRequested,
			"refund_reason": reason,
		}).Error; err != nil {
			return nil, err
		}
	}
	return warnings, nil
}

// enrollForPayment moves the user's enrollment in one paid course to enrolled
// and takes a seat. It returns a warning instead of an error in lenient mode.
func (c *Coordinator) enrollForPayment(tx *gorm.DB, p *models.Payment, item models.PaymentItem, strict bool, now time.Time) (string, error) {
	var enrollment models.Enrollment
	err := tx.Where("user_id = ? AND course_id = ?", p.UserID, item.ItemID).First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		enrollment = models.Enrollment{UserID: p.UserID, CourseID: item.ItemID, Status: models.EnrollmentPending}
		if err := tx.Create(&enrollment).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	if enrollment.Blocking() {
		if strict {
			return "", ErrDuplicateEnrollment
		}
		return fmt.Sprintf("already enrolled in %s", item.Name), nil
	}

	ok, err := reserveSeat(tx, item.ItemID)
	if err != nil {
		return "", err
	}
	if !ok {
		if strict {
			return "", ErrCapacityExceeded
		}
		if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).Updates(map[string]interface{}{
			"status":     models.EnrollmentCancelled,
			"payment_id": p.ID,
		}).Error; err != nil {
			return "", err
		}
		return fmt.Sprintf("%s was full at settlement", item.Name), nil
	}

	return "", tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).Updates(map[string]interface{}{
		"status":      models.EnrollmentEnrolled,
		"payment_id":  p.ID,
		"enrolled_at": now,
		"seat_held":   true,
	}).Error
}

// fulfilOrder takes stock for an order that did not reserve it up front.
func fulfilOrder(tx *gorm.DB, order *models.Order, strict bool) ([]string, error) {
	if order.StockReserved {
		return nil, nil
	}
	var warnings []string
	for i := range order.Items {
		item := &order.Items[i]
		taken := item.Quantity
		if strict {
			ok, err := reserveStock(tx, item.ProductID, item.Quantity)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrInsufficientStock
			}
		} else {
			var err error
			taken, err = clampStock(tx, item.ProductID, item.Quantity)
			if err != nil {
				return nil, err
			}
			if taken < item.Quantity {
				warnings = append(warnings, fmt.Sprintf("only %d of %d %s in stock", taken, item.Quantity, item.Name))
			}
		}
		if err := tx.Model(&models.OrderItem{}).Where("id = ?", item.ID).UpdateColumn("stock_taken", taken).Error; err != nil {
			return nil, err
		}
		item.StockTaken = taken
	}
	order.StockReserved = true
	return warnings, tx.Model(&models.Order{}).Where("id = ?", order.ID).UpdateColumn("stock_reserved", true).Error
}

// failInTx moves an open payment to status (failed or cancelled) and lets go
// of whatever it was holding.
func (c *Coordinator) failInTx(tx *gorm.DB, p *models.Payment, status, reason string) error {
	claimed, err := claimPayment(tx, p.ID, map[string]interface{}{
		"status":         status,
		"failure_reason": reason,
	})
	if err != nil {
		return err
	}
	if !claimed {
		return ErrPaymentAlreadyProcessed
	}
	p.Status = status
	p.FailureReason = &reason
	return releaseClaims(tx, p)
}

func releaseClaims(tx *gorm.DB, p *models.Payment) error {
	if err := tx.Model(&models.Enrollment{}).
		Where("payment_id = ? AND status = ?", p.ID, models.EnrollmentPending).
		Update("status", models.EnrollmentCancelled).Error; err != nil {
		return err
	}
	if p.OrderID == nil {
		return nil
	}

	var order models.Order
	if err := tx.Preload("Items").First(&order, "id = ?", *p.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if order.Status != models.OrderPending || order.PaymentStatus == models.OrderPaid {
		return nil
	}
	if err := releaseOrderStock(tx, &order); err != nil {
		return err
	}
	return tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderPending).
		Updates(map[string]interface{}{
			"status":         models.OrderCancelled,
			"payment_status": models.OrderPaymentFailed,
		}).Error
}

// ConfirmBankTransfer is the manual settlement an admin performs once the
// transfer shows up on the statement.
func (c *Coordinator) ConfirmBankTransfer(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	p, err := c.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.PaymentMethod != models.MethodBankTransfer {
		return nil, ErrNotBankTransfer
	}
	if p.Terminal() {
		return nil, ErrPaymentAlreadyProcessed
	}
	return c.Settle(ctx, p.ID, Outcome{Success: true})
}

// CheckStatus returns the payment, polling the gateway first when a mobile
// money payment is still open.
func (c *Coordinator) CheckStatus(ctx context.Context, paymentID, userID uuid.UUID, isAdmin bool) (*models.Payment, error) {
	p, err := c.ownedPayment(ctx, paymentID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	if p.Terminal() {
		return p, nil
	}

	switch c.providerVerdict(ctx, p) {
	case payments.StatusCompleted:
		return c.settleQuietly(ctx, p.ID, Outcome{Success: true, ProviderTransactionID: derefString(p.ProviderTransactionID)})
	case payments.StatusFailed:
		return c.settleQuietly(ctx, p.ID, Outcome{FailureReason: "rejected by provider"})
	case payments.StatusProcessing:
		if err := c.markProcessing(c.db.WithContext(ctx), p.ID); err != nil {
			return nil, err
		}
	}

	if !c.now().Before(p.ExpiresAt) {
		return c.settleQuietly(ctx, p.ID, Outcome{FailureReason: "expired"})
	}
	return c.loadPayment(ctx, p.ID)
}

// providerVerdict polls the gateway for an open mobile money payment. It
// returns "" when there is nothing to poll or the gateway could not answer.
func (c *Coordinator) providerVerdict(ctx context.Context, p *models.Payment) string {
	if !p.IsMobileMoney() || p.ProviderTransactionID == nil {
		return ""
	}
	provider, err := c.providers.ForMethod(p.PaymentMethod)
	if err != nil {
		log.Printf("⚠️ No provider for payment %s: %v", p.TransactionID, err)
		return ""
	}
	status, err := provider.CheckStatus(ctx, *p.ProviderTransactionID)
	if err != nil {
		log.Printf("⚠️ Status check for payment %s failed: %v", p.TransactionID, err)
		return ""
	}
	return status.Status
}

// CancelPayment abandons an open payment on the payer's request. A mobile
// money payment the gateway already collected is settled instead.
func (c *Coordinator) CancelPayment(ctx context.Context, paymentID, userID uuid.UUID, isAdmin bool) (*models.Payment, error) {
	p, err := c.ownedPayment(ctx, paymentID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	if p.Terminal() {
		return nil, ErrPaymentAlreadyProcessed
	}
	if c.providerVerdict(ctx, p) == payments.StatusCompleted {
		if _, err := c.settleQuietly(ctx, p.ID, Outcome{Success: true, ProviderTransactionID: derefString(p.ProviderTransactionID)}); err != nil {
			return nil, err
		}
		return nil, ErrPaymentAlreadyProcessed
	}

	previous := p.Status
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return c.failInTx(tx, p, models.PaymentCancelled, "cancelled by user")
	})
	if err != nil {
		return nil, err
	}
	fresh, err := c.loadPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	log.Printf("Payment %s cancelled by user %s", fresh.TransactionID, userID)
	c.notify(Notice{Payment: *fresh, Previous: previous})
	return fresh, nil
}

type ExpiryReport struct {
	Checked int `json:"checked"`
	Expired int `json:"expired"`
	Settled int `json:"settled"`
}

// ExpireStalePayments fails open payments past their expiry. Mobile money
// payments get one last gateway poll so a late collection is not lost.
func (c *Coordinator) ExpireStalePayments(ctx context.Context, limit int) (ExpiryReport, error) {
	var report ExpiryReport
	if limit <= 0 {
		limit = 100
	}

	var stale []models.Payment
	if err := c.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", openStatuses, c.now()).
		Order("expires_at asc").
		Limit(limit).
		Find(&stale).Error; err != nil {
		return report, err
	}

	for i := range stale {
		p := &stale[i]
		report.Checked++

		if c.providerVerdict(ctx, p) == payments.StatusCompleted {
			_, err := c.Settle(ctx, p.ID, Outcome{Success: true, ProviderTransactionID: derefString(p.ProviderTransactionID)})
			if err == nil {
				report.Settled++
			} else if !errors.Is(err, ErrPaymentAlreadyProcessed) {
				log.Printf("🔥 Could not settle late payment %s: %v", p.TransactionID, err)
			}
			continue
		}

		_, err := c.Settle(ctx, p.ID, Outcome{FailureReason: "expired"})
		if err == nil {
			report.Expired++
		} else if !errors.Is(err, ErrPaymentAlreadyProcessed) {
			log.Printf("🔥 Could not expire payment %s: %v", p.TransactionID, err)
		}
	}
	return report, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
