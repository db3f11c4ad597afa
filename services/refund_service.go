package services

import (
	"context"
	"errors"
	"log"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestRefund queues a completed payment for admin review.
func (c *Coordinator) RequestRefund(ctx context.Context, paymentID, userID uuid.UUID, reason string) (*models.Payment, error) {
	p, err := c.ownedPayment(ctx, paymentID, userID, false)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentCompleted {
		return nil, ErrRefundNotAllowed
	}

	res := c.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ? AND (refund_status IS NULL OR refund_status = ?)",
			p.ID, models.PaymentCompleted, models.RefundRejected).
		Updates(map[string]interface{}{
			"refund_status": models.RefundRequested,
			"refund_reason": reason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrRefundNotAllowed
	}
	return c.loadPayment(ctx, p.ID)
}

func (c *Coordinator) ListRefundRequests(ctx context.Context) ([]models.Payment, error) {
	var requests []models.Payment
	err := c.db.WithContext(ctx).
		Preload("User").Preload("Items").
		Where("refund_status = ?", models.RefundRequested).
		Order("updated_at asc").
		Find(&requests).Error
	return requests, err
}

// ProcessRefund approves or rejects a queued request. Approval moves the
// payment to refunded, gives back held seats and unshipped stock, and leaves a
// prepaid card used.
func (c *Coordinator) ProcessRefund(ctx context.Context, paymentID uuid.UUID, approve bool) (*models.Payment, error) {
	var previous string
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.First(&p, "id = ?", paymentID).Error; err != nil {
			return notFound(err, ErrPaymentNotFound)
		}
		if p.RefundStatus == nil || *p.RefundStatus != models.RefundRequested {
			return ErrRefundNotAllowed
		}
		previous = p.Status

		if !approve {
			return tx.Model(&models.Payment{}).
				Where("id = ? AND refund_status = ?", p.ID, models.RefundRequested).
				Update("refund_status", models.RefundRejected).Error
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", p.ID, models.PaymentCompleted).
			Updates(map[string]interface{}{
				"status":        models.PaymentRefunded,
				"refund_status": models.RefundApproved,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefundNotAllowed
		}
		if err := refundEnrollments(tx, p.ID); err != nil {
			return err
		}
		if p.OrderID != nil {
			return refundOrder(tx, *p.OrderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fresh, err := c.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if approve {
		log.Printf("✅ Refund approved for payment %s", fresh.TransactionID)
		c.notify(Notice{Payment: *fresh, Previous: previous})
	} else {
		log.Printf("Refund rejected for payment %s", fresh.TransactionID)
	}
	return fresh, nil
}

func refundEnrollments(tx *gorm.DB, paymentID uuid.UUID) error {
	var enrollments []models.Enrollment
	if err := tx.Where("payment_id = ? AND status IN ?", paymentID,
		[]string{models.EnrollmentEnrolled, models.EnrollmentCompleted}).Find(&enrollments).Error; err != nil {
		return err
	}
	for _, e := range enrollments {
		if e.SeatHeld {
			if _, err := releaseSeat(tx, e.CourseID); err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Enrollment{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
			"status":    models.EnrollmentRefunded,
			"seat_held": false,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func refundOrder(tx *gorm.DB, orderID uuid.UUID) error {
	var order models.Order
	if err := tx.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if order.Status != models.OrderShipped && order.Status != models.OrderCompleted {
		if err := releaseOrderStock(tx, &order); err != nil {
			return err
		}
	}
	return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
		"status":         models.OrderRefunded,
		"payment_status": models.OrderPaymentRefund,
	}).Error
}
