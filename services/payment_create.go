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
	"github.com/anjiri1684/edu_commerce/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CoursePaymentInput struct {
	UserID          uuid.UUID
	CourseID        uuid.UUID
	PaymentMethod   string
	Provider        string
	PrepaidCardCode string
	PhoneNumber     string
}

type CartItemInput struct {
	Type     string
	ItemID   uuid.UUID
	Quantity int
}

// CartPaymentInput pays either for loose Items or for an existing order.
// When OrderID is set the order's lines are charged and Items is ignored.
type CartPaymentInput struct {
	UserID          uuid.UUID
	Items           []CartItemInput
	PaymentMethod   string
	PhoneNumber     string
	OrderID         *uuid.UUID
	ShippingAddress string
}

type BankInstructions struct {
	BankName      string          `json:"bank_name"`
	AccountName   string          `json:"account_name"`
	AccountNumber string          `json:"account_number"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

type PaymentResult struct {
	Payment         *models.Payment
	Enrollment      *models.Enrollment
	Order           *models.Order
	Instructions    *BankInstructions
	ProviderMessage string
	Warnings        []string
}

func validMethod(method string) bool {
	switch method {
	case models.MethodAirtelMoney, models.MethodMoovMoney, models.MethodBankTransfer, models.MethodPrepaidCard:
		return true
	}
	return false
}

func providerName(method string) string {
	switch method {
	case models.MethodAirtelMoney:
		return "airtel"
	case models.MethodMoovMoney:
		return "moov"
	case models.MethodBankTransfer:
		return "bank"
	case models.MethodPrepaidCard:
		return "prepaid_card"
	}
	return method
}

func mobileMoney(method string) bool {
	return method == models.MethodAirtelMoney || method == models.MethodMoovMoney
}

// CreateCoursePayment buys a single course. Prepaid cards settle inside the
// same transaction that creates the enrollment and payment; every other method
// leaves the payment pending.
func (c *Coordinator) CreateCoursePayment(ctx context.Context, in CoursePaymentInput) (*PaymentResult, error) {
	if !validMethod(in.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}
	if in.Provider != "" && !strings.EqualFold(in.Provider, providerName(in.PaymentMethod)) {
		return nil, ErrInvalidPaymentMethod
	}
	db := c.db.WithContext(ctx)

	var phone string
	if mobileMoney(in.PaymentMethod) {
		normalized, err := payments.NormalizeChadNumber(in.PhoneNumber)
		if err != nil {
			return nil, ErrInvalidPhoneNumber
		}
		phone = normalized
	}

	var course models.Course
	if err := db.First(&course, "id = ? AND is_active = ?", in.CourseID, true).Error; err != nil {
		return nil, notFound(err, ErrCourseNotFound)
	}
	if !course.HasSeat() {
		return nil, ErrCapacityExceeded
	}

	// Checked again inside the transaction; this one keeps a card presented by
	// an enrolled user untouched.
	var existing models.Enrollment
	err := db.Where("user_id = ? AND course_id = ?", in.UserID, course.ID).First(&existing).Error
	if err == nil && existing.Blocking() {
		return nil, ErrDuplicateEnrollment
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := c.now()
	var card *models.PrepaidCard
	if in.PaymentMethod == models.MethodPrepaidCard {
		validated, err := ValidateCard(db, in.PrepaidCardCode, course.Price, course.Currency, now)
		if err != nil {
			return nil, err
		}
		card = validated
	}

	result := &PaymentResult{}
	var payment models.Payment
	err = db.Transaction(func(tx *gorm.DB) error {
		enrollment, err := c.prepareEnrollment(tx, in.UserID, course.ID, now)
		if err != nil {
			return err
		}

		enrollmentID := enrollment.ID
		courseID := course.ID
		payment = models.Payment{
			UserID:          in.UserID,
			EnrollmentID:    &enrollmentID,
			CourseID:        &courseID,
			TransactionID:   utils.NewTransactionID(),
			PaymentMethod:   in.PaymentMethod,
			PaymentProvider: providerName(in.PaymentMethod),
			Amount:          course.Price,
			Currency:        course.Currency,
			Status:          models.PaymentPending,
			ExpiresAt:       c.expiryFor(in.PaymentMethod, now),
			Items: []models.PaymentItem{{
				ItemType:  models.ItemTypeCourse,
				ItemID:    course.ID,
				Name:      course.Title,
				UnitPrice: course.Price,
				Quantity:  1,
				Subtotal:  course.Price,
			}},
		}
		if phone != "" {
			payment.PhoneNumber = &phone
		}
		if card != nil {
			payment.PrepaidCardID = &card.ID
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).
			Update("payment_id", payment.ID).Error; err != nil {
			return err
		}

		if card != nil {
			warnings, err := c.completeInTx(tx, &payment, Outcome{Success: true, Strict: true}, now)
			if err != nil {
				return err
			}
			result.Warnings = warnings
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case card != nil:
		log.Printf("✅ Payment %s settled with prepaid card %s", payment.TransactionID, card.ID)
		if fresh, err := c.loadPayment(ctx, payment.ID); err == nil {
			c.notify(Notice{Payment: *fresh, Previous: models.PaymentPending})
		}
	case in.PaymentMethod == models.MethodBankTransfer:
		result.Instructions = c.bankInstructions(&payment)
	default:
		msg, err := c.initiateCollection(ctx, &payment, phone, course.Title)
		if err != nil {
			return nil, err
		}
		result.ProviderMessage = msg
	}

	return c.fillResult(ctx, result, payment.ID)
}

// prepareEnrollment returns the pending enrollment this attempt will pay for,
// reusing a cancelled or refunded row for the same course.
func (c *Coordinator) prepareEnrollment(tx *gorm.DB, userID, courseID uuid.UUID, now time.Time) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := tx.Where("user_id = ? AND course_id = ?", userID, courseID).First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		enrollment = models.Enrollment{UserID: userID, CourseID: courseID, Status: models.EnrollmentPending}
		if err := tx.Create(&enrollment).Error; err != nil {
			return nil, err
		}
		return &enrollment, nil
	}
	if err != nil {
		return nil, err
	}

	if enrollment.Blocking() {
		return nil, ErrDuplicateEnrollment
	}
	if enrollment.Status == models.EnrollmentPending && enrollment.PaymentID != nil {
		if err := c.retireStaleAttempt(tx, *enrollment.PaymentID, now); err != nil {
			return nil, err
		}
	}

	res := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).Updates(map[string]interface{}{
		"status":      models.EnrollmentPending,
		"payment_id":  nil,
		"enrolled_at": nil,
		"seat_held":   false,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	enrollment.Status = models.EnrollmentPending
	enrollment.PaymentID = nil
	enrollment.EnrolledAt = nil
	return &enrollment, nil
}

// retireStaleAttempt blocks a new attempt while an earlier payment is still
// live, and fails that payment inline once it is past its expiry.
func (c *Coordinator) retireStaleAttempt(tx *gorm.DB, paymentID uuid.UUID, now time.Time) error {
	var prev models.Payment
	if err := tx.First(&prev, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if prev.Terminal() {
		return nil
	}
	if now.Before(prev.ExpiresAt) {
		return ErrPaymentInProgress
	}
	err := c.failInTx(tx, &prev, models.PaymentFailed, "expired")
	if errors.Is(err, ErrPaymentAlreadyProcessed) {
		return nil
	}
	return err
}

// CreateCartPayment charges a basket of courses and products, or an existing
// order, through mobile money.
func (c *Coordinator) CreateCartPayment(ctx context.Context, in CartPaymentInput) (*PaymentResult, error) {
	if !mobileMoney(in.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}
	phone, err := payments.NormalizeChadNumber(in.PhoneNumber)
	if err != nil {
		return nil, ErrInvalidPhoneNumber
	}

	now := c.now()
	db := c.db.WithContext(ctx)
	result := &PaymentResult{}
	var payment models.Payment
	var description string

	err = db.Transaction(func(tx *gorm.DB) error {
		var (
			order    *models.Order
			lines    []models.PaymentItem
			amount   decimal.Decimal
			currency string
			err      error
		)
		if in.OrderID != nil {
			order, err = c.payableOrder(tx, *in.OrderID, in.UserID, now)
			if err != nil {
				return err
			}
			for _, item := range order.Items {
				lines = append(lines, models.PaymentItem{
					ItemType:  models.ItemTypeProduct,
					ItemID:    item.ProductID,
					Name:      item.Name,
					UnitPrice: item.UnitPrice,
					Quantity:  item.Quantity,
					Subtotal:  item.Subtotal,
				})
			}
			amount, currency = order.Total, order.Currency
			description = "Order " + order.OrderNumber
		} else {
			lines, currency, err = c.priceCart(tx, in.UserID, in.Items, now)
			if err != nil {
				return err
			}
			for _, l := range lines {
				amount = amount.Add(l.Subtotal)
			}
			order, err = c.orderForCart(tx, in, lines, amount, currency, now)
			if err != nil {
				return err
			}
			description = cartDescription(lines)
		}

		payment = models.Payment{
			UserID:          in.UserID,
			TransactionID:   utils.NewTransactionID(),
			PaymentMethod:   in.PaymentMethod,
			PaymentProvider: providerName(in.PaymentMethod),
			PhoneNumber:     &phone,
			Amount:          amount,
			Currency:        currency,
			Status:          models.PaymentPending,
			ExpiresAt:       c.expiryFor(in.PaymentMethod, now),
			Items:           lines,
		}
		if order != nil {
			payment.OrderID = &order.ID
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		if order != nil {
			return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
				"payment_id":     payment.ID,
				"payment_method": in.PaymentMethod,
			}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg, err := c.initiateCollection(ctx, &payment, phone, description)
	if err != nil {
		return nil, err
	}
	result.ProviderMessage = msg
	return c.fillResult(ctx, result, payment.ID)
}

func (c *Coordinator) payableOrder(tx *gorm.DB, orderID, userID uuid.UUID, now time.Time) (*models.Order, error) {
	var order models.Order
	if err := tx.Preload("Items").First(&order, "id = ? AND user_id = ?", orderID, userID).Error; err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	if order.Status != models.OrderPending || order.PaymentStatus == models.OrderPaid {
		return nil, ErrOrderNotPayable
	}
	if order.PaymentID != nil {
		if err := c.retireStaleAttempt(tx, *order.PaymentID, now); err != nil {
			return nil, err
		}
		// Failing an expired attempt cancels the order it was paying for.
		if err := tx.Select("status").First(&order, "id = ?", order.ID).Error; err != nil {
			return nil, err
		}
		if order.Status != models.OrderPending {
			return nil, ErrOrderNotPayable
		}
	}
	return &order, nil
}

type cartKey struct {
	itemType string
	id       uuid.UUID
}

// priceCart merges duplicate lines, checks availability and snapshots prices.
func (c *Coordinator) priceCart(tx *gorm.DB, userID uuid.UUID, items []CartItemInput, now time.Time) ([]models.PaymentItem, string, error) {
	if len(items) == 0 {
		return nil, "", ErrEmptyCart
	}
	quantities := map[cartKey]int{}
	var order []cartKey
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, "", ErrInvalidQuantity
		}
		key := cartKey{itemType: item.Type, id: item.ItemID}
		if _, seen := quantities[key]; !seen {
			order = append(order, key)
		}
		quantities[key] += item.Quantity
	}

	var lines []models.PaymentItem
	currency := ""
	for _, key := range order {
		var line models.PaymentItem
		var itemCurrency string
		switch key.itemType {
		case models.ItemTypeCourse:
			var course models.Course
			if err := tx.First(&course, "id = ? AND is_active = ?", key.id, true).Error; err != nil {
				return nil, "", notFound(err, ErrCourseNotFound)
			}
			if !course.HasSeat() {
				return nil, "", ErrCapacityExceeded
			}
			if err := c.checkEnrollable(tx, userID, course.ID, now); err != nil {
				return nil, "", err
			}
			line = models.PaymentItem{
				ItemType: models.ItemTypeCourse, ItemID: course.ID, Name: course.Title,
				UnitPrice: course.Price, Quantity: 1, Subtotal: course.Price,
			}
			itemCurrency = course.Currency
		case models.ItemTypeProduct:
			qty := quantities[key]
			var product models.Product
			if err := tx.First(&product, "id = ? AND is_active = ?", key.id, true).Error; err != nil {
				return nil, "", notFound(err, ErrProductNotFound)
			}
			if product.Stock < qty {
				return nil, "", ErrInsufficientStock
			}
			line = models.PaymentItem{
				ItemType: models.ItemTypeProduct, ItemID: product.ID, Name: product.Name,
				UnitPrice: product.Price, Quantity: qty,
				Subtotal: product.Price.Mul(decimal.NewFromInt(int64(qty))),
			}
			itemCurrency = product.Currency
		default:
			return nil, "", ErrInvalidItemType
		}
		if currency == "" {
			currency = itemCurrency
		} else if !strings.EqualFold(currency, itemCurrency) {
			return nil, "", ErrCurrencyMismatch
		}
		lines = append(lines, line)
	}
	return lines, currency, nil
}

// checkEnrollable rejects a cart course the user already holds or is paying for.
func (c *Coordinator) checkEnrollable(tx *gorm.DB, userID, courseID uuid.UUID, now time.Time) error {
	var enrollment models.Enrollment
	err := tx.Where("user_id = ? AND course_id = ?", userID, courseID).First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if enrollment.Blocking() {
		return ErrDuplicateEnrollment
	}
	if enrollment.Status == models.EnrollmentPending && enrollment.PaymentID != nil {
		return c.retireStaleAttempt(tx, *enrollment.PaymentID, now)
	}
	return nil
}

// orderForCart records product lines as an unreserved order; stock is taken
// when the payment settles.
func (c *Coordinator) orderForCart(tx *gorm.DB, in CartPaymentInput, lines []models.PaymentItem, amount decimal.Decimal, currency string, now time.Time) (*models.Order, error) {
	var items []models.OrderItem
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.ItemType != models.ItemTypeProduct {
			continue
		}
		items = append(items, models.OrderItem{
			ProductID: l.ItemID, Name: l.Name, UnitPrice: l.UnitPrice,
			Quantity: l.Quantity, Subtotal: l.Subtotal,
		})
		subtotal = subtotal.Add(l.Subtotal)
	}
	if len(items) == 0 {
		return nil, nil
	}

	orderNumber, err := utils.NewOrderNumber(now)
	if err != nil {
		return nil, err
	}
	order := models.Order{
		OrderNumber:     orderNumber,
		UserID:          in.UserID,
		Status:          models.OrderPending,
		Subtotal:        subtotal,
		Total:           subtotal,
		Currency:        currency,
		ShippingAddress: in.ShippingAddress,
		PaymentStatus:   models.OrderUnpaid,
		PaymentMethod:   in.PaymentMethod,
		Items:           items,
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func cartDescription(lines []models.PaymentItem) string {
	if len(lines) == 1 {
		return lines[0].Name
	}
	return fmt.Sprintf("%s and %d more", lines[0].Name, len(lines)-1)
}

// initiateCollection asks the gateway to push a collection request to the
// payer's phone. A gateway error fails the already committed payment.
func (c *Coordinator) initiateCollection(ctx context.Context, p *models.Payment, phone, description string) (string, error) {
	provider, err := c.providers.ForMethod(p.PaymentMethod)
	if err == nil {
		var resp *payments.CollectionResponse
		resp, err = provider.CreatePayment(ctx, payments.CollectionRequest{
			Amount:        p.Amount,
			Currency:      p.Currency,
			PhoneNumber:   phone,
			TransactionID: p.TransactionID,
			Description:   description,
			Metadata:      map[string]string{"payment_id": p.ID.String()},
		})
		if err == nil {
			return c.recordCollection(ctx, p, resp)
		}
	}

	log.Printf("🔥 CRITICAL: collection request for payment %s failed: %v", p.TransactionID, err)
	if _, ferr := c.Settle(context.WithoutCancel(ctx), p.ID, Outcome{FailureReason: "provider initiation failed: " + err.Error()}); ferr != nil {
		log.Printf("🔥 Could not fail payment %s after provider error: %v", p.TransactionID, ferr)
	}
	return "", ErrProviderUnavailable
}

func (c *Coordinator) recordCollection(ctx context.Context, p *models.Payment, resp *payments.CollectionResponse) (string, error) {
	ref := resp.TransactionReference
	if ref != "" {
		if err := c.db.WithContext(ctx).Model(&models.Payment{}).
			Where("id = ? AND provider_transaction_id IS NULL", p.ID).
			Update("provider_transaction_id", ref).Error; err != nil {
			return "", err
		}
		p.ProviderTransactionID = &ref
	}

	switch resp.Status {
	case payments.StatusCompleted:
		_, err := c.settleQuietly(ctx, p.ID, Outcome{Success: true, ProviderTransactionID: ref})
		return resp.Message, err
	case payments.StatusFailed:
		_, err := c.settleQuietly(ctx, p.ID, Outcome{FailureReason: firstNonBlank(resp.Message, "rejected by provider")})
		if err != nil {
			return "", err
		}
		return "", ErrProviderUnavailable
	case payments.StatusProcessing:
		if err := c.markProcessing(c.db.WithContext(ctx), p.ID); err != nil {
			return "", err
		}
	}
	return resp.Message, nil
}

func (c *Coordinator) bankInstructions(p *models.Payment) *BankInstructions {
	return &BankInstructions{
		BankName:      c.bank.BankName,
		AccountName:   c.bank.AccountName,
		AccountNumber: c.bank.AccountNumber,
		Reference:     p.TransactionID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		ExpiresAt:     p.ExpiresAt,
	}
}

func (c *Coordinator) fillResult(ctx context.Context, result *PaymentResult, paymentID uuid.UUID) (*PaymentResult, error) {
	payment, err := c.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	result.Payment = payment

	db := c.db.WithContext(ctx)
	if payment.EnrollmentID != nil {
		var enrollment models.Enrollment
		if err := db.First(&enrollment, "id = ?", *payment.EnrollmentID).Error; err == nil {
			result.Enrollment = &enrollment
		}
	}
	if payment.OrderID != nil {
		var order models.Order
		if err := db.Preload("Items").First(&order, "id = ?", *payment.OrderID).Error; err == nil {
			result.Order = &order
		}
	}
	return result, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
