package handlers

import (
	"time"

	"github.com/anjiri1684/edu_commerce/database"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateIntentRequest struct {
	CourseID        string `json:"courseId" validate:"required,uuid"`
	PaymentMethod   string `json:"paymentMethod" validate:"required,oneof=airtel_money moov_money bank_transfer prepaid_card"`
	Provider        string `json:"provider"`
	PrepaidCardCode string `json:"prepaidCardCode" validate:"required_if=PaymentMethod prepaid_card"`
	PhoneNumber     string `json:"phoneNumber" validate:"omitempty,td_phone"`
}

type CartItemRequest struct {
	Type     string `json:"type" validate:"required,oneof=course product"`
	ItemID   string `json:"itemId" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

type CreateMobileMoneyRequest struct {
	Items           []CartItemRequest `json:"items" validate:"dive"`
	PaymentMethod   string            `json:"paymentMethod" validate:"required,oneof=airtel_money moov_money"`
	PhoneNumber     string            `json:"phoneNumber" validate:"required,td_phone"`
	OrderID         string            `json:"orderId" validate:"omitempty,uuid"`
	ShippingAddress string            `json:"shippingAddress"`
}

type ConfirmPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required,uuid"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"required,min=5"`
}

type PaymentResponse struct {
	PaymentID     uuid.UUID                  `json:"paymentId"`
	EnrollmentID  *uuid.UUID                 `json:"enrollmentId,omitempty"`
	OrderID       *uuid.UUID                 `json:"orderId,omitempty"`
	Amount        decimal.Decimal            `json:"amount"`
	Currency      string                     `json:"currency"`
	TransactionID string                     `json:"transactionId"`
	PaymentMethod string                     `json:"paymentMethod"`
	Status        string                     `json:"status"`
	ExpiresAt     time.Time                  `json:"expiresAt"`
	PaidAt        *time.Time                 `json:"paidAt,omitempty"`
	FailureReason *string                    `json:"failureReason,omitempty"`
	Instructions  *services.BankInstructions `json:"instructions,omitempty"`
	Message       string                     `json:"message,omitempty"`
	Warnings      []string                   `json:"warnings,omitempty"`
}

func paymentResponse(p *models.Payment) PaymentResponse {
	return PaymentResponse{
		PaymentID:     p.ID,
		EnrollmentID:  p.EnrollmentID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		TransactionID: p.TransactionID,
		PaymentMethod: p.PaymentMethod,
		Status:        p.Status,
		ExpiresAt:     p.ExpiresAt,
		PaidAt:        p.PaidAt,
		FailureReason: p.FailureReason,
	}
}

func resultResponse(res *services.PaymentResult) PaymentResponse {
	resp := paymentResponse(res.Payment)
	if res.Enrollment != nil {
		resp.EnrollmentID = &res.Enrollment.ID
	}
	if res.Order != nil {
		resp.OrderID = &res.Order.ID
	}
	resp.Instructions = res.Instructions
	resp.Message = res.ProviderMessage
	resp.Warnings = res.Warnings
	return resp
}

// CreatePaymentIntent buys one course with any supported method.
func CreatePaymentIntent(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req CreateIntentRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	res, err := services.Payments.CreateCoursePayment(c.UserContext(), services.CoursePaymentInput{
		UserID:          userID,
		CourseID:        uuid.MustParse(req.CourseID),
		PaymentMethod:   req.PaymentMethod,
		Provider:        req.Provider,
		PrepaidCardCode: req.PrepaidCardCode,
		PhoneNumber:     req.PhoneNumber,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resultResponse(res))
}

// CreateMobileMoneyPayment pays a cart of courses and products, or an existing
// order, with Airtel Money or Moov Money.
func CreateMobileMoneyPayment(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req CreateMobileMoneyRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	in := services.CartPaymentInput{
		UserID:          userID,
		PaymentMethod:   req.PaymentMethod,
		PhoneNumber:     req.PhoneNumber,
		ShippingAddress: req.ShippingAddress,
	}
	if req.OrderID != "" {
		orderID := uuid.MustParse(req.OrderID)
		in.OrderID = &orderID
	}
	for _, item := range req.Items {
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		in.Items = append(in.Items, services.CartItemInput{
			Type:     item.Type,
			ItemID:   uuid.MustParse(item.ItemID),
			Quantity: qty,
		})
	}

	res, err := services.Payments.CreateCartPayment(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resultResponse(res))
}

// ConfirmPayment settles a bank transfer once an admin has seen the funds.
func ConfirmPayment(c *fiber.Ctx) error {
	var req ConfirmPaymentRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	payment, err := services.Payments.ConfirmBankTransfer(c.UserContext(), uuid.MustParse(req.PaymentID))
	if err != nil {
		return err
	}
	return c.JSON(paymentResponse(payment))
}

func GetPaymentStatus(c *fiber.Ctx) error {
	userID, isAdmin, err := caller(c)
	if err != nil {
		return err
	}
	paymentID, err := paramID(c, "paymentId")
	if err != nil {
		return err
	}
	payment, err := services.Payments.CheckStatus(c.UserContext(), paymentID, userID, isAdmin)
	if err != nil {
		return err
	}
	return c.JSON(paymentResponse(payment))
}

func CancelPayment(c *fiber.Ctx) error {
	userID, isAdmin, err := caller(c)
	if err != nil {
		return err
	}
	paymentID, err := paramID(c, "paymentId")
	if err != nil {
		return err
	}
	payment, err := services.Payments.CancelPayment(c.UserContext(), paymentID, userID, isAdmin)
	if err != nil {
		return err
	}
	return c.JSON(paymentResponse(payment))
}

func RequestRefund(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	paymentID, err := paramID(c, "paymentId")
	if err != nil {
		return err
	}
	var req RefundRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if _, err := services.Payments.RequestRefund(c.UserContext(), paymentID, userID, req.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Refund request submitted successfully"})
}

func GetMyPayments(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	query := database.DB.Model(&models.Payment{}).Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var payments []models.Payment
	if err := query.Preload("Items").Order("created_at desc").
		Offset((page - 1) * limit).Limit(limit).Find(&payments).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": payments, "meta": pageMeta(total, page, limit)})
}

// HandleProviderWebhook accepts a signed callback from the gateway named in the
// path. Anything short of a bad signature or payload is acknowledged with 200.
func HandleProviderWebhook(c *fiber.Ctx) error {
	provider := c.Params("provider")
	header, err := services.Payments.SignatureHeader(provider)
	if err != nil {
		return err
	}

	body := append([]byte(nil), c.Body()...)
	res, err := services.Payments.HandleWebhook(c.UserContext(), provider, body, c.Get(header))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true, "duplicate": res.Duplicate})
}
