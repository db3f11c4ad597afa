package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrCourseNotFound  = fiber.NewError(fiber.StatusNotFound, "Course not found or inactive")
	ErrProductNotFound = fiber.NewError(fiber.StatusNotFound, "Product not found or inactive")
	ErrPaymentNotFound = fiber.NewError(fiber.StatusNotFound, "Payment not found")
	ErrOrderNotFound   = fiber.NewError(fiber.StatusNotFound, "Order not found")
	ErrCardNotFound    = fiber.NewError(fiber.StatusNotFound, "Invalid prepaid card code")

	ErrCardNotActive         = fiber.NewError(fiber.StatusBadRequest, "Prepaid card is not active")
	ErrCardExpired           = fiber.NewError(fiber.StatusBadRequest, "Prepaid card has expired")
	ErrInsufficientCardValue = fiber.NewError(fiber.StatusBadRequest, "Prepaid card value is insufficient for this payment")
	ErrCardCurrencyMismatch  = fiber.NewError(fiber.StatusBadRequest, "Prepaid card currency does not match the course currency")
	ErrCardAlreadyUsed       = fiber.NewError(fiber.StatusBadRequest, "Used prepaid cards cannot be modified")

	ErrCapacityExceeded        = fiber.NewError(fiber.StatusBadRequest, "This course is full")
	ErrInsufficientStock       = fiber.NewError(fiber.StatusBadRequest, "Insufficient stock")
	ErrDuplicateEnrollment     = fiber.NewError(fiber.StatusBadRequest, "You are already enrolled in this course")
	ErrPaymentInProgress       = fiber.NewError(fiber.StatusBadRequest, "A payment for this purchase is already in progress")
	ErrPaymentAlreadyProcessed = fiber.NewError(fiber.StatusBadRequest, "Payment has already been processed")
	ErrInvalidPaymentMethod    = fiber.NewError(fiber.StatusBadRequest, "Unsupported payment method")
	ErrInvalidPhoneNumber      = fiber.NewError(fiber.StatusBadRequest, "A valid mobile money number is required (+235XXXXXXXX)")
	ErrEmptyCart               = fiber.NewError(fiber.StatusBadRequest, "At least one item is required")
	ErrInvalidQuantity         = fiber.NewError(fiber.StatusBadRequest, "Quantity must be at least 1")
	ErrInvalidItemType         = fiber.NewError(fiber.StatusBadRequest, "Item type must be course or product")
	ErrCurrencyMismatch        = fiber.NewError(fiber.StatusBadRequest, "All items must be priced in the same currency")
	ErrOrderNotPayable         = fiber.NewError(fiber.StatusBadRequest, "Order cannot be paid in its current state")
	ErrNotBankTransfer         = fiber.NewError(fiber.StatusBadRequest, "Only bank transfer payments can be confirmed manually")
	ErrRefundNotAllowed        = fiber.NewError(fiber.StatusBadRequest, "Refund is not allowed for this payment")
	ErrInvalidTransition       = fiber.NewError(fiber.StatusBadRequest, "Status transition not allowed")

	ErrInvalidWebhookSignature = fiber.NewError(fiber.StatusUnauthorized, "Invalid webhook signature")
	ErrInvalidWebhookPayload   = fiber.NewError(fiber.StatusBadRequest, "Invalid webhook payload")
	ErrUnknownProvider         = fiber.NewError(fiber.StatusNotFound, "Unknown payment provider")
	ErrForbidden               = fiber.NewError(fiber.StatusForbidden, "You do not have access to this resource")
	ErrProviderUnavailable     = fiber.NewError(fiber.StatusBadGateway, "Payment could not be initiated, please try again.")
)

// IsBusinessError reports whether err carries an HTTP status meant for the caller.
func IsBusinessError(err error) bool {
	var fe *fiber.Error
	return errors.As(err, &fe)
}
