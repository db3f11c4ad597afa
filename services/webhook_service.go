package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/anjiri1684/edu_commerce/cache"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/payments"
	"gorm.io/datatypes"
)

type WebhookResult struct {
	Event     *models.PaymentEvent
	Duplicate bool
}

// HandleWebhook verifies, records and applies one provider callback. Callers
// answer 200 for any nil error, including callbacks for unknown or already
// settled payments, so the provider stops redelivering them.
func (c *Coordinator) HandleWebhook(ctx context.Context, providerName string, rawBody []byte, signature string) (*WebhookResult, error) {
	provider, err := c.providers.ByName(providerName)
	if err != nil {
		return nil, ErrUnknownProvider
	}

	now := c.now()
	event := &models.PaymentEvent{
		Provider:   provider.Name(),
		Payload:    rawPayload(rawBody),
		Status:     models.EventReceived,
		ReceivedAt: now,
	}
	if signature != "" {
		event.Signature = &signature
	}

	if err := provider.ValidateWebhook(rawBody, signature); err != nil {
		log.Printf("⚠️ Rejected %s webhook: %v", providerName, err)
		c.recordEvent(ctx, event, models.EventRejected, err.Error())
		return nil, ErrInvalidWebhookSignature
	}

	callback, err := provider.ParseWebhook(rawBody)
	if err != nil {
		log.Printf("⚠️ Unparseable %s webhook: %v", providerName, err)
		c.recordEvent(ctx, event, models.EventRejected, err.Error())
		return nil, ErrInvalidWebhookPayload
	}
	if callback.TransactionReference != "" {
		ref := callback.TransactionReference
		event.ProviderTransactionID = &ref
	}
	event.ReportedStatus = callback.Status

	dedupKey := cache.Key("webhook", provider.Name(), callback.TransactionReference, callback.TransactionID, callback.Status)
	if c.dedup != nil {
		fresh, err := c.dedup.SetNX(ctx, dedupKey, webhookDedupTTL)
		if err != nil {
			log.Printf("⚠️ Webhook dedup cache unavailable: %v", err)
		} else if !fresh {
			c.recordEvent(ctx, event, models.EventIgnored, "duplicate delivery")
			return &WebhookResult{Event: event, Duplicate: true}, nil
		}
	}

	payment, err := c.paymentForCallback(ctx, callback)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Printf("⚠️ %s webhook for unknown transaction %q", providerName, callback.TransactionReference)
			c.recordEvent(ctx, event, models.EventIgnored, "unknown transaction")
			return &WebhookResult{Event: event}, nil
		}
		c.forget(ctx, dedupKey)
		return nil, err
	}
	event.PaymentID = &payment.ID

	if !payment.IsMobileMoney() || payment.PaymentProvider != provider.Name() {
		log.Printf("⚠️ %s webhook for payment %s collected via %s", providerName, payment.TransactionID, payment.PaymentMethod)
		c.recordEvent(ctx, event, models.EventIgnored, "provider mismatch")
		return &WebhookResult{Event: event}, nil
	}

	switch callback.Status {
	case payments.StatusCompleted:
		_, err = c.Settle(ctx, payment.ID, Outcome{Success: true, ProviderTransactionID: callback.TransactionReference})
	case payments.StatusFailed:
		_, err = c.Settle(ctx, payment.ID, Outcome{FailureReason: firstNonBlank(callback.Message, "rejected by provider")})
	case payments.StatusProcessing:
		err = c.markProcessing(c.db.WithContext(ctx), payment.ID)
	default:
		c.recordEvent(ctx, event, models.EventIgnored, "status "+callback.Status+" needs no action")
		return &WebhookResult{Event: event}, nil
	}

	if errors.Is(err, ErrPaymentAlreadyProcessed) {
		c.recordEvent(ctx, event, models.EventIgnored, "payment already processed")
		return &WebhookResult{Event: event, Duplicate: true}, nil
	}
	if err != nil {
		c.forget(ctx, dedupKey)
		c.recordEvent(ctx, event, models.EventReceived, err.Error())
		return nil, err
	}
	c.recordEvent(ctx, event, models.EventProcessed, "")
	return &WebhookResult{Event: event}, nil
}

func (c *Coordinator) paymentForCallback(ctx context.Context, cb *payments.WebhookEvent) (*models.Payment, error) {
	db := c.db.WithContext(ctx)
	var p models.Payment
	var err error
	switch {
	case cb.TransactionReference != "" && cb.TransactionID != "":
		err = db.Where("provider_transaction_id = ? OR transaction_id = ?", cb.TransactionReference, cb.TransactionID).First(&p).Error
	case cb.TransactionReference != "":
		err = db.Where("provider_transaction_id = ?", cb.TransactionReference).First(&p).Error
	default:
		err = db.Where("transaction_id = ?", cb.TransactionID).First(&p).Error
	}
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	return &p, nil
}

// recordEvent stores the delivery log entry. Failing to log never fails the webhook.
func (c *Coordinator) recordEvent(ctx context.Context, event *models.PaymentEvent, status, detail string) {
	event.Status = status
	if detail != "" {
		event.Error = &detail
	}
	if status == models.EventProcessed || status == models.EventIgnored {
		now := c.now()
		event.ProcessedAt = &now
	}
	if err := c.db.WithContext(context.WithoutCancel(ctx)).Create(event).Error; err != nil {
		log.Printf("🔥 Failed to record %s webhook event: %v", event.Provider, err)
	}
}

func (c *Coordinator) forget(ctx context.Context, key string) {
	if c.dedup == nil {
		return
	}
	if err := c.dedup.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.Printf("⚠️ Could not clear webhook dedup key %s: %v", key, err)
	}
}

// rawPayload keeps the body as JSON; anything else is stored as a JSON string.
func rawPayload(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	quoted, _ := json.Marshal(string(body))
	return datatypes.JSON(quoted)
}

// SignatureHeader names the request header a provider signs its callbacks in.
func (c *Coordinator) SignatureHeader(providerName string) (string, error) {
	provider, err := c.providers.ByName(providerName)
	if err != nil {
		return "", ErrUnknownProvider
	}
	return provider.SignatureHeader(), nil
}
