package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/anjiri1684/edu_commerce/cache"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/payments"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultPaymentExpiry      = 30 * time.Minute
	defaultBankTransferExpiry = 72 * time.Hour
	webhookDedupTTL           = 24 * time.Hour
)

// BankDetails is shown to the payer of a bank transfer.
type BankDetails struct {
	BankName      string
	AccountName   string
	AccountNumber string
}

// Notice describes a payment that changed state. Listeners run after the
// transaction committed and must not block.
type Notice struct {
	Payment  models.Payment
	Previous string
	Warnings []string
}

type Listener func(Notice)

// Coordinator advances payments together with the enrollments, orders, cards
// and capacity counters they pay for.
type Coordinator struct {
	db        *gorm.DB
	providers *payments.Registry
	dedup     cache.Cache
	now       func() time.Time

	paymentExpiry time.Duration
	bankExpiry    time.Duration
	bank          BankDetails
	listeners     []Listener
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithDedupCache(dc cache.Cache) Option {
	return func(c *Coordinator) { c.dedup = dc }
}

func WithExpiry(payment, bankTransfer time.Duration) Option {
	return func(c *Coordinator) {
		if payment > 0 {
			c.paymentExpiry = payment
		}
		if bankTransfer > 0 {
			c.bankExpiry = bankTransfer
		}
	}
}

func WithBankDetails(b BankDetails) Option {
	return func(c *Coordinator) { c.bank = b }
}

func WithListener(l Listener) Option {
	return func(c *Coordinator) { c.listeners = append(c.listeners, l) }
}

func NewCoordinator(db *gorm.DB, providers *payments.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:            db,
		providers:     providers,
		now:           func() time.Time { return time.Now().UTC() },
		paymentExpiry: defaultPaymentExpiry,
		bankExpiry:    defaultBankTransferExpiry,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.providers == nil {
		c.providers = payments.NewRegistry()
	}
	return c
}

// Payments is the process-wide coordinator used by handlers and jobs.
var Payments *Coordinator

func InitCoordinator(db *gorm.DB, providers *payments.Registry, opts ...Option) *Coordinator {
	Payments = NewCoordinator(db, providers, opts...)
	log.Println("✅ Payment coordinator initialized")
	return Payments
}

// Subscribe adds a listener after construction, e.g. once the websocket hub is running.
func (c *Coordinator) Subscribe(l Listener) {
	c.listeners = append(c.listeners, l)
}

func (c *Coordinator) DB() *gorm.DB { return c.db }

func (c *Coordinator) Now() time.Time { return c.now() }

func (c *Coordinator) expiryFor(method string, now time.Time) time.Time {
	if method == models.MethodBankTransfer {
		return now.Add(c.bankExpiry)
	}
	return now.Add(c.paymentExpiry)
}

func (c *Coordinator) notify(n Notice) {
	for _, l := range c.listeners {
		l(n)
	}
}

// loadPayment re-reads the payment so callers never act on a stale copy.
func (c *Coordinator) loadPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := c.db.WithContext(ctx).Preload("Items").First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (c *Coordinator) ownedPayment(ctx context.Context, id, userID uuid.UUID, isAdmin bool) (*models.Payment, error) {
	p, err := c.loadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && p.UserID != userID {
		return nil, ErrForbidden
	}
	return p, nil
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
