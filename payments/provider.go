package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Provider-reported statuses, normalised across gateways.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)

type CollectionRequest struct {
	Amount        decimal.Decimal
	Currency      string
	PhoneNumber   string
	TransactionID string
	Description   string
	Metadata      map[string]string
}

type CollectionResponse struct {
	TransactionReference string
	Status               string
	Message              string
}

type StatusResponse struct {
	Status  string
	Message string
}

type WebhookEvent struct {
	TransactionReference string
	TransactionID        string
	Status               string
	Message              string
}

// Provider is a mobile-money gateway. Callers must always be prepared for
// StatusPending: no gateway confirms a collection synchronously.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, req CollectionRequest) (*CollectionResponse, error)
	CheckStatus(ctx context.Context, reference string) (*StatusResponse, error)
	ValidateWebhook(rawBody []byte, signature string) error
	ParseWebhook(rawBody []byte) (*WebhookEvent, error)
	SignatureHeader() string
}

type Registry struct {
	byName   map[string]Provider
	byMethod map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Provider{}, byMethod: map[string]Provider{}}
}

func (r *Registry) Register(method string, p Provider) {
	r.byName[p.Name()] = p
	r.byMethod[method] = p
}

func (r *Registry) ForMethod(method string) (Provider, error) {
	if p, ok := r.byMethod[method]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: method %s", ErrUnknownProvider, method)
}

func (r *Registry) ByName(name string) (Provider, error) {
	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}
