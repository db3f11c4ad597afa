package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type simTxn struct {
	status    string
	createdAt time.Time
}

// Simulator stands in for a gateway when no credentials are configured.
// Collections settle as completed once SettleAfter has elapsed, unless a
// status was forced with Resolve. SettleAfter <= 0 keeps them pending forever.
type Simulator struct {
	ProviderName  string
	WebhookSecret string
	SettleAfter   time.Duration
	Now           func() time.Time

	mu   sync.Mutex
	txns map[string]*simTxn
}

func NewSimulator(name, webhookSecret string, settleAfter time.Duration) *Simulator {
	return &Simulator{
		ProviderName:  name,
		WebhookSecret: webhookSecret,
		SettleAfter:   settleAfter,
		Now:           time.Now,
		txns:          make(map[string]*simTxn),
	}
}

func (s *Simulator) Name() string { return s.ProviderName }

func (s *Simulator) SignatureHeader() string { return "X-Signature" }

func (s *Simulator) CreatePayment(ctx context.Context, req CollectionRequest) (*CollectionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref := "SIM-" + s.ProviderName + "-" + req.TransactionID

	s.mu.Lock()
	s.txns[ref] = &simTxn{status: StatusPending, createdAt: s.Now()}
	s.mu.Unlock()

	return &CollectionResponse{
		TransactionReference: ref,
		Status:               StatusPending,
		Message:              "Simulated collection request sent to " + req.PhoneNumber,
	}, nil
}

func (s *Simulator) CheckStatus(ctx context.Context, reference string) (*StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[reference]
	if !ok {
		return nil, fmt.Errorf("simulated transaction %s not found", reference)
	}
	if txn.status == StatusPending && s.SettleAfter > 0 && s.Now().Sub(txn.createdAt) >= s.SettleAfter {
		txn.status = StatusCompleted
	}
	return &StatusResponse{Status: txn.status, Message: "simulated"}, nil
}

// Resolve forces the outcome the next CheckStatus will report.
func (s *Simulator) Resolve(reference, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn, ok := s.txns[reference]; ok {
		txn.status = status
		return
	}
	s.txns[reference] = &simTxn{status: status, createdAt: s.Now()}
}

func (s *Simulator) ValidateWebhook(rawBody []byte, signature string) error {
	return VerifySignature(s.WebhookSecret, rawBody, signature)
}

type simCallback struct {
	Reference     string `json:"reference"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

func (s *Simulator) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var cb simCallback
	if err := json.Unmarshal(rawBody, &cb); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulated callback: %w", err)
	}
	if cb.Reference == "" && cb.TransactionID == "" {
		return nil, fmt.Errorf("simulated callback missing transaction identifiers")
	}
	return &WebhookEvent{
		TransactionReference: cb.Reference,
		TransactionID:        cb.TransactionID,
		Status:               moovStatus(cb.Status),
		Message:              cb.Message,
	}, nil
}
