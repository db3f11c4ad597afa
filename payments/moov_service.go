package payments

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type moovDialect struct{}

func NewMoovClient(cfg GatewayConfig) *GatewayClient {
	return newGatewayClient(cfg, moovDialect{})
}

func (moovDialect) name() string            { return "moov" }
func (moovDialect) tokenPath() string       { return "/oauth/token" }
func (moovDialect) signatureHeader() string { return "X-Moov-Signature" }

type moovCollectRequest struct {
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Msisdn      string            `json:"msisdn"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type moovTransaction struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

func (moovDialect) collectRequest(cfg GatewayConfig, req CollectionRequest) (string, interface{}, map[string]string) {
	body := moovCollectRequest{
		Amount:      req.Amount.StringFixed(0),
		Currency:    req.Currency,
		Msisdn:      req.PhoneNumber,
		Reference:   req.TransactionID,
		CallbackURL: cfg.CallbackURL,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	return "/api/v1/collections", body, nil
}

func (moovDialect) parseCollect(body []byte) (*CollectionResponse, error) {
	var tx moovTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal moov collection response: %w", err)
	}
	status := moovStatus(tx.Status)
	if status == StatusFailed {
		return nil, fmt.Errorf("moov collection rejected: %s", tx.Message)
	}
	return &CollectionResponse{TransactionReference: tx.TransactionID, Status: status, Message: tx.Message}, nil
}

func (moovDialect) statusPath(reference string) string {
	return "/api/v1/collections/" + url.PathEscape(reference)
}

func (moovDialect) parseStatus(body []byte) (*StatusResponse, error) {
	var tx moovTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal moov status response: %w", err)
	}
	return &StatusResponse{Status: moovStatus(tx.Status), Message: tx.Message}, nil
}

func (moovDialect) parseWebhook(body []byte) (*WebhookEvent, error) {
	var tx moovTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal moov callback: %w", err)
	}
	if tx.TransactionID == "" && tx.Reference == "" {
		return nil, fmt.Errorf("moov callback missing transaction identifiers")
	}
	return &WebhookEvent{
		TransactionReference: tx.TransactionID,
		TransactionID:        tx.Reference,
		Status:               moovStatus(tx.Status),
		Message:              tx.Message,
	}, nil
}

func moovStatus(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESS", "SUCCESSFUL", "COMPLETED":
		return StatusCompleted
	case "FAILED", "REJECTED", "CANCELLED", "EXPIRED":
		return StatusFailed
	case "PROCESSING":
		return StatusProcessing
	default:
		return StatusPending
	}
}
