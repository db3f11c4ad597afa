package payments

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type airtelDialect struct{}

func NewAirtelClient(cfg GatewayConfig) *GatewayClient {
	return newGatewayClient(cfg, airtelDialect{})
}

func (airtelDialect) name() string            { return "airtel" }
func (airtelDialect) tokenPath() string       { return "/auth/oauth2/token" }
func (airtelDialect) signatureHeader() string { return "X-Signature" }

type airtelCollectRequest struct {
	Reference  string `json:"reference"`
	Subscriber struct {
		Country  string `json:"country"`
		Currency string `json:"currency"`
		Msisdn   string `json:"msisdn"`
	} `json:"subscriber"`
	Transaction struct {
		Amount   string `json:"amount"`
		Country  string `json:"country"`
		Currency string `json:"currency"`
		ID       string `json:"id"`
	} `json:"transaction"`
}

type airtelEnvelope struct {
	Data struct {
		Transaction struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			Message       string `json:"message"`
			AirtelMoneyID string `json:"airtel_money_id"`
		} `json:"transaction"`
	} `json:"data"`
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Success bool   `json:"success"`
	} `json:"status"`
}

type airtelCallback struct {
	Transaction struct {
		ID            string `json:"id"`
		Message       string `json:"message"`
		StatusCode    string `json:"status_code"`
		AirtelMoneyID string `json:"airtel_money_id"`
	} `json:"transaction"`
}

func (airtelDialect) collectRequest(cfg GatewayConfig, req CollectionRequest) (string, interface{}, map[string]string) {
	var body airtelCollectRequest
	body.Reference = firstNonEmpty(req.Description, req.TransactionID)
	body.Subscriber.Country = cfg.Country
	body.Subscriber.Currency = cfg.Currency
	body.Subscriber.Msisdn = LocalNumber(req.PhoneNumber)
	body.Transaction.Amount = req.Amount.StringFixed(0)
	body.Transaction.Country = cfg.Country
	body.Transaction.Currency = req.Currency
	body.Transaction.ID = req.TransactionID

	headers := map[string]string{"X-Country": cfg.Country, "X-Currency": cfg.Currency}
	return "/merchant/v1/payments/", body, headers
}

func (airtelDialect) parseCollect(body []byte) (*CollectionResponse, error) {
	var env airtelEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal airtel collection response: %w", err)
	}
	if !env.Status.Success {
		return nil, fmt.Errorf("airtel collection rejected: %s", env.Status.Message)
	}
	return &CollectionResponse{
		TransactionReference: env.Data.Transaction.ID,
		Status:               StatusPending,
		Message:              env.Status.Message,
	}, nil
}

func (airtelDialect) statusPath(reference string) string {
	return "/standard/v1/payments/" + url.PathEscape(reference)
}

func (airtelDialect) parseStatus(body []byte) (*StatusResponse, error) {
	var env airtelEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal airtel status response: %w", err)
	}
	return &StatusResponse{
		Status:  airtelStatus(env.Data.Transaction.Status),
		Message: firstNonEmpty(env.Data.Transaction.Message, env.Status.Message),
	}, nil
}

func (airtelDialect) parseWebhook(body []byte) (*WebhookEvent, error) {
	var cb airtelCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("failed to unmarshal airtel callback: %w", err)
	}
	if cb.Transaction.ID == "" {
		return nil, fmt.Errorf("airtel callback missing transaction id")
	}
	return &WebhookEvent{
		TransactionReference: cb.Transaction.ID,
		TransactionID:        cb.Transaction.ID,
		Status:               airtelStatus(cb.Transaction.StatusCode),
		Message:              cb.Transaction.Message,
	}, nil
}

// airtelStatus maps TS/TF/TA/TIP codes.
func airtelStatus(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "TS", "SUCCESS":
		return StatusCompleted
	case "TF", "TE", "FAILED":
		return StatusFailed
	case "TA", "TIP":
		return StatusProcessing
	default:
		return StatusPending
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
