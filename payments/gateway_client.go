package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type GatewayConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	Country       string
	Currency      string
	CallbackURL   string
	// RatePerSecond throttles outbound calls; zero disables throttling.
	RatePerSecond float64
	HTTPClient    *http.Client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// dialect holds what differs between gateways: paths, payload shapes and
// status vocabularies.
type dialect interface {
	name() string
	tokenPath() string
	collectRequest(cfg GatewayConfig, req CollectionRequest) (path string, body interface{}, headers map[string]string)
	parseCollect(body []byte) (*CollectionResponse, error)
	statusPath(reference string) string
	parseStatus(body []byte) (*StatusResponse, error)
	parseWebhook(body []byte) (*WebhookEvent, error)
	signatureHeader() string
}

// GatewayClient talks to a mobile-money collection API with an OAuth
// client-credentials token cached until shortly before expiry.
type GatewayClient struct {
	cfg     GatewayConfig
	dialect dialect
	limiter *rate.Limiter

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func newGatewayClient(cfg GatewayConfig, d dialect) *GatewayClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GatewayClient{cfg: cfg, dialect: d, limiter: limiter}
}

func (g *GatewayClient) Name() string { return g.dialect.name() }

func (g *GatewayClient) SignatureHeader() string { return g.dialect.signatureHeader() }

func (g *GatewayClient) accessToken(ctx context.Context) (string, error) {
	g.tokenMu.RLock()
	if g.token != "" && time.Now().Before(g.tokenExpiry) {
		token := g.token
		g.tokenMu.RUnlock()
		return token, nil
	}
	g.tokenMu.RUnlock()

	g.tokenMu.Lock()
	defer g.tokenMu.Unlock()

	if g.token != "" && time.Now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	log.Printf("Fetching new %s access token...", g.Name())
	payload := map[string]string{
		"client_id":     g.cfg.ClientID,
		"client_secret": g.cfg.ClientSecret,
		"grant_type":    "client_credentials",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+g.dialect.tokenPath(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s token API returned non-200 status: %s", g.Name(), resp.Status)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}

	// Refresh a minute early so a token never expires mid-request.
	ttl := time.Duration(tokenResp.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	g.token = tokenResp.AccessToken
	g.tokenExpiry = time.Now().Add(ttl)
	log.Printf("Successfully fetched and cached %s access token.", g.Name())

	return g.token, nil
}

func (g *GatewayClient) do(ctx context.Context, method, path string, payload interface{}, headers map[string]string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s access token: %w", g.Name(), err)
	}

	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", g.Name(), err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", g.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response body: %w", g.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("%s API error: %s", g.Name(), string(respBody))
		return nil, fmt.Errorf("%s API returned non-2xx status: %d", g.Name(), resp.StatusCode)
	}
	return respBody, nil
}

func (g *GatewayClient) CreatePayment(ctx context.Context, req CollectionRequest) (*CollectionResponse, error) {
	path, payload, headers := g.dialect.collectRequest(g.cfg, req)
	body, err := g.do(ctx, http.MethodPost, path, payload, headers)
	if err != nil {
		return nil, err
	}
	out, err := g.dialect.parseCollect(body)
	if err != nil {
		return nil, err
	}
	if out.TransactionReference == "" {
		out.TransactionReference = req.TransactionID
	}
	log.Printf("✅ %s collection initiated for transaction %s", g.Name(), req.TransactionID)
	return out, nil
}

func (g *GatewayClient) CheckStatus(ctx context.Context, reference string) (*StatusResponse, error) {
	body, err := g.do(ctx, http.MethodGet, g.dialect.statusPath(reference), nil, g.countryHeaders())
	if err != nil {
		return nil, err
	}
	return g.dialect.parseStatus(body)
}

func (g *GatewayClient) ValidateWebhook(rawBody []byte, signature string) error {
	return VerifySignature(g.cfg.WebhookSecret, rawBody, signature)
}

func (g *GatewayClient) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	return g.dialect.parseWebhook(rawBody)
}

func (g *GatewayClient) countryHeaders() map[string]string {
	return map[string]string{"X-Country": g.cfg.Country, "X-Currency": g.cfg.Currency}
}
