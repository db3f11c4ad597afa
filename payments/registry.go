package payments

import (
	"log"
	"time"

	config "github.com/anjiri1684/edu_commerce/configs"
	"github.com/anjiri1684/edu_commerce/models"
)

// NewRegistryFromConfig wires Airtel and Moov gateways, falling back to the
// simulator for any provider whose credentials are absent.
func NewRegistryFromConfig() *Registry {
	r := NewRegistry()
	country := config.ConfigDefault("PAYMENT_COUNTRY", "TD")
	currency := config.ConfigDefault("PAYMENT_CURRENCY", "XAF")
	ratePerSecond := float64(config.ConfigInt("PROVIDER_RATE_LIMIT", 5))
	webhookBase := config.Config("WEBHOOK_BASE_URL")

	r.Register(models.MethodAirtelMoney, newProvider("airtel", GatewayConfig{
		BaseURL:       config.ConfigDefault("AIRTEL_API_BASE_URL", "https://openapi.airtel.africa"),
		ClientID:      config.Config("AIRTEL_CLIENT_ID"),
		ClientSecret:  config.Config("AIRTEL_CLIENT_SECRET"),
		WebhookSecret: config.Config("AIRTEL_WEBHOOK_SECRET"),
		Country:       country,
		Currency:      currency,
		CallbackURL:   webhookBase + "/api/v1/payments/webhook/airtel",
		RatePerSecond: ratePerSecond,
	}, NewAirtelClient))

	r.Register(models.MethodMoovMoney, newProvider("moov", GatewayConfig{
		BaseURL:       config.Config("MOOV_API_BASE_URL"),
		ClientID:      config.Config("MOOV_CLIENT_ID"),
		ClientSecret:  config.Config("MOOV_CLIENT_SECRET"),
		WebhookSecret: config.Config("MOOV_WEBHOOK_SECRET"),
		Country:       country,
		Currency:      currency,
		CallbackURL:   webhookBase + "/api/v1/payments/webhook/moov",
		RatePerSecond: ratePerSecond,
	}, NewMoovClient))

	return r
}

func newProvider(name string, cfg GatewayConfig, build func(GatewayConfig) *GatewayClient) Provider {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.BaseURL == "" {
		log.Printf("⚠️ %s credentials not configured, using payment simulator.", name)
		return NewSimulator(name, cfg.WebhookSecret, config.ConfigDuration("SIMULATOR_SETTLE_AFTER", 20*time.Second))
	}
	log.Printf("✅ %s gateway configured.", name)
	return build(cfg)
}
