package main

import (
	"log"
	"time"

	config "github.com/anjiri1684/edu_commerce/configs"
	"github.com/anjiri1684/edu_commerce/cache"
	"github.com/anjiri1684/edu_commerce/database"
	"github.com/anjiri1684/edu_commerce/jobs"
	"github.com/anjiri1684/edu_commerce/notifications"
	"github.com/anjiri1684/edu_commerce/payments"
	"github.com/anjiri1684/edu_commerce/routes"
	"github.com/anjiri1684/edu_commerce/services"
	"github.com/anjiri1684/edu_commerce/websocket"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedAdmin()
	notifications.InitEmailService()

	dedup := cache.NewMemoryCache()
	if addr := config.Config("REDIS_ADDR"); addr != "" {
		dedup = cache.NewRedisCache(addr)
		log.Printf("✅ Webhook dedup cache using redis at %s", addr)
	}

	coord := services.InitCoordinator(database.DB, payments.NewRegistryFromConfig(),
		services.WithDedupCache(dedup),
		services.WithExpiry(
			time.Duration(config.ConfigInt("PAYMENT_EXPIRY_MINUTES", 30))*time.Minute,
			time.Duration(config.ConfigInt("BANK_TRANSFER_EXPIRY_HOURS", 72))*time.Hour,
		),
		services.WithBankDetails(services.BankDetails{
			BankName:      config.Config("BANK_NAME"),
			AccountName:   config.Config("BANK_ACCOUNT_NAME"),
			AccountNumber: config.Config("BANK_ACCOUNT_NUMBER"),
		}),
	)

	go websocket.Default.Run()
	coord.Subscribe(websocket.Default.PaymentListener())
	coord.Subscribe(notifications.PaymentListener(database.DB, notifications.SendEmail))

	c := cron.New()
	if err := jobs.Schedule(c, coord, config.ConfigDefault("EXPIRY_SWEEP_CRON", "*/5 * * * *"), notifications.SendEmail); err != nil {
		log.Fatalf("🔥 Could not schedule payment jobs: %v", err)
	}
	c.Start()
	defer c.Stop()
	log.Println("✅ Payment expiry and reminder jobs scheduled successfully.")

	app := routes.NewApp()

	port := config.ConfigDefault("PORT", "8080")
	log.Printf("✅ Server is running on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
