package routes

import (
	"time"

	config "github.com/anjiri1684/edu_commerce/configs"
	"github.com/anjiri1684/edu_commerce/handlers"
	"github.com/anjiri1684/edu_commerce/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// checkoutLimiter throttles payment creation per caller.
func checkoutLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ConfigInt("CHECKOUT_RATE_LIMIT", 10),
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, _, err := middleware.CurrentUser(c); err == nil {
				return userID.String()
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many payment attempts, please wait a minute."})
		},
	})
}

func PaymentRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	// Provider callbacks authenticate with their signature, not a user token.
	api.Post("/payments/webhook/:provider", handlers.HandleProviderWebhook)

	payments := api.Group("/payments", middleware.Protected())
	payments.Post("/create-intent", checkoutLimiter(), handlers.CreatePaymentIntent)
	payments.Post("/create-mobile-money", checkoutLimiter(), handlers.CreateMobileMoneyPayment)
	payments.Post("/confirm", middleware.AdminRequired(), handlers.ConfirmPayment)
	payments.Get("/me", handlers.GetMyPayments)
	payments.Get("/:paymentId/status", handlers.GetPaymentStatus)
	payments.Post("/:paymentId/cancel", handlers.CancelPayment)
	payments.Post("/:paymentId/request-refund", handlers.RequestRefund)
}
