package routes

import (
	"github.com/anjiri1684/edu_commerce/handlers"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func RealtimeRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Use("/ws/payments", handlers.AuthorizeWsUpgrade)
	api.Get("/ws/payments", websocket.New(handlers.ServePaymentUpdates))
}
