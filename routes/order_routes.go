package routes

import (
	"github.com/anjiri1684/edu_commerce/handlers"
	"github.com/anjiri1684/edu_commerce/middleware"
	"github.com/gofiber/fiber/v2"
)

func OrderRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	orders := api.Group("/orders", middleware.Protected())
	orders.Post("", checkoutLimiter(), handlers.CreateOrder)
	orders.Get("/me", handlers.GetMyOrders)
	orders.Get("/:orderId", handlers.GetOrder)
	orders.Post("/:orderId/cancel", handlers.CancelOrder)

	api.Get("/enrollments/me", middleware.Protected(), handlers.GetMyEnrollments)
}
