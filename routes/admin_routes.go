package routes

import (
	"github.com/anjiri1684/edu_commerce/handlers"
	"github.com/anjiri1684/edu_commerce/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())

	admin.Get("/dashboard-analytics", handlers.GetDashboardAnalytics)

	admin.Get("/refund-requests", handlers.ListRefundRequests)
	admin.Post("/refund-requests/:paymentId/process", handlers.ProcessRefund)

	reports := admin.Group("/reports")
	reports.Get("/transactions", handlers.GenerateTransactionReport)

	admin.Get("/payments", handlers.AdminGetPayments)
	admin.Post("/payments/expire-stale", handlers.AdminExpireStalePayments)

	admin.Put("/orders/:orderId/status", handlers.AdminUpdateOrderStatus)

	courses := admin.Group("/courses")
	courses.Post("", handlers.AdminCreateCourse)
	courses.Put("/:courseId", handlers.AdminUpdateCourse)

	products := admin.Group("/products")
	products.Post("", handlers.AdminCreateProduct)
	products.Put("/:productId", handlers.AdminUpdateProduct)
	products.Post("/:productId/stock", handlers.AdminAdjustStock)
}
