package routes

import (
	"github.com/anjiri1684/edu_commerce/handlers"
	"github.com/gofiber/fiber/v2"
)

func CatalogRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Get("/courses", handlers.ListCourses)
	api.Get("/courses/:courseId", handlers.GetCourse)
	api.Get("/products", handlers.ListProducts)
	api.Get("/products/:productId", handlers.GetProduct)
}
