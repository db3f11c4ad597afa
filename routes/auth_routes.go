package routes

import (
	"github.com/anjiri1684/edu_commerce/handlers"
	"github.com/anjiri1684/edu_commerce/middleware"
	"github.com/gofiber/fiber/v2"
)

func AuthRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	auth := api.Group("/auth")
	auth.Post("/register", handlers.RegisterUser)
	auth.Post("/login", handlers.LoginUser)

	api.Get("/profile/me", middleware.Protected(), handlers.GetProfile)
}
