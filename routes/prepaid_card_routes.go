package routes

import (
	"github.com/anjiri1684/edu_commerce/handlers"
	"github.com/anjiri1684/edu_commerce/middleware"
	"github.com/gofiber/fiber/v2"
)

func PrepaidCardRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	cards := api.Group("/prepaid-cards", middleware.Protected())
	cards.Post("/validate", handlers.ValidatePrepaidCard)

	admin := cards.Group("", middleware.AdminRequired())
	admin.Post("", handlers.AdminGenerateCards)
	admin.Get("", handlers.AdminListCards)
	admin.Get("/:cardId", handlers.AdminGetCard)
	admin.Put("/:cardId", handlers.AdminUpdateCard)
	admin.Delete("/:cardId", handlers.AdminDeleteCard)
}
