package handlers

import (
	"math"
	"strconv"

	"github.com/anjiri1684/edu_commerce/middleware"
	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/payments"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// td_phone accepts Chad mobile money numbers, with or without +235.
	_ = v.RegisterValidation("td_phone", func(fl validator.FieldLevel) bool {
		_, err := payments.NormalizeChadNumber(fl.Field().String())
		return err == nil
	})
	return v
}

// parseBody decodes and validates the request body. It writes the 400 itself
// and returns ok=false when the caller should stop.
func parseBody(c *fiber.Ctx, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return true, nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func caller(c *fiber.Ctx) (uuid.UUID, bool, error) {
	userID, role, err := middleware.CurrentUser(c)
	if err != nil {
		return uuid.Nil, false, fiber.ErrUnauthorized
	}
	return userID, role == models.RoleAdmin, nil
}

func pagination(c *fiber.Ctx) (page, limit int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	limit, _ = strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func pageMeta(total int64, page, limit int) fiber.Map {
	return fiber.Map{
		"total":     total,
		"page":      page,
		"last_page": int(math.Ceil(float64(total) / float64(limit))),
	}
}
