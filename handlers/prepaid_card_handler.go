package handlers

import (
	"time"

	"github.com/anjiri1684/edu_commerce/database"
	"github.com/anjiri1684/edu_commerce/services"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type GenerateCardsRequest struct {
	Count     int             `json:"count" validate:"required,min=1,max=500"`
	Value     decimal.Decimal `json:"value"`
	Currency  string          `json:"currency" validate:"omitempty,len=3"`
	ExpiresAt *time.Time      `json:"expiresAt"`
}

type UpdateCardRequest struct {
	Value     *decimal.Decimal `json:"value"`
	ExpiresAt *time.Time       `json:"expiresAt"`
	Status    *string          `json:"status" validate:"omitempty,oneof=active disabled"`
}

type ValidateCardRequest struct {
	Code     string          `json:"code" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func AdminGenerateCards(c *fiber.Ctx) error {
	adminID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req GenerateCardsRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	cards, err := services.GenerateCards(database.DB, services.GenerateCardsInput{
		Count:     req.Count,
		Value:     req.Value,
		Currency:  req.Currency,
		ExpiresAt: req.ExpiresAt,
		CreatedBy: adminID,
	}, services.Payments.Now())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"batch_ref": cards[0].BatchRef,
		"count":     len(cards),
		"cards":     cards,
	})
}

func AdminListCards(c *fiber.Ctx) error {
	page, limit := pagination(c)
	cards, total, err := services.ListCards(database.DB, services.CardFilter{
		Status:   c.Query("status"),
		BatchRef: c.Query("batch_ref"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cards, "meta": pageMeta(total, page, limit)})
}

func AdminGetCard(c *fiber.Ctx) error {
	cardID, err := paramID(c, "cardId")
	if err != nil {
		return err
	}
	card, err := services.GetCard(database.DB, cardID)
	if err != nil {
		return err
	}
	return c.JSON(card)
}

func AdminUpdateCard(c *fiber.Ctx) error {
	cardID, err := paramID(c, "cardId")
	if err != nil {
		return err
	}
	var req UpdateCardRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	card, err := services.UpdateCard(database.DB, cardID, services.UpdateCardInput{
		Value:     req.Value,
		ExpiresAt: req.ExpiresAt,
		Status:    req.Status,
	}, services.Payments.Now())
	if err != nil {
		return err
	}
	return c.JSON(card)
}

func AdminDeleteCard(c *fiber.Ctx) error {
	cardID, err := paramID(c, "cardId")
	if err != nil {
		return err
	}
	if err := services.DeleteCard(database.DB, cardID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Prepaid card deleted"})
}

// ValidatePrepaidCard lets a buyer check a code before paying. The card is not consumed.
func ValidatePrepaidCard(c *fiber.Ctx) error {
	var req ValidateCardRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	card, err := services.ValidateCard(database.DB, req.Code, req.Amount, req.Currency, services.Payments.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"valid":      true,
		"code":       card.Code,
		"value":      card.Value,
		"currency":   card.Currency,
		"expires_at": card.ExpiresAt,
	})
}
