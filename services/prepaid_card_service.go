package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/anjiri1684/edu_commerce/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxCardBatch = 500

// ValidateCard checks that code can pay amount in currency without consuming
// it. A zero amount skips the value check. An expired card is flipped to
// expired here, so the write survives even though validation fails.
func ValidateCard(db *gorm.DB, code string, amount decimal.Decimal, currency string, now time.Time) (*models.PrepaidCard, error) {
	normalized := utils.NormalizeCardCode(code)
	if normalized == "" {
		return nil, ErrCardNotFound
	}

	var card models.PrepaidCard
	if err := db.Where("code = ?", normalized).First(&card).Error; err != nil {
		return nil, notFound(err, ErrCardNotFound)
	}

	if card.Status != models.CardActive {
		if card.Status == models.CardExpired {
			return nil, ErrCardExpired
		}
		return nil, ErrCardNotActive
	}

	if card.ExpiredAt(now) {
		res := db.Model(&models.PrepaidCard{}).
			Where("id = ? AND status = ?", card.ID, models.CardActive).
			Update("status", models.CardExpired)
		if res.Error != nil {
			log.Printf("⚠️ Could not mark prepaid card %s expired: %v", card.ID, res.Error)
		}
		return nil, ErrCardExpired
	}

	if currency != "" && !strings.EqualFold(card.Currency, currency) {
		return nil, ErrCardCurrencyMismatch
	}
	if amount.IsPositive() && card.Value.LessThan(amount) {
		return nil, ErrInsufficientCardValue
	}
	return &card, nil
}

// consumeCard is the single-use guard: only an active card can be claimed.
func consumeCard(tx *gorm.DB, cardID, userID, paymentID uuid.UUID, now time.Time) error {
	res := tx.Model(&models.PrepaidCard{}).
		Where("id = ? AND status = ?", cardID, models.CardActive).
		Updates(map[string]interface{}{
			"status":     models.CardUsed,
			"used_by":    userID,
			"used_at":    now,
			"payment_id": paymentID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCardNotActive
	}
	return nil
}

type GenerateCardsInput struct {
	Count     int
	Value     decimal.Decimal
	Currency  string
	ExpiresAt *time.Time
	CreatedBy uuid.UUID
}

// GenerateCards creates a batch of active cards sharing one BatchRef.
func GenerateCards(db *gorm.DB, in GenerateCardsInput, now time.Time) ([]models.PrepaidCard, error) {
	if in.Count < 1 || in.Count > maxCardBatch {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidQuantity, maxCardBatch)
	}
	if !in.Value.IsPositive() {
		return nil, ErrInsufficientCardValue
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, ErrCardExpired
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "XAF"
	}
	batchRef := "BATCH-" + now.Format("20060102-150405")
	cards := make([]models.PrepaidCard, 0, in.Count)
	err := db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < in.Count; i++ {
			code, err := utils.GenerateUniqueCardCode(tx)
			if err != nil {
				return err
			}
			createdBy := in.CreatedBy
			card := models.PrepaidCard{
				Code:      code,
				Value:     in.Value,
				Currency:  currency,
				Status:    models.CardActive,
				ExpiresAt: in.ExpiresAt,
				BatchRef:  batchRef,
				CreatedBy: &createdBy,
			}
			if err := tx.Create(&card).Error; err != nil {
				return err
			}
			cards = append(cards, card)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Generated %d prepaid cards in batch %s", len(cards), batchRef)
	return cards, nil
}

type CardFilter struct {
	Status   string
	BatchRef string
	Page     int
	Limit    int
}

func ListCards(db *gorm.DB, f CardFilter) ([]models.PrepaidCard, int64, error) {
	page, limit := pageBounds(f.Page, f.Limit)
	query := db.Model(&models.PrepaidCard{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.BatchRef != "" {
		query = query.Where("batch_ref = ?", f.BatchRef)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cards []models.PrepaidCard
	err := query.Order("created_at desc").Offset((page - 1) * limit).Limit(limit).Find(&cards).Error
	return cards, total, err
}

func GetCard(db *gorm.DB, id uuid.UUID) (*models.PrepaidCard, error) {
	var card models.PrepaidCard
	if err := db.First(&card, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrCardNotFound)
	}
	return &card, nil
}

type UpdateCardInput struct {
	Value     *decimal.Decimal
	ExpiresAt *time.Time
	Status    *string
}

// UpdateCard edits an unused card. Status may only move between active and disabled.
func UpdateCard(db *gorm.DB, id uuid.UUID, in UpdateCardInput, now time.Time) (*models.PrepaidCard, error) {
	card, err := GetCard(db, id)
	if err != nil {
		return nil, err
	}
	if card.Status == models.CardUsed {
		return nil, ErrCardAlreadyUsed
	}

	updates := map[string]interface{}{}
	if in.Value != nil {
		if !in.Value.IsPositive() {
			return nil, ErrInsufficientCardValue
		}
		updates["value"] = *in.Value
	}
	expiresAt := card.ExpiresAt
	if in.ExpiresAt != nil {
		expiresAt = in.ExpiresAt
		updates["expires_at"] = *in.ExpiresAt
	}
	if in.Status != nil {
		switch *in.Status {
		case models.CardActive:
			if expiresAt != nil && !expiresAt.After(now) {
				return nil, ErrCardExpired
			}
		case models.CardDisabled:
		default:
			return nil, ErrInvalidTransition
		}
		updates["status"] = *in.Status
	}
	if len(updates) == 0 {
		return card, nil
	}

	res := db.Model(&models.PrepaidCard{}).
		Where("id = ? AND status <> ?", id, models.CardUsed).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrCardAlreadyUsed
	}
	return GetCard(db, id)
}

// DeleteCard soft-deletes an unused card.
func DeleteCard(db *gorm.DB, id uuid.UUID) error {
	res := db.Where("id = ? AND status <> ?", id, models.CardUsed).Delete(&models.PrepaidCard{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetCard(db, id); err != nil {
			return err
		}
		return ErrCardAlreadyUsed
	}
	return nil
}

func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
