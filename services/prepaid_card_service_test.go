package services

import (
	"testing"
	"time"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCards(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	expires := now.Add(90 * 24 * time.Hour)

	cards, err := GenerateCards(f.db, GenerateCardsInput{
		Count: 3, Value: decimal.NewFromInt(5000), Currency: "xaf", ExpiresAt: &expires, CreatedBy: uuid.New(),
	}, now)
	require.NoError(t, err)
	require.Len(t, cards, 3)

	seen := map[string]bool{}
	for _, c := range cards {
		assert.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}-[A-Z2-9]{4}$`, c.Code)
		assert.Equal(t, "XAF", c.Currency)
		assert.Equal(t, cards[0].BatchRef, c.BatchRef)
		seen[c.Code] = true
	}
	assert.Len(t, seen, 3)

	_, err = GenerateCards(f.db, GenerateCardsInput{Count: 0, Value: decimal.NewFromInt(1)}, now)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	past := now.Add(-time.Hour)
	_, err = GenerateCards(f.db, GenerateCardsInput{Count: 1, Value: decimal.NewFromInt(1), ExpiresAt: &past}, now)
	assert.ErrorIs(t, err, ErrCardExpired)
}

func TestValidateCardDoesNotConsume(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, 1000, nil)
	raw := card.Code[0:4] + " " + card.Code[5:9] + card.Code[10:]

	got, err := ValidateCard(f.db, raw, decimal.NewFromInt(1000), "XAF", f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, card.ID, got.ID)

	_, err = ValidateCard(f.db, card.Code, decimal.NewFromInt(1001), "", f.clock.Now())
	assert.ErrorIs(t, err, ErrInsufficientCardValue)
	_, err = ValidateCard(f.db, card.Code, decimal.Zero, "USD", f.clock.Now())
	assert.ErrorIs(t, err, ErrCardCurrencyMismatch)

	var stored models.PrepaidCard
	f.reload(t, &stored, card.ID)
	assert.Equal(t, models.CardActive, stored.Status)
}

func TestConsumeCardOnlyOnce(t *testing.T) {
	f := newFixture(t)
	card := f.card(t, 1000, nil)
	user := f.user(t)

	require.NoError(t, consumeCard(f.db, card.ID, user.ID, uuid.New(), f.clock.Now()))
	assert.ErrorIs(t, consumeCard(f.db, card.ID, user.ID, uuid.New(), f.clock.Now()), ErrCardNotActive)
}

func TestUpdateAndDeleteCard(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	card := f.card(t, 1000, nil)

	disabled := models.CardDisabled
	updated, err := UpdateCard(f.db, card.ID, UpdateCardInput{Status: &disabled}, now)
	require.NoError(t, err)
	assert.Equal(t, models.CardDisabled, updated.Status)
	_, err = ValidateCard(f.db, card.Code, decimal.Zero, "", now)
	assert.ErrorIs(t, err, ErrCardNotActive)

	used := models.CardUsed
	_, err = UpdateCard(f.db, card.ID, UpdateCardInput{Status: &used}, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	value := decimal.NewFromInt(2500)
	updated, err = UpdateCard(f.db, card.ID, UpdateCardInput{Value: &value}, now)
	require.NoError(t, err)
	assert.True(t, updated.Value.Equal(value))

	require.NoError(t, DeleteCard(f.db, card.ID))
	_, err = GetCard(f.db, card.ID)
	assert.ErrorIs(t, err, ErrCardNotFound)

	spent := f.card(t, 1000, nil)
	require.NoError(t, consumeCard(f.db, spent.ID, f.user(t).ID, uuid.New(), now))
	assert.ErrorIs(t, DeleteCard(f.db, spent.ID), ErrCardAlreadyUsed)
	_, err = UpdateCard(f.db, spent.ID, UpdateCardInput{Value: &value}, now)
	assert.ErrorIs(t, err, ErrCardAlreadyUsed)
}

func TestListCardsFilters(t *testing.T) {
	f := newFixture(t)
	f.card(t, 100, nil)
	f.card(t, 100, nil)
	spent := f.card(t, 100, nil)
	require.NoError(t, consumeCard(f.db, spent.ID, uuid.New(), uuid.New(), f.clock.Now()))

	active, total, err := ListCards(f.db, CardFilter{Status: models.CardActive})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, active, 2)

	page, total, err := ListCards(f.db, CardFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page, 1)
}
