package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

const (
	cardCodeLength   = 12
	cardCodeGroup    = 4
	orderSuffixLen   = 6
	maxCodeAttempts  = 10
	transactionIDTag = "TXN-"
)

// No 0/O/1/I so codes survive being read aloud or printed on scratch cards.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var ErrCodeSpaceExhausted = errors.New("could not generate a unique code")

// NewTransactionID returns an opaque, time-sortable payment token.
func NewTransactionID() string {
	return transactionIDTag + ulid.Make().String()
}

func randomCode(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// NormalizeCardCode upper-cases a code and restores the XXXX-XXXX-XXXX grouping
// so "abcd efgh jkmn" and "ABCD-EFGH-JKMN" refer to the same card.
func NormalizeCardCode(code string) string {
	var raw strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			raw.WriteRune(r)
		}
	}
	s := raw.String()
	if len(s) != cardCodeLength {
		return s
	}
	return groupCode(s)
}

func groupCode(s string) string {
	parts := make([]string, 0, len(s)/cardCodeGroup)
	for i := 0; i < len(s); i += cardCodeGroup {
		parts = append(parts, s[i:i+cardCodeGroup])
	}
	return strings.Join(parts, "-")
}

// GenerateUniqueCardCode draws codes until one is not present in prepaid_cards.
func GenerateUniqueCardCode(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		raw, err := randomCode(cardCodeLength)
		if err != nil {
			return "", err
		}
		code := groupCode(raw)

		var count int64
		if err := tx.Table("prepaid_cards").Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// NewOrderNumber returns ORD-YYYYMMDD-XXXXXX.
func NewOrderNumber(now time.Time) (string, error) {
	suffix, err := randomCode(orderSuffixLen)
	if err != nil {
		return "", err
	}
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix, nil
}
