package payments

import (
	"errors"
	"regexp"
	"strings"
)

const chadCountryCode = "235"

// PhonePattern is the accepted request format for Chad mobile-money numbers.
var PhonePattern = regexp.MustCompile(`^(\+?235)?[0-9]{8}$`)

var ErrInvalidPhoneNumber = errors.New("invalid mobile money phone number format")

var separatorRegex = regexp.MustCompile(`[\s\-().]`)

// NormalizeChadNumber returns the number as 235XXXXXXXX.
func NormalizeChadNumber(phone string) (string, error) {
	cleaned := separatorRegex.ReplaceAllString(strings.TrimSpace(phone), "")
	if !PhonePattern.MatchString(cleaned) {
		return "", ErrInvalidPhoneNumber
	}
	cleaned = strings.TrimPrefix(cleaned, "+")
	if len(cleaned) == 8 {
		return chadCountryCode + cleaned, nil
	}
	return cleaned, nil
}

// LocalNumber strips the country code, which some gateways expect.
func LocalNumber(normalized string) string {
	return strings.TrimPrefix(normalized, chadCountryCode)
}
