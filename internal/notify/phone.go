package notify

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone reduces a Brazilian phone number to the bare area code +
// number form providers expect: strip formatting, drop the 55 country code
// and a leading trunk zero, then require 10 or 11 digits.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	if strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	if len(digits) < 10 || len(digits) > 11 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}
