package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDuration = errors.New("duration must be a positive number of minutes")
	ErrInvalidPrice    = errors.New("price must be a non-negative amount")
)

// Duration is a service length in whole minutes. Constructed values are
// always positive; forms upstream may be permissive, the domain is not.
type Duration int

func NewDuration(minutes int) (Duration, error) {
	if minutes <= 0 {
		return 0, ErrInvalidDuration
	}
	return Duration(minutes), nil
}

func (d Duration) Minutes() int { return int(d) }

func (d Duration) String() string { return fmt.Sprintf("%dmin", int(d)) }

// Price is a non-negative two-place currency amount.
type Price struct {
	amount decimal.Decimal
}

func NewPrice(amount decimal.Decimal) (Price, error) {
	if amount.IsNegative() {
		return Price{}, ErrInvalidPrice
	}
	return Price{amount: amount.Round(2)}, nil
}

func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("invalid price %q: %w", s, ErrInvalidPrice)
	}
	return NewPrice(d)
}

func (p Price) Decimal() decimal.Decimal { return p.amount }

func (p Price) String() string { return p.amount.StringFixed(2) }
