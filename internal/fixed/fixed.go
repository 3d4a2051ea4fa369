// Package fixed provides the scaled-integer price and money types used
// throughout the engine. Prices carry 4 decimal digits and money carries 2;
// conversion to and from human-readable decimals happens only at the system
// boundary (price ingestion, API responses), never inside the engine.
package fixed

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// PriceScale is the multiplier applied to external decimal prices
	// before they are stored as integers (4 decimal digits).
	PriceScale int64 = 10_000

	// MoneyScale is the multiplier applied to currency amounts
	// (2 decimal digits, i.e. cents).
	MoneyScale int64 = 100

	// ConversionFactor converts a money-scale value onto the price scale.
	ConversionFactor = PriceScale / MoneyScale

	priceDigits int32 = 4
	moneyDigits int32 = 2
)

// Price is a price expressed on the fixed price scale.
type Price int64

// Money is a currency amount expressed on the fixed money scale.
type Money int64

// ParsePrice converts an external decimal price string (for example
// "65000.00") to a Price, rounding half away from zero at the fourth
// decimal digit.
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("fixed: parse price %q: %w", s, err)
	}
	return Price(d.Shift(priceDigits).Round(0).IntPart()), nil
}

// PriceFromFloat converts a float price from an external feed to a Price.
func PriceFromFloat(f float64) Price {
	return Price(decimal.NewFromFloat(f).Shift(priceDigits).Round(0).IntPart())
}

// Float returns the human-readable price. Display use only.
func (p Price) Float() float64 {
	f, _ := decimal.New(int64(p), -priceDigits).Float64()
	return f
}

// String formats the price with 4 decimal digits.
func (p Price) String() string {
	return decimal.New(int64(p), -priceDigits).StringFixed(priceDigits)
}

// ParseMoney converts an external decimal amount string (for example
// "5000.00") to Money, rounding half away from zero at the second decimal
// digit.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("fixed: parse amount %q: %w", s, err)
	}
	return Money(d.Shift(moneyDigits).Round(0).IntPart()), nil
}

// MoneyFromFloat converts a float currency amount to Money.
func MoneyFromFloat(f float64) Money {
	return Money(decimal.NewFromFloat(f).Shift(moneyDigits).Round(0).IntPart())
}

// Float returns the human-readable amount. Display use only.
func (m Money) Float() float64 {
	f, _ := decimal.New(int64(m), -moneyDigits).Float64()
	return f
}

// String formats the amount with 2 decimal digits.
func (m Money) String() string {
	return decimal.New(int64(m), -moneyDigits).StringFixed(moneyDigits)
}
