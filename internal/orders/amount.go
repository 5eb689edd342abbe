package orders

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencies whose minor unit equals the major unit
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
	"CLP": true,
	"ISK": true,
}

// MajorUnits converts an amount in minor currency units to major units.
func MajorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

// FormatAmount renders an amount for logs, e.g. "12.00 USD".
func FormatAmount(amount int64, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	places := int32(2)
	if zeroDecimalCurrencies[code] {
		places = 0
	}
	out := MajorUnits(amount, code).StringFixed(places)
	if code == "" {
		return out
	}
	return out + " " + code
}
