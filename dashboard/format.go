package dashboard

import (
	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
}

// Currencies whose minor unit isn't a hundredth
var minorUnitExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
}

// FormatAmount renders a signed minor-unit amount, e.g. -350 GBP as "-£3.50"
func FormatAmount(minor int64, currency string) string {
	exp, ok := minorUnitExponents[currency]
	if !ok {
		exp = 2
	}

	amount := decimal.New(minor, -exp)
	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}
	digits := amount.Abs().StringFixed(exp)

	if symbol, ok := currencySymbols[currency]; ok {
		return sign + symbol + digits
	}
	if currency == "" {
		return sign + digits
	}
	return sign + digits + " " + currency
}
