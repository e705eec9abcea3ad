package models

import (
	"github.com/shopspring/decimal"
)

// FeeCents считает комиссию в базисных пунктах с округлением half-up
func FeeCents(amountCents, bps int64) int64 {
	fee := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10000)).
		Round(0)
	return fee.IntPart()
}

// FormatCents renders cents as a dollar amount, e.g. 1234 -> "12.34"
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
