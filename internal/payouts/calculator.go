package payouts

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
)

var one = decimal.NewFromInt(1)

// ParseCommissionRate validates a decimal fraction in [0, 1].
func ParseCommissionRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "commission rate is not a decimal")
	}
	if rate.IsNegative() || rate.GreaterThan(one) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 1")
	}
	return rate, nil
}

// ComputeNetCents returns gross*(1-rate) in cents, rounded half-to-even so
// repeated payouts do not drift in either party's favor.
func ComputeNetCents(grossCents int64, rate decimal.Decimal) (int64, error) {
	if grossCents < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must not be negative")
	}
	if rate.IsNegative() || rate.GreaterThan(one) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 1")
	}
	net := decimal.NewFromInt(grossCents).Mul(one.Sub(rate)).RoundBank(0)
	return net.IntPart(), nil
}
