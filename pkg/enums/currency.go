package enums

import "fmt"

// Currency represents supported monetary denominations.
type Currency string

const (
	CurrencyUSD Currency = "USD"
)

var validCurrencies = []Currency{
	CurrencyUSD,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// MinorUnits returns the number of decimal places of the currency's minor unit.
func (c Currency) MinorUnits() int32 {
	return 2
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
