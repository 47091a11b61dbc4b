package stake

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses a plain decimal string such as "250.5".
// Exponent notation is rejected.
func ParseDecimal(amount string) (decimal.Decimal, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal amount %q", amount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal amount %q", amount)
	}
	return d, nil
}

// ParseUnits converts a decimal string in user units to base units scaled by decimals.
// Fraction digits beyond decimals are rounded half up.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := ParseDecimal(amount)
	if err != nil {
		return nil, err
	}
	return d.Shift(int32(decimals)).Round(0).BigInt(), nil
}

// FormatUnits renders base units as a decimal string with trailing zeros trimmed
func FormatUnits(value *big.Int, decimals uint8) string {
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}
