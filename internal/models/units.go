package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// FromBig converts a non-negative big.Int into a 256-bit amount
func FromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s", v.String())
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("amount %s overflows 256 bits", v.String())
	}
	return out, nil
}

// FormatUnits renders an amount in smallest units as a decimal string with
// the given number of decimals, trimming trailing zeros
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	digits := amount.Dec()
	if decimals == 0 {
		return digits
	}

	d := int(decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-d]
	frac := strings.TrimRight(digits[len(digits)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
