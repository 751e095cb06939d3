// Package amount converts between human-readable decimal strings and
// fixed-point base-unit integer strings. All math is big.Int based; floats
// never touch an amount.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ToBaseUnits converts a human-readable decimal string into a base-unit
// integer string using the token's decimal count. The conversion is exact;
// amounts with more fractional digits than the token supports are rejected.
func ToBaseUnits(decimal string, decimals int) (string, error) {
	if decimals < 0 {
		return "", fmt.Errorf("decimals must be >= 0, got %d", decimals)
	}
	if !decimalPattern.MatchString(decimal) {
		return "", fmt.Errorf("amount %q is not a decimal string", decimal)
	}

	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	// Trailing zeros beyond the token's precision are harmless.
	trimmed := strings.TrimRight(fracPart, "0")
	if len(trimmed) > decimals {
		return "", fmt.Errorf("amount %q has %d fractional digits, token supports %d", decimal, len(trimmed), decimals)
	}
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}

	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return "0", nil
	}
	if _, ok := new(big.Int).SetString(combined, 10); !ok {
		return "", fmt.Errorf("invalid decimal amount %q", decimal)
	}
	return combined, nil
}

// FromBaseUnits converts a base-unit integer string into a human-readable
// decimal string. Trailing fractional zeros are dropped.
func FromBaseUnits(baseUnits string, decimals int) (string, error) {
	n, ok := new(big.Int).SetString(baseUnits, 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("amount %q is not a non-negative integer string", baseUnits)
	}
	if decimals < 0 {
		return "", fmt.Errorf("decimals must be >= 0, got %d", decimals)
	}
	if decimals == 0 {
		return n.String(), nil
	}

	s := n.String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart, nil
	}
	return intPart + "." + fracPart, nil
}

// MustBig parses a base-unit integer string into a big.Int. Only for inputs
// that already passed ToBaseUnits validation.
func MustBig(baseUnits string) *big.Int {
	n, ok := new(big.Int).SetString(baseUnits, 10)
	if !ok {
		panic(fmt.Sprintf("amount: %q is not an integer string", baseUnits))
	}
	return n
}

// ApplySlippageBps returns amount * (10000 - bps) / 10000 in base units.
// Used to derive a minimum-output bound from an expected output.
func ApplySlippageBps(baseUnits string, bps uint32) (string, error) {
	n, ok := new(big.Int).SetString(baseUnits, 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("amount %q is not a non-negative integer string", baseUnits)
	}
	if bps > 10000 {
		return "", fmt.Errorf("slippage %d bps exceeds 100%%", bps)
	}
	n.Mul(n, big.NewInt(int64(10000-bps)))
	n.Quo(n, big.NewInt(10000))
	return n.String(), nil
}

// Normalize canonicalizes a decimal string: strips leading integer zeros and
// trailing fractional zeros, so "01.50" becomes "1.5".
func Normalize(v string) string {
	if !strings.Contains(v, ".") {
		out := strings.TrimLeft(v, "0")
		if out == "" {
			return "0"
		}
		return out
	}
	parts := strings.SplitN(v, ".", 2)
	intPart := strings.TrimLeft(parts[0], "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart := strings.TrimRight(parts[1], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
