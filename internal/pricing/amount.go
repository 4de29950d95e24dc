package pricing

import (
	"fmt"
	"strings"
)

// ParseAmount converts a human price such as "$0.01" or "0.01" into the
// smallest unit of an asset with the given decimals. Digits past decimals are
// floored away.
func ParseAmount(price string, decimals int) (string, error) {
	if decimals < 0 {
		return "", fmt.Errorf("invalid decimals %d", decimals)
	}
	s := strings.TrimSpace(price)
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return "", fmt.Errorf("empty price")
	}
	if strings.HasPrefix(s, "-") {
		return "", fmt.Errorf("negative price %q", price)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return "", fmt.Errorf("invalid price %q", price)
	}
	if !digits(whole) || !digits(frac) {
		return "", fmt.Errorf("invalid price %q", price)
	}

	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	amount := strings.TrimLeft(whole+frac, "0")
	if amount == "" {
		return "0", nil
	}
	return amount, nil
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
