// Package money formats and parses currency amounts for display.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var ErrInvalidAmount = errors.New("invalid amount")

type currency struct {
	symbol   string
	decimals int
}

var currencies = map[string]currency{
	"USD": {symbol: "$", decimals: 2},
	"CAD": {symbol: "CA$", decimals: 2},
	"AUD": {symbol: "A$", decimals: 2},
	"EUR": {symbol: "€", decimals: 2},
	"GBP": {symbol: "£", decimals: 2},
	"INR": {symbol: "₹", decimals: 2},
	"JPY": {symbol: "¥", decimals: 0},
}

// Format renders amount with the currency symbol and thousands separators,
// e.g. Format(1234.5, "usd") == "$1,234.50". Unknown codes are appended after the number.
func Format(amount float64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "USD"
	}
	cur, known := currencies[code]
	if !known {
		cur = currency{decimals: 2}
	}

	pattern := "#,###.##"
	if cur.decimals == 0 {
		pattern = "#,###."
	}

	sign := ""
	rounded := round(amount, cur.decimals)
	if rounded < 0 {
		sign = "-"
		rounded = -rounded
	}
	number := humanize.FormatFloat(pattern, rounded)

	if !known {
		return sign + number + " " + code
	}
	return sign + cur.symbol + number
}

// Parse reads a formatted amount back, ignoring currency symbols, codes,
// whitespace and thousands separators.
func Parse(s string) (float64, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	negative := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		negative = true
		raw = raw[1 : len(raw)-1]
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-':
			if b.Len() > 0 || negative {
				return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
			negative = true
		case r == ',' || r == ' ' || r == '_':
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			if b.Len() > 0 && !isTrailingCode(raw, r) {
				return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
		default:
			if !isSymbolRune(r) {
				return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
		}
	}

	digits := b.String()
	if digits == "" || strings.Count(digits, ".") > 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if negative {
		v = -v
	}
	return v, nil
}

// ToMinorUnits converts a major-unit amount to the smallest unit of code for
// payment processors: cents for USD, yen for JPY. Unknown codes use two decimals.
func ToMinorUnits(amount float64, code string) int64 {
	return int64(math.Round(amount * math.Pow10(decimals(code))))
}

// FromMinorUnits converts smallest units of code back to a major-unit amount.
func FromMinorUnits(minor int64, code string) float64 {
	return float64(minor) / math.Pow10(decimals(code))
}

func decimals(code string) int {
	if cur, ok := currencies[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return cur.decimals
	}
	return 2
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func isSymbolRune(r rune) bool {
	switch r {
	case '$', '€', '£', '¥', '₹':
		return true
	}
	return false
}

// isTrailingCode allows letters after the number only as a currency code suffix.
func isTrailingCode(raw string, _ rune) bool {
	idx := strings.LastIndexAny(raw, "0123456789")
	if idx < 0 {
		return true
	}
	suffix := strings.TrimSpace(raw[idx+1:])
	if suffix == "" {
		return false
	}
	for _, r := range suffix {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return len(suffix) == 3
}
