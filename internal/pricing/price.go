// Package pricing turns order selections into a quote.
package pricing

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

var (
	decorationReplacer = strings.NewReplacer("r", "", "R", "", "+", "", "¥", "", "$", "")
	numericPrefix      = regexp.MustCompile(`^-?(?:\d+(?:\.\d+)?|\.\d+)`)
)

// ParsePrice reads the amount out of a display label such as "+15r" or "¥48".
// Full-width characters are folded first. Labels that do not start with a number
// after stripping decoration, such as "基础价 × 2", parse as zero.
func ParsePrice(label string) decimal.Decimal {
	amount, ok := parseAmount(label)
	if !ok {
		return decimal.Zero
	}
	return amount
}

// IsComplexPrice reports whether label is non-empty but carries no number, which
// means the item needs a manual quote.
func IsComplexPrice(label string) bool {
	if strings.TrimSpace(label) == "" {
		return false
	}
	_, ok := parseAmount(label)
	return !ok
}

func parseAmount(label string) (decimal.Decimal, bool) {
	match := numericPrefix.FindString(stripDecoration(label))
	if match == "" {
		return decimal.Zero, false
	}
	if strings.HasPrefix(match, ".") {
		match = "0" + match
	} else if strings.HasPrefix(match, "-.") {
		match = "-0" + match[1:]
	}
	amount, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

func stripDecoration(label string) string {
	folded := decorationReplacer.Replace(width.Fold.String(label))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}
