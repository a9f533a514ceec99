package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"

	"github.com/starrysand/api/internal/domain"
)

// DiscountCatalog is the read-only set of redeemable codes.
type DiscountCatalog struct {
	rules  []domain.DiscountRule
	byCode map[string]int
}

// NormalizeCode trims, folds full-width characters and uppercases a code as typed.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(width.Fold.String(code)))
}

// NewDiscountCatalog validates rules and indexes them by normalized code. Stored codes
// are rewritten to their normalized form.
func NewDiscountCatalog(rules []domain.DiscountRule) (*DiscountCatalog, error) {
	c := &DiscountCatalog{
		rules:  make([]domain.DiscountRule, 0, len(rules)),
		byCode: make(map[string]int, len(rules)),
	}
	for _, rule := range rules {
		rule.Code = NormalizeCode(rule.Code)
		if err := validateRule(rule); err != nil {
			return nil, err
		}
		if _, exists := c.byCode[rule.Code]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDiscountCode, rule.Code)
		}
		c.byCode[rule.Code] = len(c.rules)
		c.rules = append(c.rules, rule)
	}
	return c, nil
}

func validateRule(rule domain.DiscountRule) error {
	if rule.Code == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidDiscountRule)
	}
	switch rule.Type {
	case domain.DiscountPercent:
		if !rule.Value.IsPositive() || rule.Value.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: %s percent value must be in (0,1]", ErrInvalidDiscountRule, rule.Code)
		}
	case domain.DiscountFixed:
		if rule.Value.IsNegative() {
			return fmt.Errorf("%w: %s fixed value must not be negative", ErrInvalidDiscountRule, rule.Code)
		}
	case domain.DiscountThreshold:
		if rule.Value.IsNegative() || !rule.Threshold.IsPositive() {
			return fmt.Errorf("%w: %s threshold rule needs a positive threshold", ErrInvalidDiscountRule, rule.Code)
		}
	default:
		return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidDiscountRule, rule.Code, rule.Type)
	}
	return nil
}

// Lookup resolves a code as a customer typed it.
func (c *DiscountCatalog) Lookup(code string) (domain.DiscountRule, bool) {
	if c == nil {
		return domain.DiscountRule{}, false
	}
	idx, ok := c.byCode[NormalizeCode(code)]
	if !ok {
		return domain.DiscountRule{}, false
	}
	return c.rules[idx], true
}

// Rules returns a copy of every rule in catalog order.
func (c *DiscountCatalog) Rules() []domain.DiscountRule {
	if c == nil {
		return nil
	}
	return append([]domain.DiscountRule(nil), c.rules...)
}

// Len reports the number of rules.
func (c *DiscountCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}
