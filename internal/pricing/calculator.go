package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/starrysand/api/internal/domain"
)

var (
	smallSizeAddonMultiplier = decimal.NewFromFloat(0.5)
	one                      = decimal.NewFromInt(1)
)

// Selection is everything a quote depends on. Nil pointers mean nothing selected.
type Selection struct {
	Size      *domain.Size
	Craft     *domain.Craft
	Addons    []domain.Addon
	Rush      *domain.RushTier
	Packaging *domain.Packaging
	Discounts []domain.DiscountRule
}

// Calculate prices sel. It is a pure function of its input.
func Calculate(sel Selection) domain.Quote {
	var b domain.Breakdown

	base := decimal.Zero
	if sel.Size != nil {
		base = sel.Size.Price
	}
	b.CraftMultiplier = 1
	if sel.Craft != nil {
		b.CraftMultiplier = sel.Craft.EffectiveMultiplier()
	}
	b.BaseTotal = base.Mul(decimal.NewFromInt(int64(b.CraftMultiplier)))

	b.RawAddonTotal = decimal.Zero
	for _, addon := range sel.Addons {
		b.RawAddonTotal = b.RawAddonTotal.Add(addon.Price)
	}
	b.AddonDiscountMultiplier = one
	if sel.Size != nil && sel.Size.IsSmallSize {
		b.AddonDiscountMultiplier = smallSizeAddonMultiplier
		b.SmallSizeAddonDiscount = true
	}
	b.AddonTotal = b.RawAddonTotal.Mul(b.AddonDiscountMultiplier)

	b.PreDiscountSubtotal = b.BaseTotal.Add(b.AddonTotal)
	b.Subtotal, b.Discounts, b.ThresholdShortfalls = applyDiscounts(b.PreDiscountSubtotal, sel.Discounts)
	b.DiscountAmount = b.PreDiscountSubtotal.Sub(b.Subtotal)

	b.RushFee = decimal.Zero
	if sel.Rush != nil {
		b.RushFee = nonNegative(b.Subtotal.Mul(sel.Rush.Multiplier).Ceil())
	}
	b.PackagingFee = decimal.Zero
	if sel.Packaging != nil {
		b.PackagingFee = nonNegative(sel.Packaging.Price)
	}

	final := nonNegative(b.Subtotal.Add(b.RushFee).Add(b.PackagingFee).Floor())

	return domain.Quote{
		Breakdown:       b,
		FinalPrice:      final,
		HasComplexItems: HasComplexItems(sel),
	}
}

// applyDiscounts runs rules in type priority order, percent then fixed then threshold,
// regardless of the order they were redeemed in. Each threshold is compared with the
// running subtotal at the moment it is processed.
func applyDiscounts(subtotal decimal.Decimal, rules []domain.DiscountRule) (decimal.Decimal, []domain.DiscountLine, []domain.ThresholdShortfall) {
	if len(rules) == 0 {
		return subtotal, nil, nil
	}
	ordered := append([]domain.DiscountRule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Type.Priority() < ordered[j].Type.Priority()
	})

	running := subtotal
	lines := make([]domain.DiscountLine, 0, len(ordered))
	var shortfalls []domain.ThresholdShortfall
	for _, rule := range ordered {
		before := running
		applied := true
		switch rule.Type {
		case domain.DiscountPercent:
			running = nonNegative(running.Mul(rule.Value))
		case domain.DiscountFixed:
			running = nonNegative(running.Sub(rule.Value))
		case domain.DiscountThreshold:
			if running.GreaterThanOrEqual(rule.Threshold) {
				running = nonNegative(running.Sub(rule.Value))
				break
			}
			applied = false
			gap := rule.Threshold.Sub(running).Floor()
			shortfalls = append(shortfalls, domain.ThresholdShortfall{
				Code:      rule.Code,
				Label:     rule.Label,
				Shortfall: gap,
				Message:   ShortfallMessage(gap, rule.Label),
			})
		default:
			applied = false
		}
		lines = append(lines, domain.DiscountLine{
			Code:    rule.Code,
			Label:   rule.Label,
			Type:    rule.Type,
			Amount:  before.Sub(running),
			Applied: applied,
		})
	}
	return running, lines, shortfalls
}

// ShortfallMessage is the storefront hint for an unmet threshold.
func ShortfallMessage(gap decimal.Decimal, label string) string {
	return fmt.Sprintf("还差 ¥%s 才能用【%s】哦", gap.String(), label)
}

// HasComplexItems reports whether any selected size, craft, addon or rush label needs a
// manual quote. A craft with a multiplier above 1 is priced through the multiplier, so
// its label is not inspected.
func HasComplexItems(sel Selection) bool {
	if sel.Size != nil && IsComplexPrice(sel.Size.PriceLabel) {
		return true
	}
	if sel.Craft != nil && sel.Craft.EffectiveMultiplier() == 1 && IsComplexPrice(sel.Craft.PriceLabel) {
		return true
	}
	for _, addon := range sel.Addons {
		if IsComplexPrice(addon.PriceLabel) {
			return true
		}
	}
	return sel.Rush != nil && IsComplexPrice(sel.Rush.FeeLabel)
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
