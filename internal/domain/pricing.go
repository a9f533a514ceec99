package domain

import "github.com/shopspring/decimal"

// Breakdown captures every intermediate amount of an order quote. The checkout
// summary renders each line from these fields.
type Breakdown struct {
	BaseTotal       decimal.Decimal
	CraftMultiplier int

	RawAddonTotal           decimal.Decimal
	AddonDiscountMultiplier decimal.Decimal
	AddonTotal              decimal.Decimal
	// SmallSizeAddonDiscount is set when addons were halved for a small size.
	SmallSizeAddonDiscount bool

	PreDiscountSubtotal decimal.Decimal
	// Subtotal is the running total after every discount rule.
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Discounts      []DiscountLine

	ThresholdShortfalls []ThresholdShortfall

	RushFee      decimal.Decimal
	PackagingFee decimal.Decimal
}

// DiscountLine records what one applied rule did, in processing order.
type DiscountLine struct {
	Code    string
	Label   string
	Type    DiscountType
	Amount  decimal.Decimal
	Applied bool
}

// ThresholdShortfall explains why a threshold rule did not apply.
type ThresholdShortfall struct {
	Code      string
	Label     string
	Shortfall decimal.Decimal
	Message   string
}

// Quote is the derived price of an order.
type Quote struct {
	Breakdown       Breakdown
	FinalPrice      decimal.Decimal
	HasComplexItems bool
}
