package domain

import "github.com/shopspring/decimal"

// Size is a frame size. Small sizes halve the cost of every addon.
type Size struct {
	Name        string
	Dimensions  string
	PriceLabel  string
	Price       decimal.Decimal
	IsSmallSize bool
	// TriggerWish asks the storefront to open the wish/bonus prompt when selected.
	TriggerWish bool
	Description string
}

// Craft is an advanced structure. Multiplier scales the size's base price; a plain
// surcharge craft carries Multiplier 1 and contributes nothing to the base total.
type Craft struct {
	Name        string
	PriceLabel  string
	Price       decimal.Decimal
	Multiplier  int
	Description string
}

// EffectiveMultiplier returns the base multiplier, treating zero as 1.
func (c Craft) EffectiveMultiplier() int {
	if c.Multiplier < 1 {
		return 1
	}
	return c.Multiplier
}

// AddonKey identifies an addon. The same name may appear under different categories.
type AddonKey struct {
	Category string
	Name     string
}

// Addon is a decoration priced per piece.
type Addon struct {
	Category    string
	Name        string
	PriceLabel  string
	Price       decimal.Decimal
	Description string
}

// Key returns the addon's identity within an order.
func (a Addon) Key() AddonKey {
	return AddonKey{Category: a.Category, Name: a.Name}
}

// RushTier is an expedite option charged as a fraction of the discounted subtotal.
type RushTier struct {
	ID         string
	Name       string
	FeeLabel   string
	Multiplier decimal.Decimal
	LeadTime   string
}

// Packaging is a flat-priced packing choice.
type Packaging struct {
	Title       string
	PriceLabel  string
	Price       decimal.Decimal
	IsUpgrade   bool
	Description string
}

// SiteStatus carries workshop-wide switches read once at startup.
type SiteStatus struct {
	// Busy pauses new rush requests.
	Busy bool
}
