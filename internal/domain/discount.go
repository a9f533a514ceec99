package domain

import "github.com/shopspring/decimal"

// DiscountType selects how a rule changes the running subtotal.
type DiscountType string

const (
	// DiscountPercent multiplies the running subtotal by Value (0.9 means 10% off).
	DiscountPercent DiscountType = "percent"
	// DiscountFixed subtracts Value.
	DiscountFixed DiscountType = "fixed"
	// DiscountThreshold subtracts Value once the running subtotal reaches Threshold.
	DiscountThreshold DiscountType = "threshold"
)

// Priority orders discount types for application: percent, fixed, threshold.
// Unknown types sort last.
func (t DiscountType) Priority() int {
	switch t {
	case DiscountPercent:
		return 0
	case DiscountFixed:
		return 1
	case DiscountThreshold:
		return 2
	default:
		return 3
	}
}

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t.Priority() < 3
}

// DiscountRule is a redeemable code.
type DiscountRule struct {
	Code      string
	Type      DiscountType
	Value     decimal.Decimal
	Threshold decimal.Decimal
	// Exclusive rules never share the applied set with any other rule.
	Exclusive bool
	Label     string
	Tag       string
}

// NotificationType classifies a pending storefront message.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// Notification is the single pending message shown after a discount action.
type Notification struct {
	Type    NotificationType
	Message string
}
