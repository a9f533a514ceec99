package services

import "errors"

var (
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("order session: not found")
	// ErrSessionLimit is returned by Create when the registry is full.
	ErrSessionLimit = errors.New("order session: session limit reached")
	// ErrCatalogItemNotFound is returned when a size, craft, addon, rush tier or packaging is not in the catalog.
	ErrCatalogItemNotFound = errors.New("order session: catalog item not found")
	// ErrRushUnavailable is returned when selecting a rush tier while the workshop is busy.
	ErrRushUnavailable = errors.New("order session: rush orders are paused")
	// ErrDiscountsDisabled is returned when discount redemption is switched off.
	ErrDiscountsDisabled = errors.New("order session: discounts disabled")
	// ErrInvalidInput indicates the caller supplied an empty or malformed identifier.
	ErrInvalidInput = errors.New("order session: invalid input")
)
