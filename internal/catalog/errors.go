package catalog

import "errors"

var (
	// ErrInvalidCatalog wraps schema and consistency failures while loading a catalog.
	ErrInvalidCatalog = errors.New("catalog: invalid catalog")
	// ErrDuplicateEntry reports two entries sharing an identity.
	ErrDuplicateEntry = errors.New("catalog: duplicate entry")
	// ErrDuplicateDiscountCode reports two rules that normalize to the same code.
	ErrDuplicateDiscountCode = errors.New("catalog: duplicate discount code")
	// ErrInvalidDiscountRule reports a rule whose value or threshold cannot be applied.
	ErrInvalidDiscountRule = errors.New("catalog: invalid discount rule")
)
