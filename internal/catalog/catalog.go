// Package catalog holds the workshop's static product catalog and discount codes.
package catalog

import (
	"strings"

	"github.com/starrysand/api/internal/domain"
)

// AddonCategory groups addons for display.
type AddonCategory struct {
	ID     string
	Title  string
	Addons []domain.Addon
}

// Catalog is immutable after construction and safe for concurrent readers.
type Catalog struct {
	status     domain.SiteStatus
	sizes      []domain.Size
	crafts     []domain.Craft
	categories []AddonCategory
	rush       []domain.RushTier
	packaging  []domain.Packaging
	discounts  *DiscountCatalog

	sizeIdx      map[string]int
	craftIdx     map[string]int
	addonIdx     map[domain.AddonKey]domain.Addon
	rushIdx      map[string]int
	packagingIdx map[string]int
}

// Status returns the site status.
func (c *Catalog) Status() domain.SiteStatus { return c.status }

// WithSiteBusy returns a copy of the catalog with the busy flag overridden.
func (c *Catalog) WithSiteBusy(busy bool) *Catalog {
	clone := *c
	clone.status.Busy = busy
	return &clone
}

// Discounts returns the discount code catalog.
func (c *Catalog) Discounts() *DiscountCatalog { return c.discounts }

// Sizes returns every size in display order.
func (c *Catalog) Sizes() []domain.Size { return append([]domain.Size(nil), c.sizes...) }

// Crafts returns every craft in display order.
func (c *Catalog) Crafts() []domain.Craft { return append([]domain.Craft(nil), c.crafts...) }

// AddonCategories returns the addon groups in display order.
func (c *Catalog) AddonCategories() []AddonCategory {
	out := make([]AddonCategory, len(c.categories))
	for i, cat := range c.categories {
		out[i] = AddonCategory{ID: cat.ID, Title: cat.Title, Addons: append([]domain.Addon(nil), cat.Addons...)}
	}
	return out
}

// RushTiers returns every rush tier in display order.
func (c *Catalog) RushTiers() []domain.RushTier { return append([]domain.RushTier(nil), c.rush...) }

// PackagingOptions returns every packaging choice in display order.
func (c *Catalog) PackagingOptions() []domain.Packaging {
	return append([]domain.Packaging(nil), c.packaging...)
}

// Size finds a size by name.
func (c *Catalog) Size(name string) (domain.Size, bool) {
	idx, ok := c.sizeIdx[strings.TrimSpace(name)]
	if !ok {
		return domain.Size{}, false
	}
	return c.sizes[idx], true
}

// Craft finds a craft by name.
func (c *Catalog) Craft(name string) (domain.Craft, bool) {
	idx, ok := c.craftIdx[strings.TrimSpace(name)]
	if !ok {
		return domain.Craft{}, false
	}
	return c.crafts[idx], true
}

// Addon finds an addon by category and name.
func (c *Catalog) Addon(category, name string) (domain.Addon, bool) {
	addon, ok := c.addonIdx[domain.AddonKey{Category: strings.TrimSpace(category), Name: strings.TrimSpace(name)}]
	return addon, ok
}

// RushTier finds a rush tier by id.
func (c *Catalog) RushTier(id string) (domain.RushTier, bool) {
	idx, ok := c.rushIdx[strings.TrimSpace(id)]
	if !ok {
		return domain.RushTier{}, false
	}
	return c.rush[idx], true
}

// Packaging finds a packaging choice by title.
func (c *Catalog) Packaging(title string) (domain.Packaging, bool) {
	idx, ok := c.packagingIdx[strings.TrimSpace(title)]
	if !ok {
		return domain.Packaging{}, false
	}
	return c.packaging[idx], true
}
