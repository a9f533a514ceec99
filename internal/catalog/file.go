package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/starrysand/api/internal/domain"
	"github.com/starrysand/api/internal/pricing"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

type catalogFile struct {
	Site            siteFile            `yaml:"site"`
	Sizes           []sizeFile          `yaml:"sizes" validate:"required,min=1,dive"`
	Crafts          []craftFile         `yaml:"crafts" validate:"dive"`
	AddonCategories []addonCategoryFile `yaml:"addon_categories" validate:"dive"`
	RushTiers       []rushTierFile      `yaml:"rush_tiers" validate:"dive"`
	Packaging       []packagingFile     `yaml:"packaging" validate:"dive"`
	Discounts       []discountFile      `yaml:"discounts" validate:"dive"`
}

type siteFile struct {
	Busy bool `yaml:"busy"`
}

type sizeFile struct {
	Name        string   `yaml:"name" validate:"required,max=64"`
	Dimensions  string   `yaml:"dimensions" validate:"max=64"`
	PriceLabel  string   `yaml:"price_label" validate:"max=32"`
	Price       *float64 `yaml:"price" validate:"omitempty,gte=0"`
	SmallSize   bool     `yaml:"small_size"`
	TriggerWish bool     `yaml:"trigger_wish"`
	Description string   `yaml:"description"`
}

type craftFile struct {
	Name        string   `yaml:"name" validate:"required,max=64"`
	PriceLabel  string   `yaml:"price_label" validate:"max=32"`
	Price       *float64 `yaml:"price" validate:"omitempty,gte=0"`
	Multiplier  int      `yaml:"multiplier" validate:"gte=1,lte=10"`
	Description string   `yaml:"description"`
}

type addonCategoryFile struct {
	ID    string      `yaml:"id" validate:"required,max=64"`
	Title string      `yaml:"title"`
	Items []addonFile `yaml:"items" validate:"required,min=1,dive"`
}

type addonFile struct {
	Name        string   `yaml:"name" validate:"required,max=64"`
	PriceLabel  string   `yaml:"price_label" validate:"max=32"`
	Price       *float64 `yaml:"price" validate:"omitempty,gte=0"`
	Description string   `yaml:"description"`
}

type rushTierFile struct {
	ID         string  `yaml:"id" validate:"required,max=64"`
	Name       string  `yaml:"name" validate:"required,max=64"`
	FeeLabel   string  `yaml:"fee_label" validate:"max=32"`
	Multiplier float64 `yaml:"multiplier" validate:"gte=0,lte=5"`
	LeadTime   string  `yaml:"lead_time"`
}

type packagingFile struct {
	Title       string   `yaml:"title" validate:"required,max=64"`
	PriceLabel  string   `yaml:"price_label" validate:"max=32"`
	Price       *float64 `yaml:"price" validate:"omitempty,gte=0"`
	Upgrade     bool     `yaml:"upgrade"`
	Description string   `yaml:"description"`
}

type discountFile struct {
	Code      string  `yaml:"code" validate:"required,max=32"`
	Type      string  `yaml:"type" validate:"required,oneof=percent fixed threshold"`
	Value     float64 `yaml:"value" validate:"gte=0"`
	Threshold float64 `yaml:"threshold" validate:"gte=0"`
	Exclusive bool    `yaml:"exclusive"`
	Label     string  `yaml:"label" validate:"required,max=64"`
	Tag       string  `yaml:"tag" validate:"max=16"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

// Load reads the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog. Unknown keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file catalogFile
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return build(file)
}

func build(file catalogFile) (*Catalog, error) {
	c := &Catalog{
		status:       domain.SiteStatus{Busy: file.Site.Busy},
		sizeIdx:      make(map[string]int, len(file.Sizes)),
		craftIdx:     make(map[string]int, len(file.Crafts)),
		addonIdx:     make(map[domain.AddonKey]domain.Addon),
		rushIdx:      make(map[string]int, len(file.RushTiers)),
		packagingIdx: make(map[string]int, len(file.Packaging)),
	}

	for _, s := range file.Sizes {
		if _, dup := c.sizeIdx[s.Name]; dup {
			return nil, fmt.Errorf("%w: size %q", ErrDuplicateEntry, s.Name)
		}
		price, err := amount(s.Price, s.PriceLabel, "size "+strconv.Quote(s.Name))
		if err != nil {
			return nil, err
		}
		c.sizeIdx[s.Name] = len(c.sizes)
		c.sizes = append(c.sizes, domain.Size{
			Name:        s.Name,
			Dimensions:  s.Dimensions,
			PriceLabel:  s.PriceLabel,
			Price:       price,
			IsSmallSize: s.SmallSize,
			TriggerWish: s.TriggerWish,
			Description: s.Description,
		})
	}

	for _, cr := range file.Crafts {
		if _, dup := c.craftIdx[cr.Name]; dup {
			return nil, fmt.Errorf("%w: craft %q", ErrDuplicateEntry, cr.Name)
		}
		price, err := amount(cr.Price, cr.PriceLabel, "craft "+strconv.Quote(cr.Name))
		if err != nil {
			return nil, err
		}
		c.craftIdx[cr.Name] = len(c.crafts)
		c.crafts = append(c.crafts, domain.Craft{
			Name:        cr.Name,
			PriceLabel:  cr.PriceLabel,
			Price:       price,
			Multiplier:  cr.Multiplier,
			Description: cr.Description,
		})
	}

	seenCategories := make(map[string]struct{}, len(file.AddonCategories))
	for _, cat := range file.AddonCategories {
		if _, dup := seenCategories[cat.ID]; dup {
			return nil, fmt.Errorf("%w: addon category %q", ErrDuplicateEntry, cat.ID)
		}
		seenCategories[cat.ID] = struct{}{}
		group := AddonCategory{ID: cat.ID, Title: cat.Title}
		for _, item := range cat.Items {
			price, err := amount(item.Price, item.PriceLabel, "addon "+strconv.Quote(item.Name))
			if err != nil {
				return nil, err
			}
			addon := domain.Addon{
				Category:    cat.ID,
				Name:        item.Name,
				PriceLabel:  item.PriceLabel,
				Price:       price,
				Description: item.Description,
			}
			if _, dup := c.addonIdx[addon.Key()]; dup {
				return nil, fmt.Errorf("%w: addon %q in %q", ErrDuplicateEntry, item.Name, cat.ID)
			}
			c.addonIdx[addon.Key()] = addon
			group.Addons = append(group.Addons, addon)
		}
		c.categories = append(c.categories, group)
	}

	for _, r := range file.RushTiers {
		if _, dup := c.rushIdx[r.ID]; dup {
			return nil, fmt.Errorf("%w: rush tier %q", ErrDuplicateEntry, r.ID)
		}
		c.rushIdx[r.ID] = len(c.rush)
		c.rush = append(c.rush, domain.RushTier{
			ID:         r.ID,
			Name:       r.Name,
			FeeLabel:   r.FeeLabel,
			Multiplier: decimal.NewFromFloat(r.Multiplier),
			LeadTime:   r.LeadTime,
		})
	}

	for _, p := range file.Packaging {
		if _, dup := c.packagingIdx[p.Title]; dup {
			return nil, fmt.Errorf("%w: packaging %q", ErrDuplicateEntry, p.Title)
		}
		price, err := amount(p.Price, p.PriceLabel, "packaging "+strconv.Quote(p.Title))
		if err != nil {
			return nil, err
		}
		c.packagingIdx[p.Title] = len(c.packaging)
		c.packaging = append(c.packaging, domain.Packaging{
			Title:       p.Title,
			PriceLabel:  p.PriceLabel,
			Price:       price,
			IsUpgrade:   p.Upgrade,
			Description: p.Description,
		})
	}

	rules := make([]domain.DiscountRule, 0, len(file.Discounts))
	for _, d := range file.Discounts {
		rules = append(rules, domain.DiscountRule{
			Code:      d.Code,
			Type:      domain.DiscountType(d.Type),
			Value:     decimal.NewFromFloat(d.Value),
			Threshold: decimal.NewFromFloat(d.Threshold),
			Exclusive: d.Exclusive,
			Label:     d.Label,
			Tag:       d.Tag,
		})
	}
	discounts, err := NewDiscountCatalog(rules)
	if err != nil {
		return nil, err
	}
	c.discounts = discounts

	return c, nil
}

// amount prefers an explicit price and falls back to the number in the label.
func amount(explicit *float64, label, item string) (decimal.Decimal, error) {
	if explicit != nil {
		return decimal.NewFromFloat(*explicit), nil
	}
	price := pricing.ParsePrice(label)
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s has negative price label %q", ErrInvalidCatalog, item, label)
	}
	return price, nil
}
