package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starrysand/api/internal/domain"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.False(t, c.Status().Busy)
	assert.Len(t, c.Sizes(), 5)
	assert.Len(t, c.Crafts(), 3)
	assert.Len(t, c.RushTiers(), 3)
	assert.Len(t, c.PackagingOptions(), 2)
	assert.Equal(t, 5, c.Discounts().Len())

	pocket, ok := c.Size("随身卡包级")
	require.True(t, ok)
	assert.True(t, pocket.Price.Equal(decimal.NewFromInt(48)), "price parsed from label, got %s", pocket.Price)
	assert.True(t, pocket.IsSmallSize)
	assert.True(t, pocket.TriggerWish)

	double, ok := c.Craft("双层流麻")
	require.True(t, ok)
	assert.Equal(t, 2, double.Multiplier)
	assert.True(t, double.Price.IsZero())

	flip, ok := c.Craft(" 翻盖款 ")
	require.True(t, ok, "lookups trim whitespace")
	assert.True(t, flip.Price.Equal(decimal.NewFromInt(15)))

	mirror, ok := c.Addon("Special", "双面幻境·光影镜")
	require.True(t, ok)
	assert.True(t, mirror.Price.Equal(decimal.NewFromInt(20)))

	_, ok = c.Addon("Collage", "双面幻境·光影镜")
	assert.False(t, ok, "addon identity includes the category")

	rush, ok := c.RushTier("rush-priority")
	require.True(t, ok)
	assert.Equal(t, "0.3", rush.Multiplier.String())

	gift, ok := c.Packaging("【星尘礼遇单元】")
	require.True(t, ok)
	assert.True(t, gift.IsUpgrade)
	assert.True(t, gift.Price.Equal(decimal.NewFromInt(15)))

	categories := c.AddonCategories()
	require.Len(t, categories, 5)
	assert.Equal(t, "Visual Effect", categories[0].ID)
	assert.Equal(t, "Final Touch", categories[4].ID)
}

func TestDefaultDiscountRules(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tests := []struct {
		input     string
		code      string
		typ       domain.DiscountType
		value     string
		exclusive bool
	}{
		{"wolf", "WOLF", domain.DiscountPercent, "0.9", true},
		{" vip666 ", "VIP666", domain.DiscountPercent, "0.8", true},
		{"New", "NEW", domain.DiscountPercent, "0.7", true},
		{"minus5", "MINUS5", domain.DiscountFixed, "5", false},
		{"ＲＩＣＨ", "RICH", domain.DiscountThreshold, "50", false},
	}
	for _, tc := range tests {
		rule, ok := c.Discounts().Lookup(tc.input)
		require.True(t, ok, tc.input)
		assert.Equal(t, tc.code, rule.Code)
		assert.Equal(t, tc.typ, rule.Type)
		assert.Equal(t, tc.value, rule.Value.String())
		assert.Equal(t, tc.exclusive, rule.Exclusive)
	}

	rich, _ := c.Discounts().Lookup("RICH")
	assert.Equal(t, "200", rich.Threshold.String())

	_, ok := c.Discounts().Lookup("NOPE")
	assert.False(t, ok)
	_, ok = c.Discounts().Lookup("")
	assert.False(t, ok)
}

func TestWithSiteBusyLeavesOriginal(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	busy := c.WithSiteBusy(true)
	assert.True(t, busy.Status().Busy)
	assert.False(t, c.Status().Busy)
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "empty",
			yaml: "",
			want: ErrInvalidCatalog,
		},
		{
			name: "unknown field",
			yaml: "sizes:\n  - name: a\n    price_label: 1r\n    colour: red\n",
			want: ErrInvalidCatalog,
		},
		{
			name: "no sizes",
			yaml: "crafts: []\n",
			want: ErrInvalidCatalog,
		},
		{
			name: "duplicate size",
			yaml: "sizes:\n  - name: a\n    price_label: 1r\n  - name: a\n    price_label: 2r\n",
			want: ErrDuplicateEntry,
		},
		{
			name: "craft multiplier below one",
			yaml: "sizes:\n  - name: a\n    price_label: 1r\ncrafts:\n  - name: c\n    multiplier: 0\n",
			want: ErrInvalidCatalog,
		},
		{
			name: "negative addon price label",
			yaml: "sizes:\n  - name: a\naddon_categories:\n  - id: X\n    items:\n      - name: n\n        price_label: -5r\n",
			want: ErrInvalidCatalog,
		},
		{
			name: "negative packaging price label",
			yaml: "sizes:\n  - name: a\npackaging:\n  - title: box\n    price_label: \"-3r\"\n",
			want: ErrInvalidCatalog,
		},
		{
			name: "duplicate addon in category",
			yaml: "sizes:\n  - name: a\naddon_categories:\n  - id: X\n    items:\n      - name: n\n      - name: n\n",
			want: ErrDuplicateEntry,
		},
		{
			name: "duplicate normalized code",
			yaml: "sizes:\n  - name: a\ndiscounts:\n  - {code: wolf, type: percent, value: 0.9, label: a}\n  - {code: WOLF, type: percent, value: 0.8, label: b}\n",
			want: ErrDuplicateDiscountCode,
		},
		{
			name: "percent above one",
			yaml: "sizes:\n  - name: a\ndiscounts:\n  - {code: X, type: percent, value: 1.5, label: a}\n",
			want: ErrInvalidDiscountRule,
		},
		{
			name: "threshold without minimum",
			yaml: "sizes:\n  - name: a\ndiscounts:\n  - {code: X, type: threshold, value: 5, label: a}\n",
			want: ErrInvalidDiscountRule,
		},
		{
			name: "unknown discount type",
			yaml: "sizes:\n  - name: a\ndiscounts:\n  - {code: X, type: bogo, value: 1, label: a}\n",
			want: ErrInvalidCatalog,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "site:\n  busy: true\nsizes:\n  - name: 迷你\n    price_label: \"+20r\"\n    small_size: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.Status().Busy)
	size, ok := c.Size("迷你")
	require.True(t, ok)
	assert.Equal(t, "20", size.Price.String())
	assert.Equal(t, 0, c.Discounts().Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := Load("")
	require.NoError(t, err)
	assert.Len(t, def.Sizes(), 5)
}

func TestNewDiscountCatalogNormalizesCodes(t *testing.T) {
	c, err := NewDiscountCatalog([]domain.DiscountRule{
		{Code: " minus5 ", Type: domain.DiscountFixed, Value: decimal.NewFromInt(5), Label: "立减金"},
	})
	require.NoError(t, err)

	rules := c.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "MINUS5", rules[0].Code)

	var nilCatalog *DiscountCatalog
	_, ok := nilCatalog.Lookup("MINUS5")
	assert.False(t, ok)
}
