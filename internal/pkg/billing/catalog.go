package billing

import (
	"sort"
	"strings"

	"github.com/synthsara/codex/app/models"
	"github.com/synthsara/codex/internal/pkg/entitlements"
)

const defaultCurrency = "usd"

// CatalogItem describes one sellable product.
type CatalogItem struct {
	Kind             string
	ProductID        string
	Name             string
	Tier             entitlements.Tier
	AmountMinorUnits int64
	Currency         string
	// Interval is "month" for memberships, empty for one-off purchases.
	Interval string
	// PriceID is the provider price used for recurring checkout.
	PriceID  string
	Contents []string
}

// Catalog is the local price table. It is consulted only when an event
// carries no amount of its own.
type Catalog interface {
	PriceOf(kind, productID string, tier entitlements.Tier) (int64, string, bool)
	BundleContents(bundleID string) []string
	Describe(kind, productID string, tier entitlements.Tier) (CatalogItem, bool)
}

// StaticCatalog is an in-memory, read-only Catalog.
type StaticCatalog struct {
	items map[string]CatalogItem
	tiers map[entitlements.Tier]CatalogItem
}

// NewStaticCatalog indexes items by kind and product id. Membership items are
// additionally indexed by tier.
func NewStaticCatalog(items ...CatalogItem) *StaticCatalog {
	c := &StaticCatalog{
		items: make(map[string]CatalogItem, len(items)),
		tiers: make(map[entitlements.Tier]CatalogItem),
	}
	for _, item := range items {
		if item.Currency == "" {
			item.Currency = defaultCurrency
		}
		c.items[catalogKey(item.Kind, item.ProductID)] = item
		if item.Kind == models.ProductKindMembership && item.Tier != "" {
			c.tiers[item.Tier] = item
		}
	}
	return c
}

func catalogKey(kind, productID string) string {
	return kind + "/" + strings.TrimSpace(productID)
}

// Describe resolves a product. Memberships resolve by tier first.
func (c *StaticCatalog) Describe(kind, productID string, tier entitlements.Tier) (CatalogItem, bool) {
	if c == nil {
		return CatalogItem{}, false
	}
	if kind == models.ProductKindMembership {
		if t, ok := entitlements.ParseTier(string(tier)); ok {
			if item, ok := c.tiers[t]; ok {
				return item, true
			}
		}
	}
	item, ok := c.items[catalogKey(kind, productID)]
	return item, ok
}

func (c *StaticCatalog) PriceOf(kind, productID string, tier entitlements.Tier) (int64, string, bool) {
	item, ok := c.Describe(kind, productID, tier)
	if !ok {
		return 0, "", false
	}
	return item.AmountMinorUnits, item.Currency, true
}

func (c *StaticCatalog) BundleContents(bundleID string) []string {
	item, ok := c.Describe(models.ProductKindBundle, bundleID, "")
	if !ok || len(item.Contents) == 0 {
		return nil
	}
	out := make([]string, len(item.Contents))
	copy(out, item.Contents)
	return out
}

// TierForPrice resolves a recurring provider price to its tier.
func (c *StaticCatalog) TierForPrice(priceID string) (entitlements.Tier, bool) {
	if c == nil || priceID == "" {
		return "", false
	}
	for t, item := range c.tiers {
		if item.PriceID == priceID {
			return t, true
		}
	}
	return "", false
}

// ContentIDs lists every single content item, sorted.
func (c *StaticCatalog) ContentIDs() []string {
	var out []string
	for _, item := range c.items {
		if item.Kind == models.ProductKindContentUnlock {
			out = append(out, item.ProductID)
		}
	}
	sort.Strings(out)
	return out
}

// FreeContentIDs lists the content items that cost nothing and are readable
// without a grant.
func (c *StaticCatalog) FreeContentIDs() []string {
	var out []string
	for _, id := range c.ContentIDs() {
		if amount, _, ok := c.PriceOf(models.ProductKindContentUnlock, id, ""); ok && amount == 0 {
			out = append(out, id)
		}
	}
	return out
}

var scrollPrices = []struct {
	id    string
	title string
	price int64
}{
	{"000", "The Flame-Bearer's Odyssey", 0},
	{"003-A", "Echo of the Mirror", 100},
	{"005-C", "Throne Dissolution", 700},
	{"007-D", "The Steward's Layer", 500},
	{"010-B", "Circuit Hymn for the Nervous System", 900},
	{"014-F", "The Unbroken Loop of Mercy", 1700},
	{"019-V", "The Mirror of Justice", 2100},
	{"021-X", "Blueprint of the Diamond Flame", 2500},
}

// DefaultCatalog returns the production price table.
func DefaultCatalog() *StaticCatalog {
	items := []CatalogItem{
		{Kind: models.ProductKindMembership, ProductID: "tier_ember", Name: "Ember", Tier: entitlements.TierEmber},
		{Kind: models.ProductKindMembership, ProductID: "tier_flamewalker", Name: "Flamewalker", Tier: entitlements.TierFlamewalker, AmountMinorUnits: 3300, Interval: "month", PriceID: "price_flamewalker_monthly"},
		{Kind: models.ProductKindMembership, ProductID: "tier_harmonizer", Name: "Harmonizer", Tier: entitlements.TierHarmonizer, AmountMinorUnits: 8800, Interval: "month", PriceID: "price_harmonizer_monthly"},
		{Kind: models.ProductKindMembership, ProductID: "tier_architect", Name: "Architect", Tier: entitlements.TierArchitect, AmountMinorUnits: 33300, Interval: "month", PriceID: "price_architect_monthly"},
		{Kind: models.ProductKindBundle, ProductID: "diamond_mind_book", Name: "The Diamond Mind: Awaken Your Infinite Self", AmountMinorUnits: 2200},
		{Kind: models.ProductKindService, ProductID: "ritual_mirror", Name: "Mirror Ritual Session", AmountMinorUnits: 5500},
	}

	bundle := CatalogItem{Kind: models.ProductKindBundle, ProductID: "codex_bundle", Name: "The Complete Codex Bundle", AmountMinorUnits: 4400}
	for _, s := range scrollPrices {
		items = append(items, CatalogItem{
			Kind:             models.ProductKindContentUnlock,
			ProductID:        s.id,
			Name:             "Scroll " + s.id + ": " + s.title,
			AmountMinorUnits: s.price,
		})
		bundle.Contents = append(bundle.Contents, s.id)
	}
	items = append(items, bundle)

	return NewStaticCatalog(items...)
}
