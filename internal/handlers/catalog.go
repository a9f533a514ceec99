package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starrysand/api/internal/catalog"
	"github.com/starrysand/api/internal/domain"
	"github.com/starrysand/api/internal/platform/httpx"
)

// CatalogSource is the read side of the product catalog.
type CatalogSource interface {
	Status() domain.SiteStatus
	Sizes() []domain.Size
	Crafts() []domain.Craft
	AddonCategories() []catalog.AddonCategory
	RushTiers() []domain.RushTier
	PackagingOptions() []domain.Packaging
}

// CatalogHandlers serves the configurator catalog. Discount codes are never listed.
type CatalogHandlers struct {
	source CatalogSource
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(source CatalogSource) *CatalogHandlers {
	return &CatalogHandlers{source: source}
}

// Routes wires the public catalog endpoint.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/catalog", h.getCatalog)
}

type addonCategoryPayload struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Addons []addonPayload `json:"addons"`
}

type catalogResponse struct {
	Site struct {
		Busy          bool `json:"busy"`
		RushAvailable bool `json:"rushAvailable"`
	} `json:"site"`
	Sizes           []sizePayload          `json:"sizes"`
	Crafts          []craftPayload         `json:"crafts"`
	AddonCategories []addonCategoryPayload `json:"addonCategories"`
	RushTiers       []rushPayload          `json:"rushTiers"`
	Packaging       []packagingPayload     `json:"packaging"`
}

func (h *CatalogHandlers) getCatalog(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	var resp catalogResponse
	busy := h.source.Status().Busy
	resp.Site.Busy = busy
	resp.Site.RushAvailable = !busy

	for _, s := range h.source.Sizes() {
		resp.Sizes = append(resp.Sizes, newSizePayload(s))
	}
	for _, c := range h.source.Crafts() {
		resp.Crafts = append(resp.Crafts, newCraftPayload(c))
	}
	for _, category := range h.source.AddonCategories() {
		payload := addonCategoryPayload{ID: category.ID, Title: category.Title, Addons: make([]addonPayload, 0, len(category.Addons))}
		for _, addon := range category.Addons {
			payload.Addons = append(payload.Addons, newAddonPayload(addon))
		}
		resp.AddonCategories = append(resp.AddonCategories, payload)
	}
	for _, tier := range h.source.RushTiers() {
		resp.RushTiers = append(resp.RushTiers, newRushPayload(tier))
	}
	for _, p := range h.source.PackagingOptions() {
		resp.Packaging = append(resp.Packaging, newPackagingPayload(p))
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, resp)
}
