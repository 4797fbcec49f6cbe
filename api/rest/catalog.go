package rest

import (
	"net/http"

	"github.com/ftfvalues/tradecalc/game/item"
	"github.com/ftfvalues/tradecalc/game/valuation"
	"github.com/ftfvalues/tradecalc/resource"
	"github.com/gin-gonic/gin"
)

// CatalogHandler serves the item picker and catalog summaries.
type CatalogHandler struct {
	res *resource.Loader
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(res *resource.Loader) *CatalogHandler {
	return &CatalogHandler{res: res}
}

type catalogItem struct {
	item.Definition
	StabilityTag  item.StabilityTag `json:"stability_tag"`
	SplitOverride bool              `json:"split_override,omitempty"`
	FullValue     bool              `json:"full_value,omitempty"`
}

// List returns items filtered by rarity and a name substring. An unloaded
// catalog yields an empty list alongside its status.
// GET /api/catalog?rarity=epic&q=sword
func (h *CatalogHandler) List(c *gin.Context) {
	cat := h.res.Catalog()
	reg := h.res.Exceptions()
	defs := cat.Filter(c.Query("rarity"), c.Query("q"))
	items := make([]catalogItem, 0, len(defs))
	for _, d := range defs {
		items = append(items, catalogItem{
			Definition:    d,
			StabilityTag:  d.StabilityTag(),
			SplitOverride: reg.SplitOverride(d.Name),
			FullValue:     reg.FullValue(d.Name),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"status": h.res.Status().Status,
		"items":  items,
		"count":  len(items),
	})
}

// Status reports the last load attempt.
// GET /api/catalog/status
func (h *CatalogHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.res.Status())
}

type rarityTotalView struct {
	Rarity    item.Rarity `json:"rarity"`
	Count     int         `json:"count"`
	FV        float64     `json:"fv"`
	HV        float64     `json:"hv"`
	FVDisplay string      `json:"fv_display"`
	HVDisplay string      `json:"hv_display"`
}

func newRarityTotalView(t item.RarityTotal) rarityTotalView {
	return rarityTotalView{
		Rarity:    t.Rarity,
		Count:     t.Count,
		FV:        t.Value,
		HV:        valuation.Convert(t.Value, valuation.UnitCompressed),
		FVDisplay: valuation.FormatForDisplay(t.Value, valuation.UnitStandard, false),
		HVDisplay: valuation.FormatForDisplay(t.Value, valuation.UnitCompressed, false),
	}
}

// Summary totals the catalog per rarity in both units.
// GET /api/catalog/summary
func (h *CatalogHandler) Summary(c *gin.Context) {
	if !h.res.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "catalog not loaded",
			"code":   "catalog_unavailable",
			"status": h.res.Status(),
		})
		return
	}
	s := h.res.Catalog().Summarize()
	rarities := make([]rarityTotalView, len(s.Rarities))
	for i, r := range s.Rarities {
		rarities[i] = newRarityTotalView(r)
	}
	c.JSON(http.StatusOK, gin.H{
		"rarities":   rarities,
		"seasonals":  newRarityTotalView(s.Seasonals),
		"total":      newRarityTotalView(item.RarityTotal{Rarity: "total", Count: s.ItemCount, Value: s.Total}),
		"item_count": s.ItemCount,
	})
}
