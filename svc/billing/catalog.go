package billing

import "slices"

// Currency of every price in the catalog.
const Currency = "jpy"

var (
	// BasePrice is the monthly price of the base plan.
	BasePrice = Money{Amount: 3900, Currency: Currency}
	// AdditionalPrice is the monthly price of each content item beyond the free one.
	AdditionalPrice = Money{Amount: 1500, Currency: Currency}
)

// Content describes a product in the catalog.
type Content struct {
	Type        ContentType
	Name        string
	Description string
	URL         string
	Price       Money
}

var catalog = []Content{
	{
		Type:        ContentSchedule,
		Name:        "AI予定秘書",
		Description: "スケジュール管理をAIがサポート",
		URL:         "https://lp-production-9e2c.up.railway.app/schedule",
		Price:       AdditionalPrice,
	},
	{
		Type:        ContentAccounting,
		Name:        "AI経理秘書",
		Description: "経理作業をAIが効率化",
		URL:         "https://lp-production-9e2c.up.railway.app/accounting",
		Price:       AdditionalPrice,
	},
	{
		Type:        ContentTask,
		Name:        "AIタスクコンシェルジュ",
		Description: "タスク管理をAIが最適化",
		URL:         "https://lp-production-9e2c.up.railway.app/task",
		Price:       AdditionalPrice,
	},
}

// Catalog returns every content product in menu order.
func Catalog() []Content {
	return slices.Clone(catalog)
}

// LookupContent returns the catalog entry for t.
func LookupContent(t ContentType) (Content, bool) {
	for _, c := range catalog {
		if c.Type == t {
			return c, true
		}
	}
	return Content{}, false
}

// Available returns the catalog entries not present in active, in menu order.
func Available(active []ContentItem) []Content {
	out := make([]Content, 0, len(catalog))
	for _, c := range catalog {
		taken := slices.ContainsFunc(active, func(item ContentItem) bool {
			return item.ContentType == c.Type && item.Status == ContentActive
		})
		if !taken {
			out = append(out, c)
		}
	}
	return out
}

// DisplayName returns the catalog name of t, or t itself for unknown types.
func DisplayName(t ContentType) string {
	if c, ok := LookupContent(t); ok {
		return c.Name
	}
	return string(t)
}
