package billing

import (
	"slices"
	"time"
)

// BillableCount is the number of active items charged beyond the free one.
func BillableCount(active int) int {
	return max(0, active-1)
}

// SortByCreated orders items by creation time, oldest first, with the id as
// tie-breaker so the free item is deterministic.
func SortByCreated(items []ContentItem) {
	slices.SortStableFunc(items, func(a, b ContentItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

// ActiveItems returns the active items of items ordered oldest first.
func ActiveItems(items []ContentItem) []ContentItem {
	out := make([]ContentItem, 0, len(items))
	for _, it := range items {
		if it.Status == ContentActive {
			out = append(out, it)
		}
	}
	SortByCreated(out)
	return out
}

// LineItem is one row of a monthly statement.
type LineItem struct {
	Item  ContentItem
	Free  bool
	Price Money
}

// Statement is the monthly price breakdown shown to the company.
type Statement struct {
	Base      Money
	Items     []LineItem
	Total     Money
	RenewsAt  time.Time
	Trialing  bool
	EndsAtEnd bool // cancel_at_period_end is set
}

// NewStatement prices the active items of a company. The oldest item is free.
func NewStatement(sub *MonthlySubscription, items []ContentItem) Statement {
	active := ActiveItems(items)
	st := Statement{Base: BasePrice, Items: make([]LineItem, 0, len(active))}
	for i, it := range active {
		li := LineItem{Item: it, Free: i == 0, Price: Money{Currency: Currency}}
		if !li.Free {
			li.Price = AdditionalPrice
		}
		st.Items = append(st.Items, li)
	}
	st.Total = BasePrice.Add(AdditionalPrice, BillableCount(len(active)))
	if sub != nil {
		st.RenewsAt = sub.CurrentPeriodEnd
		st.Trialing = sub.Status == SubscriptionTrialing
		st.EndsAtEnd = sub.CancelAtPeriodEnd
	}
	return st
}
