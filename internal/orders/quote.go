package orders

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// Quote is the priced cart returned by the pricing engine.
type Quote struct {
	Currency string      `json:"currency"`
	Lines    []QuoteLine `json:"lines"`
}

type QuoteLine struct {
	UnitID     string          `json:"unitId"`
	Qty        int64           `json:"qty"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
	Name       string          `json:"name,omitempty"`
	SKU        string          `json:"sku,omitempty"`
}

// Priced is a quote turned into order lines and totals.
type Priced struct {
	Currency string          `json:"currency"`
	Items    []Item          `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

type lineSnapshot struct {
	Name string `json:"name,omitempty"`
	SKU  string `json:"sku,omitempty"`
}

// Price derives line totals and order totals from q. Amounts are rounded to cents.
func Price(q Quote) (Priced, error) {
	if q.Currency == "" {
		return Priced{}, InvalidArgument("currency is required")
	}
	if len(q.Lines) == 0 {
		return Priced{}, InvalidArgument("cart is empty")
	}
	p := Priced{Currency: q.Currency, Subtotal: decimal.Zero, Total: decimal.Zero}
	for _, l := range q.Lines {
		if l.UnitID == "" {
			return Priced{}, InvalidArgument("line without unit id")
		}
		if l.Qty <= 0 {
			return Priced{}, InvalidArgument("unit %s: qty must be positive", l.UnitID)
		}
		if l.FinalPrice.IsNegative() || l.BasePrice.IsNegative() {
			return Priced{}, InvalidArgument("unit %s: negative price", l.UnitID)
		}
		qty := decimal.NewFromInt(l.Qty)
		unit := l.FinalPrice.Round(2)
		base := l.BasePrice.Round(2)
		if base.IsZero() {
			base = unit
		}
		snap, err := json.Marshal(lineSnapshot{Name: l.Name, SKU: l.SKU})
		if err != nil {
			return Priced{}, err
		}
		item := Item{
			UnitID:    l.UnitID,
			Qty:       l.Qty,
			UnitPrice: unit,
			BasePrice: base,
			LineTotal: unit.Mul(qty),
			Snapshot:  snap,
		}
		p.Items = append(p.Items, item)
		p.Subtotal = p.Subtotal.Add(base.Mul(qty))
		p.Total = p.Total.Add(item.LineTotal)
	}
	p.Discount = p.Subtotal.Sub(p.Total)
	if p.Discount.IsNegative() {
		p.Discount = decimal.Zero
		p.Subtotal = p.Total
	}
	return p, nil
}

// SortedUnits returns the unit ids of quantities in ascending order, the order in
// which counters are locked.
func SortedUnits(quantities map[string]int64) []string {
	units := make([]string, 0, len(quantities))
	for u := range quantities {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}
