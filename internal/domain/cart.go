package domain

import "github.com/shopspring/decimal"

// Cart is the materialized view of a remote cart as last confirmed by the gateway.
type Cart struct {
	ID            string `json:"id"`
	CheckoutURL   string `json:"checkoutUrl"`
	TotalQuantity int    `json:"totalQuantity"`
	Lines         []Line `json:"lines"`
}

type Line struct {
	ID          string      `json:"id"`
	Quantity    int         `json:"quantity"`
	Merchandise Merchandise `json:"merchandise"`
}

// Merchandise is the read-only catalog projection attached to a line.
type Merchandise struct {
	VariantID     string `json:"variantId"`
	Title         string `json:"title"`
	UnitPrice     Money  `json:"unitPrice"`
	ProductTitle  string `json:"productTitle"`
	ProductHandle string `json:"productHandle"`
	ImageURL      string `json:"imageUrl,omitempty"`
	ImageAltText  string `json:"imageAltText,omitempty"`
}

type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// AmountString renders the amount with at least two decimal places and never
// fewer than the amount carries, so three-decimal currencies stay exact.
func (m Money) AmountString() string {
	places := int32(2)
	if e := -m.Amount.Exponent(); e > places {
		places = e
	}
	return m.Amount.StringFixed(places)
}

// LineQuantity sums line quantities. It should match TotalQuantity after every
// successful synchronization.
func (c Cart) LineQuantity() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// Total is the unit price times quantity.
func (l Line) Total() Money {
	return Money{
		Amount:       l.Merchandise.UnitPrice.Amount.Mul(decimal.NewFromInt(int64(l.Quantity))),
		CurrencyCode: l.Merchandise.UnitPrice.CurrencyCode,
	}
}

// Line returns the line with the given id.
func (c Cart) Line(id string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

// Subtotal returns unit price times quantity summed per currency code.
func (c Cart) Subtotal() []Money {
	var out []Money
	index := make(map[string]int)
	for _, l := range c.Lines {
		total := l.Total()
		if i, ok := index[total.CurrencyCode]; ok {
			out[i].Amount = out[i].Amount.Add(total.Amount)
			continue
		}
		index[total.CurrencyCode] = len(out)
		out = append(out, total)
	}
	return out
}

// Clone returns a deep copy so callers can hold on to it without sharing
// the synchronizer's backing array.
func (c Cart) Clone() Cart {
	out := c
	if c.Lines != nil {
		out.Lines = make([]Line, len(c.Lines))
		copy(out.Lines, c.Lines)
	}
	return out
}
