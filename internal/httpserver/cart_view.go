package httpserver

import "storefront-cart/internal/domain"

type cartResponse struct {
	Loading bool      `json:"loading"`
	Cart    *cartView `json:"cart"`
}

type cartView struct {
	ID            string      `json:"id"`
	CheckoutURL   string      `json:"checkoutUrl"`
	TotalQuantity int         `json:"totalQuantity"`
	Lines         []lineView  `json:"lines"`
	Subtotal      []moneyView `json:"subtotal"`
}

type lineView struct {
	ID            string    `json:"id"`
	Quantity      int       `json:"quantity"`
	VariantID     string    `json:"variantId"`
	Title         string    `json:"title,omitempty"`
	ProductTitle  string    `json:"productTitle,omitempty"`
	ProductHandle string    `json:"productHandle,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	ImageAltText  string    `json:"imageAltText,omitempty"`
	UnitPrice     moneyView `json:"unitPrice"`
	LineTotal     moneyView `json:"lineTotal"`
}

// moneyView keeps amounts as decimal strings at the precision the gateway sent.
type moneyView struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

func toMoneyView(m domain.Money) moneyView {
	return moneyView{Amount: m.AmountString(), CurrencyCode: m.CurrencyCode}
}

func toCartView(cart domain.Cart) *cartView {
	lines := make([]lineView, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		m := l.Merchandise
		lines = append(lines, lineView{
			ID:            l.ID,
			Quantity:      l.Quantity,
			VariantID:     m.VariantID,
			Title:         m.Title,
			ProductTitle:  m.ProductTitle,
			ProductHandle: m.ProductHandle,
			ImageURL:      m.ImageURL,
			ImageAltText:  m.ImageAltText,
			UnitPrice:     toMoneyView(m.UnitPrice),
			LineTotal:     toMoneyView(l.Total()),
		})
	}
	subtotal := make([]moneyView, 0, 1)
	for _, m := range cart.Subtotal() {
		subtotal = append(subtotal, toMoneyView(m))
	}
	return &cartView{
		ID:            cart.ID,
		CheckoutURL:   cart.CheckoutURL,
		TotalQuantity: cart.TotalQuantity,
		Lines:         lines,
		Subtotal:      subtotal,
	}
}
