package httpserver

import (
	"testing"

	"github.com/shopspring/decimal"

	"storefront-cart/internal/domain"
)

func TestCartViewKeepsGatewayPrecision(t *testing.T) {
	cart := domain.Cart{
		ID:            "gid://shopify/Cart/1",
		TotalQuantity: 3,
		Lines: []domain.Line{{
			ID:       "gid://shopify/CartLine/1",
			Quantity: 3,
			Merchandise: domain.Merchandise{
				VariantID: "gid://shopify/ProductVariant/1",
				UnitPrice: domain.Money{Amount: decimal.RequireFromString("1.235"), CurrencyCode: "KWD"},
			},
		}},
	}

	view := toCartView(cart)
	if len(view.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(view.Lines))
	}
	if got := view.Lines[0].UnitPrice.Amount; got != "1.235" {
		t.Errorf("unit price: expected 1.235, got %s", got)
	}
	if got := view.Lines[0].LineTotal.Amount; got != "3.705" {
		t.Errorf("line total: expected 3.705, got %s", got)
	}
	if len(view.Subtotal) != 1 || view.Subtotal[0].Amount != "3.705" || view.Subtotal[0].CurrencyCode != "KWD" {
		t.Errorf("subtotal: expected 3.705 KWD, got %+v", view.Subtotal)
	}
}

func TestCartViewPadsToTwoDecimals(t *testing.T) {
	m := toMoneyView(domain.Money{Amount: decimal.RequireFromString("10.0"), CurrencyCode: "INR"})
	if m.Amount != "10.00" {
		t.Errorf("expected 10.00, got %s", m.Amount)
	}
}
