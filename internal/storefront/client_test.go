package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-cart/internal/config"
	"storefront-cart/internal/domain"
	"storefront-cart/internal/storefront/storefronttest"
)

func newTestClient(t *testing.T, endpoint string, linesFirst int) *Client {
	t.Helper()
	c, err := NewClient(config.StorefrontConfig{
		AccessToken: storefronttest.Token,
		Timeout:     2 * time.Second,
		LinesFirst:  linesFirst,
	}, zap.NewNop(), WithEndpoint(endpoint))
	require.NoError(t, err)
	return c
}

func TestEndpointFor(t *testing.T) {
	assert.Equal(t, "https://demo.myshopify.com/api/2023-10/graphql.json", endpointFor("demo.myshopify.com", "2023-10"))
	assert.Equal(t, "http://127.0.0.1:9/api/2024-01/graphql.json", endpointFor("http://127.0.0.1:9/", "2024-01"))
	assert.Equal(t, "https://shop/api/2023-10/graphql.json", endpointFor(" shop ", ""))
}

func TestParseDocumentsDeclareVariables(t *testing.T) {
	c := newTestClient(t, "http://unused", 10)
	for _, doc := range []*document{c.createDoc, c.cartDoc, c.addDoc, c.removeDoc, c.updateDoc} {
		assert.True(t, doc.variables["linesFirst"], doc.name)
		assert.True(t, doc.variables["linesAfter"], doc.name)
	}
	assert.Equal(t, "mutation", string(c.addDoc.kind))
	assert.Equal(t, "query", string(c.cartDoc.kind))
	assert.Error(t, c.cartDoc.bind(map[string]interface{}{"cartId": "x"}))
}

func TestParseDocumentRejectsBrokenDocument(t *testing.T) {
	_, err := parseDocument("Cart", "query Cart($id: ID!) { cart(id: $id) { id ")
	assert.Error(t, err)
	_, err = parseDocument("Other", CartQuery)
	assert.Error(t, err)
}

func TestCartLifecycle(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv.URL, 10)
	ctx := context.Background()

	created, err := c.CreateCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Cart/1", created.ID)
	assert.Equal(t, 0, created.TotalQuantity)
	assert.Empty(t, created.Lines)
	assert.NotEmpty(t, created.CheckoutURL)

	added, err := c.AddLines(ctx, created.ID, []CartLineInput{{MerchandiseID: "gid://shopify/ProductVariant/9", Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, added.Lines, 1)
	l := added.Lines[0]
	assert.Equal(t, 1, added.TotalQuantity)
	assert.Equal(t, "gid://shopify/ProductVariant/9", l.Merchandise.VariantID)
	assert.Equal(t, "INR", l.Merchandise.UnitPrice.CurrencyCode)
	assert.Equal(t, "10", l.Merchandise.UnitPrice.Amount.String())
	assert.Equal(t, "https://cdn.example.com/p.png", l.Merchandise.ImageURL)

	updated, err := c.UpdateLines(ctx, created.ID, []CartLineUpdateInput{{ID: l.ID, Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.TotalQuantity)

	fetched, err := c.GetCart(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, fetched)

	removed, err := c.RemoveLines(ctx, created.ID, []string{l.ID})
	require.NoError(t, err)
	assert.Empty(t, removed.Lines)
	assert.Equal(t, 0, removed.TotalQuantity)
}

func TestGetCartNotFound(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv.URL, 10)

	_, err := c.GetCart(context.Background(), "gid://shopify/Cart/404")
	assert.True(t, errors.Is(err, domain.ErrCartNotFound), "got %v", err)
}

func TestGetCartPagesAllLines(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	id := srv.AddCart(map[string]int{"v1": 1, "v2": 2, "v3": 3, "v4": 4, "v5": 5})
	c := newTestClient(t, srv.URL, 2)

	cart, err := c.GetCart(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 5)
	assert.Equal(t, 15, cart.TotalQuantity)
	assert.Equal(t, cart.TotalQuantity, cart.LineQuantity())
	assert.Equal(t, 3, srv.Calls("Cart"))
}

func TestMutationPagesAllLines(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	id := srv.AddCart(map[string]int{"v1": 1, "v2": 1, "v3": 1})
	c := newTestClient(t, srv.URL, 2)

	cart, err := c.AddLines(context.Background(), id, []CartLineInput{{MerchandiseID: "v4", Quantity: 1}})
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 4)
	assert.Equal(t, 1, srv.Calls("Cart"))
}

func TestUserErrorsAreRejections(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	srv.SetStock("v1", 2)
	id := srv.AddCart(map[string]int{"v1": 1})
	c := newTestClient(t, srv.URL, 10)

	cart, err := c.GetCart(context.Background(), id)
	require.NoError(t, err)
	_, err = c.UpdateLines(context.Background(), id, []CartLineUpdateInput{{ID: cart.Lines[0].ID, Quantity: 5}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGatewayRejected))
	assert.Contains(t, err.Error(), "Only 2 items")

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "NOT_ENOUGH_STOCK", rejected.UserErrors[0].Code)
}

func TestTransportFailuresAreGatewayErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"malformed": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		},
		"graphql errors": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"errors":[{"message":"Throttled"}]}`))
		},
		"null data": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":null}`))
		},
		"null payload": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"cartCreate":null}}`))
		},
		"no cart no errors": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"cartCreate":{"cart":null,"userErrors":[]}}}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c := newTestClient(t, srv.URL, 10)
			_, err := c.CreateCart(context.Background())
			assert.True(t, errors.Is(err, domain.ErrGatewayError), "got %v", err)
		})
	}
}

func TestTimeoutIsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.CreateCart(ctx)
	assert.True(t, errors.Is(err, domain.ErrGatewayError), "got %v", err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestMalformedCartIsGatewayError(t *testing.T) {
	body := `{"data":{"cart":{"id":"gid://shopify/Cart/1","totalQuantity":2,"lines":{"pageInfo":{"hasNextPage":false},"edges":[
		{"node":{"id":"l1","quantity":1,"merchandise":{"id":"v1","priceV2":{"amount":"1.0","currencyCode":"INR"}}}},
		{"node":{"id":"l1","quantity":1,"merchandise":{"id":"v1","priceV2":{"amount":"1.0","currencyCode":"INR"}}}}
	]}}}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, 10)

	_, err := c.GetCart(context.Background(), "gid://shopify/Cart/1")
	assert.True(t, errors.Is(err, domain.ErrGatewayError), "got %v", err)
	assert.Contains(t, err.Error(), "duplicate line")
}

func TestZeroQuantityLinesAreDropped(t *testing.T) {
	p := &cartPayload{ID: "c", TotalQuantity: 1}
	require.NoError(t, json.Unmarshal([]byte(`{"edges":[
		{"node":{"id":"a","quantity":0,"merchandise":{"id":"v1"}}},
		{"node":{"id":"b","quantity":1,"merchandise":{"id":"v2"}}}
	]}`), &p.Lines))
	cart, err := toDomainCart("Cart", p, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "b", cart.Lines[0].ID)
}

func TestRequestBindsVariables(t *testing.T) {
	var got graphQLRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, storefronttest.Token, r.Header.Get(accessTokenHeader))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"cartLinesRemove":{"cart":{"id":"c","lines":{"edges":[]}},"userErrors":[]}}}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, 10)

	hostile := `x"]) { cart { id } } #`
	_, err := c.RemoveLines(context.Background(), "gid://shopify/Cart/1", []string{hostile})
	require.NoError(t, err)
	assert.Equal(t, "CartLinesRemove", got.OperationName)
	assert.False(t, strings.Contains(got.Query, hostile))
	assert.Equal(t, []interface{}{hostile}, got.Variables["lineIds"])
	assert.Equal(t, float64(10), got.Variables["linesFirst"])
}

func TestCartVanishingWhilePaging(t *testing.T) {
	page := `{"id":"gid://shopify/Cart/1","totalQuantity":1,"lines":{"pageInfo":{"hasNextPage":true,"endCursor":"1"},"edges":[
		{"node":{"id":"l1","quantity":1,"merchandise":{"id":"v1","priceV2":{"amount":"1.0","currencyCode":"INR"}}}}
	]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch {
		case req.OperationName == "CartLinesRemove":
			_, _ = w.Write([]byte(`{"data":{"cartLinesRemove":{"cart":` + page + `,"userErrors":[]}}}`))
		case req.Variables["linesAfter"] == nil:
			_, _ = w.Write([]byte(`{"data":{"cart":` + page + `}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"cart":null}}`))
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, 1)

	_, err := c.RemoveLines(context.Background(), "gid://shopify/Cart/1", []string{"l2"})
	assert.True(t, errors.Is(err, domain.ErrGatewayError), "got %v", err)
	assert.False(t, errors.Is(err, domain.ErrCartNotFound))

	_, err = c.GetCart(context.Background(), "gid://shopify/Cart/1")
	assert.True(t, errors.Is(err, domain.ErrCartNotFound), "got %v", err)
}

func TestStaleCursorPastRemovedLines(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	id := srv.AddCart(map[string]int{"v1": 1, "v2": 1})
	c := newTestClient(t, srv.URL, 10)

	payload, err := c.cartPage(context.Background(), id, "7")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Empty(t, payload.Lines.Edges)
	assert.False(t, payload.Lines.PageInfo.HasNextPage)
	assert.Equal(t, 2, payload.TotalQuantity)
}
