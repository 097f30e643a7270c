// Package storefronttest provides an in-process Storefront GraphQL backend
// implementing the cart operations used by storefront.Client.
package storefronttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

const Token = "test-token"

// Server is a fake cart backend. Lines merge by merchandise id the way the
// real gateway does.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	carts    map[string]*cart
	nextCart int
	nextLine int
	calls    map[string]int
	stock    map[string]int
	failures map[string]int
	prices   map[string]string
}

type cart struct {
	id    string
	lines []*line
}

type line struct {
	id        string
	variantID string
	quantity  int
}

func NewServer() *Server {
	s := &Server{
		carts:    make(map[string]*cart),
		calls:    make(map[string]int),
		stock:    make(map[string]int),
		failures: make(map[string]int),
		prices:   make(map[string]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetStock caps the quantity of a variant; exceeding it yields a userError.
func (s *Server) SetStock(variantID string, max int) {
	s.mu.Lock()
	s.stock[variantID] = max
	s.mu.Unlock()
}

// SetPrice sets the unit price reported for a variant.
func (s *Server) SetPrice(variantID, amount string) {
	s.mu.Lock()
	s.prices[variantID] = amount
	s.mu.Unlock()
}

// FailNext makes the next n calls of operation answer with HTTP 500.
func (s *Server) FailNext(operation string, n int) {
	s.mu.Lock()
	s.failures[operation] = n
	s.mu.Unlock()
}

// Calls reports how many requests named operation were received.
func (s *Server) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// Forget drops a cart so that later lookups return null.
func (s *Server) Forget(id string) {
	s.mu.Lock()
	delete(s.carts, id)
	s.mu.Unlock()
}

// AddCart seeds a cart and returns its id.
func (s *Server) AddCart(lines map[string]int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.newCartLocked()
	for variant, qty := range lines {
		s.nextLine++
		c.lines = append(c.lines, &line{id: fmt.Sprintf("gid://shopify/CartLine/%d", s.nextLine), variantID: variant, quantity: qty})
	}
	return c.id
}

type request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Shopify-Storefront-Access-Token") != Token {
		http.Error(w, `{"errors":[{"message":"unauthorized"}]}`, http.StatusUnauthorized)
		return
	}
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.OperationName]++
	if n := s.failures[req.OperationName]; n > 0 {
		s.failures[req.OperationName] = n - 1
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}

	first := intVar(req.Variables, "linesFirst", 250)
	after := stringVar(req.Variables, "linesAfter")

	var data map[string]interface{}
	switch req.OperationName {
	case "CartCreate":
		c := s.newCartLocked()
		data = map[string]interface{}{"cartCreate": s.payload(c, nil, first, after)}
	case "Cart":
		c := s.carts[stringVar(req.Variables, "id")]
		if c == nil {
			data = map[string]interface{}{"cart": nil}
		} else {
			data = map[string]interface{}{"cart": s.cartJSON(c, first, after)}
		}
	case "CartLinesAdd":
		c, errs := s.lookup(req.Variables)
		if c != nil {
			errs = s.addLocked(c, listVar(req.Variables, "lines"))
		}
		data = map[string]interface{}{"cartLinesAdd": s.payload(c, errs, first, after)}
	case "CartLinesRemove":
		c, errs := s.lookup(req.Variables)
		if c != nil {
			s.removeLocked(c, listVar(req.Variables, "lineIds"))
		}
		data = map[string]interface{}{"cartLinesRemove": s.payload(c, errs, first, after)}
	case "CartLinesUpdate":
		c, errs := s.lookup(req.Variables)
		if c != nil {
			errs = s.updateLocked(c, listVar(req.Variables, "lines"))
		}
		data = map[string]interface{}{"cartLinesUpdate": s.payload(c, errs, first, after)}
	default:
		writeJSON(w, map[string]interface{}{"errors": []map[string]string{{"message": "unknown operation " + req.OperationName}}})
		return
	}
	writeJSON(w, map[string]interface{}{"data": data})
}

func (s *Server) newCartLocked() *cart {
	s.nextCart++
	c := &cart{id: fmt.Sprintf("gid://shopify/Cart/%d", s.nextCart)}
	s.carts[c.id] = c
	return c
}

func (s *Server) lookup(vars map[string]interface{}) (*cart, []map[string]interface{}) {
	c := s.carts[stringVar(vars, "cartId")]
	if c == nil {
		return nil, []map[string]interface{}{userError("cartId", "The specified cart does not exist.", "INVALID")}
	}
	return c, nil
}

func (s *Server) addLocked(c *cart, inputs []interface{}) []map[string]interface{} {
	for _, raw := range inputs {
		in, _ := raw.(map[string]interface{})
		variant := stringVar(in, "merchandiseId")
		qty := intVar(in, "quantity", 1)
		existing := findByVariant(c, variant)
		total := qty
		if existing != nil {
			total += existing.quantity
		}
		if max, ok := s.stock[variant]; ok && total > max {
			return []map[string]interface{}{userError("lines", fmt.Sprintf("Only %d items were added to your cart due to availability.", max), "NOT_ENOUGH_STOCK")}
		}
		if existing != nil {
			existing.quantity = total
			continue
		}
		s.nextLine++
		c.lines = append(c.lines, &line{id: fmt.Sprintf("gid://shopify/CartLine/%d?cart=%s", s.nextLine, c.id), variantID: variant, quantity: qty})
	}
	return nil
}

func (s *Server) removeLocked(c *cart, ids []interface{}) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if v, ok := id.(string); ok {
			drop[v] = true
		}
	}
	kept := c.lines[:0]
	for _, l := range c.lines {
		if !drop[l.id] {
			kept = append(kept, l)
		}
	}
	c.lines = kept
}

func (s *Server) updateLocked(c *cart, inputs []interface{}) []map[string]interface{} {
	for _, raw := range inputs {
		in, _ := raw.(map[string]interface{})
		id := stringVar(in, "id")
		qty := intVar(in, "quantity", 0)
		var target *line
		for _, l := range c.lines {
			if l.id == id {
				target = l
			}
		}
		if target == nil {
			return []map[string]interface{}{userError("lines", "The merchandise line was not found in the cart.", "INVALID")}
		}
		if max, ok := s.stock[target.variantID]; ok && qty > max {
			return []map[string]interface{}{userError("lines", fmt.Sprintf("Only %d items were added to your cart due to availability.", max), "NOT_ENOUGH_STOCK")}
		}
		if qty == 0 {
			s.removeLocked(c, []interface{}{id})
			continue
		}
		target.quantity = qty
	}
	return nil
}

func (s *Server) payload(c *cart, errs []map[string]interface{}, first int, after string) map[string]interface{} {
	if errs == nil {
		errs = []map[string]interface{}{}
	}
	out := map[string]interface{}{"userErrors": errs, "cart": nil}
	if c != nil {
		out["cart"] = s.cartJSON(c, first, after)
	}
	return out
}

func (s *Server) cartJSON(c *cart, first int, after string) map[string]interface{} {
	start := 0
	if after != "" {
		start, _ = strconv.Atoi(after)
	}
	// lines may have been removed since the cursor was issued
	if start < 0 || start > len(c.lines) {
		start = len(c.lines)
	}
	end := start + first
	if end > len(c.lines) {
		end = len(c.lines)
	}
	total := 0
	for _, l := range c.lines {
		total += l.quantity
	}
	edges := make([]map[string]interface{}, 0, end-start)
	for _, l := range c.lines[start:end] {
		price := s.prices[l.variantID]
		if price == "" {
			price = "10.0"
		}
		edges = append(edges, map[string]interface{}{"node": map[string]interface{}{
			"id":       l.id,
			"quantity": l.quantity,
			"merchandise": map[string]interface{}{
				"id":      l.variantID,
				"title":   "Default Title",
				"priceV2": map[string]interface{}{"amount": price, "currencyCode": "INR"},
				"product": map[string]interface{}{
					"title":  "Product " + l.variantID,
					"handle": "product",
					"images": map[string]interface{}{"edges": []interface{}{
						map[string]interface{}{"node": map[string]interface{}{"url": "https://cdn.example.com/p.png", "altText": nil}},
					}},
				},
			},
		}})
	}
	return map[string]interface{}{
		"id":            c.id,
		"checkoutUrl":   "https://shop.example.com/cart/c/" + strconv.Itoa(len(c.id)),
		"totalQuantity": total,
		"lines": map[string]interface{}{
			"pageInfo": map[string]interface{}{"hasNextPage": end < len(c.lines), "endCursor": strconv.Itoa(end)},
			"edges":    edges,
		},
	}
}

func findByVariant(c *cart, variant string) *line {
	for _, l := range c.lines {
		if l.variantID == variant {
			return l
		}
	}
	return nil
}

func userError(field, message, code string) map[string]interface{} {
	return map[string]interface{}{"field": []string{field}, "message": message, "code": code}
}

func stringVar(vars map[string]interface{}, key string) string {
	v, _ := vars[key].(string)
	return v
}

func intVar(vars map[string]interface{}, key string, def int) int {
	if v, ok := vars[key].(float64); ok {
		return int(v)
	}
	return def
}

func listVar(vars map[string]interface{}, key string) []interface{} {
	v, _ := vars[key].([]interface{})
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
