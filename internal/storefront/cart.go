package storefront

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-cart/internal/domain"
)

// maxLinePages bounds line paging so a misbehaving cursor cannot loop forever.
const maxLinePages = 100

type cartPayload struct {
	ID            string     `json:"id"`
	CheckoutURL   string     `json:"checkoutUrl"`
	TotalQuantity int        `json:"totalQuantity"`
	Lines         linesField `json:"lines"`
}

type linesField struct {
	PageInfo struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
	Edges []struct {
		Node lineNode `json:"node"`
	} `json:"edges"`
}

type lineNode struct {
	ID          string      `json:"id"`
	Quantity    int         `json:"quantity"`
	Merchandise variantNode `json:"merchandise"`
}

type variantNode struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	PriceV2 struct {
		Amount       decimal.Decimal `json:"amount"`
		CurrencyCode string          `json:"currencyCode"`
	} `json:"priceV2"`
	Product struct {
		Title  string `json:"title"`
		Handle string `json:"handle"`
		Images struct {
			Edges []struct {
				Node struct {
					URL     string `json:"url"`
					AltText string `json:"altText"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"images"`
	} `json:"product"`
}

type mutationPayload struct {
	Cart       *cartPayload       `json:"cart"`
	UserErrors []domain.UserError `json:"userErrors"`
}

// CreateCart creates a new empty cart.
func (c *Client) CreateCart(ctx context.Context) (*domain.Cart, error) {
	var data struct {
		CartCreate *mutationPayload `json:"cartCreate"`
	}
	if err := c.execute(ctx, c.createDoc, c.pageVars(nil, ""), &data); err != nil {
		return nil, err
	}
	return c.fromMutation(ctx, c.createDoc.name, data.CartCreate)
}

// GetCart fetches a cart with all of its lines. A null cart is reported as
// domain.KindCartNotFound.
func (c *Client) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	payload, err := c.cartPage(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, domain.E(domain.KindCartNotFound, c.cartDoc.name, fmt.Sprintf("cart %s not found", id), nil)
	}
	if err := c.completeLines(ctx, c.cartDoc.name, payload); err != nil {
		return nil, err
	}
	return toDomainCart(c.cartDoc.name, payload, c.logger)
}

// AddLines adds merchandise to a cart and returns the updated cart.
func (c *Client) AddLines(ctx context.Context, cartID string, lines []CartLineInput) (*domain.Cart, error) {
	var data struct {
		CartLinesAdd *mutationPayload `json:"cartLinesAdd"`
	}
	vars := c.pageVars(map[string]interface{}{"cartId": cartID, "lines": lines}, "")
	if err := c.execute(ctx, c.addDoc, vars, &data); err != nil {
		return nil, err
	}
	return c.fromMutation(ctx, c.addDoc.name, data.CartLinesAdd)
}

// RemoveLines removes lines by id and returns the updated cart.
func (c *Client) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*domain.Cart, error) {
	var data struct {
		CartLinesRemove *mutationPayload `json:"cartLinesRemove"`
	}
	vars := c.pageVars(map[string]interface{}{"cartId": cartID, "lineIds": lineIDs}, "")
	if err := c.execute(ctx, c.removeDoc, vars, &data); err != nil {
		return nil, err
	}
	return c.fromMutation(ctx, c.removeDoc.name, data.CartLinesRemove)
}

// UpdateLines sets line quantities and returns the updated cart.
func (c *Client) UpdateLines(ctx context.Context, cartID string, lines []CartLineUpdateInput) (*domain.Cart, error) {
	var data struct {
		CartLinesUpdate *mutationPayload `json:"cartLinesUpdate"`
	}
	vars := c.pageVars(map[string]interface{}{"cartId": cartID, "lines": lines}, "")
	if err := c.execute(ctx, c.updateDoc, vars, &data); err != nil {
		return nil, err
	}
	return c.fromMutation(ctx, c.updateDoc.name, data.CartLinesUpdate)
}

func (c *Client) pageVars(vars map[string]interface{}, after string) map[string]interface{} {
	if vars == nil {
		vars = make(map[string]interface{}, 2)
	}
	vars["linesFirst"] = c.linesFirst
	if after != "" {
		vars["linesAfter"] = after
	}
	return vars
}

func (c *Client) cartPage(ctx context.Context, id, after string) (*cartPayload, error) {
	var data struct {
		Cart *cartPayload `json:"cart"`
	}
	if err := c.execute(ctx, c.cartDoc, c.pageVars(map[string]interface{}{"id": id}, after), &data); err != nil {
		return nil, err
	}
	return data.Cart, nil
}

// completeLines follows the lines cursor until every line is loaded. A cart
// that vanishes mid-paging is CartNotFound only for the Cart query; after a
// mutation the gateway answered inconsistently.
func (c *Client) completeLines(ctx context.Context, op string, payload *cartPayload) error {
	for page := 0; payload.Lines.PageInfo.HasNextPage; page++ {
		if page >= maxLinePages {
			return domain.E(domain.KindGatewayError, op, "too many line pages", nil)
		}
		cursor := payload.Lines.PageInfo.EndCursor
		if cursor == "" {
			return domain.E(domain.KindGatewayError, op, "next page without cursor", nil)
		}
		next, err := c.cartPage(ctx, payload.ID, cursor)
		if err != nil {
			return err
		}
		if next == nil {
			kind := domain.KindGatewayError
			if op == c.cartDoc.name {
				kind = domain.KindCartNotFound
			}
			return domain.E(kind, op, fmt.Sprintf("cart %s disappeared while paging", payload.ID), nil)
		}
		payload.Lines.Edges = append(payload.Lines.Edges, next.Lines.Edges...)
		payload.Lines.PageInfo = next.Lines.PageInfo
		payload.TotalQuantity = next.TotalQuantity
	}
	return nil
}

func (c *Client) fromMutation(ctx context.Context, op string, payload *mutationPayload) (*domain.Cart, error) {
	if payload == nil {
		return nil, domain.E(domain.KindGatewayError, op, "missing payload", nil)
	}
	if len(payload.UserErrors) > 0 {
		msgs := make([]string, len(payload.UserErrors))
		for i, ue := range payload.UserErrors {
			msgs[i] = ue.Message
		}
		return nil, &domain.Error{
			Kind:    domain.KindGatewayRejected,
			Op:      op,
			Message: strings.Join(msgs, "; "),
			Err:     &RejectedError{UserErrors: payload.UserErrors},
		}
	}
	if payload.Cart == nil {
		return nil, domain.E(domain.KindGatewayError, op, "mutation returned no cart", nil)
	}
	if err := c.completeLines(ctx, op, payload.Cart); err != nil {
		return nil, err
	}
	return toDomainCart(op, payload.Cart, c.logger)
}

// RejectedError carries the gateway's userErrors for a declined mutation.
type RejectedError struct {
	UserErrors []domain.UserError
}

func (e *RejectedError) Error() string {
	if len(e.UserErrors) == 0 {
		return "rejected"
	}
	return e.UserErrors[0].Message
}

func toDomainCart(op string, p *cartPayload, logger *zap.Logger) (*domain.Cart, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, domain.E(domain.KindGatewayError, op, "cart without id", nil)
	}
	if p.TotalQuantity < 0 {
		return nil, domain.E(domain.KindGatewayError, op, "negative total quantity", nil)
	}
	cart := &domain.Cart{
		ID:            p.ID,
		CheckoutURL:   p.CheckoutURL,
		TotalQuantity: p.TotalQuantity,
		Lines:         make([]domain.Line, 0, len(p.Lines.Edges)),
	}
	seen := make(map[string]bool, len(p.Lines.Edges))
	for _, edge := range p.Lines.Edges {
		n := edge.Node
		if n.ID == "" {
			return nil, domain.E(domain.KindGatewayError, op, "line without id", nil)
		}
		if seen[n.ID] {
			return nil, domain.E(domain.KindGatewayError, op, fmt.Sprintf("duplicate line %s", n.ID), nil)
		}
		seen[n.ID] = true
		if n.Quantity <= 0 {
			logger.Warn("dropping line without quantity", zap.String("cart", p.ID), zap.String("line", n.ID))
			continue
		}
		if n.Merchandise.PriceV2.Amount.IsNegative() {
			return nil, domain.E(domain.KindGatewayError, op, fmt.Sprintf("negative price on line %s", n.ID), nil)
		}
		m := domain.Merchandise{
			VariantID:     n.Merchandise.ID,
			Title:         n.Merchandise.Title,
			UnitPrice:     domain.Money{Amount: n.Merchandise.PriceV2.Amount, CurrencyCode: n.Merchandise.PriceV2.CurrencyCode},
			ProductTitle:  n.Merchandise.Product.Title,
			ProductHandle: n.Merchandise.Product.Handle,
		}
		if imgs := n.Merchandise.Product.Images.Edges; len(imgs) > 0 {
			m.ImageURL = imgs[0].Node.URL
			m.ImageAltText = imgs[0].Node.AltText
		}
		cart.Lines = append(cart.Lines, domain.Line{ID: n.ID, Quantity: n.Quantity, Merchandise: m})
	}
	return cart, nil
}
