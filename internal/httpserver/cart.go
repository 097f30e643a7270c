package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-cart/internal/domain"
	cartsvc "storefront-cart/internal/service/cart"
)

type cartHandlers struct {
	sessions SessionService
	logger   *zap.Logger
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	ExpiresIn int       `json:"expiresIn"`
}

type fetchRequest struct {
	ID string `json:"id" binding:"required"`
}

type addLineRequest struct {
	VariantID string `json:"variantId" binding:"required"`
	Quantity  *int   `json:"quantity"`
}

type removeLineRequest struct {
	LineID string `json:"lineId" binding:"required"`
}

type updateLineRequest struct {
	LineID   string `json:"lineId" binding:"required"`
	Quantity *int   `json:"quantity" binding:"required"`
}

func (h *cartHandlers) issueSession(c *gin.Context) {
	sess, _, err := h.sessions.Issue(c.Request.Context())
	if err != nil {
		h.logger.Error("issue session", zap.Error(err))
		writeErrorBody(c, http.StatusInternalServerError, "internal_error", "could not issue session", nil)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		ExpiresIn: int(time.Until(sess.ExpiresAt).Seconds()),
	})
}

func (h *cartHandlers) revokeSession(c *gin.Context) {
	if err := h.sessions.Revoke(c.Request.Context(), c.GetString(tokenCtxKey)); err != nil {
		h.logger.Warn("revoke session", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

func (h *cartHandlers) getCart(c *gin.Context) {
	syn := syncFromContext(c)
	c.JSON(http.StatusOK, snapshotResponse(syn))
}

func (h *cartHandlers) createCart(c *gin.Context) {
	cart, err := syncFromContext(c).Create(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cartResponse{Cart: toCartView(cart)})
}

func (h *cartHandlers) fetchCart(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	cart, err := syncFromContext(c).Fetch(c.Request.Context(), req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse{Cart: toCartView(cart)})
}

func (h *cartHandlers) addLine(c *gin.Context) {
	var req addLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	syn, ok := h.started(c)
	if !ok {
		return
	}
	cart, err := syn.AddLine(c.Request.Context(), req.VariantID, qty)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse{Cart: toCartView(cart)})
}

func (h *cartHandlers) removeLine(c *gin.Context) {
	var req removeLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	syn, ok := h.started(c)
	if !ok {
		return
	}
	cart, err := syn.RemoveLine(c.Request.Context(), req.LineID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse{Cart: toCartView(cart)})
}

func (h *cartHandlers) updateLine(c *gin.Context) {
	var req updateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	syn, ok := h.started(c)
	if !ok {
		return
	}
	cart, err := syn.UpdateLineQuantity(c.Request.Context(), req.LineID, *req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse{Cart: toCartView(cart)})
}

// started waits for the session's resume so line mutations never race it
// into creating a second cart.
func (h *cartHandlers) started(c *gin.Context) (*cartsvc.Synchronizer, bool) {
	syn := syncFromContext(c)
	if err := syn.Start(c.Request.Context()); err != nil {
		writeError(c, err)
		return nil, false
	}
	return syn, true
}

func snapshotResponse(syn *cartsvc.Synchronizer) cartResponse {
	resp := cartResponse{Loading: syn.Loading()}
	if cart, ok := syn.Snapshot(); ok {
		resp.Cart = toCartView(cart)
	}
	return resp
}

func writeBindError(c *gin.Context, err error) {
	writeError(c, domain.E(domain.KindInvalidArgument, "decode request", err.Error(), err))
}
