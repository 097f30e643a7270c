package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-cart/internal/domain"
	"storefront-cart/internal/storefront"
)

type errorResponse struct {
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Errors     []errorItem `json:"errors"`
}

type errorItem struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Field   []string `json:"field,omitempty"`
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindCartNotFound:
		return http.StatusNotFound
	case domain.KindGatewayRejected:
		return http.StatusUnprocessableEntity
	case domain.KindGatewayError:
		return http.StatusBadGateway
	case domain.KindBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a cart error. Rejections carry the gateway's userErrors.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	kind := domain.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}

	var items []errorItem
	var rejected *storefront.RejectedError
	if errors.As(err, &rejected) {
		for _, ue := range rejected.UserErrors {
			code := ue.Code
			if code == "" {
				code = kind.String()
			}
			items = append(items, errorItem{Code: code, Message: ue.Message, Field: ue.Field})
		}
	}
	writeErrorBody(c, status, kind.String(), msg, items)
}

func writeErrorBody(c *gin.Context, status int, code, msg string, items []errorItem) {
	if len(items) == 0 {
		items = []errorItem{{Code: code, Message: msg}}
	}
	c.JSON(status, errorResponse{StatusCode: status, Message: msg, Errors: items})
}
