package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cartsvc "storefront-cart/internal/service/cart"
	sessionsvc "storefront-cart/internal/service/session"
)

const (
	sessionHeader = "X-Session-Token"
	syncCtxKey    = "cartSync"
	tokenCtxKey   = "sessionToken"
)

func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			zap.Any("error", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		writeErrorBody(c, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	})
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("http request", fields...)
	}
}

// sessionMiddleware resolves the session token to its Synchronizer.
func sessionMiddleware(sessions SessionService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c.Request)
		if token == "" {
			writeErrorBody(c, http.StatusUnauthorized, "invalid_token", "missing session token", nil)
			c.Abort()
			return
		}
		syn, err := sessions.Lookup(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, sessionsvc.ErrInvalidToken) {
				writeErrorBody(c, http.StatusUnauthorized, "invalid_token", "invalid or expired session token", nil)
			} else {
				logger.Error("session lookup failed", zap.Error(err))
				writeErrorBody(c, http.StatusInternalServerError, "internal_error", "session lookup failed", nil)
			}
			c.Abort()
			return
		}
		c.Set(syncCtxKey, syn)
		c.Set(tokenCtxKey, token)
		c.Next()
	}
}

func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get(sessionHeader))
}

func syncFromContext(c *gin.Context) *cartsvc.Synchronizer {
	v, ok := c.Get(syncCtxKey)
	if !ok {
		return nil
	}
	syn, _ := v.(*cartsvc.Synchronizer)
	return syn
}
