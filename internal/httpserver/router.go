package httpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	sessionrepo "storefront-cart/internal/repository/session"
	cartsvc "storefront-cart/internal/service/cart"
)

// SessionService issues session tokens and resolves them to the cart
// Synchronizer they own.
type SessionService interface {
	Issue(ctx context.Context) (sessionrepo.Session, *cartsvc.Synchronizer, error)
	Lookup(ctx context.Context, token string) (*cartsvc.Synchronizer, error)
	Revoke(ctx context.Context, token string) error
	Ready(ctx context.Context) error
}

type Deps struct {
	Sessions       SessionService
	AllowedOrigins []string
	// Production switches gin to release mode.
	Production bool
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, deps Deps) (*gin.Engine, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(recoveryMiddleware(logger), loggingMiddleware(logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(corsConfig(deps.AllowedOrigins)))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Sessions))

	h := &cartHandlers{sessions: deps.Sessions, logger: logger}
	router.POST("/sessions", h.issueSession)

	authed := router.Group("")
	authed.Use(sessionMiddleware(deps.Sessions, logger))
	{
		authed.DELETE("/sessions", h.revokeSession)
		authed.GET("/cart", h.getCart)
		authed.POST("/cart", h.createCart)
		authed.POST("/cart/fetch", h.fetchCart)
		authed.POST("/cart/lines", h.addLine)
		authed.POST("/cart/lines/remove", h.removeLine)
		authed.POST("/cart/lines/update", h.updateLine)
		authed.GET("/cart/events", h.events)
	}

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", sessionHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
