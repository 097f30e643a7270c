package httpserver

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-cart/internal/domain"
)

const eventsKeepAlive = 15 * time.Second

// events streams the snapshot as server-sent events: the current state
// first, then every replacement. A slow reader only ever sees the newest
// snapshot.
func (h *cartHandlers) events(c *gin.Context) {
	syn := syncFromContext(c)
	updates := make(chan domain.Cart, 1)
	cancel := syn.Subscribe(func(cart domain.Cart) {
		for {
			select {
			case updates <- cart:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("cart", snapshotResponse(syn))
	c.Writer.Flush()

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case cart := <-updates:
			c.SSEvent("cart", cartResponse{Loading: syn.Loading(), Cart: toCartView(cart)})
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
