package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/config"
	mw "github.com/kasuganosora/learnquest/middleware"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"go.uber.org/zap"
)

// Channel returns the pub/sub channel carrying a user's progress events.
func Channel(userID string) string {
	return "progress:" + userID
}

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	c         cache.Cache
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, keepalive: 30 * time.Second, logger: logger}
}

// ServeSSE handles GET /api/progress/stream?token=<jwt>.
// It streams the caller's own progress events; the event name is the
// progress event type and the data is its JSON payload.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := mw.BearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.c.Exists(ctx, mw.SessionKey(tokenStr))
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, Channel(claims.UserID))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("user_id", claims.UserID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"user_id\":%q}\n\n", claims.UserID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var ev hook.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type == "" {
				h.logger.Warn("sse dropped malformed event", zap.String("channel", msg.Channel))
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Publisher returns a hook that forwards progress events to the owning
// user's channel.
func Publisher(pubsub cache.PubSub) hook.HookFn {
	return func(ctx context.Context, ev hook.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return pubsub.Publish(ctx, Channel(ev.UserID), string(payload))
	}
}
