package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ftfvalues/tradecalc/cache"
	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"github.com/ftfvalues/tradecalc/resource"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	catalogChannel     = "catalog"
	tradeChannelPrefix = "trade:"
)

// TradeChannel is the pub/sub channel carrying state updates for one session.
func TradeChannel(sessionID string) string { return tradeChannelPrefix + sessionID }

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	svc       *trade.Service
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, svc *trade.Service, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, svc: svc, keepalive: 30 * time.Second, logger: logger}
}

// SetKeepalive overrides the keepalive comment interval.
func (h *Handler) SetKeepalive(d time.Duration) {
	if d > 0 {
		h.keepalive = d
	}
}

// ServeSSE handles GET /sse?session=<id>.
// It streams trade_state events for the session and catalog events on
// every catalog reload.
func (h *Handler) ServeSSE(c *gin.Context) {
	id := c.Query("session")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session", "code": trade.CodeBadRequest})
		return
	}
	sess, err := h.svc.Open(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": trade.ErrorCode(err)})
		return
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, TradeChannel(id), catalogChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("session_id", id), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	initial, err := json.Marshal(sess.State())
	if err != nil {
		h.logger.Error("sse encode state", zap.Error(err))
		return
	}
	writeEvent(c, "trade_state", string(initial))

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			writeEvent(c, eventName(msg.Channel), msg.Payload)

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func eventName(channel string) string {
	if strings.HasPrefix(channel, tradeChannelPrefix) {
		return "trade_state"
	}
	return channel
}

func writeEvent(c *gin.Context, event, data string) {
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}

// Publisher fans trade mutations and catalog reloads out over pub/sub so
// every SSE stream (on any instance sharing the backend) sees them.
type Publisher struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(pubsub cache.PubSub, logger *zap.Logger) *Publisher {
	return &Publisher{pubsub: pubsub, logger: logger}
}

// Register attaches the publisher to the trade and catalog hooks.
func (p *Publisher) Register(hc *hook.HookCenter) {
	hc.Register(hook.AfterTradeMutate, 300, "sse", p.onMutate)
	hc.Register(hook.OnCatalogReload, 300, "sse", p.onReload)
}

func (p *Publisher) onMutate(ctx context.Context, _ string, data interface{}) (interface{}, error) {
	ev, ok := data.(*trade.MutationEvent)
	if !ok {
		return data, nil
	}
	return data, p.publish(ctx, TradeChannel(ev.SessionID), ev.State)
}

func (p *Publisher) onReload(ctx context.Context, _ string, data interface{}) (interface{}, error) {
	ev, ok := data.(*resource.ReloadEvent)
	if !ok {
		return data, nil
	}
	return data, p.publish(ctx, catalogChannel, ev.Status)
}

func (p *Publisher) publish(ctx context.Context, channel string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: encode %s: %w", channel, err)
	}
	if err := p.pubsub.Publish(ctx, channel, string(payload)); err != nil {
		p.logger.Warn("sse publish failed", zap.String("channel", channel), zap.Error(err))
		return fmt.Errorf("sse: publish %s: %w", channel, err)
	}
	return nil
}
