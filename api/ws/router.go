package ws

import (
	"context"
	"encoding/json"

	mw "github.com/ftfvalues/tradecalc/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message. seq is echoed on replies.
type HandlerFunc func(ctx context.Context, c *Client, seq uint64, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate
// handler. ip is recorded on the handler context for auditing.
func (r *Router) Dispatch(c *Client, raw []byte, ip string) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.String("client_id", c.ID),
			zap.Error(err))
		replyError(c, 0, "", CodeMalformed, "malformed packet")
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= c.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("client_id", c.ID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", c.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		c.LastSeq = pkt.Seq
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("client_id", c.ID))
		replyError(c, pkt.Seq, pkt.Type, CodeUnknownType, "unknown message type")
		return
	}

	// Assign a trace ID for this message dispatch.
	c.TraceID = uuid.NewString()
	ctx := mw.WithRequestMeta(context.Background(), c.TraceID, ip)

	if err := fn(ctx, c, pkt.Seq, pkt.Payload); err != nil {
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.String("client_id", c.ID),
			zap.String("trace_id", c.TraceID),
			zap.Error(err))
	}
}
