package ws

import (
	"net/http"

	"github.com/ftfvalues/tradecalc/config"
	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	svc      *trade.Service
	sec      config.SecurityConfig
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(svc *trade.Service, sec config.SecurityConfig, router *Router, logger *zap.Logger) *Handler {
	h := &Handler{
		svc:    svc,
		sec:    sec,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?session=<id>. Without a session id a new trade
// session is opened. The current state is pushed as soon as the connection
// is up.
func (h *Handler) ServeWS(c *gin.Context) {
	sess, err := h.svc.Open(c.Request.Context(), c.Query("session"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": trade.ErrorCode(err)})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(sess.ID, conn, h.logger)
	h.logger.Info("ws client connected",
		zap.String("client_id", client.ID),
		zap.String("session_id", sess.ID))
	client.SendJSON(TypeTradeState, 0, sess.State())

	// Start read pump (blocks until connection closes).
	h.readPump(client, c.ClientIP())
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(client *Client, ip string) {
	defer func() {
		client.Close()
		h.logger.Info("ws client disconnected",
			zap.String("client_id", client.ID),
			zap.String("session_id", client.SessionID))
	}()

	client.SetReadDeadline()
	client.Conn.SetPongHandler(func(string) error {
		client.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.String("client_id", client.ID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		client.SetReadDeadline()
		h.router.Dispatch(client, raw, ip)
	}
}
