package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 64
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one WebSocket connection bound to a trade session.
type Client struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn

	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	logger *zap.Logger
}

// NewClient creates a Client for sessionID. When conn is non-nil the write
// goroutine is started.
func NewClient(sessionID string, conn *websocket.Conn, logger *zap.Logger) *Client {
	c := &Client{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Conn:      conn,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		logger:    logger,
	}
	if conn != nil {
		go c.writePump()
	}
	return c
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Conn.Close()
	for {
		select {
		case data := <-c.SendChan:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error",
					zap.String("client_id", c.ID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done:
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and sends it non-blocking. Drops if channel full or closed.
func (c *Client) Send(pkt *Packet) {
	if c.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	select {
	case c.SendChan <- data:
	case <-c.Done:
	default:
		c.logger.Warn("send channel full, dropping packet",
			zap.String("client_id", c.ID),
			zap.String("type", pkt.Type))
	}
}

// SendJSON wraps v as the payload of a packet of msgType.
func (c *Client) SendJSON(msgType string, seq uint64, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("ws encode payload", zap.String("type", msgType), zap.Error(err))
		return
	}
	c.Send(&Packet{Seq: seq, Type: msgType, Payload: payload})
}

// Close signals the writePump to shut down.
func (c *Client) Close() {
	select {
	case <-c.Done:
	default:
		close(c.Done)
	}
}

// IsClosed returns true if the client has been closed.
func (c *Client) IsClosed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline resets the WebSocket read deadline.
func (c *Client) SetReadDeadline() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
