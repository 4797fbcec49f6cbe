package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/game/valuation"
	"go.uber.org/zap"
)

// Message types.
const (
	TypePing          = "ping"
	TypePong          = "pong"
	TypeError         = "error"
	TypeTradeState    = "trade_state"
	TypeTradeAdd      = "trade_add"
	TypeTradeFiller   = "trade_filler"
	TypeTradeRemove   = "trade_remove"
	TypeTradeQuantity = "trade_quantity"
	TypeTradeCommit   = "trade_commit"
	TypeTradeStep     = "trade_step"
	TypeTradeClear    = "trade_clear"
	TypeTradeReset    = "trade_reset"
	TypeTradeModifier = "trade_modifier"
	TypeTradeUnit     = "trade_unit"
)

// Transport-level error codes. Operation errors use the trade codes.
const (
	CodeMalformed   = "malformed_packet"
	CodeUnknownType = "unknown_type"
)

// TradeHandlers applies calculator operations sent over WebSocket. Every
// message is answered with trade_state or error.
type TradeHandlers struct {
	svc    *trade.Service
	logger *zap.Logger
}

// NewTradeHandlers creates TradeHandlers.
func NewTradeHandlers(svc *trade.Service, logger *zap.Logger) *TradeHandlers {
	return &TradeHandlers{svc: svc, logger: logger}
}

// RegisterHandlers registers trade WS handlers.
func (h *TradeHandlers) RegisterHandlers(r *Router) {
	r.On(TypePing, h.HandlePing)
	r.On(TypeTradeState, h.HandleState)
	r.On(TypeTradeAdd, h.HandleAdd)
	r.On(TypeTradeFiller, h.HandleFiller)
	r.On(TypeTradeRemove, h.HandleRemove)
	r.On(TypeTradeQuantity, h.HandleQuantity)
	r.On(TypeTradeCommit, h.HandleCommit)
	r.On(TypeTradeStep, h.HandleStep)
	r.On(TypeTradeClear, h.HandleClear)
	r.On(TypeTradeReset, h.HandleReset)
	r.On(TypeTradeModifier, h.HandleModifier)
	r.On(TypeTradeUnit, h.HandleUnit)
}

type pingPayload struct {
	TS int64 `json:"ts"`
}

// HandlePing responds to client heartbeat pings.
func (h *TradeHandlers) HandlePing(_ context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	var p pingPayload
	_ = json.Unmarshal(raw, &p)
	c.SendJSON(TypePong, seq, map[string]int64{
		"client_ts": p.TS,
		"server_ts": time.Now().UnixMilli(),
	})
	return nil
}

// HandleState replies with the current state.
func (h *TradeHandlers) HandleState(ctx context.Context, c *Client, seq uint64, _ json.RawMessage) error {
	sess, err := h.svc.Open(ctx, c.SessionID)
	if err != nil {
		replyOpError(c, seq, TypeTradeState, err, nil)
		return nil
	}
	c.SendJSON(TypeTradeState, seq, sess.State())
	return nil
}

type slotPayload struct {
	Side     string `json:"side"`
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Input    string `json:"input"`
	Delta    int    `json:"delta"`
}

// decodePayload unmarshals a non-empty payload into v, replying with
// bad_request when it does not decode.
func decodePayload(c *Client, seq uint64, msgType string, raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		replyError(c, seq, msgType, trade.CodeBadRequest, "invalid payload")
		return false
	}
	return true
}

// decodeSlot unmarshals the payload and resolves its side.
func decodeSlot(c *Client, seq uint64, msgType string, raw json.RawMessage) (slotPayload, trade.SideID, bool) {
	var p slotPayload
	if !decodePayload(c, seq, msgType, raw, &p) {
		return p, "", false
	}
	side, err := trade.ParseSide(p.Side)
	if err != nil {
		replyOpError(c, seq, msgType, err, nil)
		return p, "", false
	}
	return p, side, true
}

// HandleAdd appends a catalog item with the session's modifier.
func (h *TradeHandlers) HandleAdd(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	p, side, ok := decodeSlot(c, seq, TypeTradeAdd, raw)
	if !ok {
		return nil
	}
	def, err := h.svc.Lookup(p.Name)
	if err != nil {
		replyOpError(c, seq, TypeTradeAdd, err, nil)
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeAdd, func(s *trade.Session) (trade.State, error) {
		return s.AddEntry(side, def, s.Modifier())
	})
}

// HandleFiller appends a filler entry.
func (h *TradeHandlers) HandleFiller(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	p, side, ok := decodeSlot(c, seq, TypeTradeFiller, raw)
	if !ok {
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeFiller, func(s *trade.Session) (trade.State, error) {
		return s.AddFiller(side, p.Quantity)
	})
}

// HandleRemove deletes one entry.
func (h *TradeHandlers) HandleRemove(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	p, side, ok := decodeSlot(c, seq, TypeTradeRemove, raw)
	if !ok {
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeRemove, func(s *trade.Session) (trade.State, error) {
		return s.RemoveEntry(side, p.Index)
	})
}

// HandleQuantity applies raw quantity input.
func (h *TradeHandlers) HandleQuantity(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	p, side, ok := decodeSlot(c, seq, TypeTradeQuantity, raw)
	if !ok {
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeQuantity, func(s *trade.Session) (trade.State, error) {
		return s.SetQuantity(side, p.Index, p.Input)
	})
}

// HandleCommit ends a quantity edit.
func (h *TradeHandlers) HandleCommit(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	p, side, ok := decodeSlot(c, seq, TypeTradeCommit, raw)
	if !ok {
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeCommit, func(s *trade.Session) (trade.State, error) {
		return s.CommitQuantity(side, p.Index)
	})
}

// HandleStep nudges a quantity.
func (h *TradeHandlers) HandleStep(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	p, side, ok := decodeSlot(c, seq, TypeTradeStep, raw)
	if !ok {
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeStep, func(s *trade.Session) (trade.State, error) {
		return s.StepQuantity(side, p.Index, p.Delta)
	})
}

// HandleClear empties one side.
func (h *TradeHandlers) HandleClear(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	_, side, ok := decodeSlot(c, seq, TypeTradeClear, raw)
	if !ok {
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeClear, func(s *trade.Session) (trade.State, error) {
		return s.Clear(side)
	})
}

// HandleReset empties both sides.
func (h *TradeHandlers) HandleReset(ctx context.Context, c *Client, seq uint64, _ json.RawMessage) error {
	return h.apply(ctx, c, seq, TypeTradeReset, func(s *trade.Session) (trade.State, error) {
		return s.Reset(), nil
	})
}

type modifierPayload struct {
	Modifier string `json:"modifier"`
}

// HandleModifier changes the selector for new entries.
func (h *TradeHandlers) HandleModifier(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	var p modifierPayload
	if !decodePayload(c, seq, TypeTradeModifier, raw, &p) {
		return nil
	}
	m, err := valuation.ParseModifier(p.Modifier)
	if err != nil {
		replyOpError(c, seq, TypeTradeModifier, err, nil)
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeModifier, func(s *trade.Session) (trade.State, error) {
		return s.SetModifier(m), nil
	})
}

type unitPayload struct {
	Unit   string `json:"unit"`
	Toggle bool   `json:"toggle"`
}

// HandleUnit sets or toggles the display unit.
func (h *TradeHandlers) HandleUnit(ctx context.Context, c *Client, seq uint64, raw json.RawMessage) error {
	var p unitPayload
	if !decodePayload(c, seq, TypeTradeUnit, raw, &p) {
		return nil
	}
	if p.Toggle {
		return h.apply(ctx, c, seq, TypeTradeUnit, func(s *trade.Session) (trade.State, error) {
			return s.ToggleUnitMode(), nil
		})
	}
	u, err := valuation.ParseUnitMode(p.Unit)
	if err != nil {
		replyOpError(c, seq, TypeTradeUnit, err, nil)
		return nil
	}
	return h.apply(ctx, c, seq, TypeTradeUnit, func(s *trade.Session) (trade.State, error) {
		return s.SetUnitMode(u), nil
	})
}

// apply runs op through the service and replies with the resulting state,
// or an error carrying the unchanged state.
func (h *TradeHandlers) apply(ctx context.Context, c *Client, seq uint64, msgType string, op func(*trade.Session) (trade.State, error)) error {
	if _, err := h.svc.Open(ctx, c.SessionID); err != nil {
		replyOpError(c, seq, msgType, err, nil)
		return nil
	}
	st, err := h.svc.Apply(ctx, c.SessionID, msgType, op)
	if err != nil {
		replyOpError(c, seq, msgType, err, &st)
		if trade.ErrorCode(err) == trade.CodeInternal {
			return err
		}
		return nil
	}
	c.SendJSON(TypeTradeState, seq, st)
	return nil
}

type errorPayload struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Request string       `json:"request,omitempty"`
	State   *trade.State `json:"state,omitempty"`
}

func replyOpError(c *Client, seq uint64, msgType string, err error, st *trade.State) {
	p := errorPayload{Code: trade.ErrorCode(err), Message: err.Error(), Request: msgType}
	if st != nil && st.ID != "" {
		p.State = st
	}
	c.SendJSON(TypeError, seq, p)
}

// replyError sends an error packet back to the client.
func replyError(c *Client, seq uint64, msgType, code, msg string) {
	c.SendJSON(TypeError, seq, errorPayload{Code: code, Message: msg, Request: msgType})
}
