package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/game/valuation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TradeHandler exposes calculator sessions over REST. Every mutation
// responds with the full derived trade state.
type TradeHandler struct {
	svc    *trade.Service
	logger *zap.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(svc *trade.Service, logger *zap.Logger) *TradeHandler {
	return &TradeHandler{svc: svc, logger: logger}
}

// Routes registers the trade endpoints under g (normally /api/trades).
func (h *TradeHandler) Routes(g *gin.RouterGroup) {
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Close)
	g.POST("/:id/reset", h.Reset)
	g.PUT("/:id/modifier", h.SetModifier)
	g.PUT("/:id/unit", h.SetUnit)
	g.POST("/:id/:side/items", h.AddItem)
	g.POST("/:id/:side/filler", h.AddFiller)
	g.DELETE("/:id/:side", h.Clear)
	g.DELETE("/:id/:side/items/:index", h.RemoveItem)
	g.PUT("/:id/:side/items/:index/quantity", h.SetQuantity)
	g.POST("/:id/:side/items/:index/commit", h.CommitQuantity)
	g.POST("/:id/:side/items/:index/step", h.StepQuantity)
}

// Create opens a fresh session.
// POST /api/trades
func (h *TradeHandler) Create(c *gin.Context) {
	sess, err := h.svc.Open(c.Request.Context(), "")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess.State())
}

// Get returns the session state, restoring it from persistence if needed.
// GET /api/trades/:id
func (h *TradeHandler) Get(c *gin.Context) {
	sess, err := h.svc.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.State())
}

// Close drops the session and its stored snapshot.
// DELETE /api/trades/:id
func (h *TradeHandler) Close(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Open(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.svc.Close(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AddItem appends a catalog item using the session's current modifier.
// POST /api/trades/:id/:side/items  {"name": "..."}
func (h *TradeHandler) AddItem(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": trade.CodeBadRequest})
		return
	}
	side, ok := h.side(c)
	if !ok {
		return
	}
	def, err := h.svc.Lookup(req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.apply(c, "add_item", func(s *trade.Session) (trade.State, error) {
		return s.AddEntry(side, def, s.Modifier())
	})
}

// AddFiller appends a filler entry.
// POST /api/trades/:id/:side/filler  {"quantity": 3}
// An empty body adds a filler entry at quantity 0.
func (h *TradeHandler) AddFiller(c *gin.Context) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": trade.CodeBadRequest})
		return
	}
	side, ok := h.side(c)
	if !ok {
		return
	}
	h.apply(c, "add_filler", func(s *trade.Session) (trade.State, error) {
		return s.AddFiller(side, req.Quantity)
	})
}

// RemoveItem deletes one entry.
// DELETE /api/trades/:id/:side/items/:index
func (h *TradeHandler) RemoveItem(c *gin.Context) {
	side, index, ok := h.slot(c)
	if !ok {
		return
	}
	h.apply(c, "remove", func(s *trade.Session) (trade.State, error) {
		return s.RemoveEntry(side, index)
	})
}

// SetQuantity applies raw quantity input.
// PUT /api/trades/:id/:side/items/:index/quantity  {"input": "12"}
func (h *TradeHandler) SetQuantity(c *gin.Context) {
	var req struct {
		Input string `json:"input"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": trade.CodeBadRequest})
		return
	}
	side, index, ok := h.slot(c)
	if !ok {
		return
	}
	h.apply(c, "quantity", func(s *trade.Session) (trade.State, error) {
		return s.SetQuantity(side, index, req.Input)
	})
}

// CommitQuantity ends an edit.
// POST /api/trades/:id/:side/items/:index/commit
func (h *TradeHandler) CommitQuantity(c *gin.Context) {
	side, index, ok := h.slot(c)
	if !ok {
		return
	}
	h.apply(c, "commit", func(s *trade.Session) (trade.State, error) {
		return s.CommitQuantity(side, index)
	})
}

// StepQuantity nudges a quantity by delta.
// POST /api/trades/:id/:side/items/:index/step  {"delta": -1}
func (h *TradeHandler) StepQuantity(c *gin.Context) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": trade.CodeBadRequest})
		return
	}
	side, index, ok := h.slot(c)
	if !ok {
		return
	}
	h.apply(c, "step", func(s *trade.Session) (trade.State, error) {
		return s.StepQuantity(side, index, req.Delta)
	})
}

// Clear empties one side.
// DELETE /api/trades/:id/:side
func (h *TradeHandler) Clear(c *gin.Context) {
	side, ok := h.side(c)
	if !ok {
		return
	}
	h.apply(c, "clear", func(s *trade.Session) (trade.State, error) {
		return s.Clear(side)
	})
}

// Reset empties both sides.
// POST /api/trades/:id/reset
func (h *TradeHandler) Reset(c *gin.Context) {
	h.apply(c, "reset", func(s *trade.Session) (trade.State, error) {
		return s.Reset(), nil
	})
}

// SetModifier changes the selector for new entries.
// PUT /api/trades/:id/modifier  {"modifier": "h"}
func (h *TradeHandler) SetModifier(c *gin.Context) {
	var req struct {
		Modifier string `json:"modifier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": trade.CodeBadRequest})
		return
	}
	m, err := valuation.ParseModifier(req.Modifier)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.apply(c, "modifier", func(s *trade.Session) (trade.State, error) {
		return s.SetModifier(m), nil
	})
}

// SetUnit sets or toggles the display unit.
// PUT /api/trades/:id/unit  {"unit": "hv"} or {"toggle": true}
func (h *TradeHandler) SetUnit(c *gin.Context) {
	var req struct {
		Unit   string `json:"unit"`
		Toggle bool   `json:"toggle"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": trade.CodeBadRequest})
		return
	}
	if req.Toggle {
		h.apply(c, "unit", func(s *trade.Session) (trade.State, error) {
			return s.ToggleUnitMode(), nil
		})
		return
	}
	u, err := valuation.ParseUnitMode(req.Unit)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.apply(c, "unit", func(s *trade.Session) (trade.State, error) {
		return s.SetUnitMode(u), nil
	})
}

// apply restores the session if it was evicted, then runs op through the
// service so mutation hooks fire.
func (h *TradeHandler) apply(c *gin.Context, action string, op func(*trade.Session) (trade.State, error)) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.svc.Open(ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	st, err := h.svc.Apply(ctx, id, action, op)
	if err != nil {
		h.failWithState(c, err, &st)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *TradeHandler) side(c *gin.Context) (trade.SideID, bool) {
	side, err := trade.ParseSide(c.Param("side"))
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	return side, true
}

func (h *TradeHandler) slot(c *gin.Context) (trade.SideID, int, bool) {
	side, ok := h.side(c)
	if !ok {
		return "", 0, false
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index", "code": trade.CodeIndexOutOfRange})
		return "", 0, false
	}
	return side, index, true
}

func (h *TradeHandler) fail(c *gin.Context, err error) {
	h.failWithState(c, err, nil)
}

// failWithState writes the error; when the operation was a no-op the
// unchanged state rides along so clients can re-render.
func (h *TradeHandler) failWithState(c *gin.Context, err error, st *trade.State) {
	code := trade.ErrorCode(err)
	body := gin.H{"error": err.Error(), "code": code}
	if st != nil && st.ID != "" {
		body["state"] = st
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("trade operation failed",
			zap.String("session_id", c.Param("id")), zap.Error(err))
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, trade.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, trade.ErrSessionNotFound), errors.Is(err, trade.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, trade.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, trade.ErrUnknownSide), errors.Is(err, trade.ErrIndexOutOfRange),
		errors.Is(err, valuation.ErrUnknownModifier), errors.Is(err, valuation.ErrUnknownUnitMode):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
