package rest

import (
	"net/http"
	"strconv"

	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/resource"
	"github.com/ftfvalues/tradecalc/scheduler"
	"github.com/ftfvalues/tradecalc/snapshot"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	svc       *trade.Service
	res       *resource.Loader
	persister *snapshot.Persister
	sched     *scheduler.Scheduler
	reloads   *resource.ReloadLog
	logger    *zap.Logger
}

// NewAdminHandler creates an AdminHandler. persister may be nil.
func NewAdminHandler(
	svc *trade.Service,
	res *resource.Loader,
	persister *snapshot.Persister,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{svc: svc, res: res, persister: persister, sched: sched, logger: logger}
}

// SetReloadLog enables the catalog history endpoint.
func (h *AdminHandler) SetReloadLog(l *resource.ReloadLog) { h.reloads = l }

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	body := gin.H{
		"active_sessions": h.svc.Count(),
		"catalog":         h.res.Status(),
		"scheduler_tasks": h.sched.ListTickers(),
		"pending_delays":  h.sched.PendingDelays(),
	}
	if h.persister != nil {
		body["persistence"] = h.persister.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// ReloadCatalog re-reads the item dataset and exception registry.
// POST /api/admin/catalog/reload
func (h *AdminHandler) ReloadCatalog(c *gin.Context) {
	if err := h.res.Load(c.Request.Context()); err != nil {
		h.logger.Warn("admin catalog reload failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "status": h.res.Status()})
		return
	}
	h.logger.Info("admin reloaded catalog", zap.Int("items", h.res.Status().Items))
	c.JSON(http.StatusOK, h.res.Status())
}

// CatalogHistory lists recent catalog load attempts, newest first.
// GET /api/admin/catalog/history?limit=n
func (h *AdminHandler) CatalogHistory(c *gin.Context) {
	if h.reloads == nil {
		c.JSON(http.StatusOK, gin.H{"history": []resource.CatalogStatus{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	history, err := h.reloads.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("read catalog history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": trade.CodeInternal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// ListSchedulerTasks returns all registered ticker tasks with their intervals.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	tasks := h.sched.Tasks()
	out := make([]gin.H, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, gin.H{"name": t.Name, "interval": t.Interval.String()})
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out, "pending_delays": h.sched.PendingDelays()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
