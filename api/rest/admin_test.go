package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ftfvalues/tradecalc/api/rest"
	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"github.com/ftfvalues/tradecalc/resource"
	"github.com/ftfvalues/tradecalc/scheduler"
	"github.com/ftfvalues/tradecalc/snapshot"
	"github.com/ftfvalues/tradecalc/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

// fixture wires a loaded catalog, a trade service and a synchronous
// persister backed by the local cache.
type fixture struct {
	res       *resource.Loader
	svc       *trade.Service
	persister *snapshot.Persister
	sched     *scheduler.Scheduler
	hooks     *hook.HookCenter
	reloads   *resource.ReloadLog
	itemsPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	itemsPath, exPath := testutil.WriteCatalog(t, t.TempDir(), nil, []string{"Ruby Sword"}, []string{"Golden Crown"})
	hc := hook.NewHookCenter()
	c, _ := testutil.SetupTestCache(t)
	reloads := resource.NewReloadLog(c, 5, nopLogger())
	reloads.Register(hc)
	res := resource.NewLoader(itemsPath, exPath, hc, nopLogger())
	require.NoError(t, res.Load(context.Background()))

	sched := scheduler.New(nopLogger())
	t.Cleanup(sched.Stop)
	p := snapshot.NewPersister(snapshot.NewCacheStore(c, time.Hour), sched, 0, nopLogger())
	p.Register(hc)

	return &fixture{
		res:       res,
		svc:       trade.NewService(res, p, hc, nopLogger()),
		persister: p,
		sched:     sched,
		hooks:     hc,
		reloads:   reloads,
		itemsPath: itemsPath,
	}
}

func newAdminRouter(t *testing.T, adminKey string) (*gin.Engine, *fixture) {
	f := newFixture(t)
	h := rest.NewAdminHandler(f.svc, f.res, f.persister, f.sched, nopLogger())
	h.SetReloadLog(f.reloads)

	r := gin.New()
	g := r.Group("/api/admin")
	g.Use(rest.AdminAuth(adminKey))
	g.GET("/metrics", h.Metrics)
	g.POST("/catalog/reload", h.ReloadCatalog)
	g.GET("/scheduler", h.ListSchedulerTasks)
	g.GET("/catalog/history", h.CatalogHistory)
	return r, f
}

func adminGet(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func adminPost(r *gin.Engine, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), "body: %s", w.Body.String())
	return m
}

// ---- AdminAuth ----

func TestAdminAuth_NoKey_Disabled(t *testing.T) {
	// When adminKey is empty, admin endpoints must be disabled (503) so the
	// server cannot be accidentally deployed without protection.
	r, _ := newAdminRouter(t, "")
	w := adminGet(r, "/api/admin/metrics", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	r, _ := newAdminRouter(t, "secret")
	w := adminGet(r, "/api/admin/metrics", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_CorrectKey(t *testing.T) {
	r, _ := newAdminRouter(t, "secret")
	w := adminGet(r, "/api/admin/metrics", "secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

// ---- Metrics ----

func TestMetrics_Structure(t *testing.T) {
	r, f := newAdminRouter(t, "test-key")
	_, err := f.svc.Open(context.Background(), "")
	require.NoError(t, err)

	w := adminGet(r, "/api/admin/metrics", "test-key")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["active_sessions"])
	assert.Contains(t, resp, "catalog")
	assert.Contains(t, resp, "scheduler_tasks")
	assert.Contains(t, resp, "persistence")
	catalog := resp["catalog"].(map[string]interface{})
	assert.Equal(t, "ready", catalog["status"])
	assert.Equal(t, float64(6), catalog["items"])
}

// ---- ReloadCatalog ----

func TestReloadCatalog_PicksUpChanges(t *testing.T) {
	r, f := newAdminRouter(t, "test-key")
	testutil.WriteCatalog(t, filepath.Dir(f.itemsPath), []testutil.CatalogItem{
		{Name: "Only", Value: 1, Rarity: "Common"},
	}, nil, nil)

	w := adminPost(r, "/api/admin/catalog/reload", "test-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["items"])
	assert.Equal(t, 1, f.res.Catalog().Len())
}

func TestReloadCatalog_BrokenFile(t *testing.T) {
	r, f := newAdminRouter(t, "test-key")
	require.NoError(t, os.WriteFile(f.itemsPath, []byte("{not json"), 0644))

	w := adminPost(r, "/api/admin/catalog/reload", "test-key", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, f.res.Ready())
	assert.Equal(t, 0, f.res.Catalog().Len())
}

func TestCatalogHistory_NewestFirst(t *testing.T) {
	r, f := newAdminRouter(t, "test-key")
	require.NoError(t, os.WriteFile(f.itemsPath, []byte("{not json"), 0644))
	adminPost(r, "/api/admin/catalog/reload", "test-key", "")

	w := adminGet(r, "/api/admin/catalog/history", "test-key")
	require.Equal(t, http.StatusOK, w.Code)
	history := decode(t, w)["history"].([]interface{})
	require.Len(t, history, 2)
	assert.Equal(t, "unavailable", history[0].(map[string]interface{})["status"])
	assert.Equal(t, "ready", history[1].(map[string]interface{})["status"])

	w = adminGet(r, "/api/admin/catalog/history?limit=1", "test-key")
	assert.Len(t, decode(t, w)["history"], 1)
}

// ---- ListSchedulerTasks ----

func TestListSchedulerTasks_Empty(t *testing.T) {
	r, _ := newAdminRouter(t, "test-key")
	w := adminGet(r, "/api/admin/scheduler", "test-key")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Empty(t, resp["tasks"])
}

func TestListSchedulerTasks_WithTicker(t *testing.T) {
	r, f := newAdminRouter(t, "test-key")
	f.sched.AddTicker("session_sweep", time.Minute, func() {})

	w := adminGet(r, "/api/admin/scheduler", "test-key")
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode(t, w)["tasks"].([]interface{})
	require.Len(t, tasks, 1)
	task := tasks[0].(map[string]interface{})
	assert.Equal(t, "session_sweep", task["name"])
	assert.Equal(t, "1m0s", task["interval"])
}
