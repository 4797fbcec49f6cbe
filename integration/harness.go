package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apirest "github.com/ftfvalues/tradecalc/api/rest"
	"github.com/ftfvalues/tradecalc/api/sse"
	apows "github.com/ftfvalues/tradecalc/api/ws"
	"github.com/ftfvalues/tradecalc/audit"
	"github.com/ftfvalues/tradecalc/cache"
	"github.com/ftfvalues/tradecalc/config"
	"github.com/ftfvalues/tradecalc/game/trade"
	mw "github.com/ftfvalues/tradecalc/middleware"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"github.com/ftfvalues/tradecalc/resource"
	"github.com/ftfvalues/tradecalc/scheduler"
	"github.com/ftfvalues/tradecalc/snapshot"
	"github.com/ftfvalues/tradecalc/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the admin key every TestServer is configured with.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB        *gorm.DB
	Cache     cache.Cache
	PubSub    cache.PubSub
	Hooks     *hook.HookCenter
	Res       *resource.Loader
	Trades    *trade.Service
	Persister *snapshot.Persister
	Audit     *audit.Service
	Sched     *scheduler.Scheduler
	Server    *httptest.Server
	URL       string // http://127.0.0.1:<port>
	WSURL     string // ws://127.0.0.1:<port>/ws

	ItemsPath      string
	ExceptionsPath string
}

// NewTestServer creates a fully wired server backed by SQLite and the local
// cache. "Ruby Sword" is a split override and "Golden Crown" a full-value
// exception. It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	itemsPath, exPath := testutil.WriteCatalog(t, t.TempDir(), nil, []string{"Ruby Sword"}, []string{"Golden Crown"})

	sec := config.SecurityConfig{
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	hc := hook.NewHookCenter()
	sched := scheduler.New(logger)

	// ---- Persistence ----
	store := snapshot.NewTiered(logger, snapshot.NewCacheStore(c, time.Hour), snapshot.NewDBStore(db))
	persister := snapshot.NewPersister(store, sched, 0, logger)
	persister.Register(hc)

	auditSvc := audit.New(db, logger)
	auditSvc.Register(hc)
	sse.NewPublisher(pubsub, logger).Register(hc)

	// ---- Catalog / Trades ----
	reloadLog := resource.NewReloadLog(c, 10, logger)
	reloadLog.Register(hc)
	res := resource.NewLoader(itemsPath, exPath, hc, logger)
	require.NoError(t, res.Load(context.Background()))
	tradeSvc := trade.NewService(res, persister, hc, logger)

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.NewTradeHandlers(tradeSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok", "catalog": res.Status().Status})
	})

	tradeH := apirest.NewTradeHandler(tradeSvc, logger)
	catalogH := apirest.NewCatalogHandler(res)
	adminH := apirest.NewAdminHandler(tradeSvc, res, persister, sched, logger)
	adminH.SetReloadLog(reloadLog)

	api := r.Group("/api")
	{
		tradeH.Routes(api.Group("/trades"))

		catalogG := api.Group("/catalog")
		catalogG.GET("", catalogH.List)
		catalogG.GET("/status", catalogH.Status)
		catalogG.GET("/summary", catalogH.Summary)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/catalog/reload", adminH.ReloadCatalog)
		adminG.GET("/catalog/history", adminH.CatalogHistory)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	r.GET("/ws", apows.NewHandler(tradeSvc, sec, wsRouter, logger).ServeWS)
	sseH := sse.NewHandler(pubsub, tradeSvc, logger)
	sseH.SetKeepalive(time.Hour)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL

	ts := &TestServer{
		DB:             db,
		Cache:          c,
		PubSub:         pubsub,
		Hooks:          hc,
		Res:            res,
		Trades:         tradeSvc,
		Persister:      persister,
		Audit:          auditSvc,
		Sched:          sched,
		Server:         server,
		URL:            url,
		WSURL:          "ws" + url[len("http"):] + "/ws",
		ItemsPath:      itemsPath,
		ExceptionsPath: exPath,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the server and background workers. It is safe to call
// more than once.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Audit.Stop(context.Background())
	ts.Sched.Stop()
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, header http.Header) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with a JSON body.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, nil)
}

// Put sends a PUT request with a JSON body.
func (ts *TestServer) Put(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPut, path, body, nil)
}

// Get sends a GET request.
func (ts *TestServer) Get(t *testing.T, path string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, nil)
}

// Delete sends a DELETE request.
func (ts *TestServer) Delete(t *testing.T, path string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodDelete, path, nil, nil)
}

// Admin sends an admin request carrying the configured key.
func (ts *TestServer) Admin(t *testing.T, method, path string) *http.Response {
	t.Helper()
	return ts.do(t, method, path, nil, http.Header{"X-Admin-Key": []string{AdminKey}})
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// CreateTrade opens a new session over REST and returns its state.
func (ts *TestServer) CreateTrade(t *testing.T) trade.State {
	t.Helper()
	resp := ts.PostJSON(t, "/api/trades", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var st trade.State
	ReadJSON(t, resp, &st)
	return st
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop to avoid gorilla/websocket's SetReadDeadline bug.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult // buffered channel from readLoop
}

type readResult struct {
	data []byte
	err  error
}

// WSPacket is a decoded server packet.
type WSPacket struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectWS dials the WS endpoint. An empty session id opens a new session.
func (ts *TestServer) ConnectWS(t *testing.T, session string) *WSClient {
	t.Helper()
	url := ts.WSURL
	if session != "" {
		url += "?session=" + session
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(func() { conn.Close() })
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet and returns its sequence number.
func (wc *WSClient) Send(msgType string, payload interface{}) uint64 {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(WSPacket{Seq: seq, Type: msgType, Payload: payloadJSON})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
	return seq
}

// Recv reads one packet with a timeout.
func (wc *WSClient) Recv(timeout time.Duration) WSPacket {
	wc.t.Helper()
	select {
	case res := <-wc.readCh:
		require.NoError(wc.t, res.err, "WS recv failed")
		var pkt WSPacket
		require.NoError(wc.t, json.Unmarshal(res.data, &pkt))
		return pkt
	case <-time.After(timeout):
		wc.t.Fatal("WS recv timed out")
	}
	return WSPacket{}
}

// RecvType reads packets until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) WSPacket {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
		}
		if pkt := wc.Recv(remaining); pkt.Type == msgType {
			return pkt
		}
	}
}

// RecvState reads the next trade_state packet and decodes it.
func (wc *WSClient) RecvState(timeout time.Duration) trade.State {
	wc.t.Helper()
	pkt := wc.RecvType(apows.TypeTradeState, timeout)
	var st trade.State
	require.NoError(wc.t, json.Unmarshal(pkt.Payload, &st))
	return st
}

// --- SSE client ---

// SSEEvent is one server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// SSEClient reads events from /sse in the background.
type SSEClient struct {
	t      *testing.T
	events chan SSEEvent
}

// ConnectSSE subscribes to a session's event stream.
func (ts *TestServer) ConnectSSE(t *testing.T, session string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?session="+session, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})

	sc := &SSEClient{t: t, events: make(chan SSEEvent, 64)}
	go func() {
		defer close(sc.events)
		r := bufio.NewReader(resp.Body)
		var ev SSEEvent
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.Name != "":
				sc.events <- ev
				ev = SSEEvent{}
			}
		}
	}()
	return sc
}

// Next waits for the next event with the given name.
func (sc *SSEClient) Next(name string, timeout time.Duration) SSEEvent {
	sc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sc.events:
			require.True(sc.t, ok, "SSE stream closed")
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			sc.t.Fatalf("timed out waiting for SSE event %q", name)
		}
	}
}
