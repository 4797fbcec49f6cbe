package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mw "github.com/ftfvalues/tradecalc/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { return zap.NewNop() }

// newClient creates a connectionless Client for testing.
func newClient(sessionID string) *Client {
	return NewClient(sessionID, nil, nop())
}

func makePacket(t *testing.T, seq uint64, msgType string, payload interface{}) []byte {
	t.Helper()
	p, _ := json.Marshal(payload)
	pkt := Packet{Seq: seq, Type: msgType, Payload: p}
	b, err := json.Marshal(pkt)
	require.NoError(t, err)
	return b
}

// recv pops the next packet the client would have written.
func recv(t *testing.T, c *Client) Packet {
	t.Helper()
	select {
	case data := <-c.SendChan:
		var pkt Packet
		require.NoError(t, json.Unmarshal(data, &pkt))
		return pkt
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected a packet within 200ms")
	}
	return Packet{}
}

func assertNoPacket(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.SendChan:
		t.Fatalf("unexpected packet: %s", data)
	default:
	}
}

func TestRouter_On_Dispatch_Basic(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.On("ping", func(ctx context.Context, c *Client, seq uint64, payload json.RawMessage) error {
		called = true
		return nil
	})

	c := newClient("s")
	r.Dispatch(c, makePacket(t, 1, "ping", nil), "127.0.0.1")
	assert.True(t, called)
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(nop())
	c := newClient("s")
	r.Dispatch(c, []byte("not json"), "")
	pkt := recv(t, c)
	assert.Equal(t, TypeError, pkt.Type)
	var p errorPayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &p))
	assert.Equal(t, CodeMalformed, p.Code)
}

func TestRouter_Dispatch_UnknownType(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.On("known", func(_ context.Context, _ *Client, _ uint64, _ json.RawMessage) error {
		called = true
		return nil
	})
	c := newClient("s")
	r.Dispatch(c, makePacket(t, 1, "unknown", nil), "")
	assert.False(t, called)
	pkt := recv(t, c)
	assert.Equal(t, TypeError, pkt.Type)
	assert.Equal(t, uint64(1), pkt.Seq)
}

func TestRouter_Dispatch_AntiReplay_RejectsOldSeq(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *Client, _ uint64, _ json.RawMessage) error {
		callCount++
		return nil
	})
	c := newClient("s")

	// First message with seq=5 → accepted
	r.Dispatch(c, makePacket(t, 5, "msg", nil), "")
	assert.Equal(t, 1, callCount)

	// Same seq=5 → rejected (replay)
	r.Dispatch(c, makePacket(t, 5, "msg", nil), "")
	assert.Equal(t, 1, callCount)

	// Lower seq=3 → rejected
	r.Dispatch(c, makePacket(t, 3, "msg", nil), "")
	assert.Equal(t, 1, callCount)
}

func TestRouter_Dispatch_SeqZero_SkipsAntiReplay(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *Client, _ uint64, _ json.RawMessage) error {
		callCount++
		return nil
	})
	c := newClient("s")
	c.LastSeq = 100 // high seq already seen

	// Seq=0 should bypass anti-replay
	r.Dispatch(c, makePacket(t, 0, "msg", nil), "")
	r.Dispatch(c, makePacket(t, 0, "msg", nil), "")
	assert.Equal(t, 2, callCount)
}

func TestRouter_Dispatch_ContextCarriesMeta(t *testing.T) {
	r := NewRouter(nop())
	var traceID, ip string
	r.On("msg", func(ctx context.Context, _ *Client, _ uint64, _ json.RawMessage) error {
		traceID = mw.TraceIDFrom(ctx)
		ip = mw.ClientIPFrom(ctx)
		return nil
	})
	c := newClient("s")
	r.Dispatch(c, makePacket(t, 1, "msg", nil), "10.0.0.1")
	assert.NotEmpty(t, traceID)
	assert.Equal(t, c.TraceID, traceID)
	assert.Equal(t, "10.0.0.1", ip)
}

func TestRouter_Dispatch_HandlerError_NoPanic(t *testing.T) {
	r := NewRouter(nop())
	r.On("err", func(_ context.Context, _ *Client, _ uint64, _ json.RawMessage) error {
		return assert.AnError
	})
	c := newClient("s")
	r.Dispatch(c, makePacket(t, 1, "err", nil), "")
}

func TestClient_SendAfterClose(t *testing.T) {
	c := newClient("s")
	c.Close()
	c.Close()
	c.SendJSON("x", 0, nil)
	assertNoPacket(t, c)
	assert.True(t, c.IsClosed())
}
