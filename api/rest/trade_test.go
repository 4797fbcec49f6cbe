package rest_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/ftfvalues/tradecalc/api/rest"
	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTradeRouter(t *testing.T) (*gin.Engine, *fixture) {
	f := newFixture(t)
	r := gin.New()
	rest.NewTradeHandler(f.svc, nopLogger()).Routes(r.Group("/api/trades"))
	return r, f
}

func createTrade(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/trades", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := decode(t, w)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func sideOf(t *testing.T, resp map[string]interface{}, side string) map[string]interface{} {
	t.Helper()
	m, ok := resp[side].(map[string]interface{})
	require.True(t, ok, "missing side %q", side)
	return m
}

func entriesOf(t *testing.T, resp map[string]interface{}, side string) []interface{} {
	t.Helper()
	es, _ := sideOf(t, resp, side)["entries"].([]interface{})
	return es
}

func TestTrade_CreateAndGet(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)

	w := doJSON(r, http.MethodGet, "/api/trades/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, id, resp["id"])
	assert.Equal(t, "fv", resp["unit"])
	cmp := resp["comparison"].(map[string]interface{})
	assert.Equal(t, "no_data", cmp["outcome"])
	assert.Equal(t, 0.5, cmp["ratio"])
}

func TestTrade_GetUnknown(t *testing.T) {
	r, _ := newTradeRouter(t)
	w := doJSON(r, http.MethodGet, "/api/trades/not-a-session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, trade.CodeSessionNotFound, decode(t, w)["code"])
}

func TestTrade_LegendaryScenario(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	base := "/api/trades/" + id

	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPut, base+"/modifier", map[string]string{"modifier": "h"}).Code)
	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, base+"/your/items", map[string]string{"name": "crown"}).Code)
	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, base+"/your/items/0/step", map[string]int{"delta": 1}).Code)
	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, base+"/your/filler", map[string]int{"quantity": 50}).Code)

	w := doJSON(r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	your := sideOf(t, resp, "your")
	assert.Equal(t, "1,450", your["display"])
	assert.Equal(t, float64(1450), your["combined"])

	cmp := resp["comparison"].(map[string]interface{})
	assert.Equal(t, "loss", cmp["outcome"])
	assert.Equal(t, "1,450", cmp["display"])

	// hv converts the catalog part only: 1400/40 + 50
	w = doJSON(r, http.MethodPut, base+"/unit", map[string]bool{"toggle": true})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, "hv", resp["unit"])
	assert.Equal(t, "85", sideOf(t, resp, "your")["display"])
}

func TestTrade_SplitOverride(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	base := "/api/trades/" + id

	doJSON(r, http.MethodPut, base+"/modifier", map[string]string{"modifier": "gem"})
	w := doJSON(r, http.MethodPost, base+"/their/items", map[string]string{"name": "Ruby Sword"})
	require.Equal(t, http.StatusOK, w.Code)
	entries := entriesOf(t, decode(t, w), "their")
	require.Len(t, entries, 1)
	e := entries[0].(map[string]interface{})
	assert.Equal(t, float64(160), e["contribution"])
	assert.Equal(t, true, e["badge"])
}

func TestTrade_UnknownItem(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	w := doJSON(r, http.MethodPost, "/api/trades/"+id+"/your/items", map[string]string{"name": "Nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, trade.CodeItemNotFound, decode(t, w)["code"])
}

func TestTrade_MissingName(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	w := doJSON(r, http.MethodPost, "/api/trades/"+id+"/your/items", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrade_BadSide(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	w := doJSON(r, http.MethodPost, "/api/trades/"+id+"/middle/filler", map[string]int{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, trade.CodeUnknownSide, decode(t, w)["code"])
}

func TestTrade_FillerEmptyBody(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	path := "/api/trades/" + id + "/their/filler"

	w := doJSON(r, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	es := entriesOf(t, decode(t, w), "their")
	require.Len(t, es, 1)
	entry := es[0].(map[string]interface{})
	assert.Equal(t, true, entry["filler"])
	assert.Equal(t, float64(0), entry["quantity"])

	w = doJSON(r, http.MethodPost, path, "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, trade.CodeBadRequest, decode(t, w)["code"])
}

func TestTrade_CapacityConflict(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	path := "/api/trades/" + id + "/your/filler"
	for i := 0; i < trade.MaxSlots; i++ {
		require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, path, map[string]int{"quantity": 1}).Code)
	}
	w := doJSON(r, http.MethodPost, path, map[string]int{"quantity": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, trade.CodeCapacityExceeded, resp["code"])
	state := resp["state"].(map[string]interface{})
	assert.Len(t, entriesOf(t, state, "your"), trade.MaxSlots)
}

func TestTrade_QuantityEditCommit(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	base := "/api/trades/" + id + "/your/items/0"
	doJSON(r, http.MethodPost, "/api/trades/"+id+"/your/items", map[string]string{"name": "Stick"})

	w := doJSON(r, http.MethodPut, base+"/quantity", map[string]string{"input": "1a2"})
	require.Equal(t, http.StatusOK, w.Code)
	e := entriesOf(t, decode(t, w), "your")[0].(map[string]interface{})
	assert.Equal(t, float64(12), e["quantity"])

	// empty input keeps the committed quantity
	w = doJSON(r, http.MethodPut, base+"/quantity", map[string]string{"input": ""})
	require.Equal(t, http.StatusOK, w.Code)
	e = entriesOf(t, decode(t, w), "your")[0].(map[string]interface{})
	assert.Equal(t, "", e["input"])
	assert.Equal(t, float64(12), e["quantity"])

	w = doJSON(r, http.MethodPost, base+"/commit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	e = entriesOf(t, decode(t, w), "your")[0].(map[string]interface{})
	assert.Equal(t, "12", e["input"])
	assert.Nil(t, e["editing"])
}

func TestTrade_RemoveAndIndexErrors(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	base := "/api/trades/" + id
	doJSON(r, http.MethodPost, base+"/your/items", map[string]string{"name": "Stick"})
	doJSON(r, http.MethodPost, base+"/your/items", map[string]string{"name": "Crown"})

	w := doJSON(r, http.MethodDelete, base+"/your/items/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := entriesOf(t, decode(t, w), "your")
	require.Len(t, entries, 1)
	assert.Equal(t, "Crown", entries[0].(map[string]interface{})["name"])

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodDelete, base+"/your/items/5", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodDelete, base+"/your/items/x", nil).Code)
}

func TestTrade_ClearAndReset(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	base := "/api/trades/" + id
	doJSON(r, http.MethodPost, base+"/your/items", map[string]string{"name": "Stick"})
	doJSON(r, http.MethodPost, base+"/their/items", map[string]string{"name": "Stick"})

	w := doJSON(r, http.MethodDelete, base+"/their", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Empty(t, entriesOf(t, resp, "their"))
	assert.Len(t, entriesOf(t, resp, "your"), 1)

	w = doJSON(r, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, entriesOf(t, decode(t, w), "your"))
}

func TestTrade_InvalidModifierAndUnit(t *testing.T) {
	r, _ := newTradeRouter(t)
	id := createTrade(t, r)
	w := doJSON(r, http.MethodPut, "/api/trades/"+id+"/modifier", map[string]string{"modifier": "axe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, trade.CodeInvalidModifier, decode(t, w)["code"])

	w = doJSON(r, http.MethodPut, "/api/trades/"+id+"/unit", map[string]string{"unit": "kg"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, trade.CodeInvalidUnit, decode(t, w)["code"])
}

func TestTrade_RestoresAfterEviction(t *testing.T) {
	r, f := newTradeRouter(t)
	id := createTrade(t, r)
	doJSON(r, http.MethodPost, "/api/trades/"+id+"/your/items", map[string]string{"name": "Crown"})

	require.Equal(t, 1, f.svc.Sweep(-1))
	require.Equal(t, 0, f.svc.Count())

	w := doJSON(r, http.MethodGet, "/api/trades/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, entriesOf(t, decode(t, w), "your"), 1)
}

func TestTrade_CloseForgetsSnapshot(t *testing.T) {
	r, f := newTradeRouter(t)
	id := createTrade(t, r)
	doJSON(r, http.MethodPost, "/api/trades/"+id+"/your/items", map[string]string{"name": "Crown"})

	w := doJSON(r, http.MethodDelete, "/api/trades/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, err := f.persister.Load(context.Background(), id)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)

	// reopening the same id starts empty
	w = doJSON(r, http.MethodGet, "/api/trades/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, entriesOf(t, decode(t, w), "your"))
}

func TestTrade_CatalogUnavailable(t *testing.T) {
	r, f := newTradeRouter(t)
	f.res.ItemsPath = f.itemsPath + ".missing"
	require.Error(t, f.res.Load(context.Background()))

	id := createTrade(t, r)
	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/trades/%s/your/items", id), map[string]string{"name": "Crown"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, trade.CodeCatalogUnavailable, decode(t, w)["code"])

	// filler still works without a catalog
	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/trades/%s/your/filler", id), map[string]int{"quantity": 3})
	assert.Equal(t, http.StatusOK, w.Code)
}
