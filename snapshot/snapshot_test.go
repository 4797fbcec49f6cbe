package snapshot

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ftfvalues/tradecalc/game/item"
	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/game/valuation"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"github.com/ftfvalues/tradecalc/scheduler"
	"github.com/ftfvalues/tradecalc/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleSnapshot(t *testing.T) *trade.Snapshot {
	t.Helper()
	s := trade.NewSession(uuid.NewString(), nil)
	_, err := s.AddEntry(trade.SideYour, item.Definition{Name: "Crown", Rarity: item.RarityLegendary, Value: 1000, Stability: "Dropping"}, valuation.ModifierHammer)
	require.NoError(t, err)
	_, err = s.StepQuantity(trade.SideYour, 0, 1)
	require.NoError(t, err)
	_, err = s.AddFiller(trade.SideTheir, 50)
	require.NoError(t, err)
	s.ToggleUnitMode()
	return s.Snapshot()
}

// ---- codec ----

func TestEncodeDecode(t *testing.T) {
	snap := sampleSnapshot(t)
	enc, err := Encode(snap)
	require.NoError(t, err)
	assert.NotContains(t, enc, "Crown", "payload is compressed")

	got, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.Your, got.Your)
	assert.Equal(t, snap.Their, got.Their)
	assert.Equal(t, valuation.UnitCompressed, got.Unit)
	assert.True(t, snap.SavedAt.Equal(got.SavedAt))
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode("%%%not base64")
	assert.ErrorIs(t, err, trade.ErrMalformedSnapshot)

	_, err = Decode(base64.StdEncoding.EncodeToString([]byte("not zstd")))
	assert.ErrorIs(t, err, trade.ErrMalformedSnapshot)
}

func TestUnmarshal_SchemaViolations(t *testing.T) {
	id := uuid.NewString()
	tooMany := `{"quantity":1,"filler":true}` + strings.Repeat(`,{"quantity":1,"filler":true}`, 27)
	cases := map[string]string{
		"not an object":  `[]`,
		"missing unit":   `{"version":1,"id":"` + id + `","your":[],"their":[]}`,
		"bad unit":       `{"version":1,"id":"` + id + `","unit":"kg","your":[],"their":[]}`,
		"bad modifier":   `{"version":1,"id":"` + id + `","unit":"fv","modifier":"x","your":[],"their":[]}`,
		"negative value": `{"version":1,"id":"` + id + `","unit":"fv","your":[{"name":"A","base_value":-1,"quantity":1}],"their":[]}`,
		"fractional qty": `{"version":1,"id":"` + id + `","unit":"fv","your":[{"name":"A","base_value":1,"quantity":1.5}],"their":[]}`,
		"28 entries":     `{"version":1,"id":"` + id + `","unit":"fv","your":[` + tooMany + `],"their":[]}`,
		"future version": `{"version":2,"id":"` + id + `","unit":"fv","your":[],"their":[]}`,
	}
	for name, doc := range cases {
		_, err := Unmarshal([]byte(doc))
		assert.ErrorIs(t, err, trade.ErrMalformedSnapshot, name)
	}
}

func TestUnmarshal_BoundsBeyondSchema(t *testing.T) {
	// valid for the schema, but a catalog entry above 100
	doc := `{"version":1,"id":"x","unit":"fv","your":[{"name":"A","base_value":1,"quantity":500}],"their":null}`
	_, err := Unmarshal([]byte(doc))
	assert.ErrorIs(t, err, trade.ErrMalformedSnapshot)
}

func TestUnmarshal_NullSides(t *testing.T) {
	doc := `{"version":1,"id":"x","unit":"hv","your":null,"their":null}`
	snap, err := Unmarshal([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, snap.Your)
}

// ---- stores ----

func TestCacheStore(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	st := NewCacheStore(c, time.Minute)
	ctx := context.Background()
	snap := sampleSnapshot(t)

	_, err := st.Load(ctx, snap.ID)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)

	require.NoError(t, st.Save(ctx, snap))
	got, err := st.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Your, got.Your)

	require.NoError(t, st.Delete(ctx, snap.ID))
	_, err = st.Load(ctx, snap.ID)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)
}

func TestCacheStore_LoadRefreshesTTL(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	st := NewCacheStore(c, 60*time.Millisecond)
	ctx := context.Background()
	snap := sampleSnapshot(t)
	require.NoError(t, st.Save(ctx, snap))

	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		_, err := st.Load(ctx, snap.ID)
		require.NoError(t, err, "read %d", i)
	}
	time.Sleep(90 * time.Millisecond)
	_, err := st.Load(ctx, snap.ID)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)
}

func TestCacheStore_CorruptEntry(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	require.NoError(t, c.Set(context.Background(), KeyPrefix+"bad", "!!!", 0))
	_, err := NewCacheStore(c, 0).Load(context.Background(), "bad")
	assert.ErrorIs(t, err, trade.ErrMalformedSnapshot)
}

func TestDBStore_Upsert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := NewDBStore(db)
	ctx := context.Background()
	snap := sampleSnapshot(t)

	require.NoError(t, st.Save(ctx, snap))
	snap.Your = nil
	require.NoError(t, st.Save(ctx, snap))

	got, err := st.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Your)
	assert.Len(t, got.Their, 1)

	require.NoError(t, st.Delete(ctx, snap.ID))
	_, err = st.Load(ctx, snap.ID)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)
}

func TestTiered_BackfillsCache(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	cs := NewCacheStore(c, time.Minute)
	ds := NewDBStore(testutil.SetupTestDB(t))
	tiered := NewTiered(zap.NewNop(), cs, ds)
	ctx := context.Background()
	snap := sampleSnapshot(t)

	require.NoError(t, ds.Save(ctx, snap))
	got, err := tiered.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)

	fromCache, err := cs.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Their, fromCache.Their)

	require.NoError(t, tiered.Delete(ctx, snap.ID))
	_, err = tiered.Load(ctx, snap.ID)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)
}

type failingStore struct{ Store }

func (failingStore) Load(context.Context, string) (*trade.Snapshot, error) {
	return nil, errors.New("connection refused")
}

func TestTiered_ReportsBackendError(t *testing.T) {
	tiered := NewTiered(zap.NewNop(), failingStore{})
	_, err := tiered.Load(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, trade.ErrSnapshotNotFound)
}

// ---- persister ----

func newPersister(t *testing.T, debounce time.Duration) (*Persister, *CacheStore, *hook.HookCenter) {
	t.Helper()
	c, _ := testutil.SetupTestCache(t)
	store := NewCacheStore(c, time.Minute)
	sched := scheduler.New(zap.NewNop())
	t.Cleanup(sched.Stop)
	p := NewPersister(store, sched, debounce, zap.NewNop())
	hc := hook.NewHookCenter()
	p.Register(hc)
	return p, store, hc
}

func mutate(t *testing.T, hc *hook.HookCenter, snap *trade.Snapshot) {
	t.Helper()
	_, err := hc.Trigger(context.Background(), hook.AfterTradeMutate, &trade.MutationEvent{
		SessionID: snap.ID, Action: "test", Snapshot: snap,
	})
	require.NoError(t, err)
}

func TestPersister_DebouncesBursts(t *testing.T) {
	p, store, hc := newPersister(t, 40*time.Millisecond)
	snap := sampleSnapshot(t)
	for q := 1; q <= 5; q++ {
		next := *snap
		next.Their = []valuation.Entry{valuation.NewFiller(q)}
		mutate(t, hc, &next)
	}
	assert.Equal(t, 1, p.Stats().Pending)

	// pending snapshots are visible to Load before they are written
	got, err := p.Load(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Their[0].Quantity)

	require.Eventually(t, func() bool { return p.Stats().Saved == 1 }, time.Second, 10*time.Millisecond)
	stored, err := store.Load(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Their[0].Quantity)
	assert.Equal(t, 0, p.Stats().Pending)
}

func TestPersister_SynchronousWithoutDebounce(t *testing.T) {
	p, store, hc := newPersister(t, 0)
	snap := sampleSnapshot(t)
	mutate(t, hc, snap)
	assert.Equal(t, int64(1), p.Stats().Saved)
	_, err := store.Load(context.Background(), snap.ID)
	assert.NoError(t, err)
}

func TestPersister_Flush(t *testing.T) {
	p, store, hc := newPersister(t, time.Hour)
	snap := sampleSnapshot(t)
	mutate(t, hc, snap)
	_, err := store.Load(context.Background(), snap.ID)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)

	p.Flush(context.Background())
	_, err = store.Load(context.Background(), snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, p.Stats().Pending)
}

func TestPersister_CloseDiscards(t *testing.T) {
	p, store, hc := newPersister(t, 0)
	snap := sampleSnapshot(t)
	mutate(t, hc, snap)
	_, err := hc.Trigger(context.Background(), hook.OnTradeClose, &trade.SessionEvent{SessionID: snap.ID})
	require.NoError(t, err)
	_, err = store.Load(context.Background(), snap.ID)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)
	_, err = p.Load(context.Background(), snap.ID)
	assert.ErrorIs(t, err, trade.ErrSnapshotNotFound)
}

func TestPersister_RestoresThroughService(t *testing.T) {
	p, _, hc := newPersister(t, 0)
	svc := trade.NewService(nil, p, hc, zap.NewNop())
	ctx := context.Background()

	sess, err := svc.Open(ctx, "")
	require.NoError(t, err)
	_, err = svc.Apply(ctx, sess.ID, "filler", func(s *trade.Session) (trade.State, error) {
		return s.AddFiller(trade.SideYour, 75)
	})
	require.NoError(t, err)

	// a fresh process: new service, same stores
	svc2 := trade.NewService(nil, p, hc, zap.NewNop())
	again, err := svc2.Open(ctx, sess.ID)
	require.NoError(t, err)
	st := again.State()
	require.Len(t, st.Your.Entries, 1)
	assert.Equal(t, 75, st.Your.Entries[0].Quantity)
}

// gatedStore blocks Save until release is closed.
type gatedStore struct {
	Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Save(ctx context.Context, snap *trade.Snapshot) error {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.Save(ctx, snap)
}

func TestPersister_CloseDuringSaveStaysDeleted(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	inner := NewCacheStore(c, time.Minute)
	gated := &gatedStore{Store: inner, entered: make(chan struct{}, 1), release: make(chan struct{})}
	sched := scheduler.New(zap.NewNop())
	t.Cleanup(sched.Stop)
	p := NewPersister(gated, sched, 10*time.Millisecond, zap.NewNop())
	hc := hook.NewHookCenter()
	p.Register(hc)

	snap := sampleSnapshot(t)
	mutate(t, hc, snap)
	select {
	case <-gated.entered:
	case <-time.After(time.Second):
		t.Fatal("debounced save did not start")
	}

	_, err := hc.Trigger(context.Background(), hook.OnTradeClose, &trade.SessionEvent{SessionID: snap.ID})
	require.NoError(t, err)
	close(gated.release)

	require.Eventually(t, func() bool {
		if p.Stats().Saved != 1 {
			return false
		}
		_, err := inner.Load(context.Background(), snap.ID)
		return errors.Is(err, trade.ErrSnapshotNotFound)
	}, time.Second, 10*time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.inflight)
	assert.Empty(t, p.closed)
}
