package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"github.com/ftfvalues/tradecalc/scheduler"
	"go.uber.org/zap"
)

const hookName = "snapshot_persister"

// Persister writes session snapshots after mutations. Writes for one session
// are debounced: only the last snapshot of a burst is saved.
type Persister struct {
	store    Store
	sched    *scheduler.Scheduler
	debounce time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	pending  map[string]*trade.Snapshot
	inflight map[string]int
	// sessions closed while a save was in flight; the last save deletes again
	closed map[string]bool

	saved  atomic.Int64
	failed atomic.Int64
	logger *zap.Logger
}

// Stats are the persister counters.
type Stats struct {
	Pending int   `json:"pending"`
	Saved   int64 `json:"saved"`
	Failed  int64 `json:"failed"`
}

// NewPersister creates a Persister. A debounce <= 0 saves synchronously.
func NewPersister(store Store, sched *scheduler.Scheduler, debounce time.Duration, logger *zap.Logger) *Persister {
	return &Persister{
		store:    store,
		sched:    sched,
		debounce: debounce,
		timeout:  5 * time.Second,
		pending:  make(map[string]*trade.Snapshot),
		inflight: make(map[string]int),
		closed:   make(map[string]bool),
		logger:   logger,
	}
}

// Register attaches the persister to the trade hooks.
func (p *Persister) Register(hc *hook.HookCenter) {
	hc.Register(hook.AfterTradeMutate, 100, hookName, p.onMutate)
	hc.Register(hook.OnTradeClose, 100, hookName, p.onClose)
}

// Load implements trade.SnapshotLoader.
func (p *Persister) Load(ctx context.Context, id string) (*trade.Snapshot, error) {
	p.mu.Lock()
	snap := p.pending[id]
	p.mu.Unlock()
	if snap != nil {
		return snap, nil
	}
	return p.store.Load(ctx, id)
}

func (p *Persister) onMutate(ctx context.Context, _ string, data interface{}) (interface{}, error) {
	ev, ok := data.(*trade.MutationEvent)
	if !ok || ev.Snapshot == nil {
		return data, nil
	}
	id := ev.SessionID
	p.mu.Lock()
	delete(p.closed, id)
	if p.debounce <= 0 || p.sched == nil {
		p.inflight[id]++
		p.mu.Unlock()
		return data, p.saveTracked(ctx, id, ev.Snapshot)
	}
	p.pending[id] = ev.Snapshot
	p.mu.Unlock()
	p.sched.AddDelay(taskName(id), p.debounce, func() { p.flushOne(id) })
	return data, nil
}

func (p *Persister) onClose(ctx context.Context, _ string, data interface{}) (interface{}, error) {
	ev, ok := data.(*trade.SessionEvent)
	if !ok {
		return data, nil
	}
	if p.sched != nil {
		p.sched.Remove(taskName(ev.SessionID))
	}
	p.mu.Lock()
	delete(p.pending, ev.SessionID)
	if p.inflight[ev.SessionID] > 0 {
		p.closed[ev.SessionID] = true
	}
	p.mu.Unlock()
	return data, p.store.Delete(ctx, ev.SessionID)
}

func (p *Persister) flushOne(id string) {
	p.mu.Lock()
	snap := p.pending[id]
	delete(p.pending, id)
	if snap != nil {
		p.inflight[id]++
	}
	p.mu.Unlock()
	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_ = p.saveTracked(ctx, id, snap)
}

// saveTracked saves snap for a caller that has already counted itself in
// p.inflight[id]. If the session was closed meanwhile, the last in-flight
// save deletes the stored snapshot again.
func (p *Persister) saveTracked(ctx context.Context, id string, snap *trade.Snapshot) error {
	err := p.save(ctx, snap)

	p.mu.Lock()
	p.inflight[id]--
	reap := false
	if p.inflight[id] <= 0 {
		delete(p.inflight, id)
		reap = p.closed[id]
		delete(p.closed, id)
	}
	p.mu.Unlock()

	if reap {
		if derr := p.store.Delete(ctx, id); derr != nil {
			p.logger.Warn("snapshot delete after close failed", zap.String("session_id", id), zap.Error(derr))
		}
	}
	return err
}

func (p *Persister) save(ctx context.Context, snap *trade.Snapshot) error {
	if err := p.store.Save(ctx, snap); err != nil {
		p.failed.Add(1)
		p.logger.Warn("snapshot save failed", zap.String("session_id", snap.ID), zap.Error(err))
		return err
	}
	p.saved.Add(1)
	return nil
}

// Flush saves every pending snapshot immediately. Called on shutdown.
func (p *Persister) Flush(ctx context.Context) {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[string]*trade.Snapshot)
	p.mu.Unlock()
	for id, snap := range pending {
		if p.sched != nil {
			p.sched.Remove(taskName(id))
		}
		_ = p.save(ctx, snap)
	}
}

// Stats returns the current counters.
func (p *Persister) Stats() Stats {
	p.mu.Lock()
	n := len(p.pending)
	p.mu.Unlock()
	return Stats{Pending: n, Saved: p.saved.Load(), Failed: p.failed.Load()}
}

func taskName(id string) string { return "persist:" + id }
