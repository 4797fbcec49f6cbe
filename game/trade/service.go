package trade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ftfvalues/tradecalc/game/item"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound    = errors.New("trade: session not found")
	ErrCatalogUnavailable = errors.New("trade: catalog unavailable")
	ErrItemNotFound       = errors.New("trade: item not found")
	ErrSnapshotNotFound   = errors.New("trade: snapshot not found")
)

// CatalogSource is the loaded catalog and exception registry.
type CatalogSource interface {
	ExceptionSource
	Catalog() *item.Catalog
	Ready() bool
}

// SnapshotLoader reads a previously persisted session.
// It returns ErrSnapshotNotFound when nothing is stored under id.
type SnapshotLoader interface {
	Load(ctx context.Context, id string) (*Snapshot, error)
}

// MutationEvent is the payload of hook.AfterTradeMutate.
type MutationEvent struct {
	SessionID string
	Action    string
	State     State
	Snapshot  *Snapshot
}

// SessionEvent is the payload of hook.OnTradeOpen and hook.OnTradeClose.
type SessionEvent struct {
	SessionID string
	Restored  bool
}

// Service hosts the live calculator sessions.
type Service struct {
	catalog CatalogSource
	loader  SnapshotLoader
	hooks   *hook.HookCenter
	mu      sync.RWMutex
	active  map[string]*Session
	logger  *zap.Logger
}

// NewService creates a Service. loader and hooks may be nil.
func NewService(catalog CatalogSource, loader SnapshotLoader, hooks *hook.HookCenter, logger *zap.Logger) *Service {
	if hooks == nil {
		hooks = hook.NewHookCenter()
	}
	return &Service{
		catalog: catalog,
		loader:  loader,
		hooks:   hooks,
		active:  make(map[string]*Session),
		logger:  logger,
	}
}

// Open returns the live session for id, restoring it from persistence when
// it is not in memory. An empty id creates a fresh session. A stored
// snapshot that cannot be read or validated is discarded in favor of empty
// sides.
func (svc *Service) Open(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
		}
		svc.mu.RLock()
		sess := svc.active[id]
		svc.mu.RUnlock()
		if sess != nil {
			return sess, nil
		}
	} else {
		id = uuid.NewString()
	}

	sess := NewSession(id, svc.catalog)
	restored := svc.restore(ctx, sess)

	svc.mu.Lock()
	if existing := svc.active[id]; existing != nil {
		svc.mu.Unlock()
		return existing, nil
	}
	svc.active[id] = sess
	svc.mu.Unlock()

	if _, err := svc.hooks.Trigger(ctx, hook.OnTradeOpen, &SessionEvent{SessionID: id, Restored: restored}); err != nil {
		svc.logger.Debug("trade open hook interrupted", zap.String("session_id", id), zap.Error(err))
	}
	svc.logger.Info("trade session opened", zap.String("session_id", id), zap.Bool("restored", restored))
	return sess, nil
}

func (svc *Service) restore(ctx context.Context, sess *Session) bool {
	if svc.loader == nil {
		return false
	}
	snap, err := svc.loader.Load(ctx, sess.ID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return false
	}
	if err == nil {
		_, err = sess.Restore(snap)
	}
	if err != nil {
		svc.logger.Warn("persistence read failure, starting with empty sides",
			zap.String("session_id", sess.ID), zap.Error(err))
		return false
	}
	return true
}

// Get returns a live session.
func (svc *Service) Get(id string) (*Session, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	sess := svc.active[id]
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Apply runs op against session id. When the operation changed the session,
// hook.AfterTradeMutate fires with the new state and snapshot.
func (svc *Service) Apply(ctx context.Context, id, action string, op func(*Session) (State, error)) (State, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return State{}, err
	}
	before := sess.Version()
	st, opErr := op(sess)
	if st.Version != before {
		svc.afterMutate(ctx, sess, action, st)
	}
	return st, opErr
}

func (svc *Service) afterMutate(ctx context.Context, sess *Session, action string, st State) {
	ev := &MutationEvent{
		SessionID: sess.ID,
		Action:    action,
		State:     st,
		Snapshot:  sess.Snapshot(),
	}
	if _, err := svc.hooks.Trigger(ctx, hook.AfterTradeMutate, ev); err != nil {
		svc.logger.Debug("trade mutate hook interrupted",
			zap.String("session_id", sess.ID), zap.String("action", action), zap.Error(err))
	}
}

// Close drops a session from memory and fires hook.OnTradeClose so stores
// can forget it.
func (svc *Service) Close(ctx context.Context, id string) error {
	svc.mu.Lock()
	sess := svc.active[id]
	delete(svc.active, id)
	svc.mu.Unlock()
	if sess == nil {
		return ErrSessionNotFound
	}
	if _, err := svc.hooks.Trigger(ctx, hook.OnTradeClose, &SessionEvent{SessionID: id}); err != nil {
		svc.logger.Debug("trade close hook interrupted", zap.String("session_id", id), zap.Error(err))
	}
	svc.logger.Info("trade session closed", zap.String("session_id", id))
	return nil
}

// Lookup resolves an item name against the current catalog.
func (svc *Service) Lookup(name string) (item.Definition, error) {
	if svc.catalog == nil || !svc.catalog.Ready() {
		return item.Definition{}, ErrCatalogUnavailable
	}
	def, ok := svc.catalog.Catalog().Lookup(name)
	if !ok {
		return item.Definition{}, fmt.Errorf("%w: %q", ErrItemNotFound, name)
	}
	return def, nil
}

// Sweep evicts sessions idle for longer than ttl. Their persisted snapshots
// stay behind, so a later Open restores them.
func (svc *Service) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	svc.mu.Lock()
	defer svc.mu.Unlock()
	n := 0
	for id, sess := range svc.active {
		if sess.LastUsed().Before(cutoff) {
			delete(svc.active, id)
			n++
		}
	}
	if n > 0 {
		svc.logger.Info("idle trade sessions evicted", zap.Int("count", n))
	}
	return n
}

// Count returns the number of live sessions.
func (svc *Service) Count() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.active)
}
