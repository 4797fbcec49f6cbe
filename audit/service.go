package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/middleware"
	"github.com/ftfvalues/tradecalc/model"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID    string
	SessionID  string
	Action     string
	Version    uint64
	Detail     interface{}
	Outcome    string
	Difference float64
	Error      string
	IP         string
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db     *gorm.DB
	ch     chan *model.AuditLog
	stopCh chan struct{}
	wg     sync.WaitGroup
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, 1024),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Register records every trade mutation.
func (svc *Service) Register(hc *hook.HookCenter) {
	svc.hooks = hc
	hc.Register(hook.AfterTradeMutate, 200, "audit", func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
		if ev, ok := data.(*trade.MutationEvent); ok {
			svc.Log(EntryFromMutation(ctx, ev))
		}
		return data, nil
	})
}

type sideDetail struct {
	Entries int     `json:"entries"`
	Total   float64 `json:"total"`
}

// EntryFromMutation builds an AuditEntry from a mutation event. Trace ID and
// client IP come from the request context when present.
func EntryFromMutation(ctx context.Context, ev *trade.MutationEvent) AuditEntry {
	st := ev.State
	return AuditEntry{
		TraceID:   middleware.TraceIDFrom(ctx),
		SessionID: ev.SessionID,
		Action:    ev.Action,
		Version:   st.Version,
		Detail: map[string]interface{}{
			"unit":     st.Unit,
			"modifier": st.Modifier,
			"your":     sideDetail{Entries: len(st.Your.Entries), Total: st.Your.Combined},
			"their":    sideDetail{Entries: len(st.Their.Entries), Total: st.Their.Combined},
		},
		Outcome:    string(st.Comparison.Outcome),
		Difference: st.Comparison.Difference,
		IP:         middleware.ClientIPFrom(ctx),
	}
}

// Log enqueues an audit entry for async DB write.
func (svc *Service) Log(entry AuditEntry) {
	detailJSON, _ := json.Marshal(entry.Detail)
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		SessionID:  entry.SessionID,
		Action:     entry.Action,
		Version:    entry.Version,
		Detail:     datatypes.JSON(detailJSON),
		Outcome:    entry.Outcome,
		Difference: entry.Difference,
		Error:      entry.Error,
		IP:         entry.IP,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop detaches the mutation hook, flushes remaining entries and shuts down
// the worker. It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	if svc.hooks != nil {
		svc.hooks.Unregister(hook.AfterTradeMutate, "audit")
	}
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
