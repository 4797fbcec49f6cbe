package resource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ftfvalues/tradecalc/cache"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"go.uber.org/zap"
)

// ReloadLogKey is the cache list holding recent load attempts, newest first.
const ReloadLogKey = "catalog:reloads"

// ReloadLog records every catalog load attempt in a capped cache list so
// operators can see when the dataset last changed or failed to load.
type ReloadLog struct {
	c      cache.Cache
	size   int64
	logger *zap.Logger
}

// NewReloadLog creates a ReloadLog keeping at most size entries (min 1).
func NewReloadLog(c cache.Cache, size int, logger *zap.Logger) *ReloadLog {
	if size < 1 {
		size = 1
	}
	return &ReloadLog{c: c, size: int64(size), logger: logger}
}

// Register records each hook.OnCatalogReload event.
func (l *ReloadLog) Register(hc *hook.HookCenter) {
	hc.Register(hook.OnCatalogReload, 400, "reload_log", func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
		if ev, ok := data.(*ReloadEvent); ok {
			if err := l.Record(ctx, ev.Status); err != nil {
				l.logger.Warn("catalog reload log write failed", zap.Error(err))
			}
		}
		return data, nil
	})
}

// Record pushes st and trims the list to size.
func (l *ReloadLog) Record(ctx context.Context, st CatalogStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := l.c.LPush(ctx, ReloadLogKey, string(data)); err != nil {
		return err
	}
	return l.c.LTrim(ctx, ReloadLogKey, 0, l.size-1)
}

// Recent returns up to n recorded attempts, newest first. n <= 0 returns all.
func (l *ReloadLog) Recent(ctx context.Context, n int) ([]CatalogStatus, error) {
	stop := int64(n) - 1
	if n <= 0 {
		stop = -1
	}
	raw, err := l.c.LRange(ctx, ReloadLogKey, 0, stop)
	if err != nil {
		return nil, err
	}
	out := make([]CatalogStatus, 0, len(raw))
	for _, s := range raw {
		var st CatalogStatus
		if err := json.Unmarshal([]byte(s), &st); err != nil {
			return nil, fmt.Errorf("resource: decode reload log: %w", err)
		}
		out = append(out, st)
	}
	return out, nil
}
