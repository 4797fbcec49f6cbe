package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftfvalues/tradecalc/game/item"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Status is the load state of the catalog.
type Status string

const (
	StatusPending     Status = "pending"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
)

// ItemsFile is the on-disk shape of the item dataset.
type ItemsFile struct {
	Items []item.Definition `json:"items"`
}

// CatalogStatus describes the last load attempt.
type CatalogStatus struct {
	Status         Status    `json:"status"`
	Items          int       `json:"items"`
	SplitOverrides int       `json:"split_overrides"`
	FullValues     int       `json:"full_values"`
	LoadedAt       time.Time `json:"loaded_at,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// ReloadEvent is the payload of hook.OnCatalogReload.
type ReloadEvent struct {
	Status CatalogStatus
}

type loaded struct {
	catalog    *item.Catalog
	exceptions *item.ExceptionRegistry
	status     CatalogStatus
}

// Loader reads the item dataset and the exception registry and publishes
// them as one immutable pair. Readers never block on a reload.
type Loader struct {
	ItemsPath      string
	ExceptionsPath string

	current atomic.Pointer[loaded]
	mu      sync.Mutex // serialises Load
	hooks   *hook.HookCenter
	logger  *zap.Logger
}

// NewLoader creates a Loader in the pending state. hooks may be nil.
func NewLoader(itemsPath, exceptionsPath string, hooks *hook.HookCenter, logger *zap.Logger) *Loader {
	l := &Loader{
		ItemsPath:      itemsPath,
		ExceptionsPath: exceptionsPath,
		hooks:          hooks,
		logger:         logger,
	}
	l.current.Store(&loaded{
		catalog:    item.NewCatalog(nil),
		exceptions: item.NewExceptionRegistry(item.ExceptionLists{}),
		status:     CatalogStatus{Status: StatusPending},
	})
	return l
}

// Load reads both files and swaps them in. A missing or malformed item
// dataset leaves the loader unavailable with an empty catalog; a missing
// exception file means an empty registry. The returned error is the dataset
// error, if any.
func (l *Loader) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := &loaded{}
	lists, exErr := LoadExceptions(l.ExceptionsPath)
	if exErr != nil {
		l.logger.Warn("exception registry unreadable, using defaults",
			zap.String("path", l.ExceptionsPath), zap.Error(exErr))
	}
	next.exceptions = item.NewExceptionRegistry(lists)
	split, full := next.exceptions.Counts()

	defs, err := LoadItems(l.ItemsPath)
	if err != nil {
		next.catalog = item.NewCatalog(nil)
		next.status = CatalogStatus{Status: StatusUnavailable, Error: err.Error()}
		l.logger.Error("catalog unavailable", zap.String("path", l.ItemsPath), zap.Error(err))
	} else {
		next.catalog = item.NewCatalog(defs)
		next.status = CatalogStatus{
			Status:   StatusReady,
			Items:    next.catalog.Len(),
			LoadedAt: time.Now().UTC(),
		}
		l.logger.Info("catalog loaded",
			zap.Int("items", next.catalog.Len()),
			zap.Int("split_overrides", split),
			zap.Int("full_values", full))
	}
	next.status.SplitOverrides = split
	next.status.FullValues = full
	l.current.Store(next)

	if l.hooks != nil {
		if _, hookErr := l.hooks.Trigger(ctx, hook.OnCatalogReload, &ReloadEvent{Status: next.status}); hookErr != nil {
			l.logger.Warn("catalog reload hook failed", zap.Error(hookErr))
		}
	}
	return err
}

// Catalog returns the current catalog. It is empty unless Ready.
func (l *Loader) Catalog() *item.Catalog { return l.current.Load().catalog }

// Exceptions returns the current exception registry.
func (l *Loader) Exceptions() *item.ExceptionRegistry { return l.current.Load().exceptions }

// Ready reports whether the last load succeeded.
func (l *Loader) Ready() bool { return l.current.Load().status.Status == StatusReady }

// Status returns the outcome of the last load attempt.
func (l *Loader) Status() CatalogStatus { return l.current.Load().status }

// LoadItems reads an item dataset file.
func LoadItems(path string) ([]item.Definition, error) {
	var file ItemsFile
	if err := loadJSONObject(path, &file); err != nil {
		return nil, err
	}
	if file.Items == nil {
		return nil, fmt.Errorf("resource: parse %s: missing \"items\" array", path)
	}
	return file.Items, nil
}

// LoadExceptions reads the exception registry. YAML is used for .yaml/.yml
// paths, JSON otherwise. An empty path or a missing file yields empty lists.
func LoadExceptions(path string) (item.ExceptionLists, error) {
	var lists item.ExceptionLists
	if path == "" {
		return lists, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return lists, nil
	}
	if err != nil {
		return lists, fmt.Errorf("resource: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &lists)
	default:
		err = json.Unmarshal(data, &lists)
	}
	if err != nil {
		return item.ExceptionLists{}, fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return lists, nil
}

func loadJSONObject[T any](path string, out *T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("resource: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return nil
}
