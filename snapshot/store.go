package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ftfvalues/tradecalc/cache"
	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/ftfvalues/tradecalc/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store saves and loads session snapshots. Load returns
// trade.ErrSnapshotNotFound when nothing is stored under id.
type Store interface {
	Save(ctx context.Context, snap *trade.Snapshot) error
	Load(ctx context.Context, id string) (*trade.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// KeyPrefix namespaces snapshot keys in the cache.
const KeyPrefix = "trade:snapshot:"

// CacheStore keeps encoded snapshots in the local or Redis cache.
type CacheStore struct {
	c   cache.Cache
	ttl time.Duration
}

// NewCacheStore creates a CacheStore. Each save or load restarts the ttl;
// ttl <= 0 keeps snapshots forever.
func NewCacheStore(c cache.Cache, ttl time.Duration) *CacheStore {
	return &CacheStore{c: c, ttl: ttl}
}

func (s *CacheStore) Save(ctx context.Context, snap *trade.Snapshot) error {
	enc, err := Encode(snap)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, KeyPrefix+snap.ID, enc, s.ttl)
}

func (s *CacheStore) Load(ctx context.Context, id string) (*trade.Snapshot, error) {
	v, err := s.c.Get(ctx, KeyPrefix+id)
	if cache.IsNotFound(err) {
		return nil, trade.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: cache get: %w", err)
	}
	if s.ttl > 0 {
		// reading a snapshot keeps it alive for another ttl
		if err := s.c.Expire(ctx, KeyPrefix+id, s.ttl); err != nil && !cache.IsNotFound(err) {
			return nil, fmt.Errorf("snapshot: cache expire: %w", err)
		}
	}
	return Decode(v)
}

func (s *CacheStore) Delete(ctx context.Context, id string) error {
	return s.c.Del(ctx, KeyPrefix+id)
}

// DBStore keeps snapshots in the trade_snapshots table.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore creates a DBStore.
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Save(ctx context.Context, snap *trade.Snapshot) error {
	raw, err := Marshal(snap)
	if err != nil {
		return err
	}
	row := model.TradeSnapshot{
		SessionID:  snap.ID,
		Version:    snap.Version,
		Modifier:   string(snap.Modifier),
		Unit:       string(snap.Unit),
		YourCount:  len(snap.Your),
		TheirCount: len(snap.Their),
		Payload:    datatypes.JSON(raw),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "modifier", "unit", "your_count", "their_count", "payload", "updated_at"}),
	}).Create(&row).Error
}

func (s *DBStore) Load(ctx context.Context, id string) (*trade.Snapshot, error) {
	var row model.TradeSnapshot
	err := s.db.WithContext(ctx).Where("session_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, trade.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: db load: %w", err)
	}
	return Unmarshal(row.Payload)
}

func (s *DBStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", id).Delete(&model.TradeSnapshot{}).Error
}

// Tiered writes through every store and reads from the first one holding
// the snapshot, backfilling the faster tiers it skipped.
type Tiered struct {
	stores []Store
	logger *zap.Logger
}

// NewTiered orders stores fastest first. Nil stores are skipped.
func NewTiered(logger *zap.Logger, stores ...Store) *Tiered {
	t := &Tiered{logger: logger}
	for _, s := range stores {
		if s != nil {
			t.stores = append(t.stores, s)
		}
	}
	return t
}

func (t *Tiered) Save(ctx context.Context, snap *trade.Snapshot) error {
	var errs []error
	for _, s := range t.stores {
		if err := s.Save(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tiered) Load(ctx context.Context, id string) (*trade.Snapshot, error) {
	var firstErr error
	for i, s := range t.stores {
		snap, err := s.Load(ctx, id)
		if err == nil {
			for _, faster := range t.stores[:i] {
				if berr := faster.Save(ctx, snap); berr != nil {
					t.logger.Warn("snapshot backfill failed", zap.String("session_id", id), zap.Error(berr))
				}
			}
			return snap, nil
		}
		if !errors.Is(err, trade.ErrSnapshotNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, trade.ErrSnapshotNotFound
}

func (t *Tiered) Delete(ctx context.Context, id string) error {
	var errs []error
	for _, s := range t.stores {
		if err := s.Delete(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
