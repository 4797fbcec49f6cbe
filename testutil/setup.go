package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ftfvalues/tradecalc/cache"
	"github.com/ftfvalues/tradecalc/config"
	dbadapter "github.com/ftfvalues/tradecalc/db"
	"github.com/ftfvalues/tradecalc/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate.
// Each call gets its own database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: ":memory:",
	})
	require.NoError(t, err, "SetupTestDB: Open")
	sqlDB, err := db.DB()
	require.NoError(t, err, "SetupTestDB: DB")
	// every pooled connection would otherwise see its own empty :memory: DB
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	c, ps, err := cache.Open(cache.CacheConfig{}) // empty RedisAddr → LocalCache
	require.NoError(t, err, "SetupTestCache: Open")
	if lc, ok := c.(interface{ Close() }); ok {
		t.Cleanup(lc.Close)
	}
	return c, ps
}

// CatalogItem is one row of a test item dataset.
type CatalogItem struct {
	Name      string      `json:"name"`
	Value     interface{} `json:"value"`
	Rarity    string      `json:"rarity"`
	Demand    string      `json:"demand,omitempty"`
	Stability string      `json:"stability,omitempty"`
	Rank      int         `json:"rank,omitempty"`
}

// DefaultItems is a small dataset covering every valuation branch.
var DefaultItems = []CatalogItem{
	{Name: "Crown", Value: 1000, Rarity: "Legendary", Stability: "Stable", Rank: 1},
	{Name: "Ruby Sword", Value: 200, Rarity: "Epic", Stability: "Doing Well"},
	{Name: "Oak Bow", Value: "1,600", Rarity: "Rare", Stability: "Dropping"},
	{Name: "Stick", Value: 3, Rarity: "Common"},
	{Name: "Golden Crown", Value: 500, Rarity: "Legendary"},
	{Name: "Event Hat", Value: 80, Rarity: "Special"},
}

// WriteCatalog writes an item dataset and an exception registry into dir and
// returns both paths. A nil items slice writes DefaultItems.
func WriteCatalog(t *testing.T, dir string, items []CatalogItem, splitOverride, fullValue []string) (itemsPath, exceptionsPath string) {
	t.Helper()
	if items == nil {
		items = DefaultItems
	}
	itemsPath = filepath.Join(dir, "ftf_items.json")
	writeJSON(t, itemsPath, map[string]interface{}{"items": items})
	exceptionsPath = filepath.Join(dir, "shg_exceptions.json")
	writeJSON(t, exceptionsPath, map[string][]string{
		"exceptions_80_20": nonNil(splitOverride),
		"exceptions_full":  nonNil(fullValue),
	})
	return itemsPath, exceptionsPath
}

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
