package db

import (
	"fmt"

	"github.com/ftfvalues/tradecalc/config"
	dbmysql "github.com/ftfvalues/tradecalc/db/mysql"
	dbsqlite "github.com/ftfvalues/tradecalc/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeNone   = "none"
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode. ModeNone (or an
// empty mode) returns a nil *gorm.DB: snapshots then live in the cache only
// and the audit trail is not recorded.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case "", ModeNone:
		return nil, nil
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("db: mysql mode needs database.mysql_dsn")
		}
		return dbmysql.Open(cfg.MySQLDSN, dbmysql.Pool{
			MaxOpen: cfg.MySQLMaxOpen,
			MaxIdle: cfg.MySQLMaxIdle,
			MaxLife: cfg.MySQLMaxLife,
		})
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
