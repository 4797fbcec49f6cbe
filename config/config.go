package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Trade    TradeConfig    `mapstructure:"trade"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Debug     bool   `mapstructure:"debug"`
	AdminKey  string `mapstructure:"admin_key"`
	StaticDir string `mapstructure:"static_dir"` // static calculator site, served at /
}

type CatalogConfig struct {
	ItemsPath      string        `mapstructure:"items_path"`
	ExceptionsPath string        `mapstructure:"exceptions_path"` // .json, .yaml or .yml
	ReloadInterval time.Duration `mapstructure:"reload_interval"` // 0 disables periodic reload
	ReloadLogSize  int           `mapstructure:"reload_log_size"` // load attempts kept for /api/admin/catalog/history
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // none | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type TradeConfig struct {
	// SessionTTL is how long an idle session stays in memory. Its snapshot
	// is kept in the cache for SnapshotTTL.
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`
	PersistDebounce time.Duration `mapstructure:"persist_debounce"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

type SecurityConfig struct {
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// AdminIPs restricts /api/admin to these IPs or CIDRs. Empty allows any.
	AdminIPs []string `mapstructure:"admin_ips"`
}

// EnvPrefix prefixes environment overrides, e.g. TRADECALC_SERVER_PORT.
const EnvPrefix = "TRADECALC"

// Load reads config from the given YAML file path. An empty path uses
// defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("catalog.items_path", "./data/ftf_items.json")
	v.SetDefault("catalog.exceptions_path", "./data/shg_exceptions.json")
	v.SetDefault("catalog.reload_interval", "5m")
	v.SetDefault("catalog.reload_log_size", 20)
	v.SetDefault("database.mode", "none")
	v.SetDefault("database.sqlite_path", "./data/tradecalc.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "ftf:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("trade.session_ttl", "30m")
	v.SetDefault("trade.snapshot_ttl", "168h")
	v.SetDefault("trade.persist_debounce", "150ms")
	v.SetDefault("trade.sweep_interval", "1m")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.allowed_origins", []string{})
	v.SetDefault("security.admin_ips", []string{})

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
