package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Progress ProgressConfig `mapstructure:"progress"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port     int      `mapstructure:"port"`
	Debug    bool     `mapstructure:"debug"`
	AdminKey string   `mapstructure:"admin_key"`
	AdminIPs []string `mapstructure:"admin_ips"` // empty allows any client that has the key
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // memory | sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the browser origins permitted by CORS.
	// An empty slice allows all origins (local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type CatalogConfig struct {
	SeedPath string `mapstructure:"seed_path"` // YAML catalog loaded at startup; empty skips seeding
	LRUSize  int    `mapstructure:"lru_size"`
}

type ProgressConfig struct {
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	LockWait           time.Duration `mapstructure:"lock_wait"`
	LeaderboardRefresh time.Duration `mapstructure:"leaderboard_refresh"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// EnvPrefix is prepended to every environment override, e.g.
// LEARNQUEST_DATABASE_MODE overrides database.mode.
const EnvPrefix = "LEARNQUEST"

// Load reads config from the given YAML file path. A missing file is not an
// error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	// .env is optional and only fills variables not already set.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Progress.clamp()
	return cfg, nil
}

// Fallbacks for progress durations that are zero or negative after loading.
const (
	DefaultLockTTL            = 10 * time.Second
	DefaultLockWait           = 5 * time.Second
	DefaultLeaderboardRefresh = 5 * time.Minute
)

func (p *ProgressConfig) clamp() {
	if p.LockTTL <= 0 {
		p.LockTTL = DefaultLockTTL
	}
	if p.LockWait <= 0 {
		p.LockWait = DefaultLockWait
	}
	if p.LeaderboardRefresh <= 0 {
		p.LeaderboardRefresh = DefaultLeaderboardRefresh
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/learnquest.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.postgres_dsn", "")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("catalog.seed_path", "")
	v.SetDefault("catalog.lru_size", 1024)
	v.SetDefault("progress.lock_ttl", DefaultLockTTL)
	v.SetDefault("progress.lock_wait", DefaultLockWait)
	v.SetDefault("progress.leaderboard_refresh", DefaultLeaderboardRefresh)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// viper reports a missing explicit config file as an *fs.PathError rather
// than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such file") || strings.Contains(msg, "cannot find the file")
}
