package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	PublicURL      string                `yaml:"public_url"`
	AdminKey       string                `yaml:"admin_key"`
	Timezone       string                `yaml:"timezone"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	TrustedProxies []string              `yaml:"trusted_proxies"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	RateLimit      RateLimitConfig       `yaml:"rate_limit"`
	Presence       PresenceConfig        `yaml:"presence"`
	Events         EventsConfig          `yaml:"events"`
	Collect        CollectConfig         `yaml:"collect"`
	Abuse          AbuseConfig           `yaml:"abuse"`
	Metrics        MetricsConfig         `yaml:"metrics"`

	DSN      string `yaml:"-"`
	RedisURL string `yaml:"-"`
}

type DatabaseRuntimeConfig struct {
	Driver    string            `yaml:"driver"` // "mysql" | "sqlite"
	DSN       string            `yaml:"dsn"`
	Path      string            `yaml:"path"` // sqlite file
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	Enable   bool              `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

// RateLimitConfig configures the fixed-window limiter policies.
type RateLimitConfig struct {
	Backend         string        `yaml:"backend"` // "memory" | "redis"
	APIWindow       time.Duration `yaml:"api_window"`
	APIMax          int           `yaml:"api_max"`
	TokenCreateMax  int           `yaml:"token_create_max"`
	HeartbeatWindow time.Duration `yaml:"heartbeat_window"`
	HeartbeatMax    int           `yaml:"heartbeat_max"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

type PresenceConfig struct {
	Backend      string        `yaml:"backend"` // "sql" | "redis"
	OnlineWindow time.Duration `yaml:"online_window"`
	Horizon      time.Duration `yaml:"horizon"`
}

type EventsConfig struct {
	Backend         string      `yaml:"backend"` // "sql" | "mongo"
	RetentionDays   int         `yaml:"retention_days"`
	TopPagesHours   int         `yaml:"top_pages_window_hours"`
	TimelineMinutes int         `yaml:"timeline_minutes"`
	Mongo           MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type CollectConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// StrictPresence surfaces presence upsert failures as 500 instead of
	// answering success.
	StrictPresence bool `yaml:"strict_presence"`
}

type AbuseConfig struct {
	Threshold     int    `yaml:"threshold"`
	BarkKey       string `yaml:"bark_key"`
	BarkServerURL string `yaml:"bark_server_url"`
}

type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	Env            string            `yaml:"env"`
	PublicURL      string            `yaml:"public_url"`
	AdminKey       string            `yaml:"admin_key"`
	Timezone       string            `yaml:"timezone"`
	TZ             string            `yaml:"tz"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	TrustedProxies []string          `yaml:"trusted_proxies"`
	Paths          rawPathsConfig    `yaml:"paths"`
	LogDir         string            `yaml:"log_dir"`
	Database       rawDatabaseConfig `yaml:"database"`
	Redis          rawRedisConfig    `yaml:"redis"`
	RateLimit      rawRateLimit      `yaml:"rate_limit"`
	Presence       rawPresence       `yaml:"presence"`
	Events         rawEvents         `yaml:"events"`
	Collect        rawCollect        `yaml:"collect"`
	Abuse          rawAbuse          `yaml:"abuse"`
	Metrics        rawMetrics        `yaml:"metrics"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawDatabaseConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	Path      string            `yaml:"path"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	Enable   *bool             `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawRateLimit struct {
	Backend         string         `yaml:"backend"`
	APIWindow       *time.Duration `yaml:"api_window"`
	APIMax          int            `yaml:"api_max"`
	TokenCreateMax  int            `yaml:"token_create_max"`
	HeartbeatWindow *time.Duration `yaml:"heartbeat_window"`
	HeartbeatMax    int            `yaml:"heartbeat_max"`
	SweepInterval   *time.Duration `yaml:"sweep_interval"`
}

type rawPresence struct {
	Backend      string         `yaml:"backend"`
	OnlineWindow *time.Duration `yaml:"online_window"`
	Horizon      *time.Duration `yaml:"horizon"`
}

type rawEvents struct {
	Backend         string `yaml:"backend"`
	RetentionDays   int    `yaml:"retention_days"`
	TopPagesHours   int    `yaml:"top_pages_window_hours"`
	TimelineMinutes int    `yaml:"timeline_minutes"`
	Mongo           struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
}

type rawCollect struct {
	Timeout        *time.Duration `yaml:"timeout"`
	StrictPresence *bool          `yaml:"strict_presence"`
}

type rawAbuse struct {
	Threshold     int    `yaml:"threshold"`
	BarkKey       string `yaml:"bark_key"`
	BarkServerURL string `yaml:"bark_server_url"`
}

type rawMetrics struct {
	Enable *bool  `yaml:"enable"`
	Path   string `yaml:"path"`
}

// Load reads the YAML file at configPath. A missing file is an error; an empty
// path falls back to DefaultConfigPath.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content on top of the defaults, applies environment
// overrides and validates the result.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	applyRawAppConfig(&cfg, raw)
	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := defaultAppConfig()
	applyEnvOverrides(&cfg)
	return &cfg
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		RateLimit: RateLimitConfig{
			Backend:         BackendMemory,
			APIWindow:       defaultAPIWindow,
			APIMax:          defaultAPIMax,
			TokenCreateMax:  defaultTokenCreateMax,
			HeartbeatWindow: defaultHeartbeatWindow,
			HeartbeatMax:    defaultHeartbeatMax,
			SweepInterval:   defaultLimiterSweepEvery,
		},
		Presence: PresenceConfig{
			Backend:      BackendSQL,
			OnlineWindow: defaultOnlineWindow,
			Horizon:      defaultPresenceHorizon,
		},
		Events: EventsConfig{
			Backend:         BackendSQL,
			RetentionDays:   defaultEventRetentionDays,
			TopPagesHours:   defaultTopPagesWindowHrs,
			TimelineMinutes: defaultTimelineMinutes,
			Mongo:           MongoConfig{Database: defaultMongoDatabase},
		},
		Collect: CollectConfig{
			Timeout:        defaultCollectTimeout,
			StrictPresence: true,
		},
		Abuse:   AbuseConfig{Threshold: defaultAbuseThreshold},
		Metrics: MetricsConfig{Enable: true, Path: defaultMetricsPath},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.PublicURL); v != "" {
		cfg.PublicURL = v
	}
	if v := strings.TrimSpace(raw.AdminKey); v != "" {
		cfg.AdminKey = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeList(raw.AllowedOrigins)
	}
	if raw.TrustedProxies != nil {
		cfg.TrustedProxies = normalizeList(raw.TrustedProxies)
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw.Database)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw.Redis)
	applyRawRateLimit(&cfg.RateLimit, raw.RateLimit)

	if v := strings.TrimSpace(raw.Presence.Backend); v != "" {
		cfg.Presence.Backend = v
	}
	if raw.Presence.OnlineWindow != nil {
		cfg.Presence.OnlineWindow = *raw.Presence.OnlineWindow
	}
	if raw.Presence.Horizon != nil {
		cfg.Presence.Horizon = *raw.Presence.Horizon
	}

	if v := strings.TrimSpace(raw.Events.Backend); v != "" {
		cfg.Events.Backend = v
	}
	if raw.Events.RetentionDays != 0 {
		cfg.Events.RetentionDays = raw.Events.RetentionDays
	}
	if raw.Events.TopPagesHours != 0 {
		cfg.Events.TopPagesHours = raw.Events.TopPagesHours
	}
	if raw.Events.TimelineMinutes != 0 {
		cfg.Events.TimelineMinutes = raw.Events.TimelineMinutes
	}
	if v := strings.TrimSpace(raw.Events.Mongo.URI); v != "" {
		cfg.Events.Mongo.URI = v
	}
	if v := strings.TrimSpace(raw.Events.Mongo.Database); v != "" {
		cfg.Events.Mongo.Database = v
	}

	if raw.Collect.Timeout != nil {
		cfg.Collect.Timeout = *raw.Collect.Timeout
	}
	if raw.Collect.StrictPresence != nil {
		cfg.Collect.StrictPresence = *raw.Collect.StrictPresence
	}

	if raw.Abuse.Threshold != 0 {
		cfg.Abuse.Threshold = raw.Abuse.Threshold
	}
	if v := strings.TrimSpace(raw.Abuse.BarkKey); v != "" {
		cfg.Abuse.BarkKey = v
	}
	if v := strings.TrimSpace(raw.Abuse.BarkServerURL); v != "" {
		cfg.Abuse.BarkServerURL = v
	}

	if raw.Metrics.Enable != nil {
		cfg.Metrics.Enable = *raw.Metrics.Enable
	}
	if v := strings.TrimSpace(raw.Metrics.Path); v != "" {
		cfg.Metrics.Path = v
	}

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	cfg.RateLimit.Backend = normalizeBackend(cfg.RateLimit.Backend)
	cfg.Presence.Backend = normalizeBackend(cfg.Presence.Backend)
	cfg.Events.Backend = normalizeBackend(cfg.Events.Backend)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawDatabaseConfig) DatabaseRuntimeConfig {
	cfg := current
	if v := strings.TrimSpace(raw.Driver); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Path); v != "" {
		cfg.Path = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.ParseTime != nil {
		cfg.ParseTime = *raw.ParseTime
	}
	if v := strings.TrimSpace(raw.Loc); v != "" {
		cfg.Loc = v
	}
	if raw.Params != nil {
		cfg.Params = raw.Params
	}
	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawRedisConfig) RedisRuntimeConfig {
	cfg := current
	if raw.Enable != nil {
		cfg.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.URL); v != "" {
		cfg.URL = v
		cfg.Enable = cfg.Enable || raw.Enable == nil
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if raw.DB != nil {
		cfg.DB = *raw.DB
	}
	if raw.TLS != nil {
		cfg.TLS = *raw.TLS
		// the scheme is re-derived from tls unless given explicitly
		cfg.Scheme = ""
	}
	if v := strings.TrimSpace(raw.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Params != nil {
		cfg.Params = raw.Params
	}
	return normalizeRedisConfig(cfg)
}

func applyRawRateLimit(cfg *RateLimitConfig, raw rawRateLimit) {
	if v := strings.TrimSpace(raw.Backend); v != "" {
		cfg.Backend = v
	}
	if raw.APIWindow != nil {
		cfg.APIWindow = *raw.APIWindow
	}
	if raw.APIMax != 0 {
		cfg.APIMax = raw.APIMax
	}
	if raw.TokenCreateMax != 0 {
		cfg.TokenCreateMax = raw.TokenCreateMax
	}
	if raw.HeartbeatWindow != nil {
		cfg.HeartbeatWindow = *raw.HeartbeatWindow
	}
	if raw.HeartbeatMax != 0 {
		cfg.HeartbeatMax = raw.HeartbeatMax
	}
	if raw.SweepInterval != nil {
		cfg.SweepInterval = *raw.SweepInterval
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvAdminKey)); v != "" {
		cfg.AdminKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPublicURL)); v != "" {
		cfg.PublicURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseDSN)); v != "" {
		cfg.Database.DSN = v
		cfg.DSN = cfg.Database.DSNValue()
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisURL)); v != "" {
		cfg.Redis.URL = redisURLWithScheme(v)
		cfg.Redis.Enable = true
		cfg.RedisURL = cfg.Redis.URLValue()
	}
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	switch c.Database.Driver {
	case DriverMySQL:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("invalid database.driver %q, expected mysql|sqlite", c.Database.Driver)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if !c.Redis.Enable {
			return fmt.Errorf("rate_limit.backend %q requires redis.enable", c.RateLimit.Backend)
		}
	default:
		return fmt.Errorf("invalid rate_limit.backend %q, expected memory|redis", c.RateLimit.Backend)
	}
	if c.RateLimit.APIWindow <= 0 || c.RateLimit.HeartbeatWindow <= 0 || c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("rate_limit windows must be positive")
	}
	if c.RateLimit.APIMax < 1 || c.RateLimit.TokenCreateMax < 1 || c.RateLimit.HeartbeatMax < 1 {
		return fmt.Errorf("rate_limit maxima must be >= 1")
	}

	switch c.Presence.Backend {
	case BackendSQL:
	case BackendRedis:
		if !c.Redis.Enable {
			return fmt.Errorf("presence.backend %q requires redis.enable", c.Presence.Backend)
		}
	default:
		return fmt.Errorf("invalid presence.backend %q, expected sql|redis", c.Presence.Backend)
	}
	if c.Presence.OnlineWindow <= 0 {
		return fmt.Errorf("presence.online_window must be positive")
	}
	if c.Presence.Horizon < c.Presence.OnlineWindow {
		return fmt.Errorf("presence.horizon %s must not be shorter than online_window %s", c.Presence.Horizon, c.Presence.OnlineWindow)
	}

	switch c.Events.Backend {
	case BackendSQL:
	case BackendMongo:
		if c.Events.Mongo.URI == "" {
			return fmt.Errorf("events.backend %q requires events.mongo.uri", c.Events.Backend)
		}
	default:
		return fmt.Errorf("invalid events.backend %q, expected sql|mongo", c.Events.Backend)
	}
	if c.Events.RetentionDays < 1 || c.Events.TopPagesHours < 1 || c.Events.TimelineMinutes < 1 {
		return fmt.Errorf("events windows must be >= 1")
	}
	if c.Collect.Timeout <= 0 {
		return fmt.Errorf("collect.timeout must be positive")
	}
	if c.Abuse.Threshold < 1 {
		return fmt.Errorf("abuse.threshold must be >= 1")
	}
	return nil
}

func (c *AppConfig) IsDev() bool { return c.Env == "development" || c.Env == "dev" }

// LogDir resolves the native log directory against the executable directory.
func (c *AppConfig) LogDir() string {
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

// EventRetention is the age after which events are purged.
func (c *AppConfig) EventRetention() time.Duration {
	return time.Duration(c.Events.RetentionDays) * 24 * time.Hour
}
