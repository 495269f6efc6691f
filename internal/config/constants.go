package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 3000
	defaultEnv        = "development"

	defaultDBDriver   = DriverMySQL
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "pulse"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "UTC"
	defaultSQLitePath = "pulse.db"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultAPIWindow         = time.Minute
	defaultAPIMax            = 100
	defaultTokenCreateMax    = 10
	defaultHeartbeatWindow   = 10 * time.Second
	defaultHeartbeatMax      = 1
	defaultLimiterSweepEvery = 5 * time.Minute

	defaultOnlineWindow    = 45 * time.Second
	defaultPresenceHorizon = 5 * time.Minute

	defaultEventRetentionDays = 30
	defaultTopPagesWindowHrs  = 24
	defaultTimelineMinutes    = 60
	defaultMongoDatabase      = "pulse"

	defaultCollectTimeout = 5 * time.Second
	defaultAbuseThreshold = 10000
	defaultMetricsPath    = "/metrics"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
	BackendMongo  = "mongo"
)

// Environment variables that override the YAML file.
const (
	EnvAdminKey    = "PULSE_ADMIN_KEY"
	EnvPublicURL   = "PULSE_PUBLIC_URL"
	EnvDatabaseDSN = "PULSE_DATABASE_DSN"
	EnvRedisURL    = "PULSE_REDIS_URL"
)
