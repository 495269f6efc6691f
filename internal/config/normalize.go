package config

import "strings"

// driverAliases maps accepted spellings onto the two supported drivers.
var driverAliases = map[string]string{
	"":        DriverMySQL,
	"mariadb": DriverMySQL,
	"mysql":   DriverMySQL,
	"sqlite":  DriverSQLite,
	"sqlite3": DriverSQLite,
}

func normalizeDatabaseConfig(cfg DatabaseRuntimeConfig) DatabaseRuntimeConfig {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if alias, ok := driverAliases[driver]; ok {
		driver = alias
	}
	cfg.Driver = driver
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Path = orDefault(cfg.Path, "")
	if cfg.Driver == DriverSQLite {
		cfg.Path = orDefault(cfg.Path, defaultSQLitePath)
	}
	cfg.Host = orDefault(cfg.Host, defaultDBHost)
	cfg.User = orDefault(cfg.User, defaultDBUser)
	cfg.Password = strings.TrimSpace(cfg.Password)
	cfg.Name = orDefault(cfg.Name, defaultDBName)
	cfg.Charset = orDefault(cfg.Charset, defaultDBCharset)
	cfg.Loc = orDefault(cfg.Loc, defaultDBLoc)
	if cfg.Port == 0 {
		cfg.Port = defaultDBPort
	}
	cfg.Params = trimMap(cfg.Params)
	return cfg
}

func normalizeRedisConfig(cfg RedisRuntimeConfig) RedisRuntimeConfig {
	cfg.URL = redisURLWithScheme(cfg.URL)
	cfg.Host = orDefault(cfg.Host, defaultRedisHost)
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.Password = strings.TrimSpace(cfg.Password)
	if cfg.Port == 0 {
		cfg.Port = defaultRedisPort
	}

	scheme := strings.ToLower(strings.TrimSpace(cfg.Scheme))
	if scheme != "redis" && scheme != "rediss" {
		scheme = "redis"
		if cfg.TLS {
			scheme = "rediss"
		}
	}
	cfg.Scheme = scheme
	cfg.Params = trimMap(cfg.Params)
	return cfg
}

// normalizeList trims every entry and drops blanks. Used for origin and proxy
// allow-lists.
func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	return strings.ToLower(orDefault(env, defaultEnv))
}

func normalizeBackend(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

// trimMap returns a copy of m without blank keys or values; nil stays nil.
func trimMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
