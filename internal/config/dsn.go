package config

import (
	"net"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSNValue renders the connection string for the configured driver. An
// explicit dsn always wins; sqlite falls back to its file path.
func (c DatabaseRuntimeConfig) DSNValue() string {
	switch {
	case c.DSN != "":
		return c.DSN
	case c.Driver == DriverSQLite:
		if c.Path == "" {
			return defaultSQLitePath
		}
		return c.Path
	}
	return c.MySQLConfig().FormatDSN()
}

// MySQLConfig maps the discrete host/port/user fields onto the driver's own
// config. parseTime and loc given under params override the typed fields.
func (c DatabaseRuntimeConfig) MySQLConfig() *mysql.Config {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Name
	mc.ParseTime = c.ParseTime

	locName := c.Loc
	params := map[string]string{"charset": c.Charset}
	for k, v := range c.Params {
		switch k {
		case "parseTime":
			if b, err := strconv.ParseBool(v); err == nil {
				mc.ParseTime = b
			}
		case "loc":
			locName = v
		default:
			params[k] = v
		}
	}
	if loc, err := time.LoadLocation(locName); err == nil {
		mc.Loc = loc
	}
	mc.Params = params
	return mc
}

// URLValue renders a redis:// (or rediss://) URL understood by
// redis.ParseURL. An explicit url wins over the discrete fields.
func (c RedisRuntimeConfig) URLValue() string {
	if c.URL != "" {
		return c.URL
	}

	u := &neturl.URL{
		Scheme: c.Scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + strconv.Itoa(c.DB),
	}
	switch {
	case c.Username != "" && c.Password != "":
		u.User = neturl.UserPassword(c.Username, c.Password)
	case c.Username != "":
		u.User = neturl.User(c.Username)
	case c.Password != "":
		u.User = neturl.UserPassword("", c.Password)
	}
	if len(c.Params) > 0 {
		q := neturl.Values{}
		for k, v := range c.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func redisURLWithScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		return raw
	}
	return "redis://" + raw
}
