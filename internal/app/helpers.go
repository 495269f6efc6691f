package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pulsetrack/pulse/internal/config"
	"github.com/pulsetrack/pulse/internal/pkg/nativelog"
)

func applyRuntimeSettings(cfg *config.AppConfig) error {
	if os.Getenv(nativelog.EnvLogDir) == "" {
		_ = os.Setenv(nativelog.EnvLogDir, cfg.LogDir())
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return nil
	}
	loc, err := parseTimezoneLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	time.Local = loc
	return nil
}

// parseTimezoneLocation accepts an IANA zone name or a fixed "+hh:mm" offset.
func parseTimezoneLocation(tz string) (*time.Location, error) {
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	if t, err := time.Parse("-07:00", tz); err == nil {
		_, offset := t.Zone()
		return time.FixedZone("UTC"+tz, offset), nil
	}
	return nil, fmt.Errorf("expect IANA zone (e.g. Europe/Lisbon) or UTC offset (e.g. +01:00)")
}

func hours(n int) time.Duration   { return time.Duration(n) * time.Hour }
func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }
