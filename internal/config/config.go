package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/shopcompare/internal/common"
)

// Configuration keys.
const (
	KeyDatabasePath    = "database.path"
	KeyNATSURL         = "nats.url"
	KeyNATSEmbedded    = "nats.embedded"
	KeyNATSPrefix      = "nats.prefix"
	KeyHighlightWindow = "feed.highlight_window"
	KeyPollInterval    = "feed.poll_interval"
	KeyCacheTTL        = "cache.ttl"
	KeyLogLevel        = "logging.level"
	KeyLogFormat       = "logging.format"
	KeyMetricsAddr     = "metrics.addr"
)

// Config is the typed view of the application configuration.
type Config struct {
	DatabasePath    string
	NATSURL         string
	NATSPrefix      string
	LogLevel        string
	LogFormat       string
	MetricsAddr     string // Empty disables the metrics endpoint
	HighlightWindow time.Duration
	PollInterval    time.Duration
	CacheTTL        time.Duration
	NATSEmbedded    bool
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, filepath.Join(DataDir(), "shop.db"))
	v.SetDefault(KeyNATSURL, "nats://127.0.0.1:4222")
	v.SetDefault(KeyNATSEmbedded, false)
	v.SetDefault(KeyNATSPrefix, "shop")
	v.SetDefault(KeyHighlightWindow, time.Second)
	v.SetDefault(KeyPollInterval, 30*time.Second)
	v.SetDefault(KeyCacheTTL, 5*time.Minute)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyMetricsAddr, "")
}

// Load reads and validates the configuration held by v. Unset keys take
// their defaults.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		DatabasePath:    ExpandPath(v.GetString(KeyDatabasePath)),
		NATSURL:         v.GetString(KeyNATSURL),
		NATSEmbedded:    v.GetBool(KeyNATSEmbedded),
		NATSPrefix:      v.GetString(KeyNATSPrefix),
		HighlightWindow: v.GetDuration(KeyHighlightWindow),
		PollInterval:    v.GetDuration(KeyPollInterval),
		CacheTTL:        v.GetDuration(KeyCacheTTL),
		LogLevel:        strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:       strings.ToLower(v.GetString(KeyLogFormat)),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field for a usable value.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: %s", common.ErrMissingConfig, KeyDatabasePath)
	}
	if c.NATSURL == "" && !c.NATSEmbedded {
		return fmt.Errorf("%w: %s (or set %s)", common.ErrMissingConfig, KeyNATSURL, KeyNATSEmbedded)
	}
	if c.NATSPrefix == "" || strings.ContainsAny(c.NATSPrefix, " .*>") {
		return fmt.Errorf("%w: %s must be a single subject token, got %q", common.ErrInvalidConfig, KeyNATSPrefix, c.NATSPrefix)
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{KeyHighlightWindow, c.HighlightWindow},
		{KeyPollInterval, c.PollInterval},
		{KeyCacheTTL, c.CacheTTL},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", common.ErrInvalidConfig, d.key, d.value)
		}
	}

	if _, err := common.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, KeyLogLevel, err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%w: %s must be console or json, got %q", common.ErrInvalidConfig, KeyLogFormat, c.LogFormat)
	}
	return nil
}
