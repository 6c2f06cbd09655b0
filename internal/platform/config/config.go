package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "OPSBOARD_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	Audit     AuditConfig     `koanf:"audit"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Redis     RedisConfig     `koanf:"redis"`
	CORS      CORSConfig      `koanf:"cors"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Events    EventsConfig    `koanf:"events"`
}

type AuthConfig struct {
	JWT        JWTConfig `koanf:"jwt"`
	BcryptCost int       `koanf:"bcryptcost"`
}

type JWTConfig struct {
	SigningKey         string `koanf:"signingkey"`
	Issuer             string `koanf:"issuer"`
	ExpiryHours        int    `koanf:"expiryhours"`
	RefreshExpiryHours int    `koanf:"refreshexpiryhours"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrations_path"`
	MaxConns       int    `koanf:"max_conns"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuditConfig tunes the asynchronous denial log. FlushInterval is in
// milliseconds.
type AuditConfig struct {
	BufferSize    int `koanf:"buffer_size"`
	BatchSize     int `koanf:"batch_size"`
	FlushInterval int `koanf:"flush_interval"`
}

// RateLimitConfig limits the public account endpoints per client IP.
// Backend is "memory" or "redis".
// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is believed.
type RateLimitConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Backend        string   `koanf:"backend"`
	Requests       int      `koanf:"requests"`
	WindowSeconds  int      `koanf:"window_seconds"`
	TrustedProxies []string `koanf:"trusted_proxies"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

type EventsConfig struct {
	Enabled        bool     `koanf:"enabled"`
	BufferSize     int      `koanf:"buffer_size"`
	OriginPatterns []string `koanf:"origin_patterns"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                 8080,
		"server.host":                 "0.0.0.0",
		"database.max_conns":          25,
		"database.migrations_path":    "migrations",
		"log.level":                   "info",
		"log.format":                  "json",
		"auth.jwt.issuer":             "opsboard",
		"auth.jwt.expiryhours":        24,
		"auth.jwt.refreshexpiryhours": 168,
		"auth.bcryptcost":             10,
		"audit.buffer_size":           4096,
		"audit.batch_size":            100,
		"audit.flush_interval":        500,
		"ratelimit.enabled":           true,
		"ratelimit.backend":           "memory",
		"ratelimit.requests":          10,
		"ratelimit.window_seconds":    60,
		"redis.addr":                  "localhost:6379",
		"redis.db":                    0,
		"metrics.enabled":             true,
		"events.enabled":              true,
		"events.buffer_size":          64,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// Environment variables override everything
	// OPSBOARD_SERVER_PORT -> server.port
	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
