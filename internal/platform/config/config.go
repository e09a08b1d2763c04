package config

import (
	"errors"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// MinSigningKeyLen is the shortest HS256 signing key Validate accepts.
const MinSigningKeyLen = 32

var ErrSigningKeyTooShort = errors.New("auth.jwt.signingkey must be at least 32 bytes")

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	Audit     AuditConfig     `koanf:"audit"`
	CORS      CORSConfig      `koanf:"cors"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Assistant AssistantConfig `koanf:"assistant"`
}

type AuthConfig struct {
	JWT        JWTConfig       `koanf:"jwt"`
	BcryptCost int             `koanf:"bcryptcost"`
	Bootstrap  BootstrapConfig `koanf:"bootstrap"`
}

type JWTConfig struct {
	SigningKey    string `koanf:"signingkey"`
	Issuer        string `koanf:"issuer"`
	ExpiryMinutes int    `koanf:"expiryminutes"`
}

// BootstrapConfig describes the administrator created on first start.
// An empty Login disables bootstrapping.
type BootstrapConfig struct {
	Login    string `koanf:"login"`
	Password string `koanf:"password"`
	Email    string `koanf:"email"`
	Name     string `koanf:"name"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrationspath"`
	MaxConns       int    `koanf:"maxconns"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuditConfig struct {
	BufferSize    int `koanf:"buffersize"`
	BatchSize     int `koanf:"batchsize"`
	FlushInterval int `koanf:"flushinterval"` // milliseconds
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowedorigins"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// AssistantConfig points the question assistant at a Gemini model.
// An empty APIKey leaves the assistant disabled.
type AssistantConfig struct {
	APIKey         string `koanf:"apikey"`
	Model          string `koanf:"model"`
	BaseURL        string `koanf:"baseurl"`
	TimeoutSeconds int    `koanf:"timeoutseconds"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":              8080,
		"server.host":              "0.0.0.0",
		"database.maxconns":        25,
		"database.migrationspath":  "migrations",
		"log.level":                "info",
		"log.format":               "json",
		"auth.jwt.issuer":          "avalia",
		"auth.jwt.expiryminutes":   24 * 60,
		"auth.bcryptcost":          10,
		"auth.bootstrap.login":     "admin",
		"auth.bootstrap.name":      "Administrator",
		"audit.buffersize":         4096,
		"audit.batchsize":          100,
		"audit.flushinterval":      500,
		"metrics.enabled":          true,
		"assistant.model":          "gemini-2.0-flash",
		"assistant.baseurl":        "https://generativelanguage.googleapis.com/v1beta",
		"assistant.timeoutseconds": 25,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			continue
		}
	}

	// AVALIA_AUTH_JWT_SIGNINGKEY -> auth.jwt.signingkey. Keys carry no
	// underscores so every one of them can be set this way.
	_ = k.Load(env.Provider("AVALIA_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "AVALIA_")),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings the server cannot safely start without.
func (c *Config) Validate() error {
	if len(c.Auth.JWT.SigningKey) < MinSigningKeyLen {
		return ErrSigningKeyTooShort
	}
	return nil
}
