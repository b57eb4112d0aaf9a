package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/agentdesk/paycapture/internal/core/domain"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	Capture   CaptureConfig   `koanf:"capture"`
	Agent     AgentConfig     `koanf:"agent"`
	Journal   JournalConfig   `koanf:"journal"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// APIConfig points at the capture-control API. Token normally arrives via
// ${VAR} substitution so secrets stay out of the file.
type APIConfig struct {
	BaseURL string `koanf:"base_url"`
	Token   string `koanf:"token"`
}

type CaptureConfig struct {
	Connector         string   `koanf:"connector"`
	Currency          string   `koanf:"currency"`
	TokenType         string   `koanf:"token_type"` // one-time, reusable
	Order             []string `koanf:"order"`
	StatusCallbackURL string   `koanf:"status_callback_url"`
}

type AgentConfig struct {
	Identity string `koanf:"identity"`
}

type JournalConfig struct {
	Type   string       `koanf:"type"` // sqlite, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// FieldOrder converts the configured order into domain field kinds.
func (c CaptureConfig) FieldOrder() ([]domain.FieldKind, error) {
	if len(c.Order) == 0 {
		return nil, fmt.Errorf("capture.order must not be empty")
	}
	fields := make([]domain.FieldKind, 0, len(c.Order))
	for _, raw := range c.Order {
		kind := domain.FieldKind(raw)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown capture field %q in capture.order", raw)
		}
		fields = append(fields, kind)
	}
	return fields, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Try to load from the config file first
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("PAYCAP_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PAYCAP_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("capture.currency") {
		k.Set("capture.currency", "usd")
	}
	if !k.Exists("capture.token_type") {
		k.Set("capture.token_type", string(domain.TokenOneTime))
	}
	if !k.Exists("capture.order") {
		k.Set("capture.order", []string{
			string(domain.FieldCardNumber),
			string(domain.FieldSecurityCode),
			string(domain.FieldExpirationDate),
		})
	}
	if !k.Exists("journal.type") {
		k.Set("journal.type", "none")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets
	cfg.API.Token = substituteEnvVars(cfg.API.Token)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
