// Package config loads service configuration from a YAML file and
// PASSAGE_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/passagehq/passage/internal/domain"
)

type Config struct {
	Server   ServerConfig    `koanf:"server"`
	Storage  StorageConfig   `koanf:"storage"`
	Pipeline PipelineConfig  `koanf:"pipeline"`
	Gateways []GatewayRecord `koanf:"gateways"`
}

type ServerConfig struct {
	Port      int             `koanf:"port"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled   bool    `koanf:"enabled"`
	PerSecond float64 `koanf:"per_second"`
	Burst     int     `koanf:"burst"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type PipelineConfig struct {
	MaxHops int `koanf:"max_hops"`
}

// GatewayRecord is the on-disk shape of a gateway configuration.
type GatewayRecord struct {
	Name                     string            `koanf:"name"`
	RequestTransform         string            `koanf:"request_transform"`
	ResponseTransform        string            `koanf:"response_transform"`
	Templates                map[string]string `koanf:"templates"`
	TargetURL                string            `koanf:"target_url"`
	ErrorTemplate            string            `koanf:"error_template"`
	TransformDirectResponses bool              `koanf:"transform_direct_responses"`
}

// Domain converts the record into the pipeline's gateway config.
func (g GatewayRecord) Domain() *domain.GatewayConfig {
	return &domain.GatewayConfig{
		Name:                     g.Name,
		RequestTransformCID:      g.RequestTransform,
		ResponseTransformCID:     g.ResponseTransform,
		Templates:                g.Templates,
		TargetURLOverride:        g.TargetURL,
		ErrorTemplateCID:         g.ErrorTemplate,
		TransformDirectResponses: g.TransformDirectResponses,
	}
}

// Load reads configuration from the given file (optional, may be empty)
// with environment variables layered on top.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("PASSAGE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "PASSAGE_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "memory")
	}
	if !k.Exists("pipeline.max_hops") {
		k.Set("pipeline.max_hops", 3)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Gateways))
	for _, g := range c.Gateways {
		if g.Name == "" {
			return fmt.Errorf("gateway with empty name")
		}
		if seen[g.Name] {
			return fmt.Errorf("duplicate gateway %q", g.Name)
		}
		seen[g.Name] = true
		if g.TargetURL != "" && !strings.HasPrefix(g.TargetURL, "/") {
			return fmt.Errorf("gateway %q: target_url must start with \"/\"", g.Name)
		}
	}
	if c.Storage.Type != "memory" && c.Storage.Type != "sqlite" {
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage type sqlite requires storage.sqlite.path")
	}
	return nil
}
