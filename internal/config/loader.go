package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "ATTENDANCE_"
	envConfigPath = "ATTENDANCE_CONFIG"
)

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New())
//  2. a YAML file at path, or at ATTENDANCE_CONFIG when path is empty
//  3. env (prefix ATTENDANCE_), after an optional .env file is loaded
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrLoadConfig, err)
	}

	base := New()
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// ATTENDANCE_JWT_TTL -> jwt_ttl. Keys are flat so underscores are kept.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
