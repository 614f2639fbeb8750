package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "MATCHPREDICT_"
	envConfig = "MATCHPREDICT_CONFIG"
	listSep   = ","
	keyDelim  = "."
	structTag = "koanf"
)

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. the YAML file at path, or MATCHPREDICT_CONFIG when path is empty
//  3. MATCHPREDICT_* environment variables
func Load(_ context.Context, path string) (*Config, error) {
	k := koanf.New(keyDelim)

	// Maps merge key-by-key in koanf, so the default target mapping is
	// applied after unmarshal instead; a configured mapping replaces it.
	defaults := New()
	defaults.TargetMapping = nil
	if err := k.Load(structs.Provider(defaults, structTag), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// MATCHPREDICT_DROP_COLUMNS="a,b" -> drop_columns: [a b]
	envProvider := env.ProviderWithValue(envPrefix, keyDelim, func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		if key == "config" {
			return "", nil
		}
		if strings.Contains(value, listSep) {
			parts := strings.Split(value, listSep)
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: structTag}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.TargetMapping) == 0 {
		cfg.TargetMapping = DefaultTargetMapping()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
