package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment prefix read by Load.
const DefaultEnvPrefix = "TRIPDESK_"

// Load layers defaults and environment variables into a validated CoreConfig.
// TRIPDESK_LLM_TIMEOUT_SECONDS=5 sets llm_timeout_seconds.
func Load(prefix string) (*CoreConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultCoreConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: prefix,
		TransformFunc: func(key, value string) (string, any) {
			return transformEnvKey(strings.TrimPrefix(key, prefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg CoreConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// transformEnvKey lowercases a variable name. A double underscore separates
// nesting levels.
func transformEnvKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
