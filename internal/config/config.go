package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load config from file into the config struct, config must be a pointer to the config struct.
// Values already set in config are used as defaults, and every key can be overridden by an
// environment variable named after its path, e.g. GAME_TIMELIMIT.
func Load(file string, config any) error {
	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	for key, val := range flatten("", m) {
		v.SetDefault(key, val)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %v", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}

		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
