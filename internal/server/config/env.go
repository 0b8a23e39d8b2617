package config

import (
	"github.com/kelseyhightower/envconfig"
)

// parseEnv overlays values from environment variables named in the
// envconfig tags of Config: REPORTGATE_* for everything except the token
// file, which keeps its historical name TOKENS_DB_PATH. Unset variables
// leave the current value untouched; malformed values panic, like a
// malformed config file does.
func parseEnv(config *Config) {
	if err := envconfig.Process("", config); err != nil {
		panic(err)
	}
}
