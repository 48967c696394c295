package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Env carries environment-driven settings. All variables use the SHAPERD_
// prefix, e.g. SHAPERD_CONFIG_DIR.
type Env struct {
	ConfigDir    string        `envconfig:"CONFIG_DIR"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"8s"`
	PkexecPath   string        `envconfig:"PKEXEC_PATH" default:"pkexec"`
	ShaperPath   string        `envconfig:"SHAPER_PATH" default:"wondershaper"`
	TCPath       string        `envconfig:"TC_PATH" default:"tc"`
}

// LoadEnv reads SHAPERD_* environment variables.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("shaperd", &env); err != nil {
		return Env{}, err
	}
	return env, nil
}

// ResolveConfigDir picks the configuration directory: explicit flag first,
// then the environment, then the per-user default.
func ResolveConfigDir(flagValue string, env Env) string {
	if flagValue != "" {
		return flagValue
	}
	if env.ConfigDir != "" {
		return env.ConfigDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "shaperd")
}
