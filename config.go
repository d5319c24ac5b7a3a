package wasmy

import (
	"sync/atomic"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime-tunable knobs that the original implementation
// hardcoded as engine constants. Values are sourced from the environment so
// a deployment can tune memory ceilings and WASI passthrough without a
// rebuild.
type Config struct {
	// InitialMemoryPages is the number of 64KiB linear-memory pages a new
	// Instance starts with. 0 defers to the engine's compiled-in default.
	InitialMemoryPages uint32 `env:"WASMY_INITIAL_MEMORY_PAGES" envDefault:"0"`
	// MaxMemoryPages caps how far the OOM-grow retry loop may extend linear
	// memory. 0 means unbounded, matching the original "grow until the host
	// itself runs out" behavior.
	MaxMemoryPages uint32 `env:"WASMY_MAX_MEMORY_PAGES" envDefault:"0"`
	// WASIEnvPassthrough, when true, forwards the host process's environment
	// variables into every instantiated guest's WASI environment.
	WASIEnvPassthrough bool `env:"WASMY_WASI_ENV_PASSTHROUGH" envDefault:"false"`
}

// LoadConfigFromEnv parses a Config from the process environment, applying
// the envDefault tags for anything unset.
func LoadConfigFromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

var activeConfig atomic.Pointer[Config]

func init() {
	c, _ := LoadConfigFromEnv()
	activeConfig.Store(&c)
}

// currentConfig returns the Config currently in effect.
func currentConfig() Config {
	return *activeConfig.Load()
}

// SetConfig overrides the active Config, bypassing the environment. Intended
// for tests and embedders that already have their own configuration layer.
func SetConfig(c Config) {
	activeConfig.Store(&c)
}
