// Package config holds the engine's one documented knob (MVCC enabled,
// spec.md §6 "Configuration") plus the ambient knobs every engine in the
// retrieval pack carries alongside it: a GC batch size and a logger.
package config

import (
	"go.uber.org/zap"

	"github.com/spf13/viper"
)

// Config is the engine's configuration surface.
type Config struct {
	// MVCCEnabled is spec.md §6's single documented boolean. When false,
	// Clarify returns the tuple physically stored at the key without
	// walking the version chain, and installs no read or point-hole
	// tracker. Nothing else reads the flag: writes still build stories and
	// run the writer-side gap scan, and TrackGap, TrackFullScan and
	// TrackCountUntil still resolve visibility and install gap trackers.
	MVCCEnabled bool

	// GCStepStories is the "fixed number of iterations" gc_step advances
	// per call (spec.md §4.6): two per newly created story plus backlog.
	// This is the backlog batch size.
	GCStepStories int

	Logger *zap.Logger
}

// Default returns the engine's zero-configuration defaults: MVCC on, a
// modest GC batch, and a no-op logger.
func Default() *Config {
	return &Config{
		MVCCEnabled:   true,
		GCStepStories: 64,
		Logger:        zap.NewNop(),
	}
}

// Load builds a Config from viper, binding MVCC_ENABLED and GC_STEP_STORIES
// environment variables and, if path is non-empty, a config file at path.
// This is the one place github.com/spf13/viper is exercised; engines that
// don't need file/env based configuration should just use Default().
func Load(path string, logger *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetDefault("mvcc_enabled", true)
	v.SetDefault("gc_step_stories", 64)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Config{
		MVCCEnabled:   v.GetBool("mvcc_enabled"),
		GCStepStories: v.GetInt("gc_step_stories"),
		Logger:        logger,
	}, nil
}
