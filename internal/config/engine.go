package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig holds the tunable knobs of the credit engine. It is
// hot-reloadable so rate budgets and reset cadence can change without a
// redeploy.
type EngineConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Reset     ResetConfig     `mapstructure:"reset"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
	Budget  int           `mapstructure:"budget"`
}

type ResetConfig struct {
	RunInterval time.Duration `mapstructure:"runInterval"`
	BatchSize   int           `mapstructure:"batchSize"`
	JobTimeout  time.Duration `mapstructure:"jobTimeout"`
	SweepJob    bool          `mapstructure:"sweepJob"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RateLimit: RateLimitConfig{
			Enabled: true,
			Window:  60 * time.Second,
			Budget:  100,
		},
		Reset: ResetConfig{
			RunInterval: 5 * time.Minute,
			BatchSize:   100,
			JobTimeout:  30 * time.Second,
			SweepJob:    true,
		},
	}
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/creditledger/config")
	v.AddConfigPath("/etc/creditledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREDITLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.rateLimit.enabled", defaults.RateLimit.Enabled)
	v.SetDefault("engine.rateLimit.window", defaults.RateLimit.Window)
	v.SetDefault("engine.rateLimit.budget", defaults.RateLimit.Budget)
	v.SetDefault("engine.reset.runInterval", defaults.Reset.RunInterval)
	v.SetDefault("engine.reset.batchSize", defaults.Reset.BatchSize)
	v.SetDefault("engine.reset.jobTimeout", defaults.Reset.JobTimeout)
	v.SetDefault("engine.reset.sweepJob", defaults.Reset.SweepJob)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated EngineConfig
			if err := v.UnmarshalKey("engine", &updated); err != nil {
				log.Printf("[engine-config] reload failed: %v", err)
				return
			}
			if err := validateEngineConfig(updated); err != nil {
				log.Printf("[engine-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[engine-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticEngineConfigHolder wraps a fixed config with no file watch.
func NewStaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *EngineConfigHolder) Get() EngineConfig {
	return h.current.Load().(EngineConfig)
}

// Store replaces the current config. Tests use it to tighten budgets.
func (h *EngineConfigHolder) Store(cfg EngineConfig) {
	h.current.Store(cfg)
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.RateLimit.Window <= 0 {
		return errors.New("engine.rateLimit.window must be positive")
	}
	if cfg.RateLimit.Budget <= 0 {
		return errors.New("engine.rateLimit.budget must be positive")
	}
	if cfg.Reset.RunInterval <= 0 {
		return errors.New("engine.reset.runInterval must be positive")
	}
	if cfg.Reset.BatchSize <= 0 {
		return errors.New("engine.reset.batchSize must be positive")
	}
	return nil
}
