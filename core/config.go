package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultCapacity is the number of consumed queue slots tolerated before a
// running flush compacts the queue.
const DefaultCapacity = 1024

// SchedulerConfig holds configuration options for RawScheduler and SafeScheduler.
// Constructors replace zero and negative values by defaults without failing;
// Validate is the check for configs coming from users.
type SchedulerConfig struct {
	// Name labels logs and metrics.
	Name string `env:"ASAP_NAME" envDefault:"asap"`

	// Capacity is the compaction threshold. Defaults to DefaultCapacity.
	Capacity int `env:"ASAP_CAPACITY" envDefault:"1024"`

	// TimerInterval is the period of the interval timer used by the timer
	// request strategy. Defaults to DefaultTimerInterval.
	TimerInterval time.Duration `env:"ASAP_TIMER_INTERVAL" envDefault:"50ms"`

	// ForceTimer skips the change observer probe even when the host offers one.
	ForceTimer bool `env:"ASAP_FORCE_TIMER" envDefault:"false"`

	// LogLevel is used to build the default logger when Logger is nil.
	LogLevel string `env:"ASAP_LOG_LEVEL" envDefault:"info"`

	// Logger receives scheduler diagnostics. Defaults to a zerolog console logger.
	Logger Logger `env:"-"`

	// Metrics records scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics `env:"-"`
}

// DefaultSchedulerConfig returns a config with default values.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Name:          "asap",
		Capacity:      DefaultCapacity,
		TimerInterval: DefaultTimerInterval,
		LogLevel:      "info",
		Metrics:       &NilMetrics{},
	}
}

var defaultEnvLoaded sync.Once

// LoadSchedulerConfig reads a SchedulerConfig from the environment. A .env
// file in the working directory is loaded once, if present.
func LoadSchedulerConfig() (*SchedulerConfig, error) {
	defaultEnvLoaded.Do(func() {
		// the .env file is optional
		_ = godotenv.Load()
	})

	cfg := &SchedulerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot be defaulted.
func (c *SchedulerConfig) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.Capacity)
	}
	if c.TimerInterval < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTimerInterval, c.TimerInterval)
	}
	return nil
}

// withDefaults returns a copy of c with every unset field defaulted.
func (c *SchedulerConfig) withDefaults() SchedulerConfig {
	var out SchedulerConfig
	if c != nil {
		out = *c
	}
	if out.Name == "" {
		out.Name = "asap"
	}
	if out.Capacity <= 0 {
		out.Capacity = DefaultCapacity
	}
	if out.TimerInterval <= 0 {
		out.TimerInterval = DefaultTimerInterval
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger(out.LogLevel)
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	return out
}
