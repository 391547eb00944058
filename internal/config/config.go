package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Advisor      AdvisorConfig      `yaml:"advisor" mapstructure:"advisor"`
	Coach        CoachConfig        `yaml:"coach" mapstructure:"coach"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// AdvisorConfig holds advisory-model API settings.
type AdvisorConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	RatePerMinute float64 `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
}

// CoachConfig configures the coaching cycle.
type CoachConfig struct {
	// DefaultMaxRounds is the base coaching round budget per agent; the
	// phase policy tightens it as learning converges.
	DefaultMaxRounds int `yaml:"default_max_rounds" mapstructure:"default_max_rounds"`

	// MaxRounds overrides the round budget for specific agents
	// (the sectionizer gets 2, extraction agents get the default).
	MaxRounds map[string]int `yaml:"max_rounds" mapstructure:"max_rounds"`

	// GoldenThreshold is the accuracy at which an extraction is promoted
	// to a golden example.
	GoldenThreshold float64 `yaml:"golden_threshold" mapstructure:"golden_threshold"`

	// SelfEvalDiscount scales coverage into estimated accuracy when no
	// ground truth exists. Tunable heuristic, historically 0.8.
	SelfEvalDiscount float64 `yaml:"self_eval_discount" mapstructure:"self_eval_discount"`
}

// OrchestratorConfig configures execution batching.
type OrchestratorConfig struct {
	// MaxParallel caps concurrent agents per execution batch.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BRFCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("advisor.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("advisor.max_tokens", 2048)
	v.SetDefault("advisor.temperature", 0.1)
	v.SetDefault("advisor.rate_per_minute", 30)
	v.SetDefault("coach.default_max_rounds", 5)
	v.SetDefault("coach.max_rounds", map[string]int{"sectionizer": 2})
	v.SetDefault("coach.golden_threshold", 0.95)
	v.SetDefault("coach.self_eval_discount", 0.8)
	v.SetDefault("orchestrator.max_parallel", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// RoundsFor returns the round budget for an agent, falling back to the
// default when no override exists.
func (c CoachConfig) RoundsFor(agentID string) int {
	if n, ok := c.MaxRounds[agentID]; ok {
		return n
	}
	if c.DefaultMaxRounds > 0 {
		return c.DefaultMaxRounds
	}
	return 5
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
