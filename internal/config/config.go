// Package config provides unified configuration loading for diffmix.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/diffmix/internal/constants"
	"github.com/nvandessel/diffmix/internal/em"
	"github.com/nvandessel/diffmix/internal/inference"
	"github.com/nvandessel/diffmix/internal/mixture"
	"github.com/nvandessel/diffmix/internal/shaping"
	"github.com/nvandessel/diffmix/internal/simulation"
)

// Config contains all diffmix configuration settings.
type Config struct {
	// Model contains the mixture and hazard settings.
	Model ModelConfig `json:"model" yaml:"model"`

	// EM contains the optimizer settings.
	EM EMConfig `json:"em" yaml:"em"`

	// Inference contains settings for materializing the inferred network.
	Inference InferenceConfig `json:"inference" yaml:"inference"`

	// Simulation contains settings for synthetic cascade generation.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ModelConfig configures the mixture likelihood.
type ModelConfig struct {
	// Topics is the number of mixture components.
	Topics int `json:"topics" yaml:"topics"`

	// Hazard is the default hazard family of nodes: "exp", "pow" or "ray".
	Hazard string `json:"hazard" yaml:"hazard"`

	// Delta is the minimum delay of the power-law hazard.
	Delta float64 `json:"delta" yaml:"delta"`

	// Tolerance floors the hazard inside the log term.
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`

	InitAlpha float64 `json:"init_alpha" yaml:"init_alpha"`
	MinAlpha  float64 `json:"min_alpha" yaml:"min_alpha"`
	MaxAlpha  float64 `json:"max_alpha" yaml:"max_alpha"`

	// Regularizer is "none", "l1" or "l2", weighted by Lambda.
	Regularizer string  `json:"regularizer" yaml:"regularizer"`
	Lambda      float64 `json:"lambda" yaml:"lambda"`

	// Mu scales the adaptive gradient step.
	Mu float64 `json:"mu" yaml:"mu"`
}

// EMConfig configures the windowed EM optimizer.
type EMConfig struct {
	Rounds    int `json:"rounds" yaml:"rounds"`
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Sampling is "none", "win" or "win_exp".
	Sampling string  `json:"sampling" yaml:"sampling"`
	Window   float64 `json:"window" yaml:"window"`

	RMSPropDecay   float64 `json:"rmsprop_decay" yaml:"rmsprop_decay"`
	RMSPropEpsilon float64 `json:"rmsprop_epsilon" yaml:"rmsprop_epsilon"`
}

// InferenceConfig configures materialization of the inferred network.
type InferenceConfig struct {
	// Aging multiplies a rate that did not change since the previous step.
	// Range: 0.0 to 1.0
	Aging float64 `json:"aging" yaml:"aging"`
}

// SimulationConfig configures cascade generation.
type SimulationConfig struct {
	TotalTime float64 `json:"total_time" yaml:"total_time"`
	Window    float64 `json:"window" yaml:"window"`

	// Seed initializes the random stream shared by every stage.
	Seed uint64 `json:"seed" yaml:"seed"`

	// MaxAttempts caps retries of too-short cascades; 0 is unlimited.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// LoggingConfig configures diffmix's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to decisions.jsonl.
	// "trace" additionally includes per-cascade responsibilities.
	Level string `json:"level" yaml:"level"`

	// JSON switches operational logs to one JSON object per line.
	JSON bool `json:"json" yaml:"json"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Topics:      constants.DefaultTopics,
			Hazard:      shaping.ModelExponential.String(),
			Delta:       constants.DefaultDelta,
			Tolerance:   constants.DefaultTolerance,
			InitAlpha:   constants.DefaultInitAlpha,
			MinAlpha:    constants.DefaultMinAlpha,
			MaxAlpha:    constants.DefaultMaxAlpha,
			Regularizer: mixture.RegularizerNone.String(),
			Mu:          constants.DefaultMu,
		},
		EM: EMConfig{
			Rounds:         constants.DefaultRounds,
			Sampling:       em.SamplingNone.String(),
			Window:         constants.DefaultSamplingWindow,
			RMSPropDecay:   constants.DefaultRMSPropDecay,
			RMSPropEpsilon: constants.DefaultRMSPropEpsilon,
		},
		Inference: InferenceConfig{
			Aging: constants.DefaultAging,
		},
		Simulation: SimulationConfig{
			TotalTime: constants.DefaultTotalTime,
			Window:    constants.DefaultWindow,
			Seed:      1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.diffmix/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".diffmix", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads configuration from path when it is non-empty and from the
// default locations otherwise. Environment overrides apply in both cases.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Fields absent
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	m := c.Model
	if m.Topics <= 0 {
		errs = append(errs, fmt.Errorf("topics must be positive, got %d", m.Topics))
	}
	if _, err := shaping.ParseModel(m.Hazard); err != nil {
		errs = append(errs, err)
	}
	if m.Delta <= 0 {
		errs = append(errs, fmt.Errorf("delta must be positive, got %f", m.Delta))
	}
	if m.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("tolerance must be positive, got %f", m.Tolerance))
	}
	if m.MinAlpha < 0 {
		errs = append(errs, fmt.Errorf("min_alpha must be non-negative, got %f", m.MinAlpha))
	}
	if m.MaxAlpha <= m.MinAlpha {
		errs = append(errs, fmt.Errorf("max_alpha (%f) must exceed min_alpha (%f)", m.MaxAlpha, m.MinAlpha))
	}
	if m.InitAlpha < m.MinAlpha || m.InitAlpha > m.MaxAlpha {
		errs = append(errs, fmt.Errorf("init_alpha must be within [min_alpha, max_alpha], got %f", m.InitAlpha))
	}
	if _, err := mixture.ParseRegularizer(m.Regularizer); err != nil {
		errs = append(errs, err)
	}
	if m.Lambda < 0 {
		errs = append(errs, fmt.Errorf("lambda must be non-negative, got %f", m.Lambda))
	}
	if m.Mu <= 0 {
		errs = append(errs, fmt.Errorf("mu must be positive, got %f", m.Mu))
	}

	e := c.EM
	if e.Rounds <= 0 {
		errs = append(errs, fmt.Errorf("rounds must be positive, got %d", e.Rounds))
	}
	if e.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch_size must be non-negative, got %d", e.BatchSize))
	}
	sampling, err := em.ParseSampling(e.Sampling)
	if err != nil {
		errs = append(errs, err)
	} else if sampling != em.SamplingNone && e.Window <= 0 {
		errs = append(errs, fmt.Errorf("window must be positive for %s sampling, got %f", sampling, e.Window))
	}
	if e.RMSPropDecay < 0 || e.RMSPropDecay >= 1 {
		errs = append(errs, fmt.Errorf("rmsprop_decay must be in [0, 1), got %f", e.RMSPropDecay))
	}
	if e.RMSPropEpsilon <= 0 {
		errs = append(errs, fmt.Errorf("rmsprop_epsilon must be positive, got %g", e.RMSPropEpsilon))
	}

	if a := c.Inference.Aging; a < 0 || a > 1 {
		errs = append(errs, fmt.Errorf("aging must be between 0 and 1, got %f", a))
	}

	s := c.Simulation
	if s.TotalTime <= 0 {
		errs = append(errs, fmt.Errorf("total_time must be positive, got %f", s.TotalTime))
	}
	if s.Window <= 0 {
		errs = append(errs, fmt.Errorf("simulation window must be positive, got %f", s.Window))
	}
	if s.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must be non-negative, got %d", s.MaxAttempts))
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// HazardModel returns the parsed default hazard family.
func (c *Config) HazardModel() (shaping.Model, error) {
	return shaping.ParseModel(c.Model.Hazard)
}

// InferenceConfig converts the settings into the stage configurations of
// an inference model. The configuration must be valid.
func (c *Config) InferenceConfig() (inference.Config, error) {
	hazard, err := c.HazardModel()
	if err != nil {
		return inference.Config{}, err
	}
	reg, err := mixture.ParseRegularizer(c.Model.Regularizer)
	if err != nil {
		return inference.Config{}, err
	}
	sampling, err := em.ParseSampling(c.EM.Sampling)
	if err != nil {
		return inference.Config{}, err
	}

	return inference.Config{
		Mixture: mixture.Config{
			Tol:         c.Model.Tolerance,
			InitAlpha:   c.Model.InitAlpha,
			MinAlpha:    c.Model.MinAlpha,
			MaxAlpha:    c.Model.MaxAlpha,
			Regularizer: reg,
			Lambda:      c.Model.Lambda,
			Mu:          c.Model.Mu,
			Topics:      c.Model.Topics,
			Shaping:     shaping.New(hazard, c.Model.Delta),
		},
		EM: em.Config{
			Rounds:         c.EM.Rounds,
			BatchSize:      c.EM.BatchSize,
			Sampling:       sampling,
			Window:         c.EM.Window,
			RMSPropDecay:   c.EM.RMSPropDecay,
			RMSPropEpsilon: c.EM.RMSPropEpsilon,
		},
		Simulation: simulation.Config{
			TotalTime:   c.Simulation.TotalTime,
			Window:      c.Simulation.Window,
			Delta:       c.Model.Delta,
			MaxAttempts: c.Simulation.MaxAttempts,
		},
		Aging: c.Inference.Aging,
	}, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Unparseable numeric values are ignored.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DIFFMIX_TOPICS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Model.Topics = n
		}
	}
	if v := os.Getenv("DIFFMIX_HAZARD"); v != "" {
		config.Model.Hazard = v
	}
	if v := os.Getenv("DIFFMIX_REGULARIZER"); v != "" {
		config.Model.Regularizer = v
	}
	envFloat("DIFFMIX_LAMBDA", &config.Model.Lambda)
	envFloat("DIFFMIX_MU", &config.Model.Mu)

	if v := os.Getenv("DIFFMIX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.EM.Rounds = n
		}
	}
	if v := os.Getenv("DIFFMIX_SAMPLING"); v != "" {
		config.EM.Sampling = v
	}
	envFloat("DIFFMIX_WINDOW", &config.EM.Window)
	envFloat("DIFFMIX_AGING", &config.Inference.Aging)

	if v := os.Getenv("DIFFMIX_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	if v := os.Getenv("DIFFMIX_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("DIFFMIX_LOG_JSON"); v != "" {
		config.Logging.JSON = v == "true" || v == "1"
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
