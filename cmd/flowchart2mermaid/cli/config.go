package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"flowchart-mermaid/internal/integrations/openai"
)

const envPrefix = "FLOWCHART"

// Config holds every setting of the CLI. It is read once per command and
// passed down explicitly.
type Config struct {
	APIBaseURL         string        `mapstructure:"api_base_url"`
	APIKey             string        `mapstructure:"api_key"`
	ParamPrefix        string        `mapstructure:"param_prefix"`
	Model              string        `mapstructure:"model"`
	InputDir           string        `mapstructure:"input_dir"`
	OutputDir          string        `mapstructure:"output_dir"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	RequestDelay       time.Duration `mapstructure:"request_delay"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Temperature        float64       `mapstructure:"temperature"`
	StateTable         string        `mapstructure:"state_table"`
	SkipModelSelection bool          `mapstructure:"skip_model_selection"`
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"api-url":              "api_base_url",
	"model":                "model",
	"input-dir":            "input_dir",
	"output-dir":           "output_dir",
	"state-table":          "state_table",
	"skip-model-selection": "skip_model_selection",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base_url", openai.DefaultBaseURL)
	v.SetDefault("api_key", "")
	v.SetDefault("param_prefix", "")
	v.SetDefault("model", openai.DefaultModel)
	v.SetDefault("input_dir", "")
	v.SetDefault("output_dir", "submit")
	v.SetDefault("max_attempts", openai.DefaultMaxAttempts)
	v.SetDefault("retry_backoff", openai.DefaultBackoff)
	v.SetDefault("request_delay", time.Second)
	v.SetDefault("request_timeout", openai.DefaultTimeout)
	v.SetDefault("max_tokens", openai.DefaultMaxTokens)
	v.SetDefault("temperature", openai.DefaultTemperature)
	v.SetDefault("state_table", "")
	v.SetDefault("skip_model_selection", false)
}

// LoadConfig merges defaults, an optional flowchart2mermaid.yaml, FLOWCHART_*
// environment variables and any flags that were set, in increasing priority.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for flag, key := range flagKeys {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					log.Warn().Err(err).Msgf("Failed to bind flag %s to %s", flag, key)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("flowchart2mermaid")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/flowchart2mermaid")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	log.Debug().
		Str("api_base_url", cfg.APIBaseURL).
		Str("model", cfg.Model).
		Str("output_dir", cfg.OutputDir).
		Bool("ledger", cfg.StateTable != "").
		Msg("Config loaded")
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	cfg.APIBaseURL = strings.TrimSpace(cfg.APIBaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)

	var problems []string
	if cfg.APIBaseURL == "" {
		problems = append(problems, "api_base_url must not be empty")
	}
	if cfg.Model == "" {
		problems = append(problems, "model must not be empty")
	}
	if cfg.OutputDir == "" {
		problems = append(problems, "output_dir must not be empty")
	}
	if cfg.MaxAttempts < 1 {
		problems = append(problems, "max_attempts must be at least 1")
	}
	if cfg.RetryBackoff < 0 || cfg.RequestDelay < 0 {
		problems = append(problems, "retry_backoff and request_delay must not be negative")
	}
	if cfg.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
