package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// STAGEFLOW_REGISTRY_PATH overrides registry.path.
const envPrefix = "STAGEFLOW"

// LoaderOptions controls where configuration is read from.
type LoaderOptions struct {
	// ConfigFile is an explicit YAML config file path; empty means
	// search the working directory for stageflow.yaml / stageflow.yml.
	ConfigFile string
	// EnvFile is an explicit .env path; empty means load ./.env when
	// present.
	EnvFile string
}

// Load builds the configuration from (in increasing precedence) defaults,
// an optional YAML file, and environment variables. The returned Config
// has defaults applied and has been validated.
func Load(opts LoaderOptions) (*Config, error) {
	loadEnvFile(opts.EnvFile)

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The full pipeline runs unless a file or the environment opts out.
	v.SetDefault("pipeline.ingestion_enabled", true)
	v.SetDefault("pipeline.processing_enabled", true)
	v.SetDefault("pipeline.validation_enabled", true)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("stageflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config file is fine; env + defaults carry it.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	// Bind nested keys so AutomaticEnv sees them even without a file.
	for _, key := range bindableKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var bindableKeys = []string{
	"name",
	"environment",
	"debug",
	"logging.level",
	"logging.format",
	"logging.output",
	"data.base_dir",
	"data.raw_dir",
	"data.normalized_dir",
	"data.validated_dir",
	"data.merged_dir",
	"registry.path",
	"state.path",
	"pipeline.definition_file",
	"pipeline.ingestion_enabled",
	"pipeline.processing_enabled",
	"pipeline.validation_enabled",
	"observability.enabled",
	"observability.endpoint",
	"observability.sample_rate",
}

func loadEnvFile(path string) {
	if path != "" {
		_ = godotenv.Load(path)
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}
