// Package config defines the pipeline's configuration: an explicit,
// immutable struct constructed once at process start and threaded as a
// parameter into the components that need it. Configuration state that
// influences stage outputs participates in cache keys via Fingerprint.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/stageflow/stageflow/logger"
)

// Config is the full application configuration.
type Config struct {
	Name        string        `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string        `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`

	Data          DataConfig          `yaml:"data" mapstructure:"data"`
	Registry      RegistryConfig      `yaml:"registry" mapstructure:"registry"`
	State         StateConfig         `yaml:"state" mapstructure:"state"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// DataConfig locates the on-disk data directories stages read and write.
type DataConfig struct {
	BaseDir       string `yaml:"base_dir" mapstructure:"base_dir" validate:"required"`
	RawDir        string `yaml:"raw_dir" mapstructure:"raw_dir"`
	NormalizedDir string `yaml:"normalized_dir" mapstructure:"normalized_dir"`
	ValidatedDir  string `yaml:"validated_dir" mapstructure:"validated_dir"`
	MergedDir     string `yaml:"merged_dir" mapstructure:"merged_dir"`
}

// RegistryConfig locates the artifact registry database.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// StateConfig locates the persisted run-state document.
type StateConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// PipelineConfig controls which parts of the pipeline run.
type PipelineConfig struct {
	// DefinitionFile optionally points at a YAML pipeline definition;
	// empty means the built-in default graph.
	DefinitionFile    string `yaml:"definition_file" mapstructure:"definition_file"`
	IngestionEnabled  bool   `yaml:"ingestion_enabled" mapstructure:"ingestion_enabled"`
	ProcessingEnabled bool   `yaml:"processing_enabled" mapstructure:"processing_enabled"`
	ValidationEnabled bool   `yaml:"validation_enabled" mapstructure:"validation_enabled"`
}

// ObservabilityConfig controls optional OTLP tracing and metrics.
type ObservabilityConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// ApplyDefaults fills zero-valued fields with sensible defaults. Derived
// directories default to subdirectories of BaseDir.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "stageflow"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()

	if c.Data.BaseDir == "" {
		c.Data.BaseDir = "data"
	}
	if c.Data.RawDir == "" {
		c.Data.RawDir = filepath.Join(c.Data.BaseDir, "raw")
	}
	if c.Data.NormalizedDir == "" {
		c.Data.NormalizedDir = filepath.Join(c.Data.BaseDir, "processed", "normalized")
	}
	if c.Data.ValidatedDir == "" {
		c.Data.ValidatedDir = filepath.Join(c.Data.BaseDir, "processed", "validated")
	}
	if c.Data.MergedDir == "" {
		c.Data.MergedDir = filepath.Join(c.Data.BaseDir, "processed", "merged")
	}
	if c.Registry.Path == "" {
		c.Registry.Path = filepath.Join(c.Data.BaseDir, "registry.db")
	}
	if c.State.Path == "" {
		c.State.Path = filepath.Join(c.Data.BaseDir, "pipeline_state.json")
	}
	if c.Observability.Endpoint == "" {
		c.Observability.Endpoint = "localhost:4318"
	}
	if c.Observability.SampleRate == 0 {
		c.Observability.SampleRate = 1.0
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}

// Fingerprint returns the ordered, serialized settings that participate in
// stage cache keys. Changing any of these invalidates cached stage
// results; purely operational settings (logging, observability) do not
// appear here.
func (c *Config) Fingerprint() []string {
	return []string{
		"data.base_dir=" + c.Data.BaseDir,
		"data.raw_dir=" + c.Data.RawDir,
		"data.normalized_dir=" + c.Data.NormalizedDir,
		"data.validated_dir=" + c.Data.ValidatedDir,
		"data.merged_dir=" + c.Data.MergedDir,
		"pipeline.ingestion_enabled=" + strconv.FormatBool(c.Pipeline.IngestionEnabled),
		"pipeline.processing_enabled=" + strconv.FormatBool(c.Pipeline.ProcessingEnabled),
		"pipeline.validation_enabled=" + strconv.FormatBool(c.Pipeline.ValidationEnabled),
	}
}
