// Package config loads the agent's settings from a YAML file overlaid by
// REPOAGENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLLMProvider    = "openai"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultLLMBaseURL     = "https://api.openai.com/v1"
	DefaultLLMTimeoutSec  = 120
	DefaultRepairRetries  = 2
	DefaultForgeBaseURL   = "https://api.github.com"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultMaxChunks      = 2000
	DefaultMaxIterations  = 1
)

// LLM selects the main completion model.
type LLM struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`
	Model      string `mapstructure:"model" yaml:"model"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Repair selects the model that fixes malformed structured output.
type Repair struct {
	Model        string `mapstructure:"model" yaml:"model"`
	Retries      int    `mapstructure:"retries" yaml:"retries"`
	UseMainModel bool   `mapstructure:"use_main_model" yaml:"use_main_model"`
}

// Forge points at the repository hosting API.
type Forge struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Token      string `mapstructure:"token" yaml:"token"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// RAG controls embedding-based retrieval. Whether a run uses retrieval is a
// per-request flag; this only configures the machinery.
type RAG struct {
	EmbeddingModel string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`
	StorageDir     string  `mapstructure:"storage_dir" yaml:"storage_dir"`
	MinSimilarity  float64 `mapstructure:"min_similarity" yaml:"min_similarity"`
	MaxChunks      int     `mapstructure:"max_chunks" yaml:"max_chunks"`
}

// Workspace locates checkouts and scratch space.
type Workspace struct {
	Root        string `mapstructure:"root" yaml:"root"`
	SessionPath string `mapstructure:"session_path" yaml:"session_path"`
}

// Modify tunes the modification workflow.
type Modify struct {
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// Config is the agent's full configuration.
type Config struct {
	LLM       LLM       `mapstructure:"llm" yaml:"llm"`
	Repair    Repair    `mapstructure:"repair" yaml:"repair"`
	Forge     Forge     `mapstructure:"forge" yaml:"forge"`
	RAG       RAG       `mapstructure:"rag" yaml:"rag"`
	Workspace Workspace `mapstructure:"workspace" yaml:"workspace"`
	Modify    Modify    `mapstructure:"modify" yaml:"modify"`
	Verbose   bool      `mapstructure:"verbose" yaml:"verbose"`
}

// Load reads path (optional; empty searches the working directory for
// repoagent.yaml) and overlays REPOAGENT_* environment variables, e.g.
// REPOAGENT_LLM_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REPOAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("repoagent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key; a key unknown to viper would not pick up
// its environment variable during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", DefaultLLMProvider)
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.base_url", DefaultLLMBaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout_sec", DefaultLLMTimeoutSec)
	v.SetDefault("repair.model", "")
	v.SetDefault("repair.retries", DefaultRepairRetries)
	v.SetDefault("repair.use_main_model", false)
	v.SetDefault("forge.base_url", DefaultForgeBaseURL)
	v.SetDefault("forge.token", "")
	v.SetDefault("forge.timeout_sec", 0)
	v.SetDefault("rag.embedding_model", DefaultEmbeddingModel)
	v.SetDefault("rag.base_url", "")
	v.SetDefault("rag.api_key", "")
	v.SetDefault("rag.min_similarity", 0.0)
	v.SetDefault("rag.max_chunks", DefaultMaxChunks)
	v.SetDefault("rag.storage_dir", filepath.Join(os.TempDir(), "repoagent-index"))
	v.SetDefault("workspace.root", filepath.Join(os.TempDir(), "repoagent-work"))
	v.SetDefault("workspace.session_path", "")
	v.SetDefault("modify.max_iterations", DefaultMaxIterations)
	v.SetDefault("verbose", false)
}

func (c *Config) validate() error {
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}
	if c.Modify.MaxIterations < 1 {
		return fmt.Errorf("modify.max_iterations must be at least 1")
	}
	if c.RAG.MinSimilarity < 0 || c.RAG.MinSimilarity > 1 {
		return fmt.Errorf("rag.min_similarity must be within [0, 1]")
	}
	return nil
}

// WriteDefault writes a commented-out starting point to path; it refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg := Config{
		LLM: LLM{
			Provider:   DefaultLLMProvider,
			Model:      DefaultLLMModel,
			BaseURL:    DefaultLLMBaseURL,
			TimeoutSec: DefaultLLMTimeoutSec,
		},
		Repair: Repair{Retries: DefaultRepairRetries},
		Forge:  Forge{BaseURL: DefaultForgeBaseURL},
		RAG: RAG{
			EmbeddingModel: DefaultEmbeddingModel,
			MaxChunks:      DefaultMaxChunks,
			StorageDir:     filepath.Join(os.TempDir(), "repoagent-index"),
		},
		Workspace: Workspace{Root: filepath.Join(os.TempDir(), "repoagent-work")},
		Modify:    Modify{MaxIterations: DefaultMaxIterations},
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
