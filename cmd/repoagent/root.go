package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/AndVl1/repoagent/internal/config"
	"github.com/AndVl1/repoagent/internal/dockerops"
	"github.com/AndVl1/repoagent/internal/errors"
	"github.com/AndVl1/repoagent/internal/forge"
	"github.com/AndVl1/repoagent/internal/gitops"
	"github.com/AndVl1/repoagent/internal/llm"
	"github.com/AndVl1/repoagent/internal/logging"
	"github.com/AndVl1/repoagent/internal/rag"
	"github.com/AndVl1/repoagent/internal/runner"
)

func newRootCommand() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "repoagent",
		Short:         "LLM-driven repository analysis and modification",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to repoagent.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if verbose {
			cfg.Verbose = true
		}
		if cfg.Verbose {
			logging.SetLevel(logging.LevelDebug)
		}
		return cfg, nil
	}

	root.AddCommand(newAnalyzeCommand(loadConfig))
	root.AddCommand(newModifyCommand(loadConfig))
	root.AddCommand(newInitCommand())
	return root
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starting-point repoagent.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "repoagent.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

// container bundles the collaborators every workflow needs.
type container struct {
	cfg    *config.Config
	logger logging.Logger
	main   llm.StreamingClient
	repair llm.Client
	forge  *forge.Client
	git    *gitops.Git
	docker *dockerops.Docker
}

func buildContainer(cfg *config.Config) (*container, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key is required (REPOAGENT_LLM_API_KEY)")
	}

	logger := logging.NewComponentLogger("repoagent")

	main := llm.NewRetryClient(llm.NewOpenAIClient(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		TimeoutSec: cfg.LLM.TimeoutSec,
	}, logger), errors.DefaultRetryConfig(), logger)

	var repair llm.Client
	if !cfg.Repair.UseMainModel && cfg.Repair.Model != "" {
		repair = llm.NewOpenAIClient(llm.Config{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.Repair.Model,
			TimeoutSec: cfg.LLM.TimeoutSec,
		}, logger)
	}

	forgeClient := forge.New(forge.Config{
		BaseURL:    cfg.Forge.BaseURL,
		Token:      cfg.Forge.Token,
		TimeoutSec: cfg.Forge.TimeoutSec,
	}, logger)

	processRunner := runner.New(logger)
	return &container{
		cfg:    cfg,
		logger: logger,
		main:   main,
		repair: repair,
		forge:  forgeClient,
		git:    gitops.New(processRunner, logger),
		docker: dockerops.New(processRunner, cfg.Workspace.Root, logger),
	}, nil
}

// buildIndexer assembles the retrieval pipeline, or nil when embeddings are
// not configured.
func (c *container) buildIndexer() (*rag.Indexer, error) {
	apiKey := c.cfg.RAG.APIKey
	if apiKey == "" {
		apiKey = c.cfg.LLM.APIKey
	}
	if apiKey == "" {
		return nil, nil
	}

	chunker, err := rag.NewChunker(rag.ChunkerConfig{})
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	embedder, err := rag.NewEmbedder(rag.EmbedderConfig{
		Model:   c.cfg.RAG.EmbeddingModel,
		APIKey:  apiKey,
		BaseURL: c.cfg.RAG.BaseURL,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	store := rag.NewStore(c.cfg.RAG.StorageDir, c.logger)
	return rag.NewIndexer(rag.IndexerConfig{MaxChunks: c.cfg.RAG.MaxChunks}, chunker, embedder, store, c.logger), nil
}

func (c *container) httpClient() *http.Client {
	return &http.Client{}
}
