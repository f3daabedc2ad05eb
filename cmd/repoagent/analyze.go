package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AndVl1/repoagent/internal/config"
	"github.com/AndVl1/repoagent/internal/graph"
	"github.com/AndVl1/repoagent/internal/workflows/analyze"
)

func newAnalyzeCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		externalDoc   string
		skipContainer bool
		embeddings    bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <request...>",
		Short: "Analyze a repository for a free-text request",
		Long: `Analyze parses the request (which should name a repository URL), explores
the repository through forge tools, and prints the resulting report.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := buildContainer(cfg)
			if err != nil {
				return err
			}

			ragIndexer, err := c.buildIndexer()
			if err != nil {
				return err
			}

			workflow := analyze.New(analyze.Deps{
				Main:          c.main,
				Repair:        c.repair,
				RepairRetries: cfg.Repair.Retries,
				Forge:         c.forge,
				Git:           c.git,
				Docker:        c.docker,
				Indexer:       ragIndexer,
				MinSimilarity: cfg.RAG.MinSimilarity,
				HTTPClient:    c.httpClient(),
				WorkspaceRoot: cfg.Workspace.Root,
				Logger:        c.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := graph.NewBus(0)
			done := make(chan struct{})
			go renderEvents(cmd.ErrOrStderr(), bus, done)

			resp, err := workflow.Run(ctx, analyze.Request{
				UserInput:             strings.Join(args, " "),
				APIKey:                cfg.LLM.APIKey,
				LLMProvider:           cfg.LLM.Provider,
				SelectedModel:         cfg.LLM.Model,
				UseMainModelForFixing: cfg.Repair.UseMainModel,
				FixingModel:           cfg.Repair.Model,
				AttachExternalDoc:     externalDoc != "",
				ExternalDocURL:        externalDoc,
				ForceSkipContainer:    skipContainer,
				EnableEmbeddings:      embeddings,
			}, bus)
			bus.Close()
			<-done
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printAnalyzeReport(out, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&externalDoc, "external-doc", "", "URL of a requirements document to load")
	cmd.Flags().BoolVar(&skipContainer, "skip-container", false, "never attempt a container build")
	cmd.Flags().BoolVar(&embeddings, "embeddings", false, "index the repository for retrieval first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response as JSON")
	return cmd
}
