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
	"github.com/AndVl1/repoagent/internal/workflows"
	"github.com/AndVl1/repoagent/internal/workflows/modify"
)

func newModifyCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		repoURL      string
		baseImage    string
		buildCommand string
		runCommand   string
		port         int
		iterations   int
		embeddings   bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "modify --repo <url> <request...>",
		Short: "Apply a requested change to a repository and open a pull request",
		Long: `Modify clones the repository, plans and applies the change on a working
branch, optionally verifies it in a container, then pushes and opens a pull
request. A rejected push is retried once on a fresh branch.`,
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

			maxIterations := cfg.Modify.MaxIterations
			if iterations > 0 {
				maxIterations = iterations
			}

			workflow := modify.New(modify.Deps{
				Main:          c.main,
				Repair:        c.repair,
				RepairRetries: cfg.Repair.Retries,
				MaxIterations: maxIterations,
				Forge:         c.forge,
				Git:           c.git,
				Docker:        c.docker,
				Indexer:       ragIndexer,
				MinSimilarity: cfg.RAG.MinSimilarity,
				WorkspaceRoot: cfg.Workspace.Root,
				SessionPath:   cfg.Workspace.SessionPath,
				Logger:        c.logger,
			})

			var env *workflows.ContainerEnv
			if baseImage != "" {
				env = &workflows.ContainerEnv{
					BaseImage:    baseImage,
					BuildCommand: buildCommand,
					RunCommand:   runCommand,
					Port:         port,
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := graph.NewBus(0)
			done := make(chan struct{})
			go renderEvents(cmd.ErrOrStderr(), bus, done)

			resp, err := workflow.Run(ctx, modify.Request{
				RepoURL:          repoURL,
				UserRequest:      strings.Join(args, " "),
				ContainerEnv:     env,
				EnableEmbeddings: embeddings,
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
			printModifyReport(out, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&repoURL, "repo", "", "repository URL (required)")
	cmd.Flags().StringVar(&baseImage, "base-image", "", "container base image for verification")
	cmd.Flags().StringVar(&buildCommand, "build-command", "", "container build command")
	cmd.Flags().StringVar(&runCommand, "run-command", "", "verification command run in the container")
	cmd.Flags().IntVar(&port, "port", 0, "port the container exposes")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "modify+verify passes (overrides config)")
	cmd.Flags().BoolVar(&embeddings, "embeddings", false, "index the checkout for retrieval first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response as JSON")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}
